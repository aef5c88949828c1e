// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	// Slave is the address connect talks to and serve answers as.
	Slave   int           `mapstructure:"slave"`
	Log     LogConfig     `mapstructure:"log"`
	Serial  SerialConfig  `mapstructure:"serial"`
	Request RequestConfig `mapstructure:"request"`
	Serve   ServeConfig   `mapstructure:"serve"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level   string `mapstructure:"level"`   // debug, info, warn, error
	File    string `mapstructure:"file"`    // Log file path, "" or "-" for stderr
	Verbose bool   `mapstructure:"verbose"` // Progress messages
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device    string        `mapstructure:"device"` // "/dev/ttyUSB0" or "tcp://host:port"
	BaudRate  int           `mapstructure:"baud_rate"`
	DataBits  int           `mapstructure:"data_bits"`
	Parity    string        `mapstructure:"parity"`
	StopBits  int           `mapstructure:"stop_bits"`
	Timeout   time.Duration `mapstructure:"timeout"`    // Response timeout
	RqstPause time.Duration `mapstructure:"rqst_pause"` // Pause between requests
	Idle      time.Duration `mapstructure:"idle"`       // Silence ending a frame, 0 derives from baud rate

	RS485 RS485Config `mapstructure:"rs485"`
}

// RS485Config defines half-duplex turnaround
type RS485Config struct {
	Enabled bool `mapstructure:"enabled"`
	// Driver selects who drives the transceiver: "kernel" uses the tty
	// driver's RS485 mode, "rts" toggles RTS from user space.
	Driver             string        `mapstructure:"driver"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// RequestConfig defines the single request issued by connect
type RequestConfig struct {
	Function string `mapstructure:"function"` // holding, input, write
	Address  int    `mapstructure:"address"`
	Quantity int    `mapstructure:"quantity"`
	Value    int    `mapstructure:"value"`
}

// ServeConfig defines the simulated slave
type ServeConfig struct {
	Store string `mapstructure:"store"` // Register file, empty keeps registers in memory
}

const (
	DriverKernel = "kernel"
	DriverRTS    = "rts"
)

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"verbose":      "log.verbose",
	"log-level":    "log.level",
	"log-file":     "log.file",
	"port":         "serial.device",
	"baud":         "serial.baud_rate",
	"data-bits":    "serial.data_bits",
	"parity":       "serial.parity",
	"stop-bits":    "serial.stop_bits",
	"timeout":      "serial.timeout",
	"rqst-pause":   "serial.rqst_pause",
	"idle":         "serial.idle",
	"rs485":        "serial.rs485.enabled",
	"rs485-driver": "serial.rs485.driver",
	"slave":        "slave",
	"function":     "request.function",
	"address":      "request.address",
	"quantity":     "request.quantity",
	"value":        "request.value",
	"store":        "serve.store",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("slave", 1)

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.file", "")
	v.SetDefault("log.verbose", false)

	v.SetDefault("serial.device", "/dev/ttyUSB0")
	v.SetDefault("serial.baud_rate", 19200)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.parity", "E")
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.timeout", 200*time.Millisecond)
	v.SetDefault("serial.rqst_pause", time.Duration(0))
	v.SetDefault("serial.idle", time.Duration(0))
	v.SetDefault("serial.rs485.enabled", false)
	v.SetDefault("serial.rs485.driver", DriverKernel)
	v.SetDefault("serial.rs485.rts_high_during_send", true)

	v.SetDefault("request.function", "holding")
	v.SetDefault("request.address", 0)
	v.SetDefault("request.quantity", 2)

	v.SetDefault("serve.store", "")
}

// LoadConfig loads configuration from defaults, an optional config file and
// the flags that were set on the command line, in increasing precedence.
// Without configFile, config.yaml is searched in the usual places and may be
// absent.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbus-probe/")
		v.AddConfigPath("$HOME/.modbus-probe")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	fixupSerial(&config.Serial)
	if err := validateSerial(&config.Serial); err != nil {
		return nil, err
	}
	return &config, nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	s.RS485.Driver = strings.ToLower(s.RS485.Driver)
	if s.RS485.Driver == "" {
		s.RS485.Driver = DriverKernel
	}
	if s.Timeout == 0 {
		s.Timeout = 200 * time.Millisecond
	}
}

func validateSerial(s *SerialConfig) error {
	if s.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate: %d", s.BaudRate)
	}
	if s.DataBits < 5 || s.DataBits > 8 {
		return fmt.Errorf("invalid data bits: %d", s.DataBits)
	}
	switch s.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("invalid parity: %q (want N, E or O)", s.Parity)
	}
	if s.StopBits != 1 && s.StopBits != 2 {
		return fmt.Errorf("invalid stop bits: %d", s.StopBits)
	}
	if s.Timeout < 0 || s.RqstPause < 0 || s.Idle < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	switch s.RS485.Driver {
	case DriverKernel, DriverRTS:
	default:
		return fmt.Errorf("invalid rs485 driver: %q (want %s or %s)", s.RS485.Driver, DriverKernel, DriverRTS)
	}
	return nil
}
