// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtu opens serial devices as RTU transports.
package rtu

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/modbus-probe/internal/config"
	"github.com/ffutop/modbus-probe/modbus"
	"github.com/ffutop/modbus-probe/transport"
	"github.com/grid-x/serial"
)

// Open opens the serial device described by cfg. With the "rts" RS485
// driver the transceiver is switched from user space, otherwise the tty
// driver handles it.
func Open(cfg config.SerialConfig, logger *slog.Logger) (*transport.Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tcfg := transportConfig(cfg)

	var (
		port transport.Port
		err  error
	)
	if cfg.RS485.Enabled && cfg.RS485.Driver == config.DriverRTS {
		tcfg.ControlRTS = true
		port, err = openRTS(cfg, tcfg.IdleInterval())
	} else {
		port, err = openKernel(cfg, tcfg.IdleInterval())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: could not open %s: %v", modbus.ErrPortUnavailable, cfg.Device, err)
	}
	logger.Info("serial port opened", "device", cfg.Device, "baud_rate", cfg.BaudRate,
		"parity", cfg.Parity, "rs485", cfg.RS485.Enabled, "driver", cfg.RS485.Driver)
	return transport.New(port, tcfg, logger), nil
}

func transportConfig(cfg config.SerialConfig) transport.Config {
	tcfg := transport.Config{
		BaudRate: cfg.BaudRate,
		Idle:     cfg.Idle,
	}
	if cfg.RS485.Enabled {
		tcfg.RxDuringTx = cfg.RS485.RxDuringTx
		if cfg.RS485.Driver == config.DriverRTS {
			tcfg.DelayBeforeSend = cfg.RS485.DelayRtsBeforeSend
			tcfg.DelayAfterSend = cfg.RS485.DelayRtsAfterSend
		}
	}
	return tcfg
}

// kernelPort reports read timeouts as empty reads.
type kernelPort struct {
	serial.Port
}

func (p kernelPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if errors.Is(err, serial.ErrTimeout) {
		return n, nil
	}
	return n, err
}

// openKernel opens the device with grid-x/serial. The read timeout is the
// frame idle interval so that reads return during silence.
func openKernel(cfg config.SerialConfig, idle time.Duration) (transport.Port, error) {
	sc := &serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  idle,
	}
	if cfg.RS485.Enabled {
		sc.RS485 = serial.RS485Config{
			Enabled:            true,
			DelayRtsBeforeSend: cfg.RS485.DelayRtsBeforeSend,
			DelayRtsAfterSend:  cfg.RS485.DelayRtsAfterSend,
			RtsHighDuringSend:  cfg.RS485.RtsHighDuringSend,
			RtsHighAfterSend:   cfg.RS485.RtsHighAfterSend,
			RxDuringTx:         cfg.RS485.RxDuringTx,
		}
	}
	port, err := serial.Open(sc)
	if err != nil {
		return nil, err
	}
	return kernelPort{port}, nil
}
