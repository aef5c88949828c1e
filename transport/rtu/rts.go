// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"
	"time"

	"github.com/ffutop/modbus-probe/internal/config"
	"github.com/ffutop/modbus-probe/transport"
	"go.bug.st/serial"
)

// openRTS opens the device with go.bug.st/serial, whose port exposes RTS
// and input flushing to the transport. RTS starts released so the bus is
// left to the slaves.
func openRTS(cfg config.SerialConfig, idle time.Duration) (transport.Port, error) {
	mode, err := serialMode(cfg)
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(idle); err != nil {
		port.Close()
		return nil, err
	}
	if err := port.SetRTS(false); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}

func serialMode(cfg config.SerialConfig) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}
	switch cfg.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("unsupported parity: %q", cfg.Parity)
	}
	switch cfg.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits: %d", cfg.StopBits)
	}
	return mode, nil
}
