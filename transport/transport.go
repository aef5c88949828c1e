// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package transport moves raw RTU frames over a half-duplex byte stream.
// RTU frames carry no length or delimiter, so the end of a frame is
// detected by a period of line silence.
package transport

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ffutop/modbus-probe/modbus"
	"github.com/ffutop/modbus-probe/modbus/rtu"
)

const (
	// bitsPerChar is start + 8 data + parity (or second stop) + stop.
	bitsPerChar = 11
	// minIdle keeps frame end detection above USB adapter latency.
	minIdle = 2 * time.Millisecond
)

// Port is the byte stream under a Transport. Read must not block much longer
// than the idle interval: when no data arrives it returns (0, nil) or an
// error whose Timeout method reports true.
type Port interface {
	io.ReadWriteCloser
}

// rtsController is implemented by ports with a controllable RTS line driving
// the RS485 transceiver's driver enable.
type rtsController interface {
	SetRTS(rts bool) error
}

// inputResetter is implemented by ports that can drop buffered input.
type inputResetter interface {
	ResetInputBuffer() error
}

// Config holds timing parameters of a Transport.
type Config struct {
	BaudRate int
	// Idle is the silence that ends a frame. Zero derives it from BaudRate.
	Idle time.Duration

	DelayBeforeSend time.Duration
	DelayAfterSend  time.Duration
	// ControlRTS asserts RTS while transmitting if the port supports it.
	ControlRTS bool
	// RxDuringTx keeps bytes received while transmitting instead of
	// discarding them as echo.
	RxDuringTx bool
}

// Transport performs framing agnostic I/O. It is not safe for concurrent use.
type Transport struct {
	port   Port
	cfg    Config
	idle   time.Duration
	logger *slog.Logger
}

// New wraps port.
func New(port Port, cfg Config, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		port:   port,
		cfg:    cfg,
		idle:   cfg.IdleInterval(),
		logger: logger,
	}
}

// IdleInterval returns the silence that ends a frame: Idle if set, else the
// inter-frame delay of BaudRate, never below 2ms.
func (cfg Config) IdleInterval() time.Duration {
	idle := cfg.Idle
	if idle <= 0 {
		idle = FrameDelay(cfg.BaudRate)
	}
	if idle < minIdle {
		idle = minIdle
	}
	return idle
}

// FrameDelay returns the 3.5 character inter-frame silence for baudRate.
// Above 19200 baud the standard fixes it at 1750µs.
func FrameDelay(baudRate int) time.Duration {
	if baudRate <= 0 || baudRate > 19200 {
		return 1750 * time.Microsecond
	}
	return time.Duration(35000000/baudRate) * time.Microsecond
}

// TransmitTime returns how long chars characters occupy the line.
func TransmitTime(baudRate, chars int) time.Duration {
	if baudRate <= 0 {
		return 0
	}
	return time.Duration(chars*bitsPerChar) * time.Second / time.Duration(baudRate)
}

// Idle returns the silence interval that ends a frame.
func (t *Transport) Idle() time.Duration {
	return t.idle
}

// Write transmits frame, handling the half-duplex turnaround around it.
func (t *Transport) Write(frame []byte) error {
	if len(frame) == 0 {
		return fmt.Errorf("%w: cannot write empty frame", modbus.ErrIO)
	}
	rts, _ := t.port.(rtsController)
	if !t.cfg.ControlRTS {
		rts = nil
	}

	if rts != nil {
		if err := rts.SetRTS(true); err != nil {
			return fmt.Errorf("%w: failed to assert rts: %v", modbus.ErrIO, err)
		}
	}
	if t.cfg.DelayBeforeSend > 0 {
		time.Sleep(t.cfg.DelayBeforeSend)
	}

	t.logger.Debug("send to modbus slave", "request", hex.EncodeToString(frame))
	for written := 0; written < len(frame); {
		n, err := t.port.Write(frame[written:])
		if err != nil {
			t.releaseRTS(rts)
			return fmt.Errorf("%w: write failed after %d bytes: %v", modbus.ErrIO, written, err)
		}
		if n == 0 {
			t.releaseRTS(rts)
			return fmt.Errorf("%w: write made no progress after %d bytes", modbus.ErrIO, written)
		}
		written += n
	}

	// The port returns once the frame is queued; keep the driver enabled
	// until the last character has left the UART.
	if rts != nil {
		time.Sleep(TransmitTime(t.cfg.BaudRate, len(frame)))
	}
	if t.cfg.DelayAfterSend > 0 {
		time.Sleep(t.cfg.DelayAfterSend)
	}
	if err := t.releaseRTS(rts); err != nil {
		return err
	}

	if !t.cfg.RxDuringTx {
		if r, ok := t.port.(inputResetter); ok {
			if err := r.ResetInputBuffer(); err != nil {
				return fmt.Errorf("%w: failed to discard echo: %v", modbus.ErrIO, err)
			}
		}
	}
	return nil
}

func (t *Transport) releaseRTS(rts rtsController) error {
	if rts == nil {
		return nil
	}
	if err := rts.SetRTS(false); err != nil {
		return fmt.Errorf("%w: failed to release rts: %v", modbus.ErrIO, err)
	}
	return nil
}

// ReadUntilIdle accumulates bytes until the line has been silent for the idle
// interval after at least one byte, or until timeout. It fails with
// modbus.ErrTimeout if nothing arrived before the timeout.
func (t *Transport) ReadUntilIdle(timeout time.Duration) ([]byte, error) {
	start := time.Now()
	deadline := start.Add(timeout)

	frame := make([]byte, 0, rtu.MaxSize)
	chunk := make([]byte, rtu.MaxSize)
	var last time.Time

	for {
		n, err := t.port.Read(chunk)
		now := time.Now()
		if n > 0 {
			frame = append(frame, chunk[:n]...)
			last = now
			if len(frame) > rtu.MaxSize {
				return nil, fmt.Errorf("%w: received more than '%v' bytes", modbus.ErrMalformedFrame, rtu.MaxSize)
			}
		}
		if err != nil && !isPollTimeout(err) {
			// A stream that ends right after a frame still delivered it.
			if errors.Is(err, io.EOF) && len(frame) > 0 {
				t.logger.Debug("recv from modbus slave", "response", hex.EncodeToString(frame))
				return frame, nil
			}
			return nil, fmt.Errorf("%w: read failed: %v", modbus.ErrIO, err)
		}

		if len(frame) > 0 {
			if n == 0 && now.Sub(last) >= t.idle || !now.Before(deadline) {
				t.logger.Debug("recv from modbus slave", "response", hex.EncodeToString(frame))
				return frame, nil
			}
			continue
		}
		if !now.Before(deadline) {
			return nil, fmt.Errorf("%w: no response after %v", modbus.ErrTimeout, now.Sub(start))
		}
	}
}

// Close releases the port. A read in progress fails.
func (t *Transport) Close() error {
	return t.port.Close()
}

func isPollTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
