// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package master implements a MODBUS-RTU master: one request, one response,
// one exchange at a time on a half-duplex bus.
package master

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/modbus-probe/modbus"
	"github.com/ffutop/modbus-probe/modbus/rtu"
)

// Transport is the byte channel a Master drives.
type Transport interface {
	Write(frame []byte) error
	ReadUntilIdle(timeout time.Duration) ([]byte, error)
	Idle() time.Duration
	Close() error
}

// Config tunes a Master.
type Config struct {
	// RqstPause is the minimum bus silence between the end of one exchange
	// and the start of the next. It is never shorter than the transport's
	// idle interval.
	RqstPause time.Duration
	Logger    *slog.Logger
}

// Master owns a Transport exclusively. Send may be called from several
// goroutines; exchanges are serialised.
type Master struct {
	transport Transport
	pause     time.Duration
	logger    *slog.Logger

	mu           sync.Mutex
	lastActivity time.Time
	// state is written under mu and may be read at any time.
	state stateHolder
}

// New returns an idle Master driving t.
func New(t Transport, cfg Config) *Master {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pause := cfg.RqstPause
	if idle := t.Idle(); pause < idle {
		pause = idle
	}
	return &Master{
		transport: t,
		pause:     pause,
		logger:    logger,
	}
}

// State returns the current exchange state.
func (m *Master) State() State {
	return m.state.load()
}

// Send performs exactly one exchange. Broadcast requests return an empty
// Response after the frame is written. A slave exception is returned as the
// decoded Response together with its *modbus.ExceptionError.
//
// ctx is only consulted before the exchange starts; close the Master to
// abort one in flight.
func (m *Master) Send(ctx context.Context, req modbus.Request) (modbus.Response, error) {
	if req.Function == nil || req.Timeout <= 0 {
		return modbus.Response{}, fmt.Errorf("%w: request was not built with NewRequest", modbus.ErrInvalidRequestParameters)
	}
	frame, err := rtu.Encode(req.Slave, req.Function)
	if err != nil {
		return modbus.Response{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.state.store(StateIdle)

	if err := ctx.Err(); err != nil {
		return modbus.Response{}, err
	}
	if err := m.awaitSilence(ctx); err != nil {
		return modbus.Response{}, err
	}

	m.state.store(StateSending)
	err = m.transport.Write(frame)
	m.lastActivity = time.Now()
	if err != nil {
		return modbus.Response{}, err
	}

	if req.Slave.IsBroadcast() {
		m.logger.Debug("broadcast sent, no response expected", "function", req.Function.Code())
		return modbus.Response{SlaveID: req.Slave, Function: req.Function.Code()}, nil
	}

	m.state.store(StateAwaitingResponse)
	raw, err := m.transport.ReadUntilIdle(req.Timeout)
	m.lastActivity = time.Now()
	if err != nil {
		return modbus.Response{}, fmt.Errorf("slave %d: %w", req.Slave, err)
	}

	resp, err := rtu.Decode(raw, req.Function)
	if err != nil {
		return modbus.Response{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.SlaveID != req.Slave {
		return modbus.Response{}, fmt.Errorf("%w: response slave id '%v' does not match request '%v'",
			modbus.ErrAddressMismatch, resp.SlaveID, req.Slave)
	}
	if err := resp.Err(); err != nil {
		m.logger.Debug("slave answered with exception", "slave", req.Slave, "code", resp.Exception)
		return resp, err
	}
	return resp, nil
}

// awaitSilence sleeps until the bus has been quiet for the request pause.
func (m *Master) awaitSilence(ctx context.Context) error {
	if m.lastActivity.IsZero() {
		return nil
	}
	wait := m.pause - time.Since(m.lastActivity)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Close releases the transport. An exchange in flight fails.
func (m *Master) Close() error {
	return m.transport.Close()
}
