// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/modbus-probe/modbus"
	"github.com/ffutop/modbus-probe/modbus/rtu"
)

const defaultPoll = time.Second

// Transport is the byte pipe a Server listens on.
type Transport interface {
	Write(frame []byte) error
	ReadUntilIdle(timeout time.Duration) ([]byte, error)
	Close() error
}

// Server answers requests addressed to one slave on a bus.
type Server struct {
	slave   *Slave
	address modbus.SlaveAddress
	logger  *slog.Logger
	poll    time.Duration
}

// NewServer creates a server answering as address.
func NewServer(s *Slave, address modbus.SlaveAddress, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		slave:   s,
		address: address,
		logger:  logger,
		poll:    defaultPoll,
	}
}

// Serve handles frames from tr until ctx is cancelled or tr fails. The
// transport is closed when Serve returns.
func (s *Server) Serve(ctx context.Context, tr Transport) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		tr.Close()
	}()

	s.logger.Info("modbus slave serving", "slave", s.address)
	for {
		frame, err := tr.ReadUntilIdle(s.poll)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, modbus.ErrTimeout) {
			continue
		}
		if err != nil {
			return err
		}

		resp := s.handleFrame(frame)
		if resp == nil {
			continue
		}
		if err := tr.Write(resp); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
}

// handleFrame returns the response to frame, or nil when nothing must be
// sent back.
func (s *Server) handleFrame(frame []byte) []byte {
	adu, err := rtu.DecodeADU(frame)
	if err != nil {
		s.logger.Warn("dropping frame", "frame", hex.EncodeToString(frame), "err", err)
		return nil
	}
	if adu.SlaveID != s.address && !adu.SlaveID.IsBroadcast() {
		s.logger.Debug("ignoring frame for other slave", "slave", adu.SlaveID)
		return nil
	}
	if length, err := rtu.RequestLength(adu.Pdu.FunctionCode); err == nil && length != len(frame) {
		s.logger.Warn("dropping frame with bad length", "frame", hex.EncodeToString(frame), "length", len(frame), "expected", length)
		return nil
	}

	pdu := s.slave.Process(adu.Pdu)
	if adu.SlaveID.IsBroadcast() {
		return nil
	}
	if pdu.FunctionCode.IsException() {
		s.logger.Info("exception response", "function", adu.Pdu.FunctionCode, "code", modbus.ExceptionCode(pdu.Data[0]))
	}

	reply := &rtu.ApplicationDataUnit{SlaveID: s.address, Pdu: pdu}
	raw, err := reply.Encode()
	if err != nil {
		s.logger.Error("failed to encode response", "err", err)
		return nil
	}
	return raw
}
