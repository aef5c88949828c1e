// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtuovertcp carries raw RTU frames, CRC included and without an
// MBAP header, over a TCP stream as serial device servers do.
package rtuovertcp

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/ffutop/modbus-probe/modbus"
	"github.com/ffutop/modbus-probe/transport"
)

const (
	// Scheme prefixes device names that refer to a TCP endpoint.
	Scheme = "tcp://"

	tcpTimeout = 10 * time.Second
	// networkIdle is the frame end silence on a TCP stream, where
	// segments of one frame may arrive well apart.
	networkIdle = 20 * time.Millisecond
)

// IsAddress reports whether device names a TCP endpoint.
func IsAddress(device string) bool {
	return strings.HasPrefix(device, Scheme)
}

// conn bounds every read by the poll interval.
type conn struct {
	net.Conn
	poll time.Duration
}

func (c *conn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.poll)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func newTransport(nc net.Conn, cfg transport.Config, logger *slog.Logger) *transport.Transport {
	if cfg.Idle <= 0 {
		cfg.Idle = networkIdle
	}
	// Turnaround is handled by the device server.
	cfg.ControlRTS = false
	cfg.RxDuringTx = true
	return transport.New(&conn{Conn: nc, poll: cfg.IdleInterval()}, cfg, logger)
}

// Dial connects to address ("host:port" or "tcp://host:port").
func Dial(address string, cfg transport.Config, logger *slog.Logger) (*transport.Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	address = strings.TrimPrefix(address, Scheme)
	nc, err := net.DialTimeout("tcp", address, tcpTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: could not connect to %s: %v", modbus.ErrPortUnavailable, address, err)
	}
	logger.Info("connected to rtu over tcp endpoint", "addr", nc.RemoteAddr())
	return newTransport(nc, cfg, logger), nil
}
