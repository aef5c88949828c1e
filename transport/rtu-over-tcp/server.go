// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/ffutop/modbus-probe/modbus"
	"github.com/ffutop/modbus-probe/transport"
)

// Listener accepts RTU over TCP connections, each becoming a Transport.
type Listener struct {
	listener net.Listener
	cfg      transport.Config
	logger   *slog.Logger
}

// Listen listens on address ("host:port" or "tcp://host:port").
func Listen(address string, cfg transport.Config, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	address = strings.TrimPrefix(address, Scheme)
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to listen on %s: %v", modbus.ErrPortUnavailable, address, err)
	}
	logger.Info("RTU over TCP server listening", "addr", l.Addr())
	return &Listener{listener: l, cfg: cfg, logger: logger}, nil
}

// Addr returns the listening address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Accept waits for the next connection.
func (l *Listener) Accept() (*transport.Transport, error) {
	nc, err := l.listener.Accept()
	if err != nil {
		return nil, fmt.Errorf("%w: accept failed: %v", modbus.ErrIO, err)
	}
	l.logger.Info("New RTU over TCP client connected", "addr", nc.RemoteAddr())
	return newTransport(nc, l.cfg, l.logger), nil
}

// Close stops listening. Accepted transports stay open.
func (l *Listener) Close() error {
	return l.listener.Close()
}
