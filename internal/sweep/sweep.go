// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package sweep sends one request to each of a list of slaves to find
// out which of them answer.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ffutop/modbus-probe/modbus"
)

// Sender performs one exchange. *master.Master implements it.
type Sender interface {
	Send(ctx context.Context, req modbus.Request) (modbus.Response, error)
}

// Result is the outcome for one slave.
type Result struct {
	Slave    modbus.SlaveAddress
	Response modbus.Response
	Err      error
}

// Present reports whether the slave answered, normally or with an
// exception.
func (r Result) Present() bool {
	var exc *modbus.ExceptionError
	return r.Err == nil || errors.As(r.Err, &exc)
}

func (r Result) String() string {
	switch {
	case r.Present():
		return fmt.Sprintf("slave %d: %v", r.Slave, r.Response)
	case errors.Is(r.Err, modbus.ErrTimeout):
		return fmt.Sprintf("slave %d: no response", r.Slave)
	default:
		return fmt.Sprintf("slave %d: %v", r.Slave, r.Err)
	}
}

// ParseSlaveIDs parses a list of unicast slave addresses such as
// "1,2,5-10".
func ParseSlaveIDs(input string) ([]modbus.SlaveAddress, error) {
	var ids []modbus.SlaveAddress
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		start, end, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		for i := start; i <= end; i++ {
			ids = append(ids, modbus.SlaveAddress(i))
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no slave ids in %q", input)
	}
	return ids, nil
}

func parseRange(part string) (int, int, error) {
	first, last, isRange := strings.Cut(part, "-")
	start, err := parseID(first)
	if err != nil {
		return 0, 0, err
	}
	if !isRange {
		return start, start, nil
	}
	end, err := parseID(last)
	if err != nil {
		return 0, 0, err
	}
	if start > end {
		return 0, 0, fmt.Errorf("start of range %d is greater than end %d", start, end)
	}
	return start, end, nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid id: %w", err)
	}
	if id < 1 || id > modbus.MaxUnicastAddress {
		return 0, fmt.Errorf("id out of range: %d", id)
	}
	return id, nil
}

// Run sends fn to every slave in ids in order and reports each outcome.
// A cancelled ctx or a failed transport stops the sweep early.
func Run(ctx context.Context, s Sender, ids []modbus.SlaveAddress, fn modbus.Function, timeout time.Duration, logger *slog.Logger, report func(Result)) error {
	if logger == nil {
		logger = slog.Default()
	}
	for _, id := range ids {
		req, err := modbus.NewRequest(id, fn, timeout)
		if err != nil {
			return err
		}
		resp, err := s.Send(ctx, req)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, modbus.ErrIO) {
			return err
		}
		r := Result{Slave: id, Response: resp, Err: err}
		logger.Debug("sweep result", "slave", id, "present", r.Present(), "err", err)
		report(r)
	}
	return nil
}
