// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/pflag"

	"github.com/ffutop/modbus-probe/internal/config"
	"github.com/ffutop/modbus-probe/internal/logparse"
	"github.com/ffutop/modbus-probe/internal/ports"
	"github.com/ffutop/modbus-probe/internal/slave"
	"github.com/ffutop/modbus-probe/internal/slave/persistence"
	"github.com/ffutop/modbus-probe/internal/sweep"
	"github.com/ffutop/modbus-probe/master"
	"github.com/ffutop/modbus-probe/modbus"
	"github.com/ffutop/modbus-probe/transport"
	"github.com/ffutop/modbus-probe/transport/rtu"
	rtuovertcp "github.com/ffutop/modbus-probe/transport/rtu-over-tcp"
)

func scanFlags(fs *pflag.FlagSet) {
	fs.Bool("detailed", false, "Show USB vendor, product and serial number")
}

func (a *App) scan(ctx context.Context, e *env) error {
	detailed, _ := e.flags.GetBool("detailed")
	e.logger.Info("Scan mode enabled, exiting after listing ports.")
	return ports.Scan(a.Stdout, a.Ports, detailed)
}

func connectFlags(fs *pflag.FlagSet) {
	serialFlags(fs)
	fs.StringP("function", "f", "holding", "Function: holding, input or write")
	fs.IntP("address", "a", 0, "Starting register address")
	fs.IntP("quantity", "q", 2, "Number of registers to read")
	fs.Int("value", 0, "Register value to write")
}

func (a *App) connect(ctx context.Context, e *env) error {
	fn, err := buildFunction(e.cfg.Request)
	if err != nil {
		return err
	}
	addr, err := slaveAddress(e.cfg.Slave)
	if err != nil {
		return err
	}
	req, err := modbus.NewRequest(addr, fn, e.cfg.Serial.Timeout)
	if err != nil {
		return err
	}

	tr, err := dial(e.cfg.Serial, e.logger)
	if err != nil {
		return err
	}
	m := master.New(tr, master.Config{RqstPause: e.cfg.Serial.RqstPause, Logger: e.logger})
	defer m.Close()

	e.logger.Info("sending request", "device", e.cfg.Serial.Device, "slave", addr, "function", fn)
	resp, err := m.Send(ctx, req)
	var exc *modbus.ExceptionError
	if err != nil && !errors.As(err, &exc) {
		return err
	}
	fmt.Fprintf(a.Stdout, "response: %v\n", resp)
	return err
}

func sweepFlags(fs *pflag.FlagSet) {
	connectFlags(fs)
	fs.String("slaves", "1-247", "Slave addresses to query, e.g. 1,2,5-10")
}

func (a *App) sweep(ctx context.Context, e *env) error {
	list, _ := e.flags.GetString("slaves")
	ids, err := sweep.ParseSlaveIDs(list)
	if err != nil {
		return usagef("invalid --slaves: %v", err)
	}
	fn, err := buildFunction(e.cfg.Request)
	if err != nil {
		return err
	}

	tr, err := dial(e.cfg.Serial, e.logger)
	if err != nil {
		return err
	}
	m := master.New(tr, master.Config{RqstPause: e.cfg.Serial.RqstPause, Logger: e.logger})
	defer m.Close()

	e.logger.Info("sweeping bus", "device", e.cfg.Serial.Device, "slaves", len(ids), "function", fn)
	found := 0
	err = sweep.Run(ctx, m, ids, fn, e.cfg.Serial.Timeout, e.logger, func(r sweep.Result) {
		if r.Present() {
			found++
		}
		fmt.Fprintln(a.Stdout, r)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "%d of %d slaves answered\n", found, len(ids))
	return nil
}

func buildFunction(rc config.RequestConfig) (modbus.Function, error) {
	if err := checkRegister("address", rc.Address); err != nil {
		return nil, err
	}
	switch rc.Function {
	case "holding", "read-holding":
		if err := checkRegister("quantity", rc.Quantity); err != nil {
			return nil, err
		}
		return modbus.NewReadHoldingRegisters(uint16(rc.Address), uint16(rc.Quantity))
	case "input", "read-input":
		if err := checkRegister("quantity", rc.Quantity); err != nil {
			return nil, err
		}
		return modbus.NewReadInputRegisters(uint16(rc.Address), uint16(rc.Quantity))
	case "write", "write-single":
		if err := checkRegister("value", rc.Value); err != nil {
			return nil, err
		}
		return modbus.NewWriteSingleRegister(uint16(rc.Address), uint16(rc.Value))
	default:
		return nil, usagef("unknown function %q (want holding, input or write)", rc.Function)
	}
}

func checkRegister(name string, v int) error {
	if v < 0 || v > 0xFFFF {
		return fmt.Errorf("%w: %s %d out of range", modbus.ErrInvalidRequestParameters, name, v)
	}
	return nil
}

func slaveAddress(v int) (modbus.SlaveAddress, error) {
	if v < 0 || v > 0xFF {
		return 0, fmt.Errorf("%w: slave address %d out of range", modbus.ErrInvalidRequestParameters, v)
	}
	return modbus.SlaveAddress(v), nil
}

// dial opens the device for a master, over TCP for tcp:// names.
func dial(cfg config.SerialConfig, logger *slog.Logger) (*transport.Transport, error) {
	if rtuovertcp.IsAddress(cfg.Device) {
		return rtuovertcp.Dial(cfg.Device, networkConfig(cfg), logger)
	}
	return rtu.Open(cfg, logger)
}

func networkConfig(cfg config.SerialConfig) transport.Config {
	return transport.Config{BaudRate: cfg.BaudRate, Idle: cfg.Idle}
}

func parseFlags(fs *pflag.FlagSet) {
	fs.StringP("logfile", "l", "", "Log file of Send:/Recv: lines")
}

func (a *App) parse(ctx context.Context, e *env) error {
	path, _ := e.flags.GetString("logfile")
	if path == "" {
		return usagef("parse needs --logfile")
	}
	e.logger.Info("parsing log file", "path", path)
	return logparse.PrintFile(a.Stdout, path, e.logger)
}

func serveFlags(fs *pflag.FlagSet) {
	serialFlags(fs)
	fs.String("store", "", "Register file to memory-map, registers stay in memory if empty")
}

func (a *App) serve(ctx context.Context, e *env) error {
	addr, err := slaveAddress(e.cfg.Slave)
	if err != nil {
		return err
	}
	if addr.IsBroadcast() || addr > modbus.MaxUnicastAddress {
		return fmt.Errorf("%w: cannot serve as slave %d", modbus.ErrInvalidRequestParameters, addr)
	}

	storage := persistence.Open(e.cfg.Serve.Store)
	if ms, ok := storage.(*persistence.MmapStorage); ok {
		ms.WithLogger(e.logger)
	}
	m, err := storage.Load()
	if err != nil {
		return fmt.Errorf("failed to load registers: %w", err)
	}
	defer storage.Close()

	srv := slave.NewServer(slave.New(m, storage), addr, e.logger)
	if !rtuovertcp.IsAddress(e.cfg.Serial.Device) {
		tr, err := rtu.Open(e.cfg.Serial, e.logger)
		if err != nil {
			return err
		}
		return srv.Serve(ctx, tr)
	}

	l, err := rtuovertcp.Listen(e.cfg.Serial.Device, networkConfig(e.cfg.Serial), e.logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "listening on %s\n", l.Addr())
	return serveNetwork(ctx, l, srv, e.logger)
}

// serveNetwork serves every accepted connection until ctx is cancelled.
func serveNetwork(ctx context.Context, l *rtuovertcp.Listener, srv *slave.Server, logger *slog.Logger) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		l.Close()
	}()

	for {
		tr, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Serve(ctx, tr); err != nil {
				logger.Info("client disconnected", "err", err)
			}
		}()
	}
}
