// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package cli implements the modbus-probe command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/ffutop/modbus-probe/internal/config"
	"github.com/ffutop/modbus-probe/internal/ports"
)

// Exit statuses.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

const usage = `Usage: modbus-probe <command> [flags]

Commands:
  scan                    list available serial ports
  connect --port <path>   send one request and print the response
  parse --logfile <path>  pretty-print a log of Send:/Recv: hex lines
  serve --port <path>     answer requests as a simulated slave
  sweep --slaves <list>   send the request to each slave and report who answers

Devices named tcp://host:port carry RTU frames over TCP.
Run 'modbus-probe <command> --help' for the flags of a command.
`

// usageError reports a malformed command line.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }

func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

// App is the command line application.
type App struct {
	Stdout io.Writer
	Stderr io.Writer
	// Ports enumerates serial ports for scan.
	Ports ports.Lister
}

// New returns an App writing to the process's standard streams.
func New() *App {
	return &App{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Ports:  ports.System{},
	}
}

type command struct {
	name  string
	flags func(fs *pflag.FlagSet)
	run   func(a *App, ctx context.Context, env *env) error
}

var commands = []command{
	{name: "scan", flags: scanFlags, run: (*App).scan},
	{name: "connect", flags: connectFlags, run: (*App).connect},
	{name: "parse", flags: parseFlags, run: (*App).parse},
	{name: "serve", flags: serveFlags, run: (*App).serve},
	{name: "sweep", flags: sweepFlags, run: (*App).sweep},
}

// env carries what every command gets after flag parsing.
type env struct {
	flags  *pflag.FlagSet
	cfg    *config.Config
	logger *slog.Logger
}

// Run executes the command line args (without the program name) and
// returns the process exit status.
func (a *App) Run(ctx context.Context, args []string) int {
	err := a.run(ctx, args)
	switch {
	case err == nil, errors.Is(err, pflag.ErrHelp):
		return ExitOK
	case errors.As(err, new(usageError)):
		fmt.Fprintf(a.Stderr, "Error: %v\n\n%s", err, usage)
		return ExitUsage
	default:
		fmt.Fprintf(a.Stderr, "Error: %v\n", err)
		return ExitError
	}
}

func (a *App) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usagef("no command given")
	}
	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(a.Stdout, usage)
		return nil
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		return usagef("unknown command %q", args[0])
	}

	fs := pflag.NewFlagSet(cmd.name, pflag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	configFile := fs.StringP("config", "c", "", "Path to config file")
	commonFlags(fs)
	cmd.flags(fs)

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return usageError{err: err}
	}
	if fs.NArg() > 0 {
		return usagef("unexpected arguments: %v", fs.Args())
	}

	cfg, err := config.LoadConfig(*configFile, fs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, closeLog := setupLogger(cfg.Log, a.Stderr)
	defer closeLog()

	return cmd.run(a, ctx, &env{flags: fs, cfg: cfg, logger: logger})
}

func commonFlags(fs *pflag.FlagSet) {
	fs.BoolP("verbose", "v", false, "Print progress messages")
	fs.String("log-level", "warn", "Log level: debug, info, warn, error")
	fs.String("log-file", "", "Log to this file instead of stderr")
}

func serialFlags(fs *pflag.FlagSet) {
	fs.StringP("port", "p", "/dev/ttyUSB0", "Serial device or tcp://host:port")
	fs.IntP("baud", "b", 19200, "Baud rate")
	fs.Int("data-bits", 8, "Data bits")
	fs.String("parity", "E", "Parity: N, E or O")
	fs.Int("stop-bits", 1, "Stop bits")
	fs.Duration("timeout", 0, "Response timeout (default 200ms)")
	fs.Duration("rqst-pause", 0, "Minimum bus silence between requests")
	fs.Duration("idle", 0, "Silence ending a frame (default 3.5 characters)")
	fs.Bool("rs485", false, "Enable RS485 half-duplex turnaround")
	fs.String("rs485-driver", config.DriverKernel, "RS485 driver: kernel or rts")
	fs.IntP("slave", "s", 1, "Slave address")
}

// setupLogger builds the logger handed to every component. Verbose output
// lowers the level to info unless a lower level was asked for.
func setupLogger(cfg config.LogConfig, stderr io.Writer) (*slog.Logger, func()) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "error":
		opts.Level = slog.LevelError
	}
	if cfg.Verbose && opts.Level.Level() > slog.LevelInfo {
		opts.Level = slog.LevelInfo
	}

	closeFn := func() {}
	out := stderr
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to open log file, falling back to stderr: %v\n", err)
		} else {
			out = f
			closeFn = func() { f.Close() }
		}
	}
	return slog.New(slog.NewTextHandler(out, opts)), closeFn
}
