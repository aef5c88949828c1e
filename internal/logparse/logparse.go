// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package logparse decodes bus logs made of "Send:" and "Recv:" lines of
// hex bytes.
package logparse

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ffutop/modbus-probe/modbus"
	"github.com/ffutop/modbus-probe/modbus/crc"
	"github.com/ffutop/modbus-probe/modbus/rtu"
)

// Direction of a logged frame.
type Direction string

const (
	Send Direction = "Send"
	Recv Direction = "Recv"
)

// Entry is one decoded log line.
type Entry struct {
	Line      int
	Direction Direction
	Frame     []byte
}

// String renders the frame in hex followed by what it decodes to.
func (e Entry) String() string {
	return fmt.Sprintf("%-4s % X  (%s)", e.Direction, e.Frame, describe(e.Frame))
}

func describe(frame []byte) string {
	if len(frame) < rtu.MinSize {
		return "too short"
	}
	slave := modbus.SlaveAddress(frame[0])
	fc := modbus.FunctionCode(frame[1])
	status := "crc ok"
	if !crc.Valid(frame) {
		status = "crc mismatch"
	}
	if fc.IsException() && len(frame) == rtu.ExceptionSize {
		fc &= 0x7F
		return fmt.Sprintf("slave %d, %s exception %s, %s", slave, fc, modbus.ExceptionCode(frame[2]), status)
	}
	return fmt.Sprintf("slave %d, %s, %s", slave, fc, status)
}

// Parse reads r line by line. Malformed hex tokens are logged and skipped;
// lines without a known prefix are ignored.
func Parse(r io.Reader, logger *slog.Logger) ([]Entry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var entries []Entry
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())

		var dir Direction
		switch {
		case strings.HasPrefix(text, string(Send)+":"):
			dir = Send
		case strings.HasPrefix(text, string(Recv)+":"):
			dir = Recv
		default:
			continue
		}

		entry := Entry{Line: line, Direction: dir}
		for _, token := range strings.Fields(text[len(dir)+1:]) {
			b, err := decodeByte(token)
			if err != nil {
				logger.Warn("skipping malformed token", "line", line, "token", token, "err", err)
				continue
			}
			entry.Frame = append(entry.Frame, b)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("failed to read log: %w", err)
	}
	return entries, nil
}

func decodeByte(token string) (byte, error) {
	if len(token) != 2 {
		return 0, fmt.Errorf("want two hex digits, got %d characters", len(token))
	}
	b, err := hex.DecodeString(token)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// PrintFile parses the log at path and writes one line per entry to w.
func PrintFile(w io.Writer, path string, logger *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	entries, err := Parse(f, logger)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e); err != nil {
			return err
		}
	}
	return nil
}
