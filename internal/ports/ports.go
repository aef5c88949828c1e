// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package ports enumerates the serial ports of the host.
package ports

import (
	"fmt"
	"io"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Port describes one serial port. USB fields are empty for other ports.
type Port struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// Lister returns the ports present on the host.
type Lister interface {
	List(detailed bool) ([]Port, error)
}

// System lists ports through the operating system.
type System struct{}

func (System) List(detailed bool) ([]Port, error) {
	if !detailed {
		names, err := serial.GetPortsList()
		if err != nil {
			return nil, fmt.Errorf("failed to list serial ports: %w", err)
		}
		ports := make([]Port, len(names))
		for i, name := range names {
			ports[i] = Port{Name: name}
		}
		return ports, nil
	}

	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	ports := make([]Port, 0, len(details))
	for _, d := range details {
		ports = append(ports, Port{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}

// Scan writes one port per line to w, or "No ports found".
func Scan(w io.Writer, lister Lister, detailed bool) error {
	ports, err := lister.List(detailed)
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		_, err := fmt.Fprintln(w, "No ports found")
		return err
	}
	for _, p := range ports {
		line := p.Name
		if detailed && p.IsUSB {
			line = fmt.Sprintf("%s\tUSB %s:%s", p.Name, p.VID, p.PID)
			if p.SerialNumber != "" {
				line += " serial " + p.SerialNumber
			}
			if p.Product != "" {
				line += " " + p.Product
			}
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
