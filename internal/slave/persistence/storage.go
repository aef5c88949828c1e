// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package persistence keeps the register tables of a simulated slave.
package persistence

import (
	"github.com/ffutop/modbus-probe/internal/slave/model"
)

// Storage defines the interface for persisting the slave data model.
type Storage interface {
	// Load returns the data model, creating an empty one if no data exists.
	Load() (*model.DataModel, error)

	// OnWrite is a hook called whenever registers are modified.
	OnWrite(table model.TableType, address, quantity uint16)

	// Close releases the storage. The model returned by Load must not be
	// used afterwards.
	Close() error
}

// Open selects a storage by path. An empty path keeps registers in memory
// only, anything else is memory-mapped from that file.
func Open(path string) Storage {
	if path == "" {
		return NewMemoryStorage()
	}
	return NewMmapStorage(path)
}
