// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/ffutop/modbus-probe/internal/slave/model"
)

// MmapStorage implements persistence using memory-mapped files.
//
// Layout:
// - HoldingRegisters: 65536 * 2 bytes (Offset 0)
// - InputRegisters: 65536 * 2 bytes (Offset 131072)
// Registers are big-endian. Total Size: 262144 bytes
type MmapStorage struct {
	path   string
	logger *slog.Logger
	file   *os.File
	data   mmap.MMap
}

// NewMmapStorage creates a new MmapStorage.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{
		path:   path,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger used to report flush failures.
func (ms *MmapStorage) WithLogger(logger *slog.Logger) *MmapStorage {
	ms.logger = logger
	return ms
}

// Load loads the data model by memory-mapping the file.
func (ms *MmapStorage) Load() (*model.DataModel, error) {
	f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open mmap file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(model.Size) {
		if err := f.Truncate(int64(model.Size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize mmap file: %w", err)
		}
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	m, err := model.FromBytes(data)
	if err != nil {
		data.Unmap()
		f.Close()
		return nil, err
	}
	ms.file = f
	ms.data = data
	return m, nil
}

// OnWrite flushes the mapping so writes reach the file immediately.
func (ms *MmapStorage) OnWrite(table model.TableType, address, quantity uint16) {
	if ms.data == nil {
		return
	}
	if err := ms.data.Flush(); err != nil {
		ms.logger.Error("failed to flush mmap", "table", table, "address", address, "quantity", quantity, "err", err)
	}
}

// Close unmaps and closes the file.
func (ms *MmapStorage) Close() error {
	var err error
	if ms.data != nil {
		if e := ms.data.Unmap(); e != nil {
			err = e
		}
		ms.data = nil
	}
	if ms.file != nil {
		if e := ms.file.Close(); e != nil {
			err = e
		}
		ms.file = nil
	}
	return err
}
