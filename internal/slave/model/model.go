// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

const (
	MaxAddress = 65535

	tableSize = (MaxAddress + 1) * 2
	// Size is the number of bytes backing a DataModel.
	Size = 2 * tableSize
)

// ErrOutOfRange is returned for addresses beyond the register space.
var ErrOutOfRange = errors.New("address range out of bounds")

// TableType represents the type of Modbus data table.
type TableType int

const (
	TableHoldingRegisters TableType = iota
	TableInputRegisters
)

func (t TableType) String() string {
	if t == TableInputRegisters {
		return "input"
	}
	return "holding"
}

// DataModel holds the register tables of a simulated slave. Registers are
// stored big-endian in one flat byte slice, holding registers first, so
// the slice can live in memory or in a mapped file.
type DataModel struct {
	mu   sync.RWMutex
	data []byte
}

// NewDataModel creates a new memory model initialized to zero.
func NewDataModel() *DataModel {
	return &DataModel{data: make([]byte, Size)}
}

// FromBytes wraps data, which must be Size bytes long.
func FromBytes(data []byte) (*DataModel, error) {
	if len(data) != Size {
		return nil, fmt.Errorf("data model needs %d bytes, got %d", Size, len(data))
	}
	return &DataModel{data: data}, nil
}

func (m *DataModel) table(t TableType) []byte {
	if t == TableInputRegisters {
		return m.data[tableSize:]
	}
	return m.data[:tableSize]
}

// Read returns quantity registers of table t starting at address.
func (m *DataModel) Read(t TableType, address, quantity uint16) ([]uint16, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := validateRange(address, quantity); err != nil {
		return nil, err
	}
	table := m.table(t)
	values := make([]uint16, quantity)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(table[(int(address)+i)*2:])
	}
	return values, nil
}

// Write stores values into table t starting at address.
func (m *DataModel) Write(t TableType, address uint16, values ...uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, uint16(len(values))); err != nil {
		return err
	}
	table := m.table(t)
	for i, v := range values {
		binary.BigEndian.PutUint16(table[(int(address)+i)*2:], v)
	}
	return nil
}

func validateRange(address, quantity uint16) error {
	if quantity == 0 {
		return fmt.Errorf("quantity must be greater than 0")
	}
	// address is 0-based.
	if int(address)+int(quantity) > MaxAddress+1 {
		return ErrOutOfRange
	}
	return nil
}
