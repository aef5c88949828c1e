// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package slave simulates a MODBUS-RTU slave backed by a register model.
package slave

import (
	"encoding/binary"

	"github.com/ffutop/modbus-probe/internal/slave/model"
	"github.com/ffutop/modbus-probe/internal/slave/persistence"
	"github.com/ffutop/modbus-probe/modbus"
)

// Slave implements the Modbus protocol logic on top of a DataModel.
type Slave struct {
	model   *model.DataModel
	storage persistence.Storage
}

// New creates a Slave. storage may be nil when writes need no hook.
func New(m *model.DataModel, storage persistence.Storage) *Slave {
	return &Slave{model: m, storage: storage}
}

// Process executes the Modbus Function Code against the memory model.
func (s *Slave) Process(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	switch req.FunctionCode {
	case modbus.FuncCodeReadHoldingRegisters:
		return s.handleReadRegisters(req, model.TableHoldingRegisters)
	case modbus.FuncCodeReadInputRegisters:
		return s.handleReadRegisters(req, model.TableInputRegisters)
	case modbus.FuncCodeWriteSingleRegister:
		return s.handleWriteSingleRegister(req)
	default:
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalFunction)
	}
}

func (s *Slave) handleReadRegisters(req modbus.ProtocolDataUnit, table model.TableType) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	quantity := binary.BigEndian.Uint16(req.Data[2:4])

	if quantity < 1 || quantity > modbus.MaxReadRegisters {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}

	values, err := s.model.Read(table, address, quantity)
	if err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}

	respData := make([]byte, 1+2*len(values))
	respData[0] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(respData[1+2*i:], v)
	}

	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         respData,
	}
}

func (s *Slave) handleWriteSingleRegister(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if len(req.Data) != 4 {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])

	if err := s.model.Write(model.TableHoldingRegisters, address, value); err != nil {
		return exception(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	}
	if s.storage != nil {
		s.storage.OnWrite(model.TableHoldingRegisters, address, 1)
	}

	// Echo the request
	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         append([]byte(nil), req.Data...),
	}
}

func exception(funcCode modbus.FunctionCode, code modbus.ExceptionCode) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{
		FunctionCode: funcCode.Exception(),
		Data:         []byte{byte(code)},
	}
}
