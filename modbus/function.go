// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"encoding/binary"
	"fmt"
)

// Function is one of the supported requests. The set of implementations is
// closed: ReadHoldingRegisters, ReadInputRegisters and WriteSingleRegister.
type Function interface {
	// Code returns the function code of the request.
	Code() FunctionCode
	// EncodeRequest returns the request PDU data, big-endian.
	EncodeRequest() []byte
	// DecodeResponse parses the data of a normal (non exception) response PDU.
	DecodeResponse(data []byte) ([]uint16, error)
	// Reads reports whether the slave answers with register data.
	Reads() bool

	function()
}

// ReadHoldingRegisters reads Quantity holding registers from StartingAddress.
type ReadHoldingRegisters struct {
	StartingAddress uint16
	Quantity        uint16
}

// ReadInputRegisters reads Quantity input registers from StartingAddress.
type ReadInputRegisters struct {
	StartingAddress uint16
	Quantity        uint16
}

// WriteSingleRegister writes Value to the holding register at Address.
type WriteSingleRegister struct {
	Address uint16
	Value   uint16
}

// NewReadHoldingRegisters validates quantity (1..125) and the address range.
func NewReadHoldingRegisters(startingAddress, quantity uint16) (ReadHoldingRegisters, error) {
	if err := validateRead(startingAddress, quantity); err != nil {
		return ReadHoldingRegisters{}, err
	}
	return ReadHoldingRegisters{StartingAddress: startingAddress, Quantity: quantity}, nil
}

// NewReadInputRegisters validates quantity (1..125) and the address range.
func NewReadInputRegisters(startingAddress, quantity uint16) (ReadInputRegisters, error) {
	if err := validateRead(startingAddress, quantity); err != nil {
		return ReadInputRegisters{}, err
	}
	return ReadInputRegisters{StartingAddress: startingAddress, Quantity: quantity}, nil
}

// NewWriteSingleRegister returns a write of value to the holding register at
// address. It never fails.
func NewWriteSingleRegister(address, value uint16) (WriteSingleRegister, error) {
	return WriteSingleRegister{Address: address, Value: value}, nil
}

func validateRead(startingAddress, quantity uint16) error {
	if quantity < 1 || quantity > MaxReadRegisters {
		return fmt.Errorf("%w: quantity '%v' must be between '%v' and '%v'",
			ErrInvalidRequestParameters, quantity, 1, MaxReadRegisters)
	}
	if int(startingAddress)+int(quantity) > 0x10000 {
		return fmt.Errorf("%w: address range '%v' + '%v' exceeds 0xFFFF",
			ErrInvalidRequestParameters, startingAddress, quantity)
	}
	return nil
}

func (ReadHoldingRegisters) Code() FunctionCode { return FuncCodeReadHoldingRegisters }
func (ReadInputRegisters) Code() FunctionCode   { return FuncCodeReadInputRegisters }
func (WriteSingleRegister) Code() FunctionCode  { return FuncCodeWriteSingleRegister }

func (ReadHoldingRegisters) Reads() bool { return true }
func (ReadInputRegisters) Reads() bool   { return true }
func (WriteSingleRegister) Reads() bool  { return false }

func (ReadHoldingRegisters) function() {}
func (ReadInputRegisters) function()   {}
func (WriteSingleRegister) function()  {}

func (f ReadHoldingRegisters) EncodeRequest() []byte {
	return dataBlock(f.StartingAddress, f.Quantity)
}

func (f ReadInputRegisters) EncodeRequest() []byte {
	return dataBlock(f.StartingAddress, f.Quantity)
}

func (f WriteSingleRegister) EncodeRequest() []byte {
	return dataBlock(f.Address, f.Value)
}

func (f ReadHoldingRegisters) DecodeResponse(data []byte) ([]uint16, error) {
	return decodeRegisters(data, f.Quantity)
}

func (f ReadInputRegisters) DecodeResponse(data []byte) ([]uint16, error) {
	return decodeRegisters(data, f.Quantity)
}

// DecodeResponse checks the echoed address and returns the echoed value.
func (f WriteSingleRegister) DecodeResponse(data []byte) ([]uint16, error) {
	if len(data) != 4 {
		return nil, fmt.Errorf("%w: response data size '%v' does not match expected '%v'", ErrMalformedFrame, len(data), 4)
	}
	addr := binary.BigEndian.Uint16(data)
	if addr != f.Address {
		return nil, fmt.Errorf("%w: response address '%v' does not match request '%v'", ErrMalformedFrame, addr, f.Address)
	}
	return []uint16{binary.BigEndian.Uint16(data[2:])}, nil
}

func (f ReadHoldingRegisters) String() string {
	return fmt.Sprintf("ReadHoldingRegisters{address: %d, quantity: %d}", f.StartingAddress, f.Quantity)
}

func (f ReadInputRegisters) String() string {
	return fmt.Sprintf("ReadInputRegisters{address: %d, quantity: %d}", f.StartingAddress, f.Quantity)
}

func (f WriteSingleRegister) String() string {
	return fmt.Sprintf("WriteSingleRegister{address: %d, value: %d}", f.Address, f.Value)
}

// decodeRegisters parses "byte count, then byte count bytes of big-endian registers".
func decodeRegisters(data []byte, quantity uint16) ([]uint16, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: missing byte count", ErrMalformedFrame)
	}
	count := int(data[0])
	values := data[1:]
	if count != len(values) {
		return nil, fmt.Errorf("%w: byte count '%v' does not match remaining '%v'", ErrMalformedFrame, count, len(values))
	}
	if count%2 != 0 {
		return nil, fmt.Errorf("%w: odd byte count '%v'", ErrMalformedFrame, count)
	}
	if count != 2*int(quantity) {
		return nil, fmt.Errorf("%w: byte count '%v' does not match expected '%v'", ErrMalformedFrame, count, 2*int(quantity))
	}
	regs := make([]uint16, count/2)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(values[2*i:])
	}
	return regs, nil
}

func dataBlock(value ...uint16) []byte {
	data := make([]byte, 2*len(value))
	for i, v := range value {
		binary.BigEndian.PutUint16(data[i*2:], v)
	}
	return data
}
