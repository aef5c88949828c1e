// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package modbus holds the protocol model shared by the RTU codec, the master
// and the slave simulator: function codes, exception codes, PDUs, requests,
// responses and the error taxonomy.
package modbus

import "fmt"

// FunctionCode is the first byte of a PDU.
type FunctionCode byte

// Function codes supported by this module.
const (
	FuncCodeReadHoldingRegisters FunctionCode = 0x03
	FuncCodeReadInputRegisters   FunctionCode = 0x04
	FuncCodeWriteSingleRegister  FunctionCode = 0x06

	// exceptionBit is set in the function code of an exception response.
	exceptionBit FunctionCode = 0x80
)

// IsException reports whether the exception bit is set.
func (fc FunctionCode) IsException() bool {
	return fc&exceptionBit != 0
}

// Exception returns fc with the exception bit set.
func (fc FunctionCode) Exception() FunctionCode {
	return fc | exceptionBit
}

func (fc FunctionCode) String() string {
	switch fc {
	case FuncCodeReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case FuncCodeReadInputRegisters:
		return "ReadInputRegisters"
	case FuncCodeWriteSingleRegister:
		return "WriteSingleRegister"
	}
	return fmt.Sprintf("0x%02X", byte(fc))
}

// Protocol limits.
const (
	// MaxReadRegisters is the largest quantity a register read may request.
	MaxReadRegisters = 125
	// MaxUnicastAddress is the highest valid unicast slave address.
	MaxUnicastAddress = 247
)

// SlaveAddress identifies a slave on the bus. Zero is broadcast.
type SlaveAddress byte

// BroadcastAddress is received by every slave, none of which answers.
const BroadcastAddress SlaveAddress = 0

// IsBroadcast reports whether a is the broadcast address.
func (a SlaveAddress) IsBroadcast() bool {
	return a == BroadcastAddress
}

// ProtocolDataUnit is the function code plus function specific data,
// without slave address and CRC.
type ProtocolDataUnit struct {
	FunctionCode FunctionCode
	Data         []byte
}
