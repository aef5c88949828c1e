// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtu translates between requests and MODBUS-RTU frames:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes, low byte first
package rtu

import (
	"fmt"

	"github.com/ffutop/modbus-probe/modbus"
	"github.com/ffutop/modbus-probe/modbus/crc"
)

// ApplicationDataUnit is a CRC checked RTU frame split into its parts.
type ApplicationDataUnit struct {
	SlaveID modbus.SlaveAddress
	Pdu     modbus.ProtocolDataUnit
}

// Encode serializes the ADU and appends the CRC.
func (adu *ApplicationDataUnit) Encode() ([]byte, error) {
	length := len(adu.Pdu.Data) + MinSize
	if length > MaxSize {
		return nil, fmt.Errorf("%w: length of data '%v' must not be bigger than '%v'", modbus.ErrInvalidRequestParameters, length, MaxSize)
	}
	raw := make([]byte, 0, length)
	raw = append(raw, byte(adu.SlaveID), byte(adu.Pdu.FunctionCode))
	raw = append(raw, adu.Pdu.Data...)
	return crc.Append(raw), nil
}

// DecodeADU checks length and CRC and splits raw into address and PDU.
// The PDU data aliases raw.
func DecodeADU(raw []byte) (*ApplicationDataUnit, error) {
	length := len(raw)
	if length < MinSize {
		return nil, fmt.Errorf("%w: length '%v' does not meet minimum '%v'", modbus.ErrMalformedFrame, length, MinSize)
	}
	if length > MaxSize {
		return nil, fmt.Errorf("%w: length '%v' exceeds maximum '%v'", modbus.ErrMalformedFrame, length, MaxSize)
	}
	checksum := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if expected := crc.Checksum(raw[:length-2]); checksum != expected {
		return nil, fmt.Errorf("%w: crc '%04X' does not match expected '%04X'", modbus.ErrMalformedFrame, checksum, expected)
	}
	return &ApplicationDataUnit{
		SlaveID: modbus.SlaveAddress(raw[0]),
		Pdu: modbus.ProtocolDataUnit{
			FunctionCode: modbus.FunctionCode(raw[1]),
			Data:         raw[2 : length-2],
		},
	}, nil
}

// Encode builds the request frame for fn addressed to slave.
func Encode(slave modbus.SlaveAddress, fn modbus.Function) ([]byte, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: function is nil", modbus.ErrInvalidRequestParameters)
	}
	adu := &ApplicationDataUnit{
		SlaveID: slave,
		Pdu: modbus.ProtocolDataUnit{
			FunctionCode: fn.Code(),
			Data:         fn.EncodeRequest(),
		},
	}
	return adu.Encode()
}

// Decode parses a response frame to fn. An exception response decodes
// without error; check Response.Err. The slave address is reported, not
// checked.
func Decode(raw []byte, fn modbus.Function) (modbus.Response, error) {
	if fn == nil {
		return modbus.Response{}, fmt.Errorf("%w: function is nil", modbus.ErrInvalidRequestParameters)
	}
	adu, err := DecodeADU(raw)
	if err != nil {
		return modbus.Response{}, err
	}
	resp := modbus.Response{
		SlaveID:  adu.SlaveID,
		Function: fn.Code(),
	}

	switch adu.Pdu.FunctionCode {
	case fn.Code().Exception():
		if len(adu.Pdu.Data) != ExceptionSize-MinSize {
			return modbus.Response{}, fmt.Errorf("%w: exception response data size '%v' does not match expected '%v'",
				modbus.ErrMalformedFrame, len(adu.Pdu.Data), ExceptionSize-MinSize)
		}
		resp.Exception = modbus.ExceptionCode(adu.Pdu.Data[0])
		if resp.Exception == 0 {
			return modbus.Response{}, fmt.Errorf("%w: exception code is zero", modbus.ErrMalformedFrame)
		}
		return resp, nil
	case fn.Code():
	default:
		return modbus.Response{}, fmt.Errorf("%w: response function '%v' does not match request '%v'",
			modbus.ErrUnexpectedFunction, adu.Pdu.FunctionCode, fn.Code())
	}

	values, err := fn.DecodeResponse(adu.Pdu.Data)
	if err != nil {
		return modbus.Response{}, err
	}
	resp.Values = values
	return resp, nil
}

// RequestLength returns the expected total length of a request ADU.
func RequestLength(funcCode modbus.FunctionCode) (int, error) {
	switch funcCode {
	case modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeWriteSingleRegister:
		// [SlaveID, Func, Addr(2), Val(2), CRC(2)]
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported function code: 0x%02X", byte(funcCode))
	}
}
