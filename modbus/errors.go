// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"errors"
	"fmt"
)

// Errors are wrapped with context by the layer that detects them; classify
// them with errors.Is.
var (
	ErrPortUnavailable          = errors.New("modbus: port unavailable")
	ErrIO                       = errors.New("modbus: i/o error")
	ErrTimeout                  = errors.New("modbus: request timed out")
	ErrMalformedFrame           = errors.New("modbus: malformed frame")
	ErrUnexpectedFunction       = errors.New("modbus: unexpected function code")
	ErrAddressMismatch          = errors.New("modbus: slave address mismatch")
	ErrInvalidRequestParameters = errors.New("modbus: invalid request parameters")
)

// ExceptionCode is the single data byte of an exception response.
type ExceptionCode byte

const (
	ExceptionCodeIllegalFunction                    ExceptionCode = 0x01
	ExceptionCodeIllegalDataAddress                 ExceptionCode = 0x02
	ExceptionCodeIllegalDataValue                   ExceptionCode = 0x03
	ExceptionCodeSlaveDeviceFailure                 ExceptionCode = 0x04
	ExceptionCodeAcknowledge                        ExceptionCode = 0x05
	ExceptionCodeSlaveDeviceBusy                    ExceptionCode = 0x06
	ExceptionCodeMemoryParityError                  ExceptionCode = 0x08
	ExceptionCodeGatewayPathUnavailable             ExceptionCode = 0x0A
	ExceptionCodeGatewayTargetDeviceFailedToRespond ExceptionCode = 0x0B
)

func (c ExceptionCode) String() string {
	switch c {
	case ExceptionCodeIllegalFunction:
		return "illegal function"
	case ExceptionCodeIllegalDataAddress:
		return "illegal data address"
	case ExceptionCodeIllegalDataValue:
		return "illegal data value"
	case ExceptionCodeSlaveDeviceFailure:
		return "slave device failure"
	case ExceptionCodeAcknowledge:
		return "acknowledge"
	case ExceptionCodeSlaveDeviceBusy:
		return "slave device busy"
	case ExceptionCodeMemoryParityError:
		return "memory parity error"
	case ExceptionCodeGatewayPathUnavailable:
		return "gateway path unavailable"
	case ExceptionCodeGatewayTargetDeviceFailedToRespond:
		return "gateway target device failed to respond"
	}
	return fmt.Sprintf("unknown exception 0x%02X", byte(c))
}

// ExceptionError is returned when a slave answers with an exception response.
type ExceptionError struct {
	Function FunctionCode
	Code     ExceptionCode
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("modbus: exception '%v' (%s), function '%v'", byte(e.Code), e.Code, e.Function)
}
