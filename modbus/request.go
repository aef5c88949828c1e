// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"fmt"
	"time"
)

// Request is one exchange: who to ask, what to ask and how long to wait.
// Use NewRequest; the fields are not meant to be changed afterwards.
type Request struct {
	Slave    SlaveAddress
	Function Function
	Timeout  time.Duration
}

// NewRequest validates the slave address, function and timeout.
func NewRequest(slave SlaveAddress, fn Function, timeout time.Duration) (Request, error) {
	if slave > MaxUnicastAddress {
		return Request{}, fmt.Errorf("%w: slave address '%v' must be between '%v' and '%v'",
			ErrInvalidRequestParameters, slave, 0, MaxUnicastAddress)
	}
	if fn == nil {
		return Request{}, fmt.Errorf("%w: function is nil", ErrInvalidRequestParameters)
	}
	if timeout <= 0 {
		return Request{}, fmt.Errorf("%w: timeout '%v' must be positive", ErrInvalidRequestParameters, timeout)
	}
	if slave.IsBroadcast() && fn.Reads() {
		return Request{}, fmt.Errorf("%w: %v cannot be broadcast", ErrInvalidRequestParameters, fn.Code())
	}
	return Request{Slave: slave, Function: fn, Timeout: timeout}, nil
}

// PDU returns the request protocol data unit.
func (r Request) PDU() ProtocolDataUnit {
	return ProtocolDataUnit{
		FunctionCode: r.Function.Code(),
		Data:         r.Function.EncodeRequest(),
	}
}
