// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestNewReadHoldingRegisters_Quantity(t *testing.T) {
	tests := []struct {
		name     string
		address  uint16
		quantity uint16
		wantErr  bool
	}{
		{"Zero", 0, 0, true},
		{"One", 0, 1, false},
		{"Max", 0, 125, false},
		{"TooMany", 0, 126, true},
		{"EndOfAddressSpace", 0xFFFF, 1, false},
		{"Overflow", 0xFFFF, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReadHoldingRegisters(tt.address, tt.quantity)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewReadHoldingRegisters() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRequestParameters) {
				t.Errorf("error = %v, want ErrInvalidRequestParameters", err)
			}
			_, err = NewReadInputRegisters(tt.address, tt.quantity)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewReadInputRegisters() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeRequest(t *testing.T) {
	hr := ReadHoldingRegisters{StartingAddress: 0x1234, Quantity: 0x0002}
	if got := hr.EncodeRequest(); !bytes.Equal(got, []byte{0x12, 0x34, 0x00, 0x02}) {
		t.Errorf("ReadHoldingRegisters data = %X", got)
	}
	wr := WriteSingleRegister{Address: 0x0001, Value: 0xABCD}
	if got := wr.EncodeRequest(); !bytes.Equal(got, []byte{0x00, 0x01, 0xAB, 0xCD}) {
		t.Errorf("WriteSingleRegister data = %X", got)
	}
	if hr.Code() != 0x03 || (ReadInputRegisters{}).Code() != 0x04 || wr.Code() != 0x06 {
		t.Error("unexpected function codes")
	}
}

func TestNewRequest(t *testing.T) {
	read, _ := NewReadHoldingRegisters(0, 2)
	write, _ := NewWriteSingleRegister(0, 1)

	tests := []struct {
		name    string
		slave   SlaveAddress
		fn      Function
		timeout time.Duration
		wantErr bool
	}{
		{"Unicast", 1, read, 200 * time.Millisecond, false},
		{"HighestUnicast", 247, read, time.Second, false},
		{"Reserved", 248, read, time.Second, true},
		{"NilFunction", 1, nil, time.Second, true},
		{"ZeroTimeout", 1, read, 0, true},
		{"BroadcastWrite", 0, write, time.Second, false},
		{"BroadcastRead", 0, read, time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewRequest(tt.slave, tt.fn, tt.timeout)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidRequestParameters) {
					t.Errorf("error = %v, want ErrInvalidRequestParameters", err)
				}
				return
			}
			if req.PDU().FunctionCode != tt.fn.Code() {
				t.Errorf("PDU function = %v, want %v", req.PDU().FunctionCode, tt.fn.Code())
			}
		})
	}
}

func TestResponse_Err(t *testing.T) {
	ok := Response{SlaveID: 1, Function: FuncCodeReadHoldingRegisters, Values: []uint16{1}}
	if ok.Err() != nil {
		t.Errorf("Err() = %v for normal response", ok.Err())
	}

	exc := Response{SlaveID: 1, Function: FuncCodeReadHoldingRegisters, Exception: ExceptionCodeSlaveDeviceBusy}
	var e *ExceptionError
	if !errors.As(exc.Err(), &e) {
		t.Fatalf("Err() = %v, want *ExceptionError", exc.Err())
	}
	if e.Code != ExceptionCodeSlaveDeviceBusy || e.Function != FuncCodeReadHoldingRegisters {
		t.Errorf("unexpected exception %+v", e)
	}
}

func TestExceptionCode_String(t *testing.T) {
	if got := ExceptionCodeIllegalDataAddress.String(); got != "illegal data address" {
		t.Errorf("String() = %q", got)
	}
	if got := ExceptionCode(0x42).String(); got != "unknown exception 0x42" {
		t.Errorf("String() = %q", got)
	}
}

func TestFunctionCode_Exception(t *testing.T) {
	fc := FuncCodeReadHoldingRegisters.Exception()
	if fc != 0x83 || !fc.IsException() || FuncCodeReadHoldingRegisters.IsException() {
		t.Errorf("unexpected exception handling for %v", fc)
	}
}
