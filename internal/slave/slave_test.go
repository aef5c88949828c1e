// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"bytes"
	"testing"

	"github.com/ffutop/modbus-probe/internal/slave/model"
	"github.com/ffutop/modbus-probe/modbus"
)

type recordingStorage struct {
	writes int
}

func (r *recordingStorage) Load() (*model.DataModel, error) { return model.NewDataModel(), nil }

func (r *recordingStorage) OnWrite(model.TableType, uint16, uint16) { r.writes++ }

func (r *recordingStorage) Close() error { return nil }

func TestSlave_Process(t *testing.T) {
	m := model.NewDataModel()
	m.Write(model.TableHoldingRegisters, 0, 0x000A, 0x000B)
	m.Write(model.TableInputRegisters, 5, 0x1234)
	s := New(m, nil)

	tests := []struct {
		name string
		req  modbus.ProtocolDataUnit
		want modbus.ProtocolDataUnit
	}{
		{
			name: "read holding",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x02}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x04, 0x00, 0x0A, 0x00, 0x0B}},
		},
		{
			name: "read input",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x04, Data: []byte{0x00, 0x05, 0x00, 0x01}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x04, Data: []byte{0x02, 0x12, 0x34}},
		},
		{
			name: "write single register",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x06, Data: []byte{0x00, 0x10, 0xBE, 0xEF}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x06, Data: []byte{0x00, 0x10, 0xBE, 0xEF}},
		},
		{
			name: "quantity zero",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x00}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x83, Data: []byte{0x03}},
		},
		{
			name: "quantity too large",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x04, Data: []byte{0x00, 0x00, 0x00, 0x7E}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x84, Data: []byte{0x03}},
		},
		{
			name: "address overflow",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0xFF, 0xFF, 0x00, 0x02}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x83, Data: []byte{0x02}},
		},
		{
			name: "short request",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x06, Data: []byte{0x00}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x86, Data: []byte{0x03}},
		},
		{
			name: "unsupported function",
			req:  modbus.ProtocolDataUnit{FunctionCode: 0x10, Data: []byte{0x00, 0x00}},
			want: modbus.ProtocolDataUnit{FunctionCode: 0x90, Data: []byte{0x01}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Process(tt.req)
			if got.FunctionCode != tt.want.FunctionCode || !bytes.Equal(got.Data, tt.want.Data) {
				t.Errorf("Process() = %02X % X, want %02X % X", byte(got.FunctionCode), got.Data, byte(tt.want.FunctionCode), tt.want.Data)
			}
		})
	}

	got, _ := m.Read(model.TableHoldingRegisters, 0x10, 1)
	if got[0] != 0xBEEF {
		t.Errorf("register 0x10 = %04X after write, want BEEF", got[0])
	}
}

func TestSlave_WriteHook(t *testing.T) {
	storage := &recordingStorage{}
	s := New(model.NewDataModel(), storage)

	s.Process(modbus.ProtocolDataUnit{FunctionCode: 0x06, Data: []byte{0x00, 0x01, 0x00, 0x02}})
	s.Process(modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x01, 0x00, 0x01}})
	if storage.writes != 1 {
		t.Errorf("OnWrite called %d times, want 1", storage.writes)
	}
}
