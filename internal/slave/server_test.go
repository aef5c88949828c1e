// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ffutop/modbus-probe/internal/slave/model"
	"github.com/ffutop/modbus-probe/master"
	"github.com/ffutop/modbus-probe/modbus"
	"github.com/ffutop/modbus-probe/modbus/crc"
	"github.com/ffutop/modbus-probe/transport"
	"github.com/ffutop/modbus-probe/transport/transporttest"
)

func newTestServer(address modbus.SlaveAddress) (*Server, *model.DataModel) {
	m := model.NewDataModel()
	m.Write(model.TableHoldingRegisters, 0, 0x000A, 0x000B)
	srv := NewServer(New(m, nil), address, nil)
	srv.poll = 20 * time.Millisecond
	return srv, m
}

func TestServer_HandleFrame(t *testing.T) {
	srv, _ := newTestServer(1)

	tests := []struct {
		name  string
		frame []byte
		want  []byte
	}{
		{
			name:  "read holding",
			frame: crc.Append([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02}),
			want:  crc.Append([]byte{0x01, 0x03, 0x04, 0x00, 0x0A, 0x00, 0x0B}),
		},
		{
			name:  "exception",
			frame: crc.Append([]byte{0x01, 0x03, 0xFF, 0xFF, 0x00, 0x02}),
			want:  crc.Append([]byte{0x01, 0x83, 0x02}),
		},
		{
			name:  "illegal function",
			frame: crc.Append([]byte{0x01, 0x01, 0x00, 0x00, 0x00, 0x08}),
			want:  crc.Append([]byte{0x01, 0x81, 0x01}),
		},
		{
			name:  "other slave",
			frame: crc.Append([]byte{0x02, 0x03, 0x00, 0x00, 0x00, 0x02}),
		},
		{
			name:  "broadcast write",
			frame: crc.Append([]byte{0x00, 0x06, 0x00, 0x20, 0x00, 0x01}),
		},
		{
			name:  "bad crc",
			frame: []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02, 0x00, 0x00},
		},
		{
			name:  "bad length",
			frame: crc.Append([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02, 0x00}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := srv.handleFrame(tt.frame)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("handleFrame() = % X, want % X", got, tt.want)
			}
		})
	}

	values, _ := srv.slave.model.Read(model.TableHoldingRegisters, 0x20, 1)
	if values[0] != 1 {
		t.Errorf("broadcast write not applied, register = %d", values[0])
	}
}

func TestServer_Serve(t *testing.T) {
	srv, _ := newTestServer(1)
	port := transporttest.NewPort(2 * time.Millisecond)
	tr := transport.New(port, transport.Config{BaudRate: 19200, Idle: 5 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx, tr) }()

	port.Feed(crc.Append([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02}))

	want := crc.Append([]byte{0x01, 0x03, 0x04, 0x00, 0x0A, 0x00, 0x0B})
	deadline := time.Now().Add(time.Second)
	for len(port.Written()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if written := port.Written(); len(written) != 1 || !bytes.Equal(written[0], want) {
		t.Errorf("Response mismatch.\nWant: %X\nGot:  %X", want, written)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Serve returned %v after cancel, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServer_ServeTransportFailure(t *testing.T) {
	srv, _ := newTestServer(1)
	port := transporttest.NewPort(2 * time.Millisecond)
	tr := transport.New(port, transport.Config{BaudRate: 19200}, nil)
	port.Close()

	err := srv.Serve(context.Background(), tr)
	if !errors.Is(err, modbus.ErrIO) {
		t.Errorf("Serve error = %v, want ErrIO", err)
	}
}

// TestMasterAgainstSlave runs the master over a line answered by the
// simulated slave.
func TestMasterAgainstSlave(t *testing.T) {
	srv, _ := newTestServer(1)
	port := transporttest.NewPort(2 * time.Millisecond)
	port.Latency = 2 * time.Millisecond
	port.Respond = func(frame []byte) [][]byte {
		if resp := srv.handleFrame(frame); resp != nil {
			return [][]byte{resp}
		}
		return nil
	}
	m := master.New(transport.New(port, transport.Config{BaudRate: 19200, Idle: 5 * time.Millisecond}, nil), master.Config{})
	defer m.Close()
	ctx := context.Background()

	wfn, _ := modbus.NewWriteSingleRegister(0x0001, 0x00FF)
	write, _ := modbus.NewRequest(1, wfn, 200*time.Millisecond)
	if resp, err := m.Send(ctx, write); err != nil || len(resp.Values) != 1 || resp.Values[0] != 0x00FF {
		t.Fatalf("write: resp = %v, err = %v", resp, err)
	}

	fn, _ := modbus.NewReadHoldingRegisters(0x0000, 2)
	read, _ := modbus.NewRequest(1, fn, 200*time.Millisecond)
	resp, err := m.Send(ctx, read)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(resp.Values) != 2 || resp.Values[0] != 0x000A || resp.Values[1] != 0x00FF {
		t.Errorf("values = %v, want [10 255]", resp.Values)
	}

	fn, _ = modbus.NewReadHoldingRegisters(0xFFFF, 1)
	read, _ = modbus.NewRequest(1, fn, 200*time.Millisecond)
	if _, err := m.Send(ctx, read); err != nil {
		t.Fatalf("read of last register failed: %v", err)
	}

	other, _ := modbus.NewRequest(7, fn, 50*time.Millisecond)
	if _, err := m.Send(ctx, other); !errors.Is(err, modbus.ErrTimeout) {
		t.Errorf("request to absent slave: error = %v, want ErrTimeout", err)
	}
}
