// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtuovertcp

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ffutop/modbus-probe/modbus"
	"github.com/ffutop/modbus-probe/transport"
)

func TestIsAddress(t *testing.T) {
	if !IsAddress("tcp://127.0.0.1:502") {
		t.Error("IsAddress(tcp://...) = false")
	}
	if IsAddress("/dev/ttyUSB0") {
		t.Error("IsAddress(/dev/ttyUSB0) = true")
	}
}

func TestDialListen_Exchange(t *testing.T) {
	l, err := Listen("tcp://127.0.0.1:0", transport.Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	request := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x02, 0xC4, 0x0B}
	response := []byte{0x01, 0x03, 0x04, 0x00, 0x0A, 0x00, 0x0B}

	done := make(chan error, 1)
	go func() {
		tr, err := l.Accept()
		if err != nil {
			done <- err
			return
		}
		defer tr.Close()
		got, err := tr.ReadUntilIdle(time.Second)
		if err != nil {
			done <- err
			return
		}
		if !bytes.Equal(got, request) {
			t.Errorf("server got %X, want %X", got, request)
		}
		done <- tr.Write(response)
	}()

	client, err := Dial(l.Addr().String(), transport.Config{}, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	if err := client.Write(request); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := client.ReadUntilIdle(time.Second)
	if err != nil {
		t.Fatalf("ReadUntilIdle failed: %v", err)
	}
	if !bytes.Equal(got, response) {
		t.Errorf("client got %X, want %X", got, response)
	}
	if err := <-done; err != nil {
		t.Fatalf("server failed: %v", err)
	}
}

func TestDial_Timeout(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	go func() {
		nc, err := l.Accept()
		if err == nil {
			defer nc.Close()
			time.Sleep(300 * time.Millisecond)
		}
	}()

	client, err := Dial(l.Addr().String(), transport.Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	start := time.Now()
	_, err = client.ReadUntilIdle(100 * time.Millisecond)
	if !errors.Is(err, modbus.ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Errorf("timed out early after %v", time.Since(start))
	}
}

func TestDial_Refused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	if _, err := Dial(addr, transport.Config{}, nil); !errors.Is(err, modbus.ErrPortUnavailable) {
		t.Errorf("error = %v, want ErrPortUnavailable", err)
	}
}
