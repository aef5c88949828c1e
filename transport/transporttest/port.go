// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package transporttest provides an in-memory serial line for tests.
package transporttest

import (
	"io"
	"sync"
	"time"
)

// Port is a scripted serial line. Reads block for at most Poll when nothing
// is queued and then return (0, nil), like a serial port with a read timeout.
type Port struct {
	// Poll bounds how long Read waits for data.
	Poll time.Duration
	// Latency delays the chunks returned by Respond.
	Latency time.Duration
	// Respond, if set, is called with every written frame; the returned
	// chunks are queued for reading after Latency.
	Respond func(frame []byte) [][]byte

	rx        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	pending []byte
	written [][]byte
}

// NewPort returns an open Port.
func NewPort(poll time.Duration) *Port {
	return &Port{
		Poll:   poll,
		rx:     make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

// Feed queues chunks for reading.
func (p *Port) Feed(chunks ...[]byte) {
	for _, c := range chunks {
		p.rx <- append([]byte(nil), c...)
	}
}

// FeedAfter queues chunk for reading after d.
func (p *Port) FeedAfter(d time.Duration, chunk []byte) {
	chunk = append([]byte(nil), chunk...)
	time.AfterFunc(d, func() {
		select {
		case p.rx <- chunk:
		case <-p.closed:
		}
	})
}

func (p *Port) deliver(latency time.Duration, chunks [][]byte) {
	time.Sleep(latency)
	for _, c := range chunks {
		select {
		case p.rx <- append([]byte(nil), c...):
		case <-p.closed:
			return
		}
	}
}

// Written returns a copy of every frame written so far.
func (p *Port) Written() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.written))
	copy(out, p.written)
	return out
}

func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.pending) > 0 {
		n := copy(b, p.pending)
		p.pending = p.pending[n:]
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()

	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	timer := time.NewTimer(p.Poll)
	defer timer.Stop()
	select {
	case chunk := <-p.rx:
		n := copy(b, chunk)
		if n < len(chunk) {
			p.mu.Lock()
			p.pending = append(p.pending, chunk[n:]...)
			p.mu.Unlock()
		}
		return n, nil
	case <-timer.C:
		return 0, nil
	case <-p.closed:
		return 0, io.ErrClosedPipe
	}
}

func (p *Port) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	frame := append([]byte(nil), b...)
	p.mu.Lock()
	p.written = append(p.written, frame)
	p.mu.Unlock()

	if p.Respond != nil {
		if chunks := p.Respond(frame); len(chunks) > 0 {
			go p.deliver(p.Latency, chunks)
		}
	}
	return len(b), nil
}

func (p *Port) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

// RS485Port adds RTS control and input flushing to Port.
type RS485Port struct {
	*Port

	mu     sync.Mutex
	rts    []bool
	resets int
}

// NewRS485Port returns an open RS485Port.
func NewRS485Port(poll time.Duration) *RS485Port {
	return &RS485Port{Port: NewPort(poll)}
}

func (p *RS485Port) SetRTS(rts bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rts = append(p.rts, rts)
	return nil
}

// ResetInputBuffer drops everything queued for reading.
func (p *RS485Port) ResetInputBuffer() error {
	p.mu.Lock()
	p.resets++
	p.mu.Unlock()

	p.Port.mu.Lock()
	p.Port.pending = nil
	p.Port.mu.Unlock()
	for {
		select {
		case <-p.Port.rx:
		default:
			return nil
		}
	}
}

// RTS returns the sequence of RTS levels set so far.
func (p *RS485Port) RTS() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.rts...)
}

// Resets returns how often the input buffer was flushed.
func (p *RS485Port) Resets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}
