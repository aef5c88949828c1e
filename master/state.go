// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import "sync/atomic"

// State of a Master's exchange.
type State int32

const (
	StateIdle State = iota
	StateSending
	StateAwaitingResponse
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSending:
		return "Sending"
	case StateAwaitingResponse:
		return "AwaitingResponse"
	}
	return "Unknown"
}

type stateHolder struct {
	v atomic.Int32
}

func (h *stateHolder) load() State {
	return State(h.v.Load())
}

func (h *stateHolder) store(s State) {
	h.v.Store(int32(s))
}
