// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

const (
	// MinSize is address + function code + CRC.
	MinSize = 4
	// MaxSize is the largest RTU ADU.
	MaxSize = 256

	// ExceptionSize is address + function code + exception code + CRC.
	ExceptionSize = 5
)
