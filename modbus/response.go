// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import "fmt"

// Response is the decoded answer of a slave. Exactly one of Values and
// Exception is meaningful: Exception is zero for a normal response.
type Response struct {
	SlaveID   SlaveAddress
	Function  FunctionCode
	Values    []uint16
	Exception ExceptionCode
}

// Err returns an *ExceptionError for exception responses and nil otherwise.
func (r Response) Err() error {
	if r.Exception == 0 {
		return nil
	}
	return &ExceptionError{Function: r.Function, Code: r.Exception}
}

func (r Response) String() string {
	if r.Exception != 0 {
		return fmt.Sprintf("Exception(slave: %d, function: %v, code: %s)", r.SlaveID, r.Function, r.Exception)
	}
	return fmt.Sprintf("Ok(slave: %d, function: %v, values: %v)", r.SlaveID, r.Function, r.Values)
}
