// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sdspi

import "errors"

// StatusCode wraps the raw short-response (R1) byte returned by the card.
// Bit 7 is always zero on a valid response; the caller-visible bits are
// named below following SD-PL-7.10's R1 response field.
type StatusCode uint8

// Short-response (R1) bit positions.
const (
	statusInIdleState     StatusCode = 1 << 0
	statusEraseReset      StatusCode = 1 << 1
	statusIllegalCommand  StatusCode = 1 << 2
	statusCommandCRCError StatusCode = 1 << 3
	statusEraseSeqError   StatusCode = 1 << 4
	statusAddressError    StatusCode = 1 << 5
	statusParameterError  StatusCode = 1 << 6
)

// OK is the zero status: no error bits set.
const OK StatusCode = 0

// Error implements the error interface so a StatusCode can be returned and
// compared directly as an error.
func (s StatusCode) Error() string {
	if s == OK {
		return "sdspi: ok"
	}

	msg := "sdspi:"

	if s&statusInIdleState != 0 {
		msg += " in idle state;"
	}
	if s&statusEraseReset != 0 {
		msg += " erase reset;"
	}
	if s&statusIllegalCommand != 0 {
		msg += " illegal command;"
	}
	if s&statusCommandCRCError != 0 {
		msg += " command CRC error;"
	}
	if s&statusEraseSeqError != 0 {
		msg += " erase sequence error;"
	}
	if s&statusAddressError != 0 {
		msg += " address error;"
	}
	if s&statusParameterError != 0 {
		msg += " parameter error;"
	}

	return msg
}

// IsIdle reports whether the "in idle state" bit is set. This bit is
// expected and transient during initialization; it is only treated as an
// error outside of that window.
func (s StatusCode) IsIdle() bool {
	return s&statusInIdleState != 0
}

// IsIllegalCommand reports whether the card rejected the command as
// unsupported for its current variant/state.
func (s StatusCode) IsIllegalCommand() bool {
	return s&statusIllegalCommand != 0
}

// ErrFailure is the synthetic catch-all for waiter timeouts, a missing or
// mismatched interface-condition echo, a missing read data token, and
// rejected write data responses - none of which are representable as an R1
// bit.
var ErrFailure = errors.New("sdspi: operation failed")

// ErrNoCard is returned when an operation is attempted with no card
// detected on the bus.
var ErrNoCard = errors.New("sdspi: no card present")

// ErrNotInitialized is returned when a block operation is attempted before
// Init has completed successfully.
var ErrNotInitialized = errors.New("sdspi: driver not initialized")
