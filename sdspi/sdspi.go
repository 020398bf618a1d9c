// SD/MMC SPI-mode block driver core
// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package sdspi implements the core of an SD/MMC memory card driver running
// over the card's SPI-mode protocol: power-up, soft reset, card-variant
// identification (legacy MMC, SDSC v1, SDSC v2, SDHC), single/multiple
// sector read and write, sector-range erase, and decoding of the CSD, CID,
// SCR and SD Status registers.
//
// The following specification is adopted:
//   - SD-PL-7.10 - SD Specifications Part 1 Physical Layer Simplified Specification - 7.10 2020/03/25
//
// This package does not own the byte-level SPI transport: callers provide a
// Bus implementation responsible for exchanging individual bytes and for
// driving chip-select. It also does not own card-present detection wiring
// beyond Bus.CardPresent, nor does it format decoded registers for
// diagnostics - both are left to the embedding board/application package.
//
// The driver is synchronous and single-threaded: every exported method
// blocks until completion or an internal retry/timeout budget is exhausted,
// and assumes exclusive use of the Bus for its duration. Concurrent access
// from multiple goroutines requires external serialization by the caller.
package sdspi

import "log"

func logf(format string, args ...interface{}) {
	log.Printf("sdspi: "+format, args...)
}
