// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sdspi

// Bus is the byte-level SPI transport collaborator. Implementations drive
// one full-duplex byte exchange per call and the chip-select line; they
// carry no protocol knowledge of their own.
//
// AssertCS and ReleaseCS must leave the clock running for at least one
// trailing dummy byte after ReleaseCS, per the bus ordering guarantee that
// no new transaction may begin until 8 idle clock cycles have elapsed since
// the previous chip-select deassertion.
type Bus interface {
	// Exchange drives out on MOSI while latching the byte seen on MISO,
	// returning it as in. There is no flow control: every Exchange call
	// clocks exactly 8 bits.
	Exchange(out byte) (in byte)

	// AssertCS drives chip-select active (low).
	AssertCS()

	// ReleaseCS drives chip-select inactive (high).
	ReleaseCS()

	// CardPresent reports the board-level card-detect signal.
	CardPresent() bool
}

// exchange writes a single dummy byte (0xFF) and returns what came back.
func exchange(bus Bus) byte {
	return bus.Exchange(0xFF)
}

// exchangeN writes n dummy bytes, discarding the results.
func exchangeN(bus Bus, n int) {
	for i := 0; i < n; i++ {
		bus.Exchange(0xFF)
	}
}
