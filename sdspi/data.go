// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sdspi

// Data block start/stop tokens, spec.md §3.
const (
	tokenStartBlock      = 0xfe // single-block read/write, multi-block read
	tokenStartMultiWrite = 0xfc // multi-block write body
	tokenStopMultiWrite  = 0xfd // multi-block write terminator
)

// Data response token bits (write only), masked with dataResponseMask.
const (
	dataResponseMask     = 0x0e
	dataResponseAccepted = 0x04
	dataResponseCRCError = 0x0a
	dataResponseWrError  = 0x0c
)

// receiveBlock reads one data block of len(buf) bytes into buf, preceded by
// the start token and followed by two (discarded) CRC bytes, per spec.md
// §4.4. It implements the unambiguous rule from spec.md §9 rather than the
// source's ambiguous branch: the first non-idle byte is consumed and not
// stored only if it equals the start token; otherwise it IS the first
// payload byte.
func receiveBlock(bus Bus, buf []byte) bool {
	first, ok := waitReadTokenByte(bus)

	if !ok {
		return false
	}

	i := 0

	if first != tokenStartBlock {
		buf[0] = first
		i = 1
	}

	for ; i < len(buf); i++ {
		buf[i] = exchange(bus)
	}

	// trailing CRC, discarded - no CRC verification on received blocks
	// per spec.md §9.
	exchange(bus)
	exchange(bus)

	return true
}

// transmitSingle writes one 512-byte payload preceded by the single-block
// start token and followed by two dummy CRC bytes, then checks the data
// response token and waits out the write-busy phase, per spec.md §4.4.
func transmitSingle(bus Bus, buf []byte) bool {
	exchangeN(bus, 3)

	bus.Exchange(tokenStartBlock)

	for _, b := range buf {
		bus.Exchange(b)
	}

	bus.Exchange(0xff)
	bus.Exchange(0xff)

	rsp := exchange(bus)

	if rsp&dataResponseMask != dataResponseAccepted {
		return false
	}

	return waitWriteBusy(bus)
}

// transmitMultiple writes n consecutive 512-byte payloads from buf, each
// preceded by the multi-block start token, followed by the stop token and
// the generic ready wait, per spec.md §4.4.
func transmitMultiple(bus Bus, n int, buf []byte) bool {
	exchangeN(bus, 3)

	for s := 0; s < n; s++ {
		bus.Exchange(tokenStartMultiWrite)

		block := buf[s*512 : s*512+512]
		for _, b := range block {
			bus.Exchange(b)
		}

		bus.Exchange(0xff)
		bus.Exchange(0xff)

		rsp := exchange(bus)

		if rsp&dataResponseMask != dataResponseAccepted {
			return false
		}

		if !waitWriteBusy(bus) {
			return false
		}
	}

	bus.Exchange(tokenStopMultiWrite)
	// one byte is always discarded after the stop token before the
	// generic ready wait, mirroring the CMD12 stuff-byte discard.
	exchange(bus)

	return waitReady(bus)
}
