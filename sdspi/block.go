// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sdspi

// readSector performs a single-block read at sector, composing the framer,
// waiter and data transport per spec.md §4.6.
func readSector(bus Bus, variant Variant, sector uint32, buf []byte) error {
	bus.AssertCS()
	defer bus.ReleaseCS()

	if !waitReady(bus) {
		return ErrFailure
	}

	rsp := sendCommand(bus, cmdReadSingleBlock, variant.wireAddress(sector), crcDontCare)

	if rsp&0x80 != 0 || StatusCode(rsp) != OK {
		return StatusCode(rsp)
	}

	if !receiveBlock(bus, buf) {
		return ErrFailure
	}

	return nil
}

// readSectors performs an open-ended multi-block read terminated by
// stop-transmission, per spec.md §4.6. No block count is pre-declared.
func readSectors(bus Bus, variant Variant, sector uint32, buf []byte, n int) error {
	bus.AssertCS()
	defer bus.ReleaseCS()

	if !waitReady(bus) {
		return ErrFailure
	}

	rsp := sendCommand(bus, cmdReadMultipleBlock, variant.wireAddress(sector), crcDontCare)

	if rsp&0x80 != 0 || StatusCode(rsp) != OK {
		return StatusCode(rsp)
	}

	for i := 0; i < n; i++ {
		if !receiveBlock(bus, buf[i*512:i*512+512]) {
			sendCommand(bus, cmdStopTransmission, 0, crcDontCare)
			return ErrFailure
		}
	}

	sendCommand(bus, cmdStopTransmission, 0, crcDontCare)

	return nil
}

// writeSector performs a single-block write at sector, per spec.md §4.6.
func writeSector(bus Bus, variant Variant, sector uint32, buf []byte) error {
	bus.AssertCS()
	defer bus.ReleaseCS()

	if !waitReady(bus) {
		return ErrFailure
	}

	rsp := sendCommand(bus, cmdWriteBlock, variant.wireAddress(sector), crcDontCare)

	if rsp&0x80 != 0 || StatusCode(rsp) != OK {
		return StatusCode(rsp)
	}

	if !transmitSingle(bus, buf) {
		return ErrFailure
	}

	return nil
}

// writeSectors performs a multi-block write of n consecutive sectors
// starting at sector, pre-declaring the block count via ACMD23 unless the
// variant is legacy MMC, per spec.md §4.6.
func writeSectors(bus Bus, variant Variant, sector uint32, buf []byte, n int) error {
	bus.AssertCS()
	defer bus.ReleaseCS()

	if !waitReady(bus) {
		return ErrFailure
	}

	if variant != MMC {
		prefix, rsp := sendAppCommand(bus, acmdSetWrBlkEraseCount, uint32(n))

		if prefix&0x80 != 0 || rsp&0x80 != 0 || StatusCode(rsp) != OK {
			return ErrFailure
		}
	}

	rsp := sendCommand(bus, cmdWriteMultipleBlock, variant.wireAddress(sector), crcDontCare)

	if rsp&0x80 != 0 || StatusCode(rsp) != OK {
		return StatusCode(rsp)
	}

	if !transmitMultiple(bus, n, buf) {
		return ErrFailure
	}

	return nil
}

// eraseSectors erases the sector range [from, to], illegal on legacy MMC
// cards, per spec.md §4.6.
func eraseSectors(bus Bus, variant Variant, from, to uint32) error {
	if variant == MMC {
		return StatusCode(1 << 2) // illegal command, no bus activity
	}

	bus.AssertCS()
	defer bus.ReleaseCS()

	if !waitReady(bus) {
		return ErrFailure
	}

	rsp := sendCommand(bus, cmdEraseWrBlkStart, variant.wireAddress(from), crcDontCare)

	if rsp&0x80 != 0 || StatusCode(rsp) != OK {
		return StatusCode(rsp)
	}

	rsp = sendCommand(bus, cmdEraseWrBlkEnd, variant.wireAddress(to), crcDontCare)

	if rsp&0x80 != 0 || StatusCode(rsp) != OK {
		return StatusCode(rsp)
	}

	rsp = sendCommand(bus, cmdErase, 0, crcDontCare)

	if rsp&0x80 != 0 || StatusCode(rsp) != OK {
		return StatusCode(rsp)
	}

	if !waitEraseBusy(bus) {
		return ErrFailure
	}

	return nil
}

// readRegister reads a data block of the register's exact size using the
// same start-token protocol as block reads, per spec.md §4.7/§4.8.
func readRegister(bus Bus, cmd uint32, arg uint32, app bool, size int) ([]byte, error) {
	bus.AssertCS()
	defer bus.ReleaseCS()

	if !waitReady(bus) {
		return nil, ErrFailure
	}

	var rsp byte

	if app {
		prefix, r := sendAppCommand(bus, cmd, arg)

		if prefix&0x80 != 0 {
			return nil, ErrFailure
		}

		rsp = r
	} else {
		rsp = sendCommand(bus, cmd, arg, crcDontCare)
	}

	if rsp&0x80 != 0 || StatusCode(rsp) != OK {
		return nil, StatusCode(rsp)
	}

	buf := make([]byte, size)

	if !receiveBlock(bus, buf) {
		return nil, ErrFailure
	}

	return buf, nil
}
