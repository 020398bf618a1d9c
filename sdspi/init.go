// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sdspi

const (
	powerUpClockBytes = 2500 // ≥74 clock cycles at 100-400kHz, margin for any practical host clock
	resetRetryBudget  = 256
	probeRetryBudget  = 32
	activationBudget  = 20000
	mmcOpCondBudget   = 20000

	ifCondArg = 0x000001aa
	hcsArg    = 0x40000000
)

// initSequence performs the power-up ramp, soft reset into SPI mode,
// interface-condition probing, activation loop and operating-conditions
// disambiguation described in spec.md §4.5, returning the detected variant.
func initSequence(bus Bus) (variant Variant, err error) {
	// 1. Power-up ramp: chip-select deasserted, ≥74 clocks with MOSI
	// high.
	bus.ReleaseCS()
	exchangeN(bus, powerUpClockBytes)

	// 2. Enter SPI / soft reset.
	bus.AssertCS()

	ok := false

	for i := 0; i < resetRetryBudget; i++ {
		rsp := sendCommand(bus, cmdGoIdleState, 0, crcGoIdleState)

		if rsp&0x80 != 0 {
			continue
		}

		if StatusCode(rsp).IsIdle() {
			ok = true
			break
		}
	}

	if !ok {
		return Unknown, ErrFailure
	}

	// 3. Provisional variant.
	variant = SDSCv2
	waitReady(bus)

	// 4. Interface-condition probe.
	isLegacy := false
	probed := false

	for i := 0; i < probeRetryBudget && !probed; i++ {
		rsp := sendCommand(bus, cmdSendIfCond, ifCondArg, crcSendIfCond)

		if rsp&0x80 != 0 {
			return Unknown, ErrFailure
		}

		if StatusCode(rsp).IsIllegalCommand() {
			variant = SDSCv1
			isLegacy = false
			probed = true
			break
		}

		echo := readExtendedResponse(bus)

		if echo&0xffff == ifCondArg&0xffff {
			probed = true
		}
	}

	if !probed {
		return Unknown, ErrFailure
	}

	// 5. Activation loop.
	var acmd41Arg uint32

	if variant == SDSCv1 {
		acmd41Arg = 0
	} else {
		acmd41Arg = hcsArg
	}

	activated := false

	for i := 0; i < activationBudget; i++ {
		prefix := sendCommand(bus, cmdAppCmd, 0, crcDontCare)

		// A legacy MMC card has no application-command class: it
		// answers CMD55 with the illegal-command bit set (alongside
		// the idle bit, since it has not left idle yet), not merely
		// by dropping the idle bit, per spec.md §8 scenario 3.
		if StatusCode(prefix).IsIllegalCommand() || !StatusCode(prefix).IsIdle() {
			isLegacy = true
			break
		}

		rsp := sendCommand(bus, acmdSDSendOpCond, acmd41Arg, crcDontCare)

		if !StatusCode(rsp).IsIdle() {
			activated = true
			break
		}
	}

	// 6. Legacy MMC fallback.
	if isLegacy {
		variant = MMC

		for i := 0; i < mmcOpCondBudget; i++ {
			rsp := sendCommand(bus, cmdSendOpCondMMC, 0, crcDontCare)

			if !StatusCode(rsp).IsIdle() {
				activated = true
				break
			}
		}
	}

	if !activated {
		return Unknown, ErrFailure
	}

	// 7. Capacity class disambiguation (SDSC-v2 path only).
	if variant == SDSCv2 {
		rsp := sendCommand(bus, cmdReadOCR, 0, crcDontCare)

		if rsp&0x80 == 0 {
			ocr := readExtendedResponse(bus)

			if ocr&(1<<30) != 0 {
				variant = SDHC
			}
		}
	}

	// 8. Fix block size (skipped for high-capacity cards, which operate
	// at a fixed 512 bytes).
	if variant != SDHC {
		rsp := sendCommand(bus, cmdSetBlockLen, 512, crcDontCare)

		if rsp&0x80 != 0 || StatusCode(rsp) != OK {
			return Unknown, ErrFailure
		}
	}

	return variant, nil
}
