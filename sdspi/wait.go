// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sdspi

import "time"

// Retry budgets for the four busy/ready waiter variants (§4.3), calibrated
// per empirical worst case across several consumer cards. These are
// order-of-magnitude hints rather than contractually exact loop counts, per
// spec.md §9; a deadline-based waiter with the same success/failure
// semantics (all-ones byte observed / timeout) is an equally valid
// substitute on platforms with a monotonic clock.
const (
	readyBudget     = 500
	readTokenBudget = 2000
	writeBusyBudget = 1000000

	// eraseTimeout bounds the erase-busy wait by wall clock instead of a
	// poll count: status-erase on some multi-gigabyte cards runs long
	// enough that a fixed loop count either times out too early on a
	// slow bus clock or burns CPU needlessly on a fast one.
	eraseTimeout = 3 * time.Second
)

// waitFor polls the bus reading dummy bytes until an all-ones byte (data
// line released) is observed, or budget polls are exhausted.
func waitFor(bus Bus, budget int) bool {
	for i := 0; i < budget; i++ {
		if exchange(bus) == 0xff {
			return true
		}
	}

	return false
}

// waitReady is the generic ready waiter used before issuing any command and
// after the multi-block write stop token.
func waitReady(bus Bus) bool {
	return waitFor(bus, readyBudget)
}

// waitReadTokenByte polls for the data start token ahead of a read
// data-block transfer. Unlike waitFor, the stop condition is inverted: the
// card fills with all-ones while not yet ready to send the token, so this
// loop continues while it reads 0xff and returns the first non-0xff byte it
// observes (the presumptive token, or a raw payload byte per spec.md §9's
// unambiguous rule), rather than discarding it.
func waitReadTokenByte(bus Bus) (byte, bool) {
	for i := 0; i < readTokenBudget; i++ {
		b := exchange(bus)

		if b != 0xff {
			return b, true
		}
	}

	return 0, false
}

// waitWriteBusy polls the busy phase following an accepted write data
// block.
func waitWriteBusy(bus Bus) bool {
	return waitFor(bus, writeBusyBudget)
}

// waitEraseBusy polls the busy phase following an accepted erase command,
// bounded by eraseTimeout rather than a poll count since erase completion
// time varies by orders of magnitude across card capacities.
func waitEraseBusy(bus Bus) bool {
	deadline := time.Now().Add(eraseTimeout)

	for time.Now().Before(deadline) {
		if exchange(bus) == 0xff {
			return true
		}
	}

	return false
}
