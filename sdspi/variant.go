// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sdspi

// Variant identifies the card generation detected during Init. It is
// decided exactly once and then consulted by every subsequent operation to
// choose addressing mode and which commands are legal.
type Variant int

const (
	// Unknown marks a Driver that has not completed Init.
	Unknown Variant = iota
	// MMC is a legacy multimedia card: byte-addressed, initialized via
	// CMD1 (SEND_OP_COND), no interface-condition or ACMD41 support.
	MMC
	// SDSCv1 is a standard-capacity SD card without CMD8 support,
	// byte-addressed, initialized via ACMD41 with a zero argument.
	SDSCv1
	// SDSCv2 is a standard-capacity SD card supporting CMD8,
	// byte-addressed.
	SDSCv2
	// SDHC is a high-capacity (or extended-capacity) SD card,
	// sector-addressed, fixed 512-byte blocks.
	SDHC
)

// String returns a short human-readable name for the variant.
func (v Variant) String() string {
	switch v {
	case MMC:
		return "MMC"
	case SDSCv1:
		return "SDSC-v1"
	case SDSCv2:
		return "SDSC-v2"
	case SDHC:
		return "SDHC"
	default:
		return "unknown"
	}
}

// sectorAddressed reports whether the card expects addresses on the wire to
// be sector indices (true) or byte offsets (false).
func (v Variant) sectorAddressed() bool {
	return v == SDHC
}

// wireAddress converts a sector index into the address value to place in a
// command argument, per spec.md §3's invariant: sector index iff
// high-capacity, else sector index shifted left by 9 (×512).
func (v Variant) wireAddress(sector uint32) uint32 {
	if v.sectorAddressed() {
		return sector
	}

	return sector << 9
}
