// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bitfield

import "testing"

func TestGetSetRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		pos  int
		mask uint32
		val  uint32
	}{
		{"low-byte-full", 0, 0xff, 0xab},
		{"high-byte-full", 120, 0xff, 0xcd},
		{"straddles-byte-boundary", 6, 0xfff, 0x123},
		{"single-bit", 55, 1, 1},
		{"22-bit-csize", 48, 0x3fffff, 0x2aaaaa},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf := make([]byte, 16)
			Set(buf, c.pos, c.mask, c.val)

			got := Get(buf, c.pos, c.mask)
			if got != c.val&c.mask {
				t.Errorf("Get(%d, %#x) = %#x, want %#x", c.pos, c.mask, got, c.val&c.mask)
			}
		})
	}
}

func TestBit(t *testing.T) {
	buf := make([]byte, 8)

	if Bit(buf, 10) {
		t.Fatalf("expected bit 10 clear on zeroed buffer")
	}

	Set(buf, 10, 1, 1)

	if !Bit(buf, 10) {
		t.Fatalf("expected bit 10 set after Set")
	}
}

func TestGetU64WideField(t *testing.T) {
	buf := make([]byte, 64)

	SetU64(buf, 448, 0xffffffff, 0xdeadbeef)

	got := GetU64(buf, 448, 0xffffffff)
	if got != 0xdeadbeef {
		t.Errorf("GetU64 = %#x, want 0xdeadbeef", got)
	}
}
