// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sdspi

import (
	"bytes"
	"testing"

	"github.com/usbarmory/sdspi/internal/simcard"
)

func newDriver(variant simcard.Variant, sectors uint32) (*Driver, *simcard.Card) {
	card := simcard.New(variant, sectors)
	return &Driver{Bus: card}, card
}

func TestInitColdSDHC(t *testing.T) {
	d, _ := newDriver(simcard.SDHC, 1<<20)

	if err := d.Init(); err != nil {
		t.Fatalf("Init() = %v, want nil", err)
	}

	info, err := d.GetCardInfo()
	if err != nil {
		t.Fatalf("GetCardInfo() = %v, want nil", err)
	}

	if info.Variant != SDHC {
		t.Errorf("Variant = %v, want SDHC", info.Variant)
	}

	if !info.HasSCR {
		t.Errorf("expected SCR to be read for SDHC card")
	}

	if info.CapacityKiB == 0 {
		t.Errorf("expected non-zero capacity")
	}
}

func TestInitColdSDSCv1(t *testing.T) {
	d, _ := newDriver(simcard.SDSCv1, 1<<16)

	if err := d.Init(); err != nil {
		t.Fatalf("Init() = %v, want nil", err)
	}

	info, err := d.GetCardInfo()
	if err != nil {
		t.Fatalf("GetCardInfo() = %v, want nil", err)
	}

	if info.Variant != SDSCv1 {
		t.Errorf("Variant = %v, want SDSC-v1", info.Variant)
	}
}

func TestInitColdMMC(t *testing.T) {
	d, _ := newDriver(simcard.MMC, 1<<16)

	if err := d.Init(); err != nil {
		t.Fatalf("Init() = %v, want nil", err)
	}

	info, err := d.GetCardInfo()
	if err != nil {
		t.Fatalf("GetCardInfo() = %v, want nil", err)
	}

	if info.Variant != MMC {
		t.Errorf("Variant = %v, want MMC", info.Variant)
	}

	if info.HasSCR {
		t.Errorf("MMC has no SCR, HasSCR should be false")
	}

	if _, err := d.GetStatus(); err == nil {
		t.Errorf("GetStatus() on MMC should fail, got nil error")
	}
}

func TestInitNoCard(t *testing.T) {
	d, card := newDriver(simcard.SDHC, 1024)
	card.Present = false

	if err := d.Init(); err != ErrNoCard {
		t.Fatalf("Init() = %v, want ErrNoCard", err)
	}
}

func TestOperationsBeforeInit(t *testing.T) {
	d, _ := newDriver(simcard.SDHC, 1024)

	buf := make([]byte, 512)

	if err := d.ReadSector(0, buf); err != ErrNotInitialized {
		t.Errorf("ReadSector before Init = %v, want ErrNotInitialized", err)
	}

	if err := d.WriteSector(0, buf); err != ErrNotInitialized {
		t.Errorf("WriteSector before Init = %v, want ErrNotInitialized", err)
	}

	if err := d.EraseSectors(0, 1); err != ErrNotInitialized {
		t.Errorf("EraseSectors before Init = %v, want ErrNotInitialized", err)
	}
}

func TestWriteReadRoundTripSDHC(t *testing.T) {
	d, _ := newDriver(simcard.SDHC, 1024)

	if err := d.Init(); err != nil {
		t.Fatalf("Init() = %v", err)
	}

	want := bytes.Repeat([]byte{0xa5}, 512)

	if err := d.WriteSector(42, want); err != nil {
		t.Fatalf("WriteSector() = %v", err)
	}

	got := make([]byte, 512)

	if err := d.ReadSector(42, got); err != nil {
		t.Fatalf("ReadSector() = %v", err)
	}

	if !bytes.Equal(got, want) {
		t.Errorf("round-trip mismatch: got %x, want %x", got[:8], want[:8])
	}
}

func TestWriteReadFirstAndLastSector(t *testing.T) {
	d, _ := newDriver(simcard.SDHC, 16)

	if err := d.Init(); err != nil {
		t.Fatalf("Init() = %v", err)
	}

	for _, sector := range []uint32{0, 15} {
		want := bytes.Repeat([]byte{byte(sector + 1)}, 512)

		if err := d.WriteSector(sector, want); err != nil {
			t.Fatalf("WriteSector(%d) = %v", sector, err)
		}

		got := make([]byte, 512)

		if err := d.ReadSector(sector, got); err != nil {
			t.Fatalf("ReadSector(%d) = %v", sector, err)
		}

		if !bytes.Equal(got, want) {
			t.Errorf("sector %d round-trip mismatch", sector)
		}
	}
}

func TestMultiWriteMultiReadMMC(t *testing.T) {
	d, _ := newDriver(simcard.MMC, 64)

	if err := d.Init(); err != nil {
		t.Fatalf("Init() = %v", err)
	}

	const n = 4

	want := make([]byte, n*512)
	for i := range want {
		want[i] = byte(i)
	}

	if err := d.WriteSectors(4, want, n); err != nil {
		t.Fatalf("WriteSectors() = %v", err)
	}

	got := make([]byte, n*512)

	if err := d.ReadSectors(4, got, n); err != nil {
		t.Fatalf("ReadSectors() = %v", err)
	}

	if !bytes.Equal(got, want) {
		t.Errorf("multi-block round-trip mismatch")
	}
}

func TestMultiWriteMultiReadSDSCv2(t *testing.T) {
	d, _ := newDriver(simcard.SDSCv2, 64)

	if err := d.Init(); err != nil {
		t.Fatalf("Init() = %v", err)
	}

	const n = 3

	want := bytes.Repeat([]byte{0x7e}, n*512)

	if err := d.WriteSectors(0, want, n); err != nil {
		t.Fatalf("WriteSectors() = %v", err)
	}

	got := make([]byte, n*512)

	if err := d.ReadSectors(0, got, n); err != nil {
		t.Fatalf("ReadSectors() = %v", err)
	}

	if !bytes.Equal(got, want) {
		t.Errorf("multi-block round-trip mismatch")
	}
}

func TestEraseRangeSDSCv2(t *testing.T) {
	d, _ := newDriver(simcard.SDSCv2, 64)

	if err := d.Init(); err != nil {
		t.Fatalf("Init() = %v", err)
	}

	buf := bytes.Repeat([]byte{0xff}, 3*512)

	if err := d.WriteSectors(2, buf, 3); err != nil {
		t.Fatalf("WriteSectors() = %v", err)
	}

	if err := d.EraseSectors(2, 4); err != nil {
		t.Fatalf("EraseSectors() = %v", err)
	}

	erased := make([]byte, 512)

	for sector := uint32(2); sector <= 4; sector++ {
		if err := d.ReadSector(sector, erased); err != nil {
			t.Fatalf("ReadSector(%d) = %v", sector, err)
		}

		if !bytes.Equal(erased, make([]byte, 512)) {
			t.Errorf("sector %d not erased", sector)
		}
	}
}

func TestEraseIllegalOnMMC(t *testing.T) {
	d, _ := newDriver(simcard.MMC, 64)

	if err := d.Init(); err != nil {
		t.Fatalf("Init() = %v", err)
	}

	err := d.EraseSectors(0, 1)
	if err == nil {
		t.Fatalf("EraseSectors on MMC should fail")
	}

	status, ok := err.(StatusCode)
	if !ok || !status.IsIllegalCommand() {
		t.Errorf("EraseSectors on MMC = %v, want illegal-command StatusCode", err)
	}
}

func TestGetStatusNonMMC(t *testing.T) {
	d, _ := newDriver(simcard.SDSCv2, 64)

	if err := d.Init(); err != nil {
		t.Fatalf("Init() = %v", err)
	}

	if _, err := d.GetStatus(); err != nil {
		t.Fatalf("GetStatus() = %v, want nil", err)
	}
}
