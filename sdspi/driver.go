// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sdspi

import "sync"

// CardInfo holds detected card information, combining the decoded CSD, CID
// and (for non-MMC cards) SCR registers plus derived capacity, spec.md
// §6 get_card_info.
type CardInfo struct {
	Variant     Variant
	CSD         CSD
	CID         CID
	SCR         SCR
	HasSCR      bool
	CapacityKiB uint64
}

// Driver is an SD/MMC SPI-mode block driver instance. The zero value is
// ready to use once Bus is set; a single Driver owns the bus and
// chip-select exclusively across an Init/Deinit cycle, per spec.md §5.
type Driver struct {
	sync.Mutex

	// Bus is the byte-level SPI transport collaborator. It must be set
	// before calling Detect or Init.
	Bus Bus

	variant Variant
}

// Detect reports whether a card is present on the bus, per spec.md §6
// detect(). It performs no bus activity beyond reading the board-level
// card-detect signal.
func (d *Driver) Detect() bool {
	return d.Bus.CardPresent()
}

// Init brings an unknown card from cold power-up through identification and
// initialization, per spec.md §4.5. It fails if no card is present, the
// soft reset fails, variant probing fails, or (for non-high-capacity
// variants) the block-length set fails.
func (d *Driver) Init() error {
	d.Lock()
	defer d.Unlock()

	if !d.Bus.CardPresent() {
		return ErrNoCard
	}

	variant, err := initSequence(d.Bus)

	if err != nil {
		d.variant = Unknown
		return err
	}

	logf("initialized %s card", variant)

	d.variant = variant

	return nil
}

// Deinit clears the detected card state. It does not otherwise touch the
// bus; the caller is responsible for any clock-gating side effects.
func (d *Driver) Deinit() {
	d.Lock()
	defer d.Unlock()

	d.variant = Unknown
}

// initialized reports whether Init has completed successfully.
func (d *Driver) initialized() bool {
	return d.variant != Unknown
}

// ReadSector reads one 512-byte sector into buf.
func (d *Driver) ReadSector(sector uint32, buf []byte) error {
	d.Lock()
	defer d.Unlock()

	if !d.initialized() {
		return ErrNotInitialized
	}

	if len(buf) < 512 {
		return ErrFailure
	}

	return readSector(d.Bus, d.variant, sector, buf[:512])
}

// ReadSectors reads n consecutive 512-byte sectors starting at sector into
// buf, which must be at least n*512 bytes.
func (d *Driver) ReadSectors(sector uint32, buf []byte, n int) error {
	d.Lock()
	defer d.Unlock()

	if !d.initialized() {
		return ErrNotInitialized
	}

	if len(buf) < n*512 {
		return ErrFailure
	}

	return readSectors(d.Bus, d.variant, sector, buf, n)
}

// WriteSector writes one 512-byte sector from buf.
func (d *Driver) WriteSector(sector uint32, buf []byte) error {
	d.Lock()
	defer d.Unlock()

	if !d.initialized() {
		return ErrNotInitialized
	}

	if len(buf) < 512 {
		return ErrFailure
	}

	return writeSector(d.Bus, d.variant, sector, buf[:512])
}

// WriteSectors writes n consecutive 512-byte sectors starting at sector
// from buf, which must be at least n*512 bytes.
func (d *Driver) WriteSectors(sector uint32, buf []byte, n int) error {
	d.Lock()
	defer d.Unlock()

	if !d.initialized() {
		return ErrNotInitialized
	}

	if len(buf) < n*512 {
		return ErrFailure
	}

	return writeSectors(d.Bus, d.variant, sector, buf, n)
}

// EraseSectors erases the inclusive sector range [from, to]. Illegal on
// legacy MMC cards.
func (d *Driver) EraseSectors(from, to uint32) error {
	d.Lock()
	defer d.Unlock()

	if !d.initialized() {
		return ErrNotInitialized
	}

	return eraseSectors(d.Bus, d.variant, from, to)
}

// GetCardInfo fills and returns the decoded CSD, CID and (for non-MMC
// cards) SCR registers, deriving capacity from the CSD, per spec.md §6
// get_card_info().
func (d *Driver) GetCardInfo() (info CardInfo, err error) {
	d.Lock()
	defer d.Unlock()

	if !d.initialized() {
		return info, ErrNotInitialized
	}

	info.Variant = d.variant

	csdBuf, err := readRegister(d.Bus, cmdSendCSD, 0, false, 16)
	if err != nil {
		return info, err
	}

	info.CSD, err = DecodeCSD(csdBuf)
	if err != nil {
		return info, err
	}

	info.CapacityKiB = info.CSD.CapacityKiB

	cidBuf, err := readRegister(d.Bus, cmdSendCID, 0, false, 16)
	if err != nil {
		return info, err
	}

	info.CID, err = DecodeCID(cidBuf)
	if err != nil {
		return info, err
	}

	if d.variant == MMC {
		return info, nil
	}

	scrBuf, err := readRegister(d.Bus, acmdSendSCR, 0, true, 8)
	if err != nil {
		return info, err
	}

	info.SCR, err = DecodeSCR(scrBuf)
	if err != nil {
		return info, err
	}

	info.HasSCR = true

	return info, nil
}

// GetStatus fills and returns the 64-byte SD Status record (ACMD13). Not
// available for legacy MMC cards, per spec.md §4.8.
func (d *Driver) GetStatus() (status CardStatus, err error) {
	d.Lock()
	defer d.Unlock()

	if !d.initialized() {
		return status, ErrNotInitialized
	}

	if d.variant == MMC {
		return status, StatusCode(1 << 2) // illegal command
	}

	buf, err := readRegister(d.Bus, cmdSendStatus, 0, true, 64)
	if err != nil {
		return status, err
	}

	return DecodeStatus(buf)
}
