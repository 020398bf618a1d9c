// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package simcard implements an in-memory simulated SD/MMC card speaking
// the SPI-mode wire protocol, for use as the sdspi package's own test
// fixture. It is adapted from the command/response/data-token state
// machine of a from-scratch SPI SD card emulator, generalized from a single
// SDHC personality to all four variants sdspi.Driver can detect.
package simcard

import "github.com/usbarmory/sdspi/internal/bitfield"

type busState int

const (
	stCmd busState = iota
	stResp
	stReadData
	stWriteData
)

type dataPhase int

const (
	phToken dataPhase = iota
	phData
	phCRC1
	phCRC2
	phResp
	phBusy
)

const (
	tokenStartBlock      = 0xfe
	tokenStartMultiWrite = 0xfc
	tokenStopMultiWrite  = 0xfd

	r1Idle           = 0x01
	r1IllegalCommand = 0x04
)

// Variant mirrors sdspi.Variant without importing the sdspi package, to
// keep this fixture independent of the package it exercises.
type Variant int

const (
	MMC Variant = iota
	SDSCv1
	SDSCv2
	SDHC
)

// Card is a simulated SD/MMC card reachable only through the sdspi.Bus
// methods below.
type Card struct {
	Variant Variant

	// Present, when false, makes CardPresent report no card.
	Present bool

	// ActivationPolls is how many ACMD41/CMD1 polls the card takes
	// before reporting ready. Defaults to 1 (ready on first poll).
	ActivationPolls int

	selected bool
	st       busState
	phase    dataPhase

	cmdBuf []byte
	cmdIdx int

	awaitingACMD    bool
	activationCount int
	cardReady       bool

	resp    []byte
	respIdx int

	readArmed  bool
	readSector uint32
	readBuf    []byte
	readIdx    int

	writeArmed  bool
	writeSector uint32
	writeBuf    []byte
	writeIdx    int

	eraseStart, eraseEnd uint32
	eraseArmed           bool

	storage map[uint32][]byte
	blocks  uint32
}

// New creates a simulated card of the given variant and sector count.
func New(variant Variant, sectors uint32) *Card {
	return &Card{
		Variant:         variant,
		Present:         true,
		ActivationPolls: 1,
		blocks:          sectors,
		cmdBuf:          make([]byte, 6),
		storage:         make(map[uint32][]byte),
	}
}

// WriteSector installs the contents of a sector directly, bypassing the
// wire protocol, for test setup.
func (c *Card) WriteSector(sector uint32, data []byte) {
	buf := make([]byte, 512)
	copy(buf, data)
	c.storage[sector] = buf
}

// ReadSector returns the raw contents of a sector, bypassing the wire
// protocol, for test assertions.
func (c *Card) ReadSector(sector uint32) []byte {
	return append([]byte{}, c.blockFor(sector)...)
}

// AssertCS implements sdspi.Bus.
func (c *Card) AssertCS() {
	c.selected = true
}

// ReleaseCS implements sdspi.Bus.
func (c *Card) ReleaseCS() {
	c.selected = false
	c.cmdIdx = 0
	c.st = stCmd
}

// CardPresent implements sdspi.Bus.
func (c *Card) CardPresent() bool {
	return c.Present
}

// Exchange implements sdspi.Bus.
func (c *Card) Exchange(out byte) byte {
	if !c.selected {
		return 0xff
	}

	switch c.st {
	case stResp:
		return c.sendResp(out)
	case stReadData:
		return c.sendData(out)
	case stWriteData:
		return c.recvData(out)
	default:
		return c.recvCmd(out)
	}
}

func (c *Card) recvCmd(b byte) byte {
	if c.cmdIdx == 0 && b&0xc0 != 0x40 {
		return 0xff
	}

	c.cmdBuf[c.cmdIdx] = b
	c.cmdIdx++

	if c.cmdIdx < 6 {
		return 0xff
	}

	c.cmdIdx = 0
	c.execute()

	return 0xff
}

func (c *Card) sector(addr uint32) uint32 {
	if c.Variant == SDHC {
		return addr
	}

	return addr >> 9
}

func (c *Card) blockFor(sec uint32) []byte {
	buf, ok := c.storage[sec]

	if !ok {
		buf = make([]byte, 512)
		c.storage[sec] = buf
	}

	return buf
}

func (c *Card) setResp(b ...byte) {
	c.resp = b
	c.respIdx = 0
	c.st = stResp
	c.readArmed = false
	c.writeArmed = false
}

func (c *Card) setRespThenRead(status byte, sec uint32) {
	c.resp = []byte{status}
	c.respIdx = 0
	c.st = stResp
	c.readSector = sec
	c.readBuf = append([]byte{}, c.blockFor(sec)...)
	c.readIdx = -1
	c.readArmed = true
}

func (c *Card) setRespThenReadBlob(status byte, blob []byte) {
	c.resp = []byte{status}
	c.respIdx = 0
	c.st = stResp
	c.readBuf = blob
	c.readIdx = -1
	c.readArmed = true
}

func boolToR1(idle bool) byte {
	if idle {
		return r1Idle
	}

	return 0x00
}

func (c *Card) execute() {
	idx := c.cmdBuf[0] & 0x3f
	arg := uint32(c.cmdBuf[1])<<24 | uint32(c.cmdBuf[2])<<16 | uint32(c.cmdBuf[3])<<8 | uint32(c.cmdBuf[4])

	isACMD := c.awaitingACMD
	c.awaitingACMD = false
	c.readArmed = false
	c.writeArmed = false

	if isACMD {
		c.executeACMD(idx, arg)
		return
	}

	switch idx {
	case 0: // GO_IDLE_STATE
		c.cardReady = false
		c.activationCount = 0
		c.setResp(r1Idle)
	case 1: // SEND_OP_COND (MMC)
		if c.Variant != MMC {
			c.setResp(r1IllegalCommand)
			return
		}
		c.activationCount++
		if c.activationCount >= c.pollsOrDefault() {
			c.cardReady = true
			c.setResp(0x00)
		} else {
			c.setResp(r1Idle)
		}
	case 8: // SEND_IF_COND
		if c.Variant == MMC || c.Variant == SDSCv1 {
			c.setResp(r1IllegalCommand | r1Idle)
			return
		}
		c.resp = []byte{r1Idle, 0x00, 0x00, byte((arg >> 8) & 0xf), byte(arg & 0xff)}
		c.respIdx = 0
		c.st = stResp
	case 9: // SEND_CSD
		c.setRespThenReadBlob(0x00, c.buildCSD())
	case 10: // SEND_CID
		c.setRespThenReadBlob(0x00, c.buildCID())
	case 12: // STOP_TRANSMISSION
		c.setResp(0x00)
	case 13: // SEND_STATUS
		c.setResp(boolToR1(!c.cardReady))
	case 16: // SET_BLOCKLEN
		if arg != 512 {
			c.setResp(0x40)
			return
		}
		c.setResp(0x00)
	case 17: // READ_SINGLE_BLOCK
		c.setRespThenRead(0x00, c.sector(arg))
	case 18: // READ_MULTIPLE_BLOCK
		c.setRespThenRead(0x00, c.sector(arg))
	case 24: // WRITE_BLOCK
		c.writeSector = c.sector(arg)
		c.setResp(0x00)
		c.writeArmed = true
	case 25: // WRITE_MULTIPLE_BLOCK
		c.writeSector = c.sector(arg)
		c.setResp(0x00)
		c.writeArmed = true
	case 32: // ERASE_WR_BLK_START
		c.eraseStart = c.sector(arg)
		c.setResp(0x00)
	case 33: // ERASE_WR_BLK_END
		c.eraseEnd = c.sector(arg)
		c.eraseArmed = true
		c.setResp(0x00)
	case 38: // ERASE
		if !c.eraseArmed {
			c.setResp(0x40)
			return
		}
		for s := c.eraseStart; s <= c.eraseEnd; s++ {
			c.storage[s] = make([]byte, 512)
		}
		c.eraseArmed = false
		c.setResp(0x00)
	case 55: // APP_CMD
		if c.Variant == MMC {
			// MMC has no application-command class: it answers
			// CMD55 with the illegal-command bit set alongside the
			// idle bit, since it has not left idle yet, per
			// spec.md §8 scenario 3.
			c.setResp(r1Idle | r1IllegalCommand)
			return
		}

		c.awaitingACMD = true
		c.setResp(boolToR1(!c.cardReady))
	case 58: // READ_OCR
		ocr := uint32(0x00ff8000)
		if c.cardReady {
			ocr |= 1 << 31
			if c.Variant == SDHC {
				ocr |= 1 << 30
			}
		}
		c.resp = []byte{boolToR1(!c.cardReady), byte(ocr >> 24), byte(ocr >> 16), byte(ocr >> 8), byte(ocr)}
		c.respIdx = 0
		c.st = stResp
	default:
		c.setResp(r1IllegalCommand)
	}
}

func (c *Card) executeACMD(idx byte, arg uint32) {
	switch idx {
	case 13: // SD_STATUS
		status := make([]byte, 64)
		bitfield.Set(status, 510, 0b11, 0)
		c.setRespThenReadBlob(boolToR1(!c.cardReady), status)
	case 23: // SET_WR_BLK_ERASE_COUNT
		c.setResp(boolToR1(!c.cardReady))
	case 41: // SD_SEND_OP_COND
		if c.Variant == MMC {
			c.setResp(r1IllegalCommand)
			return
		}
		c.activationCount++
		if c.activationCount >= c.pollsOrDefault() {
			c.cardReady = true
			c.setResp(0x00)
		} else {
			c.setResp(r1Idle)
		}
	case 51: // SEND_SCR
		scr := make([]byte, 8)
		bitfield.Set(scr, 60, 0xf, 2)
		c.setRespThenReadBlob(boolToR1(!c.cardReady), scr)
	default:
		c.setResp(r1IllegalCommand)
	}
}

// CSD/CID bit positions, mirrored from sdspi's decode.go so this fixture can
// build register blobs the driver decodes back without importing sdspi
// (which would create an import cycle, since sdspi's tests import simcard).
const (
	csdStructureBit  = 126
	csdCSizeMult1Bit = 47
	csdCSize1Bit     = 62
	csdReadBlLen1Bit = 80
	csdCSize2Bit     = 48
	csdReadBlLen2Bit = 80

	cidManufacturerIDBit = 120
	cidProductRevBit     = 56
	cidSerialNumberBit   = 24
	cidManufDateBit      = 8
)

// buildCSD constructs a 16-byte CSD consistent with c.blocks and c.Variant,
// so capacity round-trips through sdspi.DecodeCSD.
func (c *Card) buildCSD() []byte {
	buf := make([]byte, 16)

	if c.Variant == SDHC {
		bitfield.Set(buf, csdStructureBit, 0b11, 1)
		bitfield.Set(buf, csdReadBlLen2Bit, 0xf, 9)

		var deviceSize uint32
		if c.blocks >= 1024 {
			deviceSize = c.blocks/1024 - 1
		}

		bitfield.Set(buf, csdCSize2Bit, 0x3fffff, deviceSize)

		return buf
	}

	bitfield.Set(buf, csdStructureBit, 0b11, 0)
	bitfield.Set(buf, csdCSizeMult1Bit, 0b111, 0)
	bitfield.Set(buf, csdReadBlLen1Bit, 0xf, 9)

	var deviceSize uint32
	if c.blocks >= 4 {
		deviceSize = c.blocks/4 - 1
	}

	bitfield.Set(buf, csdCSize1Bit, 0xfff, deviceSize)

	return buf
}

// buildCID constructs a 16-byte CID with fixed, arbitrary identification
// fields.
func (c *Card) buildCID() []byte {
	buf := make([]byte, 16)

	bitfield.Set(buf, cidManufacturerIDBit, 0xff, 0xaa)
	buf[1], buf[2] = 'S', 'C'
	copy(buf[3:8], []byte("SIMSD"))
	bitfield.Set(buf, cidProductRevBit, 0xff, 0x10)
	bitfield.Set(buf, cidSerialNumberBit, 0xffffffff, 0x12345678)
	bitfield.Set(buf, cidManufDateBit, 0xfff, (26<<4)|7) // 2026-07

	return buf
}

func (c *Card) pollsOrDefault() int {
	if c.ActivationPolls <= 0 {
		return 1
	}

	return c.ActivationPolls
}

// sendResp clocks out the armed short/extended response. Once exhausted it
// hands off to a pending data read, if one was armed, otherwise returns to
// generic command reception.
func (c *Card) sendResp(out byte) byte {
	if c.respIdx >= len(c.resp) {
		if c.readArmed {
			c.readArmed = false
			c.st = stReadData
			c.phase = phToken
			return c.sendData(out)
		}

		if c.writeArmed {
			c.writeArmed = false
			c.st = stWriteData
			c.phase = phToken
			return c.recvData(out)
		}

		c.st = stCmd
		return c.recvCmd(out)
	}

	b := c.resp[c.respIdx]
	c.respIdx++

	return b
}

// sendData streams a data block (start token, payload, 2 CRC bytes). On
// completion it auto-advances to the next sector and re-arms, so an
// open-ended multi-block read (CMD18) simply keeps streaming until the
// host begins a new command frame (detected by its top two bits) instead of
// polling for the next token.
func (c *Card) sendData(in byte) byte {
	switch c.phase {
	case phToken:
		if in&0xc0 == 0x40 {
			c.st = stCmd
			return c.recvCmd(in)
		}

		c.phase = phData

		return tokenStartBlock
	case phData:
		b := c.readBuf[c.readIdx+1]
		c.readIdx++

		if c.readIdx+1 >= len(c.readBuf) {
			c.phase = phCRC1
		}

		return b
	case phCRC1:
		c.phase = phCRC2
		return 0x00
	case phCRC2:
		c.readSector++
		c.readBuf = append([]byte{}, c.blockFor(c.readSector)...)
		c.readIdx = -1
		c.phase = phToken
		return 0x00
	}

	return 0xff
}

// recvData receives a data block (start token, payload, 2 CRC bytes),
// stores it, and emits the data-response token followed by one ready busy
// cycle, per spec.md §4.4. It then rearms for a possible next block (for
// CMD25) or a stop token.
func (c *Card) recvData(in byte) byte {
	switch c.phase {
	case phToken:
		switch in {
		case tokenStopMultiWrite:
			c.st = stCmd
			return 0xff
		case tokenStartBlock, tokenStartMultiWrite:
			c.writeBuf = make([]byte, 512)
			c.writeIdx = 0
			c.phase = phData
			return 0xff
		default:
			return 0xff
		}
	case phData:
		c.writeBuf[c.writeIdx] = in
		c.writeIdx++

		if c.writeIdx >= 512 {
			c.phase = phCRC1
		}

		return 0xff
	case phCRC1:
		c.phase = phCRC2
		return 0xff
	case phCRC2:
		c.storage[c.writeSector] = c.writeBuf
		c.writeSector++
		c.phase = phResp
		return 0xff
	case phResp:
		c.phase = phBusy
		return 0xe5 // accepted (masked 0x0e == 0x04)
	case phBusy:
		c.phase = phToken
		return 0xff
	}

	return 0xff
}
