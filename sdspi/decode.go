// https://github.com/usbarmory/tamago
//
// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package sdspi

import "github.com/usbarmory/sdspi/internal/bitfield"

// CSD bit positions, SD-PL-7.10 §5.3. Positions are counted from the LSB of
// the full 128-bit register as received over the wire (16 bytes, MSB
// first), unlike tamago's uSDHC driver which offsets these by -8 because
// its hardware response register already strips the trailing CRC/stop bit
// byte; here the CSD is read as a plain data block and carries that byte.
const (
	csdStructure    = 126 // 2 bits
	csdCSizeMult1   = 47  // 3 bits, CSD version 1.0 (SDSC)
	csdCSize1       = 62  // 12 bits, CSD version 1.0 (SDSC)
	csdReadBlLen1   = 80  // 4 bits, CSD version 1.0 (SDSC)
	csdCSize2       = 48  // 22 bits, CSD version 2.0/3.0 (SDHC/SDXC)
	csdReadBlLen2   = 80  // 4 bits, CSD version 2.0/3.0 (fixed at 9)
)

// CSD holds the decoded Card-Specific Data register, spec.md §4.7.
type CSD struct {
	Structure   uint32
	DeviceSize  uint32
	SizeMult    uint32
	ReadBlkLen  uint32
	CapacityKiB uint64
}

// DecodeCSD parses a 16-byte CSD register per spec.md §4.7. The register
// has two mutually exclusive layouts selected by its top two bits: layout 0
// (SDSC) uses a 12-bit device size and a multiplier, layout non-zero
// (SDHC/SDXC) uses a wider 22-bit device size against a fixed 512-byte
// block.
func DecodeCSD(buf []byte) (csd CSD, err error) {
	if len(buf) != 16 {
		return csd, ErrFailure
	}

	csd.Structure = bitfield.Get(buf, csdStructure, 0b11)

	if csd.Structure == 0 {
		csd.DeviceSize = bitfield.Get(buf, csdCSize1, 0xfff)
		csd.SizeMult = bitfield.Get(buf, csdCSizeMult1, 0b111)
		csd.ReadBlkLen = bitfield.Get(buf, csdReadBlLen1, 0xf)

		bytes := uint64(csd.DeviceSize+1) << (csd.SizeMult + 2 + csd.ReadBlkLen)
		csd.CapacityKiB = bytes / 1024
	} else {
		csd.DeviceSize = bitfield.Get(buf, csdCSize2, 0x3fffff)
		csd.ReadBlkLen = bitfield.Get(buf, csdReadBlLen2, 0xf)
		csd.CapacityKiB = uint64(csd.DeviceSize+1) * 512
	}

	return csd, nil
}

// CID bit positions, SD-PL-7.10 §5.2 / JESD84-B51 §7.2.
const (
	cidManufacturerID = 120 // 8 bits
	cidOEMApp         = 104 // 16 bits
	cidProductRev     = 56  // 8 bits
	cidSerialNumber   = 24  // 32 bits
	cidManufDate      = 8   // 12 bits
)

// CID holds the decoded Card Identification register, spec.md §4.7.
type CID struct {
	ManufacturerID byte
	OEMApplication string
	ProductName    string
	ProductRev     byte
	SerialNumber   uint32
	ManufYear      int
	ManufMonth     int
}

// DecodeCID parses a 16-byte CID register per spec.md §4.7. Product name is
// the 5 ASCII bytes at CID[103:64].
func DecodeCID(buf []byte) (cid CID, err error) {
	if len(buf) != 16 {
		return cid, ErrFailure
	}

	cid.ManufacturerID = byte(bitfield.Get(buf, cidManufacturerID, 0xff))
	cid.OEMApplication = string([]byte{buf[1], buf[2]})
	cid.ProductName = string(buf[3:8])
	cid.ProductRev = byte(bitfield.Get(buf, cidProductRev, 0xff))
	cid.SerialNumber = bitfield.Get(buf, cidSerialNumber, 0xffffffff)

	mdt := bitfield.Get(buf, cidManufDate, 0xfff)
	cid.ManufYear = 2000 + int(mdt>>4)
	cid.ManufMonth = int(mdt & 0xf)

	return cid, nil
}

// SCR bit positions, SD-PL-7.10 §5.6. The SCR is unavailable on legacy MMC
// cards, per spec.md §4.7.
const (
	scrStructure    = 60 // 4 bits
	scrSDSpec       = 56 // 4 bits
	scrDataAfterErase = 55 // 1 bit
	scrBusWidths    = 48 // 4 bits
)

// SCR holds the decoded SD Configuration Register, spec.md §4.7.
type SCR struct {
	Structure         uint32
	SDSpec            uint32
	DataStateAfterErase bool
	BusWidths         uint32
}

// DecodeSCR parses the 8-byte SCR register.
func DecodeSCR(buf []byte) (scr SCR, err error) {
	if len(buf) != 8 {
		return scr, ErrFailure
	}

	scr.Structure = bitfield.Get(buf, scrStructure, 0xf)
	scr.SDSpec = bitfield.Get(buf, scrSDSpec, 0xf)
	scr.DataStateAfterErase = bitfield.Bit(buf, scrDataAfterErase)
	scr.BusWidths = bitfield.Get(buf, scrBusWidths, 0xf)

	return scr, nil
}

// SD Status bit positions, SD-PL-7.10 §4.10.2 (512-bit / 64-byte record).
const (
	statusDatBusWidth       = 510 // 2 bits
	statusSecuredMode       = 509 // 1 bit
	statusCardType          = 480 // 16 bits
	statusProtectedAreaSize = 448 // 32 bits
	statusSpeedClass        = 440 // 8 bits
	statusPerformanceMove   = 432 // 8 bits
	statusAUSize            = 428 // 4 bits
	statusEraseSize         = 408 // 16 bits
	statusEraseTimeout      = 402 // 6 bits
	statusEraseOffset       = 400 // 2 bits
	statusUHSSpeedGrade     = 396 // 4 bits
	statusUHSAUSize         = 392 // 4 bits
)

// CardStatus holds the decoded fields of the 64-byte SD Status response
// (ACMD13), spec.md §4.8. Not available for legacy MMC cards.
type CardStatus struct {
	BusWidth        uint32
	SecuredMode     bool
	CardType        uint32
	ProtectedAreaKB uint64
	SpeedClass      uint32
	PerformanceMove uint32
	AUSize          uint32
	EraseSize       uint32
	EraseTimeout    uint32
	EraseOffset     uint32
	UHSSpeedGrade   uint32
	UHSAUSize       uint32
}

// DecodeStatus parses the 64-byte SD Status response.
func DecodeStatus(buf []byte) (st CardStatus, err error) {
	if len(buf) != 64 {
		return st, ErrFailure
	}

	st.BusWidth = bitfield.Get(buf, statusDatBusWidth, 0b11)
	st.SecuredMode = bitfield.Bit(buf, statusSecuredMode)
	st.CardType = bitfield.Get(buf, statusCardType, 0xffff)
	st.ProtectedAreaKB = bitfield.GetU64(buf, statusProtectedAreaSize, 0xffffffff)
	st.SpeedClass = bitfield.Get(buf, statusSpeedClass, 0xff)
	st.PerformanceMove = bitfield.Get(buf, statusPerformanceMove, 0xff)
	st.AUSize = bitfield.Get(buf, statusAUSize, 0xf)
	st.EraseSize = bitfield.Get(buf, statusEraseSize, 0xffff)
	st.EraseTimeout = bitfield.Get(buf, statusEraseTimeout, 0x3f)
	st.EraseOffset = bitfield.Get(buf, statusEraseOffset, 0b11)
	st.UHSSpeedGrade = bitfield.Get(buf, statusUHSSpeedGrade, 0xf)
	st.UHSAUSize = bitfield.Get(buf, statusUHSAUSize, 0xf)

	return st, nil
}
