// Package ivt parses legacy i.MX Image Vector Tables (versions 2/3, as used
// on i.MX6/7 SoC families): the IVT body, its BootData, an optional DCD
// command stream, an optional opaque CSF range, and the application
// payload.
package ivt

import (
	"fmt"

	"github.com/go-imx/imxscan/byteview"
)

// HeaderVersion is the IVT/DCD common header version byte.
type HeaderVersion uint8

// Recognized HeaderVersion values. DCDVer aliases IVTVer3: the DCD header
// shares the IVT's version enumeration.
const (
	IVTVer2 HeaderVersion = 0x40
	IVTVer3 HeaderVersion = 0x41
	DCDVer  HeaderVersion = 0x41
)

func (v HeaderVersion) String() string {
	switch v {
	case IVTVer2:
		return "2"
	case IVTVer3:
		return "3"
	default:
		return fmt.Sprintf("unknown(%#x)", uint8(v))
	}
}

// HeaderTag identifies the kind of record a common header decodes to.
type HeaderTag uint8

// Recognized HeaderTag values.
const (
	TagIVT       HeaderTag = 0xD1
	TagDCD       HeaderTag = 0xD2
	TagWriteData HeaderTag = 0xCC
	TagCheckData HeaderTag = 0xCF
	TagNOP       HeaderTag = 0xC0
	TagUnlock    HeaderTag = 0xB2
)

func (t HeaderTag) String() string {
	switch t {
	case TagIVT:
		return "IVT"
	case TagDCD:
		return "DCD"
	case TagWriteData:
		return "WRITE_DATA"
	case TagCheckData:
		return "CHECK_DATA"
	case TagNOP:
		return "NOP"
	case TagUnlock:
		return "UNLOCK"
	default:
		return fmt.Sprintf("unknown(%#x)", uint8(t))
	}
}

// HeaderSize is the fixed size of the common (tag, length, version) header.
const HeaderSize = 4

// IVTBodySize is the fixed size of the IVT body following the common header.
const IVTBodySize = 28

// BootDataSize is the fixed size of a BootData record.
const BootDataSize = 12

// MaxDCDSize is the documented cap on a DCD's declared length.
const MaxDCDSize = 1768

// Header is the common `(tag, length, version)` prefix, big-endian, shared
// by the IVT and every DCD command.
type Header struct {
	Tag     HeaderTag
	Length  uint16
	Version HeaderVersion
}

func decodeHeader(v byteview.View, off int) (Header, error) {
	tag, err := v.U8(off)
	if err != nil {
		return Header{}, err
	}
	length, err := v.U16BE(off + 1)
	if err != nil {
		return Header{}, err
	}
	ver, err := v.U8(off + 3)
	if err != nil {
		return Header{}, err
	}
	return Header{Tag: HeaderTag(tag), Length: length, Version: HeaderVersion(ver)}, nil
}

// Body is the 28-byte little-endian IVT payload. Every field except addr is
// a load-time absolute address; the caller converts to a buffer offset via
// off + (field - Body.Addr).
type Body struct {
	Entry     uint32
	Reserved1 uint32
	DCD       uint32
	BootData  uint32
	Addr      uint32
	CSF       uint32
	Reserved2 uint32
}

func decodeBody(v byteview.View, off int) (Body, error) {
	if err := requireRegion(v, off, IVTBodySize); err != nil {
		return Body{}, err
	}
	entry, _ := v.U32LE(off)
	reserved1, _ := v.U32LE(off + 4)
	dcd, _ := v.U32LE(off + 8)
	bootData, _ := v.U32LE(off + 12)
	addr, _ := v.U32LE(off + 16)
	csf, _ := v.U32LE(off + 20)
	reserved2, _ := v.U32LE(off + 24)
	return Body{
		Entry: entry, Reserved1: reserved1, DCD: dcd, BootData: bootData,
		Addr: addr, CSF: csf, Reserved2: reserved2,
	}, nil
}

// BootData is the 12-byte little-endian application payload descriptor.
type BootData struct {
	Start   uint32
	Length  uint32
	Plugins uint32
}

func decodeBootData(v byteview.View, off int) (BootData, error) {
	if err := requireRegion(v, off, BootDataSize); err != nil {
		return BootData{}, err
	}
	start, _ := v.U32LE(off)
	length, _ := v.U32LE(off + 4)
	plugins, _ := v.U32LE(off + 8)
	return BootData{Start: start, Length: length, Plugins: plugins}, nil
}

// WriteDataRecord is a single (address, value) pair from a WRITE_DATA
// command body, big-endian.
type WriteDataRecord struct {
	Address uint32
	Value   uint32
}

// WriteDataRecordSize is the fixed size of a WriteDataRecord.
const WriteDataRecordSize = 8

func decodeWriteDataRecord(v byteview.View, off int) (WriteDataRecord, error) {
	addr, err := v.U32BE(off)
	if err != nil {
		return WriteDataRecord{}, err
	}
	value, err := v.U32BE(off + 4)
	if err != nil {
		return WriteDataRecord{}, err
	}
	return WriteDataRecord{Address: addr, Value: value}, nil
}

// CheckDataRecord is a single (address, mask, count) triple from a
// CHECK_DATA command body, big-endian.
type CheckDataRecord struct {
	Address uint32
	Mask    uint32
	Count   uint32
}

// CheckDataRecordSize is the fixed size of a CheckDataRecord.
const CheckDataRecordSize = 12

func decodeCheckDataRecord(v byteview.View, off int) (CheckDataRecord, error) {
	addr, err := v.U32BE(off)
	if err != nil {
		return CheckDataRecord{}, err
	}
	mask, err := v.U32BE(off + 4)
	if err != nil {
		return CheckDataRecord{}, err
	}
	count, err := v.U32BE(off + 8)
	if err != nil {
		return CheckDataRecord{}, err
	}
	return CheckDataRecord{Address: addr, Mask: mask, Count: count}, nil
}

// UnlockRecord is a single value from an UNLOCK command body, big-endian.
type UnlockRecord struct {
	Value uint32
}

// UnlockRecordSize is the fixed size of an UnlockRecord.
const UnlockRecordSize = 4

func decodeUnlockRecord(v byteview.View, off int) (UnlockRecord, error) {
	value, err := v.U32BE(off)
	if err != nil {
		return UnlockRecord{}, err
	}
	return UnlockRecord{Value: value}, nil
}

func requireRegion(v byteview.View, off, n int) error {
	_, err := v.Slice(off, n)
	return err
}
