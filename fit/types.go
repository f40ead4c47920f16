// Package fit recognizes Flat Image Tree / Flattened Device Tree (FDT)
// blobs embedded in a buffer: it records the raw DTB byte range and,
// when a formatter is configured, the textual DTS rendering.
package fit

import "github.com/go-imx/imxscan/byteview"

// Magic is the FDT magic number, big-endian, at the start of every FDT blob.
const Magic uint32 = 0xD00DFEED

// HeaderSize is the fixed size of the FDT header.
const HeaderSize = 28

// Header is the 28-byte big-endian FDT header.
type Header struct {
	Magic            uint32
	TotalSize        uint32
	OffDTStruct      uint32
	OffDTStrings     uint32
	OffMemRsvmap     uint32
	Version          uint32
	LastCompVersion  uint32
}

func decodeHeader(v byteview.View, off int) (Header, error) {
	if err := requireRegion(v, off, HeaderSize); err != nil {
		return Header{}, err
	}
	magic, _ := v.U32BE(off)
	totalSize, _ := v.U32BE(off + 4)
	offStruct, _ := v.U32BE(off + 8)
	offStrings, _ := v.U32BE(off + 12)
	offRsvmap, _ := v.U32BE(off + 16)
	version, _ := v.U32BE(off + 20)
	lastComp, _ := v.U32BE(off + 24)
	return Header{
		Magic: magic, TotalSize: totalSize,
		OffDTStruct: offStruct, OffDTStrings: offStrings, OffMemRsvmap: offRsvmap,
		Version: version, LastCompVersion: lastComp,
	}, nil
}

func requireRegion(v byteview.View, off, n int) error {
	_, err := v.Slice(off, n)
	return err
}
