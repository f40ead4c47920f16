package imxcontainer_test

import (
	"encoding/binary"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"

	"github.com/go-imx/imxscan/imxcontainer"
)

// containerHeaderBytes builds the 16-byte ContainerHeader wire record.
func containerHeaderBytes(tag imxcontainer.Tag, flags uint32, numImages uint8, sigOffset uint32, length uint16) []byte {
	b := make([]byte, 16)
	b[0] = 0x00
	binary.LittleEndian.PutUint16(b[1:3], length)
	b[3] = byte(tag)
	binary.LittleEndian.PutUint32(b[4:8], flags)
	binary.LittleEndian.PutUint16(b[8:10], 0)
	b[10] = 0
	b[11] = numImages
	binary.LittleEndian.PutUint32(b[12:16], sigOffset)
	return b
}

func TestScenario1EmptyContainerSigOnlyRejected(t *testing.T) {
	c := qt.New(t)

	buf := []byte{
		0x00, 0x10, 0x00, 0x87, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x00,
	}
	buf = append(buf, make([]byte, 8)...) // trailing zeroed SignatureBlock

	// sig_offset decodes to 0x1000, which runs past this tiny buffer, so
	// the candidate pre-check must reject it outright.
	c.Assert(imxcontainer.IsCandidate(buf, 0), qt.IsFalse)
}

func TestScenario2MessageSignatureOnly(t *testing.T) {
	c := qt.New(t)
	buf := buildMessageWithSignature(c)

	c.Assert(imxcontainer.IsCandidate(buf, 0), qt.IsTrue)
	parsed, err := imxcontainer.Parse(buf, 0, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(parsed.IsMessage(), qt.IsTrue)
	c.Assert(len(parsed.Images()), qt.Equals, 0)
	c.Assert(parsed.SigBlock, qt.IsNotNil)
	c.Assert(parsed.SigBlock.Cert, qt.IsNil)
	c.Assert(parsed.SigBlock.DEK, qt.IsNil)
}

// buildMessageWithSignature assembles a MESSAGE container (num_images=0)
// with a complete trailing signature block: an SRK table of exactly four
// zero-length RSA records, followed by a zero-length signature.
func buildMessageWithSignature(c *qt.C) []byte {
	const (
		sigBlockOff  = 16
		srkTableOff  = 12 // relative to sigblock start: 12
		srkRecordSz  = 12
		srkTableSz   = 4 + 4*srkRecordSz // 52
		sigOff       = srkTableOff + srkTableSz // relative to sigblock start: 64
		sigAbs       = sigBlockOff + sigOff
		totalLen     = sigAbs + 8
	)

	buf := make([]byte, totalLen)
	copy(buf[0:16], containerHeaderBytes(imxcontainer.TagMessage, 0, 0, sigBlockOff, uint16(totalLen)))

	// SignatureBlock header @ 16.
	buf[sigBlockOff] = 0x00
	binary.LittleEndian.PutUint16(buf[sigBlockOff+1:sigBlockOff+3], 12)
	buf[sigBlockOff+3] = byte(imxcontainer.TagSignatureBlock)
	binary.LittleEndian.PutUint16(buf[sigBlockOff+4:sigBlockOff+6], 0)                     // cert_off
	binary.LittleEndian.PutUint16(buf[sigBlockOff+6:sigBlockOff+8], uint16(srkTableOff)) // srk_tbl_off relative to sigblock
	binary.LittleEndian.PutUint16(buf[sigBlockOff+8:sigBlockOff+10], uint16(sigOff))
	binary.LittleEndian.PutUint16(buf[sigBlockOff+10:sigBlockOff+12], 0) // dek_off

	// SRK table header.
	srkTableAbs := sigBlockOff + srkTableOff
	buf[srkTableAbs] = byte(imxcontainer.TagSRKTable)
	binary.LittleEndian.PutUint16(buf[srkTableAbs+1:srkTableAbs+3], uint16(srkTableSz))
	buf[srkTableAbs+3] = 0x42

	recAbs := srkTableAbs + 4
	for i := 0; i < 4; i++ {
		r := recAbs + i*srkRecordSz
		buf[r] = byte(imxcontainer.TagSRK)
		binary.LittleEndian.PutUint16(buf[r+1:r+3], srkRecordSz)
		buf[r+3] = byte(imxcontainer.AlgTypeRSA)
		buf[r+4] = byte(imxcontainer.HashTypeSHA256)
		buf[r+5] = byte(imxcontainer.RSAKeySize2048)
		buf[r+6] = 0
		binary.LittleEndian.PutUint16(buf[r+8:r+10], 0)  // mod_len
		binary.LittleEndian.PutUint16(buf[r+10:r+12], 0) // exp_len
	}

	// Signature header.
	buf[sigAbs] = 0x00
	binary.LittleEndian.PutUint16(buf[sigAbs+1:sigAbs+3], 8)
	buf[sigAbs+3] = byte(imxcontainer.TagSignature)

	c.Assert(len(buf), qt.Equals, totalLen)
	return buf
}

func TestContainerCandidateRejectsEmptyNoSig(t *testing.T) {
	c := qt.New(t)
	buf := containerHeaderBytes(imxcontainer.TagContainer, 0, 0, 0, 16)
	buf = append(buf, make([]byte, 16)...)
	// num_images == 0 && sig_offset == 0 must be rejected at pre-check.
	c.Assert(imxcontainer.IsCandidate(buf, 0), qt.IsFalse)
}

func TestScenario6TruncatedHeaderRejected(t *testing.T) {
	c := qt.New(t)
	buf := containerHeaderBytes(imxcontainer.TagContainer, 0, 1, 0, 0x2000)
	buf = append(buf, make([]byte, 0x1000-16)...) // total buffer is 0x1000
	c.Assert(len(buf), qt.Equals, 0x1000)
	c.Assert(imxcontainer.IsCandidate(buf, 0), qt.IsFalse)
}

// TestContainerHeaderStructuralDiff uses cmp.Diff to compare the whole
// decoded ContainerHeader record at once, rather than asserting each field
// individually.
func TestContainerHeaderStructuralDiff(t *testing.T) {
	c := qt.New(t)
	buf := containerHeaderBytes(imxcontainer.TagContainer, 0x00000005, 2, 0, 16+2*128)
	buf = append(buf, make([]byte, 2*128)...)

	parsed, err := imxcontainer.Parse(buf, 0, nil)
	c.Assert(err, qt.IsNil)

	want := imxcontainer.ContainerHeader{
		Header: imxcontainer.Header{
			Version: imxcontainer.VersionZero,
			Length:  16 + 2*128,
			Tag:     imxcontainer.TagContainer,
		},
		Flags:     0x00000005,
		SWVersion: 0,
		FuseVer:   0,
		NumImages: 2,
		SigOffset: 0,
	}
	c.Assert(cmp.Diff(want, parsed.Hdr), qt.Equals, "")
}

func TestContainerHeaderExactLengthAccepted(t *testing.T) {
	c := qt.New(t)
	// length == buf.len - offset exactly must be accepted.
	buf := containerHeaderBytes(imxcontainer.TagContainer, 0, 1, 0, 16+128)
	buf = append(buf, make([]byte, 128)...)
	c.Assert(len(buf), qt.Equals, 16+128)
	c.Assert(imxcontainer.IsCandidate(buf, 0), qt.IsTrue)
}

func TestImageHeaderOffsetZeroRecordsNoData(t *testing.T) {
	c := qt.New(t)
	buf := containerHeaderBytes(imxcontainer.TagContainer, 0, 1, 0, 16+128)
	buf = append(buf, make([]byte, 128)...)

	parsed, err := imxcontainer.Parse(buf, 0, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(len(parsed.Images()), qt.Equals, 1)
	c.Assert(parsed.Images()[0].HasData(), qt.IsFalse)
}

func TestDCDDDRZeroSizeIsSilent(t *testing.T) {
	c := qt.New(t)
	buf := containerHeaderBytes(imxcontainer.TagContainer, 0, 1, 0, 16+128)
	imgHdr := make([]byte, 128)
	binary.LittleEndian.PutUint32(imgHdr[0:4], 0x100) // offset != 0
	binary.LittleEndian.PutUint32(imgHdr[4:8], 0)      // size == 0
	binary.LittleEndian.PutUint32(imgHdr[24:28], uint32(imxcontainer.ImageTypeDCDDDR))
	buf = append(buf, imgHdr...)

	var warnings int
	warnf := func(format string, args ...any) { warnings++ }
	parsed, err := imxcontainer.Parse(buf, 0, warnf)
	c.Assert(err, qt.IsNil)
	c.Assert(len(parsed.Images()), qt.Equals, 1)
	c.Assert(parsed.Images()[0].HasData(), qt.IsFalse)
	c.Assert(warnings, qt.Equals, 0)
}

func writeSRKRecordRSA(buf []byte, off int) {
	buf[off] = byte(imxcontainer.TagSRK)
	binary.LittleEndian.PutUint16(buf[off+1:off+3], 12)
	buf[off+3] = byte(imxcontainer.AlgTypeRSA)
	buf[off+4] = byte(imxcontainer.HashTypeSHA256)
	buf[off+5] = byte(imxcontainer.RSAKeySize2048)
	buf[off+6] = 0
	binary.LittleEndian.PutUint16(buf[off+8:off+10], 0)
	binary.LittleEndian.PutUint16(buf[off+10:off+12], 0)
}

func TestCertPermsInvMismatchRejected(t *testing.T) {
	c := qt.New(t)

	const (
		sigBlockOff = 16
		srkTableOff = 12 // relative to sigblock start
		srkRecordSz = 12
		srkTableSz  = 4 + 4*srkRecordSz // 52
		sigOff      = srkTableOff + srkTableSz // 64
		certOff     = sigOff + 8               // 72
	)
	srkTableAbs := sigBlockOff + srkTableOff
	sigAbs := sigBlockOff + sigOff
	certAbs := sigBlockOff + certOff
	totalLen := certAbs + 8 + 12 // cert header + embedded RSA key, zero-length cert signature

	buf := make([]byte, totalLen)
	copy(buf[0:16], containerHeaderBytes(imxcontainer.TagContainer, 0, 0, sigBlockOff, uint16(totalLen)))

	buf[sigBlockOff] = 0x00
	binary.LittleEndian.PutUint16(buf[sigBlockOff+1:sigBlockOff+3], 12)
	buf[sigBlockOff+3] = byte(imxcontainer.TagSignatureBlock)
	binary.LittleEndian.PutUint16(buf[sigBlockOff+4:sigBlockOff+6], uint16(certOff))
	binary.LittleEndian.PutUint16(buf[sigBlockOff+6:sigBlockOff+8], uint16(srkTableOff))
	binary.LittleEndian.PutUint16(buf[sigBlockOff+8:sigBlockOff+10], uint16(sigOff))
	binary.LittleEndian.PutUint16(buf[sigBlockOff+10:sigBlockOff+12], 0)

	buf[srkTableAbs] = byte(imxcontainer.TagSRKTable)
	binary.LittleEndian.PutUint16(buf[srkTableAbs+1:srkTableAbs+3], uint16(srkTableSz))
	buf[srkTableAbs+3] = 0x42
	for i := 0; i < 4; i++ {
		writeSRKRecordRSA(buf, srkTableAbs+4+i*srkRecordSz)
	}

	buf[sigAbs] = 0x00
	binary.LittleEndian.PutUint16(buf[sigAbs+1:sigAbs+3], 8)
	buf[sigAbs+3] = byte(imxcontainer.TagSignature)

	buf[certAbs] = 0x00
	binary.LittleEndian.PutUint16(buf[certAbs+1:certAbs+3], 20)
	buf[certAbs+3] = byte(imxcontainer.TagCertificate)
	binary.LittleEndian.PutUint16(buf[certAbs+4:certAbs+6], 20) // sig_off: right after embedded key, zero-length signature
	buf[certAbs+6] = 0x00                                       // perms_inv (wrong: should be ^perms & 0xFF)
	buf[certAbs+7] = 0x01                                       // perms
	writeSRKRecordRSA(buf, certAbs+8)

	_, err := imxcontainer.Parse(buf, 0, nil)
	c.Assert(err, qt.Not(qt.IsNil))
}
