// Package imxcontainer parses i.MX Authentication Containers (version 0,
// as used on i.MX8 SoC families): the container header, its image table,
// and the optional trailing signature block (SRK table, signature,
// certificate, DEK).
package imxcontainer

import (
	"fmt"

	"github.com/go-imx/imxscan/byteview"
)

// Version is the container header version byte. Only version 0 is
// supported by this container family.
type Version uint8

// VersionZero is the only accepted container header version.
const VersionZero Version = 0x00

func (v Version) String() string {
	if v == VersionZero {
		return "0"
	}
	return fmt.Sprintf("unknown(%#x)", uint8(v))
}

// SRKTableVersion is the fixed version byte of the SRK table sub-record.
const SRKTableVersion uint8 = 0x42

// Tag identifies the kind of header record a byte sequence decodes to.
type Tag uint8

// Recognized header tags, per the wire format table.
const (
	TagDEK            Tag = 0x81
	TagContainer      Tag = 0x87
	TagMessage        Tag = 0x89
	TagSignatureBlock Tag = 0x90
	TagCertificate    Tag = 0xAF
	TagSRKTable       Tag = 0xD7
	TagSignature      Tag = 0xD8
	TagSRK            Tag = 0xE1
)

func (t Tag) String() string {
	switch t {
	case TagDEK:
		return "DEK"
	case TagContainer:
		return "CONTAINER"
	case TagMessage:
		return "MESSAGE"
	case TagSignatureBlock:
		return "SIGNATURE_BLOCK"
	case TagCertificate:
		return "CERTIFICATE"
	case TagSRKTable:
		return "SRK_TABLE"
	case TagSignature:
		return "SIGNATURE"
	case TagSRK:
		return "SRK"
	default:
		return fmt.Sprintf("unknown(%#x)", uint8(t))
	}
}

// SRKSet identifies which root-of-trust key set a container's SRK flags
// claim to use.
type SRKSet uint8

// Recognized SRKSet values.
const (
	SRKSetNoAuth SRKSet = 0x00
	SRKSetNXP    SRKSet = 0x01
	SRKSetOEM    SRKSet = 0x02
)

// ImageType identifies the purpose of a single image table entry.
type ImageType uint8

// Recognized ImageType values.
const (
	ImageTypeCSF          ImageType = 0x01
	ImageTypeSCD          ImageType = 0x02
	ImageTypeEXE          ImageType = 0x03
	ImageTypeDATA         ImageType = 0x04
	ImageTypeDCDDDR       ImageType = 0x05
	ImageTypeSECO         ImageType = 0x06
	ImageTypePROVISIONING ImageType = 0x07
	ImageTypeDEK          ImageType = 0x08
	ImageTypeV2XPrimary   ImageType = 0x0B
	ImageTypeV2XSecondary ImageType = 0x0C
	ImageTypeV2XROM       ImageType = 0x0D
	ImageTypeV2XDummy     ImageType = 0x0E
)

// CPUID identifies the target core an image is intended for.
type CPUID uint16

// Recognized CPUID values.
const (
	CPUIDSCRA350    CPUID = 508
	CPUIDSCRA530    CPUID = 1
	CPUIDSCRA720    CPUID = 6
	CPUIDSCRM40PID0 CPUID = 278
	CPUIDSCRM41PID0 CPUID = 298
)

// MUID identifies a messaging unit associated with an image.
type MUID uint16

// Recognized MUID values.
const (
	MUIDSCRMU0A     MUID = 213
	MUIDSCRM40MU1A  MUID = 297
	MUIDSCRM41MU1A  MUID = 317
)

// PartitionID identifies which resource partition owns an image.
type PartitionID uint8

// Recognized PartitionID values.
const (
	PartitionIDM4 PartitionID = 0
	PartitionIDAP PartitionID = 1
)

// HashType identifies the hash algorithm used for an image or SRK record.
type HashType uint8

// Recognized HashType values.
const (
	HashTypeSHA256 HashType = 0x00
	HashTypeSHA384 HashType = 0x01
	HashTypeSHA512 HashType = 0x02
)

// CoreType identifies the decoded core_id bitfield of an image.
type CoreType uint8

// Recognized CoreType values.
const (
	CoreTypeSC    CoreType = 0x01
	CoreTypeCM40  CoreType = 0x02
	CoreTypeCM41  CoreType = 0x03
	CoreTypeA53   CoreType = 0x04
	CoreTypeA72   CoreType = 0x05
	CoreTypeSECO  CoreType = 0x06
	CoreTypeV2XP  CoreType = 0x09
	CoreTypeV2XS  CoreType = 0x0A
)

// AlgType identifies the public-key algorithm of an SRK record.
type AlgType uint8

// Recognized AlgType values.
const (
	AlgTypeRSA   AlgType = 0x21
	AlgTypeECDSA AlgType = 0x27
)

// ECDSACurve identifies the curve of an ECDSA SRK record.
type ECDSACurve uint8

// Recognized ECDSACurve values.
const (
	ECDSACurvePrime256V1 ECDSACurve = 0x01
	ECDSACurveSec348R1   ECDSACurve = 0x02
	ECDSACurveSec521R1   ECDSACurve = 0x03
)

// AESKeySize identifies the size of a DEK's wrapped AES key.
type AESKeySize uint8

// Recognized AESKeySize values.
const (
	AESKeySize128 AESKeySize = 0x10
	AESKeySize192 AESKeySize = 0x18
	AESKeySize256 AESKeySize = 0x20
)

// EncryptionAlg identifies a DEK's symmetric cipher.
type EncryptionAlg uint8

// EncryptionAlgAES is the only supported DEK cipher.
const EncryptionAlgAES EncryptionAlg = 0x55

// EncryptionMode identifies a DEK's block cipher mode.
type EncryptionMode uint8

// EncryptionModeCBC is the only supported DEK mode.
const EncryptionModeCBC EncryptionMode = 0x66

// RSAKeySize identifies the modulus size of an RSA SRK record.
type RSAKeySize uint8

// Recognized RSAKeySize values.
const (
	RSAKeySize2048 RSAKeySize = 0x05
	RSAKeySize3072 RSAKeySize = 0x06
	RSAKeySize4096 RSAKeySize = 0x07
)

// CertPermissions is a bitmask of what a certificate's embedded key may
// sign.
//
// APP_DEBUG and CM4_DEBUG share bit 2 in the wire format (an unresolved
// ambiguity in the upstream tool this was distilled from); both names are
// kept as aliases for the same bit rather than picking one arbitrarily.
type CertPermissions uint8

// Recognized CertPermissions bits.
const (
	CertPermContainerSigning CertPermissions = 1 << 0
	CertPermSCUDebug         CertPermissions = 1 << 1
	CertPermCM4Debug         CertPermissions = 1 << 2
	CertPermAppDebug         CertPermissions = 1 << 2
	CertPermFuse1            CertPermissions = 1 << 4
	CertPermFuse2            CertPermissions = 1 << 5
)

// String renders the set bits using stable, alphabetically ordered names;
// the shared bit 2 is rendered as "CM4_DEBUG|APP_DEBUG".
func (p CertPermissions) String() string {
	var names []string
	if p&CertPermCM4Debug != 0 {
		names = append(names, "CM4_DEBUG|APP_DEBUG")
	}
	if p&CertPermContainerSigning != 0 {
		names = append(names, "CONTAINER_SIGNING")
	}
	if p&CertPermFuse1 != 0 {
		names = append(names, "FUSE_1")
	}
	if p&CertPermFuse2 != 0 {
		names = append(names, "FUSE_2")
	}
	if p&CertPermSCUDebug != 0 {
		names = append(names, "SCU_DEBUG")
	}
	out := ""
	for i, n := range names {
		if i > 0 {
			out += "|"
		}
		out += n
	}
	return out
}

// MaxImagesPerContainer is NXP tooling's documented cap on image count.
const MaxImagesPerContainer = 8

// MaxContainerSize is the documented cap on total container header size.
const MaxContainerSize = 8192

// Sizes of the fixed-layout wire records, per the wire format table.
const (
	headerSize          = 4
	containerHeaderSize = 16
	imageHeaderSize     = 128
	signatureBlockSize  = 12
	srkTableSize        = 4
	srkRecordHeaderSize = 12
	certificateHeaderSize = 8
	signatureHeaderSize = 8
	dekHeaderSize       = 8
)

// Header is the common `(version, length, tag)` prefix shared by every
// sub-record in this format.
type Header struct {
	Version Version
	Length  uint16
	Tag     Tag
}

func decodeHeader(v byteview.View, off int) (Header, error) {
	ver, err := v.U8(off)
	if err != nil {
		return Header{}, err
	}
	length, err := v.U16LE(off + 1)
	if err != nil {
		return Header{}, err
	}
	tag, err := v.U8(off + 3)
	if err != nil {
		return Header{}, err
	}
	return Header{Version: Version(ver), Length: length, Tag: Tag(tag)}, nil
}

// ContainerHeader is the 16-byte fixed-layout container header.
type ContainerHeader struct {
	Header
	Flags     uint32
	SWVersion uint16
	FuseVer   uint8
	NumImages uint8
	SigOffset uint32
}

func decodeContainerHeader(v byteview.View, off int) (ContainerHeader, error) {
	if err := (errRequire{v, off, containerHeaderSize}).check(); err != nil {
		return ContainerHeader{}, err
	}
	hdr, err := decodeHeader(v, off)
	if err != nil {
		return ContainerHeader{}, err
	}
	flags, err := v.U32LE(off + 4)
	if err != nil {
		return ContainerHeader{}, err
	}
	sw, err := v.U16LE(off + 8)
	if err != nil {
		return ContainerHeader{}, err
	}
	fuseVer, err := v.U8(off + 10)
	if err != nil {
		return ContainerHeader{}, err
	}
	numImages, err := v.U8(off + 11)
	if err != nil {
		return ContainerHeader{}, err
	}
	sigOffset, err := v.U32LE(off + 12)
	if err != nil {
		return ContainerHeader{}, err
	}
	return ContainerHeader{
		Header:    hdr,
		Flags:     flags,
		SWVersion: sw,
		FuseVer:   fuseVer,
		NumImages: numImages,
		SigOffset: sigOffset,
	}, nil
}

// ImageHeader is the 128-byte fixed-layout per-image record.
type ImageHeader struct {
	Offset   uint32
	Size     uint32
	Dest     uint64
	Entry    uint64
	Flags    uint32
	Metadata uint32
	Hash     []byte // 64 bytes, borrowed
	IV       []byte // 32 bytes, borrowed
}

func decodeImageHeader(v byteview.View, off int) (ImageHeader, error) {
	if err := (errRequire{v, off, imageHeaderSize}).check(); err != nil {
		return ImageHeader{}, err
	}
	offset, _ := v.U32LE(off)
	size, _ := v.U32LE(off + 4)
	dest, _ := v.U64LE(off + 8)
	entry, _ := v.U64LE(off + 16)
	flags, _ := v.U32LE(off + 24)
	metadata, _ := v.U32LE(off + 28)
	hash, _ := v.Slice(off+32, 64)
	iv, _ := v.Slice(off+96, 32)
	return ImageHeader{
		Offset: offset, Size: size, Dest: dest, Entry: entry,
		Flags: flags, Metadata: metadata, Hash: hash, IV: iv,
	}, nil
}

// SignatureBlock is the 12-byte fixed-layout signature block header.
type SignatureBlock struct {
	Header
	CertOffset     uint16
	SRKTableOffset uint16
	SigOffset      uint16
	DEKOffset      uint16
}

func decodeSignatureBlock(v byteview.View, off int) (SignatureBlock, error) {
	if err := (errRequire{v, off, signatureBlockSize}).check(); err != nil {
		return SignatureBlock{}, err
	}
	hdr, err := decodeHeader(v, off)
	if err != nil {
		return SignatureBlock{}, err
	}
	certOff, _ := v.U16LE(off + 4)
	srkOff, _ := v.U16LE(off + 6)
	sigOff, _ := v.U16LE(off + 8)
	dekOff, _ := v.U16LE(off + 10)
	return SignatureBlock{Header: hdr, CertOffset: certOff, SRKTableOffset: srkOff, SigOffset: sigOff, DEKOffset: dekOff}, nil
}

// SRKTable is the 4-byte fixed-layout SRK table header; it precedes
// exactly four SRKRecord entries.
type SRKTable struct {
	Tag     Tag
	Length  uint16
	Version uint8
}

func decodeSRKTable(v byteview.View, off int) (SRKTable, error) {
	if err := (errRequire{v, off, srkTableSize}).check(); err != nil {
		return SRKTable{}, err
	}
	tag, _ := v.U8(off)
	length, _ := v.U16LE(off + 1)
	ver, _ := v.U8(off + 3)
	return SRKTable{Tag: Tag(tag), Length: length, Version: ver}, nil
}

// SRKRecordHeader is the 12-byte fixed-layout header preceding an SRK
// record's key material.
type SRKRecordHeader struct {
	Tag     Tag
	Length  uint16
	Alg     AlgType
	Hash    HashType
	KeySize uint8
	Flags   uint8
	ModLen  uint16
	ExpLen  uint16
}

func decodeSRKRecordHeader(v byteview.View, off int) (SRKRecordHeader, error) {
	if err := (errRequire{v, off, srkRecordHeaderSize}).check(); err != nil {
		return SRKRecordHeader{}, err
	}
	tag, _ := v.U8(off)
	length, _ := v.U16LE(off + 1)
	alg, _ := v.U8(off + 3)
	hash, _ := v.U8(off + 4)
	keySize, _ := v.U8(off + 5)
	flags, _ := v.U8(off + 6)
	// byte off+7 is padding
	modLen, _ := v.U16LE(off + 8)
	expLen, _ := v.U16LE(off + 10)
	return SRKRecordHeader{
		Tag: Tag(tag), Length: length, Alg: AlgType(alg), Hash: HashType(hash),
		KeySize: keySize, Flags: flags, ModLen: modLen, ExpLen: expLen,
	}, nil
}

// CertificateHeader is the 8-byte fixed-layout certificate header.
type CertificateHeader struct {
	Header
	SigOffset uint16
	PermsInv  uint8
	Perms     uint8
}

func decodeCertificateHeader(v byteview.View, off int) (CertificateHeader, error) {
	if err := (errRequire{v, off, certificateHeaderSize}).check(); err != nil {
		return CertificateHeader{}, err
	}
	hdr, err := decodeHeader(v, off)
	if err != nil {
		return CertificateHeader{}, err
	}
	sigOff, _ := v.U16LE(off + 4)
	permsInv, _ := v.U8(off + 6)
	perms, _ := v.U8(off + 7)
	return CertificateHeader{Header: hdr, SigOffset: sigOff, PermsInv: permsInv, Perms: perms}, nil
}

// SignatureHeader is the 8-byte fixed-layout signature header (4 bytes of
// padding trail the common header fields).
type SignatureHeader struct {
	Header
}

func decodeSignatureHeader(v byteview.View, off int) (SignatureHeader, error) {
	if err := (errRequire{v, off, signatureHeaderSize}).check(); err != nil {
		return SignatureHeader{}, err
	}
	hdr, err := decodeHeader(v, off)
	if err != nil {
		return SignatureHeader{}, err
	}
	return SignatureHeader{Header: hdr}, nil
}

// DEKHeader is the 8-byte fixed-layout DEK header.
type DEKHeader struct {
	Header
	Flags uint8
	Size  uint8
	Alg   EncryptionAlg
	Mode  EncryptionMode
}

func decodeDEKHeader(v byteview.View, off int) (DEKHeader, error) {
	if err := (errRequire{v, off, dekHeaderSize}).check(); err != nil {
		return DEKHeader{}, err
	}
	hdr, err := decodeHeader(v, off)
	if err != nil {
		return DEKHeader{}, err
	}
	flags, _ := v.U8(off + 4)
	size, _ := v.U8(off + 5)
	alg, _ := v.U8(off + 6)
	mode, _ := v.U8(off + 7)
	return DEKHeader{Header: hdr, Flags: flags, Size: size, Alg: EncryptionAlg(alg), Mode: EncryptionMode(mode)}, nil
}

// errRequire is a small helper so each decode function can bounds-check its
// whole fixed region in one line before reading individual fields.
type errRequire struct {
	v   byteview.View
	off int
	n   int
}

func (e errRequire) check() error {
	_, err := e.v.Slice(e.off, e.n)
	return err
}
