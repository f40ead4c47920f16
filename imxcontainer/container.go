package imxcontainer

import (
	"github.com/go-imx/imxscan/byteview"
	"github.com/go-imx/imxscan/container"
)

// Warnf is a diagnostic sink for non-fatal anomalies encountered while
// parsing (e.g. an image table entry with no backing data). A nil Warnf
// discards the message.
type Warnf func(format string, args ...any)

func (w Warnf) emit(format string, args ...any) {
	if w != nil {
		w(format, args...)
	}
}

// SRKFlags is the decoded set/index/revoke_mask bitfield slice of a
// container header's Flags word.
type SRKFlags struct {
	Set        byteview.Enum[SRKSet]
	Index      uint8
	RevokeMask uint8
}

func decodeSRKFlags(flags uint32) SRKFlags {
	set := uint8(flags & 0x00000003)
	var enumSet byteview.Enum[SRKSet]
	switch SRKSet(set) {
	case SRKSetNoAuth, SRKSetNXP, SRKSetOEM:
		enumSet = byteview.KnownEnum(SRKSet(set))
	default:
		enumSet = byteview.UnknownEnum[SRKSet](uint32(set))
	}
	return SRKFlags{
		Set:        enumSet,
		Index:      uint8((flags & 0x00000030) >> 4),
		RevokeMask: uint8((flags & 0x00000F00) >> 8),
	}
}

// DecodedImage carries an image table entry's header plus its decoded
// flag/metadata bitfields, attached to the owning container.Image as
// Metadata.
type DecodedImage struct {
	Header      ImageHeader
	Type        byteview.Enum[ImageType]
	CoreID      byteview.Enum[CoreType]
	HashType    byteview.Enum[HashType]
	Encrypted   bool
	BootFlags   uint16
	CPUID       byteview.Enum[CPUID]
	MUID        byteview.Enum[MUID]
	PartitionID byteview.Enum[PartitionID]
}

// SRKRecord is a single decoded key record from an SRK table or a
// certificate's embedded public key.
type SRKRecord struct {
	Header SRKRecordHeader
	Offset int

	// RSA fields, populated when Header.Alg == AlgTypeRSA.
	RSAKeySize byteview.Enum[RSAKeySize]
	Modulus    []byte
	Exponent   []byte

	// ECDSA fields, populated when Header.Alg == AlgTypeECDSA.
	Curve byteview.Enum[ECDSACurve]
	X, Y  []byte
}

// Certificate is the optional certificate sub-record of a signature block.
type Certificate struct {
	Header      CertificateHeader
	Offset      int
	Permissions CertPermissions
	PublicKey   SRKRecord
	Signature   []byte
}

// DEK is the optional Data Encryption Key sub-record of a signature block.
type DEK struct {
	Header  DEKHeader
	Offset  int
	IsKEK   bool
	KeySize byteview.Enum[AESKeySize]
	Key     []byte
}

// SignatureBlockInfo is the fully decoded trailing signature block.
type SignatureBlockInfo struct {
	Header     SignatureBlock
	Offset     int
	SRKRecords [4]SRKRecord
	Signature  []byte
	Cert       *Certificate
	DEK        *DEK
}

// Container is a fully parsed i.MX Authentication Container.
type Container struct {
	Hdr      ContainerHeader
	offset   int
	end      int
	SRK      SRKFlags
	SigBlock *SignatureBlockInfo
	images   []container.Image
}

var _ container.Container = (*Container)(nil)

// Format implements container.Container.
func (c *Container) Format() string { return "i.MX Container" }

// Offset implements container.Container.
func (c *Container) Offset() int { return c.offset }

// End implements container.Container.
func (c *Container) End() int { return c.end }

// Images implements container.Container.
func (c *Container) Images() []container.Image { return c.images }

// Header implements container.Container.
func (c *Container) Header() any { return c.Hdr }

// FindNextAddr implements container.Container.
func (c *Container) FindNextAddr(addr int) int {
	return container.FindNextAddr(c.images, addr)
}

// IsMessage reports whether this container's tag is MESSAGE rather than
// CONTAINER (message containers never carry images).
func (c *Container) IsMessage() bool {
	return c.Hdr.Tag == TagMessage
}

// IsCandidate performs the cheap pre-filter the sweep uses before
// committing to a full parse: version/tag byte check, then the decoded
// header's length/num_images/sig_offset sanity checks.
func IsCandidate(buf []byte, off int) bool {
	v := byteview.View(buf)
	if len(buf)-off <= containerHeaderSize {
		return false
	}
	ver, err := v.U8(off)
	if err != nil || Version(ver) != VersionZero {
		return false
	}
	tag, err := v.U8(off + 3)
	if err != nil || (Tag(tag) != TagContainer && Tag(tag) != TagMessage) {
		return false
	}

	hdr, err := decodeContainerHeader(v, off)
	if err != nil {
		return false
	}

	if int(hdr.Length) > MaxContainerSize {
		return false
	}
	if off+int(hdr.Length) > len(buf) {
		return false
	}
	if int(hdr.NumImages) > MaxImagesPerContainer {
		return false
	}
	if off+int(hdr.SigOffset) > len(buf) {
		return false
	}
	if hdr.NumImages == 0 && hdr.SigOffset == 0 {
		return false
	}
	return true
}

// Parse fully decodes the container starting at off. The caller must have
// already confirmed IsCandidate(buf, off). warnf, if non-nil, receives
// non-fatal diagnostics encountered while parsing the image table.
func Parse(buf []byte, off int, warnf Warnf) (*Container, error) {
	v := byteview.View(buf)

	hdr, err := decodeContainerHeader(v, off)
	if err != nil {
		return nil, err
	}
	if hdr.Version != VersionZero {
		return nil, byteview.NewStructuralInvariantError("i.MX Container", off, "bad version")
	}
	if hdr.Tag != TagContainer && hdr.Tag != TagMessage {
		return nil, byteview.NewStructuralInvariantError("i.MX Container", off, "bad tag")
	}
	if hdr.Tag == TagMessage && hdr.NumImages != 0 {
		return nil, byteview.NewStructuralInvariantError("i.MX Container", off, "MESSAGE container with images")
	}

	c := &Container{
		Hdr:    hdr,
		offset: off,
		end:    off + int(hdr.Length),
		SRK:    decodeSRKFlags(hdr.Flags),
	}

	if hdr.NumImages > 0 {
		start := off + containerHeaderSize
		for i := 0; i < int(hdr.NumImages); i++ {
			imgHdr, err := decodeImageHeader(v, start+i*imageHeaderSize)
			if err != nil {
				return nil, err
			}
			img, err := parseImage(buf, off, imgHdr, start+i*imageHeaderSize, warnf)
			if err != nil {
				return nil, err
			}
			c.images = append(c.images, img)
		}
	}

	if hdr.SigOffset != 0 {
		sb, err := parseSignatureBlock(buf, off+int(hdr.SigOffset))
		if err != nil {
			return nil, err
		}
		c.SigBlock = sb
	}

	return c, nil
}

func parseImage(buf []byte, containerOffset int, hdr ImageHeader, hdrOffset int, warnf Warnf) (container.Image, error) {
	di := &DecodedImage{
		Header:      hdr,
		Type:        enumOrRawImageType(hdr.Flags & 0x0000000F),
		CoreID:      enumOrRawCoreType((hdr.Flags & 0x000000F0) >> 4),
		HashType:    enumOrRawHashType((hdr.Flags & 0x00000700) >> 8),
		Encrypted:   hdr.Flags&0x00000800 != 0,
		BootFlags:   uint16(hdr.Flags >> 16),
		CPUID:       enumOrRawCPUID(hdr.Metadata & 0x000003FF),
		MUID:        enumOrRawMUID((hdr.Metadata & 0x000FFC00) >> 10),
		PartitionID: enumOrRawPartitionID((hdr.Metadata & 0x0FF00000) >> 20),
	}

	img := container.Image{Kind: container.KindContainerImage, Metadata: di}

	t, known := di.Type.Known()
	isDCDDDR := known && t == ImageTypeDCDDDR

	if hdr.Offset == 0 || hdr.Size == 0 {
		if !(isDCDDDR && hdr.Size == 0) {
			warnf.emit("empty image @ %#x: offset=%d size=%d", hdrOffset, hdr.Offset, hdr.Size)
		}
		if hdr.Offset != 0 {
			absOffset := containerOffset + int(hdr.Offset)
			img.Range = container.Range{Start: absOffset, End: absOffset}
		}
		return img, nil
	}

	absOffset := containerOffset + int(hdr.Offset)
	end := absOffset + int(hdr.Size)
	if end > len(buf) {
		warnf.emit("%s", byteview.NewSizeAnomalyError(hdrOffset, int(hdr.Size), len(buf)-absOffset))
		img.Range = container.Range{Start: absOffset, End: absOffset}
		return img, nil
	}

	img.Range = container.Range{Start: absOffset, End: end}
	img.Data = buf[absOffset:end]
	return img, nil
}

func parseSignatureBlock(buf []byte, off int) (*SignatureBlockInfo, error) {
	v := byteview.View(buf)
	hdr, err := decodeSignatureBlock(v, off)
	if err != nil {
		return nil, err
	}
	if hdr.Version != VersionZero {
		return nil, byteview.NewStructuralInvariantError("signature block", off, "bad version")
	}
	if hdr.Tag != TagSignatureBlock {
		return nil, byteview.NewStructuralInvariantError("signature block", off, "bad tag")
	}

	sb := &SignatureBlockInfo{Header: hdr, Offset: off}

	table, err := parseSRKTable(buf, off+int(hdr.SRKTableOffset))
	if err != nil {
		return nil, err
	}
	sb.SRKRecords = table

	sig, err := parseSignature(buf, off+int(hdr.SigOffset))
	if err != nil {
		return nil, err
	}
	sb.Signature = sig

	if hdr.CertOffset != 0 {
		cert, err := parseCertificate(buf, off+int(hdr.CertOffset))
		if err != nil {
			return nil, err
		}
		sb.Cert = cert
	}

	if hdr.DEKOffset != 0 {
		dek, err := parseDEK(buf, off+int(hdr.DEKOffset))
		if err != nil {
			return nil, err
		}
		sb.DEK = dek
	}

	return sb, nil
}

func parseSRKTable(buf []byte, off int) ([4]SRKRecord, error) {
	var records [4]SRKRecord
	v := byteview.View(buf)
	hdr, err := decodeSRKTable(v, off)
	if err != nil {
		return records, err
	}
	if hdr.Version != SRKTableVersion {
		return records, byteview.NewStructuralInvariantError("SRK table", off, "bad version")
	}
	if hdr.Tag != TagSRKTable {
		return records, byteview.NewStructuralInvariantError("SRK table", off, "bad tag")
	}

	cur := off + srkTableSize
	for i := 0; i < 4; i++ {
		rec, err := parseSRKRecord(buf, cur)
		if err != nil {
			return records, err
		}
		records[i] = rec
		cur += int(rec.Header.Length)
	}

	if cur != off+int(hdr.Length) {
		return records, byteview.NewStructuralInvariantError("SRK table", off, "records did not consume declared length")
	}

	return records, nil
}

func parseSRKRecord(buf []byte, off int) (SRKRecord, error) {
	v := byteview.View(buf)
	hdr, err := decodeSRKRecordHeader(v, off)
	if err != nil {
		return SRKRecord{}, err
	}
	if hdr.Tag != TagSRK {
		return SRKRecord{}, byteview.NewStructuralInvariantError("SRK record", off, "bad tag")
	}

	rec := SRKRecord{Header: hdr, Offset: off}

	var end int
	switch hdr.Alg {
	case AlgTypeRSA:
		rec.RSAKeySize = enumOrRawRSAKeySize(uint32(hdr.KeySize))
		modOff := off + srkRecordHeaderSize
		expOff := modOff + int(hdr.ModLen)
		end = expOff + int(hdr.ExpLen)
		rec.Modulus, err = v.Slice(modOff, int(hdr.ModLen))
		if err != nil {
			return SRKRecord{}, err
		}
		rec.Exponent, err = v.Slice(expOff, int(hdr.ExpLen))
		if err != nil {
			return SRKRecord{}, err
		}
	case AlgTypeECDSA:
		rec.Curve = enumOrRawECDSACurve(uint32(hdr.KeySize))
		xOff := off + srkRecordHeaderSize
		yOff := xOff + int(hdr.ModLen)
		end = yOff + int(hdr.ExpLen)
		rec.X, err = v.Slice(xOff, int(hdr.ModLen))
		if err != nil {
			return SRKRecord{}, err
		}
		rec.Y, err = v.Slice(yOff, int(hdr.ExpLen))
		if err != nil {
			return SRKRecord{}, err
		}
	default:
		return SRKRecord{}, byteview.NewStructuralInvariantError("SRK record", off, "unknown algorithm")
	}

	if int(hdr.Length) != end-off {
		return SRKRecord{}, byteview.NewStructuralInvariantError("SRK record", off, "length mismatch")
	}

	return rec, nil
}

func parseSignature(buf []byte, off int) ([]byte, error) {
	v := byteview.View(buf)
	hdr, err := decodeSignatureHeader(v, off)
	if err != nil {
		return nil, err
	}
	if hdr.Version != VersionZero {
		return nil, byteview.NewStructuralInvariantError("signature", off, "bad version")
	}
	if hdr.Tag != TagSignature {
		return nil, byteview.NewStructuralInvariantError("signature", off, "bad tag")
	}
	return v.Slice(off+signatureHeaderSize, int(hdr.Length)-signatureHeaderSize)
}

func parseCertificate(buf []byte, off int) (*Certificate, error) {
	v := byteview.View(buf)
	hdr, err := decodeCertificateHeader(v, off)
	if err != nil {
		return nil, err
	}
	if hdr.Version != VersionZero {
		return nil, byteview.NewStructuralInvariantError("certificate", off, "bad version")
	}
	if hdr.Tag != TagCertificate {
		return nil, byteview.NewStructuralInvariantError("certificate", off, "bad tag")
	}
	if (^hdr.Perms)&0xFF != hdr.PermsInv {
		return nil, byteview.NewStructuralInvariantError("certificate", off, "perms_inv mismatch")
	}

	pub, err := parseSRKRecord(buf, off+certificateHeaderSize)
	if err != nil {
		return nil, err
	}

	sig, err := v.Slice(off+int(hdr.SigOffset), int(hdr.Length)-int(hdr.SigOffset))
	if err != nil {
		return nil, err
	}

	return &Certificate{
		Header:      hdr,
		Offset:      off,
		Permissions: CertPermissions(hdr.Perms),
		PublicKey:   pub,
		Signature:   sig,
	}, nil
}

func parseDEK(buf []byte, off int) (*DEK, error) {
	v := byteview.View(buf)
	hdr, err := decodeDEKHeader(v, off)
	if err != nil {
		return nil, err
	}
	if hdr.Version != VersionZero {
		return nil, byteview.NewStructuralInvariantError("DEK", off, "bad version")
	}
	if hdr.Tag != TagDEK {
		return nil, byteview.NewStructuralInvariantError("DEK", off, "bad tag")
	}
	if hdr.Alg != EncryptionAlgAES {
		return nil, byteview.NewStructuralInvariantError("DEK", off, "bad algorithm")
	}
	if hdr.Mode != EncryptionModeCBC {
		return nil, byteview.NewStructuralInvariantError("DEK", off, "bad mode")
	}

	key, err := v.Slice(off+dekHeaderSize, int(hdr.Length)-dekHeaderSize)
	if err != nil {
		return nil, err
	}

	return &DEK{
		Header:  hdr,
		Offset:  off,
		IsKEK:   hdr.Flags&0x80 != 0,
		KeySize: enumOrRawAESKeySize(uint32(hdr.Size)),
		Key:     key,
	}, nil
}

func enumOrRawImageType(v uint32) byteview.Enum[ImageType] {
	switch ImageType(v) {
	case ImageTypeCSF, ImageTypeSCD, ImageTypeEXE, ImageTypeDATA, ImageTypeDCDDDR,
		ImageTypeSECO, ImageTypePROVISIONING, ImageTypeDEK,
		ImageTypeV2XPrimary, ImageTypeV2XSecondary, ImageTypeV2XROM, ImageTypeV2XDummy:
		return byteview.KnownEnum(ImageType(v))
	default:
		return byteview.UnknownEnum[ImageType](v)
	}
}

func enumOrRawCoreType(v uint32) byteview.Enum[CoreType] {
	switch CoreType(v) {
	case CoreTypeSC, CoreTypeCM40, CoreTypeCM41, CoreTypeA53, CoreTypeA72, CoreTypeSECO, CoreTypeV2XP, CoreTypeV2XS:
		return byteview.KnownEnum(CoreType(v))
	default:
		return byteview.UnknownEnum[CoreType](v)
	}
}

func enumOrRawHashType(v uint32) byteview.Enum[HashType] {
	switch HashType(v) {
	case HashTypeSHA256, HashTypeSHA384, HashTypeSHA512:
		return byteview.KnownEnum(HashType(v))
	default:
		return byteview.UnknownEnum[HashType](v)
	}
}

func enumOrRawCPUID(v uint32) byteview.Enum[CPUID] {
	switch CPUID(v) {
	case CPUIDSCRA350, CPUIDSCRA530, CPUIDSCRA720, CPUIDSCRM40PID0, CPUIDSCRM41PID0:
		return byteview.KnownEnum(CPUID(v))
	default:
		return byteview.UnknownEnum[CPUID](v)
	}
}

func enumOrRawMUID(v uint32) byteview.Enum[MUID] {
	switch MUID(v) {
	case MUIDSCRMU0A, MUIDSCRM40MU1A, MUIDSCRM41MU1A:
		return byteview.KnownEnum(MUID(v))
	default:
		return byteview.UnknownEnum[MUID](v)
	}
}

func enumOrRawPartitionID(v uint32) byteview.Enum[PartitionID] {
	switch PartitionID(v) {
	case PartitionIDM4, PartitionIDAP:
		return byteview.KnownEnum(PartitionID(v))
	default:
		return byteview.UnknownEnum[PartitionID](v)
	}
}

func enumOrRawRSAKeySize(v uint32) byteview.Enum[RSAKeySize] {
	switch RSAKeySize(v) {
	case RSAKeySize2048, RSAKeySize3072, RSAKeySize4096:
		return byteview.KnownEnum(RSAKeySize(v))
	default:
		return byteview.UnknownEnum[RSAKeySize](v)
	}
}

func enumOrRawECDSACurve(v uint32) byteview.Enum[ECDSACurve] {
	switch ECDSACurve(v) {
	case ECDSACurvePrime256V1, ECDSACurveSec348R1, ECDSACurveSec521R1:
		return byteview.KnownEnum(ECDSACurve(v))
	default:
		return byteview.UnknownEnum[ECDSACurve](v)
	}
}

func enumOrRawAESKeySize(v uint32) byteview.Enum[AESKeySize] {
	switch AESKeySize(v) {
	case AESKeySize128, AESKeySize192, AESKeySize256:
		return byteview.KnownEnum(AESKeySize(v))
	default:
		return byteview.UnknownEnum[AESKeySize](v)
	}
}
