package ivt

import (
	"github.com/go-imx/imxscan/byteview"
	"github.com/go-imx/imxscan/container"
)

// Warnf is a diagnostic sink for non-fatal anomalies, mirroring
// imxcontainer.Warnf.
type Warnf func(format string, args ...any)

func (w Warnf) emit(format string, args ...any) {
	if w != nil {
		w(format, args...)
	}
}

// DCDCommand is one decoded command from a DCD's command stream: a header
// plus its body records. Exactly one of WriteData/CheckData/Unlock is
// populated, per Header.Tag; NOP commands populate none.
type DCDCommand struct {
	Header    Header
	Offset    int
	WriteData []WriteDataRecord
	CheckData []CheckDataRecord
	Unlock    []UnlockRecord
}

// DCD is the fully decoded, optional Device Configuration Data section.
type DCD struct {
	Header   Header
	Offset   int
	Commands []DCDCommand
}

// CSF is the optional, opaque Command Sequence File range referenced by an
// IVT. Its contents are not structurally parsed.
type CSF struct {
	Header Header
	Offset int
	Range  container.Range
	Data   []byte
}

// Container is a fully parsed legacy i.MX Image Vector Table.
type Container struct {
	Hdr      Header
	Body     Body
	offset   int
	end      int
	BootData BootData
	DCD      *DCD
	CSF      *CSF
	images   []container.Image
}

var _ container.Container = (*Container)(nil)

// Format implements container.Container.
func (c *Container) Format() string { return "IVT" }

// Offset implements container.Container.
func (c *Container) Offset() int { return c.offset }

// End implements container.Container.
func (c *Container) End() int { return c.end }

// Images implements container.Container.
func (c *Container) Images() []container.Image { return c.images }

// FindNextAddr implements container.Container.
func (c *Container) FindNextAddr(addr int) int {
	return container.FindNextAddr(c.images, addr)
}

// Header implements container.Container.
func (c *Container) Header() any { return c.Hdr }

// IsCandidate performs the cheap pre-filter the sweep uses before
// committing to a full parse.
func IsCandidate(buf []byte, off int) bool {
	v := byteview.View(buf)
	if len(buf) <= off+HeaderSize+IVTBodySize {
		return false
	}
	tag, err := v.U8(off)
	if err != nil || HeaderTag(tag) != TagIVT {
		return false
	}
	ver, err := v.U8(off + 3)
	if err != nil || (HeaderVersion(ver) != IVTVer2 && HeaderVersion(ver) != IVTVer3) {
		return false
	}

	hdr, err := decodeHeader(v, off)
	if err != nil {
		return false
	}
	body, err := decodeBody(v, off+HeaderSize)
	if err != nil {
		return false
	}

	if int(hdr.Length) != HeaderSize+IVTBodySize {
		return false
	}
	if len(buf) < off+int(hdr.Length) {
		return false
	}
	if body.Reserved1 != 0 || body.Reserved2 != 0 {
		return false
	}
	return true
}

// Parse fully decodes the IVT starting at off. The caller must have already
// confirmed IsCandidate(buf, off).
func Parse(buf []byte, off int, warnf Warnf) (*Container, error) {
	v := byteview.View(buf)

	hdr, err := decodeHeader(v, off)
	if err != nil {
		return nil, err
	}
	if hdr.Tag != TagIVT {
		return nil, byteview.NewStructuralInvariantError("IVT", off, "bad tag")
	}
	if hdr.Version != IVTVer2 && hdr.Version != IVTVer3 {
		return nil, byteview.NewStructuralInvariantError("IVT", off, "bad version")
	}

	body, err := decodeBody(v, off+HeaderSize)
	if err != nil {
		return nil, err
	}
	if body.Reserved1 != 0 || body.Reserved2 != 0 {
		return nil, byteview.NewStructuralInvariantError("IVT", off, "nonzero reserved field")
	}

	c := &Container{
		Hdr:    hdr,
		Body:   body,
		offset: off,
	}

	bootDataOff := off + int(body.BootData-body.Addr)
	bootData, err := decodeBootData(v, bootDataOff)
	if err != nil {
		return nil, err
	}
	c.BootData = bootData

	if body.DCD != 0 {
		dcdOff := off + int(body.DCD-body.Addr)
		dcd, err := parseDCD(buf, dcdOff)
		if err != nil {
			return nil, err
		}
		c.DCD = dcd
	}

	appImage, appEnd := parseApp(buf, off, body, bootData, warnf)
	c.images = []container.Image{appImage}
	c.end = appEnd

	if body.CSF != 0 {
		csfOff := off + int(body.CSF-body.Addr)
		csf, err := parseCSF(buf, csfOff)
		if err != nil {
			return nil, err
		}
		c.CSF = csf
		c.images = append(c.images, container.Image{
			Kind:  container.KindCSF,
			Range: csf.Range,
			Data:  csf.Data,
		})
	}

	return c, nil
}

func parseDCD(buf []byte, off int) (*DCD, error) {
	v := byteview.View(buf)
	hdr, err := decodeHeader(v, off)
	if err != nil {
		return nil, err
	}
	if hdr.Tag != TagDCD {
		return nil, byteview.NewStructuralInvariantError("DCD", off, "bad tag")
	}
	if hdr.Version != DCDVer {
		return nil, byteview.NewStructuralInvariantError("DCD", off, "bad version")
	}
	if hdr.Length > MaxDCDSize {
		return nil, byteview.NewStructuralInvariantError("DCD", off, "length exceeds maximum")
	}

	dcd := &DCD{Header: hdr, Offset: off}

	cur := off + HeaderSize
	end := off + int(hdr.Length)
	for cur < end {
		cmd, cmdLen, err := parseDCDCommand(buf, cur)
		if err != nil {
			return nil, err
		}
		dcd.Commands = append(dcd.Commands, cmd)
		cur += cmdLen
	}

	return dcd, nil
}

func parseDCDCommand(buf []byte, off int) (DCDCommand, int, error) {
	v := byteview.View(buf)
	hdr, err := decodeHeader(v, off)
	if err != nil {
		return DCDCommand{}, 0, err
	}

	cmd := DCDCommand{Header: hdr, Offset: off}
	bodyOff := off + HeaderSize
	bodyLen := int(hdr.Length) - HeaderSize

	switch hdr.Tag {
	case TagWriteData:
		n := bodyLen / WriteDataRecordSize
		for i := 0; i < n; i++ {
			rec, err := decodeWriteDataRecord(v, bodyOff+i*WriteDataRecordSize)
			if err != nil {
				return DCDCommand{}, 0, err
			}
			cmd.WriteData = append(cmd.WriteData, rec)
		}
	case TagCheckData:
		n := bodyLen / CheckDataRecordSize
		for i := 0; i < n; i++ {
			rec, err := decodeCheckDataRecord(v, bodyOff+i*CheckDataRecordSize)
			if err != nil {
				return DCDCommand{}, 0, err
			}
			cmd.CheckData = append(cmd.CheckData, rec)
		}
	case TagUnlock:
		n := bodyLen / UnlockRecordSize
		for i := 0; i < n; i++ {
			rec, err := decodeUnlockRecord(v, bodyOff+i*UnlockRecordSize)
			if err != nil {
				return DCDCommand{}, 0, err
			}
			cmd.Unlock = append(cmd.Unlock, rec)
		}
	case TagNOP:
		// No body records.
	default:
		return DCDCommand{}, 0, byteview.NewStructuralInvariantError("DCD command", off, "unknown command tag")
	}

	return cmd, int(hdr.Length), nil
}

func parseCSF(buf []byte, off int) (*CSF, error) {
	v := byteview.View(buf)
	hdr, err := decodeHeader(v, off)
	if err != nil {
		return nil, err
	}
	csfEnd := off + int(hdr.Length)
	if csfEnd > len(buf) {
		csfEnd = len(buf)
	}
	return &CSF{
		Header: hdr,
		Offset: off,
		Range:  container.Range{Start: off, End: csfEnd},
		Data:   buf[off:csfEnd],
	}, nil
}

func parseApp(buf []byte, off int, body Body, bootData BootData, warnf Warnf) (container.Image, int) {
	appStart := off + int(bootData.Start-body.Addr)
	appEnd := appStart + int(bootData.Length)
	appEntry := off + int(body.Entry-body.Addr)

	if appEnd > len(buf) {
		warnf.emit("%s", byteview.NewSizeAnomalyError(appStart, int(bootData.Length), len(buf)-appStart))
		appEnd = len(buf)
	}

	img := container.Image{
		Kind:     container.KindIVTApp,
		Range:    container.Range{Start: appStart, End: appEnd},
		Entry:    appEntry,
		HasEntry: true,
	}
	if appEnd > appStart {
		img.Data = buf[appStart:appEnd]
	}

	return img, appEnd
}
