package fit

import (
	"github.com/go-imx/imxscan/byteview"
	"github.com/go-imx/imxscan/container"
)

// DTSFormatter renders a raw DTB blob as DTS text. Implementations wrap an
// external device-tree compiler or library; when none is configured, the
// DTS image is simply omitted rather than treated as an error.
type DTSFormatter interface {
	Format(dtb []byte) (string, error)
}

// Container is a fully parsed FIT/FDT blob.
type Container struct {
	Hdr    Header
	offset int
	end    int
	images []container.Image
}

var _ container.Container = (*Container)(nil)

// Format implements container.Container.
func (c *Container) Format() string { return "FIT" }

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
	if len(buf) < off+8 {
		return false
	}
	magic, err := v.U32BE(off)
	if err != nil || magic != Magic {
		return false
	}
	size, err := v.U32BE(off + 4)
	if err != nil {
		return false
	}
	return len(buf) >= int(size)
}

// Parse fully decodes the FDT blob starting at off. The caller must have
// already confirmed IsCandidate(buf, off). formatter, if non-nil, is used
// to render a DTS text image alongside the raw DTB image; when nil, only
// the DTB image is produced.
func Parse(buf []byte, off int, formatter DTSFormatter) (*Container, error) {
	v := byteview.View(buf)

	hdr, err := decodeHeader(v, off)
	if err != nil {
		return nil, err
	}
	if hdr.Magic != Magic {
		return nil, byteview.NewStructuralInvariantError("FIT", off, "bad magic")
	}

	end := off + int(hdr.TotalSize)
	if end > len(buf) {
		return nil, byteview.NewStructuralInvariantError("FIT", off, "totalsize exceeds buffer")
	}

	dtb := buf[off:end]
	rng := container.Range{Start: off, End: end}

	images := []container.Image{
		{Kind: container.KindDTB, Range: rng, Data: dtb},
	}

	if formatter != nil {
		dts, err := formatter.Format(dtb)
		if err == nil {
			images = append(images, container.Image{Kind: container.KindDTS, Range: rng, Data: []byte(dts)})
		}
	}

	return &Container{
		Hdr:    hdr,
		offset: off,
		end:    end,
		images: images,
	}, nil
}

// FixOffset rebases a FIT container that was parsed from an enclosing
// image's byte slice onto the top-level buffer's address space: base is
// the absolute offset at which the FIT starts in the top-level buffer, and
// the end and every image range are shifted by the same amount.
func (c *Container) FixOffset(base int) {
	shift := base - c.offset
	c.offset = base
	c.end += shift
	for i := range c.images {
		c.images[i].Range.Start += shift
		c.images[i].Range.End += shift
	}
}

// CoversExactly reports whether this container's range exactly matches r,
// meaning the discovering image is fully subsumed by the FIT and should
// have its own Data nulled out.
func (c *Container) CoversExactly(r container.Range) bool {
	return c.offset == r.Start && c.end == r.End
}
