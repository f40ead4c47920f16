// Package container defines the shared shapes that every located structure
// (i.MX Authentication Container, legacy IVT, FIT/FDT blob) is expressed
// in, so the locator and report packages can treat all three uniformly.
package container

import "fmt"

// Range is a half-open byte interval [Start, End) in the top-level buffer.
type Range struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// Contains reports whether addr falls inside [Start, End).
func (r Range) Contains(addr int) bool {
	return addr >= r.Start && addr < r.End
}

func (r Range) String() string {
	return fmt.Sprintf("(%#x, %#x)", r.Start, r.End)
}

// Kind tags what an Image actually is, replacing the source tool's
// dict-shaped image record (which carried optional offset/range/data/
// fileext/entry/kind keys) with a single discriminated variant.
type Kind int

const (
	// KindContainerImage is an image entry inside an i.MX Authentication
	// Container's image table.
	KindContainerImage Kind = iota
	// KindIVTApp is the single application payload referenced by an IVT's
	// BootData.
	KindIVTApp
	// KindDTB is the raw Flattened Device Tree blob of a FIT container.
	KindDTB
	// KindDTS is the textual rendering of a FIT container, produced by an
	// external formatter. Omitted (not an error) when no formatter is
	// configured.
	KindDTS
	// KindCSF is an opaque Command Sequence File range referenced by an
	// IVT; it is recorded but not structurally parsed.
	KindCSF
)

func (k Kind) String() string {
	switch k {
	case KindContainerImage:
		return "container-image"
	case KindIVTApp:
		return "ivt-app"
	case KindDTB:
		return "dtb"
	case KindDTS:
		return "dts"
	case KindCSF:
		return "csf"
	default:
		return "unknown"
	}
}

// FileExt returns the extraction file extension for this kind, per the
// naming rule in the external interfaces section: FIT-derived images use
// dtb/dts, everything else defaults to bin.
func (k Kind) FileExt() string {
	switch k {
	case KindDTB:
		return "dtb"
	case KindDTS:
		return "dts"
	default:
		return "bin"
	}
}

// Image is a located payload byte range plus whatever metadata its kind
// carries. Data is nil when the image is referenced but not materialized:
// a DCD_DDR image with declared size 0, a FIT fully subsumed by its
// parent image, or an image whose declared size ran past the buffer.
type Image struct {
	Kind  Kind
	Range Range

	// Entry is the load-time entry point, meaningful only for
	// KindIVTApp.
	Entry int
	// HasEntry reports whether Entry is meaningful for this image.
	HasEntry bool

	// Data holds the image bytes (or DTS text, as a []byte) when
	// materialized. It is either a borrowed slice of the top-level
	// buffer or text produced by the FIT formatter.
	Data []byte

	// Metadata carries the format-specific decoded record (e.g. an
	// *imxcontainer.ImageHeader or nothing for IVT/FIT images) so report
	// consumers can render full detail without a type switch here.
	Metadata any
}

// HasData reports whether the image's bytes were materialized.
func (img Image) HasData() bool {
	return img.Data != nil
}

// Container is the abstract located structure every format parser
// produces: an i.MX Authentication Container, a legacy IVT, or a FIT/FDT
// blob.
type Container interface {
	// Format names the structure kind for logging/reporting, e.g.
	// "i.MX Container", "IVT", "FIT".
	Format() string
	// Offset is the absolute start of the structure in the top-level
	// buffer.
	Offset() int
	// End is the absolute, half-open end of the structure: the sweep
	// resumes scanning here on success.
	End() int
	// Images returns the ordered list of images this container owns, in
	// the order their headers appear in the container's layout.
	Images() []Image
	// FindNextAddr returns the next address at or after addr that does
	// not fall inside one of this container's own image ranges. If addr
	// is not inside any image it is returned unchanged.
	FindNextAddr(addr int) int
	// Header returns the format-tagged header record for report
	// rendering (e.g. *imxcontainer.Header, *ivt.Header, *fit.Header).
	Header() any
}

// FindNextAddr implements the §4.5 find_next_addr algorithm shared by
// every Container implementation: jump to the end of the image addr falls
// in, and recheck, because images within one container need not be
// contiguous.
func FindNextAddr(images []Image, addr int) int {
	for {
		moved := false
		for _, img := range images {
			if img.Range.Contains(addr) {
				addr = img.Range.End
				moved = true
				break
			}
		}
		if !moved {
			return addr
		}
	}
}
