package report

import (
	"fmt"

	"github.com/go-imx/imxscan/container"
	"github.com/go-imx/imxscan/fit"
	"github.com/go-imx/imxscan/imxcontainer"
	"github.com/go-imx/imxscan/ivt"
)

// FromContainers converts every located structure in cs to its report
// form. includeData controls whether an image's raw bytes are copied into
// the report (the --include-image-contents flag); when false, only its
// location metadata is kept and Data is left nil.
func FromContainers(cs []container.Container, includeData bool) []Container {
	out := make([]Container, 0, len(cs))
	for _, c := range cs {
		out = append(out, fromContainer(c, includeData))
	}
	return out
}

func fromContainer(c container.Container, includeData bool) Container {
	return Container{
		Format: c.Format(),
		Offset: c.Offset(),
		End:    c.End(),
		Header: headerFields(c),
		Images: fromImages(c.Images(), includeData),
	}
}

// headerFields flattens a format's own header record into a plain string
// map: explicit per-format field lists, rather than a reflection-based
// struct dump, so the report stays a stable, hand-maintained contract.
func headerFields(c container.Container) map[string]string {
	switch t := c.(type) {
	case *imxcontainer.Container:
		return map[string]string{
			"tag":             fmt.Sprintf("%v", t.Hdr.Tag),
			"version":         fmt.Sprintf("%v", t.Hdr.Version),
			"num_images":      fmt.Sprintf("%d", t.Hdr.NumImages),
			"srk_set":         t.SRK.Set.Render(),
			"srk_index":       fmt.Sprintf("%d", t.SRK.Index),
			"srk_revoke_mask": fmt.Sprintf("%#x", t.SRK.RevokeMask),
			"is_message":      fmt.Sprintf("%t", t.IsMessage()),
			"has_signature":   fmt.Sprintf("%t", t.SigBlock != nil),
		}
	case *ivt.Container:
		return map[string]string{
			"tag":       fmt.Sprintf("%v", t.Hdr.Tag),
			"version":   fmt.Sprintf("%v", t.Hdr.Version),
			"entry":     fmt.Sprintf("%#x", t.Body.Entry),
			"dcd_addr":  fmt.Sprintf("%#x", t.Body.DCD),
			"csf_addr":  fmt.Sprintf("%#x", t.Body.CSF),
			"has_dcd":   fmt.Sprintf("%t", t.DCD != nil),
			"has_csf":   fmt.Sprintf("%t", t.CSF != nil),
			"boot_size": fmt.Sprintf("%#x", t.BootData.Length),
		}
	case *fit.Container:
		return map[string]string{
			"magic":      fmt.Sprintf("%#x", t.Hdr.Magic),
			"total_size": fmt.Sprintf("%#x", t.Hdr.TotalSize),
			"version":    fmt.Sprintf("%d", t.Hdr.Version),
		}
	default:
		return nil
	}
}

func fromImages(images []container.Image, includeData bool) []Image {
	out := make([]Image, 0, len(images))
	for _, img := range images {
		ri := Image{
			Kind:    imageKind(img.Kind),
			Offset:  img.Range.Start,
			End:     img.Range.End,
			FileExt: img.Kind.FileExt(),
		}
		if img.HasEntry {
			ri.Entry = img.Entry
		}
		if includeData && img.HasData() {
			ri.Data = img.Data
		}
		out = append(out, ri)
	}
	return out
}

// StripImageData returns a copy of containers with every image's Data
// cleared, for writing a report file when --include-image-contents was not
// requested while still allowing --extract to use the fully materialized
// conversion in memory.
func StripImageData(containers []Container) []Container {
	out := make([]Container, len(containers))
	for i, c := range containers {
		cc := c
		cc.Images = make([]Image, len(c.Images))
		for j, img := range c.Images {
			img.Data = nil
			cc.Images[j] = img
		}
		out[i] = cc
	}
	return out
}

func imageKind(k container.Kind) ImageKind {
	switch k {
	case container.KindContainerImage:
		return ImageKindContainerImage
	case container.KindIVTApp:
		return ImageKindIVTApp
	case container.KindDTB:
		return ImageKindDTB
	case container.KindDTS:
		return ImageKindDTS
	case container.KindCSF:
		return ImageKindCSF
	default:
		return ImageKind(k.String())
	}
}
