// Package report defines the serializable, format-agnostic view of a scan:
// the tree of located containers and their images, plus YAML and gob
// ("pickle") writers/readers for it, and image extraction.
package report

import "time"

// ImageKind mirrors container.Kind as a YAML-friendly string tag instead of
// a bare int, so exported results are self-describing without a
// lookup table.
type ImageKind string

// Recognized ImageKind values, one per container.Kind.
const (
	ImageKindContainerImage ImageKind = "container-image"
	ImageKindIVTApp         ImageKind = "ivt-app"
	ImageKindDTB            ImageKind = "dtb"
	ImageKindDTS            ImageKind = "dts"
	ImageKindCSF            ImageKind = "csf"
)

// Image is the exported form of container.Image: a located byte range plus
// whatever the image's data and entry point were, when materialized.
type Image struct {
	Kind    ImageKind `yaml:"kind"`
	Offset  int       `yaml:"offset"`
	End     int       `yaml:"end"`
	Entry   int       `yaml:"entry,omitempty"`
	FileExt string    `yaml:"file_ext,omitempty"`
	Data    []byte    `yaml:"data,omitempty"`
}

// Container is the exported form of a container.Container: its format tag,
// byte range, a flattened header field map, and its images.
type Container struct {
	Format string            `yaml:"format"`
	Offset int               `yaml:"offset"`
	End    int               `yaml:"end"`
	Header map[string]string `yaml:"header"`
	Images []Image           `yaml:"images,omitempty"`
}

// FileResult is every container located in one scanned file.
type FileResult struct {
	Path       string      `yaml:"path"`
	ScannedAt  time.Time   `yaml:"scanned_at"`
	Containers []Container `yaml:"containers"`
}

// Result is a complete scan run: every file scanned, in the order they were
// walked. Files, not a map keyed by path, to keep YAML key order stable
// across runs.
type Result struct {
	Files []FileResult `yaml:"files"`
}
