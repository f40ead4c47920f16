package report_test

import (
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/go-imx/imxscan/report"
)

func sampleResult() report.Result {
	return report.Result{
		Files: []report.FileResult{
			{
				Path:      "/boot/firmware.bin",
				ScannedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
				Containers: []report.Container{
					{
						Format: "i.MX Container",
						Offset: 0,
						End:    0x1000,
						Header: map[string]string{"tag": "CONTAINER"},
						Images: []report.Image{
							{Kind: report.ImageKindContainerImage, Offset: 0x400, End: 0x800, FileExt: "bin"},
						},
					},
				},
			},
		},
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	c := qt.New(t)
	dir := c.TempDir()
	base := filepath.Join(dir, "scan_results")

	want := sampleResult()
	full, err := report.WriteYAML(base, want)
	c.Assert(err, qt.IsNil)
	c.Assert(full, qt.Equals, base+".yaml")

	got, err := report.ReadYAML(full)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, want)
}

func TestPickleRoundTrip(t *testing.T) {
	c := qt.New(t)
	dir := c.TempDir()
	base := filepath.Join(dir, "scan_results")

	want := sampleResult()
	full, err := report.WritePickle(base, want)
	c.Assert(err, qt.IsNil)
	c.Assert(full, qt.Equals, base+".pickle")

	got, err := report.ReadPickle(full)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, want)
}

func TestOpenProbesBothFormats(t *testing.T) {
	c := qt.New(t)
	dir := c.TempDir()
	base := filepath.Join(dir, "scan_results")

	want := sampleResult()
	full, err := report.WritePickle(base, want)
	c.Assert(err, qt.IsNil)

	got, err := report.Open(full)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, want)

	full, err = report.WriteYAML(base, want)
	c.Assert(err, qt.IsNil)

	got, err = report.Open(full)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, want)
}

func TestWriteDispatchesByFormat(t *testing.T) {
	c := qt.New(t)
	dir := c.TempDir()
	base := filepath.Join(dir, "scan_results")
	want := sampleResult()

	full, err := report.Write(base, want, report.FormatPickle)
	c.Assert(err, qt.IsNil)
	c.Assert(full, qt.Equals, base+".pickle")

	full, err = report.Write(base, want, report.FormatAuto)
	c.Assert(err, qt.IsNil)
	c.Assert(full, qt.Equals, base+".yaml")

	_, err = report.Write(base, want, "bogus")
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestSanitizePath(t *testing.T) {
	c := qt.New(t)
	c.Assert(report.SanitizePath("./._firmware/boot.bin"), qt.Equals, "firmware_boot.bin")
	c.Assert(report.SanitizePath("a/b/c.bin"), qt.Equals, "a_b_c.bin")
}

func TestExtractImages(t *testing.T) {
	c := qt.New(t)
	dir := c.TempDir()

	containers := []report.Container{
		{
			Images: []report.Image{
				{Offset: 0x400, FileExt: "bin", Data: []byte("payload")},
				{Offset: 0x900, FileExt: "dtb", Data: nil}, // skipped: no materialized data
			},
		},
	}

	written, err := report.ExtractImages(dir, "firmware.bin", containers)
	c.Assert(err, qt.IsNil)
	c.Assert(len(written), qt.Equals, 1)
	c.Assert(filepath.Base(written[0]), qt.Equals, "firmware.bin-400.bin")
}
