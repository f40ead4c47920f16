package main

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// dtcFormatter renders a DTB blob to DTS text by shelling out to the
// device tree compiler, the same way the source tool's pyfdt-backed
// renderer plays a format-conversion role external to the scanner itself.
// It implements fit.DTSFormatter.
type dtcFormatter struct {
	path string
}

// newDTCFormatter returns a formatter backed by the first "dtc" found on
// PATH, or nil if none is installed — the caller then omits DTS rendering
// entirely rather than failing the scan.
func newDTCFormatter() *dtcFormatter {
	path, err := exec.LookPath("dtc")
	if err != nil {
		return nil
	}
	return &dtcFormatter{path: path}
}

func (f *dtcFormatter) Format(dtb []byte) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.path, "-I", "dtb", "-O", "dts", "-")
	cmd.Stdin = bytes.NewReader(dtb)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return out.String(), nil
}
