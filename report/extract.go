package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SanitizePath converts a source file path into a filesystem-safe
// extraction prefix: path separators become underscores, and any leading
// "." or "_" run is stripped, matching the source tool's path-to-filename
// rule for its binwalk-style image export.
func SanitizePath(path string) string {
	s := strings.ReplaceAll(path, string(filepath.Separator), "_")
	s = strings.ReplaceAll(s, "/", "_")
	return strings.TrimLeft(s, "._")
}

// ExtractImages writes every materialized image's Data into dir, named
// "<sanitized source path>-<offset hex uppercase>.<ext>", and returns the
// paths written. Images with no materialized Data (HasData false at scan
// time) are skipped, not written out as empty files.
func ExtractImages(dir, sourcePath string, containers []Container) ([]string, error) {
	prefix := SanitizePath(sourcePath)
	var written []string
	for _, c := range containers {
		for _, img := range c.Images {
			if img.Data == nil {
				continue
			}
			name := fmt.Sprintf("%s-%X.%s", prefix, img.Offset, img.FileExt)
			full := filepath.Join(dir, name)
			if err := os.WriteFile(full, img.Data, 0o644); err != nil {
				return written, fmt.Errorf("extract image %s: %w", full, err)
			}
			written = append(written, full)
		}
	}
	return written, nil
}
