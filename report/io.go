package report

import (
	"encoding/gob"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// OutputFormat selects a report serializer.
type OutputFormat string

// Recognized OutputFormat values.
const (
	// FormatAuto picks YAML; it exists only so a CLI default of "auto"
	// has somewhere explicit to resolve to.
	FormatAuto   OutputFormat = "auto"
	FormatYAML   OutputFormat = "yaml"
	FormatPickle OutputFormat = "pickle"
)

// WriteYAML serializes result to basePath+".yaml" and returns the filename
// written.
func WriteYAML(basePath string, result Result) (string, error) {
	full := basePath + ".yaml"
	data, err := yaml.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", err
	}
	return full, nil
}

// ReadYAML deserializes a report previously written by WriteYAML.
func ReadYAML(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	var result Result
	if err := yaml.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("unmarshal report: %w", err)
	}
	return result, nil
}

// WritePickle serializes result to basePath+".pickle" using encoding/gob,
// the fallback format when a caller wants a compact binary dump rather
// than YAML. Despite the name, this is Go's own object-graph encoding, not
// Python pickle; it fills the same role for a result format with no
// cross-language readability requirement.
func WritePickle(basePath string, result Result) (string, error) {
	full := basePath + ".pickle"
	f, err := os.Create(full)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(result); err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	return full, nil
}

// ReadPickle deserializes a report previously written by WritePickle.
func ReadPickle(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	var result Result
	if err := gob.NewDecoder(f).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode report: %w", err)
	}
	return result, nil
}

// Write dispatches to WriteYAML or WritePickle by format, treating
// FormatAuto as FormatYAML.
func Write(basePath string, result Result, format OutputFormat) (string, error) {
	switch format {
	case FormatPickle:
		return WritePickle(basePath, result)
	case FormatYAML, FormatAuto, "":
		return WriteYAML(basePath, result)
	default:
		return "", fmt.Errorf("unknown output format %q", format)
	}
}

// Open reads a report file, trying gob first and falling back to YAML,
// mirroring the source tool's open_results probing pickle then YAML.
func Open(path string) (Result, error) {
	if result, err := ReadPickle(path); err == nil {
		return result, nil
	}
	return ReadYAML(path)
}
