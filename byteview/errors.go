// Package byteview provides bounds-checked, explicit-endianness decoding of
// fixed-layout records out of an in-memory byte buffer.
package byteview

import (
	"errors"
	"fmt"
)

// TruncatedReadError is returned when a decode would read past the end of
// the buffer.
type TruncatedReadError struct {
	Offset int
	Want   int
	Have   int
}

func (e *TruncatedReadError) Error() string {
	return fmt.Sprintf("truncated read @ %#x: want %d bytes, have %d", e.Offset, e.Want, e.Have)
}

// Is reports whether target is also a *TruncatedReadError, so callers can
// use errors.Is(err, ErrTruncatedRead) without caring about the offsets.
func (e *TruncatedReadError) Is(target error) bool {
	_, ok := target.(*TruncatedReadError)
	return ok
}

// ErrTruncatedRead is a sentinel usable with errors.Is.
var ErrTruncatedRead = &TruncatedReadError{}

func newTruncatedReadError(offset, want, have int) error {
	return &TruncatedReadError{Offset: offset, Want: want, Have: have}
}

// StructuralInvariantError is returned when a post-decode sanity check
// fails: a bad tag, wrong version, bad length, or similar. The sweep treats
// this as "not actually a container" and abandons the candidate.
type StructuralInvariantError struct {
	Format string
	Offset int
	Reason string
}

func (e *StructuralInvariantError) Error() string {
	return fmt.Sprintf("unable to extract probable %s @ %#x: %s", e.Format, e.Offset, e.Reason)
}

func (e *StructuralInvariantError) Is(target error) bool {
	_, ok := target.(*StructuralInvariantError)
	return ok
}

// NewStructuralInvariantError builds a StructuralInvariantError.
func NewStructuralInvariantError(format string, offset int, reason string) error {
	return &StructuralInvariantError{Format: format, Offset: offset, Reason: reason}
}

// SizeAnomalyError marks an image or payload whose declared size runs past
// the data actually available. The caller keeps the header but records the
// image with no data.
type SizeAnomalyError struct {
	Offset int
	Declared int
	Available int
}

func (e *SizeAnomalyError) Error() string {
	return fmt.Sprintf("declared size at %#x (%d) exceeds available data (%d)", e.Offset, e.Declared, e.Available)
}

func (e *SizeAnomalyError) Is(target error) bool {
	_, ok := target.(*SizeAnomalyError)
	return ok
}

// NewSizeAnomalyError builds a SizeAnomalyError.
func NewSizeAnomalyError(offset, declared, available int) error {
	return &SizeAnomalyError{Offset: offset, Declared: declared, Available: available}
}

// ErrInterrupted is returned (never wrapped) when a scan is halted early by
// context cancellation. It is not a failure: callers should treat it as
// "here are the partial results".
var ErrInterrupted = errors.New("scan interrupted")

// IsRecoverable reports whether err is one that should cause the sweep to
// abandon the current candidate and keep going, as opposed to aborting the
// whole scan.
func IsRecoverable(err error) bool {
	var tr *TruncatedReadError
	var si *StructuralInvariantError
	return errors.As(err, &tr) || errors.As(err, &si)
}
