// Package locate implements the address-sweep engine: it walks a byte
// buffer, dispatches i.MX Container / IVT / FIT candidate recognition at
// each probe offset, and assembles the resulting containers while making
// sure an accepted structure's interior is never re-probed.
package locate

import (
	"context"

	"github.com/go-imx/imxscan/byteview"
	"github.com/go-imx/imxscan/container"
	"github.com/go-imx/imxscan/fit"
	"github.com/go-imx/imxscan/imxcontainer"
	"github.com/go-imx/imxscan/ivt"
)

// ScanOptions configures a single sweep.
type ScanOptions struct {
	// Increment is the probe stride used once no format matches at an
	// offset. Must be >= 1; the sweep rounds back up to a multiple of
	// Increment after skipping claimed ranges.
	Increment int

	// Warnf, if non-nil, receives a formatted diagnostic for every
	// abandoned candidate and for the image anomalies the format parsers
	// report (an empty or oversized i.MX image, a clamped IVT payload).
	Warnf func(format string, args ...any)

	// Formatter, if non-nil, renders a DTS text image alongside every
	// discovered FIT blob's raw DTB image.
	Formatter fit.DTSFormatter
}

func (o ScanOptions) warnf(format string, args ...any) {
	if o.Warnf != nil {
		o.Warnf(format, args...)
	}
}

func (o ScanOptions) increment() int {
	if o.Increment < 1 {
		return 4
	}
	return o.Increment
}

// Scan walks buf from offset 0, returning every located container in
// discovery order. If ctx is cancelled mid-sweep, Scan returns the partial
// result together with an error satisfying errors.Is(err,
// byteview.ErrInterrupted); callers should treat that as a normal, partial
// completion rather than a failure.
func Scan(ctx context.Context, buf []byte, opts ScanOptions) ([]container.Container, error) {
	var containers []container.Container
	offset := 0
	increment := opts.increment()

	for offset < len(buf) {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return containers, byteview.ErrInterrupted
			default:
			}
		}

		switch {
		case imxcontainer.IsCandidate(buf, offset):
			c, err := imxcontainer.Parse(buf, offset, imxcontainer.Warnf(opts.Warnf))
			if err != nil {
				if !byteview.IsRecoverable(err) {
					return containers, err
				}
				opts.warnf("unable to extract probable i.MX Container @ %#x: %v", offset, err)
				offset = advance(containers, offset, increment)
				continue
			}
			containers = append(containers, c)
			containers = append(containers, discoverNestedFIT(c, opts)...)
			offset = c.End()

		case ivt.IsCandidate(buf, offset):
			c, err := ivt.Parse(buf, offset, ivt.Warnf(opts.Warnf))
			if err != nil {
				if !byteview.IsRecoverable(err) {
					return containers, err
				}
				opts.warnf("unable to extract probable IVT @ %#x: %v", offset, err)
				offset = advance(containers, offset, increment)
				continue
			}
			containers = append(containers, c)
			offset = c.End()

		case fit.IsCandidate(buf, offset):
			c, err := fit.Parse(buf, offset, opts.Formatter)
			if err != nil {
				if !byteview.IsRecoverable(err) {
					return containers, err
				}
				opts.warnf("unable to extract probable FIT @ %#x: %v", offset, err)
				offset = advance(containers, offset, increment)
				continue
			}
			containers = append(containers, c)
			offset = c.End()

		default:
			offset = advance(containers, offset, increment)
		}
	}

	return containers, nil
}

// discoverNestedFIT probes every materialized image of a freshly parsed
// i.MX container for an embedded FIT blob, rebasing any hit onto the
// top-level buffer's address space and nulling the parent image's data
// when the FIT exactly fills it.
func discoverNestedFIT(c *imxcontainer.Container, opts ScanOptions) []container.Container {
	var found []container.Container
	images := c.Images()
	for i := range images {
		img := images[i]
		if !img.HasData() {
			continue
		}
		if !fit.IsCandidate(img.Data, 0) {
			continue
		}
		nested, err := fit.Parse(img.Data, 0, opts.Formatter)
		if err != nil {
			opts.warnf("unable to extract probable FIT from image @ %#x: %v", img.Range.Start, err)
			continue
		}
		nested.FixOffset(img.Range.Start)
		if nested.CoversExactly(img.Range) {
			images[i].Data = nil
		}
		found = append(found, nested)
	}
	return found
}

// advance implements the §4.5 fallback step: step past addr by increment,
// find the next address at or after that which isn't claimed by any
// already-found container's images, then round up to the next multiple of
// increment.
func advance(containers []container.Container, addr, increment int) int {
	addr = nextUnclaimed(containers, addr+increment)
	if increment > 1 {
		if unaligned := addr % increment; unaligned != 0 {
			addr += increment - unaligned
		}
	}
	return addr
}

// nextUnclaimed re-derives the source tool's recursive fixpoint as an
// explicit loop: each container may move addr past one of its own images,
// and because containers can interleave, a move can land inside a
// container already checked, so the whole list is rechecked until a pass
// leaves addr unchanged.
func nextUnclaimed(containers []container.Container, addr int) int {
	for {
		moved := addr
		for _, c := range containers {
			moved = c.FindNextAddr(moved)
		}
		if moved == addr {
			return addr
		}
		addr = moved
	}
}
