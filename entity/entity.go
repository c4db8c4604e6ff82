// Package entity implements the box hierarchy of a genomic container file:
// file header, dataset groups, references, labels, datasets, parameter
// sets, access units and descriptor streams.
//
// Every entity reports its content size, writes its content and parses it
// back; the three must agree, and box.ReadEntity enforces it on every read.
// Composite entities parse their children with a fixed grammar in which
// optional children are recognized by their key and must appear in order.
package entity

import (
	"errors"
	"fmt"
	"io"

	"github.com/arloliu/mpegg/box"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/internal/bitio"
)

// boxLength returns the full length of e. Entities that cannot report
// their size are encoded into a counting writer, and a failing encode is
// returned instead of a length.
func boxLength(e box.Entity) (uint64, error) {
	if n, ok := box.TotalSize(e); ok {
		return n, nil
	}

	cw := bitio.NewWriter(io.Discard)
	if err := e.Write(cw); err != nil {
		return 0, err
	}
	cw.Align()

	return box.HeaderSize + uint64(cw.BitsWritten()/8), nil //nolint:gosec
}

// sumLengths adds the full lengths of es.
func sumLengths(es ...box.Entity) (uint64, error) {
	var n uint64
	for _, e := range es {
		l, err := boxLength(e)
		if err != nil {
			return 0, err
		}
		n += l
	}

	return n, nil
}

// readChild parses the box announced by h into e and records it.
func (c *DecoderConfig) readChild(r *bitio.Reader, h box.Header, e box.Readable) error {
	offset := r.Position() - box.HeaderSize
	if err := box.ReadEntity(r, h, e); err != nil {
		c.metrics.ObserveError(err)
		return err
	}
	c.metrics.ObserveBox(h.Key.String(), h.Length)
	c.logger.Debug("parsed box", "key", h.Key.String(), "content_size", h.ContentSize(), "offset", offset)

	return nil
}

// nextHeader reads the next child header. The boolean is false at the end
// of the enclosing container.
func nextHeader(r *bitio.Reader) (box.Header, bool, error) {
	h, err := box.ReadHeader(r)
	if errors.Is(err, io.EOF) {
		return box.Header{}, false, nil
	}
	if err != nil {
		return box.Header{}, false, err
	}

	return h, true, nil
}

// grammar tracks the position of a parser in an ordered list of children.
type grammar struct {
	container box.Key
	stage     int
}

// advance moves to stage for a child with key k. A child may only repeat
// when repeatable, and never appear after a later stage.
func (g *grammar) advance(k box.Key, stage int, repeatable bool) error {
	if stage < g.stage || (stage == g.stage && !repeatable) {
		return fmt.Errorf("%w: %s out of order in %s", errs.ErrUnexpectedElement, k, g.container)
	}
	g.stage = stage

	return nil
}

func unexpected(container box.Key, h box.Header) error {
	return fmt.Errorf("%w: %s inside %s", errs.ErrUnexpectedElement, h.Key, container)
}

func missing(container box.Key, child box.Key) error {
	return fmt.Errorf("%w: %s has no %s", errs.ErrMissingElement, container, child)
}
