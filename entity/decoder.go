package entity

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/arloliu/mpegg/box"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/internal/bitio"
	"github.com/arloliu/mpegg/internal/options"
	"github.com/arloliu/mpegg/payload"
)

// Decoder parses a container file from an arena.
//
// The file header is parsed on first use; dataset groups can then be read
// one at a time with Next, or all at once with DecodeFile. A Decoder is not
// safe for concurrent use, but the entities it returns are.
type Decoder struct {
	cfg    *DecoderConfig
	r      *bitio.Reader
	header *FileHeader
}

// NewDecoder returns a decoder reading arena from its first byte.
func NewDecoder(arena payload.Arena, opts ...DecoderOption) (*Decoder, error) {
	cfg := newDecoderConfig()
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	r := bitio.NewReader(payload.New(arena))
	r.SetLimits(cfg.limits)

	return &Decoder{cfg: cfg, r: r}, nil
}

// FileHeader returns the flhd box.
func (d *Decoder) FileHeader() (*FileHeader, error) {
	if d.header != nil {
		return d.header, nil
	}

	h, err := box.Expect(d.r, box.KeyFileHeader)
	if err != nil {
		return nil, fmt.Errorf("file: %w", err)
	}
	fh := &FileHeader{}
	if err := d.cfg.readChild(d.r, h, fh); err != nil {
		return nil, err
	}
	d.header = fh

	return fh, nil
}

// Next parses the next dataset group. It returns io.EOF after the last one.
func (d *Decoder) Next() (*DatasetGroup, error) {
	if _, err := d.FileHeader(); err != nil {
		return nil, err
	}

	h, ok, err := nextHeader(d.r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, io.EOF
	}
	if h.Key != box.KeyDatasetGroup {
		return nil, fmt.Errorf("%w: %s at file level", errs.ErrUnexpectedElement, h.Key)
	}

	g := newDatasetGroup(d.cfg)
	if err := d.cfg.readChild(d.r, h, g); err != nil {
		return nil, err
	}

	return g, nil
}

// DecodeFile parses the whole file. At least one dataset group is required.
func (d *Decoder) DecodeFile() (*File, error) {
	start := time.Now()
	defer func() { d.cfg.metrics.ObserveParse(time.Since(start)) }()

	fh, err := d.FileHeader()
	if err != nil {
		return nil, err
	}

	f := &File{Header: fh}
	for {
		g, err := d.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		f.Groups = append(f.Groups, g)
	}
	if len(f.Groups) == 0 {
		return nil, fmt.Errorf("%w: file has no %s", errs.ErrMissingElement, box.KeyDatasetGroup)
	}

	d.cfg.logger.Debug("decoded file", "groups", len(f.Groups), "bytes", d.r.Consumed())

	return f, nil
}
