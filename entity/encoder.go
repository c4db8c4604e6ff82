package entity

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/arloliu/mpegg/box"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/internal/bitio"
	"github.com/arloliu/mpegg/internal/options"
)

// Encoder writes container files.
type Encoder struct {
	cfg *EncoderConfig
	w   io.Writer
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer, opts ...EncoderOption) (*Encoder, error) {
	cfg := &EncoderConfig{logger: slog.New(slog.DiscardHandler)}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	return &Encoder{cfg: cfg, w: w}, nil
}

// EncodeFile writes f. Nothing is guaranteed about the sink content when an
// error is returned.
func (e *Encoder) EncodeFile(f *File) error {
	if f.Header == nil {
		return fmt.Errorf("%w: file without header", errs.ErrMissingElement)
	}
	if len(f.Groups) == 0 {
		return fmt.Errorf("%w: file without dataset groups", errs.ErrInvalidValue)
	}

	bw := bitio.NewWriter(e.w)
	if err := box.WriteWithHeader(bw, f.Header); err != nil {
		return err
	}
	for _, g := range f.Groups {
		if err := box.WriteWithHeader(bw, g); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	e.cfg.logger.Debug("encoded file", "groups", len(f.Groups), "bytes", bw.Position())

	return nil
}
