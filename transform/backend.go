package transform

import (
	"fmt"

	"github.com/arloliu/mpegg/compress"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/internal/bitio"
	"github.com/arloliu/mpegg/internal/pool"
	"github.com/arloliu/mpegg/payload"
)

// SymbolEncoder entropy-codes the symbols of one transformed stream.
type SymbolEncoder interface {
	Encode(v uint64) error
	// Finish returns the coded stream. The encoder must not be used afterwards.
	Finish() ([]byte, error)
}

// SymbolDecoder reads back the symbols of one transformed stream.
type SymbolDecoder interface {
	Decode() (uint64, error)
}

// EntropyBackend builds the per-stream coders of a transform.
type EntropyBackend interface {
	NewSymbolEncoder(cfg EncodingConfiguration, ctx Context) (SymbolEncoder, error)
	NewSymbolDecoder(cfg EncodingConfiguration, ctx Context, data []byte) (SymbolDecoder, error)
}

// BypassBackend writes binarized symbols as plain bits, the way the
// arithmetic coder does in bypass mode. Context parameters are ignored.
//
// Symbols wider than the coding subsymbol size are split into subsymbols,
// least significant first. Lookup table and differential subsymbol
// transforms need the context model and are not supported.
type BypassBackend struct{}

var _ EntropyBackend = BypassBackend{}

// symbolLayout is the binarizer and subsymbol split shared by the bypass coders.
type symbolLayout struct {
	bz        binarizer
	subsyms   int
	subsymLen int
}

func newSymbolLayout(cfg EncodingConfiguration, ctx Context) (symbolLayout, error) {
	if err := cfg.Validate(); err != nil {
		return symbolLayout{}, err
	}
	sym := cfg.Symbol
	if sym.Subsymbols() && sym.SubsymTransform != SubsymNone {
		return symbolLayout{}, fmt.Errorf("%w: %s subsymbol transform in bypass mode", errs.ErrUnsupportedPath, sym.SubsymTransform)
	}
	if sym.Subsymbols() && cfg.Binarization.ID.Signed() {
		return symbolLayout{}, fmt.Errorf("%w: signed %s binarization over subsymbols", errs.ErrUnsupportedPath, cfg.Binarization.ID)
	}

	cMax := uint64(cfg.Binarization.CMax)
	if cfg.Binarization.ID == TruncatedUnary {
		cMax = ctx.truncatedUnaryMax(cfg)
	}
	bz, err := newBinarizer(cfg.Binarization, int(sym.CodingSubsymSize), int(sym.CodingSubsymSize), cMax)
	if err != nil {
		return symbolLayout{}, err
	}
	if !sym.Subsymbols() {
		bz.outputBits = int(sym.OutputSymbolSize)
	}

	l := symbolLayout{bz: bz, subsymLen: int(sym.CodingSubsymSize)}
	l.subsyms = (int(sym.OutputSymbolSize) + l.subsymLen - 1) / l.subsymLen

	return l, nil
}

type bypassEncoder struct {
	layout symbolLayout
	buf    *pool.ByteBuffer
	w      *bitio.Writer
}

// NewSymbolEncoder implements EntropyBackend.
func (BypassBackend) NewSymbolEncoder(cfg EncodingConfiguration, ctx Context) (SymbolEncoder, error) {
	layout, err := newSymbolLayout(cfg, ctx)
	if err != nil {
		return nil, err
	}
	buf := pool.GetStreamBuffer()

	return &bypassEncoder{layout: layout, buf: buf, w: bitio.NewWriter(buf)}, nil
}

func (e *bypassEncoder) Encode(v uint64) error {
	if e.w == nil {
		return fmt.Errorf("%w: encode after finish", errs.ErrInvalidValue)
	}
	if e.layout.subsyms == 1 {
		if err := e.layout.bz.encode(e.w, v); err != nil {
			return err
		}

		return e.w.Err()
	}

	mask := uint64(1)<<e.layout.subsymLen - 1
	for range e.layout.subsyms {
		if err := e.layout.bz.encode(e.w, v&mask); err != nil {
			return err
		}
		v >>= e.layout.subsymLen
	}
	if v != 0 {
		return fmt.Errorf("%w: symbol exceeds %d subsymbols", errs.ErrInvalidValue, e.layout.subsyms)
	}

	return e.w.Err()
}

func (e *bypassEncoder) Finish() ([]byte, error) {
	if e.w == nil {
		return nil, fmt.Errorf("%w: finish called twice", errs.ErrInvalidValue)
	}
	defer func() {
		pool.PutStreamBuffer(e.buf)
		e.buf, e.w = nil, nil
	}()

	e.w.Align()
	if err := e.w.Flush(); err != nil {
		return nil, err
	}
	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())

	return out, nil
}

type bypassDecoder struct {
	layout symbolLayout
	r      *bitio.Reader
}

// NewSymbolDecoder implements EntropyBackend.
func (BypassBackend) NewSymbolDecoder(cfg EncodingConfiguration, ctx Context, data []byte) (SymbolDecoder, error) {
	layout, err := newSymbolLayout(cfg, ctx)
	if err != nil {
		return nil, err
	}

	return &bypassDecoder{layout: layout, r: bitio.NewReader(payload.FromBytes(data))}, nil
}

func (d *bypassDecoder) Decode() (uint64, error) {
	var v uint64
	if d.layout.subsyms == 1 {
		v = d.layout.bz.decode(d.r)
	} else {
		for i := range d.layout.subsyms {
			v |= d.layout.bz.decode(d.r) << (i * d.layout.subsymLen)
		}
	}
	if err := d.r.Err(); err != nil {
		return 0, err
	}

	return v, nil
}

// CompressedBackend wraps another backend and compresses every finished
// stream with a general-purpose codec.
type CompressedBackend struct {
	Inner EntropyBackend
	Codec compress.Codec
}

var _ EntropyBackend = CompressedBackend{}

// NewCompressedBackend returns a bypass backend whose streams are compressed with codec.
func NewCompressedBackend(codec compress.Codec) CompressedBackend {
	return CompressedBackend{Inner: BypassBackend{}, Codec: codec}
}

type compressedEncoder struct {
	SymbolEncoder
	codec compress.Codec
}

func (e compressedEncoder) Finish() ([]byte, error) {
	raw, err := e.SymbolEncoder.Finish()
	if err != nil {
		return nil, err
	}

	return e.codec.Compress(raw)
}

// NewSymbolEncoder implements EntropyBackend.
func (b CompressedBackend) NewSymbolEncoder(cfg EncodingConfiguration, ctx Context) (SymbolEncoder, error) {
	if b.Inner == nil || b.Codec == nil {
		return nil, fmt.Errorf("%w: compressed backend needs an inner backend and a codec", errs.ErrInvalidValue)
	}
	enc, err := b.Inner.NewSymbolEncoder(cfg, ctx)
	if err != nil {
		return nil, err
	}

	return compressedEncoder{SymbolEncoder: enc, codec: b.Codec}, nil
}

// NewSymbolDecoder implements EntropyBackend.
func (b CompressedBackend) NewSymbolDecoder(cfg EncodingConfiguration, ctx Context, data []byte) (SymbolDecoder, error) {
	if b.Inner == nil || b.Codec == nil {
		return nil, fmt.Errorf("%w: compressed backend needs an inner backend and a codec", errs.ErrInvalidValue)
	}
	raw, err := b.Codec.Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("decompress stream: %w", err)
	}

	return b.Inner.NewSymbolDecoder(cfg, ctx, raw)
}
