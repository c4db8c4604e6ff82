package transform

import (
	"fmt"

	"github.com/arloliu/mpegg/errs"
)

// Encoder consumes the symbols of one descriptor subsequence and produces
// the transformed streams, one per entropy-coder configuration of its Config.
type Encoder interface {
	Write(v uint64) error
	// Close flushes pending runs and returns the coded streams in
	// configuration order.
	Close() ([][]byte, error)
}

// Decoder yields the symbols of one descriptor subsequence.
type Decoder interface {
	Read() (uint64, error)
}

// NewEncoder returns the encoder for cfg. Match and merge coding have no
// defined encoder and fail with ErrUnsupportedPath.
func NewEncoder(cfg Config, ctx Context, opts ...Option) (Encoder, error) {
	cc, err := newCoderConfig(opts)
	if err != nil {
		return nil, err
	}

	switch c := cfg.(type) {
	case NoTransform:
		enc, err := cc.backend.NewSymbolEncoder(c.Coding, ctx)
		if err != nil {
			return nil, err
		}

		return &plainEncoder{enc: enc}, nil
	case EqualityCoding:
		encs, err := newSymbolEncoders(cc.backend, ctx, c.Flags, c.Symbols)
		if err != nil {
			return nil, err
		}

		return &equalityEncoder{flags: encs[0], symbols: encs[1]}, nil
	case RLECoding:
		if c.Guard == 0 {
			return nil, fmt.Errorf("%w: zero run length guard", errs.ErrInvalidValue)
		}
		encs, err := newSymbolEncoders(cc.backend, ctx, c.Lengths, c.Symbols)
		if err != nil {
			return nil, err
		}

		return &rleEncoder{guard: uint64(c.Guard), lengths: encs[0], symbols: encs[1]}, nil
	case RLEQVCoding:
		if c.Guard == 0 {
			return nil, fmt.Errorf("%w: zero run length guard", errs.ErrInvalidValue)
		}
		enc, err := cc.backend.NewSymbolEncoder(c.Coding, ctx)
		if err != nil {
			return nil, err
		}

		return &rleEncoder{guard: uint64(c.Guard), lengths: enc, symbols: enc, single: true}, nil
	case MatchCoding, MergeCoding:
		return nil, fmt.Errorf("%w: %s encoder", errs.ErrUnsupportedPath, cfg.TransformID())
	case nil:
		return nil, fmt.Errorf("%w: nil subsequence configuration", errs.ErrInvalidValue)
	default:
		return nil, fmt.Errorf("%w: %T", errs.ErrUnknownVariant, cfg)
	}
}

// NewDecoder returns the decoder for cfg over data, the framed streams
// produced by EncodeSubsequence. Merge coding fails with ErrUnsupportedPath.
func NewDecoder(cfg Config, ctx Context, data []byte, opts ...Option) (Decoder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil subsequence configuration", errs.ErrInvalidValue)
	}
	if _, ok := cfg.(MergeCoding); ok {
		return nil, fmt.Errorf("%w: %s decoder", errs.ErrUnsupportedPath, cfg.TransformID())
	}

	cc, err := newCoderConfig(opts)
	if err != nil {
		return nil, err
	}
	streams, err := SplitSubsequences(data, len(cfg.Streams()))
	if err != nil {
		return nil, err
	}
	decs := make([]SymbolDecoder, len(streams))
	for i, sc := range cfg.Streams() {
		if decs[i], err = cc.backend.NewSymbolDecoder(sc, ctx, streams[i]); err != nil {
			return nil, fmt.Errorf("stream %d: %w", i, err)
		}
	}

	switch c := cfg.(type) {
	case NoTransform:
		return plainDecoder{dec: decs[0]}, nil
	case EqualityCoding:
		return &equalityDecoder{flags: decs[0], symbols: decs[1]}, nil
	case RLECoding:
		if c.Guard == 0 {
			return nil, fmt.Errorf("%w: zero run length guard", errs.ErrInvalidValue)
		}

		return &rleDecoder{guard: uint64(c.Guard), lengths: decs[0], symbols: decs[1]}, nil
	case RLEQVCoding:
		if c.Guard == 0 {
			return nil, fmt.Errorf("%w: zero run length guard", errs.ErrInvalidValue)
		}

		return &rleDecoder{guard: uint64(c.Guard), lengths: decs[0], symbols: decs[0]}, nil
	case MatchCoding:
		if c.BufferSize == 0 {
			return nil, fmt.Errorf("%w: zero match buffer size", errs.ErrInvalidValue)
		}

		return &matchDecoder{
			buf:      make([]uint64, c.BufferSize),
			pointers: decs[0],
			lengths:  decs[1],
			symbols:  decs[2],
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T", errs.ErrUnknownVariant, cfg)
	}
}

// EncodeSubsequence transforms symbols with cfg and returns the framed streams.
func EncodeSubsequence(cfg Config, ctx Context, symbols []uint64, opts ...Option) ([]byte, error) {
	enc, err := NewEncoder(cfg, ctx, opts...)
	if err != nil {
		return nil, err
	}
	for i, v := range symbols {
		if err := enc.Write(v); err != nil {
			return nil, fmt.Errorf("symbol %d: %w", i, err)
		}
	}
	streams, err := enc.Close()
	if err != nil {
		return nil, err
	}

	return JoinSubsequences(streams)
}

// DecodeSubsequence reads count symbols from the framed streams in data.
func DecodeSubsequence(cfg Config, ctx Context, data []byte, count int, opts ...Option) ([]uint64, error) {
	dec, err := NewDecoder(cfg, ctx, data, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, count)
	for i := range out {
		if out[i], err = dec.Read(); err != nil {
			return nil, fmt.Errorf("symbol %d: %w", i, err)
		}
	}

	return out, nil
}

func newSymbolEncoders(b EntropyBackend, ctx Context, cfgs ...EncodingConfiguration) ([]SymbolEncoder, error) {
	encs := make([]SymbolEncoder, len(cfgs))
	for i, cfg := range cfgs {
		enc, err := b.NewSymbolEncoder(cfg, ctx)
		if err != nil {
			return nil, fmt.Errorf("stream %d: %w", i, err)
		}
		encs[i] = enc
	}

	return encs, nil
}

func finishAll(encs ...SymbolEncoder) ([][]byte, error) {
	out := make([][]byte, len(encs))
	for i, enc := range encs {
		b, err := enc.Finish()
		if err != nil {
			return nil, fmt.Errorf("stream %d: %w", i, err)
		}
		out[i] = b
	}

	return out, nil
}

type plainEncoder struct {
	enc SymbolEncoder
}

func (e *plainEncoder) Write(v uint64) error     { return e.enc.Encode(v) }
func (e *plainEncoder) Close() ([][]byte, error) { return finishAll(e.enc) }

type plainDecoder struct {
	dec SymbolDecoder
}

func (d plainDecoder) Read() (uint64, error) { return d.dec.Decode() }

// equalityEncoder emits flag 1 for a repeat of the previous symbol. Otherwise
// it emits flag 0 and the symbol, decremented when above the previous one
// since that value cannot occur.
type equalityEncoder struct {
	flags   SymbolEncoder
	symbols SymbolEncoder
	prev    uint64
}

func (e *equalityEncoder) Write(v uint64) error {
	if v == e.prev {
		return e.flags.Encode(1)
	}
	if err := e.flags.Encode(0); err != nil {
		return err
	}
	lit := v
	if v > e.prev {
		lit--
	}
	e.prev = v

	return e.symbols.Encode(lit)
}

func (e *equalityEncoder) Close() ([][]byte, error) {
	return finishAll(e.flags, e.symbols)
}

type equalityDecoder struct {
	flags   SymbolDecoder
	symbols SymbolDecoder
	prev    uint64
}

func (d *equalityDecoder) Read() (uint64, error) {
	flag, err := d.flags.Decode()
	if err != nil {
		return 0, err
	}
	if flag == 1 {
		return d.prev, nil
	}
	lit, err := d.symbols.Decode()
	if err != nil {
		return 0, err
	}
	if lit >= d.prev {
		lit++
	}
	d.prev = lit

	return lit, nil
}

// rleEncoder emits each run as its symbol followed by the run length minus
// one. Lengths of guard or more are split into guard-valued pieces ending
// with a piece below guard. In single mode symbol and lengths share a stream.
type rleEncoder struct {
	guard   uint64
	lengths SymbolEncoder
	symbols SymbolEncoder
	single  bool
	sym     uint64
	run     uint64
}

func (e *rleEncoder) Write(v uint64) error {
	if e.run > 0 && v != e.sym {
		if err := e.flush(); err != nil {
			return err
		}
	}
	e.sym = v
	e.run++

	return nil
}

func (e *rleEncoder) flush() error {
	if err := e.symbols.Encode(e.sym); err != nil {
		return err
	}
	rest := e.run - 1
	for rest >= e.guard {
		if err := e.lengths.Encode(e.guard); err != nil {
			return err
		}
		rest -= e.guard
	}
	e.run = 0

	return e.lengths.Encode(rest)
}

func (e *rleEncoder) Close() ([][]byte, error) {
	if e.run > 0 {
		if err := e.flush(); err != nil {
			return nil, err
		}
	}
	if e.single {
		return finishAll(e.symbols)
	}

	return finishAll(e.lengths, e.symbols)
}

type rleDecoder struct {
	guard   uint64
	lengths SymbolDecoder
	symbols SymbolDecoder
	sym     uint64
	left    uint64
}

func (d *rleDecoder) Read() (uint64, error) {
	if d.left == 0 {
		sym, err := d.symbols.Decode()
		if err != nil {
			return 0, err
		}
		var total uint64
		for {
			l, err := d.lengths.Decode()
			if err != nil {
				return 0, err
			}
			if l > d.guard {
				return 0, fmt.Errorf("%w: run length %d above guard %d", errs.ErrStructural, l, d.guard)
			}
			total += l
			if l != d.guard {
				break
			}
		}
		d.sym, d.left = sym, total+1
	}
	d.left--

	return d.sym, nil
}

// matchDecoder resolves literals and back-references against a circular
// buffer of the most recent symbols. A zero length introduces a literal;
// otherwise a pointer p copies length symbols starting p positions back.
type matchDecoder struct {
	buf      []uint64
	next     int // next write position
	filled   int
	copyPos  int
	copyLeft uint64

	pointers SymbolDecoder
	lengths  SymbolDecoder
	symbols  SymbolDecoder
}

func (d *matchDecoder) push(v uint64) {
	d.buf[d.next] = v
	d.next = (d.next + 1) % len(d.buf)
	if d.filled < len(d.buf) {
		d.filled++
	}
}

func (d *matchDecoder) Read() (uint64, error) {
	if d.copyLeft == 0 {
		length, err := d.lengths.Decode()
		if err != nil {
			return 0, err
		}
		if length == 0 {
			v, err := d.symbols.Decode()
			if err != nil {
				return 0, err
			}
			d.push(v)

			return v, nil
		}
		ptr, err := d.pointers.Decode()
		if err != nil {
			return 0, err
		}
		if ptr == 0 || ptr > uint64(d.filled) {
			return 0, fmt.Errorf("%w: match pointer %d with %d buffered symbols", errs.ErrStructural, ptr, d.filled)
		}
		d.copyPos = (d.next - int(ptr) + len(d.buf)) % len(d.buf) //nolint:gosec
		d.copyLeft = length
	}

	v := d.buf[d.copyPos]
	d.copyPos = (d.copyPos + 1) % len(d.buf)
	d.copyLeft--
	d.push(v)

	return v, nil
}
