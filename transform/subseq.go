package transform

import (
	"fmt"

	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/internal/bitio"
)

// TransformID is the one-byte tag selecting a subsequence transform.
type TransformID uint8

const (
	TransformNone     TransformID = 0  // TransformNone passes symbols through.
	TransformEquality TransformID = 1  // TransformEquality splits into equal-to-previous flags and literals.
	TransformMatch    TransformID = 2  // TransformMatch codes back-references into a sliding buffer.
	TransformRLE      TransformID = 3  // TransformRLE codes run lengths and run symbols in two streams.
	TransformMerge    TransformID = 4  // TransformMerge interleaves several subsequences.
	TransformRLEQV    TransformID = 77 // TransformRLEQV codes runs of quality values in one stream.
)

func (t TransformID) String() string {
	switch t {
	case TransformNone:
		return "none"
	case TransformEquality:
		return "equality"
	case TransformMatch:
		return "match"
	case TransformRLE:
		return "rle"
	case TransformMerge:
		return "merge"
	case TransformRLEQV:
		return "rle_qv"
	default:
		return fmt.Sprintf("transform(%d)", uint8(t))
	}
}

// ParseTransformID returns the transform named s as printed by String.
func ParseTransformID(s string) (TransformID, bool) {
	for _, id := range []TransformID{TransformNone, TransformEquality, TransformMatch, TransformRLE, TransformMerge, TransformRLEQV} {
		if id.String() == s {
			return id, true
		}
	}

	return 0, false
}

// Config is the coder configuration of one subsequence. The set of variants
// is closed: NoTransform, EqualityCoding, MatchCoding, RLECoding, RLEQVCoding
// and MergeCoding.
type Config interface {
	TransformID() TransformID
	// SizeInBits returns the serialized size without the transform id byte.
	SizeInBits() int64
	// Streams returns the entropy-coder configurations in stream order.
	Streams() []EncodingConfiguration

	write(w *bitio.Writer)
	sealed()
}

// NoTransform codes the symbols unchanged.
type NoTransform struct {
	Coding EncodingConfiguration
}

// EqualityCoding codes a flag per symbol telling whether it repeats the
// previous symbol, and a literal for the symbols that do not.
type EqualityCoding struct {
	Flags   EncodingConfiguration
	Symbols EncodingConfiguration
}

// MatchCoding codes pointer, length and literal streams against a sliding
// buffer of BufferSize symbols.
type MatchCoding struct {
	BufferSize uint16
	Pointers   EncodingConfiguration
	Lengths    EncodingConfiguration
	Symbols    EncodingConfiguration
}

// RLECoding codes runs as a lengths stream and a symbols stream. Runs longer
// than Guard are split into Guard-sized pieces.
type RLECoding struct {
	Guard   uint8
	Lengths EncodingConfiguration
	Symbols EncodingConfiguration
}

// RLEQVCoding is RLECoding with symbols and run lengths interleaved in one stream.
type RLEQVCoding struct {
	Guard  uint8
	Coding EncodingConfiguration
}

// MergeCoding interleaves several subsequences. ShiftSizes carries one
// 5-bit shift per merged subsequence.
type MergeCoding struct {
	ShiftSizes []uint8
	Codings    []EncodingConfiguration
}

func (NoTransform) TransformID() TransformID    { return TransformNone }
func (EqualityCoding) TransformID() TransformID { return TransformEquality }
func (MatchCoding) TransformID() TransformID    { return TransformMatch }
func (RLECoding) TransformID() TransformID      { return TransformRLE }
func (RLEQVCoding) TransformID() TransformID    { return TransformRLEQV }
func (MergeCoding) TransformID() TransformID    { return TransformMerge }

func (NoTransform) sealed()    {}
func (EqualityCoding) sealed() {}
func (MatchCoding) sealed()    {}
func (RLECoding) sealed()      {}
func (RLEQVCoding) sealed()    {}
func (MergeCoding) sealed()    {}

func (c NoTransform) Streams() []EncodingConfiguration { return []EncodingConfiguration{c.Coding} }

func (c EqualityCoding) Streams() []EncodingConfiguration {
	return []EncodingConfiguration{c.Flags, c.Symbols}
}

func (c MatchCoding) Streams() []EncodingConfiguration {
	return []EncodingConfiguration{c.Pointers, c.Lengths, c.Symbols}
}

func (c RLECoding) Streams() []EncodingConfiguration {
	return []EncodingConfiguration{c.Lengths, c.Symbols}
}

func (c RLEQVCoding) Streams() []EncodingConfiguration { return []EncodingConfiguration{c.Coding} }

func (c MergeCoding) Streams() []EncodingConfiguration { return c.Codings }

func (c NoTransform) SizeInBits() int64 { return c.Coding.SizeInBits() }

func (c EqualityCoding) SizeInBits() int64 {
	return c.Flags.SizeInBits() + c.Symbols.SizeInBits()
}

func (c MatchCoding) SizeInBits() int64 {
	return 16 + c.Pointers.SizeInBits() + c.Lengths.SizeInBits() + c.Symbols.SizeInBits()
}

func (c RLECoding) SizeInBits() int64 {
	return 8 + c.Lengths.SizeInBits() + c.Symbols.SizeInBits()
}

func (c RLEQVCoding) SizeInBits() int64 { return 8 + c.Coding.SizeInBits() }

func (c MergeCoding) SizeInBits() int64 {
	n := 4 + 5*int64(len(c.Codings))
	for _, cfg := range c.Codings {
		n += cfg.SizeInBits()
	}

	return n
}

func (c NoTransform) write(w *bitio.Writer) { c.Coding.write(w) }

func (c EqualityCoding) write(w *bitio.Writer) {
	c.Flags.write(w)
	c.Symbols.write(w)
}

func (c MatchCoding) write(w *bitio.Writer) {
	w.WriteU16(c.BufferSize)
	c.Pointers.write(w)
	c.Lengths.write(w)
	c.Symbols.write(w)
}

func (c RLECoding) write(w *bitio.Writer) {
	w.WriteU8(c.Guard)
	c.Lengths.write(w)
	c.Symbols.write(w)
}

func (c RLEQVCoding) write(w *bitio.Writer) {
	w.WriteU8(c.Guard)
	c.Coding.write(w)
}

func (c MergeCoding) write(w *bitio.Writer) {
	if len(c.Codings) > 15 || len(c.ShiftSizes) != len(c.Codings) {
		w.Fail(fmt.Errorf("%w: merge coding with %d configurations and %d shift sizes",
			errs.ErrInvalidValue, len(c.Codings), len(c.ShiftSizes)))

		return
	}
	w.WriteBits(uint64(len(c.Codings)), 4)
	for _, s := range c.ShiftSizes {
		w.WriteChecked(uint64(s), 5, "merge_coding_shift_size")
	}
	for _, cfg := range c.Codings {
		cfg.write(w)
	}
}

// ConfigSizeInBits returns the serialized size of c including its transform id.
func ConfigSizeInBits(c Config) int64 {
	return 8 + c.SizeInBits()
}

// WriteConfig writes the transform id of c followed by its parameters.
func WriteConfig(w *bitio.Writer, c Config) {
	if c == nil {
		w.Fail(fmt.Errorf("%w: nil subsequence configuration", errs.ErrInvalidValue))
		return
	}
	w.WriteU8(uint8(c.TransformID()))
	c.write(w)
}

// ReadConfig reads a transform id and the matching variant. An unknown id is
// an ErrUnknownVariant since the following bits cannot be interpreted.
func ReadConfig(r *bitio.Reader) (Config, error) {
	id := TransformID(r.ReadU8())
	if err := r.Err(); err != nil {
		return nil, err
	}

	var c Config
	switch id {
	case TransformNone:
		c = NoTransform{Coding: readEncodingConfiguration(r)}
	case TransformEquality:
		c = EqualityCoding{Flags: readEncodingConfiguration(r), Symbols: readEncodingConfiguration(r)}
	case TransformMatch:
		m := MatchCoding{BufferSize: r.ReadU16()}
		m.Pointers = readEncodingConfiguration(r)
		m.Lengths = readEncodingConfiguration(r)
		m.Symbols = readEncodingConfiguration(r)
		c = m
	case TransformRLE:
		rle := RLECoding{Guard: r.ReadU8()}
		rle.Lengths = readEncodingConfiguration(r)
		rle.Symbols = readEncodingConfiguration(r)
		c = rle
	case TransformRLEQV:
		q := RLEQVCoding{Guard: r.ReadU8()}
		q.Coding = readEncodingConfiguration(r)
		c = q
	case TransformMerge:
		n := int(r.ReadBits(4))
		m := MergeCoding{ShiftSizes: make([]uint8, n), Codings: make([]EncodingConfiguration, n)}
		for i := range m.ShiftSizes {
			m.ShiftSizes[i] = uint8(r.ReadBits(5)) //nolint:gosec
		}
		for i := range m.Codings {
			m.Codings[i] = readEncodingConfiguration(r)
		}
		c = m
	default:
		return nil, fmt.Errorf("%w: subsequence transform id %d", errs.ErrUnknownVariant, uint8(id))
	}

	if err := r.Err(); err != nil {
		return nil, err
	}

	return c, nil
}
