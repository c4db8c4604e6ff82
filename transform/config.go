package transform

import (
	"fmt"

	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/internal/bitio"
)

// SubsymTransform is the transform applied between the subsymbols of a symbol.
type SubsymTransform uint8

const (
	SubsymNone SubsymTransform = 0 // SubsymNone codes subsymbols independently.
	SubsymLUT  SubsymTransform = 1 // SubsymLUT maps subsymbols through a lookup table.
	SubsymDiff SubsymTransform = 2 // SubsymDiff codes the difference to the previous subsymbol.
)

func (t SubsymTransform) String() string {
	switch t {
	case SubsymNone:
		return "none"
	case SubsymLUT:
		return "lut"
	case SubsymDiff:
		return "diff"
	default:
		return "unknown"
	}
}

// SymbolEncoding describes how one symbol is split into coding subsymbols.
type SymbolEncoding struct {
	SubsymTransform  SubsymTransform
	OutputSymbolSize uint8 // u6, bits per output symbol
	CodingSubsymSize uint8 // u6, bits per coded subsymbol
	CodingOrder      uint8 // u2, number of previous symbols used as context
	ShareSubsymLUT   bool
	ShareSubsymPrv   bool
}

// Subsymbols reports whether a symbol is coded as more than one subsymbol.
func (s SymbolEncoding) Subsymbols() bool {
	return s.CodingSubsymSize < s.OutputSymbolSize
}

func (s SymbolEncoding) shareFlags() bool {
	return s.Subsymbols() && s.CodingOrder > 0
}

// SizeInBits returns the serialized size.
func (s SymbolEncoding) SizeInBits() int64 {
	n := int64(3 + 6 + 6 + 2)
	if s.shareFlags() {
		if s.SubsymTransform == SubsymLUT {
			n++
		}
		n++
	}

	return n
}

// Validate checks field ranges.
func (s SymbolEncoding) Validate() error {
	switch {
	case s.SubsymTransform > SubsymDiff:
		return fmt.Errorf("%w: subsymbol transform %d", errs.ErrUnknownVariant, s.SubsymTransform)
	case s.OutputSymbolSize == 0 || s.OutputSymbolSize > 63:
		return fmt.Errorf("%w: output symbol size %d", errs.ErrInvalidValue, s.OutputSymbolSize)
	case s.CodingSubsymSize == 0 || s.CodingSubsymSize > s.OutputSymbolSize:
		return fmt.Errorf("%w: coding subsymbol size %d for output size %d",
			errs.ErrInvalidValue, s.CodingSubsymSize, s.OutputSymbolSize)
	case s.CodingOrder > 2:
		return fmt.Errorf("%w: coding order %d", errs.ErrInvalidValue, s.CodingOrder)
	}

	return nil
}

func (s SymbolEncoding) write(w *bitio.Writer) {
	w.WriteChecked(uint64(s.SubsymTransform), 3, "transform_ID_subsym")
	w.WriteChecked(uint64(s.OutputSymbolSize), 6, "output_symbol_size")
	w.WriteChecked(uint64(s.CodingSubsymSize), 6, "coding_subsym_size")
	w.WriteChecked(uint64(s.CodingOrder), 2, "coding_order")
	if s.shareFlags() {
		if s.SubsymTransform == SubsymLUT {
			w.WriteBool(s.ShareSubsymLUT)
		}
		w.WriteBool(s.ShareSubsymPrv)
	}
}

func readSymbolEncoding(r *bitio.Reader) SymbolEncoding {
	s := SymbolEncoding{
		SubsymTransform:  SubsymTransform(r.ReadBits(3)), //nolint:gosec
		OutputSymbolSize: uint8(r.ReadBits(6)),           //nolint:gosec
		CodingSubsymSize: uint8(r.ReadBits(6)),           //nolint:gosec
		CodingOrder:      uint8(r.ReadBits(2)),           //nolint:gosec
	}
	if s.shareFlags() {
		if s.SubsymTransform == SubsymLUT {
			s.ShareSubsymLUT = r.ReadBool()
		}
		s.ShareSubsymPrv = r.ReadBool()
	}

	return s
}

// ContextParameters configures the adaptive contexts of the arithmetic coder.
type ContextParameters struct {
	Adaptive       bool
	InitValues     []uint8 // u7 each
	ShareSubsymCtx bool    // present only when symbols are split into subsymbols
}

func (c *ContextParameters) sizeInBits(subsymbols bool) int64 {
	n := 1 + 16 + 7*int64(len(c.InitValues))
	if subsymbols {
		n++
	}

	return n
}

func (c *ContextParameters) write(w *bitio.Writer, subsymbols bool) {
	w.WriteBool(c.Adaptive)
	if len(c.InitValues) > 0xFFFF {
		w.Fail(fmt.Errorf("%w: %d context init values", errs.ErrInvalidValue, len(c.InitValues)))
		return
	}
	w.WriteU16(uint16(len(c.InitValues))) //nolint:gosec
	for _, v := range c.InitValues {
		w.WriteChecked(uint64(v), 7, "context_initialization_value")
	}
	if subsymbols {
		w.WriteBool(c.ShareSubsymCtx)
	}
}

func readContextParameters(r *bitio.Reader, subsymbols bool) *ContextParameters {
	c := &ContextParameters{Adaptive: r.ReadBool()}
	n := int64(r.ReadU16())
	if !r.CheckCount(n, 7) {
		return c
	}
	if n > 0 {
		c.InitValues = make([]uint8, n)
	}
	for i := range c.InitValues {
		c.InitValues[i] = uint8(r.ReadBits(7)) //nolint:gosec
	}
	if subsymbols {
		c.ShareSubsymCtx = r.ReadBool()
	}

	return c
}

// EncodingConfiguration is the entropy-coder configuration of one
// transformed subsequence. A nil Context selects bypass coding.
type EncodingConfiguration struct {
	Symbol       SymbolEncoding
	Binarization Binarization
	Context      *ContextParameters
}

// Bypass reports whether the bins are written without context modeling.
func (c EncodingConfiguration) Bypass() bool {
	return c.Context == nil
}

// SizeInBits returns the serialized size.
func (c EncodingConfiguration) SizeInBits() int64 {
	n := c.Symbol.SizeInBits() + binarizationIDBits + 1 + c.Binarization.paramBits()
	if c.Context != nil {
		n += c.Context.sizeInBits(c.Symbol.Subsymbols())
	}

	return n
}

// Validate checks the symbol layout and the binarization id.
func (c EncodingConfiguration) Validate() error {
	if err := c.Symbol.Validate(); err != nil {
		return err
	}
	if !c.Binarization.ID.Valid() {
		return fmt.Errorf("%w: binarization %d", errs.ErrUnknownVariant, c.Binarization.ID)
	}

	return nil
}

func (c EncodingConfiguration) write(w *bitio.Writer) {
	c.Symbol.write(w)
	w.WriteChecked(uint64(c.Binarization.ID), binarizationIDBits, "binarization_ID")
	w.WriteBool(c.Context == nil)
	c.Binarization.writeParams(w)
	if c.Context != nil {
		c.Context.write(w, c.Symbol.Subsymbols())
	}
}

func readEncodingConfiguration(r *bitio.Reader) EncodingConfiguration {
	var c EncodingConfiguration
	c.Symbol = readSymbolEncoding(r)
	c.Binarization.ID = BinarizationID(r.ReadBits(binarizationIDBits)) //nolint:gosec
	bypass := r.ReadBool()
	if r.Err() == nil && !c.Binarization.ID.Valid() {
		r.Fail(fmt.Errorf("%w: binarization %d", errs.ErrUnknownVariant, c.Binarization.ID))
		return c
	}
	c.Binarization.readParams(r)
	if !bypass {
		c.Context = readContextParameters(r, c.Symbol.Subsymbols())
	}

	return c
}
