// Package signature packs unmapped-cluster signatures into fixed-width integers.
//
// A signature is a list of alphabet symbol codes. Each code is stored as
// code+1 in BitsPerSymbol bits, so that zero marks padding or the end of a
// variable-length signature. Symbols fill integers of IntegerBits bits
// MSB-first; the last integer is right-aligned with zero padding in its high
// bits.
package signature

import (
	"fmt"

	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/internal/bitio"
)

// Signature is a sequence of alphabet symbol codes.
type Signature []uint8

// Params describes how signatures of one dataset are packed.
type Params struct {
	IntegerBits   int // u_signature_size, 1..64
	Length        int // u_signature_length in symbols, 0 when variable
	BitsPerSymbol int // from the dataset alphabet
}

// Validate checks that the parameters can hold at least one symbol.
func (p Params) Validate() error {
	if p.IntegerBits < 1 || p.IntegerBits > 64 {
		return fmt.Errorf("%w: signature integer size %d", errs.ErrInvalidValue, p.IntegerBits)
	}
	if p.BitsPerSymbol < 1 || p.symbolsPerInteger() == 0 {
		return fmt.Errorf("%w: %d bit symbols do not fit %d bit integers", errs.ErrInvalidValue, p.BitsPerSymbol, p.IntegerBits)
	}

	return nil
}

// Sentinel returns the all-ones integer announcing an explicit signature count.
func (p Params) Sentinel() uint64 {
	return Sentinel(p.IntegerBits)
}

// Sentinel returns the all-ones value of the given width.
func Sentinel(bits int) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}

	return (1 << bits) - 1
}

func (p Params) symbolsPerInteger() int {
	if p.BitsPerSymbol <= 0 {
		return 0
	}

	return p.IntegerBits / p.BitsPerSymbol
}

func (p Params) check(sig Signature) error {
	if p.Length > 0 && len(sig) != p.Length {
		return fmt.Errorf("%w: signature has %d symbols, dataset requires %d", errs.ErrInvalidValue, len(sig), p.Length)
	}
	if p.Length == 0 && len(sig) == 0 {
		return nil
	}

	limit := uint64(1)<<p.BitsPerSymbol - 1
	for _, c := range sig {
		if uint64(c)+1 > limit {
			return fmt.Errorf("%w: symbol code %d does not fit %d bits", errs.ErrInvalidValue, c, p.BitsPerSymbol)
		}
	}

	return nil
}

// Pack returns the integers encoding sig.
func (p Params) Pack(sig Signature) ([]uint64, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := p.check(sig); err != nil {
		return nil, err
	}

	codes := make([]uint64, 0, len(sig)+1)
	for _, c := range sig {
		codes = append(codes, uint64(c)+1)
	}
	if p.Length == 0 {
		codes = append(codes, 0)
	}

	per := p.symbolsPerInteger()
	ints := make([]uint64, 0, (len(codes)+per-1)/per)
	for len(codes) > 0 {
		n := min(per, len(codes))
		var v uint64
		for _, c := range codes[:n] {
			v = v<<p.BitsPerSymbol | c
		}
		ints = append(ints, v)
		codes = codes[n:]
	}

	return ints, nil
}

// SizeInBits returns the encoded size of sig.
func (p Params) SizeInBits(sig Signature) (int64, error) {
	ints, err := p.Pack(sig)
	if err != nil {
		return 0, err
	}

	return int64(len(ints) * p.IntegerBits), nil
}

// Write encodes sig.
func (p Params) Write(w *bitio.Writer, sig Signature) error {
	ints, err := p.Pack(sig)
	if err != nil {
		return err
	}
	for _, v := range ints {
		w.WriteBits(v, p.IntegerBits)
	}

	return w.Err()
}

// Read decodes one signature.
func (p Params) Read(r *bitio.Reader) Signature {
	if err := p.Validate(); err != nil {
		r.Fail(err)
		return nil
	}

	return p.readFrom(r, r.ReadBits(p.IntegerBits))
}

// readFrom decodes one signature whose first integer has already been read.
func (p Params) readFrom(r *bitio.Reader, first uint64) Signature {
	var sig Signature
	v := first
	for r.Err() == nil {
		symbols, terminated := p.unpack(v)
		sig = append(sig, symbols...)

		if p.Length > 0 {
			if len(sig) >= p.Length {
				if len(sig) > p.Length {
					r.Fail(fmt.Errorf("%w: signature overruns %d symbols", errs.ErrStructural, p.Length))
					return nil
				}

				return sig
			}
		} else if terminated {
			return sig
		}

		if !r.CheckCount(1, int64(p.IntegerBits)) {
			return nil
		}
		v = r.ReadBits(p.IntegerBits)
	}

	return nil
}

// unpack extracts the codes of one integer, scanning from the low end: a
// zero in the lowest slot terminates the signature, a zero elsewhere is
// padding.
func (p Params) unpack(v uint64) (Signature, bool) {
	per := p.symbolsPerInteger()
	mask := uint64(1)<<p.BitsPerSymbol - 1
	terminated := false

	rev := make([]uint8, 0, per)
	for i := range per {
		c := (v >> (i * p.BitsPerSymbol)) & mask
		if c == 0 {
			if i == 0 {
				terminated = true
				continue
			}

			break
		}
		rev = append(rev, uint8(c-1)) //nolint:gosec
	}

	out := make(Signature, len(rev))
	for i, c := range rev {
		out[len(rev)-1-i] = c
	}

	return out, terminated
}
