package signature

import (
	"fmt"
	"math"

	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/internal/bitio"
)

// A signature list holding exactly base entries is written bare. Any other
// count is announced by the all-ones sentinel integer followed by a 16-bit
// count. A bare list whose first integer would read as the sentinel is
// written in the counted form instead.

const countBits = 16

func countedForm(n, base int, first uint64, sentinel uint64) bool {
	return n != base || (n > 0 && first == sentinel)
}

// ListSizeInBits returns the encoded size of sigs for the given multiple_signature_base.
func (p Params) ListSizeInBits(sigs []Signature, base int) (int64, error) {
	var bits int64
	var first uint64
	for i, sig := range sigs {
		ints, err := p.Pack(sig)
		if err != nil {
			return 0, err
		}
		if i == 0 {
			first = ints[0]
		}
		bits += int64(len(ints) * p.IntegerBits)
	}
	if countedForm(len(sigs), base, first, p.Sentinel()) {
		bits += int64(p.IntegerBits + countBits)
	}

	return bits, nil
}

// WriteList encodes sigs for the given multiple_signature_base.
func (p Params) WriteList(w *bitio.Writer, sigs []Signature, base int) error {
	packed := make([][]uint64, len(sigs))
	for i, sig := range sigs {
		ints, err := p.Pack(sig)
		if err != nil {
			return err
		}
		packed[i] = ints
	}

	var first uint64
	if len(packed) > 0 {
		first = packed[0][0]
	}
	if countedForm(len(sigs), base, first, p.Sentinel()) {
		if len(sigs) > math.MaxUint16 {
			return fmt.Errorf("%w: %d signatures exceed the 16-bit count", errs.ErrInvalidValue, len(sigs))
		}
		w.WriteBits(p.Sentinel(), p.IntegerBits)
		w.WriteBits(uint64(len(sigs)), countBits)
	}
	for _, ints := range packed {
		for _, v := range ints {
			w.WriteBits(v, p.IntegerBits)
		}
	}

	return w.Err()
}

// ReadList decodes a signature list for the given multiple_signature_base.
func (p Params) ReadList(r *bitio.Reader, base int) []Signature {
	if err := p.Validate(); err != nil {
		r.Fail(err)
		return nil
	}

	first := r.ReadBits(p.IntegerBits)
	if r.Err() != nil {
		return nil
	}

	if first == p.Sentinel() {
		n := int(r.ReadBits(countBits))
		if !r.CheckCount(int64(n), int64(p.IntegerBits)) {
			return nil
		}
		sigs := make([]Signature, 0, n)
		for range n {
			sigs = append(sigs, p.Read(r))
		}

		return sigs
	}

	if base <= 0 || !r.CheckCount(int64(base-1), int64(p.IntegerBits)) {
		r.Fail(fmt.Errorf("%w: bare signature list with base %d", errs.ErrStructural, base))
		return nil
	}
	sigs := make([]Signature, 0, base)
	sigs = append(sigs, p.readFrom(r, first))
	for range base - 1 {
		sigs = append(sigs, p.Read(r))
	}

	return sigs
}

// IntegerListSizeInBits returns the encoded size of a list of plain
// signature integers, the form access unit headers carry.
func IntegerListSizeInBits(vals []uint64, bits, base int) int64 {
	size := int64(len(vals) * bits)
	var first uint64
	if len(vals) > 0 {
		first = vals[0]
	}
	if countedForm(len(vals), base, first, Sentinel(bits)) {
		size += int64(bits + countBits)
	}

	return size
}

// WriteIntegerList writes plain signature integers of the given width.
func WriteIntegerList(w *bitio.Writer, vals []uint64, bits, base int) {
	var first uint64
	if len(vals) > 0 {
		first = vals[0]
	}
	if countedForm(len(vals), base, first, Sentinel(bits)) {
		if len(vals) > math.MaxUint16 {
			w.Fail(fmt.Errorf("%w: %d signatures exceed the 16-bit count", errs.ErrInvalidValue, len(vals)))
			return
		}
		w.WriteBits(Sentinel(bits), bits)
		w.WriteBits(uint64(len(vals)), countBits)
	}
	for _, v := range vals {
		w.WriteChecked(v, bits, "signature")
	}
}

// ReadIntegerList reads plain signature integers of the given width.
func ReadIntegerList(r *bitio.Reader, bits, base int) []uint64 {
	first := r.ReadBits(bits)
	if r.Err() != nil {
		return nil
	}

	if first == Sentinel(bits) {
		n := int(r.ReadBits(countBits))
		if !r.CheckCount(int64(n), int64(bits)) {
			return nil
		}
		vals := make([]uint64, n)
		for i := range vals {
			vals[i] = r.ReadBits(bits)
		}

		return vals
	}

	if base <= 0 || !r.CheckCount(int64(base-1), int64(bits)) {
		r.Fail(fmt.Errorf("%w: bare signature list with base %d", errs.ErrStructural, base))
		return nil
	}
	vals := make([]uint64, base)
	vals[0] = first
	for i := 1; i < base; i++ {
		vals[i] = r.ReadBits(bits)
	}

	return vals
}
