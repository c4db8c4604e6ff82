package transform

import (
	"fmt"
	"math/bits"

	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/internal/bitio"
)

// BinarizationID selects how a symbol value is turned into bins.
type BinarizationID uint8

const (
	BinaryCoding                      BinarizationID = 0 // BI
	TruncatedUnary                    BinarizationID = 1 // TU
	ExpGolomb                         BinarizationID = 2 // EG
	SignedExpGolomb                   BinarizationID = 3 // SEG
	TruncatedExpGolomb                BinarizationID = 4 // TEG
	SignedTruncatedExpGolomb          BinarizationID = 5 // STEG
	SplitUnitWiseTruncatedUnary       BinarizationID = 6 // SUTU
	SignedSplitUnitWiseTruncatedUnary BinarizationID = 7 // SSUTU
	DoubleTruncatedUnary              BinarizationID = 8 // DTU
	SignedDoubleTruncatedUnary        BinarizationID = 9 // SDTU
)

const binarizationIDBits = 5

var binarizationNames = [...]string{"BI", "TU", "EG", "SEG", "TEG", "STEG", "SUTU", "SSUTU", "DTU", "SDTU"}

func (b BinarizationID) String() string {
	if int(b) < len(binarizationNames) {
		return binarizationNames[b]
	}

	return "Unknown"
}

// Valid reports whether b is a defined binarization.
func (b BinarizationID) Valid() bool {
	return int(b) < len(binarizationNames)
}

// Signed reports whether the binarization carries a sign.
func (b BinarizationID) Signed() bool {
	switch b {
	case SignedExpGolomb, SignedTruncatedExpGolomb, SignedSplitUnitWiseTruncatedUnary, SignedDoubleTruncatedUnary:
		return true
	default:
		return false
	}
}

// ParseBinarizationID returns the binarization named s, e.g. "TEG".
func ParseBinarizationID(s string) (BinarizationID, bool) {
	for i, name := range binarizationNames {
		if name == s {
			return BinarizationID(i), true //nolint:gosec
		}
	}

	return 0, false
}

// Binarization is a binarization id with its parameters.
//
// CMax is the TU maximum (8 bits), the TEG/STEG truncation parameter
// (6 bits) or the DTU/SDTU prefix maximum (8 bits). SplitUnitSize is used
// by the split unit-wise and double truncated unary variants (4 bits).
// BI takes its length from the coding subsymbol size and has no parameters.
type Binarization struct {
	ID            BinarizationID
	CMax          uint8
	SplitUnitSize uint8
}

func (b Binarization) paramBits() int64 {
	switch b.ID {
	case TruncatedUnary:
		return 8
	case TruncatedExpGolomb, SignedTruncatedExpGolomb:
		return 6
	case SplitUnitWiseTruncatedUnary, SignedSplitUnitWiseTruncatedUnary:
		return 4
	case DoubleTruncatedUnary, SignedDoubleTruncatedUnary:
		return 12
	default:
		return 0
	}
}

func (b Binarization) writeParams(w *bitio.Writer) {
	switch b.ID {
	case TruncatedUnary:
		w.WriteU8(b.CMax)
	case TruncatedExpGolomb, SignedTruncatedExpGolomb:
		w.WriteChecked(uint64(b.CMax), 6, "cTruncExpGolParam")
	case SplitUnitWiseTruncatedUnary, SignedSplitUnitWiseTruncatedUnary:
		w.WriteChecked(uint64(b.SplitUnitSize), 4, "splitUnitSize")
	case DoubleTruncatedUnary, SignedDoubleTruncatedUnary:
		w.WriteU8(b.CMax)
		w.WriteChecked(uint64(b.SplitUnitSize), 4, "splitUnitSize")
	}
}

func (b *Binarization) readParams(r *bitio.Reader) {
	switch b.ID {
	case TruncatedUnary:
		b.CMax = r.ReadU8()
	case TruncatedExpGolomb, SignedTruncatedExpGolomb:
		b.CMax = uint8(r.ReadBits(6)) //nolint:gosec
	case SplitUnitWiseTruncatedUnary, SignedSplitUnitWiseTruncatedUnary:
		b.SplitUnitSize = uint8(r.ReadBits(4)) //nolint:gosec
	case DoubleTruncatedUnary, SignedDoubleTruncatedUnary:
		b.CMax = r.ReadU8()
		b.SplitUnitSize = uint8(r.ReadBits(4)) //nolint:gosec
	}
}

// binarizer writes and reads the bins of one symbol directly to a bit stream.
type binarizer struct {
	id         BinarizationID
	cMax       uint64
	split      int
	outputBits int
	length     int // BI
}

func newBinarizer(b Binarization, outputBits, codingBits int, cMax uint64) (binarizer, error) {
	bz := binarizer{id: b.ID, cMax: cMax, split: int(b.SplitUnitSize), outputBits: outputBits, length: codingBits}
	switch b.ID {
	case SplitUnitWiseTruncatedUnary, SignedSplitUnitWiseTruncatedUnary, DoubleTruncatedUnary, SignedDoubleTruncatedUnary:
		if bz.split == 0 {
			return bz, fmt.Errorf("%w: %s with zero split unit size", errs.ErrInvalidValue, b.ID)
		}
	case BinaryCoding, TruncatedUnary, ExpGolomb, SignedExpGolomb, TruncatedExpGolomb, SignedTruncatedExpGolomb:
	default:
		return bz, fmt.Errorf("%w: binarization %d", errs.ErrUnknownVariant, b.ID)
	}

	return bz, nil
}

func (bz binarizer) encode(w *bitio.Writer, v uint64) error {
	switch bz.id {
	case BinaryCoding:
		if bz.length < 64 && v>>bz.length != 0 {
			return fmt.Errorf("%w: value %d does not fit %d bits", errs.ErrInvalidValue, v, bz.length)
		}
		w.WriteBits(v, bz.length)
	case TruncatedUnary:
		if v > bz.cMax {
			return fmt.Errorf("%w: value %d exceeds cMax %d", errs.ErrInvalidValue, v, bz.cMax)
		}
		writeTU(w, v, bz.cMax)
	case ExpGolomb:
		writeEG(w, v)
	case SignedExpGolomb:
		writeEG(w, zigzag(int64(v))) //nolint:gosec
	case TruncatedExpGolomb:
		writeTEG(w, v, bz.cMax)
	case SignedTruncatedExpGolomb:
		s := int64(v) //nolint:gosec
		writeTEG(w, abs(s), bz.cMax)
		writeSign(w, s)
	case SplitUnitWiseTruncatedUnary:
		return bz.writeSUTU(w, v)
	case SignedSplitUnitWiseTruncatedUnary:
		s := int64(v) //nolint:gosec
		if err := bz.writeSUTU(w, abs(s)); err != nil {
			return err
		}
		writeSign(w, s)
	case DoubleTruncatedUnary:
		return bz.writeDTU(w, v)
	case SignedDoubleTruncatedUnary:
		s := int64(v) //nolint:gosec
		if err := bz.writeDTU(w, abs(s)); err != nil {
			return err
		}
		writeSign(w, s)
	}

	return nil
}

func (bz binarizer) decode(r *bitio.Reader) uint64 {
	switch bz.id {
	case BinaryCoding:
		return r.ReadBits(bz.length)
	case TruncatedUnary:
		return readTU(r, bz.cMax)
	case ExpGolomb:
		return readEG(r)
	case SignedExpGolomb:
		return uint64(unzigzag(readEG(r))) //nolint:gosec
	case TruncatedExpGolomb:
		return readTEG(r, bz.cMax)
	case SignedTruncatedExpGolomb:
		return readSigned(r, readTEG(r, bz.cMax))
	case SplitUnitWiseTruncatedUnary:
		return bz.readSUTU(r)
	case SignedSplitUnitWiseTruncatedUnary:
		return readSigned(r, bz.readSUTU(r))
	case DoubleTruncatedUnary:
		return bz.readDTU(r)
	case SignedDoubleTruncatedUnary:
		return readSigned(r, bz.readDTU(r))
	}

	return 0
}

func writeTU(w *bitio.Writer, v, cMax uint64) {
	for range v {
		w.WriteBits(1, 1)
	}
	if v < cMax {
		w.WriteBits(0, 1)
	}
}

func readTU(r *bitio.Reader, cMax uint64) uint64 {
	var v uint64
	for v < cMax && r.Err() == nil && r.ReadBits(1) == 1 {
		v++
	}

	return v
}

func writeEG(w *bitio.Writer, v uint64) {
	if v == ^uint64(0) {
		w.Fail(fmt.Errorf("%w: value %d is outside the exp-Golomb range", errs.ErrInvalidValue, v))
		return
	}
	val := v + 1
	zeros := bits.Len64(val) - 1
	w.WriteBits(0, zeros)
	w.WriteBits(1, 1)
	w.WriteBits(val-(1<<zeros), zeros)
}

func readEG(r *bitio.Reader) uint64 {
	zeros := 0
	for r.Err() == nil && r.ReadBits(1) == 0 {
		zeros++
		if zeros > 63 {
			r.Fail(fmt.Errorf("%w: exp-Golomb prefix longer than 63 bits", errs.ErrStructural))
			return 0
		}
	}
	if zeros == 0 {
		return 0
	}

	return (uint64(1) << zeros) + r.ReadBits(zeros) - 1
}

func writeTEG(w *bitio.Writer, v, cMax uint64) {
	if v < cMax {
		writeTU(w, v, cMax)
		return
	}
	writeTU(w, cMax, cMax)
	writeEG(w, v-cMax)
}

func readTEG(r *bitio.Reader, cMax uint64) uint64 {
	v := readTU(r, cMax)
	if v == cMax {
		v += readEG(r)
	}

	return v
}

// sutuLayout returns the per-unit maximum, the maximum of the trailing
// partial unit (zero when the output size is a multiple of the split) and
// the number of whole units.
func (bz binarizer) sutuLayout() (unitMax, lastMax uint64, units int) {
	units = bz.outputBits / bz.split
	rest := bz.outputBits % bz.split

	return uint64(1)<<bz.split - 1, uint64(1)<<rest - 1, units
}

func (bz binarizer) writeSUTU(w *bitio.Writer, v uint64) error {
	if bz.outputBits < 64 && v>>bz.outputBits != 0 {
		return fmt.Errorf("%w: value %d does not fit %d bits", errs.ErrInvalidValue, v, bz.outputBits)
	}
	unitMax, lastMax, units := bz.sutuLayout()
	for range units {
		writeTU(w, v&unitMax, unitMax)
		v >>= bz.split
	}
	if lastMax > 0 {
		writeTU(w, v, lastMax)
	}

	return nil
}

func (bz binarizer) readSUTU(r *bitio.Reader) uint64 {
	unitMax, lastMax, units := bz.sutuLayout()
	var v uint64
	shift := 0
	for range units {
		v |= readTU(r, unitMax) << shift
		shift += bz.split
	}
	if lastMax > 0 {
		v |= readTU(r, lastMax) << shift
	}

	return v
}

func (bz binarizer) writeDTU(w *bitio.Writer, v uint64) error {
	if bz.cMax == 0 {
		return bz.writeSUTU(w, v)
	}
	if v < bz.cMax {
		writeTU(w, v, bz.cMax)
		return nil
	}
	writeTU(w, bz.cMax, bz.cMax)

	return bz.writeSUTU(w, v-bz.cMax)
}

func (bz binarizer) readDTU(r *bitio.Reader) uint64 {
	if bz.cMax == 0 {
		return bz.readSUTU(r)
	}
	v := readTU(r, bz.cMax)
	if v == bz.cMax {
		v += bz.readSUTU(r)
	}

	return v
}

// writeSign emits a sign bit, set for negative values, after a non-zero magnitude.
func writeSign(w *bitio.Writer, s int64) {
	if s == 0 {
		return
	}
	if s < 0 {
		w.WriteBits(1, 1)
	} else {
		w.WriteBits(0, 1)
	}
}

func readSigned(r *bitio.Reader, magnitude uint64) uint64 {
	if magnitude == 0 {
		return 0
	}
	if r.ReadBits(1) == 1 {
		return uint64(-int64(magnitude)) //nolint:gosec
	}

	return magnitude
}

// zigzag maps 0, 1, -1, 2, -2 ... to 0, 1, 2, 3, 4 ...
func zigzag(s int64) uint64 {
	if s <= 0 {
		return uint64(-s) << 1 //nolint:gosec
	}

	return uint64(s)<<1 - 1
}

func unzigzag(v uint64) int64 {
	if v&1 == 1 {
		return int64((v + 1) >> 1) //nolint:gosec
	}

	return -int64(v >> 1) //nolint:gosec
}

func abs(s int64) uint64 {
	if s < 0 {
		return uint64(-s) //nolint:gosec
	}

	return uint64(s)
}
