package entity

import (
	"fmt"
	"math"

	"github.com/arloliu/mpegg/box"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/format"
	"github.com/arloliu/mpegg/index"
	"github.com/arloliu/mpegg/internal/bitio"
	"github.com/arloliu/mpegg/signature"
)

// DefaultDatasetVersion is the version string written by NewDatasetHeader.
const DefaultDatasetVersion = "1900"

const (
	datasetVersionLen = 4
	maxThreshold      = 1<<31 - 1
	maxSignatureBase  = 1<<31 - 1
)

// Sequence is a reference sequence covered by a dataset.
type Sequence struct {
	ID        uint16
	Blocks    uint32 // access units per aligned class
	Threshold uint32 // u31
}

// ClassEntry declares a data class and, in columnar datasets, the
// descriptors that have a stream for it.
type ClassEntry struct {
	Class       format.DataClass
	Descriptors []format.DescriptorID
}

// DatasetHeader is the dthd box. Its flags decide the layout of every
// other box in the dataset.
type DatasetHeader struct {
	GroupID   uint8
	DatasetID uint16
	Version   string

	MultipleAlignment     bool
	ByteOffset64          bool
	NonOverlappingAURange bool
	Pos40Bits             bool

	// BlockHeader selects inline blocks inside each access unit. Without
	// it the dataset is columnar: one descriptor stream per class and
	// descriptor, and a master index table is mandatory.
	BlockHeader     bool
	MIT             bool
	ClassContiguous bool // block-header datasets only
	OrderedBlocks   bool // columnar datasets only

	ReferenceID uint8
	Sequences   []Sequence
	DatasetType format.DatasetType
	Classes     []ClassEntry // declared only when MIT is set
	Alphabet    format.AlphabetID

	NumUnmappedAUs           uint32
	NumUnmappedClusters      uint32
	MultipleSignatureBase    uint32 // u31
	USignatureSize           uint8  // u6, present when MultipleSignatureBase > 0
	USignatureConstantLength bool
	USignatureLength         uint8
}

var (
	_ box.Entity   = (*DatasetHeader)(nil)
	_ box.Readable = (*DatasetHeader)(nil)
)

// NewDatasetHeader returns an aligned DNA dataset header with the default
// version.
func NewDatasetHeader(groupID uint8, datasetID uint16) *DatasetHeader {
	return &DatasetHeader{
		GroupID:     groupID,
		DatasetID:   datasetID,
		Version:     DefaultDatasetVersion,
		DatasetType: format.DatasetAligned,
		Alphabet:    format.AlphabetDNA,
	}
}

func (h *DatasetHeader) Key() box.Key { return box.KeyDatasetHeader }

// Validate checks the combinations of flags and fields the layout can encode.
func (h *DatasetHeader) Validate() error {
	switch {
	case len(h.Version) != datasetVersionLen:
		return fmt.Errorf("%w: dataset version %q", errs.ErrInvalidValue, h.Version)
	case !h.BlockHeader && !h.MIT:
		return fmt.Errorf("%w: columnar dataset without master index table", errs.ErrInvalidValue)
	case !h.BlockHeader && h.ClassContiguous:
		return fmt.Errorf("%w: class contiguous mode requires block headers", errs.ErrInvalidValue)
	case h.BlockHeader && h.OrderedBlocks:
		return fmt.Errorf("%w: ordered blocks flag requires a columnar dataset", errs.ErrInvalidValue)
	case !h.MIT && len(h.Classes) > 0:
		return fmt.Errorf("%w: class table without master index table", errs.ErrInvalidValue)
	case len(h.Sequences) > math.MaxUint16:
		return fmt.Errorf("%w: %d sequences", errs.ErrInvalidValue, len(h.Sequences))
	case len(h.Classes) > 0xF:
		return fmt.Errorf("%w: %d classes", errs.ErrInvalidValue, len(h.Classes))
	case !h.DatasetType.Valid():
		return fmt.Errorf("%w: dataset type %d", errs.ErrUnknownVariant, h.DatasetType)
	case !h.Alphabet.Valid():
		return fmt.Errorf("%w: alphabet %d", errs.ErrUnknownVariant, h.Alphabet)
	}

	for _, s := range h.Sequences {
		if s.Threshold > maxThreshold {
			return fmt.Errorf("%w: sequence %d threshold %d", errs.ErrInvalidValue, s.ID, s.Threshold)
		}
	}

	seen := make(map[format.DataClass]bool, len(h.Classes))
	for _, c := range h.Classes {
		if !c.Class.Valid() {
			return fmt.Errorf("%w: data class %d", errs.ErrUnknownVariant, c.Class)
		}
		if seen[c.Class] {
			return fmt.Errorf("%w: data class %s declared twice", errs.ErrInvalidValue, c.Class)
		}
		seen[c.Class] = true

		if h.BlockHeader && len(c.Descriptors) > 0 {
			return fmt.Errorf("%w: class %s lists descriptors in a block-header dataset", errs.ErrInvalidValue, c.Class)
		}
		if len(c.Descriptors) > 0x1F {
			return fmt.Errorf("%w: class %s lists %d descriptors", errs.ErrInvalidValue, c.Class, len(c.Descriptors))
		}
		for _, d := range c.Descriptors {
			if !d.Valid() {
				return fmt.Errorf("%w: descriptor %d of class %s", errs.ErrUnknownVariant, d, c.Class)
			}
		}
	}

	return h.validateUnmapped()
}

func (h *DatasetHeader) validateUnmapped() error {
	if h.NumUnmappedAUs == 0 {
		if h.NumUnmappedClusters != 0 || h.MultipleSignatureBase != 0 || h.USignatureSize != 0 ||
			h.USignatureConstantLength || h.USignatureLength != 0 {
			return fmt.Errorf("%w: unmapped signature parameters without unmapped access units", errs.ErrInvalidValue)
		}

		return nil
	}

	switch {
	case h.MultipleSignatureBase > maxSignatureBase:
		return fmt.Errorf("%w: multiple signature base %d", errs.ErrInvalidValue, h.MultipleSignatureBase)
	case h.MultipleSignatureBase == 0 && h.USignatureSize != 0:
		return fmt.Errorf("%w: signature size without a signature base", errs.ErrInvalidValue)
	case h.USignatureSize > 0x3F:
		return fmt.Errorf("%w: signature size %d", errs.ErrInvalidValue, h.USignatureSize)
	case !h.USignatureConstantLength && h.USignatureLength != 0:
		return fmt.Errorf("%w: signature length without the constant length flag", errs.ErrInvalidValue)
	}

	return nil
}

// Size returns the content size, rounded up to a byte.
func (h *DatasetHeader) Size() (uint64, bool) {
	return uint64((h.sizeInBits() + 7) / 8), true //nolint:gosec
}

func (h *DatasetHeader) sizeInBits() int64 {
	bits := int64(8 + 16 + 8*datasetVersionLen + 5)
	if h.BlockHeader {
		bits += 2
	} else {
		bits++
	}

	n := int64(len(h.Sequences))
	bits += 16
	if n > 0 {
		bits += 8 + n*(16+32)
	}
	bits += 4

	if h.MIT {
		bits += 4
		for _, c := range h.Classes {
			bits += 4
			if !h.BlockHeader {
				bits += 5 + 7*int64(len(c.Descriptors))
			}
		}
	}

	bits += 8 + 32
	if h.NumUnmappedAUs > 0 {
		bits += 32 + 31 + 1
		if h.MultipleSignatureBase > 0 {
			bits += 6
		}
		if h.USignatureConstantLength {
			bits += 8
		}
	}

	for i, s := range h.Sequences {
		bits++
		if i == 0 || s.Threshold != h.Sequences[i-1].Threshold {
			bits += 31
		}
	}

	return bits
}

func (h *DatasetHeader) Write(w *bitio.Writer) error {
	if err := h.Validate(); err != nil {
		return err
	}

	w.WriteU8(h.GroupID)
	w.WriteU16(h.DatasetID)
	w.WriteFixedString(h.Version, datasetVersionLen)
	w.WriteBool(h.MultipleAlignment)
	w.WriteBool(h.ByteOffset64)
	w.WriteBool(h.NonOverlappingAURange)
	w.WriteBool(h.Pos40Bits)
	w.WriteBool(h.BlockHeader)
	if h.BlockHeader {
		w.WriteBool(h.MIT)
		w.WriteBool(h.ClassContiguous)
	} else {
		w.WriteBool(h.OrderedBlocks)
	}

	w.WriteU16(uint16(len(h.Sequences))) //nolint:gosec
	if len(h.Sequences) > 0 {
		w.WriteU8(h.ReferenceID)
		for _, s := range h.Sequences {
			w.WriteU16(s.ID)
		}
		for _, s := range h.Sequences {
			w.WriteU32(s.Blocks)
		}
	}
	w.WriteBits(uint64(h.DatasetType), 4)

	if h.MIT {
		w.WriteBits(uint64(len(h.Classes)), 4)
		for _, c := range h.Classes {
			w.WriteBits(uint64(c.Class), 4)
			if !h.BlockHeader {
				w.WriteBits(uint64(len(c.Descriptors)), 5)
				for _, d := range c.Descriptors {
					w.WriteBits(uint64(d), 7)
				}
			}
		}
	}

	w.WriteU8(uint8(h.Alphabet))
	w.WriteU32(h.NumUnmappedAUs)
	if h.NumUnmappedAUs > 0 {
		w.WriteU32(h.NumUnmappedClusters)
		w.WriteBits(uint64(h.MultipleSignatureBase), 31)
		if h.MultipleSignatureBase > 0 {
			w.WriteBits(uint64(h.USignatureSize), 6)
		}
		w.WriteBool(h.USignatureConstantLength)
		if h.USignatureConstantLength {
			w.WriteU8(h.USignatureLength)
		}
	}

	for i, s := range h.Sequences {
		changed := i == 0 || s.Threshold != h.Sequences[i-1].Threshold
		w.WriteBool(changed)
		if changed {
			w.WriteBits(uint64(s.Threshold), 31)
		}
	}
	w.Align()

	return w.Err()
}

func (h *DatasetHeader) ReadContent(r *bitio.Reader, _ uint64) error {
	h.GroupID = r.ReadU8()
	h.DatasetID = r.ReadU16()
	h.Version = r.ReadFixedString(datasetVersionLen)
	h.MultipleAlignment = r.ReadBool()
	h.ByteOffset64 = r.ReadBool()
	h.NonOverlappingAURange = r.ReadBool()
	h.Pos40Bits = r.ReadBool()
	h.BlockHeader = r.ReadBool()
	h.MIT, h.ClassContiguous, h.OrderedBlocks = true, false, false
	if h.BlockHeader {
		h.MIT = r.ReadBool()
		h.ClassContiguous = r.ReadBool()
	} else {
		h.OrderedBlocks = r.ReadBool()
	}

	n := int64(r.ReadU16())
	h.ReferenceID = 0
	h.Sequences = nil
	if n > 0 {
		if !r.CheckCount(n, 16+32) {
			return r.Err()
		}
		h.ReferenceID = r.ReadU8()
		h.Sequences = make([]Sequence, n)
		for i := range h.Sequences {
			h.Sequences[i].ID = r.ReadU16()
		}
		for i := range h.Sequences {
			h.Sequences[i].Blocks = r.ReadU32()
		}
	}

	h.DatasetType = format.DatasetType(r.ReadBits(4)) //nolint:gosec
	if r.Err() == nil && !h.DatasetType.Valid() {
		return fmt.Errorf("%w: dataset type %d", errs.ErrUnknownVariant, h.DatasetType)
	}

	h.Classes = nil
	if h.MIT {
		for range r.ReadBits(4) {
			c := ClassEntry{Class: format.DataClass(r.ReadBits(4))} //nolint:gosec
			if r.Err() == nil && !c.Class.Valid() {
				return fmt.Errorf("%w: data class %d", errs.ErrUnknownVariant, c.Class)
			}
			if !h.BlockHeader {
				for range r.ReadBits(5) {
					c.Descriptors = append(c.Descriptors, format.DescriptorID(r.ReadBits(7))) //nolint:gosec
				}
			}
			h.Classes = append(h.Classes, c)
		}
	}

	h.Alphabet = format.AlphabetID(r.ReadU8())
	h.NumUnmappedAUs = r.ReadU32()
	h.NumUnmappedClusters, h.MultipleSignatureBase, h.USignatureSize = 0, 0, 0
	h.USignatureConstantLength, h.USignatureLength = false, 0
	if h.NumUnmappedAUs > 0 {
		h.NumUnmappedClusters = r.ReadU32()
		h.MultipleSignatureBase = uint32(r.ReadBits(31)) //nolint:gosec
		if h.MultipleSignatureBase > 0 {
			h.USignatureSize = uint8(r.ReadBits(6)) //nolint:gosec
		}
		h.USignatureConstantLength = r.ReadBool()
		if h.USignatureConstantLength {
			h.USignatureLength = r.ReadU8()
		}
	}

	for i := range h.Sequences {
		changed := r.ReadBool()
		switch {
		case changed:
			h.Sequences[i].Threshold = uint32(r.ReadBits(31)) //nolint:gosec
		case i == 0:
			if r.Err() == nil {
				return fmt.Errorf("%w: first sequence threshold is not present", errs.ErrStructural)
			}
		default:
			h.Sequences[i].Threshold = h.Sequences[i-1].Threshold
		}
	}
	r.Align()

	if err := r.Err(); err != nil {
		return err
	}

	return h.Validate()
}

// PosBits returns the width of position fields.
func (h *DatasetHeader) PosBits() int {
	if h.Pos40Bits {
		return 40
	}

	return 32
}

// ClassIndex returns the position of class in the class table.
func (h *DatasetHeader) ClassIndex(class format.DataClass) (index.ClassIndex, error) {
	for i, c := range h.Classes {
		if c.Class == class {
			return index.ClassIndex(i), nil //nolint:gosec
		}
	}

	return 0, fmt.Errorf("%w: %s in dataset %d", errs.ErrDataClassNotFound, class, h.DatasetID)
}

// Class returns the class table entry at ci.
func (h *DatasetHeader) Class(ci index.ClassIndex) (ClassEntry, error) {
	if int(ci) >= len(h.Classes) {
		return ClassEntry{}, fmt.Errorf("%w: class index %d of %d", errs.ErrDataClassNotFound, ci, len(h.Classes))
	}

	return h.Classes[ci], nil
}

// SequenceIndex returns the position of the reference sequence seqID.
func (h *DatasetHeader) SequenceIndex(seqID uint16) (index.SequenceIndex, error) {
	for i, s := range h.Sequences {
		if s.ID == seqID {
			return index.SequenceIndex(i), nil //nolint:gosec
		}
	}

	return 0, fmt.Errorf("%w: sequence %d in dataset %d", errs.ErrSequenceNotAvailable, seqID, h.DatasetID)
}

// DescriptorIndex returns the position of desc in the descriptor list of class.
func (h *DatasetHeader) DescriptorIndex(class format.DataClass, desc format.DescriptorID) (index.DescriptorIndex, error) {
	ci, err := h.ClassIndex(class)
	if err != nil {
		return 0, err
	}
	for i, d := range h.Classes[ci].Descriptors {
		if d == desc {
			return index.DescriptorIndex(i), nil //nolint:gosec
		}
	}

	return 0, fmt.Errorf("%w: %s in class %s", errs.ErrDescriptorNotFound, desc, class)
}

// NumAlignedClasses returns the number of declared classes other than U.
func (h *DatasetHeader) NumAlignedClasses() int {
	n := 0
	for _, c := range h.Classes {
		if c.Class.IsAligned() {
			n++
		}
	}

	return n
}

// SignatureParams returns the packing of unmapped cluster signatures.
func (h *DatasetHeader) SignatureParams() signature.Params {
	p := signature.Params{
		IntegerBits:   int(h.USignatureSize),
		BitsPerSymbol: h.Alphabet.BitsPerSymbol(),
	}
	if h.USignatureConstantLength {
		p.Length = int(h.USignatureLength)
	}

	return p
}

// IndexLayout returns the shape of the dataset master index table.
func (h *DatasetHeader) IndexLayout() index.Layout {
	l := index.Layout{
		DatasetType:       h.DatasetType,
		MultipleAlignment: h.MultipleAlignment,
		Pos40Bits:         h.Pos40Bits,
		ByteOffset64:      h.ByteOffset64,
		BlockHeader:       h.BlockHeader,
		NumUnmapped:       h.NumUnmappedAUs,
		SignatureBase:     int(h.MultipleSignatureBase),
		Signature:         h.SignatureParams(),
	}
	for _, s := range h.Sequences {
		l.SequenceBlocks = append(l.SequenceBlocks, s.Blocks)
	}
	for _, c := range h.Classes {
		l.Classes = append(l.Classes, index.ClassLayout{Class: c.Class, NumDescriptors: len(c.Descriptors)})
	}

	return l
}
