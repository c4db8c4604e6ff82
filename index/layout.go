// Package index implements the Master Index Table: the per-dataset table
// that maps (sequence, class, access unit, descriptor) coordinates to byte
// offsets, so a single descriptor block can be located without scanning.
package index

import (
	"fmt"

	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/format"
	"github.com/arloliu/mpegg/signature"
)

// SequenceIndex is the position of a reference sequence in the dataset header.
type SequenceIndex uint16

// ClassIndex is the position of a data class in the dataset header class list.
type ClassIndex uint8

// DescriptorIndex is the position of a descriptor in a class descriptor list.
type DescriptorIndex uint8

// Triplet is the logical coordinate of an aligned access unit.
type Triplet struct {
	Seq   SequenceIndex
	Class ClassIndex
	AU    uint32
}

func (t Triplet) String() string {
	return fmt.Sprintf("(seq=%d, class=%d, au=%d)", t.Seq, t.Class, t.AU)
}

// ClassLayout describes one data class declared in the dataset header.
type ClassLayout struct {
	Class          format.DataClass
	NumDescriptors int // descriptors with per-block offsets; 0 in block-header mode
}

// Layout is the shape of a Master Index Table, derived from the dataset header.
type Layout struct {
	DatasetType       format.DatasetType
	MultipleAlignment bool
	Pos40Bits         bool
	ByteOffset64      bool
	BlockHeader       bool

	SequenceBlocks []uint32      // access units per reference sequence
	Classes        []ClassLayout // in header order, U included when declared

	NumUnmapped   uint32
	SignatureBase int
	Signature     signature.Params
}

// PosBits returns the width of position fields.
func (l Layout) PosBits() int {
	if l.Pos40Bits {
		return 40
	}

	return 32
}

// OffsetBits returns the width of byte offset fields.
func (l Layout) OffsetBits() int {
	if l.ByteOffset64 {
		return 64
	}

	return 32
}

// NotPresent is the byte offset value marking an absent block or access unit.
func (l Layout) NotPresent() uint64 {
	return signature.Sentinel(l.OffsetBits())
}

// IsReference reports whether entries carry reference ranges.
func (l Layout) IsReference() bool {
	return l.DatasetType == format.DatasetReference
}

// UnmappedClass returns the class index of U, if declared.
func (l Layout) UnmappedClass() (ClassIndex, bool) {
	for i, c := range l.Classes {
		if c.Class == format.ClassU {
			return ClassIndex(i), true //nolint:gosec
		}
	}

	return 0, false
}

// UnmappedDescriptors returns the number of per-block offsets of an unmapped entry.
func (l Layout) UnmappedDescriptors() int {
	if l.BlockHeader {
		return 0
	}
	if ci, ok := l.UnmappedClass(); ok {
		return l.Classes[ci].NumDescriptors
	}

	return 0
}

func (l Layout) descriptors(ci ClassIndex) int {
	if l.BlockHeader {
		return 0
	}

	return l.Classes[ci].NumDescriptors
}

// Validate checks the layout for internal consistency.
func (l Layout) Validate() error {
	if !l.DatasetType.Valid() {
		return fmt.Errorf("%w: dataset type %d", errs.ErrUnknownVariant, l.DatasetType)
	}
	if len(l.SequenceBlocks) > 0xFFFF {
		return fmt.Errorf("%w: %d sequences", errs.ErrInvalidValue, len(l.SequenceBlocks))
	}
	if len(l.Classes) > 0xF {
		return fmt.Errorf("%w: %d classes", errs.ErrInvalidValue, len(l.Classes))
	}
	for _, c := range l.Classes {
		if !c.Class.Valid() {
			return fmt.Errorf("%w: data class %d", errs.ErrUnknownVariant, c.Class)
		}
	}
	if l.NumUnmapped > 0 && !l.IsReference() && l.SignatureBase > 0 {
		if err := l.Signature.Validate(); err != nil {
			return err
		}
	}

	return nil
}
