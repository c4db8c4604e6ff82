package index

import (
	"fmt"
	"slices"

	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/signature"
)

// Entry returns the row of an aligned access unit.
func (m *MasterIndexTable) Entry(t Triplet) (*AccessUnitEntry, error) {
	if int(t.Seq) >= len(m.entries) {
		return nil, fmt.Errorf("%w: sequence index %d", errs.ErrSequenceNotAvailable, t.Seq)
	}
	if int(t.Class) >= len(m.layout.Classes) || !m.layout.Classes[t.Class].Class.IsAligned() {
		return nil, fmt.Errorf("%w: aligned class index %d", errs.ErrDataClassNotFound, t.Class)
	}

	row := m.entries[t.Seq][t.Class]
	if int64(t.AU) >= int64(len(row)) {
		return nil, fmt.Errorf("%w: %s", errs.ErrAccessUnitNotFound, t)
	}

	return &row[t.AU], nil
}

// AUStart returns the first mapped position of an access unit.
func (m *MasterIndexTable) AUStart(t Triplet) (uint64, error) {
	e, err := m.Entry(t)
	if err != nil {
		return 0, err
	}

	return e.Start, nil
}

// AUEnd returns the last mapped position of an access unit.
func (m *MasterIndexTable) AUEnd(t Triplet) (uint64, error) {
	e, err := m.Entry(t)
	if err != nil {
		return 0, err
	}

	return e.End, nil
}

// AURef returns the reference range of an access unit of a reference dataset.
func (m *MasterIndexTable) AURef(t Triplet) (seq uint16, start, end uint64, err error) {
	if !m.layout.IsReference() {
		return 0, 0, 0, fmt.Errorf("%w: dataset type %s has no reference ranges", errs.ErrUnsupportedPath, m.layout.DatasetType)
	}
	e, err := m.Entry(t)
	if err != nil {
		return 0, 0, 0, err
	}

	return e.RefSequence, e.RefStart, e.RefEnd, nil
}

// AUExtended returns the extended range of an access unit of a multiple alignment dataset.
func (m *MasterIndexTable) AUExtended(t Triplet) (start, end uint64, err error) {
	if !m.layout.MultipleAlignment {
		return 0, 0, fmt.Errorf("%w: dataset has no extended ranges", errs.ErrUnsupportedPath)
	}
	e, err := m.Entry(t)
	if err != nil {
		return 0, 0, err
	}

	return e.ExtStart, e.ExtEnd, nil
}

// AUByteOffset returns the dataset-relative offset of an access unit.
func (m *MasterIndexTable) AUByteOffset(t Triplet) (uint64, error) {
	e, err := m.Entry(t)
	if err != nil {
		return 0, err
	}
	if e.ByteOffset == m.layout.NotPresent() {
		return 0, fmt.Errorf("%w: access unit %s", errs.ErrBlockNotPresent, t)
	}

	return e.ByteOffset, nil
}

// BlockByteOffset returns the dataset-relative offset of one descriptor block
// of an access unit in a columnar dataset.
func (m *MasterIndexTable) BlockByteOffset(t Triplet, d DescriptorIndex) (uint64, error) {
	e, err := m.Entry(t)
	if err != nil {
		return 0, err
	}
	if int(d) >= len(e.BlockOffsets) {
		return 0, fmt.Errorf("%w: descriptor index %d of class index %d", errs.ErrDescriptorNotFound, d, t.Class)
	}
	off := e.BlockOffsets[d]
	if off == m.layout.NotPresent() {
		return 0, fmt.Errorf("%w: descriptor index %d of %s", errs.ErrBlockNotPresent, d, t)
	}

	return off, nil
}

// NextBlockStart returns the smallest recorded block offset of (class,
// descriptor) greater than offset. The second result is false when the
// block at offset is the last one, and its range extends to the end of the
// descriptor stream.
func (m *MasterIndexTable) NextBlockStart(c ClassIndex, d DescriptorIndex, offset uint64) (uint64, bool) {
	if int(c) >= len(m.starts) || int(d) >= len(m.starts[c]) {
		return 0, false
	}

	return nextGreater(m.starts[c][d], offset)
}

// NextAUStart returns the smallest access unit offset of class c greater than offset.
func (m *MasterIndexTable) NextAUStart(c ClassIndex, offset uint64) (uint64, bool) {
	if int(c) >= len(m.auStarts) {
		return 0, false
	}

	return nextGreater(m.auStarts[c], offset)
}

// Unmapped returns the row of an unmapped access unit.
func (m *MasterIndexTable) Unmapped(uau uint32) (*UnmappedEntry, error) {
	if int64(uau) >= int64(len(m.unmapped)) {
		return nil, fmt.Errorf("%w: unmapped access unit %d", errs.ErrAccessUnitNotFound, uau)
	}

	return &m.unmapped[uau], nil
}

// UnmappedByteOffset returns the dataset-relative offset of an unmapped access unit.
func (m *MasterIndexTable) UnmappedByteOffset(uau uint32) (uint64, error) {
	e, err := m.Unmapped(uau)
	if err != nil {
		return 0, err
	}
	if e.ByteOffset == m.layout.NotPresent() {
		return 0, fmt.Errorf("%w: unmapped access unit %d", errs.ErrBlockNotPresent, uau)
	}

	return e.ByteOffset, nil
}

// UnmappedBlockByteOffset returns the offset of one U descriptor block.
func (m *MasterIndexTable) UnmappedBlockByteOffset(uau uint32, d DescriptorIndex) (uint64, error) {
	e, err := m.Unmapped(uau)
	if err != nil {
		return 0, err
	}
	if int(d) >= len(e.BlockOffsets) {
		return 0, fmt.Errorf("%w: unmapped descriptor index %d", errs.ErrDescriptorNotFound, d)
	}
	if e.BlockOffsets[d] == m.layout.NotPresent() {
		return 0, fmt.Errorf("%w: descriptor index %d of unmapped access unit %d", errs.ErrBlockNotPresent, d, uau)
	}

	return e.BlockOffsets[d], nil
}

// UnmappedNextBlockStart is NextBlockStart for U descriptors.
func (m *MasterIndexTable) UnmappedNextBlockStart(d DescriptorIndex, offset uint64) (uint64, bool) {
	if int(d) >= len(m.ustarts) {
		return 0, false
	}

	return nextGreater(m.ustarts[d], offset)
}

// UnmappedSignatures returns the cluster signatures of an unmapped access unit.
func (m *MasterIndexTable) UnmappedSignatures(uau uint32) ([]signature.Signature, error) {
	e, err := m.Unmapped(uau)
	if err != nil {
		return nil, err
	}

	return e.Signatures, nil
}

// TripletAt maps an access unit byte offset back to its coordinate.
func (m *MasterIndexTable) TripletAt(offset uint64) (Triplet, bool) {
	t, ok := m.byOffset[offset]
	return t, ok
}

// Validate checks that recorded offsets increase strictly with the access
// unit id within every (sequence, class) and (sequence, class, descriptor).
func (m *MasterIndexTable) Validate() error {
	absent := m.layout.NotPresent()

	for s := range m.entries {
		for c, row := range m.entries[s] {
			if err := increasing(row, absent, func(e *AccessUnitEntry) uint64 { return e.ByteOffset }); err != nil {
				return fmt.Errorf("sequence %d class %d: %w", s, c, err)
			}
			for d := range m.layout.descriptors(ClassIndex(c)) { //nolint:gosec
				if err := increasing(row, absent, func(e *AccessUnitEntry) uint64 { return e.BlockOffsets[d] }); err != nil {
					return fmt.Errorf("sequence %d class %d descriptor %d: %w", s, c, d, err)
				}
			}
		}
	}

	return nil
}

// BlocksOrdered reports whether, for every class and descriptor, offsets
// also increase across sequences in header order, as the ordered-blocks
// dataset flag promises.
func (m *MasterIndexTable) BlocksOrdered() bool {
	absent := m.layout.NotPresent()

	for c := range m.layout.Classes {
		var rows []AccessUnitEntry
		for s := range m.entries {
			rows = append(rows, m.entries[s][c]...)
		}
		if increasing(rows, absent, func(e *AccessUnitEntry) uint64 { return e.ByteOffset }) != nil {
			return false
		}
		for d := range m.layout.descriptors(ClassIndex(c)) { //nolint:gosec
			if increasing(rows, absent, func(e *AccessUnitEntry) uint64 { return e.BlockOffsets[d] }) != nil {
				return false
			}
		}
	}

	return true
}

func increasing(row []AccessUnitEntry, absent uint64, get func(*AccessUnitEntry) uint64) error {
	var prev uint64
	seen := false
	for a := range row {
		v := get(&row[a])
		if v == absent {
			continue
		}
		if seen && v <= prev {
			return fmt.Errorf("%w: offset %d of access unit %d does not follow %d", errs.ErrStructural, v, a, prev)
		}
		prev, seen = v, true
	}

	return nil
}

func nextGreater(sorted []uint64, offset uint64) (uint64, bool) {
	i, _ := slices.BinarySearch(sorted, offset)
	for i < len(sorted) && sorted[i] == offset {
		i++
	}
	if i >= len(sorted) {
		return 0, false
	}

	return sorted[i], true
}
