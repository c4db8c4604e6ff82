package index

import (
	"fmt"

	"github.com/arloliu/mpegg/errs"
)

// Builder fills a Master Index Table while a dataset is being encoded.
//
// Every slot starts as not present; the encoder records each access unit
// and descriptor block as its bytes are appended.
type Builder struct {
	m *MasterIndexTable
}

// NewBuilder allocates a table shaped by layout.
func NewBuilder(layout Layout) (*Builder, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	absent := layout.NotPresent()
	m := &MasterIndexTable{layout: layout}
	m.entries = make([][][]AccessUnitEntry, len(layout.SequenceBlocks))
	for s, blocks := range layout.SequenceBlocks {
		m.entries[s] = make([][]AccessUnitEntry, len(layout.Classes))
		for c, cl := range layout.Classes {
			if !cl.Class.IsAligned() {
				continue
			}
			row := make([]AccessUnitEntry, blocks)
			for a := range row {
				row[a].ByteOffset = absent
				row[a].BlockOffsets = absentOffsets(layout.descriptors(ClassIndex(c)), absent) //nolint:gosec
			}
			m.entries[s][c] = row
		}
	}

	m.unmapped = make([]UnmappedEntry, layout.NumUnmapped)
	for i := range m.unmapped {
		m.unmapped[i].ByteOffset = absent
		m.unmapped[i].BlockOffsets = absentOffsets(layout.UnmappedDescriptors(), absent)
	}

	return &Builder{m: m}, nil
}

func absentOffsets(n int, absent uint64) []uint64 {
	if n == 0 {
		return nil
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = absent
	}

	return out
}

// SetAccessUnit records the row of an aligned access unit. A nil
// BlockOffsets keeps every descriptor block marked as not present.
func (b *Builder) SetAccessUnit(t Triplet, e AccessUnitEntry) error {
	slot, err := b.m.Entry(t)
	if err != nil {
		return err
	}
	if e.End < e.Start {
		return fmt.Errorf("%w: access unit %s ends at %d before its start %d", errs.ErrInvalidValue, t, e.End, e.Start)
	}

	want := b.m.layout.descriptors(t.Class)
	switch {
	case e.BlockOffsets == nil:
		e.BlockOffsets = slot.BlockOffsets
	case len(e.BlockOffsets) != want:
		return fmt.Errorf("%w: %s has %d block offsets, class declares %d", errs.ErrInvalidValue, t, len(e.BlockOffsets), want)
	}
	*slot = e

	return nil
}

// SetBlockOffset records the offset of a single descriptor block.
func (b *Builder) SetBlockOffset(t Triplet, d DescriptorIndex, offset uint64) error {
	slot, err := b.m.Entry(t)
	if err != nil {
		return err
	}
	if int(d) >= len(slot.BlockOffsets) {
		return fmt.Errorf("%w: descriptor index %d of class index %d", errs.ErrDescriptorNotFound, d, t.Class)
	}
	slot.BlockOffsets[d] = offset

	return nil
}

// SetUnmapped records the row of an unmapped access unit.
func (b *Builder) SetUnmapped(uau uint32, e UnmappedEntry) error {
	slot, err := b.m.Unmapped(uau)
	if err != nil {
		return err
	}

	want := b.m.layout.UnmappedDescriptors()
	switch {
	case e.BlockOffsets == nil:
		e.BlockOffsets = slot.BlockOffsets
	case len(e.BlockOffsets) != want:
		return fmt.Errorf("%w: unmapped access unit %d has %d block offsets, class declares %d",
			errs.ErrInvalidValue, uau, len(e.BlockOffsets), want)
	}
	*slot = e

	return nil
}

// SetUnmappedBlockOffset records the offset of a single U descriptor block.
func (b *Builder) SetUnmappedBlockOffset(uau uint32, d DescriptorIndex, offset uint64) error {
	slot, err := b.m.Unmapped(uau)
	if err != nil {
		return err
	}
	if int(d) >= len(slot.BlockOffsets) {
		return fmt.Errorf("%w: unmapped descriptor index %d", errs.ErrDescriptorNotFound, d)
	}
	slot.BlockOffsets[d] = offset

	return nil
}

// Build finalizes the table. The builder must not be used afterwards.
func (b *Builder) Build() (*MasterIndexTable, error) {
	m := b.m
	b.m = nil
	if err := m.finish(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	return m, nil
}
