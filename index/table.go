package index

import (
	"fmt"
	"slices"

	"github.com/arloliu/mpegg/box"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/internal/bitio"
	"github.com/arloliu/mpegg/signature"
)

// AccessUnitEntry is the index row of one aligned access unit.
type AccessUnitEntry struct {
	ByteOffset uint64
	Start      uint64
	End        uint64

	// Reference datasets only.
	RefSequence uint16
	RefStart    uint64
	RefEnd      uint64

	// Multiple alignment datasets only.
	ExtStart uint64
	ExtEnd   uint64

	// Columnar datasets only: one offset per class descriptor.
	BlockOffsets []uint64
}

// UnmappedEntry is the index row of one unmapped access unit.
type UnmappedEntry struct {
	ByteOffset uint64

	// Reference datasets only.
	RefSequence uint16
	RefStart    uint64
	RefEnd      uint64

	// Non-reference datasets with a signature base.
	Signatures []signature.Signature

	// Columnar datasets only: one offset per U descriptor.
	BlockOffsets []uint64
}

// MasterIndexTable maps logical access unit coordinates to byte offsets
// relative to the first content byte of the enclosing dataset.
//
// A table is read-only once built or parsed and safe for concurrent queries.
type MasterIndexTable struct {
	layout   Layout
	entries  [][][]AccessUnitEntry // [seq][class][au]; the U slot stays empty
	unmapped []UnmappedEntry

	starts   [][][]uint64 // sorted present block offsets per [class][descriptor]
	auStarts [][]uint64   // sorted present AU offsets per [class]
	ustarts  [][]uint64   // sorted present unmapped block offsets per descriptor
	byOffset map[uint64]Triplet
}

var (
	_ box.Entity   = (*MasterIndexTable)(nil)
	_ box.Readable = (*MasterIndexTable)(nil)
)

// New returns an empty table to be filled by ReadContent.
func New(layout Layout) *MasterIndexTable {
	return &MasterIndexTable{layout: layout}
}

// Layout returns the table shape.
func (m *MasterIndexTable) Layout() Layout {
	return m.layout
}

// NumAccessUnits returns the number of access units of one sequence and class.
func (m *MasterIndexTable) NumAccessUnits(seq SequenceIndex, class ClassIndex) int {
	if int(seq) >= len(m.entries) || int(class) >= len(m.entries[seq]) {
		return 0
	}

	return len(m.entries[seq][class])
}

// NumUnmapped returns the number of unmapped access units.
func (m *MasterIndexTable) NumUnmapped() int {
	return len(m.unmapped)
}

func (m *MasterIndexTable) Key() box.Key { return box.KeyMasterIndexTable }

// Size returns the exact content size, rounded up to a byte. The size is
// unknown when an unmapped signature list cannot be encoded; Write then
// reports the cause.
func (m *MasterIndexTable) Size() (uint64, bool) {
	bits, err := m.sizeInBits()
	if err != nil {
		return 0, false
	}

	return uint64((bits + 7) / 8), true //nolint:gosec
}

func (m *MasterIndexTable) sizeInBits() (int64, error) {
	l := m.layout
	pos, off := int64(l.PosBits()), int64(l.OffsetBits())

	var bits int64
	m.forEachAligned(func(t Triplet, _ *AccessUnitEntry) {
		bits += off + 2*pos
		if l.IsReference() {
			bits += 16 + 2*pos
		}
		if l.MultipleAlignment {
			bits += 2 * pos
		}
		bits += off * int64(l.descriptors(t.Class))
	})

	for i := range m.unmapped {
		e := &m.unmapped[i]
		bits += off
		if l.IsReference() {
			bits += 16 + 2*pos
		} else {
			if l.SignatureBase != 0 {
				n, err := l.Signature.ListSizeInBits(e.Signatures, l.SignatureBase)
				if err != nil {
					return 0, fmt.Errorf("unmapped access unit %d: %w", i, err)
				}
				bits += n
			}
			bits = (bits + 7) &^ 7
		}
		bits += off * int64(l.UnmappedDescriptors())
	}

	return bits, nil
}

// forEachAligned visits aligned entries in serialization order.
func (m *MasterIndexTable) forEachAligned(fn func(t Triplet, e *AccessUnitEntry)) {
	for s := range m.entries {
		for c := range m.entries[s] {
			for a := range m.entries[s][c] {
				t := Triplet{Seq: SequenceIndex(s), Class: ClassIndex(c), AU: uint32(a)} //nolint:gosec
				fn(t, &m.entries[s][c][a])
			}
		}
	}
}

// Write serializes the table content.
func (m *MasterIndexTable) Write(w *bitio.Writer) error {
	l := m.layout
	pos, off := l.PosBits(), l.OffsetBits()

	m.forEachAligned(func(t Triplet, e *AccessUnitEntry) {
		w.WriteChecked(e.ByteOffset, off, "au_byte_offset")
		w.WriteChecked(e.Start, pos, "au_start_position")
		w.WriteChecked(e.End, pos, "au_end_position")
		if l.IsReference() {
			w.WriteU16(e.RefSequence)
			w.WriteChecked(e.RefStart, pos, "ref_start_position")
			w.WriteChecked(e.RefEnd, pos, "ref_end_position")
		}
		if l.MultipleAlignment {
			w.WriteChecked(e.ExtStart, pos, "extended_au_start_position")
			w.WriteChecked(e.ExtEnd, pos, "extended_au_end_position")
		}
		if n := l.descriptors(t.Class); n > 0 {
			if len(e.BlockOffsets) != n {
				w.Fail(fmt.Errorf("%w: %s has %d block offsets, class declares %d",
					errs.ErrInvalidValue, t, len(e.BlockOffsets), n))
			}
			for _, b := range e.BlockOffsets {
				w.WriteChecked(b, off, "block_byte_offset")
			}
		}
	})

	for i := range m.unmapped {
		e := &m.unmapped[i]
		w.WriteChecked(e.ByteOffset, off, "u_au_byte_offset")
		if l.IsReference() {
			w.WriteU16(e.RefSequence)
			w.WriteChecked(e.RefStart, pos, "u_ref_start_position")
			w.WriteChecked(e.RefEnd, pos, "u_ref_end_position")
		} else {
			if l.SignatureBase != 0 {
				if err := l.Signature.WriteList(w, e.Signatures, l.SignatureBase); err != nil {
					w.Fail(fmt.Errorf("unmapped access unit %d: %w", i, err))
				}
			}
			w.Align()
		}
		if n := l.UnmappedDescriptors(); n > 0 {
			if len(e.BlockOffsets) != n {
				w.Fail(fmt.Errorf("%w: unmapped access unit %d has %d block offsets, class declares %d",
					errs.ErrInvalidValue, i, len(e.BlockOffsets), n))
			}
			for _, b := range e.BlockOffsets {
				w.WriteChecked(b, off, "u_block_byte_offset")
			}
		}
	}
	w.Align()

	return w.Err()
}

// ReadContent parses the table using the layout given to New.
func (m *MasterIndexTable) ReadContent(r *bitio.Reader, _ uint64) error {
	l := m.layout
	if err := l.Validate(); err != nil {
		return err
	}
	pos, off := l.PosBits(), l.OffsetBits()

	m.entries = make([][][]AccessUnitEntry, len(l.SequenceBlocks))
	for s, blocks := range l.SequenceBlocks {
		m.entries[s] = make([][]AccessUnitEntry, len(l.Classes))
		for c, cl := range l.Classes {
			if !cl.Class.IsAligned() {
				continue
			}
			if !r.CheckCount(int64(blocks), int64(off+2*pos)) {
				return r.Err()
			}

			row := make([]AccessUnitEntry, blocks)
			for a := range row {
				e := &row[a]
				e.ByteOffset = r.ReadBits(off)
				e.Start = r.ReadBits(pos)
				e.End = r.ReadBits(pos)
				if l.IsReference() {
					e.RefSequence = r.ReadU16()
					e.RefStart = r.ReadBits(pos)
					e.RefEnd = r.ReadBits(pos)
				}
				if l.MultipleAlignment {
					e.ExtStart = r.ReadBits(pos)
					e.ExtEnd = r.ReadBits(pos)
				}
				if n := l.descriptors(ClassIndex(c)); n > 0 { //nolint:gosec
					e.BlockOffsets = make([]uint64, n)
					for d := range e.BlockOffsets {
						e.BlockOffsets[d] = r.ReadBits(off)
					}
				}
				if err := r.Err(); err != nil {
					return err
				}
			}
			m.entries[s][c] = row
		}
	}

	if l.NumUnmapped > 0 {
		if !r.CheckCount(int64(l.NumUnmapped), int64(off)) {
			return r.Err()
		}
		m.unmapped = make([]UnmappedEntry, l.NumUnmapped)
		for i := range m.unmapped {
			e := &m.unmapped[i]
			e.ByteOffset = r.ReadBits(off)
			if l.IsReference() {
				e.RefSequence = r.ReadU16()
				e.RefStart = r.ReadBits(pos)
				e.RefEnd = r.ReadBits(pos)
			} else {
				if l.SignatureBase != 0 {
					e.Signatures = l.Signature.ReadList(r, l.SignatureBase)
				}
				r.Align()
			}
			if n := l.UnmappedDescriptors(); n > 0 {
				e.BlockOffsets = make([]uint64, n)
				for d := range e.BlockOffsets {
					e.BlockOffsets[d] = r.ReadBits(off)
				}
			}
			if err := r.Err(); err != nil {
				return err
			}
		}
	}
	r.Align()

	return m.finish()
}

// finish validates entries and builds the lookup structures.
func (m *MasterIndexTable) finish() error {
	l := m.layout
	absent := l.NotPresent()

	var err error
	m.forEachAligned(func(t Triplet, e *AccessUnitEntry) {
		if err == nil && e.ByteOffset != absent && e.End < e.Start {
			err = fmt.Errorf("%w: access unit %s ends at %d before its start %d",
				errs.ErrStructural, t, e.End, e.Start)
		}
	})
	if err != nil {
		return err
	}

	m.starts = make([][][]uint64, len(l.Classes))
	m.auStarts = make([][]uint64, len(l.Classes))
	for c := range l.Classes {
		m.starts[c] = make([][]uint64, l.descriptors(ClassIndex(c))) //nolint:gosec
	}
	m.byOffset = make(map[uint64]Triplet)

	m.forEachAligned(func(t Triplet, e *AccessUnitEntry) {
		if e.ByteOffset != absent {
			m.auStarts[t.Class] = append(m.auStarts[t.Class], e.ByteOffset)
			m.byOffset[e.ByteOffset] = t
		}
		for d, b := range e.BlockOffsets {
			if b != absent && d < len(m.starts[t.Class]) {
				m.starts[t.Class][d] = append(m.starts[t.Class][d], b)
			}
		}
	})

	m.ustarts = make([][]uint64, l.UnmappedDescriptors())
	for i := range m.unmapped {
		for d, b := range m.unmapped[i].BlockOffsets {
			if b != absent && d < len(m.ustarts) {
				m.ustarts[d] = append(m.ustarts[d], b)
			}
		}
	}

	for c := range m.starts {
		slices.Sort(m.auStarts[c])
		for d := range m.starts[c] {
			slices.Sort(m.starts[c][d])
		}
	}
	for d := range m.ustarts {
		slices.Sort(m.ustarts[d])
	}

	return nil
}
