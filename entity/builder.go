package entity

import (
	"cmp"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/arloliu/mpegg/box"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/format"
	"github.com/arloliu/mpegg/index"
	"github.com/arloliu/mpegg/internal/options"
	"github.com/arloliu/mpegg/payload"
	"github.com/arloliu/mpegg/signature"
)

type pendingUnit struct {
	unmapped bool
	seq      index.SequenceIndex
	class    index.ClassIndex // position in the header class table, MIT datasets only
	au       uint32           // position among the units of (seq, class), or the unmapped index

	header *AccessUnitHeader
	blocks []Block
	sigs   []signature.Signature

	// Captured before positional fields are cleared from MIT headers.
	start, end       uint64
	extStart, extEnd uint64
}

// DatasetBuilder assembles a dataset from access units and lays out its
// boxes, descriptor streams and master index table.
//
// The header given to NewDatasetBuilder is a template: the builder fills in
// per-sequence block counts, the number of unmapped access units and, for
// columnar datasets, the ordered blocks flag.
type DatasetBuilder struct {
	header *DatasetHeader
	cfg    *BuilderConfig

	params   []*ParameterSet
	units    []*pendingUnit
	counts   map[[2]int]uint32 // units per (sequence, class)
	unmapped uint32

	metadata   *box.Raw
	protection *box.Raw
}

// NewDatasetBuilder returns a builder for datasets shaped by h.
func NewDatasetBuilder(h *DatasetHeader, opts ...BuilderOption) (*DatasetBuilder, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: nil dataset header", errs.ErrInvalidValue)
	}

	cfg := &BuilderConfig{logger: slog.New(slog.DiscardHandler), dropEmpty: true}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	tmpl := *h
	tmpl.Sequences = slices.Clone(h.Sequences)
	tmpl.Classes = slices.Clone(h.Classes)

	return &DatasetBuilder{
		header: &tmpl,
		cfg:    cfg,
		counts: make(map[[2]int]uint32),
	}, nil
}

// AddParameterSet appends a parameter set. Ids must be unique.
func (b *DatasetBuilder) AddParameterSet(ps *ParameterSet) error {
	for _, p := range b.params {
		if p.ID == ps.ID {
			return fmt.Errorf("%w: parameter set %d added twice", errs.ErrInvalidValue, ps.ID)
		}
	}
	b.params = append(b.params, ps)

	return nil
}

// SetMetadata attaches a dtmd box.
func (b *DatasetBuilder) SetMetadata(data []byte) {
	b.metadata = box.NewRaw(box.KeyDatasetMetadata, data)
}

// SetProtection attaches a dtpr box.
func (b *DatasetBuilder) SetProtection(data []byte) {
	b.protection = box.NewRaw(box.KeyDatasetProtection, data)
}

// AddAccessUnit appends an aligned access unit of reference sequence seq.
// Its position within (seq, class) is the number of units added before it
// for the same pair. The positions in h (Start, End and the extended range)
// go to the master index table when the dataset has one.
func (b *DatasetBuilder) AddAccessUnit(seq index.SequenceIndex, h *AccessUnitHeader, blocks ...Block) error {
	if !h.Class.IsAligned() {
		return fmt.Errorf("%w: class %s is not aligned", errs.ErrInvalidValue, h.Class)
	}
	if int(seq) >= len(b.header.Sequences) {
		return fmt.Errorf("%w: sequence index %d of %d", errs.ErrSequenceNotAvailable, seq, len(b.header.Sequences))
	}

	u := &pendingUnit{seq: seq, header: h}
	key := [2]int{int(seq), int(h.Class)}
	if b.header.MIT {
		ci, err := b.header.ClassIndex(h.Class)
		if err != nil {
			return err
		}
		u.class = ci
	}
	if err := b.checkBlocks(h.Class, blocks); err != nil {
		return err
	}
	u.au = b.counts[key]
	b.counts[key]++
	u.blocks = blocks
	b.units = append(b.units, u)

	return nil
}

// AddUnmapped appends an unmapped access unit carrying the cluster
// signatures sigs. Datasets without an index store each signature in the
// access unit header, so every signature must pack into a single integer.
func (b *DatasetBuilder) AddUnmapped(h *AccessUnitHeader, sigs []signature.Signature, blocks ...Block) error {
	if h.Class != format.ClassU {
		return fmt.Errorf("%w: class %s is not unmapped", errs.ErrInvalidValue, h.Class)
	}
	if b.header.MIT {
		if _, err := b.header.ClassIndex(format.ClassU); err != nil {
			return err
		}
	}
	if err := b.checkBlocks(h.Class, blocks); err != nil {
		return err
	}

	b.units = append(b.units, &pendingUnit{
		unmapped: true,
		au:       b.unmapped,
		header:   h,
		blocks:   blocks,
		sigs:     sigs,
	})
	b.unmapped++

	return nil
}

func (b *DatasetBuilder) checkBlocks(class format.DataClass, blocks []Block) error {
	seen := make(map[format.DescriptorID]bool, len(blocks))
	for _, blk := range blocks {
		if seen[blk.Descriptor] {
			return fmt.Errorf("%w: two %s blocks in one access unit", errs.ErrInvalidValue, blk.Descriptor)
		}
		seen[blk.Descriptor] = true
		if !b.header.BlockHeader {
			if _, err := b.header.DescriptorIndex(class, blk.Descriptor); err != nil {
				return err
			}
		}
	}

	return nil
}

func (b *DatasetBuilder) finalHeader() *DatasetHeader {
	h := *b.header
	h.Sequences = slices.Clone(b.header.Sequences)
	for s := range h.Sequences {
		var most uint32
		for k, n := range b.counts {
			if k[0] == s {
				most = max(most, n)
			}
		}
		h.Sequences[s].Blocks = most
	}
	h.NumUnmappedAUs = b.unmapped
	if !h.BlockHeader {
		h.OrderedBlocks = true
	}

	return &h
}

// emissionOrder sorts units sequence-major, then by class, then by position.
// Unmapped units follow the aligned ones. Datasets without an index keep
// insertion order.
func (b *DatasetBuilder) emissionOrder(mit bool) []*pendingUnit {
	units := slices.Clone(b.units)
	if !mit {
		return units
	}
	slices.SortStableFunc(units, func(x, y *pendingUnit) int {
		if x.unmapped != y.unmapped {
			if x.unmapped {
				return 1
			}
			return -1
		}

		return cmp.Or(
			cmp.Compare(x.seq, y.seq),
			cmp.Compare(x.class, y.class),
			cmp.Compare(x.au, y.au),
		)
	})

	return units
}

// Build lays out the dataset. The builder may keep being used afterwards;
// every Build produces an independent dataset.
func (b *DatasetBuilder) Build() (*Dataset, error) {
	h := b.finalHeader()
	if err := h.Validate(); err != nil {
		return nil, err
	}

	units := b.emissionOrder(h.MIT)
	d := &Dataset{
		Header:        h,
		ParameterSets: slices.Clone(b.params),
		Metadata:      b.metadata,
		Protection:    b.protection,
		cfg:           defaultDecoderConfig,
	}

	aus := make([]*AccessUnit, len(units))
	for i, u := range units {
		au, err := b.accessUnit(h, u)
		if err != nil {
			return nil, err
		}
		aus[i] = au
	}
	d.AccessUnits = aus

	var (
		streams   []*DescriptorStream
		streamRel [][]int64 // per stream, relative block start per unit or -1
	)
	if !h.BlockHeader {
		var err error
		if streams, streamRel, err = b.streams(h, units); err != nil {
			return nil, err
		}
		d.Streams = streams
	}

	if h.MIT {
		// Field widths are fixed, so the table size does not depend on the
		// offsets it holds: measure it with a zero base first.
		sized, err := b.index(h, units, aus, streams, streamRel, 0)
		if err != nil {
			return nil, err
		}
		base, err := sumLengths(h, sized)
		if err != nil {
			return nil, err
		}
		for _, ps := range d.ParameterSets {
			n, err := boxLength(ps)
			if err != nil {
				return nil, err
			}
			base += n
		}
		if d.MIT, err = b.index(h, units, aus, streams, streamRel, base); err != nil {
			return nil, err
		}
	}

	if err := d.checkShape(); err != nil {
		return nil, err
	}
	if err := d.reindex(); err != nil {
		return nil, err
	}

	b.cfg.logger.Debug("built dataset",
		"dataset", h.DatasetID,
		"access_units", len(aus),
		"streams", len(streams),
		"unmapped", h.NumUnmappedAUs)

	return d, nil
}

// accessUnit copies the header of u for the final dataset and places its
// blocks.
func (b *DatasetBuilder) accessUnit(h *DatasetHeader, u *pendingUnit) (*AccessUnit, error) {
	ah := *u.header
	ah.dh = h
	u.start, u.end = ah.Start, ah.End
	u.extStart, u.extEnd = ah.ExtStart, ah.ExtEnd

	switch {
	case h.MIT:
		ah.SequenceID, ah.Start, ah.End, ah.ExtStart, ah.ExtEnd = 0, 0, 0, 0, 0
		ah.Signatures = nil
	case u.unmapped:
		if ah.Signatures == nil && h.MultipleSignatureBase != 0 {
			p := h.SignatureParams()
			for _, sig := range u.sigs {
				packed, err := p.Pack(sig)
				if err != nil {
					return nil, err
				}
				if len(packed) != 1 {
					return nil, fmt.Errorf("%w: signature of %d symbols does not fit one %d bit integer",
						errs.ErrInvalidValue, len(sig), p.IntegerBits)
				}
				ah.Signatures = append(ah.Signatures, packed[0])
			}
		}
	default:
		ah.SequenceID = h.Sequences[u.seq].ID
		if !h.MultipleAlignment {
			ah.ExtStart, ah.ExtEnd = 0, 0
		}
	}

	au := &AccessUnit{Header: &ah, dh: h}
	present := 0
	for _, blk := range u.blocks {
		if blk.Payload.Len() == 0 && (b.cfg.dropEmpty || !h.BlockHeader) {
			continue
		}
		present++
		if h.BlockHeader {
			au.Blocks = append(au.Blocks, blk)
		}
	}
	if present > math.MaxUint8 {
		return nil, fmt.Errorf("%w: access unit %d has %d blocks", errs.ErrInvalidValue, ah.ID, present)
	}
	ah.NumBlocks = uint8(present) //nolint:gosec

	return au, nil
}

// streams concatenates the blocks of every declared (class, descriptor)
// pair in emission order.
func (b *DatasetBuilder) streams(h *DatasetHeader, units []*pendingUnit) ([]*DescriptorStream, [][]int64, error) {
	var (
		out []*DescriptorStream
		rel [][]int64
	)
	for _, c := range h.Classes {
		for _, desc := range c.Descriptors {
			var (
				data   []byte
				blocks uint32
			)
			starts := make([]int64, len(units))
			for i, u := range units {
				starts[i] = -1
				if u.header.Class != c.Class {
					continue
				}
				for _, blk := range u.blocks {
					if blk.Descriptor != desc || blk.Payload.Len() == 0 {
						continue
					}
					raw, err := blk.Payload.Bytes()
					if err != nil {
						return nil, nil, fmt.Errorf("%s/%s block of access unit %d: %w", c.Class, desc, u.header.ID, err)
					}
					starts[i] = int64(len(data))
					data = append(data, raw...)
					blocks++
				}
			}

			out = append(out, &DescriptorStream{
				Header:  &DescriptorStreamHeader{Descriptor: desc, Class: c.Class, NumBlocks: blocks},
				Payload: payload.FromBytes(data),
			})
			rel = append(rel, starts)
		}
	}

	return out, rel, nil
}

// index fills the master index table with offsets relative to the dataset
// content, where base is the offset of the first access unit.
func (b *DatasetBuilder) index(h *DatasetHeader, units []*pendingUnit, aus []*AccessUnit,
	streams []*DescriptorStream, streamRel [][]int64, base uint64,
) (*index.MasterIndexTable, error) {
	ib, err := index.NewBuilder(h.IndexLayout())
	if err != nil {
		return nil, err
	}

	auOff := make([]uint64, len(aus))
	off := base
	for i, au := range aus {
		auOff[i] = off
		n, err := boxLength(au)
		if err != nil {
			return nil, fmt.Errorf("access unit %d: %w", au.Header.ID, err)
		}
		off += n
	}
	streamOff := make([]uint64, len(streams))
	for i, s := range streams {
		hl, err := boxLength(s.Header)
		if err != nil {
			return nil, err
		}
		sl, err := boxLength(s)
		if err != nil {
			return nil, err
		}
		streamOff[i] = off + box.HeaderSize + hl
		off += sl
	}

	for i, u := range units {
		ah := aus[i].Header
		if u.unmapped {
			e := index.UnmappedEntry{
				ByteOffset:  auOff[i],
				RefSequence: ah.RefSequence,
				RefStart:    ah.RefStart,
				RefEnd:      ah.RefEnd,
			}
			if h.DatasetType != format.DatasetReference && h.MultipleSignatureBase != 0 {
				e.Signatures = u.sigs
			}
			if err := ib.SetUnmapped(u.au, e); err != nil {
				return nil, err
			}
		} else {
			e := index.AccessUnitEntry{
				ByteOffset:  auOff[i],
				Start:       u.start,
				End:         u.end,
				RefSequence: ah.RefSequence,
				RefStart:    ah.RefStart,
				RefEnd:      ah.RefEnd,
			}
			if h.MultipleAlignment {
				e.ExtStart, e.ExtEnd = u.extStart, u.extEnd
			}
			t := index.Triplet{Seq: u.seq, Class: u.class, AU: u.au}
			if err := ib.SetAccessUnit(t, e); err != nil {
				return nil, err
			}
		}
	}

	if h.BlockHeader {
		return ib.Build()
	}

	si := 0
	for _, c := range h.Classes {
		for di := range c.Descriptors {
			for i, u := range units {
				start := streamRel[si][i]
				if start < 0 {
					continue
				}
				abs := streamOff[si] + uint64(start) //nolint:gosec
				if u.unmapped {
					err = ib.SetUnmappedBlockOffset(u.au, index.DescriptorIndex(di), abs) //nolint:gosec
				} else {
					t := index.Triplet{Seq: u.seq, Class: u.class, AU: u.au}
					err = ib.SetBlockOffset(t, index.DescriptorIndex(di), abs) //nolint:gosec
				}
				if err != nil {
					return nil, err
				}
			}
			si++
		}
	}

	return ib.Build()
}
