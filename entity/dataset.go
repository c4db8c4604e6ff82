package entity

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/mpegg/box"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/format"
	"github.com/arloliu/mpegg/index"
	"github.com/arloliu/mpegg/internal/bitio"
	"github.com/arloliu/mpegg/payload"
	"github.com/arloliu/mpegg/transform"
)

// Child order inside a dataset.
const (
	datasetStageHeader = iota
	datasetStageParameters
	datasetStageIndex
	datasetStageAccessUnits
	datasetStageStreams
	datasetStageMetadata
	datasetStageProtection
)

type streamKey struct {
	class format.DataClass
	desc  format.DescriptorID
}

// Dataset is a dtcn box.
//
// A parsed or built dataset is read-only; its lookup methods may be called
// from several goroutines.
type Dataset struct {
	Header        *DatasetHeader
	ParameterSets []*ParameterSet
	MIT           *index.MasterIndexTable
	AccessUnits   []*AccessUnit
	Streams       []*DescriptorStream
	Metadata      *box.Raw
	Protection    *box.Raw

	cfg        *DecoderConfig
	auByOffset map[uint64]*AccessUnit
	streams    map[streamKey]*DescriptorStream
	params     map[uint8]*ParameterSet
}

var (
	_ box.Entity   = (*Dataset)(nil)
	_ box.Readable = (*Dataset)(nil)
)

func newDataset(cfg *DecoderConfig) *Dataset {
	return &Dataset{cfg: cfg}
}

func (d *Dataset) config() *DecoderConfig {
	if d.cfg == nil {
		return defaultDecoderConfig
	}

	return d.cfg
}

func (d *Dataset) Key() box.Key { return box.KeyDataset }

func (d *Dataset) Size() (uint64, bool) {
	if d.Header == nil {
		return 0, false
	}

	// An unencodable child leaves the size unknown; Write reports why.
	n, err := sumLengths(d.children()...)
	if err != nil {
		return 0, false
	}

	return n, true
}

// children lists the child boxes in serialization order.
func (d *Dataset) children() []box.Entity {
	out := []box.Entity{d.Header}
	for _, ps := range d.ParameterSets {
		out = append(out, ps)
	}
	if d.MIT != nil {
		out = append(out, d.MIT)
	}
	for _, au := range d.AccessUnits {
		out = append(out, au.boundTo(d.Header))
	}
	for _, s := range d.Streams {
		out = append(out, s)
	}
	if d.Metadata != nil {
		out = append(out, d.Metadata)
	}
	if d.Protection != nil {
		out = append(out, d.Protection)
	}

	return out
}

func (d *Dataset) Write(w *bitio.Writer) error {
	if d.Header == nil {
		return missing(box.KeyDataset, box.KeyDatasetHeader)
	}
	if err := d.checkShape(); err != nil {
		return err
	}

	for _, e := range d.children() {
		if err := box.WriteWithHeader(w, e); err != nil {
			return err
		}
	}

	return w.Err()
}

// checkShape verifies that the children match the header flags.
func (d *Dataset) checkShape() error {
	h := d.Header
	switch {
	case h.MIT && d.MIT == nil:
		return missing(box.KeyDataset, box.KeyMasterIndexTable)
	case !h.MIT && d.MIT != nil:
		return fmt.Errorf("%w: master index table in dataset %d without the MIT flag", errs.ErrUnexpectedElement, h.DatasetID)
	case h.BlockHeader && len(d.Streams) > 0:
		return fmt.Errorf("%w: descriptor streams in block-header dataset %d", errs.ErrUnexpectedElement, h.DatasetID)
	case h.BlockHeader && len(d.AccessUnits) == 0:
		return missing(box.KeyDataset, box.KeyAccessUnit)
	case !h.BlockHeader && len(d.Streams) == 0:
		return missing(box.KeyDataset, box.KeyDescriptorStream)
	}

	return nil
}

func (d *Dataset) ReadContent(r *bitio.Reader, _ uint64) error {
	cfg := d.config()

	h, err := box.Expect(r, box.KeyDatasetHeader)
	if err != nil {
		return err
	}
	d.Header = &DatasetHeader{}
	if err := cfg.readChild(r, h, d.Header); err != nil {
		return err
	}

	d.ParameterSets, d.MIT, d.AccessUnits, d.Streams = nil, nil, nil, nil
	d.Metadata, d.Protection = nil, nil

	g := grammar{container: box.KeyDataset, stage: datasetStageHeader}
	for {
		h, ok, err := nextHeader(r)
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		var child box.Readable
		switch h.Key {
		case box.KeyParameterSet:
			err = g.advance(h.Key, datasetStageParameters, true)
			ps := &ParameterSet{}
			d.ParameterSets = append(d.ParameterSets, ps)
			child = ps
		case box.KeyMasterIndexTable:
			if !d.Header.MIT {
				return unexpected(box.KeyDataset, h)
			}
			err = g.advance(h.Key, datasetStageIndex, false)
			d.MIT = index.New(d.Header.IndexLayout())
			child = d.MIT
		case box.KeyAccessUnit:
			err = g.advance(h.Key, datasetStageAccessUnits, true)
			au := newAccessUnit(d.Header, cfg)
			d.AccessUnits = append(d.AccessUnits, au)
			child = au
		case box.KeyDescriptorStream:
			if d.Header.BlockHeader {
				return unexpected(box.KeyDataset, h)
			}
			err = g.advance(h.Key, datasetStageStreams, true)
			s := &DescriptorStream{cfg: cfg}
			d.Streams = append(d.Streams, s)
			child = s
		case box.KeyDatasetMetadata:
			err = g.advance(h.Key, datasetStageMetadata, false)
			d.Metadata = &box.Raw{BoxKey: h.Key}
			child = d.Metadata
		case box.KeyDatasetProtection:
			err = g.advance(h.Key, datasetStageProtection, false)
			d.Protection = &box.Raw{BoxKey: h.Key}
			child = d.Protection
		default:
			return unexpected(box.KeyDataset, h)
		}
		if err != nil {
			return err
		}
		if err := cfg.readChild(r, h, child); err != nil {
			return err
		}
	}

	if err := d.checkShape(); err != nil {
		return err
	}
	if err := d.reindex(); err != nil {
		return err
	}
	if cfg.strict && d.Header.OrderedBlocks && !d.MIT.BlocksOrdered() {
		return fmt.Errorf("%w: dataset %d declares ordered blocks but its index is not ordered",
			errs.ErrStructural, d.Header.DatasetID)
	}

	if d.MIT != nil {
		cfg.logger.Debug("parsed master index table",
			"dataset", d.Header.DatasetID,
			"sequences", len(d.Header.Sequences),
			"classes", len(d.Header.Classes),
			"unmapped", d.MIT.NumUnmapped())
	}

	return nil
}

// reindex rebuilds the lookup maps. Offsets are recomputed from the child
// sizes, relative to the first content byte of the dataset.
func (d *Dataset) reindex() error {
	d.params = make(map[uint8]*ParameterSet, len(d.ParameterSets))
	d.auByOffset = make(map[uint64]*AccessUnit, len(d.AccessUnits))
	d.streams = make(map[streamKey]*DescriptorStream, len(d.Streams))

	off, err := boxLength(d.Header)
	if err != nil {
		return err
	}
	for _, ps := range d.ParameterSets {
		if _, dup := d.params[ps.ID]; dup {
			return fmt.Errorf("%w: parameter set %d declared twice", errs.ErrStructural, ps.ID)
		}
		d.params[ps.ID] = ps
		n, err := boxLength(ps)
		if err != nil {
			return err
		}
		off += n
	}
	if d.MIT != nil {
		n, err := boxLength(d.MIT)
		if err != nil {
			return err
		}
		off += n
	}
	for _, au := range d.AccessUnits {
		au.dh = d.Header
		d.auByOffset[off] = au
		n, err := boxLength(au)
		if err != nil {
			return err
		}
		off += n
	}
	for _, s := range d.Streams {
		if s.Header == nil {
			return missing(box.KeyDescriptorStream, box.KeyDescriptorStreamHeader)
		}
		if _, err := d.Header.DescriptorIndex(s.Header.Class, s.Header.Descriptor); err != nil {
			return fmt.Errorf("%w: undeclared stream: %w", errs.ErrStructural, err)
		}
		k := streamKey{class: s.Header.Class, desc: s.Header.Descriptor}
		if _, dup := d.streams[k]; dup {
			return fmt.Errorf("%w: %s/%s stream declared twice", errs.ErrStructural, k.class, k.desc)
		}
		d.streams[k] = s
		hl, err := boxLength(s.Header)
		if err != nil {
			return err
		}
		sl, err := boxLength(s)
		if err != nil {
			return err
		}
		s.offset = off + box.HeaderSize + hl
		off += sl
	}

	return nil
}

// ParameterSet returns the parameter set with the given id.
func (d *Dataset) ParameterSet(id uint8) (*ParameterSet, error) {
	if ps, ok := d.params[id]; ok {
		return ps, nil
	}

	return nil, fmt.Errorf("%w: parameter set %d in dataset %d", errs.ErrMissingElement, id, d.Header.DatasetID)
}

func (d *Dataset) lookupMiss(err error) error {
	d.config().logger.Debug("lookup miss", "dataset", d.Header.DatasetID, "error", err)
	d.config().metrics.ObserveError(err)

	return err
}

// AccessUnitAt returns the access unit at an aligned coordinate. It needs a
// master index table.
func (d *Dataset) AccessUnitAt(t index.Triplet) (*AccessUnit, error) {
	if d.MIT == nil {
		return nil, d.lookupMiss(fmt.Errorf("%w: dataset %d has no index", errs.ErrAccessUnitNotFound, d.Header.DatasetID))
	}
	off, err := d.MIT.AUByteOffset(t)
	if err != nil {
		return nil, d.lookupMiss(err)
	}

	return d.accessUnitAtOffset(off)
}

// UnmappedAccessUnit returns the unmapped access unit with index uau.
func (d *Dataset) UnmappedAccessUnit(uau uint32) (*AccessUnit, error) {
	if d.MIT == nil {
		return nil, d.lookupMiss(fmt.Errorf("%w: dataset %d has no index", errs.ErrAccessUnitNotFound, d.Header.DatasetID))
	}
	off, err := d.MIT.UnmappedByteOffset(uau)
	if err != nil {
		return nil, d.lookupMiss(err)
	}

	return d.accessUnitAtOffset(off)
}

func (d *Dataset) accessUnitAtOffset(off uint64) (*AccessUnit, error) {
	au, ok := d.auByOffset[off]
	if !ok {
		return nil, fmt.Errorf("%w: no access unit at index offset %d", errs.ErrStructural, off)
	}

	return au, nil
}

// DescriptorStream returns the stream of desc for class.
func (d *Dataset) DescriptorStream(class format.DataClass, desc format.DescriptorID) (*DescriptorStream, error) {
	if _, err := d.Header.DescriptorIndex(class, desc); err != nil {
		return nil, d.lookupMiss(err)
	}
	s, ok := d.streams[streamKey{class: class, desc: desc}]
	if !ok {
		return nil, d.lookupMiss(fmt.Errorf("%w: %s/%s has no stream", errs.ErrDescriptorNotFound, class, desc))
	}

	return s, nil
}

// DescriptorPayload returns the bytes of one descriptor block of an aligned
// access unit. In columnar datasets the block ends where the next block of
// the same class and descriptor starts, or at the end of the stream.
func (d *Dataset) DescriptorPayload(t index.Triplet, desc format.DescriptorID) (payload.Payload, error) {
	if d.Header.BlockHeader {
		au, err := d.AccessUnitAt(t)
		if err != nil {
			return payload.Payload{}, err
		}
		b, err := au.Block(desc)
		if err != nil {
			return payload.Payload{}, d.lookupMiss(err)
		}

		return b.Payload, nil
	}

	class, err := d.Header.Class(t.Class)
	if err != nil {
		return payload.Payload{}, d.lookupMiss(err)
	}
	di, err := d.Header.DescriptorIndex(class.Class, desc)
	if err != nil {
		return payload.Payload{}, d.lookupMiss(err)
	}
	start, err := d.MIT.BlockByteOffset(t, di)
	if err != nil {
		return payload.Payload{}, d.lookupMiss(err)
	}
	s, err := d.DescriptorStream(class.Class, desc)
	if err != nil {
		return payload.Payload{}, err
	}
	if end, ok := d.MIT.NextBlockStart(t.Class, di, start); ok {
		return s.PayloadRange(start, end)
	}

	return s.PayloadFrom(start)
}

// UnmappedDescriptorPayload returns the bytes of one descriptor block of an
// unmapped access unit.
func (d *Dataset) UnmappedDescriptorPayload(uau uint32, desc format.DescriptorID) (payload.Payload, error) {
	if d.Header.BlockHeader {
		au, err := d.UnmappedAccessUnit(uau)
		if err != nil {
			return payload.Payload{}, err
		}
		b, err := au.Block(desc)
		if err != nil {
			return payload.Payload{}, d.lookupMiss(err)
		}

		return b.Payload, nil
	}

	if d.MIT == nil {
		return payload.Payload{}, d.lookupMiss(fmt.Errorf("%w: dataset %d has no index", errs.ErrAccessUnitNotFound, d.Header.DatasetID))
	}
	di, err := d.Header.DescriptorIndex(format.ClassU, desc)
	if err != nil {
		return payload.Payload{}, d.lookupMiss(err)
	}
	start, err := d.MIT.UnmappedBlockByteOffset(uau, di)
	if err != nil {
		return payload.Payload{}, d.lookupMiss(err)
	}
	s, err := d.DescriptorStream(format.ClassU, desc)
	if err != nil {
		return payload.Payload{}, err
	}
	if end, ok := d.MIT.UnmappedNextBlockStart(di, start); ok {
		return s.PayloadRange(start, end)
	}

	return s.PayloadFrom(start)
}

// DecodeDescriptor decodes one descriptor block of an aligned access unit
// with the parameter set named by the access unit header. counts gives the
// number of symbols of each subsequence.
func (d *Dataset) DecodeDescriptor(t index.Triplet, desc format.DescriptorID, counts []int,
	opts ...transform.Option,
) ([][]uint64, error) {
	au, err := d.AccessUnitAt(t)
	if err != nil {
		return nil, err
	}
	ps, err := d.ParameterSet(au.Header.ParameterSetID)
	if err != nil {
		return nil, err
	}
	ep, err := ps.EncodingParameters()
	if err != nil {
		return nil, err
	}
	dc, err := ep.Descriptor(desc, au.Header.Class)
	if err != nil {
		return nil, d.lookupMiss(err)
	}

	p, err := d.DescriptorPayload(t, desc)
	if err != nil {
		return nil, err
	}
	data, err := p.Bytes()
	if err != nil {
		return nil, err
	}

	return transform.DecodeDescriptor(dc, ep.Alphabet, desc, data, counts, opts...)
}

// RangeRequest names one descriptor block. Unmapped requests address the
// unmapped access unit UAU; the others address Triplet.
type RangeRequest struct {
	Triplet    index.Triplet
	Unmapped   bool
	UAU        uint32
	Descriptor format.DescriptorID
}

// ReadRanges fetches the bytes of several descriptor blocks with at most
// workers concurrent reads. Results are returned in request order.
func (d *Dataset) ReadRanges(ctx context.Context, reqs []RangeRequest, workers int) ([][]byte, error) {
	if workers < 1 {
		workers = 1
	}

	out := make([][]byte, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, req := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			var (
				p   payload.Payload
				err error
			)
			if req.Unmapped {
				p, err = d.UnmappedDescriptorPayload(req.UAU, req.Descriptor)
			} else {
				p, err = d.DescriptorPayload(req.Triplet, req.Descriptor)
			}
			if err != nil {
				return fmt.Errorf("range %d: %w", i, err)
			}

			b := make([]byte, p.Len())
			if _, err := p.ReadAt(b, 0); err != nil && len(b) > 0 {
				return fmt.Errorf("range %d: %w", i, err)
			}
			out[i] = b

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}
