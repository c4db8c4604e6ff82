package entity

import (
	"fmt"
	"slices"

	"github.com/arloliu/mpegg/box"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/internal/bitio"
)

// Child order inside a dataset group.
const (
	groupStageHeader = iota
	groupStageReferences
	groupStageReferenceMetadata
	groupStageLabels
	groupStageDatasets
	groupStageMetadata
	groupStageProtection
)

// DatasetGroupHeader is the dghd box.
type DatasetGroupHeader struct {
	GroupID    uint8
	Version    uint8
	DatasetIDs []uint16
}

var (
	_ box.Entity   = (*DatasetGroupHeader)(nil)
	_ box.Readable = (*DatasetGroupHeader)(nil)
)

func (h *DatasetGroupHeader) Key() box.Key { return box.KeyDatasetGroupHeader }

func (h *DatasetGroupHeader) Size() (uint64, bool) {
	return 2 + 2*uint64(len(h.DatasetIDs)), true
}

func (h *DatasetGroupHeader) Write(w *bitio.Writer) error {
	w.WriteU8(h.GroupID)
	w.WriteU8(h.Version)
	for _, id := range h.DatasetIDs {
		w.WriteU16(id)
	}

	return w.Err()
}

func (h *DatasetGroupHeader) ReadContent(r *bitio.Reader, contentSize uint64) error {
	if contentSize < 2 || contentSize%2 != 0 {
		return fmt.Errorf("%w: dataset group header of %d bytes", errs.ErrStructural, contentSize)
	}

	h.GroupID = r.ReadU8()
	h.Version = r.ReadU8()
	h.DatasetIDs = nil
	for range (contentSize - 2) / 2 {
		h.DatasetIDs = append(h.DatasetIDs, r.ReadU16())
	}

	return r.Err()
}

// DatasetGroup is a dgcn box.
type DatasetGroup struct {
	Header            *DatasetGroupHeader
	References        []*Reference
	ReferenceMetadata *ReferenceMetadata
	Labels            *LabelList
	Datasets          []*Dataset
	Metadata          *box.Raw
	Protection        *box.Raw // written empty when nil

	cfg *DecoderConfig
}

var (
	_ box.Entity   = (*DatasetGroup)(nil)
	_ box.Readable = (*DatasetGroup)(nil)
)

func newDatasetGroup(cfg *DecoderConfig) *DatasetGroup {
	return &DatasetGroup{cfg: cfg}
}

// NewDatasetGroup returns a group listing the ids of datasets in its header.
func NewDatasetGroup(groupID uint8, datasets ...*Dataset) *DatasetGroup {
	h := &DatasetGroupHeader{GroupID: groupID}
	for _, d := range datasets {
		h.DatasetIDs = append(h.DatasetIDs, d.Header.DatasetID)
	}

	return &DatasetGroup{
		Header:     h,
		Datasets:   datasets,
		Protection: box.NewRaw(box.KeyDatasetGroupProtection, []byte{}),
	}
}

// Dataset returns the dataset with the given id.
func (g *DatasetGroup) Dataset(id uint16) (*Dataset, bool) {
	for _, d := range g.Datasets {
		if d.Header != nil && d.Header.DatasetID == id {
			return d, true
		}
	}

	return nil, false
}

// Reference returns the reference with the given id.
func (g *DatasetGroup) Reference(id uint8) (*Reference, bool) {
	for _, ref := range g.References {
		if ref.ReferenceID == id {
			return ref, true
		}
	}

	return nil, false
}

func (g *DatasetGroup) protection() *box.Raw {
	if g.Protection == nil {
		return box.NewRaw(box.KeyDatasetGroupProtection, []byte{})
	}

	return g.Protection
}

func (g *DatasetGroup) children() []box.Entity {
	out := []box.Entity{g.Header}
	for _, ref := range g.References {
		out = append(out, ref)
	}
	if g.ReferenceMetadata != nil {
		out = append(out, g.ReferenceMetadata)
	}
	if g.Labels != nil {
		out = append(out, g.Labels)
	}
	for _, d := range g.Datasets {
		out = append(out, d)
	}
	if g.Metadata != nil {
		out = append(out, g.Metadata)
	}

	return append(out, g.protection())
}

func (g *DatasetGroup) Key() box.Key { return box.KeyDatasetGroup }

func (g *DatasetGroup) Size() (uint64, bool) {
	if g.Header == nil {
		return 0, false
	}

	n, err := sumLengths(g.children()...)
	if err != nil {
		return 0, false
	}

	return n, true
}

func (g *DatasetGroup) Write(w *bitio.Writer) error {
	if g.Header == nil {
		return missing(box.KeyDatasetGroup, box.KeyDatasetGroupHeader)
	}
	if len(g.Datasets) == 0 {
		return missing(box.KeyDatasetGroup, box.KeyDataset)
	}
	for _, d := range g.Datasets {
		if d.Header != nil && !slices.Contains(g.Header.DatasetIDs, d.Header.DatasetID) {
			return fmt.Errorf("%w: dataset %d is not listed in group %d",
				errs.ErrInvalidValue, d.Header.DatasetID, g.Header.GroupID)
		}
	}

	for _, e := range g.children() {
		if err := box.WriteWithHeader(w, e); err != nil {
			return err
		}
	}

	return w.Err()
}

func (g *DatasetGroup) ReadContent(r *bitio.Reader, _ uint64) error {
	cfg := g.cfg
	if cfg == nil {
		cfg = defaultDecoderConfig
	}

	h, err := box.Expect(r, box.KeyDatasetGroupHeader)
	if err != nil {
		return err
	}
	g.Header = &DatasetGroupHeader{}
	if err := cfg.readChild(r, h, g.Header); err != nil {
		return err
	}

	g.References, g.ReferenceMetadata, g.Labels, g.Datasets = nil, nil, nil, nil
	g.Metadata, g.Protection = nil, nil

	gr := grammar{container: box.KeyDatasetGroup, stage: groupStageHeader}
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
		case box.KeyReference:
			err = gr.advance(h.Key, groupStageReferences, true)
			ref := &Reference{}
			g.References = append(g.References, ref)
			child = ref
		case box.KeyReferenceMetadata:
			err = gr.advance(h.Key, groupStageReferenceMetadata, false)
			g.ReferenceMetadata = &ReferenceMetadata{}
			child = g.ReferenceMetadata
		case box.KeyLabelList:
			err = gr.advance(h.Key, groupStageLabels, false)
			g.Labels = &LabelList{}
			child = g.Labels
		case box.KeyDataset:
			err = gr.advance(h.Key, groupStageDatasets, true)
			d := newDataset(cfg)
			g.Datasets = append(g.Datasets, d)
			child = d
		case box.KeyDatasetGroupMetadata:
			err = gr.advance(h.Key, groupStageMetadata, false)
			g.Metadata = &box.Raw{BoxKey: h.Key}
			child = g.Metadata
		case box.KeyDatasetGroupProtection:
			err = gr.advance(h.Key, groupStageProtection, false)
			g.Protection = &box.Raw{BoxKey: h.Key}
			child = g.Protection
		default:
			return unexpected(box.KeyDatasetGroup, h)
		}
		if err != nil {
			return err
		}
		if err := cfg.readChild(r, h, child); err != nil {
			return err
		}
	}

	if len(g.Datasets) == 0 {
		return missing(box.KeyDatasetGroup, box.KeyDataset)
	}
	if g.Protection == nil {
		return missing(box.KeyDatasetGroup, box.KeyDatasetGroupProtection)
	}

	return nil
}
