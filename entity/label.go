package entity

import (
	"fmt"
	"math"
	"strings"

	"github.com/arloliu/mpegg/box"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/format"
	"github.com/arloliu/mpegg/internal/bitio"
	"github.com/arloliu/mpegg/internal/collision"
)

const regionPosBits = 40

// Region is a genomic interval of one reference sequence, restricted to
// some data classes.
type Region struct {
	SequenceID uint16
	Classes    []format.DataClass
	Start      uint64
	End        uint64
}

// LabelDataset lists the regions a label selects in one dataset.
type LabelDataset struct {
	DatasetID uint16
	Regions   []Region
}

// Label is an lbll box naming a set of regions across datasets.
type Label struct {
	ID       string
	Datasets []LabelDataset
}

var (
	_ box.Entity   = (*Label)(nil)
	_ box.Readable = (*Label)(nil)
)

func (l *Label) Key() box.Key { return box.KeyLabel }

func (l *Label) sizeInBits() int64 {
	bits := int64(8*(len(l.ID)+1)) + 16
	for _, d := range l.Datasets {
		bits += 16 + 8
		for _, reg := range d.Regions {
			bits += 16 + 4 + 4*int64(len(reg.Classes)) + 2*regionPosBits
		}
	}

	return bits
}

func (l *Label) Size() (uint64, bool) {
	return uint64((l.sizeInBits() + 7) / 8), true //nolint:gosec
}

func (l *Label) Write(w *bitio.Writer) error {
	if l.ID == "" || strings.IndexByte(l.ID, 0) >= 0 {
		return fmt.Errorf("%w: label id %q", errs.ErrInvalidValue, l.ID)
	}
	if len(l.Datasets) > math.MaxUint16 {
		return fmt.Errorf("%w: label %q spans %d datasets", errs.ErrInvalidValue, l.ID, len(l.Datasets))
	}

	w.WriteString(l.ID)
	w.WriteU16(uint16(len(l.Datasets))) //nolint:gosec
	for _, d := range l.Datasets {
		w.WriteU16(d.DatasetID)
		w.WriteChecked(uint64(len(d.Regions)), 8, "num_regions")
		for _, reg := range d.Regions {
			w.WriteU16(reg.SequenceID)
			w.WriteChecked(uint64(len(reg.Classes)), 4, "num_classes")
			for _, c := range reg.Classes {
				w.WriteChecked(uint64(c), 4, "class_id")
			}
			w.WriteChecked(reg.Start, regionPosBits, "start_pos")
			w.WriteChecked(reg.End, regionPosBits, "end_pos")
		}
	}
	w.Align()

	return w.Err()
}

func (l *Label) ReadContent(r *bitio.Reader, _ uint64) error {
	l.ID = r.ReadString()
	n := int64(r.ReadU16())
	if !r.CheckCount(n, 24) {
		return r.Err()
	}

	l.Datasets = nil
	for range n {
		d := LabelDataset{DatasetID: r.ReadU16()}
		regions := int64(r.ReadU8())
		if !r.CheckCount(regions, 16+4+2*regionPosBits) {
			return r.Err()
		}
		for range regions {
			reg := Region{SequenceID: r.ReadU16()}
			for range r.ReadBits(4) {
				c := format.DataClass(r.ReadBits(4)) //nolint:gosec
				if r.Err() == nil && !c.Valid() {
					return fmt.Errorf("%w: data class %d in label %q", errs.ErrUnknownVariant, c, l.ID)
				}
				reg.Classes = append(reg.Classes, c)
			}
			reg.Start = r.ReadBits(regionPosBits)
			reg.End = r.ReadBits(regionPosBits)
			d.Regions = append(d.Regions, reg)
		}
		l.Datasets = append(l.Datasets, d)
	}
	r.Align()

	return r.Err()
}

// LabelList is the labl box of a dataset group.
type LabelList struct {
	GroupID uint8
	Labels  []*Label

	ids *collision.Tracker
}

var (
	_ box.Entity   = (*LabelList)(nil)
	_ box.Readable = (*LabelList)(nil)
)

// NewLabelList returns a list of labels. Label ids must be unique.
func NewLabelList(groupID uint8, labels ...*Label) (*LabelList, error) {
	ll := &LabelList{GroupID: groupID, Labels: labels}
	if err := ll.track(); err != nil {
		return nil, err
	}

	return ll, nil
}

func (ll *LabelList) track() error {
	ids := collision.NewTracker()
	for _, l := range ll.Labels {
		if _, err := ids.Track(l.ID); err != nil {
			return err
		}
	}
	ll.ids = ids

	return nil
}

// Lookup returns the label with the given id.
func (ll *LabelList) Lookup(id string) (*Label, bool) {
	if ll.ids == nil || ll.ids.Count() != len(ll.Labels) {
		if err := ll.track(); err != nil {
			return nil, false
		}
	}
	pos, ok := ll.ids.Lookup(id)
	if !ok {
		return nil, false
	}

	return ll.Labels[pos], true
}

func (ll *LabelList) Key() box.Key { return box.KeyLabelList }

func (ll *LabelList) Size() (uint64, bool) {
	n := uint64(3)
	for _, l := range ll.Labels {
		ln, err := boxLength(l)
		if err != nil {
			return 0, false
		}
		n += ln
	}

	return n, true
}

func (ll *LabelList) Write(w *bitio.Writer) error {
	if len(ll.Labels) > math.MaxUint16 {
		return fmt.Errorf("%w: %d labels", errs.ErrInvalidValue, len(ll.Labels))
	}

	w.WriteU8(ll.GroupID)
	w.WriteU16(uint16(len(ll.Labels))) //nolint:gosec
	for _, l := range ll.Labels {
		if err := box.WriteWithHeader(w, l); err != nil {
			return err
		}
	}

	return w.Err()
}

func (ll *LabelList) ReadContent(r *bitio.Reader, _ uint64) error {
	ll.GroupID = r.ReadU8()
	n := int64(r.ReadU16())
	if !r.CheckCount(n, 8*box.HeaderSize) {
		return r.Err()
	}

	ll.Labels = nil
	for range n {
		l := &Label{}
		if err := box.Read(r, l); err != nil {
			return err
		}
		ll.Labels = append(ll.Labels, l)
	}

	return ll.track()
}
