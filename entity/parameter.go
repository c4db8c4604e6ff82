package entity

import (
	"bytes"
	"fmt"

	"github.com/arloliu/mpegg/box"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/internal/bitio"
	"github.com/arloliu/mpegg/payload"
	"github.com/arloliu/mpegg/transform"
)

const parameterSetFixedSize = 5

// ParameterSet is a pars box. Data holds the encoding parameter block that
// tells decoders how every descriptor of the dataset was coded.
type ParameterSet struct {
	GroupID   uint8
	DatasetID uint16
	ID        uint8
	ParentID  uint8
	Data      []byte
}

var (
	_ box.Entity   = (*ParameterSet)(nil)
	_ box.Readable = (*ParameterSet)(nil)
)

// NewParameterSet encodes ep into a parameter set.
func NewParameterSet(groupID uint8, datasetID uint16, id, parentID uint8,
	ep *transform.EncodingParameters,
) (*ParameterSet, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	ep.Write(w)
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("parameter set %d: %w", id, err)
	}

	return &ParameterSet{
		GroupID:   groupID,
		DatasetID: datasetID,
		ID:        id,
		ParentID:  parentID,
		Data:      buf.Bytes(),
	}, nil
}

// EncodingParameters decodes the parameter block.
func (p *ParameterSet) EncodingParameters() (*transform.EncodingParameters, error) {
	ep, err := transform.ReadEncodingParameters(bitio.NewReader(payload.FromBytes(p.Data)))
	if err != nil {
		return nil, fmt.Errorf("parameter set %d: %w", p.ID, err)
	}

	return ep, nil
}

func (p *ParameterSet) Key() box.Key { return box.KeyParameterSet }

func (p *ParameterSet) Size() (uint64, bool) {
	return uint64(parameterSetFixedSize + len(p.Data)), true //nolint:gosec
}

func (p *ParameterSet) Write(w *bitio.Writer) error {
	w.WriteU8(p.GroupID)
	w.WriteU16(p.DatasetID)
	w.WriteU8(p.ID)
	w.WriteU8(p.ParentID)
	w.WriteBytes(p.Data)

	return w.Err()
}

func (p *ParameterSet) ReadContent(r *bitio.Reader, contentSize uint64) error {
	if contentSize < parameterSetFixedSize {
		return fmt.Errorf("%w: parameter set of %d bytes", errs.ErrStructural, contentSize)
	}

	p.GroupID = r.ReadU8()
	p.DatasetID = r.ReadU16()
	p.ID = r.ReadU8()
	p.ParentID = r.ReadU8()
	p.Data = r.ReadBytes(int64(contentSize - parameterSetFixedSize)) //nolint:gosec

	return r.Err()
}
