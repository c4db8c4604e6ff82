package entity

import (
	"fmt"

	"github.com/arloliu/mpegg/box"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/format"
	"github.com/arloliu/mpegg/internal/bitio"
	"github.com/arloliu/mpegg/payload"
)

const streamHeaderSize = 6

// DescriptorStreamHeader is the dshd box of a descriptor stream.
type DescriptorStreamHeader struct {
	Descriptor format.DescriptorID
	Class      format.DataClass
	NumBlocks  uint32
}

var (
	_ box.Entity   = (*DescriptorStreamHeader)(nil)
	_ box.Readable = (*DescriptorStreamHeader)(nil)
)

func (h *DescriptorStreamHeader) Key() box.Key { return box.KeyDescriptorStreamHeader }

func (h *DescriptorStreamHeader) Size() (uint64, bool) { return streamHeaderSize, true }

func (h *DescriptorStreamHeader) Write(w *bitio.Writer) error {
	if !h.Descriptor.Valid() || !h.Class.Valid() {
		return fmt.Errorf("%w: stream of %s class %s", errs.ErrUnknownVariant, h.Descriptor, h.Class)
	}

	w.WriteBool(false) // reserved
	w.WriteBits(uint64(h.Descriptor), 7)
	w.WriteBits(uint64(h.Class), 4)
	w.WriteU32(h.NumBlocks)
	w.Align()

	return w.Err()
}

func (h *DescriptorStreamHeader) ReadContent(r *bitio.Reader, _ uint64) error {
	r.ReadBool() // reserved
	h.Descriptor = format.DescriptorID(r.ReadBits(7)) //nolint:gosec
	h.Class = format.DataClass(r.ReadBits(4))        //nolint:gosec
	h.NumBlocks = r.ReadU32()
	r.Align()
	if err := r.Err(); err != nil {
		return err
	}
	if !h.Descriptor.Valid() || !h.Class.Valid() {
		return fmt.Errorf("%w: stream of descriptor %d class %d", errs.ErrUnknownVariant, h.Descriptor, h.Class)
	}

	return nil
}

// DescriptorStream is a dscn box: the blocks of one descriptor for every
// access unit of one class, concatenated in access unit order.
type DescriptorStream struct {
	Header  *DescriptorStreamHeader
	Payload payload.Payload

	offset uint64 // payload start, relative to the dataset content
	cfg    *DecoderConfig
}

var (
	_ box.Entity   = (*DescriptorStream)(nil)
	_ box.Readable = (*DescriptorStream)(nil)
)

// Offset returns the position of the first payload byte relative to the
// content of the enclosing dataset, the origin of master index table offsets.
func (s *DescriptorStream) Offset() uint64 {
	return s.offset
}

// PayloadRange returns the bytes in [start, end), both given relative to
// the dataset content.
func (s *DescriptorStream) PayloadRange(start, end uint64) (payload.Payload, error) {
	limit := s.offset + uint64(s.Payload.Len()) //nolint:gosec
	if start < s.offset || end < start || end > limit {
		return payload.Payload{}, fmt.Errorf("%w: range [%d,%d) outside %s/%s stream [%d,%d)",
			errs.ErrStructural, start, end, s.Header.Class, s.Header.Descriptor, s.offset, limit)
	}

	return s.Payload.Slice(int64(start-s.offset), int64(end-start)) //nolint:gosec
}

// PayloadFrom returns the bytes from start to the end of the stream.
func (s *DescriptorStream) PayloadFrom(start uint64) (payload.Payload, error) {
	return s.PayloadRange(start, s.offset+uint64(s.Payload.Len())) //nolint:gosec
}

func (s *DescriptorStream) Key() box.Key { return box.KeyDescriptorStream }

func (s *DescriptorStream) Size() (uint64, bool) {
	return box.HeaderSize + streamHeaderSize + uint64(s.Payload.Len()), true //nolint:gosec
}

func (s *DescriptorStream) Write(w *bitio.Writer) error {
	if s.Header == nil {
		return missing(box.KeyDescriptorStream, box.KeyDescriptorStreamHeader)
	}
	if err := box.WriteWithHeader(w, s.Header); err != nil {
		return err
	}
	w.WritePayload(s.Payload)

	return w.Err()
}

func (s *DescriptorStream) ReadContent(r *bitio.Reader, _ uint64) error {
	cfg := s.cfg
	if cfg == nil {
		cfg = defaultDecoderConfig
	}

	h, err := box.Expect(r, box.KeyDescriptorStreamHeader)
	if err != nil {
		return err
	}
	s.Header = &DescriptorStreamHeader{}
	if err := cfg.readChild(r, h, s.Header); err != nil {
		return err
	}
	s.Payload = r.Rest()

	return r.Err()
}
