// Package box implements the key plus length record framing shared by every
// structural element of the container.
//
// A box is a 4 byte key, a 64-bit big-endian length that includes the 12 byte
// header, and the content. Entities announce their content size when it is
// cheap to compute; otherwise WriteWithHeader measures the content in a pooled
// scratch buffer before emitting the header.
package box

import (
	"errors"
	"fmt"
	"io"

	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/internal/bitio"
	"github.com/arloliu/mpegg/internal/pool"
)

// HeaderSize is the encoded size of a box header.
const HeaderSize = 12

// Limits bounds allocations driven by declared lengths and counts.
type Limits = bitio.Limits

// DefaultLimits is applied by decoders unless overridden.
var DefaultLimits = bitio.DefaultLimits

// Header is a decoded box header.
type Header struct {
	Key    Key
	Length uint64 // total length including the header
}

// ContentSize returns the number of content bytes following the header.
func (h Header) ContentSize() uint64 {
	return h.Length - HeaderSize
}

func (h Header) String() string {
	return fmt.Sprintf("%s(%d)", h.Key, h.Length)
}

// Entity is a structural element that can serialize its content.
type Entity interface {
	// Key returns the box key.
	Key() Key
	// Size returns the content size in bytes, excluding the header.
	// The boolean is false when the size is not known without encoding.
	Size() (uint64, bool)
	// Write serializes the content, ending byte aligned.
	Write(w *bitio.Writer) error
}

// Readable is an entity that can parse its content.
//
// The reader passed to ReadContent is restricted to exactly contentSize bytes.
type Readable interface {
	ReadContent(r *bitio.Reader, contentSize uint64) error
}

// TotalSize returns the full box length of e, header included.
func TotalSize(e Entity) (uint64, bool) {
	size, ok := e.Size()
	if !ok {
		return 0, false
	}

	return HeaderSize + size, true
}

// ReadHeader reads the next box header.
//
// It returns io.EOF, unwrapped, when the reader is exhausted on a box boundary.
func ReadHeader(r *bitio.Reader) (Header, error) {
	if err := r.Err(); err != nil {
		return Header{}, err
	}
	if r.Remaining() == 0 {
		return Header{}, io.EOF
	}
	if r.Remaining() < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d trailing bytes cannot hold a box header", bitio.ErrShortRead, r.Remaining())
	}

	var h Header
	copy(h.Key[:], r.ReadBytes(4))
	h.Length = r.ReadU64()
	if err := r.Err(); err != nil {
		return Header{}, err
	}

	if !h.Key.Valid() {
		return Header{}, fmt.Errorf("%w: %s", errs.ErrInvalidKey, h.Key)
	}
	if h.Length < HeaderSize {
		return Header{}, fmt.Errorf("%w: box %s declares length %d", errs.ErrSizeMismatch, h.Key, h.Length)
	}
	if h.ContentSize() > uint64(r.Remaining()) { //nolint:gosec
		return Header{}, fmt.Errorf("%w: box %s declares %d content bytes, %d available",
			bitio.ErrShortRead, h.Key, h.ContentSize(), r.Remaining())
	}

	return h, nil
}

// PeekHeader decodes the next header without consuming it.
func PeekHeader(r *bitio.Reader) (Header, error) {
	if err := r.Err(); err != nil {
		return Header{}, err
	}
	if !r.IsAligned() {
		return Header{}, fmt.Errorf("%w: box header at unaligned position", errs.ErrStructural)
	}

	rest, err := r.Payload().From(r.Consumed())
	if err != nil {
		return Header{}, err
	}

	return ReadHeader(r.Sub(rest))
}

// WriteHeader writes h.
func WriteHeader(w *bitio.Writer, h Header) {
	w.WriteBytes(h.Key[:])
	w.WriteU64(h.Length)
}

// Expect reads the next header and requires it to carry key.
func Expect(r *bitio.Reader, key Key) (Header, error) {
	h, err := ReadHeader(r)
	if errors.Is(err, io.EOF) {
		return Header{}, fmt.Errorf("%w: %s at end of stream", errs.ErrMissingElement, key)
	}
	if err != nil {
		return Header{}, err
	}
	if h.Key != key {
		return Header{}, fmt.Errorf("%w: expected %s, found %s", errs.ErrMissingElement, key, h.Key)
	}

	return h, nil
}

// WriteWithHeader writes e as a complete box.
//
// When e knows its size the header is written first and the content streams
// straight into w. Otherwise the content is encoded into a pooled scratch
// buffer, measured, and copied after the header. Both paths fail with
// ErrSizeMismatch if the bytes produced disagree with the header.
func WriteWithHeader(w *bitio.Writer, e Entity) error {
	if !w.IsAligned() {
		return fmt.Errorf("%w: box %s at unaligned position", errs.ErrInvalidValue, e.Key())
	}

	if size, ok := e.Size(); ok && size > 0 {
		WriteHeader(w, Header{Key: e.Key(), Length: HeaderSize + size})
		start := w.BitsWritten()
		if err := e.Write(w); err != nil {
			return fmt.Errorf("write %s: %w", e.Key(), err)
		}
		w.Align()
		if written := uint64(w.BitsWritten()-start) / 8; written != size { //nolint:gosec
			return fmt.Errorf("%w: box %s announced %d bytes, wrote %d", errs.ErrSizeMismatch, e.Key(), size, written)
		}

		return w.Err()
	}

	buf := pool.GetBoxBuffer()
	defer pool.PutBoxBuffer(buf)

	bw := bitio.NewWriter(buf)
	if err := e.Write(bw); err != nil {
		return fmt.Errorf("write %s: %w", e.Key(), err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", e.Key(), err)
	}

	measured := uint64(buf.Len()) //nolint:gosec
	if size, ok := e.Size(); ok && size != measured {
		return fmt.Errorf("%w: box %s announced %d bytes, wrote %d", errs.ErrSizeMismatch, e.Key(), size, measured)
	}

	WriteHeader(w, Header{Key: e.Key(), Length: HeaderSize + measured})
	w.WriteBytes(buf.Bytes())

	return w.Err()
}

// ReadEntity parses the content announced by h into e.
//
// The content is read through a reader restricted to h.ContentSize() bytes.
// Afterwards the consumed byte count, and the size e reports for itself when
// it knows it, must both equal the declared content size.
func ReadEntity(r *bitio.Reader, h Header, e Readable) error {
	content := r.ReadPayload(int64(h.ContentSize())) //nolint:gosec
	if err := r.Err(); err != nil {
		return fmt.Errorf("read %s: %w", h.Key, err)
	}

	sub := r.Sub(content)
	if err := e.ReadContent(sub, h.ContentSize()); err != nil {
		return fmt.Errorf("read %s: %w", h.Key, err)
	}
	if err := sub.Err(); err != nil {
		return fmt.Errorf("read %s: %w", h.Key, err)
	}

	sub.Align()
	if consumed := uint64(sub.Consumed()); consumed != h.ContentSize() { //nolint:gosec
		return fmt.Errorf("%w: box %s declares %d content bytes, parsed %d",
			errs.ErrSizeMismatch, h.Key, h.ContentSize(), consumed)
	}

	if ent, ok := e.(Entity); ok {
		if size, known := ent.Size(); known && size != h.ContentSize() {
			return fmt.Errorf("%w: box %s declares %d content bytes, recomputed %d",
				errs.ErrSizeMismatch, h.Key, h.ContentSize(), size)
		}
	}

	return nil
}

// Read expects a box with e's key and parses it into e.
func Read[E interface {
	Entity
	Readable
}](r *bitio.Reader, e E) error {
	h, err := Expect(r, e.Key())
	if err != nil {
		return err
	}

	return ReadEntity(r, h, e)
}

// Raw is an opaque box whose content is carried as bytes. Metadata,
// protection and information trailers use it.
type Raw struct {
	BoxKey Key
	Data   []byte
}

var (
	_ Entity   = (*Raw)(nil)
	_ Readable = (*Raw)(nil)
)

// NewRaw returns a raw box with key k.
func NewRaw(k Key, data []byte) *Raw {
	return &Raw{BoxKey: k, Data: data}
}

func (b *Raw) Key() Key { return b.BoxKey }

func (b *Raw) Size() (uint64, bool) { return uint64(len(b.Data)), true }

func (b *Raw) Write(w *bitio.Writer) error {
	w.WriteBytes(b.Data)
	return w.Err()
}

func (b *Raw) ReadContent(r *bitio.Reader, contentSize uint64) error {
	b.Data = r.ReadBytes(int64(contentSize)) //nolint:gosec
	return r.Err()
}
