// Package payload provides zero-copy byte ranges over a shared arena.
//
// A Payload is a value: an arena plus an (offset, length) window. Slicing a
// payload narrows the window and never copies or mutates shared state, so
// payloads derived from the same arena may be read concurrently.
package payload

import (
	"bytes"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// Payload is a read-only window into an Arena.
type Payload struct {
	arena Arena
	off   int64
	n     int64
}

// New returns a payload covering the whole arena.
func New(a Arena) Payload {
	return Payload{arena: a, n: a.Size()}
}

// FromBytes returns a payload over an in-memory copy-free arena of b.
func FromBytes(b []byte) Payload {
	return New(BytesArena(b))
}

// Len returns the payload length in bytes.
func (p Payload) Len() int64 {
	return p.n
}

// Offset returns the absolute arena offset of the first byte.
func (p Payload) Offset() int64 {
	return p.off
}

// Arena returns the arena the payload points into.
func (p Payload) Arena() Arena {
	return p.arena
}

// Slice returns the sub-range [off, off+n) relative to p.
func (p Payload) Slice(off, n int64) (Payload, error) {
	if off < 0 || n < 0 || off > p.n || n > p.n-off {
		return Payload{}, fmt.Errorf("payload: slice [%d,+%d) out of range [0,%d)", off, n, p.n)
	}

	return Payload{arena: p.arena, off: p.off + off, n: n}, nil
}

// From returns the sub-range from off to the end of p.
func (p Payload) From(off int64) (Payload, error) {
	return p.Slice(off, p.n-off)
}

// Reader returns a fresh, independently positioned reader over the payload.
func (p Payload) Reader() *io.SectionReader {
	if p.arena == nil {
		return io.NewSectionReader(BytesArena(nil), 0, 0)
	}

	return io.NewSectionReader(p.arena, p.off, p.n)
}

// View returns the payload bytes without copying when the arena allows it.
func (p Payload) View() ([]byte, bool) {
	if p.n == 0 {
		return nil, true
	}
	v, ok := p.arena.(viewer)
	if !ok {
		return nil, false
	}

	return v.view(p.off, p.n), true
}

// Bytes returns the payload content. For in-memory arenas the returned slice
// aliases the arena and must not be modified.
func (p Payload) Bytes() ([]byte, error) {
	if b, ok := p.View(); ok {
		return b, nil
	}

	buf := make([]byte, p.n)
	if _, err := p.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("payload: read [%d,+%d): %w", p.off, p.n, err)
	}

	return buf, nil
}

// ReadAt reads len(b) bytes at off, relative to the payload start.
func (p Payload) ReadAt(b []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("payload: negative offset %d", off)
	}
	if off >= p.n {
		return 0, io.EOF
	}

	want := b
	if rem := p.n - off; int64(len(b)) > rem {
		want = b[:rem]
	}

	n, err := p.arena.ReadAt(want, p.off+off)
	if n == len(want) {
		err = nil
	}
	if err == nil && n < len(b) {
		err = io.EOF
	}

	return n, err
}

// WriteTo copies the payload to w.
func (p Payload) WriteTo(w io.Writer) (int64, error) {
	if b, ok := p.View(); ok {
		n, err := w.Write(b)
		return int64(n), err
	}

	return io.Copy(w, p.Reader())
}

// Sum64 returns the xxHash64 digest of the payload content.
func (p Payload) Sum64() (uint64, error) {
	d := xxhash.New()
	if _, err := p.WriteTo(d); err != nil {
		return 0, err
	}

	return d.Sum64(), nil
}

// Equal reports whether both payloads hold the same bytes.
func (p Payload) Equal(other Payload) bool {
	if p.n != other.n {
		return false
	}
	if p.n == 0 {
		return true
	}

	a, err := p.Bytes()
	if err != nil {
		return false
	}
	b, err := other.Bytes()
	if err != nil {
		return false
	}

	return bytes.Equal(a, b)
}

// String implements fmt.Stringer.
func (p Payload) String() string {
	return fmt.Sprintf("payload[%d,+%d)", p.off, p.n)
}
