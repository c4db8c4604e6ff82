// Package bitio implements the big-endian, MSB-first bit reader and writer
// every box in the container is serialized with.
//
// Both types carry a sticky error: after the first failure every read
// returns zero values and every write is dropped, and Err reports the cause.
// Callers check Err once after a group of fields instead of after each one.
package bitio

import (
	"fmt"
	"io"

	"github.com/arloliu/mpegg/endian"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/payload"
)

// ErrShortRead is returned when a field extends past the readable range.
var ErrShortRead = fmt.Errorf("%w: %w", errs.ErrStructural, io.ErrUnexpectedEOF)

const windowSize = 64 * 1024

// Limits bounds allocations driven by untrusted length and count fields.
// Zero fields are unlimited.
type Limits struct {
	MaxBytes int64 // largest byte field copied out of the stream
	MaxCount int64 // largest element count of one table
}

// DefaultLimits are generous for real archives and stop absurd declarations early.
var DefaultLimits = Limits{
	MaxBytes: 1 << 30,
	MaxCount: 1 << 26,
}

// Reader reads bit fields from a payload.
//
// A Reader is not safe for concurrent use; parallel readers must each be
// created over their own payload slice.
type Reader struct {
	p payload.Payload

	// window caches arena bytes for arenas without a zero-copy view.
	window    []byte
	windowOff int64
	view      bool

	bytePos  int64  // next byte to load into bitBuf, relative to p
	bitBuf   uint64 // left-aligned pending bits
	bitCount int    // number of valid bits in bitBuf
	limits   Limits
	err      error
}

// NewReader returns a reader positioned at the start of p.
func NewReader(p payload.Payload) *Reader {
	r := &Reader{p: p}
	if b, ok := p.View(); ok {
		r.window = b
		r.view = true
	}

	return r
}

// Sub returns a reader over p that inherits this reader's limits.
func (r *Reader) Sub(p payload.Payload) *Reader {
	sub := NewReader(p)
	sub.limits = r.limits

	return sub
}

// SetLimits installs allocation limits.
func (r *Reader) SetLimits(l Limits) {
	r.limits = l
}

// Limits returns the active allocation limits.
func (r *Reader) Limits() Limits {
	return r.limits
}

// Payload returns the payload the reader was created over.
func (r *Reader) Payload() payload.Payload {
	return r.p
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

// Fail records err as the sticky error unless one is already set.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// BitPosition returns the number of bits consumed.
func (r *Reader) BitPosition() int64 {
	return r.bytePos*8 - int64(r.bitCount)
}

// Consumed returns the number of bytes consumed, counting a partial byte as whole.
func (r *Reader) Consumed() int64 {
	return (r.BitPosition() + 7) / 8
}

// Position returns the absolute arena offset of the next unread byte.
func (r *Reader) Position() int64 {
	return r.p.Offset() + r.Consumed()
}

// Remaining returns the number of whole unread bytes.
func (r *Reader) Remaining() int64 {
	return r.p.Len() - r.Consumed()
}

// RemainingBits returns the number of unread bits.
func (r *Reader) RemainingBits() int64 {
	return r.p.Len()*8 - r.BitPosition()
}

// IsAligned reports whether the cursor sits on a byte boundary.
func (r *Reader) IsAligned() bool {
	return r.bitCount%8 == 0
}

// Align discards the bits left in the current partial byte.
func (r *Reader) Align() {
	drop := r.bitCount % 8
	r.bitBuf <<= drop
	r.bitCount -= drop
}

// ReadBits reads n bits (0..64) as a right-aligned value.
func (r *Reader) ReadBits(n int) uint64 {
	if r.err != nil || n == 0 {
		return 0
	}
	if n < 0 || n > 64 {
		r.Fail(fmt.Errorf("%w: bit width %d", errs.ErrInvalidValue, n))
		return 0
	}

	if n <= r.bitCount {
		result := r.bitBuf >> (64 - n)
		r.bitBuf <<= n
		r.bitCount -= n

		return result
	}

	var result uint64
	for n > 0 {
		if r.bitCount == 0 && !r.fillBuffer() {
			r.Fail(ErrShortRead)
			return 0
		}

		take := min(n, r.bitCount)
		result = (result << take) | (r.bitBuf >> (64 - take))
		r.bitBuf <<= take
		r.bitCount -= take
		n -= take
	}

	return result
}

// ReadBool reads a single bit.
func (r *Reader) ReadBool() bool {
	return r.ReadBits(1) == 1
}

// ReadU8 reads 8 bits.
func (r *Reader) ReadU8() uint8 {
	return uint8(r.ReadBits(8)) //nolint:gosec
}

// ReadU16 reads 16 bits.
func (r *Reader) ReadU16() uint16 {
	return uint16(r.ReadBits(16)) //nolint:gosec
}

// ReadU32 reads 32 bits.
func (r *Reader) ReadU32() uint32 {
	return uint32(r.ReadBits(32)) //nolint:gosec
}

// ReadU64 reads 64 bits.
func (r *Reader) ReadU64() uint64 {
	return r.ReadBits(64)
}

// ReadBytes reads n bytes. The count is checked against the remaining
// data before anything is allocated.
func (r *Reader) ReadBytes(n int64) []byte {
	if r.err != nil {
		return nil
	}
	if r.limits.MaxBytes > 0 && n > r.limits.MaxBytes {
		r.Fail(fmt.Errorf("%w: %d byte field exceeds limit %d", errs.ErrLimitExceeded, n, r.limits.MaxBytes))
		return nil
	}
	if n < 0 || n > r.RemainingBits()/8 {
		r.Fail(fmt.Errorf("%w: %d byte field, %d bits left", errs.ErrLimitExceeded, n, r.RemainingBits()))
		return nil
	}
	if n == 0 {
		return []byte{}
	}

	if !r.IsAligned() {
		out := make([]byte, n)
		for i := range out {
			out[i] = r.ReadU8()
		}

		return out
	}

	sub := r.ReadPayload(n)
	if r.err != nil {
		return nil
	}
	out := make([]byte, n)
	if _, err := sub.ReadAt(out, 0); err != nil {
		r.Fail(fmt.Errorf("%w: %w", ErrShortRead, err))
		return nil
	}

	return out
}

// ReadString reads a NUL-terminated string of at most the remaining bytes.
func (r *Reader) ReadString() string {
	var b []byte
	for r.err == nil {
		if r.RemainingBits() < 8 {
			r.Fail(fmt.Errorf("%w: unterminated string", ErrShortRead))
			return ""
		}
		c := r.ReadU8()
		if c == 0 {
			return string(b)
		}
		b = append(b, c)
	}

	return ""
}

// ReadFixedString reads an n byte ASCII field.
func (r *Reader) ReadFixedString(n int) string {
	return string(r.ReadBytes(int64(n)))
}

// ReadPayload returns the next n bytes as a zero-copy sub-payload and
// advances past them. The cursor must be byte aligned.
func (r *Reader) ReadPayload(n int64) payload.Payload {
	if r.err != nil {
		return payload.Payload{}
	}
	if !r.IsAligned() {
		r.Fail(fmt.Errorf("%w: payload read at unaligned position", errs.ErrStructural))
		return payload.Payload{}
	}

	start := r.Consumed()
	sub, err := r.p.Slice(start, n)
	if err != nil {
		r.Fail(fmt.Errorf("%w: %w", ErrShortRead, err))
		return payload.Payload{}
	}
	r.seek(start + n)

	return sub
}

// Rest returns the unread remainder as a payload and moves to the end.
func (r *Reader) Rest() payload.Payload {
	return r.ReadPayload(r.Remaining())
}

// Skip advances n bytes. The cursor must be byte aligned.
func (r *Reader) Skip(n int64) {
	r.ReadPayload(n)
}

// CheckCount verifies that count items of at least unitBits bits each can
// still be read. It records ErrLimitExceeded otherwise.
func (r *Reader) CheckCount(count int64, unitBits int64) bool {
	if r.err != nil {
		return false
	}
	if r.limits.MaxCount > 0 && count > r.limits.MaxCount {
		r.Fail(fmt.Errorf("%w: count %d exceeds limit %d", errs.ErrLimitExceeded, count, r.limits.MaxCount))
		return false
	}
	if count < 0 || (unitBits > 0 && count > r.RemainingBits()/unitBits) {
		r.Fail(fmt.Errorf("%w: %d items of %d bits, %d bits left",
			errs.ErrLimitExceeded, count, unitBits, r.RemainingBits()))

		return false
	}

	return true
}

func (r *Reader) seek(bytePos int64) {
	r.bytePos = bytePos
	r.bitBuf = 0
	r.bitCount = 0
}

// fillBuffer loads up to 8 bytes into the empty bit buffer.
func (r *Reader) fillBuffer() bool {
	remaining := r.p.Len() - r.bytePos
	if remaining <= 0 {
		return false
	}

	n := int64(8)
	if n > remaining {
		n = remaining
	}

	src, ok := r.bytesAt(r.bytePos, n)
	if !ok {
		return false
	}

	if n == 8 {
		r.bitBuf = endian.Wire().Uint64(src)
	} else {
		r.bitBuf = 0
		for _, c := range src {
			r.bitBuf = (r.bitBuf << 8) | uint64(c)
		}
		r.bitBuf <<= (8 - n) * 8
	}
	r.bytePos += n
	r.bitCount = int(n * 8)

	return true
}

// bytesAt returns n bytes at the payload-relative offset off from the window,
// reloading the window from the arena when needed.
func (r *Reader) bytesAt(off, n int64) ([]byte, bool) {
	if r.view {
		return r.window[off : off+n], true
	}

	if off < r.windowOff || off+n > r.windowOff+int64(len(r.window)) {
		size := min(int64(windowSize), r.p.Len()-off)
		if cap(r.window) < int(size) {
			r.window = make([]byte, size)
		}
		r.window = r.window[:size]
		if _, err := r.p.ReadAt(r.window, off); err != nil {
			r.Fail(fmt.Errorf("%w: %w", ErrShortRead, err))
			r.window = r.window[:0]

			return nil, false
		}
		r.windowOff = off
	}

	rel := off - r.windowOff

	return r.window[rel : rel+n], true
}
