package bitio

import (
	"fmt"
	"io"

	"github.com/arloliu/mpegg/endian"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/payload"
)

const flushThreshold = 32 * 1024

// Writer packs bit fields MSB-first and writes them to an io.Writer.
//
// Output is buffered; callers must Flush before using the sink.
type Writer struct {
	w        io.Writer
	buf      []byte
	bitBuf   uint64 // right-aligned pending bits
	bitCount int
	written  int64 // bytes handed to w or buffered
	err      error
}

// NewWriter returns a writer emitting to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, buf: make([]byte, 0, 4096)}
}

// Err returns the first error encountered, if any.
func (w *Writer) Err() error {
	return w.err
}

// Fail records err as the sticky error unless one is already set.
func (w *Writer) Fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// BitsWritten returns the total number of bits written so far.
func (w *Writer) BitsWritten() int64 {
	return w.written*8 + int64(w.bitCount)
}

// Position returns the number of whole bytes written so far.
func (w *Writer) Position() int64 {
	return w.written + int64(w.bitCount/8)
}

// IsAligned reports whether the cursor sits on a byte boundary.
func (w *Writer) IsAligned() bool {
	return w.bitCount%8 == 0
}

// WriteBits writes the low n bits (0..64) of v.
func (w *Writer) WriteBits(v uint64, n int) {
	if w.err != nil || n == 0 {
		return
	}
	if n < 0 || n > 64 {
		w.Fail(fmt.Errorf("%w: bit width %d", errs.ErrInvalidValue, n))
		return
	}
	if n < 64 {
		v &= (1 << n) - 1
	}

	available := 64 - w.bitCount
	if n <= available {
		if n == 64 {
			w.bitBuf = v
		} else {
			w.bitBuf = (w.bitBuf << n) | v
		}
		w.bitCount += n
		if w.bitCount == 64 {
			w.flushBits()
		}

		return
	}

	high := n - available
	w.bitBuf = (w.bitBuf << available) | (v >> high)
	w.bitCount = 64
	w.flushBits()

	w.bitBuf = v & ((1 << high) - 1)
	w.bitCount = high
}

// WriteChecked writes v in n bits and fails with ErrInvalidValue when v does not fit.
func (w *Writer) WriteChecked(v uint64, n int, field string) {
	if n < 64 && v>>n != 0 {
		w.Fail(fmt.Errorf("%w: %s value %d exceeds %d bits", errs.ErrInvalidValue, field, v, n))
		return
	}
	w.WriteBits(v, n)
}

// WriteBool writes a single bit.
func (w *Writer) WriteBool(b bool) {
	if b {
		w.WriteBits(1, 1)
	} else {
		w.WriteBits(0, 1)
	}
}

// WriteU8 writes 8 bits.
func (w *Writer) WriteU8(v uint8) { w.WriteBits(uint64(v), 8) }

// WriteU16 writes 16 bits.
func (w *Writer) WriteU16(v uint16) { w.WriteBits(uint64(v), 16) }

// WriteU32 writes 32 bits.
func (w *Writer) WriteU32(v uint32) { w.WriteBits(uint64(v), 32) }

// WriteU64 writes 64 bits.
func (w *Writer) WriteU64(v uint64) { w.WriteBits(v, 64) }

// Align pads the current partial byte with zero bits.
func (w *Writer) Align() {
	if pad := w.bitCount % 8; pad != 0 {
		w.WriteBits(0, 8-pad)
	}
}

// WriteBytes writes b, bit-shifted when the cursor is unaligned.
func (w *Writer) WriteBytes(b []byte) {
	if w.err != nil {
		return
	}
	if !w.IsAligned() {
		for _, c := range b {
			w.WriteBits(uint64(c), 8)
		}

		return
	}

	w.drainAligned()
	w.buf = append(w.buf, b...)
	w.written += int64(len(b))
	w.maybeFlush()
}

// WriteString writes s followed by a NUL terminator.
func (w *Writer) WriteString(s string) {
	w.WriteBytes([]byte(s))
	w.WriteU8(0)
}

// WriteFixedString writes s padded or truncated to exactly n bytes.
func (w *Writer) WriteFixedString(s string, n int) {
	b := make([]byte, n)
	copy(b, s)
	w.WriteBytes(b)
}

// WritePayload copies p to the output. The cursor must be byte aligned.
func (w *Writer) WritePayload(p payload.Payload) {
	if w.err != nil {
		return
	}
	if !w.IsAligned() {
		w.Fail(fmt.Errorf("%w: payload write at unaligned position", errs.ErrInvalidValue))
		return
	}
	if b, ok := p.View(); ok {
		w.WriteBytes(b)
		return
	}

	if err := w.flushBuffer(); err != nil {
		return
	}
	n, err := p.WriteTo(w.w)
	w.written += n
	if err != nil {
		w.Fail(err)
	}
}

// Flush pads to a byte boundary and writes all buffered bytes.
func (w *Writer) Flush() error {
	w.Align()
	w.drainAligned()
	if err := w.flushBuffer(); err != nil {
		return err
	}

	return w.err
}

// flushBits moves a full 64-bit buffer into the byte buffer.
func (w *Writer) flushBits() {
	w.buf = endian.Wire().AppendUint64(w.buf, w.bitBuf)
	w.written += 8
	w.bitBuf = 0
	w.bitCount = 0
	w.maybeFlush()
}

// drainAligned moves whole pending bytes into the byte buffer. The bit count
// must be a multiple of 8.
func (w *Writer) drainAligned() {
	for w.bitCount >= 8 {
		w.bitCount -= 8
		w.buf = append(w.buf, byte(w.bitBuf>>w.bitCount))
		w.written++
	}
	if w.bitCount == 0 {
		w.bitBuf = 0
	}
}

func (w *Writer) maybeFlush() {
	if len(w.buf) >= flushThreshold {
		_ = w.flushBuffer()
	}
}

func (w *Writer) flushBuffer() error {
	if w.err != nil {
		return w.err
	}
	if len(w.buf) == 0 {
		return nil
	}
	if _, err := w.w.Write(w.buf); err != nil {
		w.Fail(err)
		return err
	}
	w.buf = w.buf[:0]

	return nil
}
