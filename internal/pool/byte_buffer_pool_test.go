package pool

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteBuffer_WriteAndReset(t *testing.T) {
	bb := NewByteBuffer(4)

	n, err := bb.Write([]byte("dtcn"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("dtcn"), bb.Bytes())
	assert.Equal(t, 4, bb.Len())

	originalCap := cap(bb.B)
	bb.Reset()
	assert.Zero(t, bb.Len())
	assert.Equal(t, originalCap, cap(bb.B))
}

func TestByteBuffer_Grow(t *testing.T) {
	bb := NewByteBuffer(8)
	bb.Grow(4)
	assert.Equal(t, 8, cap(bb.B), "sufficient capacity must not reallocate")

	_, _ = bb.Write([]byte("abc"))
	bb.Grow(100)
	assert.GreaterOrEqual(t, cap(bb.B)-len(bb.B), 100)
	assert.Equal(t, []byte("abc"), bb.B, "grow keeps content")

	large := NewByteBuffer(8 * BoxBufferDefaultSize)
	large.B = large.B[:cap(large.B)]
	large.Grow(1)
	assert.Equal(t, 10*BoxBufferDefaultSize, cap(large.B), "large buffers grow by a quarter")
}

func TestByteBuffer_WriteTo(t *testing.T) {
	bb := NewByteBuffer(16)
	_, _ = bb.Write([]byte("payload"))

	var out bytes.Buffer
	n, err := bb.WriteTo(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "payload", out.String())
}

func TestByteBufferPool_Threshold(t *testing.T) {
	p := NewByteBufferPool(8, 16)

	bb := p.Get()
	require.NotNil(t, bb)
	_, _ = bb.Write(make([]byte, 10))
	p.Put(bb)

	got := p.Get()
	assert.Zero(t, got.Len(), "pooled buffers come back empty")

	oversized := NewByteBuffer(64)
	p.Put(oversized)
	p.Put(nil)
}

func TestDefaultPools_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			bb := GetBoxBuffer()
			_, _ = bb.Write([]byte{byte(i)})
			assert.Equal(t, []byte{byte(i)}, bb.Bytes())
			PutBoxBuffer(bb)

			sb := GetStreamBuffer()
			assert.Zero(t, sb.Len())
			PutStreamBuffer(sb)
		}(i)
	}
	wg.Wait()
}
