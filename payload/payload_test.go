package payload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"
)

func TestPayloadSlice(t *testing.T) {
	p := FromBytes([]byte("0123456789"))

	sub, err := p.Slice(2, 5)
	require.NoError(t, err)
	require.Equal(t, int64(5), sub.Len())
	require.Equal(t, int64(2), sub.Offset())

	b, err := sub.Bytes()
	require.NoError(t, err)
	require.Equal(t, "23456", string(b))

	nested, err := sub.Slice(1, 2)
	require.NoError(t, err)
	require.Equal(t, int64(3), nested.Offset())
	b, err = nested.Bytes()
	require.NoError(t, err)
	require.Equal(t, "34", string(b))

	// The parent is untouched by slicing.
	b, err = p.Bytes()
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(b))

	_, err = sub.Slice(4, 2)
	require.Error(t, err)
	_, err = sub.Slice(-1, 1)
	require.Error(t, err)

	tail, err := p.From(7)
	require.NoError(t, err)
	b, err = tail.Bytes()
	require.NoError(t, err)
	require.Equal(t, "789", string(b))
}

func TestPayloadReaderIndependent(t *testing.T) {
	p := FromBytes([]byte("abcdef"))

	r1 := p.Reader()
	r2 := p.Reader()

	buf := make([]byte, 3)
	_, err := io.ReadFull(r1, buf)
	require.NoError(t, err)
	require.Equal(t, "abc", string(buf))

	_, err = io.ReadFull(r2, buf)
	require.NoError(t, err)
	require.Equal(t, "abc", string(buf))
}

func TestPayloadReadAt(t *testing.T) {
	p, err := FromBytes([]byte("abcdef")).Slice(1, 4)
	require.NoError(t, err)

	buf := make([]byte, 3)
	n, err := p.ReadAt(buf, 2)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, 2, n)
	require.Equal(t, "de", string(buf[:n]))

	_, err = p.ReadAt(buf, 4)
	require.ErrorIs(t, err, io.EOF)
}

func TestPayloadSumAndEqual(t *testing.T) {
	data := []byte("ACGTACGTNN")
	p := FromBytes(data)

	sum, err := p.Sum64()
	require.NoError(t, err)
	require.Equal(t, xxhash.Sum64(data), sum)

	other := FromBytes(append([]byte(nil), data...))
	require.True(t, p.Equal(other))

	head, _ := p.Slice(0, 4)
	mid, _ := p.Slice(4, 4)
	require.True(t, head.Equal(mid))

	last, _ := p.Slice(6, 4)
	require.False(t, head.Equal(last))
	require.True(t, Payload{}.Equal(FromBytes(nil)))
}

func TestPayloadWriteTo(t *testing.T) {
	p, _ := FromBytes([]byte("hello world")).Slice(6, 5)

	var buf bytes.Buffer
	n, err := p.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(5), n)
	require.Equal(t, "world", buf.String())
}

func TestFileArena(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.mgb")
	require.NoError(t, os.WriteFile(path, []byte("mapped-content"), 0o600))

	a, err := OpenFile(path)
	require.NoError(t, err)
	defer a.Close()

	require.Equal(t, path, a.Path())
	require.Equal(t, int64(14), a.Size())

	p, err := New(a).Slice(7, 7)
	require.NoError(t, err)

	_, ok := p.View()
	require.False(t, ok)

	b, err := p.Bytes()
	require.NoError(t, err)
	require.Equal(t, "content", string(b))

	var buf bytes.Buffer
	_, err = p.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, "content", buf.String())
}

func TestOpenFileMissing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

type fakeS3 struct {
	mu     sync.Mutex
	data   []byte
	ranges []string
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if aws.ToString(in.Key) != "sample.mgb" {
		return nil, errors.New("not found")
	}

	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(f.data)))}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	rng := strings.TrimPrefix(aws.ToString(in.Range), "bytes=")
	parts := strings.SplitN(rng, "-", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("bad range %q", rng)
	}
	start, _ := strconv.Atoi(parts[0])
	end, _ := strconv.Atoi(parts[1])

	f.mu.Lock()
	f.ranges = append(f.ranges, rng)
	f.mu.Unlock()

	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.data[start : end+1]))}, nil
}

func TestS3Arena(t *testing.T) {
	client := &fakeS3{data: []byte("remote-genomic-archive")}

	a, err := NewS3Arena(context.Background(), client, "bucket", "sample.mgb")
	require.NoError(t, err)
	require.Equal(t, int64(22), a.Size())

	p, err := New(a).Slice(7, 7)
	require.NoError(t, err)

	b, err := p.Bytes()
	require.NoError(t, err)
	require.Equal(t, "genomic", string(b))
	require.Equal(t, []string{"7-13"}, client.ranges)

	buf := make([]byte, 10)
	n, err := a.ReadAt(buf, 15)
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, "archive", string(buf[:n]))

	_, err = NewS3Arena(context.Background(), client, "bucket", "missing")
	require.Error(t, err)
}
