package mpegg

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/mpegg/entity"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/format"
	"github.com/arloliu/mpegg/index"
	"github.com/arloliu/mpegg/payload"
)

func sampleFile(t *testing.T) *entity.File {
	t.Helper()

	h := entity.NewDatasetHeader(1, 1)
	h.MIT = true
	h.Sequences = []entity.Sequence{{ID: 0}}
	h.Classes = []entity.ClassEntry{{
		Class:       format.ClassP,
		Descriptors: []format.DescriptorID{format.DescPOS, format.DescRLEN},
	}}

	b, err := entity.NewDatasetBuilder(h)
	require.NoError(t, err)
	for i := range 3 {
		err := b.AddAccessUnit(0,
			&entity.AccessUnitHeader{ID: uint32(i), Class: format.ClassP, Start: uint64(100 * i), End: uint64(100*i + 50)}, //nolint:gosec
			entity.Block{Descriptor: format.DescPOS, Payload: payload.FromBytes(bytes.Repeat([]byte{byte(i)}, i+1))},
			entity.Block{Descriptor: format.DescRLEN, Payload: payload.FromBytes([]byte{150})},
		)
		require.NoError(t, err)
	}
	ds, err := b.Build()
	require.NoError(t, err)

	return &entity.File{
		Header: entity.NewFileHeader(),
		Groups: []*entity.DatasetGroup{entity.NewDatasetGroup(1, ds)},
	}
}

func checkFile(t *testing.T, f *entity.File) {
	t.Helper()

	require.Len(t, f.Groups, 1)
	ds, ok := f.Groups[0].Dataset(1)
	require.True(t, ok)

	for i := range 3 {
		p, err := ds.DescriptorPayload(index.Triplet{AU: uint32(i)}, format.DescPOS) //nolint:gosec
		require.NoError(t, err)
		b, err := p.Bytes()
		require.NoError(t, err)
		require.Equal(t, bytes.Repeat([]byte{byte(i)}, i+1), b)
	}

	_, err := ds.DescriptorPayload(index.Triplet{AU: 3}, format.DescPOS)
	require.True(t, errs.IsLookupMiss(err))
}

func TestWriteAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.mgb")
	require.NoError(t, WriteFile(path, sampleFile(t)))

	f, err := ReadFile(path)
	require.NoError(t, err)
	checkFile(t, f)

	a, err := OpenFile(path)
	require.NoError(t, err)
	checkFile(t, a.File)
	require.NoError(t, a.Close())
}

func TestEncodeDecode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleFile(t)))

	f, err := Decode(bytes.NewReader(buf.Bytes()), entity.WithStrictOrder(true))
	require.NoError(t, err)
	checkFile(t, f)

	// Truncated input fails to decode.
	_, err = Decode(bytes.NewReader(buf.Bytes()[:buf.Len()-3]))
	require.Error(t, err)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "absent.mgb"))
	require.Error(t, err)

	_, err = ReadFile(filepath.Join(t.TempDir(), "absent.mgb"))
	require.Error(t, err)

	a := &Archive{}
	require.NoError(t, a.Close())
}
