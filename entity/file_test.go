package entity

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/mpegg/box"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/format"
	"github.com/arloliu/mpegg/index"
	"github.com/arloliu/mpegg/internal/bitio"
	"github.com/arloliu/mpegg/metrics"
	"github.com/arloliu/mpegg/payload"
)

func sampleFile(t *testing.T) *File {
	t.Helper()

	d := columnarDataset(t)
	g := NewDatasetGroup(1, d)
	g.References = []*Reference{{
		GroupID: 1, ReferenceID: 3, Name: "GRCh38",
		Sequences: []string{"chr10", "chr11"},
		External: &ExternalLocation{
			URI:       "https://example.org/GRCh38.fa",
			Checksum:  format.ChecksumMD5,
			Type:      format.ReferenceFASTA,
			Checksums: [][]byte{format.ChecksumMD5.Sum([]byte("a")), format.ChecksumMD5.Sum([]byte("b"))},
		},
	}}
	g.ReferenceMetadata = &ReferenceMetadata{GroupID: 1, ReferenceID: 3, Value: []byte("build=38")}
	labels, err := NewLabelList(1, &Label{
		ID:       "exome",
		Datasets: []LabelDataset{{DatasetID: 2, Regions: []Region{{SequenceID: 10, Start: 0, End: 999}}}},
	})
	require.NoError(t, err)
	g.Labels = labels
	g.Metadata = box.NewRaw(box.KeyDatasetGroupMetadata, []byte("<xml/>"))

	return &File{Header: NewFileHeader("mgb1"), Groups: []*DatasetGroup{g}}
}

func encodeFile(t *testing.T, f *File, opts ...EncoderOption) []byte {
	t.Helper()

	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, opts...)
	require.NoError(t, err)
	require.NoError(t, enc.EncodeFile(f))

	return buf.Bytes()
}

func TestFileRoundTrip(t *testing.T) {
	f := sampleFile(t)
	data := encodeFile(t, f, WithEncoderLogger(slog.New(slog.DiscardHandler)))

	col := metrics.NewCollector(prometheus.NewRegistry())
	dec, err := NewDecoder(payload.BytesArena(data), WithMetrics(col), WithStrictOrder(true))
	require.NoError(t, err)
	got, err := dec.DecodeFile()
	require.NoError(t, err)

	require.Equal(t, f.Header, got.Header)
	require.Len(t, got.Groups, 1)
	require.Equal(t, 1, testutil.CollectAndCount(col.ParseDuration))
	require.InDelta(t, 1, testutil.ToFloat64(col.BoxesParsed.WithLabelValues("dgcn")), 0)

	g, ok := got.Group(1)
	require.True(t, ok)
	require.Equal(t, f.Groups[0].Header, g.Header)
	require.Equal(t, f.Groups[0].References, g.References)
	require.Equal(t, f.Groups[0].ReferenceMetadata, g.ReferenceMetadata)
	require.Equal(t, f.Groups[0].Metadata, g.Metadata)
	require.Equal(t, f.Groups[0].Protection, g.Protection)

	l, ok := g.Labels.Lookup("exome")
	require.True(t, ok)
	require.Equal(t, uint16(2), l.Datasets[0].DatasetID)

	ref, ok := g.Reference(3)
	require.True(t, ok)
	require.True(t, ref.External.Verify(1, []byte("b")))

	d, ok := g.Dataset(2)
	require.True(t, ok)
	checkColumnarLookups(t, d)

	_, ok = g.Dataset(3)
	require.False(t, ok)
	_, ok = got.Group(2)
	require.False(t, ok)
}

func TestDecoderNext(t *testing.T) {
	f := sampleFile(t)
	f.Groups = append(f.Groups, NewDatasetGroup(2, columnarDataset(t)))
	f.Groups[1].Datasets[0].Header.GroupID = 2

	dec, err := NewDecoder(payload.BytesArena(encodeFile(t, f)))
	require.NoError(t, err)

	fh, err := dec.FileHeader()
	require.NoError(t, err)
	require.Equal(t, []string{"mgb1"}, fh.CompatibleBrands)

	var ids []uint8
	for {
		g, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		ids = append(ids, g.Header.GroupID)
	}
	require.Equal(t, []uint8{1, 2}, ids)
}

func TestDecoderErrors(t *testing.T) {
	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	require.NoError(t, box.WriteWithHeader(w, NewFileHeader()))
	require.NoError(t, w.Flush())
	headerOnly := bytes.Clone(buf.Bytes())

	dec, err := NewDecoder(payload.BytesArena(headerOnly))
	require.NoError(t, err)
	_, err = dec.DecodeFile()
	require.ErrorIs(t, err, errs.ErrMissingElement)

	stray := append(bytes.Clone(headerOnly), encodeBox(t, box.NewRaw(box.KeyDatasetMetadata, []byte("x")))...)
	dec, err = NewDecoder(payload.BytesArena(stray))
	require.NoError(t, err)
	_, err = dec.DecodeFile()
	require.ErrorIs(t, err, errs.ErrUnexpectedElement)

	emptyGroup := append(bytes.Clone(headerOnly), encodeBox(t, box.NewRaw(box.KeyDatasetGroup, nil))...)
	dec, err = NewDecoder(payload.BytesArena(emptyGroup))
	require.NoError(t, err)
	_, err = dec.DecodeFile()
	require.ErrorIs(t, err, errs.ErrMissingElement)

	dec, err = NewDecoder(payload.BytesArena(encodeBox(t, box.NewRaw(box.KeyDatasetGroup, nil))))
	require.NoError(t, err)
	_, err = dec.FileHeader()
	require.ErrorIs(t, err, errs.ErrMissingElement)

	_, err = NewDecoder(payload.BytesArena(nil), WithLogger(nil))
	require.ErrorIs(t, err, errs.ErrInvalidValue)
	_, err = NewDecoder(payload.BytesArena(nil), WithLimits(box.Limits{MaxBytes: -1}))
	require.ErrorIs(t, err, errs.ErrInvalidValue)
}

func TestDecoderLimits(t *testing.T) {
	data := encodeFile(t, sampleFile(t))

	dec, err := NewDecoder(payload.BytesArena(data), WithLimits(box.Limits{MaxBytes: 16, MaxCount: 16}))
	require.NoError(t, err)
	_, err = dec.DecodeFile()
	require.ErrorIs(t, err, errs.ErrLimitExceeded)
}

func TestEncoderErrors(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewEncoder(&buf)
	require.NoError(t, err)

	require.ErrorIs(t, enc.EncodeFile(&File{}), errs.ErrMissingElement)
	require.ErrorIs(t, enc.EncodeFile(&File{Header: NewFileHeader()}), errs.ErrInvalidValue)

	g := NewDatasetGroup(1)
	require.ErrorIs(t, enc.EncodeFile(&File{Header: NewFileHeader(), Groups: []*DatasetGroup{g}}), errs.ErrMissingElement)

	d := columnarDataset(t)
	g = NewDatasetGroup(1)
	g.Datasets = []*Dataset{d}
	require.ErrorIs(t, enc.EncodeFile(&File{Header: NewFileHeader(), Groups: []*DatasetGroup{g}}), errs.ErrInvalidValue)

	_, err = NewEncoder(&buf, WithEncoderLogger(nil))
	require.ErrorIs(t, err, errs.ErrInvalidValue)
}

func TestUnencodableChildLeavesSizeUnknown(t *testing.T) {
	g := sampleFile(t).Groups[0]
	g.References = []*Reference{{Internal: &InternalLocation{}, External: &ExternalLocation{}}}

	_, ok := g.Size()
	require.False(t, ok)
	_, err := boxLength(g)
	require.ErrorIs(t, err, errs.ErrInvalidValue)

	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	err = box.WriteWithHeader(w, g)
	require.ErrorIs(t, err, errs.ErrInvalidValue)
	require.NotErrorIs(t, err, errs.ErrSizeMismatch)
	require.NoError(t, w.Flush())
	require.Zero(t, buf.Len(), "nothing is emitted for a failing group")
}

func TestDatasetGroupOrder(t *testing.T) {
	g := sampleFile(t).Groups[0]

	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	require.NoError(t, box.WriteWithHeader(w, g.Header))
	require.NoError(t, box.WriteWithHeader(w, g.Datasets[0]))
	require.NoError(t, box.WriteWithHeader(w, g.Labels))
	require.NoError(t, box.WriteWithHeader(w, g.protection()))
	require.NoError(t, w.Flush())

	data := encodeBox(t, box.NewRaw(box.KeyDatasetGroup, buf.Bytes()))
	err := box.Read(bitio.NewReader(payload.FromBytes(data)), newDatasetGroup(nil))
	require.ErrorIs(t, err, errs.ErrUnexpectedElement)

	// Without the protection trailer the group is incomplete.
	buf.Reset()
	w = bitio.NewWriter(&buf)
	require.NoError(t, box.WriteWithHeader(w, g.Header))
	require.NoError(t, box.WriteWithHeader(w, g.Datasets[0]))
	require.NoError(t, w.Flush())

	data = encodeBox(t, box.NewRaw(box.KeyDatasetGroup, buf.Bytes()))
	err = box.Read(bitio.NewReader(payload.FromBytes(data)), newDatasetGroup(nil))
	require.ErrorIs(t, err, errs.ErrMissingElement)
}

func TestDatasetGroupLookupAcrossFile(t *testing.T) {
	data := encodeFile(t, sampleFile(t))
	dec, err := NewDecoder(payload.BytesArena(data))
	require.NoError(t, err)
	f, err := dec.DecodeFile()
	require.NoError(t, err)

	d, ok := f.Groups[0].Dataset(2)
	require.True(t, ok)

	au, err := d.AccessUnitAt(index.Triplet{Seq: 1, Class: 1, AU: 2})
	require.NoError(t, err)
	require.Equal(t, format.ClassM, au.Header.Class)

	ps, err := d.ParameterSet(au.Header.ParameterSetID)
	require.NoError(t, err)
	ep, err := ps.EncodingParameters()
	require.NoError(t, err)
	require.Equal(t, []format.DataClass{format.ClassP, format.ClassM}, ep.Classes)
}
