package entity

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/mpegg/box"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/format"
	"github.com/arloliu/mpegg/index"
	"github.com/arloliu/mpegg/internal/bitio"
	"github.com/arloliu/mpegg/payload"
)

func columnarHeader() *DatasetHeader {
	h := NewDatasetHeader(1, 2)
	h.MIT = true
	h.ReferenceID = 3
	h.Sequences = []Sequence{{ID: 10, Blocks: 2, Threshold: 100}, {ID: 11, Blocks: 3, Threshold: 100}}
	h.Classes = []ClassEntry{
		{Class: format.ClassP, Descriptors: []format.DescriptorID{format.DescPOS, format.DescRLEN}},
		{Class: format.ClassM, Descriptors: []format.DescriptorID{format.DescPOS, format.DescMMPOS}},
	}

	return h
}

func TestDatasetHeaderRoundTrip(t *testing.T) {
	unmapped := columnarHeader()
	unmapped.Classes = append(unmapped.Classes, ClassEntry{Class: format.ClassU, Descriptors: []format.DescriptorID{format.DescRLEN}})
	unmapped.NumUnmappedAUs = 4
	unmapped.NumUnmappedClusters = 9
	unmapped.MultipleSignatureBase = 2
	unmapped.USignatureSize = 20
	unmapped.USignatureConstantLength = true
	unmapped.USignatureLength = 10

	blockHeader := NewDatasetHeader(7, 8)
	blockHeader.BlockHeader = true
	blockHeader.ClassContiguous = true
	blockHeader.MultipleAlignment = true
	blockHeader.Pos40Bits = true
	blockHeader.Sequences = []Sequence{{ID: 1, Blocks: 5}}

	indexedBlockHeader := NewDatasetHeader(7, 9)
	indexedBlockHeader.BlockHeader = true
	indexedBlockHeader.MIT = true
	indexedBlockHeader.ByteOffset64 = true
	indexedBlockHeader.Classes = []ClassEntry{{Class: format.ClassI}, {Class: format.ClassHM}}

	tests := []struct {
		name string
		h    *DatasetHeader
	}{
		{"columnar", columnarHeader()},
		{"columnar with unmapped", unmapped},
		{"block header", blockHeader},
		{"block header with index", indexedBlockHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := &DatasetHeader{}
			roundTrip(t, tt.h, got)
			require.Equal(t, tt.h, got)
		})
	}
}

func TestDatasetHeaderValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(h *DatasetHeader)
		want   error
	}{
		{"short version", func(h *DatasetHeader) { h.Version = "19" }, errs.ErrInvalidValue},
		{"columnar without index", func(h *DatasetHeader) { h.MIT = false }, errs.ErrInvalidValue},
		{"class contiguous in columnar", func(h *DatasetHeader) { h.ClassContiguous = true }, errs.ErrInvalidValue},
		{"ordered blocks with block headers", func(h *DatasetHeader) {
			h.BlockHeader, h.OrderedBlocks = true, true
			h.Classes = nil
		}, errs.ErrInvalidValue},
		{"classes without index", func(h *DatasetHeader) {
			h.BlockHeader, h.MIT = true, false
			h.Classes = []ClassEntry{{Class: format.ClassP}}
		}, errs.ErrInvalidValue},
		{"descriptors in block-header dataset", func(h *DatasetHeader) { h.BlockHeader = true }, errs.ErrInvalidValue},
		{"unknown dataset type", func(h *DatasetHeader) { h.DatasetType = 9 }, errs.ErrUnknownVariant},
		{"unknown alphabet", func(h *DatasetHeader) { h.Alphabet = 7 }, errs.ErrUnknownVariant},
		{"unknown class", func(h *DatasetHeader) { h.Classes[0].Class = 0 }, errs.ErrUnknownVariant},
		{"duplicate class", func(h *DatasetHeader) { h.Classes[1].Class = format.ClassP }, errs.ErrInvalidValue},
		{"unknown descriptor", func(h *DatasetHeader) { h.Classes[0].Descriptors[0] = 42 }, errs.ErrUnknownVariant},
		{"threshold overflow", func(h *DatasetHeader) { h.Sequences[1].Threshold = 1 << 31 }, errs.ErrInvalidValue},
		{"signature parameters without unmapped units", func(h *DatasetHeader) { h.MultipleSignatureBase = 1 }, errs.ErrInvalidValue},
		{"signature size without base", func(h *DatasetHeader) {
			h.NumUnmappedAUs = 1
			h.USignatureSize = 8
		}, errs.ErrInvalidValue},
		{"signature length without constant flag", func(h *DatasetHeader) {
			h.NumUnmappedAUs = 1
			h.USignatureLength = 8
		}, errs.ErrInvalidValue},
	}

	require.NoError(t, columnarHeader().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := columnarHeader()
			tt.modify(h)
			require.ErrorIs(t, h.Validate(), tt.want)
		})
	}
}

func TestDatasetHeaderThresholds(t *testing.T) {
	same := columnarHeader()
	same.Sequences = []Sequence{{ID: 0, Threshold: 5}, {ID: 1, Threshold: 5}, {ID: 2, Threshold: 5}}
	distinct := columnarHeader()
	distinct.Sequences = []Sequence{{ID: 0, Threshold: 5}, {ID: 1, Threshold: 6}, {ID: 2, Threshold: 7}}

	// Only the first threshold and every change carry the 31-bit value.
	require.Equal(t, int64(2*31), distinct.sizeInBits()-same.sizeInBits())

	for _, h := range []*DatasetHeader{same, distinct} {
		got := &DatasetHeader{}
		roundTrip(t, h, got)
		require.Equal(t, h.Sequences, got.Sequences)
	}
}

func TestDatasetHeaderMissingFirstThreshold(t *testing.T) {
	h := columnarHeader()
	h.Sequences = h.Sequences[:1]
	data := encodeBox(t, h)

	// The flag of the first threshold sits 32 bits before the end of the
	// encoded fields.
	flag := h.sizeInBits() - 32
	data[box.HeaderSize+flag/8] &^= 0x80 >> (flag % 8)

	err := box.Read(bitio.NewReader(payload.FromBytes(data)), &DatasetHeader{})
	require.ErrorIs(t, err, errs.ErrStructural)
}

func TestDatasetHeaderLookups(t *testing.T) {
	h := columnarHeader()

	ci, err := h.ClassIndex(format.ClassM)
	require.NoError(t, err)
	require.Equal(t, index.ClassIndex(1), ci)

	_, err = h.ClassIndex(format.ClassU)
	require.ErrorIs(t, err, errs.ErrDataClassNotFound)
	require.True(t, errs.IsLookupMiss(err))

	c, err := h.Class(1)
	require.NoError(t, err)
	require.Equal(t, format.ClassM, c.Class)
	_, err = h.Class(5)
	require.ErrorIs(t, err, errs.ErrDataClassNotFound)

	si, err := h.SequenceIndex(11)
	require.NoError(t, err)
	require.Equal(t, index.SequenceIndex(1), si)
	_, err = h.SequenceIndex(12)
	require.ErrorIs(t, err, errs.ErrSequenceNotAvailable)

	di, err := h.DescriptorIndex(format.ClassM, format.DescMMPOS)
	require.NoError(t, err)
	require.Equal(t, index.DescriptorIndex(1), di)
	_, err = h.DescriptorIndex(format.ClassM, format.DescRLEN)
	require.ErrorIs(t, err, errs.ErrDescriptorNotFound)

	require.Equal(t, 2, h.NumAlignedClasses())

	l := h.IndexLayout()
	require.Equal(t, []uint32{2, 3}, l.SequenceBlocks)
	require.Equal(t, []index.ClassLayout{
		{Class: format.ClassP, NumDescriptors: 2},
		{Class: format.ClassM, NumDescriptors: 2},
	}, l.Classes)
}

func TestDatasetHeaderProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	build := func(thresholds []uint32, blockHeader, indexed, pos40 bool, unmapped uint32) *DatasetHeader {
		h := NewDatasetHeader(1, 1)
		h.Pos40Bits = pos40
		if blockHeader {
			h.BlockHeader = true
			h.MIT = indexed
			h.ClassContiguous = !indexed
		} else {
			h.MIT = true
			h.OrderedBlocks = indexed
		}
		if len(thresholds) > 0 {
			h.ReferenceID = 1
		}
		for i, th := range thresholds {
			h.Sequences = append(h.Sequences, Sequence{ID: uint16(i), Blocks: uint32(i) + 1, Threshold: th}) //nolint:gosec
		}
		if h.MIT {
			for _, c := range []format.DataClass{format.ClassP, format.ClassU} {
				entry := ClassEntry{Class: c}
				if !blockHeader {
					entry.Descriptors = []format.DescriptorID{format.DescPOS, format.DescRCOMP}
				}
				h.Classes = append(h.Classes, entry)
			}
		}
		if unmapped > 0 {
			h.NumUnmappedAUs = unmapped
			h.NumUnmappedClusters = unmapped * 2
			h.MultipleSignatureBase = unmapped
			h.USignatureSize = 16
			h.USignatureConstantLength = unmapped%2 == 0
			if h.USignatureConstantLength {
				h.USignatureLength = 12
			}
		}

		return h
	}

	properties.Property("announced size, written bytes and parsed header agree", prop.ForAll(
		func(thresholds []uint32, blockHeader, indexed, pos40 bool, unmapped uint32) bool {
			h := build(thresholds, blockHeader, indexed, pos40, unmapped)
			data, err := encodeHeader(h)
			if err != nil {
				return false
			}
			size, _ := h.Size()
			if uint64(len(data)) != box.HeaderSize+size {
				return false
			}

			got := &DatasetHeader{}
			if err := box.Read(bitio.NewReader(payload.FromBytes(data)), got); err != nil {
				return false
			}

			return got.DatasetID == h.DatasetID && got.MIT == h.MIT &&
				got.BlockHeader == h.BlockHeader && got.Pos40Bits == h.Pos40Bits &&
				len(got.Sequences) == len(h.Sequences) && sequencesEqual(got.Sequences, h.Sequences) &&
				len(got.Classes) == len(h.Classes) && got.NumUnmappedAUs == h.NumUnmappedAUs &&
				got.USignatureLength == h.USignatureLength
		},
		gen.SliceOf(gen.UInt32Range(0, 3)),
		gen.Bool(),
		gen.Bool(),
		gen.Bool(),
		gen.UInt32Range(0, 4),
	))

	properties.TestingRun(t)
}

func encodeHeader(h *DatasetHeader) ([]byte, error) {
	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	if err := box.WriteWithHeader(w, h); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func sequencesEqual(a, b []Sequence) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
