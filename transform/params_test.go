package transform

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/format"
	"github.com/arloliu/mpegg/internal/bitio"
	"github.com/arloliu/mpegg/payload"
)

func sampleParameters() *EncodingParameters {
	p := &EncodingParameters{
		DatasetType:           format.DatasetAligned,
		Alphabet:              format.AlphabetDNA,
		ReadLength:            150,
		TemplateSegments:      2,
		MaxAUDataUnitSize:     1 << 20,
		Pos40Bits:             true,
		QVDepth:               1,
		Classes:               []format.DataClass{format.ClassP, format.ClassM, format.ClassU},
		ReadGroups:            []string{"rg-lane1", ""},
		SplicedReads:          true,
		MultipleSignatureBase: 4,
		USignatureSize:        32,
		QV: []QVParameters{
			{CodingMode: 1, PresetID: 2},
			{CodingMode: 1, PresetID: 0, Reverse: true},
			{CodingMode: 0},
		},
	}
	for d := range p.Descriptors {
		p.Descriptors[d] = []DescriptorConfiguration{DefaultDescriptorConfiguration(format.DescriptorID(d))} //nolint:gosec
	}
	eg := DefaultStream()
	p.Descriptors[format.DescFLAGS] = []DescriptorConfiguration{
		DefaultDescriptorConfiguration(format.DescFLAGS),
		{Subsequences: []SubsequenceConfiguration{{ID: 0, Config: RLECoding{Guard: 9, Lengths: eg, Symbols: eg}}}},
		{Subsequences: []SubsequenceConfiguration{{ID: 2, Config: EqualityCoding{Flags: flagStream(), Symbols: eg}}}},
	}
	p.Descriptors[format.DescRNAME][0].TokenGuard = 12

	return p
}

func TestEncodingParametersRoundTrip(t *testing.T) {
	p := sampleParameters()
	require.NoError(t, p.Validate())

	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	p.Write(w)
	require.NoError(t, w.Flush())
	require.Equal(t, p.Size(), int64(buf.Len()))

	got, err := ReadEncodingParameters(bitio.NewReader(payload.FromBytes(buf.Bytes())))
	require.NoError(t, err)
	require.Equal(t, p, got)

	require.True(t, got.ClassSpecific(format.DescFLAGS))
	require.False(t, got.ClassSpecific(format.DescPOS))

	cfg, err := got.Descriptor(format.DescFLAGS, format.ClassM)
	require.NoError(t, err)
	require.Equal(t, TransformRLE, cfg.Subsequences[0].Config.TransformID())

	cfg, err = got.Descriptor(format.DescPOS, format.ClassI)
	require.NoError(t, err)
	require.Len(t, cfg.Subsequences, 2)

	_, err = got.Descriptor(format.DescFLAGS, format.ClassI)
	require.ErrorIs(t, err, errs.ErrDataClassNotFound)
	require.True(t, errs.IsLookupMiss(err))

	sub, err := cfg.Subsequence(1)
	require.NoError(t, err)
	require.Equal(t, TransformNone, sub.TransformID())
	_, err = cfg.Subsequence(7)
	require.ErrorIs(t, err, errs.ErrDescriptorNotFound)
}

func TestEncodingParametersValidate(t *testing.T) {
	p := sampleParameters()
	p.TemplateSegments = 0
	require.ErrorIs(t, p.Validate(), errs.ErrInvalidValue)

	p = sampleParameters()
	p.QV = p.QV[:1]
	require.ErrorIs(t, p.Validate(), errs.ErrInvalidValue)

	p = sampleParameters()
	p.Descriptors[format.DescPOS] = append(p.Descriptors[format.DescPOS], p.Descriptors[format.DescPOS][0])
	require.ErrorIs(t, p.Validate(), errs.ErrInvalidValue)

	p = sampleParameters()
	p.Alphabet = 9
	require.ErrorIs(t, p.Validate(), errs.ErrUnknownVariant)

	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	p.Write(w)
	require.ErrorIs(t, w.Err(), errs.ErrUnknownVariant)
}

func TestEncodingParametersTokenTypeLayout(t *testing.T) {
	p := sampleParameters()
	p.Descriptors[format.DescMSAR][0].Subsequences = p.Descriptors[format.DescMSAR][0].Subsequences[:1]

	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	p.Write(w)
	require.ErrorIs(t, w.Err(), errs.ErrInvalidValue)
}

func TestEncodingParametersUnsupported(t *testing.T) {
	p := sampleParameters()
	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	p.Write(w)
	require.NoError(t, w.Flush())
	data := buf.Bytes()

	// the first descriptor's class-specific flag is followed by its preset byte
	const presetBit = 4 + 8 + 24 + 2 + 6 + 29 + 1 + 3 + 3 + 4 + 3*4 + 1
	patched := bytes.Clone(data)
	patched[presetBit/8] |= 0x80 >> (presetBit % 8)

	_, err := ReadEncodingParameters(bitio.NewReader(payload.FromBytes(patched)))
	require.ErrorIs(t, err, errs.ErrUnsupportedPath)
}

func TestDescriptorRoundTrip(t *testing.T) {
	eg := DefaultStream()
	d := DescriptorConfiguration{Subsequences: []SubsequenceConfiguration{
		{ID: 0, Config: RLECoding{Guard: 5, Lengths: eg, Symbols: eg}},
		{ID: 1, Config: NoTransform{Coding: eg}},
		{ID: 2, Config: EqualityCoding{Flags: flagStream(), Symbols: eg}},
	}}
	in := [][]uint64{
		{0, 0, 0, 0, 0, 0, 0, 1},
		{3, 1, 4, 1, 5, 9, 2, 6},
		{2, 2, 2, 7},
	}

	data, err := EncodeDescriptor(d, format.AlphabetDNA, format.DescMMTYPE, in)
	require.NoError(t, err)

	got, err := DecodeDescriptor(d, format.AlphabetDNA, format.DescMMTYPE, data, []int{8, 8, 4})
	require.NoError(t, err)
	require.Equal(t, in, got)

	_, err = EncodeDescriptor(d, format.AlphabetDNA, format.DescMMTYPE, in[:2])
	require.ErrorIs(t, err, errs.ErrInvalidValue)
	_, err = DecodeDescriptor(d, format.AlphabetDNA, format.DescMMTYPE, data, []int{8})
	require.ErrorIs(t, err, errs.ErrInvalidValue)
}

func TestDefaultDescriptorConfiguration(t *testing.T) {
	require.Equal(t, 8, NumSubsequences(format.DescPAIR))
	require.Equal(t, 0, NumSubsequences(format.DescriptorID(40)))

	d := DefaultDescriptorConfiguration(format.DescRNAME)
	require.Len(t, d.Subsequences, 2)
	require.Equal(t, uint8(255), d.TokenGuard)
	require.True(t, IsTokenType(format.DescMSAR))
	require.False(t, IsTokenType(format.DescQV))
}
