package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/format"
)

const sampleProfile = `
dataset_type: aligned
alphabet: DNA
read_length: 100
template_segments: 2
classes: [P, M, U]
read_groups: [lane1]
multiple_signature_base: 2
u_signature_size: 16
qv_preset: 1
descriptors:
  FLAGS:
    subsequences:
      - id: 0
        transform: rle
        rle_guard: 32
        streams:
          - {binarization: TU, cmax: 32, output_symbol_size: 8, coding_subsym_size: 8, bypass: true}
          - {binarization: BI, output_symbol_size: 1, coding_subsym_size: 1, bypass: true}
      - id: 1
        transform: equality
        streams:
          - {binarization: BI, output_symbol_size: 1, coding_subsym_size: 1, bypass: true}
          - {binarization: EG, output_symbol_size: 32, coding_subsym_size: 32, adaptive: true, context_init: [1, 2, 3]}
      - id: 2
        transform: none
        streams:
          - {binarization: SUTU, split_unit_size: 4, output_symbol_size: 8, coding_subsym_size: 4, coding_order: 1, subsym_transform: lut}
  RNAME:
    token_guard: 8
    subsequences:
      - transform: none
        streams:
          - {binarization: EG, output_symbol_size: 8, coding_subsym_size: 8, bypass: true}
      - transform: rle_qv
        rle_guard: 4
        streams:
          - {binarization: EG, output_symbol_size: 8, coding_subsym_size: 8, bypass: true}
`

func TestLoadProfile(t *testing.T) {
	p, err := LoadProfile(strings.NewReader(sampleProfile))
	require.NoError(t, err)

	ep, err := p.EncodingParameters()
	require.NoError(t, err)
	require.Equal(t, format.DatasetAligned, ep.DatasetType)
	require.Equal(t, []format.DataClass{format.ClassP, format.ClassM, format.ClassU}, ep.Classes)
	require.Len(t, ep.QV, 3)
	require.Equal(t, uint8(1), ep.QV[2].PresetID)

	flags, err := ep.Descriptor(format.DescFLAGS, format.ClassM)
	require.NoError(t, err)
	require.Len(t, flags.Subsequences, 3)

	rle, ok := flags.Subsequences[0].Config.(RLECoding)
	require.True(t, ok)
	require.Equal(t, uint8(32), rle.Guard)
	require.True(t, rle.Lengths.Bypass())

	eq, ok := flags.Subsequences[1].Config.(EqualityCoding)
	require.True(t, ok)
	require.NotNil(t, eq.Symbols.Context)
	require.Equal(t, []uint8{1, 2, 3}, eq.Symbols.Context.InitValues)

	lut, ok := flags.Subsequences[2].Config.(NoTransform)
	require.True(t, ok)
	require.Equal(t, SubsymLUT, lut.Coding.Symbol.SubsymTransform)

	rname, err := ep.Descriptor(format.DescRNAME, format.ClassP)
	require.NoError(t, err)
	require.Equal(t, uint8(8), rname.TokenGuard)
	require.Equal(t, uint16(1), rname.Subsequences[1].ID)

	pos, err := ep.Descriptor(format.DescPOS, format.ClassP)
	require.NoError(t, err)
	require.Equal(t, DefaultDescriptorConfiguration(format.DescPOS), pos)

	// the compiled block serializes and its bypass streams code symbols
	in := [][]uint64{{1, 1, 1, 0}, {0, 3, 3}, {200}}
	_, err = EncodeDescriptor(flags, ep.Alphabet, format.DescFLAGS, in)
	require.ErrorIs(t, err, errs.ErrUnsupportedPath)

	flags.Subsequences = flags.Subsequences[:2]
	data, err := EncodeDescriptor(flags, ep.Alphabet, format.DescFLAGS, in[:2])
	require.NoError(t, err)
	got, err := DecodeDescriptor(flags, ep.Alphabet, format.DescFLAGS, data, []int{4, 3})
	require.NoError(t, err)
	require.Equal(t, in[:2], got)
}

func TestLoadProfileValidation(t *testing.T) {
	base := "dataset_type: aligned\nalphabet: DNA\ntemplate_segments: 1\nclasses: [P]\n"
	stream := "{binarization: EG, output_symbol_size: 8, coding_subsym_size: 8}"

	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{"empty", "", "empty profile"},
		{"unknown key", base + "colour: red\n", "parse profile"},
		{"missing classes", "dataset_type: aligned\nalphabet: DNA\ntemplate_segments: 1\n", "classes is required"},
		{"bad dataset type", "dataset_type: sorted\nalphabet: DNA\ntemplate_segments: 1\nclasses: [P]\n", "must be one of"},
		{"bad class", "dataset_type: aligned\nalphabet: DNA\ntemplate_segments: 1\nclasses: [Q]\n", "unknown dataclass"},
		{"bad descriptor", base + "descriptors:\n  POSITION:\n    subsequences:\n      - {transform: none, streams: [" + stream + "]}\n", "unknown descriptor"},
		{"bad binarization", base + "descriptors:\n  POS:\n    subsequences:\n      - {transform: none, streams: [{binarization: XX, output_symbol_size: 8, coding_subsym_size: 8}]}\n", "unknown binarization"},
		{"subsym above output", base + "descriptors:\n  POS:\n    subsequences:\n      - {transform: none, streams: [{binarization: EG, output_symbol_size: 8, coding_subsym_size: 9}]}\n", "must not exceed"},
		{"symbol too wide", base + "descriptors:\n  POS:\n    subsequences:\n      - {transform: none, streams: [{binarization: EG, output_symbol_size: 40, coding_subsym_size: 8}]}\n", "must not exceed 32"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadProfile(strings.NewReader(tt.doc))
			require.ErrorIs(t, err, errs.ErrInvalidValue)
			require.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestProfileCompileErrors(t *testing.T) {
	base := "dataset_type: aligned\nalphabet: IUPAC\ntemplate_segments: 1\nclasses: [P]\ndescriptors:\n"
	stream := "{binarization: EG, output_symbol_size: 8, coding_subsym_size: 8}"

	tests := []struct {
		name string
		doc  string
	}{
		{"rle without guard", "  POS:\n    subsequences:\n      - {transform: rle, streams: [" + stream + ", " + stream + "]}\n"},
		{"wrong stream count", "  POS:\n    subsequences:\n      - {transform: equality, streams: [" + stream + "]}\n"},
		{"duplicate subsequence", "  POS:\n    subsequences:\n      - {id: 1, transform: none, streams: [" + stream + "]}\n      - {id: 1, transform: none, streams: [" + stream + "]}\n"},
		{"token type needs two", "  MSAR:\n    subsequences:\n      - {transform: none, streams: [" + stream + "]}\n"},
		{"match without buffer", "  POS:\n    subsequences:\n      - {transform: match, streams: [" + stream + ", " + stream + ", " + stream + "]}\n"},
		{"merge without shifts", "  POS:\n    subsequences:\n      - {transform: merge, streams: [" + stream + "]}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := LoadProfile(strings.NewReader(base + tt.doc))
			require.NoError(t, err)
			_, err = p.EncodingParameters()
			require.ErrorIs(t, err, errs.ErrInvalidValue)
		})
	}
}
