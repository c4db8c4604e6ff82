package transform

import (
	"fmt"

	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/format"
)

var subsequenceCounts = [format.NumDescriptors]int{
	format.DescPOS:    2,
	format.DescRCOMP:  1,
	format.DescFLAGS:  3,
	format.DescMMPOS:  2,
	format.DescMMTYPE: 3,
	format.DescCLIPS:  4,
	format.DescUREADS: 1,
	format.DescRLEN:   1,
	format.DescPAIR:   8,
	format.DescMSCORE: 1,
	format.DescMMAP:   5,
	format.DescMSAR:   2,
	format.DescRTYPE:  1,
	format.DescRGROUP: 1,
	format.DescQV:     3,
	format.DescRNAME:  2,
	format.DescRFTP:   1,
	format.DescRFTT:   1,
}

// NumSubsequences returns the number of subsequences desc is split into. The
// quality value count assumes a single codebook.
func NumSubsequences(desc format.DescriptorID) int {
	if !desc.Valid() {
		return 0
	}

	return subsequenceCounts[desc]
}

// DefaultStream is the fallback entropy-coder configuration: 32-bit
// symbols with exp-Golomb binarization in bypass mode.
func DefaultStream() EncodingConfiguration {
	return EncodingConfiguration{
		Symbol:       SymbolEncoding{OutputSymbolSize: 32, CodingSubsymSize: 32},
		Binarization: Binarization{ID: ExpGolomb},
	}
}

// DefaultDescriptorConfiguration passes every subsequence of desc through
// DefaultStream without a transform.
func DefaultDescriptorConfiguration(desc format.DescriptorID) DescriptorConfiguration {
	n := NumSubsequences(desc)
	d := DescriptorConfiguration{Subsequences: make([]SubsequenceConfiguration, n)}
	for i := range d.Subsequences {
		d.Subsequences[i] = SubsequenceConfiguration{ID: uint16(i), Config: NoTransform{Coding: DefaultStream()}} //nolint:gosec
	}
	if IsTokenType(desc) {
		d.TokenGuard = 255
	}

	return d
}

// EncodeDescriptor codes one symbol slice per subsequence of d, in
// configuration order, and frames the coded subsequences into a block payload.
func EncodeDescriptor(d DescriptorConfiguration, alphabet format.AlphabetID, desc format.DescriptorID,
	subseqs [][]uint64, opts ...Option,
) ([]byte, error) {
	if len(subseqs) != len(d.Subsequences) {
		return nil, fmt.Errorf("%w: %s has %d subsequences, got %d",
			errs.ErrInvalidValue, desc, len(d.Subsequences), len(subseqs))
	}

	coded := make([][]byte, len(subseqs))
	for i, s := range d.Subsequences {
		ctx := Context{Alphabet: alphabet, Descriptor: desc, SubsequenceID: s.ID}
		b, err := EncodeSubsequence(s.Config, ctx, subseqs[i], opts...)
		if err != nil {
			return nil, fmt.Errorf("%s subsequence %d: %w", desc, s.ID, err)
		}
		coded[i] = b
	}

	return JoinSubsequences(coded)
}

// DecodeDescriptor reverses EncodeDescriptor. counts gives the number of
// symbols to read from each subsequence.
func DecodeDescriptor(d DescriptorConfiguration, alphabet format.AlphabetID, desc format.DescriptorID,
	data []byte, counts []int, opts ...Option,
) ([][]uint64, error) {
	if len(counts) != len(d.Subsequences) {
		return nil, fmt.Errorf("%w: %s has %d subsequences, got %d counts",
			errs.ErrInvalidValue, desc, len(d.Subsequences), len(counts))
	}
	coded, err := SplitSubsequences(data, len(d.Subsequences))
	if err != nil {
		return nil, err
	}

	out := make([][]uint64, len(coded))
	for i, s := range d.Subsequences {
		ctx := Context{Alphabet: alphabet, Descriptor: desc, SubsequenceID: s.ID}
		if out[i], err = DecodeSubsequence(s.Config, ctx, coded[i], counts[i], opts...); err != nil {
			return nil, fmt.Errorf("%s subsequence %d: %w", desc, s.ID, err)
		}
	}

	return out, nil
}
