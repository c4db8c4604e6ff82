package transform

import (
	"github.com/arloliu/mpegg/format"
)

// Context identifies the subsequence a coder works on. Some descriptor
// subsequences have an alphabet smaller than their coding subsymbol size
// allows, which narrows the truncated unary maximum.
type Context struct {
	Alphabet      format.AlphabetID
	Descriptor    format.DescriptorID
	SubsequenceID uint16
}

// NumAlphabetSymbols returns the number of distinct subsymbol values of the
// subsequence coded with sym.
func (c Context) NumAlphabetSymbols(sym SymbolEncoding) uint64 {
	n := uint64(1) << sym.CodingSubsymSize
	alpha := uint64(c.Alphabet.Size()) //nolint:gosec

	switch c.Descriptor {
	case format.DescMMTYPE:
		switch c.SubsequenceID {
		case 0:
			n = 3
		case 1, 2:
			n = alpha
		}
	case format.DescCLIPS:
		switch c.SubsequenceID {
		case 1:
			n = 9
		case 2:
			n = alpha + 1
		}
	case format.DescUREADS:
		n = alpha
	case format.DescRTYPE:
		n = 6
	}

	return n
}

// truncatedUnaryMax returns the cMax a TU binarization uses for cfg in this context.
func (c Context) truncatedUnaryMax(cfg EncodingConfiguration) uint64 {
	n := c.NumAlphabetSymbols(cfg.Symbol)
	if n != uint64(1)<<cfg.Symbol.CodingSubsymSize {
		return n - 1
	}

	return uint64(cfg.Binarization.CMax)
}
