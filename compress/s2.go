package compress

import (
	"fmt"

	"github.com/klauspost/compress/s2"

	"github.com/arloliu/mpegg/errs"
)

// S2Compressor compresses sub-streams with the S2 block format in its
// better-ratio mode. Decoding accepts any S2 or Snappy block.
type S2Compressor struct{}

var _ Codec = (*S2Compressor)(nil)

// NewS2Compressor creates a new S2 compressor.
func NewS2Compressor() S2Compressor {
	return S2Compressor{}
}

// Compress encodes data as a single S2 block.
func (c S2Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return s2.EncodeBetter(nil, data), nil
}

// Decompress decodes an S2 block after checking its declared length
// against maxDecodedSize.
func (c S2Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	n, err := s2.DecodedLen(data)
	if err != nil {
		return nil, fmt.Errorf("s2 block: %w", err)
	}
	if n > maxDecodedSize {
		return nil, fmt.Errorf("%w: s2 block decodes to %d bytes", errs.ErrLimitExceeded, n)
	}

	return s2.Decode(make([]byte, n), data)
}
