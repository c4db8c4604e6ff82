package compress

import (
	"fmt"

	"github.com/golang/snappy"

	"github.com/arloliu/mpegg/errs"
)

// SnappyCompressor compresses with the Snappy block format.
type SnappyCompressor struct{}

var _ Codec = (*SnappyCompressor)(nil)

// NewSnappyCompressor creates a new Snappy compressor.
func NewSnappyCompressor() SnappyCompressor {
	return SnappyCompressor{}
}

// Compress compresses data as a single Snappy block.
func (c SnappyCompressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return snappy.Encode(nil, data), nil
}

// Decompress decodes a Snappy block after checking its declared length
// against maxDecodedSize.
func (c SnappyCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	n, err := snappy.DecodedLen(data)
	if err != nil {
		return nil, fmt.Errorf("snappy block: %w", err)
	}
	if n > maxDecodedSize {
		return nil, fmt.Errorf("%w: snappy block decodes to %d bytes", errs.ErrLimitExceeded, n)
	}

	return snappy.Decode(make([]byte, n), data)
}
