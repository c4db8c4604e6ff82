package compress

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/arloliu/mpegg/errs"
)

// ZstdCompressor compresses sub-streams with Zstandard.
//
// The implementation is chosen at build time, see the package documentation.
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a new Zstd compressor with default settings.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}

// checkZstdFrame rejects a frame whose header declares more than
// maxDecodedSize bytes of content. Headers that do not parse are left to the
// decoder to report.
func checkZstdFrame(data []byte) error {
	var h zstd.Header
	if err := h.Decode(data); err != nil {
		return nil //nolint:nilerr
	}
	if h.HasFCS && h.FrameContentSize > maxDecodedSize {
		return fmt.Errorf("%w: zstd frame declares %d bytes", errs.ErrLimitExceeded, h.FrameContentSize)
	}

	return nil
}
