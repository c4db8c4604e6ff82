package transform

import (
	"fmt"

	"github.com/arloliu/mpegg/endian"
	"github.com/arloliu/mpegg/errs"
)

// JoinSubsequences concatenates transformed streams. Every stream except the
// last is preceded by its length as a big-endian u32.
func JoinSubsequences(streams [][]byte) ([]byte, error) {
	if len(streams) == 0 {
		return nil, nil
	}

	size := 0
	for i, s := range streams {
		if i < len(streams)-1 {
			if uint64(len(s)) > 0xFFFFFFFF {
				return nil, fmt.Errorf("%w: stream %d of %d bytes", errs.ErrInvalidValue, i, len(s))
			}
			size += 4
		}
		size += len(s)
	}

	out := make([]byte, 0, size)
	for i, s := range streams {
		if i < len(streams)-1 {
			out = endian.Wire().AppendUint32(out, uint32(len(s))) //nolint:gosec
		}
		out = append(out, s...)
	}

	return out, nil
}

// SplitSubsequences reverses JoinSubsequences for n streams. The returned
// slices alias data.
func SplitSubsequences(data []byte, n int) ([][]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d streams", errs.ErrInvalidValue, n)
	}

	streams := make([][]byte, n)
	rest := data
	for i := range n - 1 {
		if len(rest) < 4 {
			return nil, fmt.Errorf("%w: stream %d size prefix truncated", errs.ErrStructural, i)
		}
		size := endian.Wire().Uint32(rest)
		rest = rest[4:]
		if uint64(size) > uint64(len(rest)) {
			return nil, fmt.Errorf("%w: stream %d declares %d bytes, %d left", errs.ErrStructural, i, size, len(rest))
		}
		streams[i] = rest[:size:size]
		rest = rest[size:]
	}
	streams[n-1] = rest

	return streams, nil
}
