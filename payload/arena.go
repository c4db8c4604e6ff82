package payload

import (
	"fmt"
	"io"

	"golang.org/x/exp/mmap"
)

// Arena is a read-only, randomly addressable byte region that payloads point into.
//
// Implementations must be safe for concurrent ReadAt calls.
type Arena interface {
	io.ReaderAt
	Size() int64
}

// viewer is implemented by arenas that can expose their bytes without copying.
type viewer interface {
	view(off, n int64) []byte
}

// BytesArena is an in-memory arena.
type BytesArena []byte

var (
	_ Arena  = BytesArena(nil)
	_ viewer = BytesArena(nil)
)

// Size returns the arena length.
func (a BytesArena) Size() int64 {
	return int64(len(a))
}

// ReadAt implements io.ReaderAt.
func (a BytesArena) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("payload: negative offset %d", off)
	}
	if off >= int64(len(a)) {
		return 0, io.EOF
	}

	n := copy(p, a[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

func (a BytesArena) view(off, n int64) []byte {
	return a[off : off+n : off+n]
}

// FileArena is a memory-mapped file arena.
type FileArena struct {
	path string
	r    *mmap.ReaderAt
}

var _ Arena = (*FileArena)(nil)

// OpenFile memory-maps the file at path.
//
// The returned arena must be closed once every payload derived from it is no longer used.
func OpenFile(path string) (*FileArena, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	return &FileArena{path: path, r: r}, nil
}

// Path returns the mapped file path.
func (a *FileArena) Path() string {
	return a.path
}

// Size returns the mapped file length.
func (a *FileArena) Size() int64 {
	return int64(a.r.Len())
}

// ReadAt implements io.ReaderAt over the mapping.
func (a *FileArena) ReadAt(p []byte, off int64) (int, error) {
	return a.r.ReadAt(p, off)
}

// Close unmaps the file.
func (a *FileArena) Close() error {
	return a.r.Close()
}
