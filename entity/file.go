package entity

import (
	"fmt"

	"github.com/arloliu/mpegg/box"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/internal/bitio"
)

// Default file header brand fields.
const (
	DefaultMajorBrand   = "MPEG-G"
	DefaultMinorVersion = "1900"
)

const (
	majorBrandLen   = 6
	minorVersionLen = 4
	brandLen        = 4
)

// FileHeader is the flhd box opening every file.
type FileHeader struct {
	MajorBrand       string
	MinorVersion     string
	CompatibleBrands []string
}

var (
	_ box.Entity   = (*FileHeader)(nil)
	_ box.Readable = (*FileHeader)(nil)
)

// NewFileHeader returns a header with the default brand and version.
func NewFileHeader(compatible ...string) *FileHeader {
	return &FileHeader{
		MajorBrand:       DefaultMajorBrand,
		MinorVersion:     DefaultMinorVersion,
		CompatibleBrands: compatible,
	}
}

func (h *FileHeader) Key() box.Key { return box.KeyFileHeader }

func (h *FileHeader) Size() (uint64, bool) {
	return uint64(majorBrandLen + minorVersionLen + brandLen*len(h.CompatibleBrands)), true //nolint:gosec
}

func (h *FileHeader) Write(w *bitio.Writer) error {
	if len(h.MajorBrand) != majorBrandLen || len(h.MinorVersion) != minorVersionLen {
		return fmt.Errorf("%w: brand %q version %q", errs.ErrInvalidValue, h.MajorBrand, h.MinorVersion)
	}
	w.WriteFixedString(h.MajorBrand, majorBrandLen)
	w.WriteFixedString(h.MinorVersion, minorVersionLen)
	for _, b := range h.CompatibleBrands {
		if len(b) != brandLen {
			return fmt.Errorf("%w: compatible brand %q", errs.ErrInvalidValue, b)
		}
		w.WriteFixedString(b, brandLen)
	}

	return w.Err()
}

func (h *FileHeader) ReadContent(r *bitio.Reader, contentSize uint64) error {
	fixed := uint64(majorBrandLen + minorVersionLen)
	if contentSize < fixed || (contentSize-fixed)%brandLen != 0 {
		return fmt.Errorf("%w: file header of %d bytes", errs.ErrStructural, contentSize)
	}

	h.MajorBrand = r.ReadFixedString(majorBrandLen)
	h.MinorVersion = r.ReadFixedString(minorVersionLen)
	h.CompatibleBrands = nil
	for range (contentSize - fixed) / brandLen {
		h.CompatibleBrands = append(h.CompatibleBrands, r.ReadFixedString(brandLen))
	}

	return r.Err()
}

// File is a complete container: a header and one or more dataset groups.
type File struct {
	Header *FileHeader
	Groups []*DatasetGroup
}

// Group returns the dataset group with the given id.
func (f *File) Group(id uint8) (*DatasetGroup, bool) {
	for _, g := range f.Groups {
		if g.Header != nil && g.Header.GroupID == id {
			return g, true
		}
	}

	return nil, false
}
