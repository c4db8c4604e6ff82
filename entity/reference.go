package entity

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/arloliu/mpegg/box"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/format"
	"github.com/arloliu/mpegg/internal/bitio"
)

// Reference is a refr box describing the reference genome a dataset
// group aligns against. Exactly one of Internal and External is set.
type Reference struct {
	GroupID      uint8
	ReferenceID  uint8
	Name         string
	MajorVersion uint16
	MinorVersion uint16
	PatchVersion uint16
	Sequences    []string

	Internal *InternalLocation
	External *ExternalLocation
}

// InternalLocation points at a reference dataset in the same file.
type InternalLocation struct {
	GroupID   uint8
	DatasetID uint16
}

// ExternalLocation points at a reference outside the file.
type ExternalLocation struct {
	URI      string
	Checksum format.ChecksumAlgorithm
	Type     format.ReferenceType

	// ReferenceMPEGG only.
	GroupID   uint8
	DatasetID uint16

	// One digest for ReferenceMPEGG, one per sequence otherwise.
	Checksums [][]byte
}

var (
	_ box.Entity   = (*Reference)(nil)
	_ box.Readable = (*Reference)(nil)
)

func (ref *Reference) Key() box.Key { return box.KeyReference }

// Size is not known ahead of encoding: the box carries variable length
// strings and a location whose layout depends on the reference type.
func (ref *Reference) Size() (uint64, bool) { return 0, false }

func (ref *Reference) validate() error {
	if (ref.Internal == nil) == (ref.External == nil) {
		return fmt.Errorf("%w: reference %d needs exactly one location", errs.ErrInvalidValue, ref.ReferenceID)
	}
	if len(ref.Sequences) > math.MaxUint16 {
		return fmt.Errorf("%w: %d reference sequences", errs.ErrInvalidValue, len(ref.Sequences))
	}
	for _, s := range append([]string{ref.Name}, ref.Sequences...) {
		if strings.IndexByte(s, 0) >= 0 {
			return fmt.Errorf("%w: reference string %q contains NUL", errs.ErrInvalidValue, s)
		}
	}

	ext := ref.External
	if ext == nil {
		return nil
	}
	if !ext.Checksum.Valid() || !ext.Type.Valid() {
		return fmt.Errorf("%w: checksum %d reference type %d", errs.ErrUnknownVariant, ext.Checksum, ext.Type)
	}
	if strings.IndexByte(ext.URI, 0) >= 0 {
		return fmt.Errorf("%w: reference URI contains NUL", errs.ErrInvalidValue)
	}
	if want := ext.numChecksums(len(ref.Sequences)); len(ext.Checksums) != want {
		return fmt.Errorf("%w: %s reference has %d checksums, want %d", errs.ErrInvalidValue, ext.Type, len(ext.Checksums), want)
	}
	for _, sum := range ext.Checksums {
		if len(sum) != ext.Checksum.Len() {
			return fmt.Errorf("%w: %d byte %s checksum", errs.ErrInvalidValue, len(sum), ext.Checksum)
		}
	}

	return nil
}

func (ext *ExternalLocation) numChecksums(sequences int) int {
	if ext.Type == format.ReferenceMPEGG {
		return 1
	}

	return sequences
}

// Verify reports whether data matches the checksum of sequence seq.
// MPEG-G references carry a single checksum, which is checked for any seq.
func (ext *ExternalLocation) Verify(seq int, data []byte) bool {
	if ext.Type == format.ReferenceMPEGG {
		seq = 0
	}
	if seq < 0 || seq >= len(ext.Checksums) {
		return false
	}

	return bytes.Equal(ext.Checksum.Sum(data), ext.Checksums[seq])
}

func (ref *Reference) Write(w *bitio.Writer) error {
	if err := ref.validate(); err != nil {
		return err
	}

	w.WriteU8(ref.GroupID)
	w.WriteU8(ref.ReferenceID)
	w.WriteString(ref.Name)
	w.WriteU16(ref.MajorVersion)
	w.WriteU16(ref.MinorVersion)
	w.WriteU16(ref.PatchVersion)
	w.WriteU16(uint16(len(ref.Sequences))) //nolint:gosec
	for _, s := range ref.Sequences {
		w.WriteString(s)
	}

	w.WriteBits(0, 7)
	w.WriteBool(ref.External != nil)
	if loc := ref.Internal; loc != nil {
		w.WriteU8(loc.GroupID)
		w.WriteU16(loc.DatasetID)

		return w.Err()
	}

	ext := ref.External
	w.WriteString(ext.URI)
	w.WriteU8(uint8(ext.Checksum))
	w.WriteU8(uint8(ext.Type))
	if ext.Type == format.ReferenceMPEGG {
		w.WriteU8(ext.GroupID)
		w.WriteU16(ext.DatasetID)
	}
	for _, sum := range ext.Checksums {
		w.WriteBytes(sum)
	}

	return w.Err()
}

func (ref *Reference) ReadContent(r *bitio.Reader, _ uint64) error {
	ref.GroupID = r.ReadU8()
	ref.ReferenceID = r.ReadU8()
	ref.Name = r.ReadString()
	ref.MajorVersion = r.ReadU16()
	ref.MinorVersion = r.ReadU16()
	ref.PatchVersion = r.ReadU16()

	n := int64(r.ReadU16())
	if !r.CheckCount(n, 8) {
		return r.Err()
	}
	ref.Sequences = nil
	for range n {
		ref.Sequences = append(ref.Sequences, r.ReadString())
	}

	r.ReadBits(7)
	if !r.ReadBool() {
		ref.Internal = &InternalLocation{GroupID: r.ReadU8(), DatasetID: r.ReadU16()}
		ref.External = nil

		return r.Err()
	}

	ext := &ExternalLocation{URI: r.ReadString()}
	ext.Checksum = format.ChecksumAlgorithm(r.ReadU8())
	ext.Type = format.ReferenceType(r.ReadU8())
	if err := r.Err(); err != nil {
		return err
	}
	if !ext.Checksum.Valid() {
		return fmt.Errorf("%w: checksum algorithm %d", errs.ErrUnknownVariant, ext.Checksum)
	}
	if !ext.Type.Valid() {
		return fmt.Errorf("%w: reference type %d", errs.ErrUnknownVariant, ext.Type)
	}
	if ext.Type == format.ReferenceMPEGG {
		ext.GroupID = r.ReadU8()
		ext.DatasetID = r.ReadU16()
	}

	count := ext.numChecksums(len(ref.Sequences))
	if !r.CheckCount(int64(count), int64(8*ext.Checksum.Len())) {
		return r.Err()
	}
	for range count {
		ext.Checksums = append(ext.Checksums, r.ReadBytes(int64(ext.Checksum.Len())))
	}
	ref.External = ext
	ref.Internal = nil

	return r.Err()
}

// ReferenceMetadata is the rfmd box of a dataset group.
type ReferenceMetadata struct {
	GroupID     uint8
	ReferenceID uint8
	Value       []byte
}

var (
	_ box.Entity   = (*ReferenceMetadata)(nil)
	_ box.Readable = (*ReferenceMetadata)(nil)
)

func (m *ReferenceMetadata) Key() box.Key { return box.KeyReferenceMetadata }

func (m *ReferenceMetadata) Size() (uint64, bool) { return 2 + uint64(len(m.Value)), true }

func (m *ReferenceMetadata) Write(w *bitio.Writer) error {
	w.WriteU8(m.GroupID)
	w.WriteU8(m.ReferenceID)
	w.WriteBytes(m.Value)

	return w.Err()
}

func (m *ReferenceMetadata) ReadContent(r *bitio.Reader, contentSize uint64) error {
	if contentSize < 2 {
		return fmt.Errorf("%w: reference metadata of %d bytes", errs.ErrStructural, contentSize)
	}
	m.GroupID = r.ReadU8()
	m.ReferenceID = r.ReadU8()
	m.Value = r.ReadBytes(int64(contentSize - 2)) //nolint:gosec

	return r.Err()
}
