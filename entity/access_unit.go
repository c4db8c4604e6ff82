package entity

import (
	"fmt"
	"math"

	"github.com/arloliu/mpegg/box"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/format"
	"github.com/arloliu/mpegg/internal/bitio"
	"github.com/arloliu/mpegg/payload"
	"github.com/arloliu/mpegg/signature"
)

// AccessUnitHeader is the auhd box opening an access unit. Which fields are
// encoded depends on the class of the access unit and on the header of the
// dataset the unit belongs to.
type AccessUnitHeader struct {
	ID             uint32
	NumBlocks      uint8
	ParameterSetID uint8
	Class          format.DataClass
	ReadsCount     uint32

	// Classes M and N only.
	MMThreshold uint16
	MMCount     uint32

	// Reference datasets only.
	RefSequence uint16
	RefStart    uint64
	RefEnd      uint64

	// Aligned classes of datasets without a master index table.
	SequenceID uint16
	Start      uint64
	End        uint64
	ExtStart   uint64 // multiple alignment datasets
	ExtEnd     uint64

	// Class U of datasets without a master index table, when the dataset
	// declares a signature base.
	Signatures []uint64

	dh *DatasetHeader
}

var (
	_ box.Entity   = (*AccessUnitHeader)(nil)
	_ box.Readable = (*AccessUnitHeader)(nil)
)

func (h *AccessUnitHeader) Key() box.Key { return box.KeyAccessUnitHeader }

func (h *AccessUnitHeader) dataset() *DatasetHeader {
	if h.dh == nil {
		return &DatasetHeader{MIT: true}
	}

	return h.dh
}

func (h *AccessUnitHeader) hasMismatches() bool {
	return h.Class == format.ClassM || h.Class == format.ClassN
}

// hasSignatures reports whether the signature list is encoded.
func (h *AccessUnitHeader) hasSignatures(dh *DatasetHeader) bool {
	return !dh.MIT && h.Class == format.ClassU && dh.MultipleSignatureBase != 0
}

func (h *AccessUnitHeader) sizeInBits() int64 {
	dh := h.dataset()
	pos := int64(dh.PosBits())

	bits := int64(32 + 8 + 8 + 4 + 32)
	if h.hasMismatches() {
		bits += 16 + 32
	}
	if dh.DatasetType == format.DatasetReference {
		bits += 16 + 2*pos
	}
	if !dh.MIT {
		switch {
		case h.Class != format.ClassU:
			bits += 16 + 2*pos
			if dh.MultipleAlignment {
				bits += 2 * pos
			}
		case h.hasSignatures(dh):
			bits += signature.IntegerListSizeInBits(h.Signatures, int(dh.USignatureSize), int(dh.MultipleSignatureBase))
		}
	}

	return bits
}

func (h *AccessUnitHeader) Size() (uint64, bool) {
	return uint64((h.sizeInBits() + 7) / 8), true //nolint:gosec
}

func (h *AccessUnitHeader) Write(w *bitio.Writer) error {
	if !h.Class.Valid() {
		return fmt.Errorf("%w: access unit %d class %d", errs.ErrUnknownVariant, h.ID, h.Class)
	}
	dh := h.dataset()
	pos := dh.PosBits()

	w.WriteU32(h.ID)
	w.WriteU8(h.NumBlocks)
	w.WriteU8(h.ParameterSetID)
	w.WriteBits(uint64(h.Class), 4)
	w.WriteU32(h.ReadsCount)
	if h.hasMismatches() {
		w.WriteU16(h.MMThreshold)
		w.WriteU32(h.MMCount)
	}
	if dh.DatasetType == format.DatasetReference {
		w.WriteU16(h.RefSequence)
		w.WriteChecked(h.RefStart, pos, "ref_start_position")
		w.WriteChecked(h.RefEnd, pos, "ref_end_position")
	}
	if !dh.MIT {
		switch {
		case h.Class != format.ClassU:
			w.WriteU16(h.SequenceID)
			w.WriteChecked(h.Start, pos, "au_start_position")
			w.WriteChecked(h.End, pos, "au_end_position")
			if dh.MultipleAlignment {
				w.WriteChecked(h.ExtStart, pos, "extended_au_start_position")
				w.WriteChecked(h.ExtEnd, pos, "extended_au_end_position")
			}
		case h.hasSignatures(dh):
			signature.WriteIntegerList(w, h.Signatures, int(dh.USignatureSize), int(dh.MultipleSignatureBase))
		}
	}
	w.Align()

	return w.Err()
}

func (h *AccessUnitHeader) ReadContent(r *bitio.Reader, _ uint64) error {
	dh := h.dataset()
	pos := dh.PosBits()

	h.ID = r.ReadU32()
	h.NumBlocks = r.ReadU8()
	h.ParameterSetID = r.ReadU8()
	h.Class = format.DataClass(r.ReadBits(4)) //nolint:gosec
	if r.Err() == nil && !h.Class.Valid() {
		return fmt.Errorf("%w: access unit %d class %d", errs.ErrUnknownVariant, h.ID, h.Class)
	}
	h.ReadsCount = r.ReadU32()
	if h.hasMismatches() {
		h.MMThreshold = r.ReadU16()
		h.MMCount = r.ReadU32()
	}
	if dh.DatasetType == format.DatasetReference {
		h.RefSequence = r.ReadU16()
		h.RefStart = r.ReadBits(pos)
		h.RefEnd = r.ReadBits(pos)
	}
	if !dh.MIT {
		switch {
		case h.Class != format.ClassU:
			h.SequenceID = r.ReadU16()
			h.Start = r.ReadBits(pos)
			h.End = r.ReadBits(pos)
			if dh.MultipleAlignment {
				h.ExtStart = r.ReadBits(pos)
				h.ExtEnd = r.ReadBits(pos)
			}
		case h.hasSignatures(dh):
			h.Signatures = signature.ReadIntegerList(r, int(dh.USignatureSize), int(dh.MultipleSignatureBase))
		}
	}
	r.Align()

	return r.Err()
}

const blockHeaderSize = 5

// Block is one descriptor payload carried inline by an access unit.
type Block struct {
	Descriptor format.DescriptorID
	Payload    payload.Payload
}

func (b Block) size() uint64 {
	return blockHeaderSize + uint64(b.Payload.Len()) //nolint:gosec
}

func (b Block) write(w *bitio.Writer) {
	if !b.Descriptor.Valid() {
		w.Fail(fmt.Errorf("%w: block descriptor %d", errs.ErrUnknownVariant, b.Descriptor))
		return
	}
	if b.Payload.Len() > math.MaxUint32 {
		w.Fail(fmt.Errorf("%w: %s block of %d bytes", errs.ErrInvalidValue, b.Descriptor, b.Payload.Len()))
		return
	}

	w.WriteBool(false) // reserved
	w.WriteBits(uint64(b.Descriptor), 7)
	w.WriteU32(uint32(b.Payload.Len())) //nolint:gosec
	w.WritePayload(b.Payload)
}

func readBlock(r *bitio.Reader) (Block, error) {
	r.ReadBool() // reserved
	b := Block{Descriptor: format.DescriptorID(r.ReadBits(7))} //nolint:gosec
	n := r.ReadU32()
	if err := r.Err(); err != nil {
		return Block{}, err
	}
	if !b.Descriptor.Valid() {
		return Block{}, fmt.Errorf("%w: block descriptor %d", errs.ErrUnknownVariant, b.Descriptor)
	}
	b.Payload = r.ReadPayload(int64(n))

	return b, r.Err()
}

// AccessUnit is an aucn box. Block-header datasets carry the descriptor
// blocks inline; columnar datasets keep only the header here and store the
// blocks in descriptor streams.
type AccessUnit struct {
	Header      *AccessUnitHeader
	Blocks      []Block
	Information *box.Raw
	Protection  *box.Raw

	dh  *DatasetHeader
	cfg *DecoderConfig
}

var (
	_ box.Entity   = (*AccessUnit)(nil)
	_ box.Readable = (*AccessUnit)(nil)
)

func newAccessUnit(dh *DatasetHeader, cfg *DecoderConfig) *AccessUnit {
	return &AccessUnit{dh: dh, cfg: cfg}
}

// Block returns the inline block of desc.
func (au *AccessUnit) Block(desc format.DescriptorID) (Block, error) {
	for _, b := range au.Blocks {
		if b.Descriptor == desc {
			return b, nil
		}
	}

	return Block{}, fmt.Errorf("%w: %s in access unit %d", errs.ErrBlockNotPresent, desc, au.Header.ID)
}

func (au *AccessUnit) blockHeader() bool {
	return au.dh != nil && au.dh.BlockHeader
}

// boundTo returns au laid out for dh. au itself is returned when it is
// already bound, otherwise a shallow copy.
func (au *AccessUnit) boundTo(dh *DatasetHeader) *AccessUnit {
	if au.dh == dh {
		return au
	}
	c := *au
	c.dh = dh

	return &c
}

// header returns the unit header bound to the dataset header of au.
func (au *AccessUnit) header() *AccessUnitHeader {
	if au.Header.dh == au.dh {
		return au.Header
	}
	h := *au.Header
	h.dh = au.dh

	return &h
}

func (au *AccessUnit) Key() box.Key { return box.KeyAccessUnit }

func (au *AccessUnit) Size() (uint64, bool) {
	if au.Header == nil {
		return 0, false
	}

	n, err := boxLength(au.header())
	if err != nil {
		return 0, false
	}
	for _, b := range au.Blocks {
		n += b.size()
	}
	if au.Information != nil {
		n += box.HeaderSize + uint64(len(au.Information.Data))
	}
	if au.Protection != nil {
		n += box.HeaderSize + uint64(len(au.Protection.Data))
	}

	return n, true
}

func (au *AccessUnit) Write(w *bitio.Writer) error {
	if au.Header == nil {
		return missing(box.KeyAccessUnit, box.KeyAccessUnitHeader)
	}
	if !au.blockHeader() && len(au.Blocks) > 0 {
		return fmt.Errorf("%w: access unit %d carries inline blocks in a columnar dataset", errs.ErrInvalidValue, au.Header.ID)
	}
	if au.blockHeader() && len(au.Blocks) != int(au.Header.NumBlocks) {
		return fmt.Errorf("%w: access unit %d declares %d blocks, has %d",
			errs.ErrInvalidValue, au.Header.ID, au.Header.NumBlocks, len(au.Blocks))
	}

	if err := box.WriteWithHeader(w, au.header()); err != nil {
		return err
	}
	for _, b := range au.Blocks {
		b.write(w)
	}
	for _, trailer := range []*box.Raw{au.Information, au.Protection} {
		if trailer == nil {
			continue
		}
		if err := box.WriteWithHeader(w, trailer); err != nil {
			return err
		}
	}

	return w.Err()
}

func (au *AccessUnit) ReadContent(r *bitio.Reader, _ uint64) error {
	cfg := au.cfg
	if cfg == nil {
		cfg = defaultDecoderConfig
	}

	h, err := box.Expect(r, box.KeyAccessUnitHeader)
	if err != nil {
		return err
	}
	au.Header = &AccessUnitHeader{dh: au.dh}
	if err := cfg.readChild(r, h, au.Header); err != nil {
		return err
	}

	au.Blocks = nil
	if au.blockHeader() {
		if !r.CheckCount(int64(au.Header.NumBlocks), 8*blockHeaderSize) {
			return r.Err()
		}
		for range au.Header.NumBlocks {
			b, err := readBlock(r)
			if err != nil {
				return fmt.Errorf("access unit %d: %w", au.Header.ID, err)
			}
			au.Blocks = append(au.Blocks, b)
		}
	}

	au.Information, au.Protection = nil, nil
	g := grammar{container: box.KeyAccessUnit}
	for {
		h, ok, err := nextHeader(r)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		raw := &box.Raw{BoxKey: h.Key}
		switch h.Key {
		case box.KeyAccessUnitInformation:
			err = g.advance(h.Key, 1, false)
			au.Information = raw
		case box.KeyAccessUnitProtection:
			err = g.advance(h.Key, 2, false)
			au.Protection = raw
		default:
			return unexpected(box.KeyAccessUnit, h)
		}
		if err != nil {
			return err
		}
		if err := cfg.readChild(r, h, raw); err != nil {
			return err
		}
	}
}
