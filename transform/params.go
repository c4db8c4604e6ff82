package transform

import (
	"fmt"

	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/format"
	"github.com/arloliu/mpegg/internal/bitio"
)

// EncodingModeCABAC is the only defined descriptor encoding mode.
const EncodingModeCABAC = 0

// SubsequenceConfiguration binds a coder configuration to a descriptor subsequence.
type SubsequenceConfiguration struct {
	ID     uint16 // u10
	Config Config
}

// DescriptorConfiguration lists the subsequence configurations of one descriptor.
//
// Token type descriptors (MSAR and RNAME) use a different layout: a run
// length guard followed by exactly two configurations, order 0 and order 1,
// whose subsequence ids are implied by position.
type DescriptorConfiguration struct {
	Subsequences []SubsequenceConfiguration
	TokenGuard   uint8
}

// Subsequence returns the configuration of subsequence id.
func (d DescriptorConfiguration) Subsequence(id uint16) (Config, error) {
	for _, s := range d.Subsequences {
		if s.ID == id {
			return s.Config, nil
		}
	}

	return nil, fmt.Errorf("%w: subsequence %d", errs.ErrDescriptorNotFound, id)
}

// IsTokenType reports whether desc uses the token type configuration layout.
func IsTokenType(desc format.DescriptorID) bool {
	return desc == format.DescMSAR || desc == format.DescRNAME
}

func (d DescriptorConfiguration) sizeInBits(tokenType bool) int64 {
	var n int64
	if tokenType {
		n = 8
		for _, s := range d.Subsequences {
			n += ConfigSizeInBits(s.Config)
		}

		return n
	}
	n = 8
	for _, s := range d.Subsequences {
		n += 10 + ConfigSizeInBits(s.Config)
	}

	return n
}

func (d DescriptorConfiguration) write(w *bitio.Writer, tokenType bool) {
	if tokenType {
		if len(d.Subsequences) != 2 {
			w.Fail(fmt.Errorf("%w: token type configuration with %d subsequences", errs.ErrInvalidValue, len(d.Subsequences)))
			return
		}
		w.WriteU8(d.TokenGuard)
		WriteConfig(w, d.Subsequences[0].Config)
		WriteConfig(w, d.Subsequences[1].Config)

		return
	}

	if len(d.Subsequences) == 0 || len(d.Subsequences) > 256 {
		w.Fail(fmt.Errorf("%w: descriptor with %d subsequences", errs.ErrInvalidValue, len(d.Subsequences)))
		return
	}
	w.WriteU8(uint8(len(d.Subsequences) - 1)) //nolint:gosec
	for _, s := range d.Subsequences {
		w.WriteChecked(uint64(s.ID), 10, "descriptor_subsequence_ID")
		WriteConfig(w, s.Config)
	}
}

func readDescriptorConfiguration(r *bitio.Reader, tokenType bool) (DescriptorConfiguration, error) {
	var d DescriptorConfiguration
	if tokenType {
		d.TokenGuard = r.ReadU8()
		for i := range uint16(2) {
			cfg, err := ReadConfig(r)
			if err != nil {
				return d, err
			}
			d.Subsequences = append(d.Subsequences, SubsequenceConfiguration{ID: i, Config: cfg})
		}

		return d, nil
	}

	n := int(r.ReadU8()) + 1
	d.Subsequences = make([]SubsequenceConfiguration, 0, n)
	for range n {
		id := uint16(r.ReadBits(10)) //nolint:gosec
		cfg, err := ReadConfig(r)
		if err != nil {
			return d, fmt.Errorf("subsequence %d: %w", id, err)
		}
		d.Subsequences = append(d.Subsequences, SubsequenceConfiguration{ID: id, Config: cfg})
	}

	return d, r.Err()
}

// QVParameters is the per-class quality value coding setup.
type QVParameters struct {
	CodingMode uint8 // u4; mode 1 selects a preset codebook
	PresetID   uint8 // u4
	Reverse    bool
}

// EncodingParameters is the parameter block of a parameter set: dataset
// shape, one descriptor configuration per descriptor (or per descriptor and
// class), read groups and quality value setup.
type EncodingParameters struct {
	DatasetType           format.DatasetType
	Alphabet              format.AlphabetID
	ReadLength            uint32 // u24
	TemplateSegments      uint8  // 1..4
	MaxAUDataUnitSize     uint32 // u29
	Pos40Bits             bool
	QVDepth               uint8 // u3
	ASDepth               uint8 // u3
	Classes               []format.DataClass
	Descriptors           [format.NumDescriptors][]DescriptorConfiguration
	ReadGroups            []string
	MultipleAlignments    bool
	SplicedReads          bool
	MultipleSignatureBase uint32 // u31
	USignatureSize        uint8  // u6, present when MultipleSignatureBase > 0
	QV                    []QVParameters
}

// ClassSpecific reports whether desc carries one configuration per class.
func (p *EncodingParameters) ClassSpecific(desc format.DescriptorID) bool {
	return len(p.Descriptors[desc]) != 1
}

// ClassIndex returns the position of class in the class list.
func (p *EncodingParameters) ClassIndex(class format.DataClass) (int, error) {
	for i, c := range p.Classes {
		if c == class {
			return i, nil
		}
	}

	return 0, fmt.Errorf("%w: %s", errs.ErrDataClassNotFound, class)
}

// Descriptor returns the configuration of desc for class.
func (p *EncodingParameters) Descriptor(desc format.DescriptorID, class format.DataClass) (DescriptorConfiguration, error) {
	if !desc.Valid() {
		return DescriptorConfiguration{}, fmt.Errorf("%w: descriptor %d", errs.ErrDescriptorNotFound, desc)
	}
	cfgs := p.Descriptors[desc]
	if len(cfgs) == 0 {
		return DescriptorConfiguration{}, fmt.Errorf("%w: %s has no configuration", errs.ErrDescriptorNotFound, desc)
	}
	if len(cfgs) == 1 {
		return cfgs[0], nil
	}
	idx, err := p.ClassIndex(class)
	if err != nil {
		return DescriptorConfiguration{}, err
	}

	return cfgs[idx], nil
}

// Validate checks counts and ranges that the layout cannot represent.
func (p *EncodingParameters) Validate() error {
	switch {
	case !p.DatasetType.Valid():
		return fmt.Errorf("%w: dataset type %d", errs.ErrUnknownVariant, p.DatasetType)
	case !p.Alphabet.Valid():
		return fmt.Errorf("%w: alphabet %d", errs.ErrUnknownVariant, p.Alphabet)
	case p.TemplateSegments < 1 || p.TemplateSegments > 4:
		return fmt.Errorf("%w: %d template segments", errs.ErrInvalidValue, p.TemplateSegments)
	case len(p.Classes) > 15:
		return fmt.Errorf("%w: %d classes", errs.ErrInvalidValue, len(p.Classes))
	case len(p.QV) != len(p.Classes):
		return fmt.Errorf("%w: %d quality value entries for %d classes", errs.ErrInvalidValue, len(p.QV), len(p.Classes))
	case len(p.ReadGroups) > 0xFFFF:
		return fmt.Errorf("%w: %d read groups", errs.ErrInvalidValue, len(p.ReadGroups))
	}
	for d, cfgs := range p.Descriptors {
		if len(cfgs) != 1 && len(cfgs) != len(p.Classes) {
			return fmt.Errorf("%w: %s has %d configurations for %d classes",
				errs.ErrInvalidValue, format.DescriptorID(d), len(cfgs), len(p.Classes)) //nolint:gosec
		}
	}

	return nil
}

// Size returns the serialized size in bytes.
func (p *EncodingParameters) Size() int64 {
	n := int64(4 + 8 + 24 + 2 + 6 + 29 + 1 + 3 + 3 + 4)
	n += 4 * int64(len(p.Classes))
	for d, cfgs := range p.Descriptors {
		n++
		tokenType := IsTokenType(format.DescriptorID(d)) //nolint:gosec
		for _, cfg := range cfgs {
			n += 8 + 8 + cfg.sizeInBits(tokenType)
		}
	}
	n += 16
	for _, g := range p.ReadGroups {
		n += 8 * int64(len(g)+1)
	}
	n += 1 + 1 + 31
	if p.MultipleSignatureBase > 0 {
		n += 6
	}
	for _, qv := range p.QV {
		n += 4
		if qv.CodingMode == 1 {
			n += 1 + 4
		}
		n++
	}
	n++

	return (n + 7) / 8
}

// Write serializes the parameter block and aligns to a byte.
func (p *EncodingParameters) Write(w *bitio.Writer) {
	if err := p.Validate(); err != nil {
		w.Fail(err)
		return
	}
	w.WriteBits(uint64(p.DatasetType), 4)
	w.WriteU8(uint8(p.Alphabet))
	w.WriteChecked(uint64(p.ReadLength), 24, "read_length")
	w.WriteBits(uint64(p.TemplateSegments-1), 2)
	w.WriteBits(0, 6)
	w.WriteChecked(uint64(p.MaxAUDataUnitSize), 29, "max_au_data_unit_size")
	w.WriteBool(p.Pos40Bits)
	w.WriteChecked(uint64(p.QVDepth), 3, "qv_depth")
	w.WriteChecked(uint64(p.ASDepth), 3, "as_depth")
	w.WriteBits(uint64(len(p.Classes)), 4)
	for _, c := range p.Classes {
		w.WriteChecked(uint64(c), 4, "clid")
	}
	for d, cfgs := range p.Descriptors {
		tokenType := IsTokenType(format.DescriptorID(d)) //nolint:gosec
		w.WriteBool(len(cfgs) != 1)
		for _, cfg := range cfgs {
			w.WriteU8(0) // dec_cfg_preset
			w.WriteU8(EncodingModeCABAC)
			cfg.write(w, tokenType)
		}
	}
	w.WriteU16(uint16(len(p.ReadGroups))) //nolint:gosec
	for _, g := range p.ReadGroups {
		w.WriteString(g)
	}
	w.WriteBool(p.MultipleAlignments)
	w.WriteBool(p.SplicedReads)
	w.WriteChecked(uint64(p.MultipleSignatureBase), 31, "multiple_signature_base")
	if p.MultipleSignatureBase > 0 {
		w.WriteChecked(uint64(p.USignatureSize), 6, "U_signature_size")
	}
	for _, qv := range p.QV {
		w.WriteChecked(uint64(qv.CodingMode), 4, "qv_coding_mode")
		if qv.CodingMode == 1 {
			w.WriteBool(false) // qvps_flag: presets only
			w.WriteChecked(uint64(qv.PresetID), 4, "qvps_preset_ID")
		}
		w.WriteBool(qv.Reverse)
	}
	w.WriteBool(false) // crps_flag
	w.Align()
}

// ReadEncodingParameters parses a parameter block. Custom quality value
// parameter sets and computed reference parameters are reported as
// ErrUnsupportedPath.
func ReadEncodingParameters(r *bitio.Reader) (*EncodingParameters, error) {
	p := &EncodingParameters{}
	p.DatasetType = format.DatasetType(r.ReadBits(4)) //nolint:gosec
	p.Alphabet = format.AlphabetID(r.ReadU8())
	p.ReadLength = uint32(r.ReadBits(24))         //nolint:gosec
	p.TemplateSegments = uint8(r.ReadBits(2)) + 1 //nolint:gosec
	r.ReadBits(6)                                 // reserved
	p.MaxAUDataUnitSize = uint32(r.ReadBits(29))  //nolint:gosec
	p.Pos40Bits = r.ReadBool()
	p.QVDepth = uint8(r.ReadBits(3)) //nolint:gosec
	p.ASDepth = uint8(r.ReadBits(3)) //nolint:gosec

	numClasses := int(r.ReadBits(4))
	p.Classes = make([]format.DataClass, numClasses)
	for i := range p.Classes {
		p.Classes[i] = format.DataClass(r.ReadBits(4)) //nolint:gosec
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	for d := range p.Descriptors {
		desc := format.DescriptorID(d) //nolint:gosec
		n := 1
		if r.ReadBool() {
			n = numClasses
		}
		p.Descriptors[d] = make([]DescriptorConfiguration, n)
		for i := range n {
			if preset := r.ReadU8(); preset != 0 {
				return nil, fmt.Errorf("%w: %s decoder configuration preset %d", errs.ErrUnsupportedPath, desc, preset)
			}
			if mode := r.ReadU8(); mode != EncodingModeCABAC {
				return nil, fmt.Errorf("%w: %s encoding mode %d", errs.ErrUnknownVariant, desc, mode)
			}
			cfg, err := readDescriptorConfiguration(r, IsTokenType(desc))
			if err != nil {
				return nil, fmt.Errorf("descriptor %s: %w", desc, err)
			}
			p.Descriptors[d][i] = cfg
		}
	}

	numGroups := int64(r.ReadU16())
	if !r.CheckCount(numGroups, 8) {
		return nil, r.Err()
	}
	p.ReadGroups = make([]string, numGroups)
	for i := range p.ReadGroups {
		p.ReadGroups[i] = r.ReadString()
	}

	p.MultipleAlignments = r.ReadBool()
	p.SplicedReads = r.ReadBool()
	p.MultipleSignatureBase = uint32(r.ReadBits(31)) //nolint:gosec
	if p.MultipleSignatureBase > 0 {
		p.USignatureSize = uint8(r.ReadBits(6)) //nolint:gosec
	}

	p.QV = make([]QVParameters, numClasses)
	for i := range p.QV {
		qv := &p.QV[i]
		qv.CodingMode = uint8(r.ReadBits(4)) //nolint:gosec
		if qv.CodingMode == 1 {
			if r.ReadBool() {
				return nil, fmt.Errorf("%w: custom quality value parameter set", errs.ErrUnsupportedPath)
			}
			qv.PresetID = uint8(r.ReadBits(4)) //nolint:gosec
		}
		qv.Reverse = r.ReadBool()
	}
	if r.ReadBool() {
		return nil, fmt.Errorf("%w: computed reference parameters", errs.ErrUnsupportedPath)
	}
	r.Align()

	if err := r.Err(); err != nil {
		return nil, err
	}

	return p, nil
}
