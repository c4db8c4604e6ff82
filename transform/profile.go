package transform

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/format"
)

// validate is shared by all profile loads; it is safe for concurrent use.
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}

		return name
	})
	_ = validate.RegisterValidation("descriptor", func(fl validator.FieldLevel) bool {
		_, ok := format.ParseDescriptorID(fl.Field().String())
		return ok
	})
	_ = validate.RegisterValidation("dataclass", func(fl validator.FieldLevel) bool {
		_, ok := format.ParseDataClass(fl.Field().String())
		return ok
	})
	_ = validate.RegisterValidation("binarization", func(fl validator.FieldLevel) bool {
		_, ok := ParseBinarizationID(fl.Field().String())
		return ok
	})
}

// Profile is a YAML encoding profile. Descriptors not listed use
// DefaultDescriptorConfiguration.
type Profile struct {
	DatasetType           string                       `yaml:"dataset_type" validate:"required,oneof=non_aligned aligned reference"`
	Alphabet              string                       `yaml:"alphabet" validate:"required,oneof=DNA IUPAC"`
	ReadLength            uint32                       `yaml:"read_length" validate:"max=16777215"`
	TemplateSegments      uint8                        `yaml:"template_segments" validate:"min=1,max=4"`
	MaxAUDataUnitSize     uint32                       `yaml:"max_au_data_unit_size" validate:"max=536870911"`
	Pos40Bits             bool                         `yaml:"pos_40_bits"`
	QVDepth               uint8                        `yaml:"qv_depth" validate:"max=7"`
	ASDepth               uint8                        `yaml:"as_depth" validate:"max=7"`
	Classes               []string                     `yaml:"classes" validate:"required,min=1,max=15,unique,dive,dataclass"`
	ReadGroups            []string                     `yaml:"read_groups" validate:"max=65535"`
	MultipleAlignments    bool                         `yaml:"multiple_alignments"`
	SplicedReads          bool                         `yaml:"spliced_reads"`
	MultipleSignatureBase uint32                       `yaml:"multiple_signature_base" validate:"max=2147483647"`
	USignatureSize        uint8                        `yaml:"u_signature_size" validate:"max=63"`
	QVPreset              uint8                        `yaml:"qv_preset" validate:"max=15"`
	QVReverse             bool                         `yaml:"qv_reverse"`
	Descriptors           map[string]DescriptorProfile `yaml:"descriptors" validate:"dive,keys,descriptor,endkeys"`
}

// DescriptorProfile configures the subsequences of one descriptor.
type DescriptorProfile struct {
	TokenGuard   uint8                `yaml:"token_guard"`
	Subsequences []SubsequenceProfile `yaml:"subsequences" validate:"required,min=1,max=256,dive"`
}

// SubsequenceProfile configures one subsequence transform.
type SubsequenceProfile struct {
	ID         uint16          `yaml:"id" validate:"max=1023"`
	Transform  string          `yaml:"transform" validate:"required,oneof=none equality match rle rle_qv merge"`
	RLEGuard   uint8           `yaml:"rle_guard"`
	BufferSize uint16          `yaml:"buffer_size"`
	ShiftSizes []uint8         `yaml:"shift_sizes" validate:"dive,max=31"`
	Streams    []StreamProfile `yaml:"streams" validate:"required,min=1,max=15,dive"`
}

// StreamProfile is the entropy-coder configuration of one transformed stream.
type StreamProfile struct {
	Binarization     string  `yaml:"binarization" validate:"required,binarization"`
	CMax             uint8   `yaml:"cmax"`
	SplitUnitSize    uint8   `yaml:"split_unit_size" validate:"max=15"`
	OutputSymbolSize uint8   `yaml:"output_symbol_size" validate:"min=1,max=32"`
	CodingSubsymSize uint8   `yaml:"coding_subsym_size" validate:"min=1,ltefield=OutputSymbolSize"`
	CodingOrder      uint8   `yaml:"coding_order" validate:"max=2"`
	SubsymTransform  string  `yaml:"subsym_transform" validate:"omitempty,oneof=none lut diff"`
	Bypass           bool    `yaml:"bypass"`
	Adaptive         bool    `yaml:"adaptive"`
	ContextInit      []uint8 `yaml:"context_init" validate:"max=65535,dive,max=127"`
}

// LoadProfile decodes and validates a YAML profile. Unknown keys are rejected.
func LoadProfile(r io.Reader) (*Profile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var p Profile
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty profile", errs.ErrInvalidValue)
		}

		return nil, fmt.Errorf("%w: parse profile: %w", errs.ErrInvalidValue, err)
	}
	if err := validate.Struct(&p); err != nil {
		return nil, formatValidationError(err)
	}

	return &p, nil
}

// formatValidationError reports the first failed constraint with its field path.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return fmt.Errorf("%w: %w", errs.ErrInvalidValue, err)
	}

	e := validationErrs[0]
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%w: %s is required", errs.ErrInvalidValue, field)
	case "min":
		return fmt.Errorf("%w: %s must be at least %s", errs.ErrInvalidValue, field, e.Param())
	case "max":
		return fmt.Errorf("%w: %s must not exceed %s", errs.ErrInvalidValue, field, e.Param())
	case "oneof":
		return fmt.Errorf("%w: %s must be one of [%s]", errs.ErrInvalidValue, field, e.Param())
	case "ltefield":
		return fmt.Errorf("%w: %s must not exceed %s", errs.ErrInvalidValue, field, e.Param())
	case "descriptor", "dataclass", "binarization":
		return fmt.Errorf("%w: %s: unknown %s %q", errs.ErrInvalidValue, field, e.Tag(), e.Value())
	default:
		return fmt.Errorf("%w: %s: validation failed (%s)", errs.ErrInvalidValue, field, e.Tag())
	}
}

var datasetTypes = map[string]format.DatasetType{
	"non_aligned": format.DatasetNonAligned,
	"aligned":     format.DatasetAligned,
	"reference":   format.DatasetReference,
}

var subsymTransforms = map[string]SubsymTransform{
	"":     SubsymNone,
	"none": SubsymNone,
	"lut":  SubsymLUT,
	"diff": SubsymDiff,
}

// EncodingParameters compiles the profile into a parameter block.
func (p *Profile) EncodingParameters() (*EncodingParameters, error) {
	ep := &EncodingParameters{
		DatasetType:           datasetTypes[p.DatasetType],
		ReadLength:            p.ReadLength,
		TemplateSegments:      p.TemplateSegments,
		MaxAUDataUnitSize:     p.MaxAUDataUnitSize,
		Pos40Bits:             p.Pos40Bits,
		QVDepth:               p.QVDepth,
		ASDepth:               p.ASDepth,
		ReadGroups:            p.ReadGroups,
		MultipleAlignments:    p.MultipleAlignments,
		SplicedReads:          p.SplicedReads,
		MultipleSignatureBase: p.MultipleSignatureBase,
		USignatureSize:        p.USignatureSize,
	}
	if p.Alphabet == "IUPAC" {
		ep.Alphabet = format.AlphabetIUPAC
	}

	for i, g := range p.ReadGroups {
		if strings.IndexByte(g, 0) >= 0 {
			return nil, fmt.Errorf("%w: read group %d contains a NUL byte", errs.ErrInvalidValue, i)
		}
	}

	for _, name := range p.Classes {
		c, ok := format.ParseDataClass(name)
		if !ok {
			return nil, fmt.Errorf("%w: data class %q", errs.ErrInvalidValue, name)
		}
		ep.Classes = append(ep.Classes, c)
		ep.QV = append(ep.QV, QVParameters{CodingMode: 1, PresetID: p.QVPreset, Reverse: p.QVReverse})
	}

	for d := range ep.Descriptors {
		desc := format.DescriptorID(d) //nolint:gosec
		dp, ok := p.Descriptors[desc.String()]
		if !ok {
			ep.Descriptors[d] = []DescriptorConfiguration{DefaultDescriptorConfiguration(desc)}
			continue
		}
		cfg, err := dp.compile(desc)
		if err != nil {
			return nil, fmt.Errorf("descriptor %s: %w", desc, err)
		}
		ep.Descriptors[d] = []DescriptorConfiguration{cfg}
	}

	if err := ep.Validate(); err != nil {
		return nil, err
	}

	return ep, nil
}

func (dp DescriptorProfile) compile(desc format.DescriptorID) (DescriptorConfiguration, error) {
	d := DescriptorConfiguration{TokenGuard: dp.TokenGuard}
	if IsTokenType(desc) && len(dp.Subsequences) != 2 {
		return d, fmt.Errorf("%w: token type descriptor needs 2 subsequences, got %d", errs.ErrInvalidValue, len(dp.Subsequences))
	}

	seen := make(map[uint16]struct{}, len(dp.Subsequences))
	for i, sp := range dp.Subsequences {
		id := sp.ID
		if IsTokenType(desc) {
			id = uint16(i) //nolint:gosec
		}
		if _, dup := seen[id]; dup {
			return d, fmt.Errorf("%w: duplicate subsequence %d", errs.ErrInvalidValue, id)
		}
		seen[id] = struct{}{}

		cfg, err := sp.compile()
		if err != nil {
			return d, fmt.Errorf("subsequence %d: %w", id, err)
		}
		d.Subsequences = append(d.Subsequences, SubsequenceConfiguration{ID: id, Config: cfg})
	}

	return d, nil
}

func (sp SubsequenceProfile) compile() (Config, error) {
	streams := make([]EncodingConfiguration, len(sp.Streams))
	for i, s := range sp.Streams {
		streams[i] = s.compile()
		if err := streams[i].Validate(); err != nil {
			return nil, fmt.Errorf("stream %d: %w", i, err)
		}
	}

	want := map[string]int{"none": 1, "equality": 2, "match": 3, "rle": 2, "rle_qv": 1}
	if n, ok := want[sp.Transform]; ok && n != len(streams) {
		return nil, fmt.Errorf("%w: %s transform takes %d streams, got %d", errs.ErrInvalidValue, sp.Transform, n, len(streams))
	}
	if (sp.Transform == "rle" || sp.Transform == "rle_qv") && sp.RLEGuard == 0 {
		return nil, fmt.Errorf("%w: rle_guard must be in 1..255", errs.ErrInvalidValue)
	}

	switch sp.Transform {
	case "none":
		return NoTransform{Coding: streams[0]}, nil
	case "equality":
		return EqualityCoding{Flags: streams[0], Symbols: streams[1]}, nil
	case "match":
		if sp.BufferSize == 0 {
			return nil, fmt.Errorf("%w: buffer_size must be positive", errs.ErrInvalidValue)
		}

		return MatchCoding{BufferSize: sp.BufferSize, Pointers: streams[0], Lengths: streams[1], Symbols: streams[2]}, nil
	case "rle":
		return RLECoding{Guard: sp.RLEGuard, Lengths: streams[0], Symbols: streams[1]}, nil
	case "rle_qv":
		return RLEQVCoding{Guard: sp.RLEGuard, Coding: streams[0]}, nil
	case "merge":
		if len(sp.ShiftSizes) != len(streams) {
			return nil, fmt.Errorf("%w: merge needs one shift size per stream", errs.ErrInvalidValue)
		}

		return MergeCoding{ShiftSizes: sp.ShiftSizes, Codings: streams}, nil
	default:
		return nil, fmt.Errorf("%w: transform %q", errs.ErrUnknownVariant, sp.Transform)
	}
}

func (s StreamProfile) compile() EncodingConfiguration {
	id, _ := ParseBinarizationID(s.Binarization)
	cfg := EncodingConfiguration{
		Symbol: SymbolEncoding{
			SubsymTransform:  subsymTransforms[s.SubsymTransform],
			OutputSymbolSize: s.OutputSymbolSize,
			CodingSubsymSize: s.CodingSubsymSize,
			CodingOrder:      s.CodingOrder,
		},
		Binarization: Binarization{ID: id, CMax: s.CMax, SplitUnitSize: s.SplitUnitSize},
	}
	if !s.Bypass {
		cfg.Context = &ContextParameters{Adaptive: s.Adaptive, InitValues: s.ContextInit}
	}

	return cfg
}
