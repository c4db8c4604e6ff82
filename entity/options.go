package entity

import (
	"fmt"
	"log/slog"

	"github.com/arloliu/mpegg/box"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/internal/options"
	"github.com/arloliu/mpegg/metrics"
)

// DecoderConfig holds the settings applied while parsing a container.
type DecoderConfig struct {
	logger  *slog.Logger
	limits  box.Limits
	metrics *metrics.Collector
	strict  bool
}

var defaultDecoderConfig = newDecoderConfig()

func newDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		logger: slog.New(slog.DiscardHandler),
		limits: box.DefaultLimits,
	}
}

// DecoderOption configures a Decoder.
type DecoderOption = options.Option[*DecoderConfig]

// WithLogger sets the logger receiving debug records about parsed boxes.
// The default discards everything.
func WithLogger(l *slog.Logger) DecoderOption {
	return options.New(func(c *DecoderConfig) error {
		if l == nil {
			return fmt.Errorf("%w: nil logger", errs.ErrInvalidValue)
		}
		c.logger = l

		return nil
	})
}

// WithLimits bounds the allocations driven by declared lengths and counts.
func WithLimits(l box.Limits) DecoderOption {
	return options.New(func(c *DecoderConfig) error {
		if l.MaxBytes < 0 || l.MaxCount < 0 {
			return fmt.Errorf("%w: negative limits %+v", errs.ErrInvalidValue, l)
		}
		c.limits = l

		return nil
	})
}

// WithMetrics records parse activity in col.
func WithMetrics(col *metrics.Collector) DecoderOption {
	return options.NoError(func(c *DecoderConfig) {
		c.metrics = col
	})
}

// WithStrictOrder verifies, for datasets whose header declares ordered
// blocks, that the master index table offsets really are ordered.
func WithStrictOrder(strict bool) DecoderOption {
	return options.NoError(func(c *DecoderConfig) {
		c.strict = strict
	})
}

// EncoderConfig holds the settings of an Encoder.
type EncoderConfig struct {
	logger *slog.Logger
}

// EncoderOption configures an Encoder.
type EncoderOption = options.Option[*EncoderConfig]

// WithEncoderLogger sets the encoder logger.
func WithEncoderLogger(l *slog.Logger) EncoderOption {
	return options.New(func(c *EncoderConfig) error {
		if l == nil {
			return fmt.Errorf("%w: nil logger", errs.ErrInvalidValue)
		}
		c.logger = l

		return nil
	})
}

// BuilderConfig holds the settings of a DatasetBuilder.
type BuilderConfig struct {
	logger    *slog.Logger
	dropEmpty bool
}

// BuilderOption configures a DatasetBuilder.
type BuilderOption = options.Option[*BuilderConfig]

// WithBuilderLogger sets the builder logger.
func WithBuilderLogger(l *slog.Logger) BuilderOption {
	return options.New(func(c *BuilderConfig) error {
		if l == nil {
			return fmt.Errorf("%w: nil logger", errs.ErrInvalidValue)
		}
		c.logger = l

		return nil
	})
}

// WithEmptyBlockAsAbsent controls whether empty descriptor blocks of
// block-header datasets are omitted (the default) or written as zero length
// blocks. Columnar datasets always record empty blocks as not present.
func WithEmptyBlockAsAbsent(absent bool) BuilderOption {
	return options.NoError(func(c *BuilderConfig) {
		c.dropEmpty = absent
	})
}
