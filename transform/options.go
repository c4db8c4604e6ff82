package transform

import (
	"fmt"

	"github.com/arloliu/mpegg/compress"
	"github.com/arloliu/mpegg/errs"
	"github.com/arloliu/mpegg/format"
	"github.com/arloliu/mpegg/internal/options"
)

// CoderConfig holds the settings shared by transform encoders and decoders.
type CoderConfig struct {
	backend     EntropyBackend
	compression format.CompressionType
}

func newCoderConfig(opts []Option) (*CoderConfig, error) {
	cfg := &CoderConfig{backend: BypassBackend{}, compression: format.CompressionNone}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}
	if cfg.compression != format.CompressionNone {
		codec, err := compress.GetCodec(cfg.compression)
		if err != nil {
			return nil, err
		}
		cfg.backend = CompressedBackend{Inner: cfg.backend, Codec: codec}
	}

	return cfg, nil
}

// Backend returns the entropy backend the coders will use.
func (c *CoderConfig) Backend() EntropyBackend {
	return c.backend
}

// Option configures a transform encoder or decoder.
type Option = options.Option[*CoderConfig]

// WithBackend selects the entropy backend. The default is BypassBackend.
func WithBackend(b EntropyBackend) Option {
	return options.New(func(c *CoderConfig) error {
		if b == nil {
			return fmt.Errorf("%w: nil entropy backend", errs.ErrInvalidValue)
		}
		c.backend = b

		return nil
	})
}

// WithCompression compresses every transformed stream with the built-in
// codec for ct, on top of the selected backend.
func WithCompression(ct format.CompressionType) Option {
	return options.New(func(c *CoderConfig) error {
		if _, err := compress.GetCodec(ct); err != nil {
			return fmt.Errorf("%w: %w", errs.ErrInvalidValue, err)
		}
		c.compression = ct

		return nil
	})
}
