package options

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type decodeConfig struct {
	maxCount int
	strict   bool
	name     string
}

func withMaxCount(n int) Option[*decodeConfig] {
	return New(func(c *decodeConfig) error {
		if n <= 0 {
			return errors.New("max count must be positive")
		}
		c.maxCount = n

		return nil
	})
}

func withStrict(strict bool) Option[*decodeConfig] {
	return NoError(func(c *decodeConfig) { c.strict = strict })
}

func withName(name string) Option[*decodeConfig] {
	return NoError(func(c *decodeConfig) { c.name = name })
}

func TestApply(t *testing.T) {
	t.Run("applies options in order", func(t *testing.T) {
		cfg := &decodeConfig{}
		err := Apply(cfg, withMaxCount(10), withName("a"), withName("b"), withStrict(true))
		require.NoError(t, err)
		require.Equal(t, 10, cfg.maxCount)
		require.Equal(t, "b", cfg.name)
		require.True(t, cfg.strict)
	})

	t.Run("stops at first error", func(t *testing.T) {
		cfg := &decodeConfig{}
		err := Apply(cfg, withName("first"), withMaxCount(-1), withName("second"))
		require.ErrorContains(t, err, "max count must be positive")
		require.Equal(t, "first", cfg.name)
	})

	t.Run("skips nil options", func(t *testing.T) {
		cfg := &decodeConfig{}
		require.NoError(t, Apply(cfg, nil, withStrict(true)))
		require.True(t, cfg.strict)
	})

	t.Run("empty", func(t *testing.T) {
		cfg := &decodeConfig{}
		require.NoError(t, Apply(cfg))
		require.Equal(t, decodeConfig{}, *cfg)
	})
}

func TestCompose(t *testing.T) {
	preset := Compose(withMaxCount(5), withStrict(true))

	cfg := &decodeConfig{}
	require.NoError(t, Apply[*decodeConfig](cfg, preset, withName("after")))
	require.Equal(t, decodeConfig{maxCount: 5, strict: true, name: "after"}, *cfg)

	failing := Compose(withMaxCount(0))
	require.Error(t, Apply[*decodeConfig](&decodeConfig{}, failing))
}

func TestGenericPrimitive(t *testing.T) {
	var n int
	require.NoError(t, Apply(&n, Option[*int](NoError(func(p *int) { *p = 42 }))))
	require.Equal(t, 42, n)
}
