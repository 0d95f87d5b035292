package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagkit/pkg/config"
)

type testConfig struct {
	Name    string        `env:"FLAGKIT_TEST_NAME" envDefault:"flagkit"`
	Workers int           `env:"FLAGKIT_TEST_WORKERS" envDefault:"4"`
	TTL     time.Duration `env:"FLAGKIT_TEST_TTL" envDefault:"1m"`
}

type requiredConfig struct {
	Secret string `env:"FLAGKIT_TEST_SECRET,required"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults apply", func(t *testing.T) {
		cfg, err := config.Load[testConfig]()
		require.NoError(t, err)
		assert.Equal(t, "flagkit", cfg.Name)
		assert.Equal(t, 4, cfg.Workers)
		assert.Equal(t, time.Minute, cfg.TTL)
	})

	t.Run("environment wins over defaults", func(t *testing.T) {
		t.Setenv("FLAGKIT_TEST_NAME", "custom")
		t.Setenv("FLAGKIT_TEST_TTL", "30s")

		cfg, err := config.Load[testConfig]()
		require.NoError(t, err)
		assert.Equal(t, "custom", cfg.Name)
		assert.Equal(t, 30*time.Second, cfg.TTL)
	})

	t.Run("missing required variable fails", func(t *testing.T) {
		_, err := config.Load[requiredConfig]()
		assert.ErrorIs(t, err, config.ErrParseFailed)
	})

	t.Run("unparsable value fails", func(t *testing.T) {
		t.Setenv("FLAGKIT_TEST_WORKERS", "not-a-number")
		_, err := config.Load[testConfig]()
		assert.ErrorIs(t, err, config.ErrParseFailed)
	})
}

func TestMustLoad(t *testing.T) {
	t.Run("returns parsed config", func(t *testing.T) {
		cfg := config.MustLoad[testConfig]()
		assert.Equal(t, 4, cfg.Workers)
	})

	t.Run("panics on bad environment", func(t *testing.T) {
		assert.Panics(t, func() {
			config.MustLoad[requiredConfig]()
		})
	})
}
