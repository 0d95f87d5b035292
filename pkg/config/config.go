package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrParseFailed wraps env parsing failures.
var ErrParseFailed = errors.New("failed to parse config from environment")

var dotenvOnce sync.Once

// Load parses environment variables into a fresh T using `env` struct tags.
func Load[T any]() (T, error) {
	dotenvOnce.Do(func() {
		// Missing .env is fine, the environment may be set directly.
		_ = godotenv.Load()
	})

	var cfg T
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Join(ErrParseFailed, fmt.Errorf("%T: %w", cfg, err))
	}
	return cfg, nil
}

// MustLoad is Load for startup paths where a bad environment should stop
// the process.
func MustLoad[T any]() T {
	cfg, err := Load[T]()
	if err != nil {
		panic(err)
	}
	return cfg
}
