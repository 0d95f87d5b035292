// Package config parses environment variables into typed structs.
//
// A .env file in the working directory is loaded once, if present, before
// the environment is read. There is no global cache: every Load call parses
// fresh, so tests can set variables and reload without process-wide state.
//
// Usage:
//
//	type cacheConfig struct {
//		Capacity int           `env:"FLAG_CACHE_L1_CAPACITY" envDefault:"10000"`
//		TTL      time.Duration `env:"FLAG_CACHE_L1_TTL" envDefault:"1m"`
//	}
//
//	cfg, err := config.Load[cacheConfig]()
//	if err != nil { ... }
package config
