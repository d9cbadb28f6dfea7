package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var dotenvMu sync.Mutex

// Load reads the given .env files, or ".env" when none are given, and parses
// the process environment into a new T using `env` and `envDefault` tags.
// Missing .env files are not an error; variables already set in the process
// environment are never overridden.
//
// Example:
//
//	type DatabaseConfig struct {
//		URL      string `env:"DATABASE_URL,required"`
//		MaxConns int32  `env:"DATABASE_MAX_CONNS" envDefault:"10"`
//	}
//
//	cfg, err := config.Load[DatabaseConfig]()
func Load[T any](files ...string) (T, error) {
	var zero T
	if err := loadDotenv(files); err != nil {
		return zero, err
	}

	cfg, err := env.ParseAs[T]()
	if err != nil {
		return zero, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// LoadPrefixed works like Load but only reads variables starting with prefix,
// e.g. "PAYWALL_".
func LoadPrefixed[T any](prefix string, files ...string) (T, error) {
	var zero T
	if err := loadDotenv(files); err != nil {
		return zero, err
	}

	cfg, err := env.ParseAsWithOptions[T](env.Options{Prefix: prefix})
	if err != nil {
		return zero, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// MustLoad works like Load but panics on failure.
// Use it for configuration the process cannot start without.
func MustLoad[T any](files ...string) T {
	cfg, err := Load[T](files...)
	if err != nil {
		panic(fmt.Sprintf("Failed to load required configuration: %v", err))
	}
	return cfg
}

func loadDotenv(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	dotenvMu.Lock()
	defer dotenvMu.Unlock()

	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.Join(ErrLoadingEnvFile, fmt.Errorf("%s: %w", f, err))
		}
	}
	return nil
}
