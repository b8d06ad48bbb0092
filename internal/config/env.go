package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// env reads typed environment variables, falling back when unset and
// remembering values that fail to parse.
type env struct {
	errs []error
}

// GetString retrieves an environment variable or returns a fallback when unset.
func (e *env) GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetInt retrieves an environment variable as integer or returns fallback.
func (e *env) GetInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("invalid value for %s: %w", key, err))
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetInt64 retrieves an environment variable as int64 or returns fallback.
func (e *env) GetInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("invalid value for %s: %w", key, err))
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetFloat retrieves an environment variable as float64 or returns fallback.
func (e *env) GetFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("invalid value for %s: %w", key, err))
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetBool retrieves an environment variable as bool or returns fallback.
func (e *env) GetBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("invalid value for %s: %w", key, err))
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetDuration retrieves an environment variable as a Go duration ("90s",
// "5m") or returns fallback.
func (e *env) GetDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("invalid value for %s: %w", key, err))
			return fallback
		}
		return parsed
	}
	return fallback
}
