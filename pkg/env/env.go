package env

import "os"

// GetEnv returns the value of key if set and non-empty, otherwise fallback.
func GetEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// MustGetEnv returns the value of key or panics — used for configuration that
// has no safe default (API keys, cluster credentials).
func MustGetEnv(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		panic("missing required environment variable: " + key)
	}
	return v
}
