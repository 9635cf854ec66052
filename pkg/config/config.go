package config

import (
	"log"
	"os"
	"strconv"
)

// Package-level Get helpers read the environment once per call; runwatch
// services load their settings at boot and never re-read them.

// GetString retrieves an environment variable or returns a fallback when unset.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetInt retrieves an environment variable as an integer. An unparsable
// value falls back rather than failing boot.
func GetInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("config %s: not an integer, using default: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetBool retrieves an environment variable as a bool, with the same
// fall-back-on-garbage behavior as GetInt.
func GetBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("config %s: not a bool, using default: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}
