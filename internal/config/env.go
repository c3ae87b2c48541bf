package config

import (
	"log"
	"os"
	"strconv"
)

// Get returns the value of the environment variable or the fallback if unset.
func Get(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetRequired returns the value of the environment variable and terminates
// the process if it is not set. Missing required configuration is an operator
// error, not a runtime condition.
func GetRequired(key string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		log.Fatalf("Required environment variable %s is not set", key)
	}
	return value
}

// GetInt returns the integer value of the environment variable or the
// fallback if unset or not a valid integer.
func GetInt(key string, fallback int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return fallback
	}
	return value
}
