package helpers

import (
	"os"
	"strings"
)

func GetEnv(key string, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

func GetEnvOrPanic(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		panic("Environment variable " + key + " is not set")
	}
	return value
}

// GetEnvLower returns the trimmed, lower-cased value of key or defaultValue.
func GetEnvLower(key string, defaultValue string) string {
	return strings.ToLower(strings.TrimSpace(GetEnv(key, defaultValue)))
}
