package env

import (
	"os"
	"strings"
)

// Get returns the trimmed value of key, or fallback when it is unset or blank.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// First returns the first non-blank value among keys.
func First(keys ...string) (string, bool) {
	for _, key := range keys {
		if val := Get(key, ""); val != "" {
			return val, true
		}
	}
	return "", false
}

// Is reports whether key holds value, ignoring case.
func Is(key, value string) bool {
	return strings.EqualFold(Get(key, ""), value)
}
