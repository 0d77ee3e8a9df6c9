package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// envReader reads typed settings from the process environment. Unset or blank
// keys fall back to defaults; malformed values are collected and reported by err.
type envReader struct {
	problems []string
}

func (r *envReader) str(key, defaultVal string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultVal
}

// raw returns the trimmed value for typed settings, treating blank as unset.
func (r *envReader) raw(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func (r *envReader) integer(key string, defaultVal int) int {
	value, ok := r.raw(key)
	if !ok {
		return defaultVal
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		r.invalid(key, value, "an integer")
		return defaultVal
	}
	return v
}

func (r *envReader) boolean(key string, defaultVal bool) bool {
	value, ok := r.raw(key)
	if !ok {
		return defaultVal
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		r.invalid(key, value, "a boolean")
		return defaultVal
	}
	return v
}

func (r *envReader) duration(key string, defaultVal time.Duration) time.Duration {
	value, ok := r.raw(key)
	if !ok {
		return defaultVal
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.invalid(key, value, "a duration such as 30s or 5m")
		return defaultVal
	}
	return d
}

// list splits a comma-separated value, dropping blank entries.
func (r *envReader) list(key string, defaults []string) []string {
	value, ok := r.raw(key)
	if !ok {
		return defaults
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaults
	}
	return out
}

func (r *envReader) invalid(key, value, want string) {
	r.problems = append(r.problems, fmt.Sprintf("%s=%q is not %s", key, value, want))
}

func (r *envReader) err() error {
	if len(r.problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid environment: %s", strings.Join(r.problems, "; "))
}
