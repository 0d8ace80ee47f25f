// Package envconfig reads VAEGAN_* environment overrides.
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Var returns the trimmed value of key with surrounding quotes removed.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// DataRoot is the directory datasets are read from.
// Configurable via VAEGAN_DATA, default "./data".
func DataRoot() string {
	if s := Var("VAEGAN_DATA"); s != "" {
		return s
	}
	return "./data"
}

// LogLevel returns the slog level.
// Configurable via VAEGAN_DEBUG: unset or false is INFO, 1 or true is DEBUG.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("VAEGAN_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

// BoolWithDefault returns a reader for a boolean variable. A value that
// does not parse counts as set.
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a reader for a boolean variable that defaults to false.
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// Uint returns a reader for an unsigned variable. Invalid values log a
// warning and fall back to defaultValue.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

var (
	// NoProgress disables the interactive progress bar.
	NoProgress = Bool("VAEGAN_NOPROGRESS")
	// HalfPrecision stores checkpoint weights as float16.
	HalfPrecision = Bool("VAEGAN_HALF_PRECISION")
	// CacheSize is the number of decoded images kept in memory.
	CacheSize = Uint("VAEGAN_CACHE_SIZE", 1024)
)

// Workers bounds concurrent image decodes and convolution goroutines.
// Configurable via VAEGAN_WORKERS, default GOMAXPROCS.
func Workers() int {
	n := Uint("VAEGAN_WORKERS", uint(runtime.GOMAXPROCS(0)))()
	if n == 0 {
		return 1
	}
	return int(n)
}

// EnvVar describes one environment variable.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"VAEGAN_DATA":           {"VAEGAN_DATA", DataRoot(), "Directory holding datasets (default \"./data\")"},
		"VAEGAN_DEBUG":          {"VAEGAN_DEBUG", LogLevel(), "Show additional debug information (e.g. VAEGAN_DEBUG=1)"},
		"VAEGAN_WORKERS":        {"VAEGAN_WORKERS", Workers(), "Maximum concurrent image decodes and convolution goroutines"},
		"VAEGAN_CACHE_SIZE":     {"VAEGAN_CACHE_SIZE", CacheSize(), "Decoded images kept in memory (default 1024)"},
		"VAEGAN_NOPROGRESS":     {"VAEGAN_NOPROGRESS", NoProgress(), "Log one line per step instead of drawing a progress bar"},
		"VAEGAN_HALF_PRECISION": {"VAEGAN_HALF_PRECISION", HalfPrecision(), "Store checkpoint weights as float16"},
	}
}

// Values returns every variable's value as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
