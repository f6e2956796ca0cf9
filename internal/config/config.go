// Package config reads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"photocrispy/internal/debug"
	"photocrispy/internal/debug/logger"
)

type Backend string

const (
	BackendSoftware Backend = "software"
	BackendOpenGL   Backend = "opengl"
)

const (
	DefaultFrameRate = 60
	maxFrameRate     = 240
)

type Config struct {
	LogLevel       logger.Level
	JSONLogs       bool
	Backend        Backend
	BrowseDir      string
	FrameRate      int
	GPUHistogram   bool
	MetricsAddr    string
	DebugTiming    bool
	DebugResources bool
}

func Default() Config {
	return Config{
		LogLevel:       logger.LevelInfo,
		Backend:        BackendSoftware,
		FrameRate:      DefaultFrameRate,
		GPUHistogram:   true,
		DebugTiming:    true,
		DebugResources: true,
	}
}

// Load reads the given .env files (default ".env"), ignoring missing ones,
// and then the process environment. Variables already set in the process
// take precedence over file values.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from any variable source.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.LogLevel = logger.ParseLevel(v)
	}

	var err error
	if cfg.JSONLogs, err = boolVar(lookup, "PHOTOCRISPY_JSON_LOGS", cfg.JSONLogs); err != nil {
		return Config{}, err
	}
	if cfg.GPUHistogram, err = boolVar(lookup, "PHOTOCRISPY_GPU_HISTOGRAM", cfg.GPUHistogram); err != nil {
		return Config{}, err
	}
	if cfg.DebugTiming, err = boolVar(lookup, "PHOTOCRISPY_DEBUG_TIMING", cfg.DebugTiming); err != nil {
		return Config{}, err
	}
	if cfg.DebugResources, err = boolVar(lookup, "PHOTOCRISPY_DEBUG_RESOURCES", cfg.DebugResources); err != nil {
		return Config{}, err
	}

	if v, ok := lookup("PHOTOCRISPY_BACKEND"); ok && strings.TrimSpace(v) != "" {
		b, err := ParseBackend(v)
		if err != nil {
			return Config{}, err
		}
		cfg.Backend = b
	}

	if v, ok := lookup("PHOTOCRISPY_BROWSE_DIR"); ok {
		cfg.BrowseDir = strings.TrimSpace(v)
	}
	if cfg.BrowseDir == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.BrowseDir = wd
		}
	}

	if v, ok := lookup("PHOTOCRISPY_FRAME_RATE"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 || n > maxFrameRate {
			return Config{}, fmt.Errorf("PHOTOCRISPY_FRAME_RATE must be 1..%d, got %q", maxFrameRate, v)
		}
		cfg.FrameRate = n
	}

	if v, ok := lookup("METRICS_ADDR"); ok {
		cfg.MetricsAddr = strings.TrimSpace(v)
	}

	return cfg, nil
}

func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case BackendSoftware:
		return BackendSoftware, nil
	case BackendOpenGL, "gl":
		return BackendOpenGL, nil
	default:
		return "", fmt.Errorf("unknown backend %q (want software or opengl)", s)
	}
}

// Debug translates the settings into a diagnostics configuration.
func (c Config) Debug() debug.Config {
	dc := debug.DefaultConfig()
	dc.LogLevel = c.LogLevel
	dc.UseJSONLogging = c.JSONLogs
	dc.EnableTimingTracking = c.DebugTiming
	dc.EnableResourceTracking = c.DebugResources
	return dc
}

func boolVar(lookup func(string) (string, bool), name string, def bool) (bool, error) {
	v, ok := lookup(name)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%s: %w", name, err)
	}
	return b, nil
}
