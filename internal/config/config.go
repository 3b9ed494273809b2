// Package config loads host settings for the brewtune command.
//
// Settings come from three layers, later ones winning:
//   - Default()
//   - a YAML file (unknown keys are rejected)
//   - BREWTUNE_* environment variables
//
// Command-line flags are applied on top by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/roach88/brewtune/internal/backend"
	"github.com/roach88/brewtune/internal/loop"
	"github.com/roach88/brewtune/internal/sampler"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BREWTUNE_"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("listen_addr", isListenAddr); err != nil {
		panic(err)
	}
	return v
}

// isListenAddr accepts host:port pairs net.Listen takes for TCP, including
// an empty host and port 0 (any free port).
func isListenAddr(fl validator.FieldLevel) bool {
	_, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	_, err = strconv.ParseUint(port, 10, 16)
	return err == nil
}

// Config holds host settings.
type Config struct {
	// Database is the SQLite file studies are stored in.
	Database string `yaml:"database" validate:"required"`

	// Recipe is a built-in recipe ID or a path to a recipe file.
	Recipe string `yaml:"recipe" validate:"required"`

	// Study overrides the recipe's study name.
	Study string `yaml:"study"`

	PollInterval  time.Duration `yaml:"poll_interval" validate:"gt=0"`
	GenerateLimit int           `yaml:"generate_limit" validate:"gte=1"`

	// Trials stops the loop after this many trials; zero runs until interrupted.
	Trials int `yaml:"trials" validate:"gte=0"`

	MetricsAddr string `yaml:"metrics_addr" validate:"omitempty,listen_addr"`
	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn error"`

	Sampler sampler.Config `yaml:"sampler"`
}

// Default returns the built-in settings: the coffee recipe in
// ./brewtune.db, polling every 100ms, two unjudged trials at a time.
func Default() Config {
	return Config{
		Database:      "brewtune.db",
		Recipe:        "coffee",
		PollInterval:  loop.DefaultPollInterval,
		GenerateLimit: backend.DefaultGenerateLimit,
		LogLevel:      "info",
		Sampler:       sampler.DefaultConfig(),
	}
}

// Load builds a Config from Default, the file at path (skipped when path is
// empty) and the process environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode overlays YAML onto c. An empty document changes nothing.
func (c *Config) decode(data []byte) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from BREWTUNE_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("DB", &c.Database)
	str("RECIPE", &c.Recipe)
	str("STUDY", &c.Study)
	str("METRICS_ADDR", &c.MetricsAddr)
	str("LOG_LEVEL", &c.LogLevel)

	if v, ok := lookup(EnvPrefix + "POLL_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sPOLL_INTERVAL: %w", EnvPrefix, err)
		}
		c.PollInterval = d
	}
	for _, f := range []struct {
		name string
		dst  *int
	}{{"GENERATE_LIMIT", &c.GenerateLimit}, {"TRIALS", &c.Trials}} {
		v, ok := lookup(EnvPrefix + f.name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, f.name, err)
		}
		*f.dst = n
	}
	if v, ok := lookup(EnvPrefix + "SAMPLER_SEED"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %sSAMPLER_SEED: %w", EnvPrefix, err)
		}
		c.Sampler.Seed = n
	}
	return nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog.Level.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
