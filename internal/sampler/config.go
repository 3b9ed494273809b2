package sampler

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// configValidate checks Config struct tags.
var configValidate = validator.New()

// Config is the sampler configuration stored with a study. The study
// layer treats it as opaque JSON.
type Config struct {
	// Seed keys the pseudo-random stream; same seed, same proposals.
	Seed uint64 `json:"seed" yaml:"seed"`

	// Exploit is the probability of perturbing the best-liked trial
	// instead of sampling uniformly.
	Exploit float64 `json:"exploit" yaml:"exploit" validate:"gte=0,lte=1"`

	// Radius bounds the perturbation in grid steps.
	Radius int `json:"radius" yaml:"radius" validate:"gte=0,lte=100"`
}

// DefaultConfig uses seed 42 with moderate exploitation.
func DefaultConfig() Config {
	return Config{Seed: 42, Exploit: 0.7, Radius: 1}
}

// ParseConfig decodes raw over DefaultConfig, so absent fields keep their
// defaults. Empty input yields DefaultConfig.
func ParseConfig(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse sampler config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid sampler config: %w", err)
	}
	return nil
}

// JSON encodes the config for storage.
func (c Config) JSON() ([]byte, error) {
	return json.Marshal(c)
}
