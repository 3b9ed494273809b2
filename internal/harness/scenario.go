package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/brewtune/internal/sampler"
)

// Scenario is a scripted tasting session.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Recipe is a built-in recipe ID or a path to a recipe file.
	// Relative .cue paths are resolved against the scenario file.
	Recipe string `yaml:"recipe"`

	// GenerateLimit overrides the backend's generation limit when positive.
	GenerateLimit int `yaml:"generate_limit,omitempty"`

	// Sampler overrides the default sampler config.
	Sampler *sampler.Config `yaml:"sampler,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action. Exactly one field is set.
type Step struct {
	// Run drives the loop until this many trials complete or the gate closes.
	Run *int `yaml:"run,omitempty"`

	// Prefer records [better, worse].
	Prefer []int `yaml:"prefer,omitempty"`

	// Skip marks a trial as skipped.
	Skip *int `yaml:"skip,omitempty"`
}

// Assertion checks the study after the last step.
type Assertion struct {
	Type string `yaml:"type"`

	Trial *int   `yaml:"trial,omitempty"`
	Count int    `yaml:"count,omitempty"`
	State string `yaml:"state,omitempty"`
	Param string `yaml:"param,omitempty"`
	Value any    `yaml:"value,omitempty"`
	Text  string `yaml:"text,omitempty"`
	Open  *bool  `yaml:"open,omitempty"`
}

// Assertion type constants.
const (
	AssertTrialCount   = "trial_count"
	AssertTrialState   = "trial_state"
	AssertParamEquals  = "param_equals"
	AssertNoteContains = "note_contains"
	AssertGate         = "gate"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if file, _, _ := strings.Cut(scenario.Recipe, "#"); strings.HasSuffix(file, ".cue") && !filepath.IsAbs(file) {
		scenario.Recipe = filepath.Join(filepath.Dir(path), scenario.Recipe)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Recipe == "" {
		return fmt.Errorf("recipe is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		set := 0
		if step.Run != nil {
			set++
			if *step.Run < 1 {
				return fmt.Errorf("steps[%d]: run must be positive", i)
			}
		}
		if step.Prefer != nil {
			set++
			if len(step.Prefer) != 2 {
				return fmt.Errorf("steps[%d]: prefer takes [better, worse]", i)
			}
		}
		if step.Skip != nil {
			set++
		}
		if set != 1 {
			return fmt.Errorf("steps[%d]: exactly one of run, prefer or skip is required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	needTrial := func() error {
		if a.Trial == nil {
			return fmt.Errorf("assertions[%d]: trial is required for %s", index, a.Type)
		}
		return nil
	}

	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTrialCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertTrialState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for trial_state", index)
		}
		return needTrial()
	case AssertParamEquals:
		if a.Param == "" || a.Value == nil {
			return fmt.Errorf("assertions[%d]: param and value are required for param_equals", index)
		}
		return needTrial()
	case AssertNoteContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for note_contains", index)
		}
		return needTrial()
	case AssertGate:
		if a.Open == nil {
			return fmt.Errorf("assertions[%d]: open is required for gate", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
