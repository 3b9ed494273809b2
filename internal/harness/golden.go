package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot is the deterministic part of a scenario result. Sampled values
// depend on the sampler and are left out.
type Snapshot struct {
	ScenarioName string          `json:"scenario_name"`
	Trace        []TraceEvent    `json:"trace"`
	Trials       []TrialSnapshot `json:"trials"`
	GateOpen     bool            `json:"gate_open"`
}

// TrialSnapshot summarizes one trial.
type TrialSnapshot struct {
	Number  int    `json:"number"`
	State   string `json:"state"`
	Skipped bool   `json:"skipped"`
	HasNote bool   `json:"has_note"`
}

// NewSnapshot builds the snapshot of result.
func NewSnapshot(name string, result *Result) Snapshot {
	snap := Snapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Trials:       make([]TrialSnapshot, 0, len(result.Trials)),
		GateOpen:     result.GateOpen,
	}
	for _, t := range result.Trials {
		snap.Trials = append(snap.Trials, TrialSnapshot{
			Number:  t.Number,
			State:   t.State.String(),
			Skipped: t.Skipped,
			HasNote: t.HasNote,
		})
	}
	return snap
}

// RunWithGolden executes a scenario, fails the test on any assertion
// failure, and compares the snapshot against testdata/golden/<name>.golden.
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		t.Fatalf("scenario %s failed to execute: %v", scenario.Name, err)
	}
	if !result.Pass {
		for _, e := range result.Errors {
			t.Errorf("%s", e)
		}
		t.FailNow()
	}

	data, err := json.MarshalIndent(NewSnapshot(scenario.Name, result), "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal snapshot: %v", err)
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return result
}
