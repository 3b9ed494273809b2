package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/brewtune/internal/backend"
	"github.com/roach88/brewtune/internal/loop"
	"github.com/roach88/brewtune/internal/recipe"
	"github.com/roach88/brewtune/internal/study"
)

// location is the storage location every scenario study runs against.
const location = "mem://harness"

// Run executes a scenario against a fresh in-memory backend and evaluates
// its assertions.
//
// Setup errors (unknown recipe, invalid sampler config) and rejected
// feedback steps return an error. Failed assertions are reported in
// Result.Errors with Result.Pass false.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	r, err := recipe.Resolve(scenario.Recipe)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipe: %w", err)
	}

	var opts []backend.Option
	if scenario.GenerateLimit > 0 {
		opts = append(opts, backend.WithGenerateLimit(scenario.GenerateLimit))
	}
	b := backend.NewMemory(location, opts...)

	var samplerConfig []byte
	if scenario.Sampler != nil {
		samplerConfig, err = scenario.Sampler.JSON()
		if err != nil {
			return nil, fmt.Errorf("failed to encode sampler config: %w", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sess, err := study.Open(ctx, b,
		study.Identity{StorageLocation: location, Name: r.Study},
		r.Space, samplerConfig, study.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open study: %w", err)
	}

	result := NewResult()

	if r.Seed != nil {
		enqueued, err := sess.SeedDefaultIfEmpty(ctx, r.Seed)
		if err != nil {
			return nil, fmt.Errorf("failed to seed study: %w", err)
		}
		if enqueued {
			result.addEvent("seed", nil, "enqueued")
		}
	}

	l, err := loop.New(sess, r.Rules, r.Renderer(), loop.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("invalid recipe: %w", err)
	}

	for i, step := range scenario.Steps {
		if err := runStep(ctx, b, sess, l, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	result.Trials, err = sess.Trials(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list trials: %w", err)
	}
	result.GateOpen, err = sess.ShouldGenerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check gate: %w", err)
	}

	EvaluateAssertions(scenario.Assertions, result)
	return result, nil
}

func runStep(ctx context.Context, b *backend.Memory, sess *study.Session, l *loop.Loop, step Step, result *Result) error {
	name := sess.Ref().Identity.Name

	switch {
	case step.Run != nil:
		var produced []int
		detail := "limit reached"
		for len(produced) < *step.Run {
			generated, err := l.Step(ctx)
			if err != nil {
				return err
			}
			if !generated {
				detail = "gate closed"
				break
			}
			trials, err := sess.Trials(ctx)
			if err != nil {
				return err
			}
			produced = append(produced, lastCompleted(trials))
		}
		result.addEvent("run", produced, detail)

	case step.Prefer != nil:
		if err := b.Prefer(name, step.Prefer[0], step.Prefer[1]); err != nil {
			return err
		}
		result.addEvent("prefer", []int{step.Prefer[0], step.Prefer[1]}, "")

	case step.Skip != nil:
		if err := b.Skip(name, *step.Skip); err != nil {
			return err
		}
		result.addEvent("skip", []int{*step.Skip}, "")
	}
	return nil
}

// lastCompleted returns the highest completed trial number, or -1.
func lastCompleted(trials []study.TrialRecord) int {
	last := -1
	for _, t := range trials {
		if t.State == study.StateCompleted && t.Number > last {
			last = t.Number
		}
	}
	return last
}
