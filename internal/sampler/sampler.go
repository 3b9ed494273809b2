// Package sampler proposes parameter values for new trials from pairwise
// human preferences.
//
// Preferential is a small, deterministic stand-in for a Gaussian-process
// preference optimizer: it scores each completed trial by wins minus losses
// and either samples near the best-scored trial or uniformly over the grid.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"github.com/roach88/brewtune/internal/space"
)

// ErrUnsupportedSpec is returned for a ParameterSpec the sampler cannot propose for.
var ErrUnsupportedSpec = errors.New("unsupported parameter spec")

// Observation is a completed trial as the sampler sees it.
type Observation struct {
	Number int
	Values space.Values
	Score  float64
}

// Preference states that trial Better was preferred over trial Worse.
type Preference struct {
	Better int
	Worse  int
}

// Request asks for one parameter value of one trial.
type Request struct {
	TrialNumber int
	Name        string
	Spec        space.ParameterSpec
	History     []Observation
}

// Sampler proposes a value for a single parameter.
type Sampler interface {
	Propose(ctx context.Context, req Request) (space.Value, error)
}

// Scores returns wins minus losses per trial number.
func Scores(prefs []Preference) map[int]float64 {
	scores := make(map[int]float64)
	for _, p := range prefs {
		scores[p.Better]++
		scores[p.Worse]--
	}
	return scores
}

// Preferential is the built-in preference-guided sampler.
type Preferential struct {
	cfg Config
}

// NewPreferential returns a sampler for cfg.
func NewPreferential(cfg Config) (*Preferential, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Preferential{cfg: cfg}, nil
}

// Config returns the sampler's configuration.
func (p *Preferential) Config() Config {
	return p.cfg
}

// Propose returns a grid point or choice for req. The result depends only
// on the seed, the trial number, the parameter name and the history.
func (p *Preferential) Propose(ctx context.Context, req Request) (space.Value, error) {
	if err := ctx.Err(); err != nil {
		return space.Value{}, err
	}

	rng := p.stream(req.TrialNumber, req.Name)
	best, haveBest := bestValue(req.History, req.Name)
	exploit := haveBest && rng.Float64() < p.cfg.Exploit

	switch spec := req.Spec.(type) {
	case space.Continuous:
		if f, ok := best.Float(); exploit && ok {
			k := spec.Nearest(f) + rng.IntN(2*p.cfg.Radius+1) - p.cfg.Radius
			return space.Number(spec.At(k)), nil
		}
		return space.Number(spec.At(rng.IntN(spec.Len()))), nil

	case space.Categorical:
		if exploit && spec.Contains(best) {
			return best, nil
		}
		return space.Choice(spec.Choices[rng.IntN(len(spec.Choices))]), nil
	}
	return space.Value{}, fmt.Errorf("%w: %T for %q", ErrUnsupportedSpec, req.Spec, req.Name)
}

// stream returns a PCG source keyed on (seed, trial, parameter name).
func (p *Preferential) stream(trial int, name string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(name))
	return rand.New(rand.NewPCG(p.cfg.Seed^uint64(trial)*0x9e3779b97f4a7c15, h.Sum64()))
}

// bestValue returns name's value in the highest-scored observation that
// has it. Only positive scores count; ties go to the lower trial number.
func bestValue(history []Observation, name string) (space.Value, bool) {
	var (
		best  space.Value
		score float64
		num   int
		found bool
	)
	for _, o := range history {
		v, ok := o.Values[name]
		if !ok || o.Score <= 0 {
			continue
		}
		if !found || o.Score > score || (o.Score == score && o.Number < num) {
			best, score, num, found = v, o.Score, o.Number, true
		}
	}
	return best, found
}
