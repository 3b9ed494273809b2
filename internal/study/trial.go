package study

import (
	"context"
	"slices"

	"github.com/roach88/brewtune/internal/space"
)

// Trial is one issued trial. It implements space.Resolver.
type Trial struct {
	session *Session
	ref     TrialRef

	values space.Values
	order  []string

	// resumed marks values recorded before this session issued the trial.
	// They were checked against the space of an earlier run.
	resumed map[string]bool

	state   State
	note    string
	hasNote bool
}

func newTrial(s *Session, ref TrialRef) *Trial {
	t := &Trial{
		session: s,
		ref:     ref,
		values:  make(space.Values),
		resumed: make(map[string]bool),
		state:   StateRunning,
	}
	for _, nv := range ref.Sampled {
		t.record(nv.Name, nv.Value)
		t.resumed[nv.Name] = true
	}
	return t
}

// Resolve returns the value for name, asking the backend the first time
// and replaying the recorded value afterwards. fixed reports whether the
// value came from the trial's seed.
//
// A resumed or seeded value the current spec no longer admits (the range
// was narrowed since) is discarded and proposed again.
func (t *Trial) Resolve(ctx context.Context, name string, spec space.ParameterSpec) (space.Value, bool, error) {
	seed, fixed := t.ref.Fixed[name]
	if v, ok := t.values[name]; ok {
		if !t.resumed[name] || space.Admits(spec, v, fixed) {
			return v, fixed, nil
		}
		if err := t.discard(ctx, name, v); err != nil {
			return space.Value{}, false, err
		}
		fixed = false
	} else if fixed && !space.Admits(spec, seed, true) {
		if err := t.discard(ctx, name, seed); err != nil {
			return space.Value{}, false, err
		}
		fixed = false
	}

	v, err := t.session.backend.SampleParameter(ctx, t.ref, name, spec)
	if err != nil {
		return space.Value{}, false, &SessionError{Op: "sample " + name, Study: t.session.ref.Identity.Name, Err: err}
	}
	t.record(name, v)
	return v, fixed, nil
}

func (t *Trial) discard(ctx context.Context, name string, stale space.Value) error {
	if err := t.session.backend.DiscardParameter(ctx, t.ref, name); err != nil {
		return &SessionError{Op: "discard " + name, Study: t.session.ref.Identity.Name, Err: err}
	}
	delete(t.values, name)
	delete(t.resumed, name)
	t.order = slices.DeleteFunc(t.order, func(n string) bool { return n == name })
	if _, ok := t.ref.Fixed[name]; ok {
		fixed := t.ref.Fixed.Clone()
		delete(fixed, name)
		t.ref.Fixed = fixed
	}
	t.session.logger.Warn("value outside the current space, proposing again",
		"study", t.session.ref.Identity.Name,
		"trial", t.ref.Number,
		"param", name,
		"value", stale.String(),
	)
	return nil
}

func (t *Trial) record(name string, v space.Value) {
	if _, ok := t.values[name]; !ok {
		t.order = append(t.order, name)
	}
	t.values[name] = v
}

// Number is the trial's per-study number.
func (t *Trial) Number() int { return t.ref.Number }

// Ref returns the backend handle.
func (t *Trial) Ref() TrialRef { return t.ref }

// State is Running until the note is persisted, then Completed.
func (t *Trial) State() State { return t.state }

// Values returns a copy of the sampled values.
func (t *Trial) Values() space.Values { return t.values.Clone() }

// Order returns parameter names in the order they were sampled.
func (t *Trial) Order() []string { return slices.Clone(t.order) }

// Note returns the persisted note, if any.
func (t *Trial) Note() (string, bool) { return t.note, t.hasNote }

// Missing lists declared parameters not sampled yet, in declaration order.
func (t *Trial) Missing() []string {
	var missing []string
	for _, name := range t.session.space.Names() {
		if _, ok := t.values[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
