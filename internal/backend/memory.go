package backend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/brewtune/internal/sampler"
	"github.com/roach88/brewtune/internal/space"
	"github.com/roach88/brewtune/internal/store"
	"github.com/roach88/brewtune/internal/study"
)

// Operation names passed to Hooks.BeforeOp.
const (
	OpOpen             = "open"
	OpUpdateDescriptor = "update descriptor"
	OpShouldGenerate   = "should generate"
	OpIssueTrial       = "issue trial"
	OpSampleParameter  = "sample parameter"
	OpDiscardParameter = "discard parameter"
	OpPersistNote      = "persist note"
	OpEnqueueSeed      = "enqueue seed"
	OpListTrials       = "list trials"
)

// ErrUnknownTrial is returned by Memory's feedback methods for a trial
// number the study does not have.
var ErrUnknownTrial = errors.New("unknown trial")

// ErrTrialNotReady is returned by Memory's feedback methods for a trial
// that has not been completed yet.
var ErrTrialNotReady = errors.New("trial not completed yet")

// Hooks lets tests observe and break a Memory backend.
type Hooks struct {
	// BeforeOp runs before every Backend call; a non-nil error fails the
	// call as an unavailable collaborator.
	BeforeOp func(op string) error

	// AfterSample runs after a parameter value is recorded.
	AfterSample func(trial study.TrialRef, name string, v space.Value)
}

// Memory is an in-process study.Backend with the same gate and trial
// semantics as SQLite.
type Memory struct {
	location      string
	ids           IDGenerator
	generateLimit int
	hooks         Hooks

	mu      sync.Mutex
	studies map[string]*memStudy
	byID    map[string]*memStudy
}

type memStudy struct {
	ref     study.StudyRef
	sampler sampler.Sampler
	trials  []*memTrial
	prefs   []sampler.Preference
	attrs   map[string]string
}

type memTrial struct {
	id      int64
	number  int
	state   study.State
	fixed   space.Values
	params  []study.NamedValue
	note    string
	hasNote bool
	skipped bool
}

// NewMemory returns an empty in-memory backend serving location.
func NewMemory(location string, opts ...Option) *Memory {
	o := buildOptions(opts)
	return &Memory{
		location:      location,
		ids:           o.ids,
		generateLimit: o.generateLimit,
		studies:       make(map[string]*memStudy),
		byID:          make(map[string]*memStudy),
	}
}

// SetHooks replaces the test hooks.
func (m *Memory) SetHooks(h Hooks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = h
}

func (m *Memory) before(op string) error {
	m.mu.Lock()
	hook := m.hooks.BeforeOp
	m.mu.Unlock()
	if hook == nil {
		return nil
	}
	return unavailable(op, hook(op))
}

func (m *Memory) OpenStudy(ctx context.Context, id study.Identity, desc space.Descriptor, samplerConfig []byte) (study.StudyRef, error) {
	if err := m.before(OpOpen); err != nil {
		return study.StudyRef{}, err
	}
	if id.StorageLocation != "" && id.StorageLocation != m.location {
		return study.StudyRef{}, fmt.Errorf("%w: study at %q, backend serves %q",
			ErrLocationMismatch, id.StorageLocation, m.location)
	}
	cfg, err := sampler.ParseConfig(samplerConfig)
	if err != nil {
		return study.StudyRef{}, err
	}
	smp, err := sampler.NewPreferential(cfg)
	if err != nil {
		return study.StudyRef{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.studies[id.Name]; ok {
		st.sampler = smp
		ref := st.ref
		ref.Created = false
		return ref, nil
	}

	st := &memStudy{
		ref: study.StudyRef{
			ID:         m.ids.Generate(),
			Identity:   study.Identity{StorageLocation: m.location, Name: id.Name},
			Descriptor: desc,
			Created:    true,
		},
		sampler: smp,
		attrs:   make(map[string]string),
	}
	m.studies[id.Name] = st
	m.byID[st.ref.ID] = st
	return st.ref, nil
}

func (m *Memory) UpdateDescriptor(ctx context.Context, ref study.StudyRef, desc space.Descriptor) error {
	if err := m.before(OpUpdateDescriptor); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.lookup(ref.ID)
	if err != nil {
		return err
	}
	st.ref.Descriptor = desc
	return nil
}

func (m *Memory) ShouldGenerate(ctx context.Context, ref study.StudyRef) (bool, error) {
	if err := m.before(OpShouldGenerate); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.lookup(ref.ID)
	if err != nil {
		return false, err
	}
	return st.active() < m.generateLimit, nil
}

func (m *Memory) IssueTrial(ctx context.Context, ref study.StudyRef) (study.TrialRef, error) {
	if err := m.before(OpIssueTrial); err != nil {
		return study.TrialRef{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.lookup(ref.ID)
	if err != nil {
		return study.TrialRef{}, err
	}

	t := st.claimable()
	if t == nil {
		t = &memTrial{id: int64(len(st.trials) + 1), number: len(st.trials), fixed: space.Values{}}
		st.trials = append(st.trials, t)
	}
	t.state = study.StateRunning
	return study.TrialRef{
		StudyID: st.ref.ID,
		ID:      t.id,
		Number:  t.number,
		Fixed:   t.fixed.Clone(),
		Sampled: slices.Clone(t.params),
	}, nil
}

func (m *Memory) SampleParameter(ctx context.Context, ref study.TrialRef, name string, spec space.ParameterSpec) (space.Value, error) {
	if err := m.before(OpSampleParameter); err != nil {
		return space.Value{}, err
	}

	m.mu.Lock()
	st, err := m.lookup(ref.StudyID)
	if err != nil {
		m.mu.Unlock()
		return space.Value{}, err
	}
	t, err := st.trial(ref.Number)
	if err != nil {
		m.mu.Unlock()
		return space.Value{}, err
	}
	if v, ok := t.param(name); ok {
		m.mu.Unlock()
		return v, nil
	}

	v, fixed := t.fixed[name]
	if !fixed {
		v, err = st.sampler.Propose(ctx, sampler.Request{
			TrialNumber: t.number,
			Name:        name,
			Spec:        spec,
			History:     st.history(),
		})
		if err != nil {
			m.mu.Unlock()
			return space.Value{}, unavailable("propose "+name, err)
		}
	}
	t.params = append(t.params, study.NamedValue{Name: name, Value: v})
	hook := m.hooks.AfterSample
	m.mu.Unlock()

	if hook != nil {
		hook(ref, name, v)
	}
	return v, nil
}

func (m *Memory) DiscardParameter(ctx context.Context, ref study.TrialRef, name string) error {
	if err := m.before(OpDiscardParameter); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.lookup(ref.StudyID)
	if err != nil {
		return err
	}
	t, err := st.trial(ref.Number)
	if err != nil {
		return err
	}
	t.params = slices.DeleteFunc(t.params, func(p study.NamedValue) bool { return p.Name == name })
	delete(t.fixed, name)
	return nil
}

func (m *Memory) PersistNote(ctx context.Context, ref study.TrialRef, note string) error {
	if err := m.before(OpPersistNote); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.lookup(ref.StudyID)
	if err != nil {
		return err
	}
	t, err := st.trial(ref.Number)
	if err != nil {
		return err
	}
	t.note, t.hasNote, t.state = note, true, study.StateCompleted
	return nil
}

func (m *Memory) EnqueueSeed(ctx context.Context, ref study.StudyRef, values space.Values) (bool, error) {
	if err := m.before(OpEnqueueSeed); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.lookup(ref.ID)
	if err != nil {
		return false, err
	}
	if len(st.trials) > 0 {
		return false, nil
	}
	st.trials = append(st.trials, &memTrial{id: 1, number: 0, state: study.StatePending, fixed: values.Clone()})
	return true, nil
}

func (m *Memory) ListTrials(ctx context.Context, ref study.StudyRef) ([]study.TrialRecord, error) {
	if err := m.before(OpListTrials); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.lookup(ref.ID)
	if err != nil {
		return nil, err
	}
	out := make([]study.TrialRecord, 0, len(st.trials))
	for _, t := range st.trials {
		out = append(out, study.TrialRecord{
			Number:  t.number,
			State:   t.state,
			Params:  slices.Clone(t.params),
			Note:    t.note,
			HasNote: t.hasNote,
			Skipped: t.skipped,
		})
	}
	return out, nil
}

// RegisterFeedbackSurface records the note field a feedback UI reads.
func (m *Memory) RegisterFeedbackSurface(ctx context.Context, ref study.StudyRef, noteField string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.lookup(ref.ID)
	if err != nil {
		return err
	}
	st.attrs[store.AttrFeedbackField] = noteField
	return nil
}

// FeedbackField returns the registered note field of a study.
func (m *Memory) FeedbackField(studyName string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.studies[studyName]
	if !ok {
		return "", false
	}
	f, ok := st.attrs[store.AttrFeedbackField]
	return f, ok
}

// Prefer records that trial better was preferred over trial worse.
func (m *Memory) Prefer(studyName string, better, worse int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.studies[studyName]
	if !ok {
		return fmt.Errorf("study %q: %w", studyName, ErrUnknownTrial)
	}
	for _, n := range []int{better, worse} {
		if _, err := st.judgeable(n); err != nil {
			return err
		}
	}
	if better == worse {
		return fmt.Errorf("trial %d cannot be compared with itself", better)
	}
	st.prefs = append(st.prefs, sampler.Preference{Better: better, Worse: worse})
	return nil
}

// Skip marks a trial as skipped.
func (m *Memory) Skip(studyName string, number int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.studies[studyName]
	if !ok {
		return fmt.Errorf("study %q: %w", studyName, ErrUnknownTrial)
	}
	t, err := st.judgeable(number)
	if err != nil {
		return err
	}
	t.skipped = true
	return nil
}

// lookup must be called with m.mu held.
func (m *Memory) lookup(id string) (*memStudy, error) {
	st, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("study %s was not opened through this backend", id)
	}
	return st, nil
}

func (st *memStudy) trial(number int) (*memTrial, error) {
	if number < 0 || number >= len(st.trials) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTrial, number)
	}
	return st.trials[number], nil
}

// claimable returns the trial IssueTrial should hand out again: the lowest
// running one, else the lowest pending one, else nil.
// judgeable returns trial number if it has been completed.
func (st *memStudy) judgeable(number int) (*memTrial, error) {
	t, err := st.trial(number)
	if err != nil {
		return nil, err
	}
	if t.state != study.StateCompleted {
		return nil, fmt.Errorf("trial %d is %s: %w", number, t.state, ErrTrialNotReady)
	}
	return t, nil
}

func (st *memStudy) claimable() *memTrial {
	var pending *memTrial
	for _, t := range st.trials {
		switch t.state {
		case study.StateRunning:
			return t
		case study.StatePending:
			if pending == nil {
				pending = t
			}
		}
	}
	return pending
}

func (st *memStudy) active() int {
	lost := make(map[int]bool, len(st.prefs))
	for _, p := range st.prefs {
		lost[p.Worse] = true
	}
	n := 0
	for _, t := range st.trials {
		switch t.state {
		case study.StateRunning:
			n++
		case study.StateCompleted:
			if !t.skipped && !lost[t.number] {
				n++
			}
		}
	}
	return n
}

func (st *memStudy) history() []sampler.Observation {
	scores := sampler.Scores(st.prefs)
	var obs []sampler.Observation
	for _, t := range st.trials {
		if t.state != study.StateCompleted || t.skipped {
			continue
		}
		vals := make(space.Values, len(t.params))
		for _, p := range t.params {
			vals[p.Name] = p.Value
		}
		obs = append(obs, sampler.Observation{Number: t.number, Values: vals, Score: scores[t.number]})
	}
	return obs
}

func (t *memTrial) param(name string) (space.Value, bool) {
	for _, p := range t.params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return space.Value{}, false
}
