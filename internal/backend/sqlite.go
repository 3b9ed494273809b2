package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/brewtune/internal/sampler"
	"github.com/roach88/brewtune/internal/space"
	"github.com/roach88/brewtune/internal/store"
	"github.com/roach88/brewtune/internal/study"
)

// SQLite is a study.Backend persisting to a store.Store.
//
// The sampler for a study is built from the samplerConfig passed to
// OpenStudy, falling back to the config stored when the study was created.
type SQLite struct {
	store         *store.Store
	ids           IDGenerator
	generateLimit int

	mu       sync.Mutex
	samplers map[string]sampler.Sampler
}

// Option configures a backend.
type Option func(*options)

type options struct {
	ids           IDGenerator
	generateLimit int
}

// WithGenerateLimit sets how many active trials pause generation.
// Default: DefaultGenerateLimit. Values below 1 are ignored.
func WithGenerateLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.generateLimit = n
		}
	}
}

// WithIDGenerator sets the study ID generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

func buildOptions(opts []Option) options {
	o := options{ids: UUIDv7Generator{}, generateLimit: DefaultGenerateLimit}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewSQLite returns a backend over st. The caller keeps ownership of st.
func NewSQLite(st *store.Store, opts ...Option) *SQLite {
	o := buildOptions(opts)
	return &SQLite{
		store:         st,
		ids:           o.ids,
		generateLimit: o.generateLimit,
		samplers:      make(map[string]sampler.Sampler),
	}
}

// Location returns the storage location this backend serves.
func (b *SQLite) Location() string {
	return b.store.Path()
}

func (b *SQLite) OpenStudy(ctx context.Context, id study.Identity, desc space.Descriptor, samplerConfig []byte) (study.StudyRef, error) {
	if id.StorageLocation != "" && id.StorageLocation != b.store.Path() {
		return study.StudyRef{}, fmt.Errorf("%w: study at %q, backend serves %q",
			ErrLocationMismatch, id.StorageLocation, b.store.Path())
	}

	cfgJSON := samplerConfig
	if len(cfgJSON) > 0 {
		if _, err := sampler.ParseConfig(cfgJSON); err != nil {
			return study.StudyRef{}, err
		}
	}

	rec, created, err := b.store.LoadOrCreateStudy(ctx, b.ids.Generate(), id.Name, desc, cfgJSON)
	if err != nil {
		return study.StudyRef{}, unavailable("open study", err)
	}

	if len(cfgJSON) == 0 {
		cfgJSON = rec.Sampler
	}
	cfg, err := sampler.ParseConfig(cfgJSON)
	if err != nil {
		return study.StudyRef{}, fmt.Errorf("study %q: %w", id.Name, err)
	}
	smp, err := sampler.NewPreferential(cfg)
	if err != nil {
		return study.StudyRef{}, err
	}

	b.mu.Lock()
	b.samplers[rec.ID] = smp
	b.mu.Unlock()

	return study.StudyRef{
		ID:         rec.ID,
		Identity:   study.Identity{StorageLocation: b.store.Path(), Name: rec.Name},
		Descriptor: rec.Descriptor,
		Created:    created,
	}, nil
}

func (b *SQLite) UpdateDescriptor(ctx context.Context, ref study.StudyRef, desc space.Descriptor) error {
	return unavailable("update descriptor", b.store.UpdateDescriptor(ctx, ref.ID, desc))
}

func (b *SQLite) ShouldGenerate(ctx context.Context, ref study.StudyRef) (bool, error) {
	n, err := b.store.CountActiveTrials(ctx, ref.ID)
	if err != nil {
		return false, unavailable("should generate", err)
	}
	return n < b.generateLimit, nil
}

func (b *SQLite) IssueTrial(ctx context.Context, ref study.StudyRef) (study.TrialRef, error) {
	rec, err := b.store.ClaimTrial(ctx, ref.ID)
	if err != nil {
		return study.TrialRef{}, unavailable("issue trial", err)
	}
	if len(rec.ParamOrder) > 0 {
		slog.Warn("resuming interrupted trial", "study", ref.Identity.Name, "trial", rec.Number)
	}
	return trialRef(rec), nil
}

func (b *SQLite) SampleParameter(ctx context.Context, trial study.TrialRef, name string, spec space.ParameterSpec) (space.Value, error) {
	v, fixed := trial.Fixed[name]
	if !fixed {
		history, err := b.history(ctx, trial.StudyID)
		if err != nil {
			return space.Value{}, unavailable("sample parameter", err)
		}
		smp, err := b.samplerFor(trial.StudyID)
		if err != nil {
			return space.Value{}, err
		}
		v, err = smp.Propose(ctx, sampler.Request{
			TrialNumber: trial.Number,
			Name:        name,
			Spec:        spec,
			History:     history,
		})
		if err != nil {
			return space.Value{}, unavailable("propose "+name, err)
		}
	}

	stored, err := b.store.WriteParam(ctx, trial.ID, name, v)
	if err != nil {
		return space.Value{}, unavailable("sample parameter", err)
	}
	return stored, nil
}

func (b *SQLite) DiscardParameter(ctx context.Context, trial study.TrialRef, name string) error {
	return unavailable("discard parameter", b.store.DiscardParam(ctx, trial.ID, name))
}

func (b *SQLite) PersistNote(ctx context.Context, trial study.TrialRef, note string) error {
	return unavailable("persist note", b.store.CompleteTrial(ctx, trial.ID, note))
}

func (b *SQLite) EnqueueSeed(ctx context.Context, ref study.StudyRef, values space.Values) (bool, error) {
	ok, err := b.store.EnqueueTrialIfEmpty(ctx, ref.ID, values)
	if err != nil {
		return false, unavailable("enqueue seed", err)
	}
	return ok, nil
}

func (b *SQLite) ListTrials(ctx context.Context, ref study.StudyRef) ([]study.TrialRecord, error) {
	recs, err := b.store.ReadTrials(ctx, ref.ID)
	if err != nil {
		return nil, unavailable("list trials", err)
	}
	out := make([]study.TrialRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, trialRecord(rec))
	}
	return out, nil
}

func (b *SQLite) samplerFor(studyID string) (sampler.Sampler, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	smp, ok := b.samplers[studyID]
	if !ok {
		return nil, fmt.Errorf("study %s was not opened through this backend", studyID)
	}
	return smp, nil
}

// history returns completed trials scored by wins minus losses.
func (b *SQLite) history(ctx context.Context, studyID string) ([]sampler.Observation, error) {
	trials, err := b.store.ReadTrials(ctx, studyID)
	if err != nil {
		return nil, err
	}
	prefs, err := b.store.ReadPreferences(ctx, studyID)
	if err != nil {
		return nil, err
	}

	sp := make([]sampler.Preference, len(prefs))
	for i, p := range prefs {
		sp[i] = sampler.Preference{Better: p.Better, Worse: p.Worse}
	}
	return observations(trials, sampler.Scores(sp)), nil
}

func observations(trials []store.TrialRecord, scores map[int]float64) []sampler.Observation {
	var obs []sampler.Observation
	for _, t := range trials {
		if t.State != store.StateCompleted || t.Skipped {
			continue
		}
		obs = append(obs, sampler.Observation{Number: t.Number, Values: t.Params, Score: scores[t.Number]})
	}
	return obs
}

func trialRef(rec store.TrialRecord) study.TrialRef {
	ref := study.TrialRef{
		StudyID: rec.StudyID,
		ID:      rec.ID,
		Number:  rec.Number,
		Fixed:   rec.Fixed,
	}
	for _, name := range rec.ParamOrder {
		ref.Sampled = append(ref.Sampled, study.NamedValue{Name: name, Value: rec.Params[name]})
	}
	return ref
}

func trialRecord(rec store.TrialRecord) study.TrialRecord {
	state, _ := study.ParseState(rec.State)
	out := study.TrialRecord{
		Number:  rec.Number,
		State:   state,
		Note:    rec.Note,
		HasNote: rec.HasNote,
		Skipped: rec.Skipped,
	}
	for _, name := range rec.ParamOrder {
		out.Params = append(out.Params, study.NamedValue{Name: name, Value: rec.Params[name]})
	}
	return out
}
