package study

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/brewtune/internal/space"
)

// fakeBackend is a minimal in-memory Backend. Sampled values come from
// propose, which defaults to the first grid point or choice.
type fakeBackend struct {
	studies map[string]*fakeStudy
	fail    map[string]error
	calls   map[string]int

	propose func(trial TrialRef, name string, spec space.ParameterSpec) space.Value

	// renumber, when set, overrides the number of the next issued trial.
	renumber *int
}

type fakeStudy struct {
	ref    StudyRef
	trials []*TrialRecord
	fixed  map[int]space.Values
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		studies: make(map[string]*fakeStudy),
		fail:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (f *fakeBackend) hit(op string) error {
	f.calls[op]++
	if err := f.fail[op]; err != nil {
		return fmt.Errorf("%w: %w", ErrCollaboratorUnavailable, err)
	}
	return nil
}

func (f *fakeBackend) study(id string) *fakeStudy {
	for _, st := range f.studies {
		if st.ref.ID == id {
			return st
		}
	}
	panic("unknown study " + id)
}

func (f *fakeBackend) OpenStudy(_ context.Context, id Identity, desc space.Descriptor, _ []byte) (StudyRef, error) {
	if err := f.hit("open"); err != nil {
		return StudyRef{}, err
	}
	key := id.String()
	if st, ok := f.studies[key]; ok {
		ref := st.ref
		ref.Created = false
		return ref, nil
	}
	st := &fakeStudy{
		ref:   StudyRef{ID: fmt.Sprintf("study-%d", len(f.studies)), Identity: id, Descriptor: desc, Created: true},
		fixed: make(map[int]space.Values),
	}
	f.studies[key] = st
	return st.ref, nil
}

func (f *fakeBackend) UpdateDescriptor(_ context.Context, ref StudyRef, desc space.Descriptor) error {
	if err := f.hit("update"); err != nil {
		return err
	}
	f.study(ref.ID).ref.Descriptor = desc
	return nil
}

func (f *fakeBackend) ShouldGenerate(context.Context, StudyRef) (bool, error) {
	if err := f.hit("gate"); err != nil {
		return false, err
	}
	return true, nil
}

func (f *fakeBackend) IssueTrial(_ context.Context, ref StudyRef) (TrialRef, error) {
	if err := f.hit("issue"); err != nil {
		return TrialRef{}, err
	}
	st := f.study(ref.ID)
	for _, t := range st.trials {
		if t.State == StatePending {
			t.State = StateRunning
			return TrialRef{StudyID: ref.ID, ID: int64(t.Number), Number: t.Number, Fixed: st.fixed[t.Number]}, nil
		}
	}
	n := len(st.trials)
	if f.renumber != nil {
		n = *f.renumber
	}
	st.trials = append(st.trials, &TrialRecord{Number: n, State: StateRunning})
	return TrialRef{StudyID: ref.ID, ID: int64(n), Number: n}, nil
}

func (f *fakeBackend) SampleParameter(_ context.Context, trial TrialRef, name string, spec space.ParameterSpec) (space.Value, error) {
	if err := f.hit("sample"); err != nil {
		return space.Value{}, err
	}
	if v, ok := trial.Fixed[name]; ok {
		return v, nil
	}
	if f.propose != nil {
		return f.propose(trial, name, spec), nil
	}
	switch sp := spec.(type) {
	case space.Continuous:
		return space.Number(sp.At(0)), nil
	case space.Categorical:
		return space.Choice(sp.Choices[0]), nil
	}
	return space.Value{}, errors.New("unsupported spec")
}

func (f *fakeBackend) DiscardParameter(_ context.Context, trial TrialRef, name string) error {
	if err := f.hit("discard"); err != nil {
		return err
	}
	delete(f.study(trial.StudyID).fixed[trial.Number], name)
	return nil
}

func (f *fakeBackend) PersistNote(_ context.Context, trial TrialRef, note string) error {
	if err := f.hit("persist"); err != nil {
		return err
	}
	for _, t := range f.study(trial.StudyID).trials {
		if t.Number == trial.Number {
			t.Note, t.HasNote, t.State = note, true, StateCompleted
			return nil
		}
	}
	return errors.New("unknown trial")
}

func (f *fakeBackend) EnqueueSeed(_ context.Context, ref StudyRef, values space.Values) (bool, error) {
	if err := f.hit("enqueue"); err != nil {
		return false, err
	}
	st := f.study(ref.ID)
	if len(st.trials) > 0 {
		return false, nil
	}
	st.trials = append(st.trials, &TrialRecord{Number: 0, State: StatePending})
	st.fixed[0] = values
	return true, nil
}

func (f *fakeBackend) ListTrials(_ context.Context, ref StudyRef) ([]TrialRecord, error) {
	if err := f.hit("list"); err != nil {
		return nil, err
	}
	var out []TrialRecord
	for _, t := range f.study(ref.ID).trials {
		out = append(out, *t)
	}
	return out, nil
}
