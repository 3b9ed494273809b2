package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/brewtune/internal/store"
	"github.com/roach88/brewtune/internal/study"
)

var judgementValidate = validator.New()

// Preference is one pairwise judgement between two trials of a study.
type Preference struct {
	Better int `validate:"gte=0"`
	Worse  int `validate:"gte=0,nefield=Better"`
}

// Recorder is the store-backed feedback surface used by the CLI.
type Recorder struct {
	store *store.Store
}

// NewRecorder creates a Recorder over st.
func NewRecorder(st *store.Store) *Recorder {
	return &Recorder{store: st}
}

// RegisterFeedbackSurface stores noteField on the study.
func (r *Recorder) RegisterFeedbackSurface(ctx context.Context, ref study.StudyRef, noteField string) error {
	if err := r.store.SetStudyAttr(ctx, ref.ID, store.AttrFeedbackField, noteField); err != nil {
		return fmt.Errorf("register feedback surface: %w", err)
	}
	return nil
}

// NoteField returns the note field registered for a study, if any.
func (r *Recorder) NoteField(ctx context.Context, studyName string) (string, bool, error) {
	rec, err := r.study(ctx, studyName)
	if err != nil {
		return "", false, err
	}
	return r.store.ReadStudyAttr(ctx, rec.ID, store.AttrFeedbackField)
}

// Prefer records that p.Better beat p.Worse. Both trials must exist and be
// completed. inserted is false when the same judgement was already recorded.
func (r *Recorder) Prefer(ctx context.Context, studyName string, p Preference) (inserted bool, err error) {
	if err := judgementValidate.Struct(p); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidJudgement, err)
	}
	rec, err := r.study(ctx, studyName)
	if err != nil {
		return false, err
	}
	for _, n := range []int{p.Better, p.Worse} {
		if err := r.judgeable(ctx, rec.ID, n); err != nil {
			return false, err
		}
	}

	inserted, err = r.store.WritePreference(ctx, rec.ID, p.Better, p.Worse)
	if err != nil {
		return false, err
	}
	if inserted {
		judgementsTotal.WithLabelValues("prefer").Inc()
	}
	return inserted, nil
}

// Skip marks a completed trial as skipped: it no longer counts towards the
// generation gate and is left out of the sampler's history.
func (r *Recorder) Skip(ctx context.Context, studyName string, number int) error {
	rec, err := r.study(ctx, studyName)
	if err != nil {
		return err
	}
	if err := r.judgeable(ctx, rec.ID, number); err != nil {
		return err
	}
	if err := r.store.SetSkipped(ctx, rec.ID, number, true); err != nil {
		return err
	}
	judgementsTotal.WithLabelValues("skip").Inc()
	return nil
}

func (r *Recorder) study(ctx context.Context, name string) (store.StudyRecord, error) {
	rec, err := r.store.ReadStudy(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return store.StudyRecord{}, fmt.Errorf("%w: %q", ErrUnknownStudy, name)
	}
	return rec, err
}

func (r *Recorder) judgeable(ctx context.Context, studyID string, number int) error {
	trial, err := r.store.ReadTrial(ctx, studyID, number)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %d", ErrUnknownTrial, number)
	}
	if err != nil {
		return err
	}
	if trial.State != store.StateCompleted {
		return fmt.Errorf("%w: trial %d is %s", ErrTrialNotReady, number, trial.State)
	}
	return nil
}
