package store

import "github.com/roach88/brewtune/internal/space"

// AttrFeedbackField is the study attribute naming the text field a
// feedback surface shows for each trial.
const AttrFeedbackField = "feedback.note_field"

// Trial states as stored in trials.state.
const (
	StatePending   = "pending"
	StateRunning   = "running"
	StateCompleted = "completed"
)

// StudyRecord is one row of studies.
type StudyRecord struct {
	ID         string
	Name       string
	Descriptor space.Descriptor
	Sampler    []byte
}

// TrialRecord is a trial with its sampled parameters.
type TrialRecord struct {
	ID      int64
	StudyID string
	Number  int
	State   string

	// Fixed holds seeded values that bypass the sampler.
	Fixed space.Values

	// Params holds sampled values; ParamOrder lists their names in
	// sampling order.
	Params     space.Values
	ParamOrder []string

	Note    string
	HasNote bool
	Skipped bool
}

// PreferenceRecord states that trial Better was preferred over trial Worse.
type PreferenceRecord struct {
	Better int
	Worse  int
}
