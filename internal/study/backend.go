package study

import (
	"context"

	"github.com/roach88/brewtune/internal/space"
)

// Identity uniquely names a study: a name within a storage location.
type Identity struct {
	StorageLocation string
	Name            string
}

func (id Identity) String() string {
	if id.StorageLocation == "" {
		return id.Name
	}
	return id.StorageLocation + "#" + id.Name
}

// StudyRef is a backend's handle on an opened study.
type StudyRef struct {
	ID       string
	Identity Identity

	// Descriptor is the search space shape as stored by the backend. On a
	// resumed study it may differ from the caller's space.
	Descriptor space.Descriptor

	// Created is true when OpenStudy created the study.
	Created bool
}

// TrialRef is a backend's handle on an issued trial.
type TrialRef struct {
	StudyID string
	ID      int64
	Number  int

	// Fixed holds the seeded values the trial was enqueued with. The
	// backend returns them from SampleParameter without consulting the
	// optimizer.
	Fixed space.Values

	// Sampled holds values already recorded for a trial resumed after a
	// stop, in sampling order.
	Sampled []NamedValue
}

// NamedValue is one parameter value.
type NamedValue struct {
	Name  string
	Value space.Value
}

// State is a trial's lifecycle state.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// ParseState maps a state name back to a State.
func ParseState(s string) (State, bool) {
	switch s {
	case "pending":
		return StatePending, true
	case "running":
		return StateRunning, true
	case "completed":
		return StateCompleted, true
	}
	return 0, false
}

// TrialRecord is a trial as listed by a backend.
type TrialRecord struct {
	Number  int
	State   State
	Params  []NamedValue
	Note    string
	HasNote bool
	Skipped bool
}

// Values returns the sampled parameters as a map.
func (r TrialRecord) Values() space.Values {
	vals := make(space.Values, len(r.Params))
	for _, p := range r.Params {
		vals[p.Name] = p.Value
	}
	return vals
}

// Backend is the optimizer and storage collaborator. Every call is
// synchronous and either succeeds or fails; infrastructure failures should
// wrap ErrCollaboratorUnavailable.
type Backend interface {
	// OpenStudy loads the study with this identity or creates it with
	// desc and samplerConfig. Repeated calls return the same study.
	OpenStudy(ctx context.Context, id Identity, desc space.Descriptor, samplerConfig []byte) (StudyRef, error)

	// UpdateDescriptor stores a new, compatible search space shape.
	UpdateDescriptor(ctx context.Context, ref StudyRef, desc space.Descriptor) error

	// ShouldGenerate reports whether a new trial may be issued now.
	// It must not block waiting for that to become true.
	ShouldGenerate(ctx context.Context, ref StudyRef) (bool, error)

	// IssueTrial claims the next trial: an enqueued seed first, else a
	// fresh trial numbered after every existing one.
	IssueTrial(ctx context.Context, ref StudyRef) (TrialRef, error)

	// SampleParameter returns and records the value of one parameter:
	// the fixed value if the trial has one, else an optimizer proposal.
	SampleParameter(ctx context.Context, trial TrialRef, name string, spec space.ParameterSpec) (space.Value, error)

	// DiscardParameter forgets the recorded and any seeded value of name
	// on a running trial, so the next SampleParameter proposes afresh.
	DiscardParameter(ctx context.Context, trial TrialRef, name string) error

	// PersistNote attaches note to the trial and completes it atomically.
	PersistNote(ctx context.Context, trial TrialRef, note string) error

	// EnqueueSeed enqueues values as the first trial if the study has no
	// trials. enqueued is false when trials already exist.
	EnqueueSeed(ctx context.Context, ref StudyRef, values space.Values) (enqueued bool, err error)

	// ListTrials returns every trial ordered by number.
	ListTrials(ctx context.Context, ref StudyRef) ([]TrialRecord, error)
}
