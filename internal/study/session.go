package study

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/brewtune/internal/space"
)

// Session is an opened study bound to a search space.
type Session struct {
	backend Backend
	space   *space.Space
	ref     StudyRef
	logger  *slog.Logger

	seedChecked bool
	lastNumber  int
	issued      bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// Open resumes the study named by id, or creates it empty.
//
// The stored search space must still be compatible with sp: removing,
// renaming or re-kinding a parameter fails with space.ErrIncompatibleSpace
// and the session is not opened. Compatible changes (added parameters,
// new ranges) are written back to the backend. samplerConfig is passed to
// the backend unmodified.
//
// Open is idempotent: opening the same identity again returns a session
// over the same trial history.
func Open(ctx context.Context, b Backend, id Identity, sp *space.Space, samplerConfig []byte, opts ...Option) (*Session, error) {
	id.Name = strings.TrimSpace(id.Name)
	if id.Name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidIdentity)
	}
	if sp == nil || sp.Len() == 0 {
		return nil, fmt.Errorf("%w: study %q declares no parameters", space.ErrInvalidSearchSpace, id.Name)
	}

	s := &Session{
		backend:    b,
		space:      sp,
		logger:     slog.Default(),
		lastNumber: -1,
	}
	for _, opt := range opts {
		opt(s)
	}

	desc := sp.Descriptor()
	ref, err := b.OpenStudy(ctx, id, desc, samplerConfig)
	if err != nil {
		return nil, &SessionError{Op: "open", Study: id.Name, Err: err}
	}

	changed, err := sp.CheckCompatible(ref.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("open study %q: %w", id.Name, err)
	}
	if changed {
		if err := b.UpdateDescriptor(ctx, ref, desc); err != nil {
			return nil, &SessionError{Op: "update descriptor", Study: id.Name, Err: err}
		}
		s.logger.Info("search space updated", "study", id.Name, "params", sp.Len())
	}
	ref.Descriptor = desc
	s.ref = ref

	s.logger.Info("study opened",
		"study", id.Name,
		"id", ref.ID,
		"location", id.StorageLocation,
		"created", ref.Created,
	)
	return s, nil
}

// Ref returns the backend handle of the study.
func (s *Session) Ref() StudyRef {
	return s.ref
}

// Space returns the session's search space.
func (s *Session) Space() *space.Space {
	return s.space
}

// SeedDefaultIfEmpty enqueues seed as the first trial if the study has no
// trials. It validates the seed against the space first: unknown names fail
// with space.ErrUnknownParameter and out-of-domain values with
// space.ErrInvalidSeed. Only the first call per session reaches the
// backend; later calls return (false, nil).
func (s *Session) SeedDefaultIfEmpty(ctx context.Context, seed space.DefaultSeed) (enqueued bool, err error) {
	if s.seedChecked {
		return false, nil
	}
	vals, err := s.space.ValidateSeed(seed)
	if err != nil {
		return false, fmt.Errorf("seed study %q: %w", s.ref.Identity.Name, err)
	}

	enqueued, err = s.backend.EnqueueSeed(ctx, s.ref, vals)
	if err != nil {
		return false, &SessionError{Op: "enqueue seed", Study: s.ref.Identity.Name, Err: err}
	}
	s.seedChecked = true

	if enqueued {
		s.logger.Info("default trial enqueued", "study", s.ref.Identity.Name, "params", len(vals))
	} else {
		s.logger.Debug("default trial skipped: study has trials", "study", s.ref.Identity.Name)
	}
	return enqueued, nil
}

// ShouldGenerate asks the backend whether a new trial may be issued now.
func (s *Session) ShouldGenerate(ctx context.Context) (bool, error) {
	ok, err := s.backend.ShouldGenerate(ctx, s.ref)
	if err != nil {
		return false, &SessionError{Op: "should generate", Study: s.ref.Identity.Name, Err: err}
	}
	return ok, nil
}

// IssueTrial claims the next trial. A pending seeded trial comes first
// and carries its seed values; otherwise parameters are proposed lazily as
// they are sampled. Trial numbers issued by one session strictly increase.
func (s *Session) IssueTrial(ctx context.Context) (*Trial, error) {
	ref, err := s.backend.IssueTrial(ctx, s.ref)
	if err != nil {
		return nil, &SessionError{Op: "issue trial", Study: s.ref.Identity.Name, Err: err}
	}
	if s.issued && ref.Number <= s.lastNumber {
		return nil, &SessionError{
			Op:    "issue trial",
			Study: s.ref.Identity.Name,
			Err:   fmt.Errorf("backend issued trial %d after trial %d", ref.Number, s.lastNumber),
		}
	}
	s.issued = true
	s.lastNumber = ref.Number

	t := newTrial(s, ref)
	s.logger.Debug("trial issued",
		"study", s.ref.Identity.Name,
		"trial", ref.Number,
		"seeded", len(ref.Fixed) > 0,
		"resumed", len(ref.Sampled) > 0,
	)
	return t, nil
}

// PersistNote attaches note to t and completes it. Every declared
// parameter must have been sampled first, otherwise ErrIncompleteTrial is
// returned and nothing is written. A second call replaces the note.
func (s *Session) PersistNote(ctx context.Context, t *Trial, note string) error {
	if t == nil || t.session != s {
		return ErrForeignTrial
	}
	if missing := t.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: trial %d: %s", ErrIncompleteTrial, t.ref.Number, strings.Join(missing, ", "))
	}

	if err := s.backend.PersistNote(ctx, t.ref, note); err != nil {
		return &SessionError{Op: "persist note", Study: s.ref.Identity.Name, Err: err}
	}
	t.state = StateCompleted
	t.note = note
	t.hasNote = true
	return nil
}

// Trials lists the study's trials ordered by number.
func (s *Session) Trials(ctx context.Context) ([]TrialRecord, error) {
	trials, err := s.backend.ListTrials(ctx, s.ref)
	if err != nil {
		return nil, &SessionError{Op: "list trials", Study: s.ref.Identity.Name, Err: err}
	}
	return trials, nil
}
