// Package feedback connects studies to the surface where a person judges
// finished trials.
//
// Judgements come back as pairwise preferences ("trial 3 was better than
// trial 1") or skips. Both feed the sampler and release the generation
// gate, so the loop only moves on once someone has tasted the result.
package feedback

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/brewtune/internal/study"
)

var (
	// ErrUnknownStudy is returned when no study has the given name.
	ErrUnknownStudy = errors.New("unknown study")

	// ErrUnknownTrial is returned for a trial number the study does not have.
	ErrUnknownTrial = errors.New("unknown trial")

	// ErrTrialNotReady is returned when judging a trial without a note.
	ErrTrialNotReady = errors.New("trial not completed")

	// ErrInvalidJudgement is returned for a malformed preference, such as a
	// trial compared with itself.
	ErrInvalidJudgement = errors.New("invalid judgement")
)

// Surface is a feedback UI that shows each trial's note field.
type Surface interface {
	RegisterFeedbackSurface(ctx context.Context, ref study.StudyRef, noteField string) error
}

// Bridge registers studies with a Surface. Registration is best effort:
// failures are logged and never stop the loop.
type Bridge struct {
	surface Surface
	logger  *slog.Logger
}

// NewBridge creates a Bridge. A nil logger uses slog.Default().
func NewBridge(surface Surface, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{surface: surface, logger: logger}
}

// Register announces ref to the surface and reports whether it succeeded.
func (b *Bridge) Register(ctx context.Context, ref study.StudyRef, noteField string) bool {
	if b.surface == nil {
		b.logger.Debug("no feedback surface configured", "study", ref.Identity.Name)
		return false
	}
	if err := b.surface.RegisterFeedbackSurface(ctx, ref, noteField); err != nil {
		b.logger.Warn("feedback surface registration failed",
			"study", ref.Identity.Name,
			"note_field", noteField,
			"error", err,
		)
		return false
	}
	b.logger.Info("feedback surface registered", "study", ref.Identity.Name, "note_field", noteField)
	return true
}
