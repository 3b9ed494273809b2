// Package backend implements study.Backend: the optimizer and storage
// collaborator behind a study session.
//
// SQLite persists studies through internal/store and proposes values with
// the preference sampler. Memory keeps everything in process for tests and
// dry runs, and can inject failures.
//
// Both share the generation gate of a preferential optimizer dashboard:
// a new trial may be issued while fewer than GenerateLimit trials are
// active, where active means running, or completed and neither
// skipped nor ever judged the worse of a pair.
package backend

import (
	"errors"
	"fmt"

	"github.com/roach88/brewtune/internal/study"
)

// DefaultGenerateLimit is the number of active trials at which generation
// pauses until a human compares or skips one.
const DefaultGenerateLimit = 2

// ErrLocationMismatch is returned when a study identity names a storage
// location other than the one the backend serves.
var ErrLocationMismatch = errors.New("storage location mismatch")

// unavailable wraps an infrastructure failure so callers can match
// study.ErrCollaboratorUnavailable.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", study.ErrCollaboratorUnavailable, op, err)
}
