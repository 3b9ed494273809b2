package study

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionUnavailable matches any *SessionError: the session could not
	// service a request because its backend failed.
	ErrSessionUnavailable = errors.New("session unavailable")

	// ErrCollaboratorUnavailable is wrapped by backends around storage or
	// optimizer failures.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrIncompleteTrial is returned by PersistNote before every declared
	// parameter has been sampled.
	ErrIncompleteTrial = errors.New("trial has unsampled parameters")

	// ErrForeignTrial is returned when a Trial is passed to a session that
	// did not issue it.
	ErrForeignTrial = errors.New("trial belongs to another session")

	// ErrInvalidIdentity is returned by Open for an empty study name.
	ErrInvalidIdentity = errors.New("invalid study identity")
)

// SessionError reports a backend failure during a session operation.
// It matches ErrSessionUnavailable with errors.Is and unwraps to the
// backend's error, which usually wraps ErrCollaboratorUnavailable.
type SessionError struct {
	// Op is the session operation that failed, e.g. "issue trial".
	Op string

	// Study is the study name.
	Study string

	Err error
}

func (e *SessionError) Error() string {
	if e.Study != "" {
		return fmt.Sprintf("%v: %s (study=%s): %v", ErrSessionUnavailable, e.Op, e.Study, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", ErrSessionUnavailable, e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Is makes every SessionError match ErrSessionUnavailable.
func (e *SessionError) Is(target error) bool {
	return target == ErrSessionUnavailable
}

// IsSessionError returns true if err is or wraps a *SessionError.
// Uses errors.As to handle wrapped errors.
func IsSessionError(err error) bool {
	var se *SessionError
	return errors.As(err, &se)
}
