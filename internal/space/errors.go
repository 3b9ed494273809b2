package space

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSearchSpace is returned at definition time for a malformed spec.
	ErrInvalidSearchSpace = errors.New("invalid search space")

	// ErrUnknownParameter is returned when a name is not declared in the space.
	ErrUnknownParameter = errors.New("unknown parameter")

	// ErrOutOfDomain is returned when a resolved value violates its spec.
	ErrOutOfDomain = errors.New("value outside parameter domain")

	// ErrInvalidSeed is returned when a default seed value is outside its spec.
	ErrInvalidSeed = errors.New("invalid default seed")

	// ErrIncompatibleSpace is returned when a stored descriptor cannot be
	// reconciled with the current space (removed, renamed or re-kinded parameter).
	ErrIncompatibleSpace = errors.New("incompatible search space")
)

// Error carries the offending parameter alongside one of the sentinel errors above.
// Use errors.Is against the sentinels to classify it.
type Error struct {
	Kind    error
	Param   string
	Message string
}

func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%v: %q: %s", e.Kind, e.Param, e.Message)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, param, format string, args ...any) *Error {
	return &Error{Kind: kind, Param: param, Message: fmt.Sprintf(format, args...)}
}
