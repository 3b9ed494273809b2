// Package derive computes display quantities from sampled parameters.
//
// Rules are pure: they see only the trial's values and never fail. Lossy
// conversions such as integer truncation are expressed as a Rounding policy
// on the rule rather than as an error.
package derive

import (
	"errors"
	"fmt"
	"math"

	"github.com/roach88/brewtune/internal/space"
)

// ErrInvalidRule is returned by NewSet for a malformed rule set.
var ErrInvalidRule = errors.New("invalid derivation rule")

// Rounding is the policy applied to a rule's raw result.
type Rounding int

const (
	RoundNone Rounding = iota
	// RoundTruncate drops the fractional part, rounding toward zero.
	RoundTruncate
	RoundNearest
)

func (r Rounding) apply(f float64) float64 {
	switch r {
	case RoundTruncate:
		return math.Trunc(f)
	case RoundNearest:
		return math.Round(f)
	default:
		return f
	}
}

func (r Rounding) String() string {
	switch r {
	case RoundTruncate:
		return "truncate"
	case RoundNearest:
		return "nearest"
	default:
		return "none"
	}
}

// ParseRounding maps "", "none", "truncate" and "nearest" to a Rounding.
func ParseRounding(s string) (Rounding, error) {
	switch s {
	case "", "none":
		return RoundNone, nil
	case "truncate":
		return RoundTruncate, nil
	case "nearest":
		return RoundNearest, nil
	}
	return RoundNone, fmt.Errorf("%w: unknown rounding %q", ErrInvalidRule, s)
}

// Rule computes one named quantity.
type Rule interface {
	// Name is the key the quantity is published under.
	Name() string

	// Inputs lists the continuous parameters the rule reads.
	Inputs() []string

	// Apply returns the quantity, or false when an input is missing from values.
	Apply(values space.Values) (float64, bool)
}

// Scaled multiplies a parameter by a constant factor.
// Bean mass from a bean ratio and a fixed water weight is Scaled{Factor: 150, Round: RoundTruncate}.
type Scaled struct {
	Key    string
	Param  string
	Factor float64
	Round  Rounding
}

func (s Scaled) Name() string { return s.Key }
func (s Scaled) Inputs() []string { return []string{s.Param} }

func (s Scaled) Apply(values space.Values) (float64, bool) {
	f, ok := number(values, s.Param)
	if !ok {
		return 0, false
	}
	return s.Round.apply(f * s.Factor), true
}

// Truncated publishes a parameter with its fractional part dropped.
type Truncated struct {
	Key   string
	Param string
}

func (t Truncated) Name() string { return t.Key }
func (t Truncated) Inputs() []string { return []string{t.Param} }

func (t Truncated) Apply(values space.Values) (float64, bool) {
	f, ok := number(values, t.Param)
	if !ok {
		return 0, false
	}
	return math.Trunc(f), true
}

// Constant publishes a fixed value, e.g. the total water weight.
type Constant struct {
	Key   string
	Value float64
}

func (c Constant) Name() string { return c.Key }
func (c Constant) Inputs() []string { return nil }
func (c Constant) Apply(space.Values) (float64, bool) { return c.Value, true }

// number looks name up the way the space stores it, so a rule written in
// another Unicode form still finds its input.
func number(values space.Values, name string) (float64, bool) {
	v, ok := values[space.Normalize(name)]
	if !ok {
		return 0, false
	}
	return v.Float()
}
