package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/brewtune/internal/space"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Index    int
	Type     string
	Message  string
	Expected any
	Actual   any
}

func (e *AssertionError) Error() string {
	if e.Expected != nil || e.Actual != nil {
		return fmt.Sprintf("assertion %d (%s): %s\n  expected: %v\n  actual:   %v",
			e.Index, e.Type, e.Message, e.Expected, e.Actual)
	}
	return fmt.Sprintf("assertion %d (%s): %s", e.Index, e.Type, e.Message)
}

// EvaluateAssertions checks every assertion against result and records
// failures in it.
func EvaluateAssertions(assertions []Assertion, result *Result) {
	for i, a := range assertions {
		if err := evaluate(i, a, result); err != nil {
			result.AddError(err.Error())
		}
	}
}

func evaluate(index int, a Assertion, result *Result) error {
	fail := func(msg string, expected, actual any) error {
		return &AssertionError{Index: index, Type: a.Type, Message: msg, Expected: expected, Actual: actual}
	}

	switch a.Type {
	case AssertTrialCount:
		if got := len(result.Trials); got != a.Count {
			return fail("trial count mismatch", a.Count, got)
		}
		return nil

	case AssertGate:
		if result.GateOpen != *a.Open {
			return fail("gate mismatch", gateWord(*a.Open), gateWord(result.GateOpen))
		}
		return nil
	}

	t, ok := result.trial(*a.Trial)
	if !ok {
		return fail(fmt.Sprintf("trial %d does not exist", *a.Trial), nil, nil)
	}

	switch a.Type {
	case AssertTrialState:
		if got := t.State.String(); got != a.State {
			return fail(fmt.Sprintf("trial %d state mismatch", t.Number), a.State, got)
		}

	case AssertParamEquals:
		want, err := expectedValue(a.Value)
		if err != nil {
			return fail(err.Error(), nil, nil)
		}
		got, ok := t.Values()[space.Normalize(a.Param)]
		if !ok {
			return fail(fmt.Sprintf("trial %d has no parameter %q", t.Number, a.Param), nil, nil)
		}
		if !got.Equal(want) {
			return fail(fmt.Sprintf("trial %d parameter %q mismatch", t.Number, a.Param), want, got)
		}

	case AssertNoteContains:
		if !t.HasNote {
			return fail(fmt.Sprintf("trial %d has no note", t.Number), nil, nil)
		}
		if !strings.Contains(t.Note, a.Text) {
			return fail(fmt.Sprintf("trial %d note does not contain text", t.Number), a.Text, t.Note)
		}
	}
	return nil
}

// expectedValue converts a YAML scalar into a parameter value.
func expectedValue(v any) (space.Value, error) {
	switch x := v.(type) {
	case int:
		return space.Number(float64(x)), nil
	case float64:
		return space.Number(x), nil
	case string:
		return space.Choice(x), nil
	default:
		return space.Value{}, fmt.Errorf("value %v has unsupported type %T", v, v)
	}
}

func gateWord(open bool) string {
	if open {
		return "open"
	}
	return "closed"
}
