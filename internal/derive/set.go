package derive

import (
	"fmt"
	"slices"

	"github.com/roach88/brewtune/internal/space"
)

// Quantity is one derived value.
type Quantity struct {
	Key   string
	Value float64
}

// Set is an ordered collection of rules with unique names.
type Set struct {
	rules []Rule
}

// NewSet builds a Set, rejecting empty and duplicate rule names.
func NewSet(rules ...Rule) (*Set, error) {
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if r == nil {
			return nil, fmt.Errorf("%w: rule %d is nil", ErrInvalidRule, i)
		}
		name := space.Normalize(r.Name())
		if name == "" {
			return nil, fmt.Errorf("%w: rule %d has no name", ErrInvalidRule, i)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate rule %q", ErrInvalidRule, name)
		}
		seen[name] = true
	}
	return &Set{rules: slices.Clone(rules)}, nil
}

// Rules returns the rules in order.
func (s *Set) Rules() []Rule {
	if s == nil {
		return nil
	}
	return slices.Clone(s.rules)
}

// Len returns the number of rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Validate checks that every input is a declared continuous parameter of sp
// and that no rule shadows a parameter name.
func (s *Set) Validate(sp *space.Space) error {
	for _, r := range s.Rules() {
		if _, err := sp.Lookup(r.Name()); err == nil {
			return fmt.Errorf("%w: %q shadows a parameter", ErrInvalidRule, r.Name())
		}
		for _, in := range r.Inputs() {
			spec, err := sp.Lookup(in)
			if err != nil {
				return fmt.Errorf("rule %q: %w", r.Name(), err)
			}
			if spec.Kind() != space.KindContinuous {
				return fmt.Errorf("rule %q: %w: %q is %s, want continuous",
					r.Name(), space.ErrUnknownParameter, in, spec.Kind())
			}
		}
	}
	return nil
}

// Derive applies every rule to values in order. Rules whose inputs are
// missing are skipped, so trials sampled under an older space still render.
func (s *Set) Derive(values space.Values) []Quantity {
	out := make([]Quantity, 0, s.Len())
	for _, r := range s.Rules() {
		if f, ok := r.Apply(values); ok {
			out = append(out, Quantity{Key: space.Normalize(r.Name()), Value: f})
		}
	}
	return out
}
