package space

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Resolver produces a concrete value for one parameter of a trial.
// fixed is true when the value was pre-assigned (a default seed) rather
// than proposed by the optimizer.
type Resolver interface {
	Resolve(ctx context.Context, name string, spec ParameterSpec) (v Value, fixed bool, err error)
}

// Space is an ordered mapping from parameter name to ParameterSpec.
// A Space is not safe for concurrent Define calls; it is built once at
// startup and read-only afterwards.
type Space struct {
	names    []string
	specs    map[string]ParameterSpec
	truncate bool
}

// Option configures a Space.
type Option func(*Space)

// WithTruncatedRanges accepts Continuous specs whose Step does not divide
// Max-Min by lowering Max to the last grid point, instead of failing.
func WithTruncatedRanges() Option {
	return func(s *Space) {
		s.truncate = true
	}
}

// New creates an empty Space.
func New(opts ...Option) *Space {
	s := &Space{specs: make(map[string]ParameterSpec)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Normalize returns the canonical form of a parameter name (trimmed, NFC).
func Normalize(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// Define registers spec under name. Fails fast with ErrInvalidSearchSpace
// for an empty or duplicate name, or a malformed spec.
func (s *Space) Define(name string, spec ParameterSpec) error {
	name = Normalize(name)
	if name == "" {
		return newError(ErrInvalidSearchSpace, "", "parameter name must not be empty")
	}
	if _, dup := s.specs[name]; dup {
		return newError(ErrInvalidSearchSpace, name, "already defined")
	}
	spec = concrete(spec)
	if spec == nil {
		return newError(ErrInvalidSearchSpace, name, "spec must not be nil")
	}
	if err := spec.check(); err != nil {
		return newError(ErrInvalidSearchSpace, name, "%v", err)
	}

	if c, ok := spec.(Continuous); ok && !c.divides() {
		if !s.truncate {
			return newError(ErrInvalidSearchSpace, name,
				"step %v does not evenly divide range [%v, %v]", c.Step, c.Min, c.Max)
		}
		spec = c.truncated()
	}

	s.names = append(s.names, name)
	s.specs[name] = spec
	return nil
}

// MustDefine is like Define but panics on error.
// Use only in tests or for hard-coded spaces.
func (s *Space) MustDefine(name string, spec ParameterSpec) *Space {
	if err := s.Define(name, spec); err != nil {
		panic(err)
	}
	return s
}

// Names returns parameter names in declaration order.
func (s *Space) Names() []string {
	return slices.Clone(s.names)
}

// Len returns the number of declared parameters.
func (s *Space) Len() int {
	return len(s.names)
}

// Lookup returns the spec for name, or ErrUnknownParameter.
func (s *Space) Lookup(name string) (ParameterSpec, error) {
	name = Normalize(name)
	spec, ok := s.specs[name]
	if !ok {
		return nil, newError(ErrUnknownParameter, name, "not declared in search space")
	}
	return spec, nil
}

// Sample asks r to resolve name and checks the answer against its spec.
//
// Proposed numbers must sit on the grid. Fixed (seeded) numbers only need
// to be inside [Min, Max]; a seed is a human-chosen starting point and is
// kept exactly as given. Choices must always be members.
func (s *Space) Sample(ctx context.Context, name string, r Resolver) (Value, error) {
	name = Normalize(name)
	spec, err := s.Lookup(name)
	if err != nil {
		return Value{}, err
	}

	v, fixed, err := r.Resolve(ctx, name, spec)
	if err != nil {
		return Value{}, err
	}

	if err := checkResolved(spec, v, fixed); err != nil {
		return Value{}, newError(ErrOutOfDomain, name, "%v", err)
	}
	return v, nil
}

// Admits reports whether v is an acceptable answer for spec under the
// rules Sample applies. A value recorded under an older range may no
// longer be admitted.
func Admits(spec ParameterSpec, v Value, fixed bool) bool {
	return checkResolved(spec, v, fixed) == nil
}

func checkResolved(spec ParameterSpec, v Value, fixed bool) error {
	if !spec.Contains(v) {
		return fmt.Errorf("%s value %q not in domain", v.Kind(), v.String())
	}
	if c, ok := spec.(Continuous); ok && !fixed && !c.OnGrid(v) {
		return fmt.Errorf("value %s is not on grid %v + k*%v", v.String(), c.Min, c.Step)
	}
	return nil
}
