package space

import (
	"maps"
	"slices"
)

// DefaultSeed is a parameter assignment enqueued as the first trial of an
// empty study. Keys must be declared parameter names.
type DefaultSeed map[string]Value

// ValidateSeed checks seed against the space and returns it with
// normalised keys. Unknown keys fail with ErrUnknownParameter, values
// outside their domain with ErrInvalidSeed. A seed may cover a subset of
// the parameters; the rest are proposed by the optimizer.
func (s *Space) ValidateSeed(seed DefaultSeed) (Values, error) {
	if len(seed) == 0 {
		return nil, newError(ErrInvalidSeed, "", "seed is empty")
	}

	out := make(Values, len(seed))
	for _, raw := range slices.Sorted(maps.Keys(seed)) {
		name := Normalize(raw)
		spec, err := s.Lookup(name)
		if err != nil {
			return nil, err
		}
		v := seed[raw]
		if !spec.Contains(v) {
			return nil, newError(ErrInvalidSeed, name, "%s value %q not in domain", v.Kind(), v.String())
		}
		if _, dup := out[name]; dup {
			return nil, newError(ErrInvalidSeed, name, "assigned twice")
		}
		out[name] = v
	}
	return out, nil
}
