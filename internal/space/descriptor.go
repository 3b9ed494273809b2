package space

import "slices"

// Descriptor is the serialisable shape of a Space, stored with a study so
// later runs can detect breaking changes.
type Descriptor struct {
	Params []ParamDescriptor `json:"params"`
}

// ParamDescriptor describes one parameter. Range fields are zero for
// categorical parameters.
type ParamDescriptor struct {
	Name    string   `json:"name"`
	Kind    Kind     `json:"kind"`
	Min     float64  `json:"min,omitempty"`
	Max     float64  `json:"max,omitempty"`
	Step    float64  `json:"step,omitempty"`
	Choices []string `json:"choices,omitempty"`
}

// Descriptor returns the current shape of the space in declaration order.
func (s *Space) Descriptor() Descriptor {
	d := Descriptor{Params: make([]ParamDescriptor, 0, len(s.names))}
	for _, name := range s.names {
		pd := ParamDescriptor{Name: name, Kind: s.specs[name].Kind()}
		switch spec := s.specs[name].(type) {
		case Continuous:
			pd.Min, pd.Max, pd.Step = spec.Min, spec.Max, spec.Step
		case Categorical:
			pd.Choices = slices.Clone(spec.Choices)
		}
		d.Params = append(d.Params, pd)
	}
	return d
}

// Equal reports whether two descriptors describe the same space.
func (d Descriptor) Equal(o Descriptor) bool {
	return slices.EqualFunc(d.Params, o.Params, func(a, b ParamDescriptor) bool {
		return a.Name == b.Name && a.Kind == b.Kind &&
			a.Min == b.Min && a.Max == b.Max && a.Step == b.Step &&
			slices.Equal(a.Choices, b.Choices)
	})
}

// CheckCompatible compares the space against a stored descriptor.
//
// Every stored parameter must still exist with the same kind, otherwise
// historical trials would be orphaned and ErrIncompatibleSpace is returned.
// New parameters and changed ranges are allowed; changed is true when the
// stored descriptor should be rewritten.
func (s *Space) CheckCompatible(stored Descriptor) (changed bool, err error) {
	for _, p := range stored.Params {
		name := Normalize(p.Name)
		spec, ok := s.specs[name]
		if !ok {
			return false, newError(ErrIncompatibleSpace, name, "parameter was removed or renamed")
		}
		if spec.Kind() != p.Kind {
			return false, newError(ErrIncompatibleSpace, name, "kind changed from %s to %s", p.Kind, spec.Kind())
		}
	}
	return !s.Descriptor().Equal(stored), nil
}
