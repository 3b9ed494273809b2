package space

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is a sampled parameter value: a number for Continuous specs or a
// choice for Categorical specs. The zero Value is invalid.
type Value struct {
	kind   Kind
	num    float64
	choice string
}

// Number returns a numeric Value.
func Number(f float64) Value {
	return Value{kind: KindContinuous, num: f}
}

// Choice returns a categorical Value.
func Choice(s string) Value {
	return Value{kind: KindCategorical, choice: s}
}

// Kind reports which spec variant the value belongs to. Empty for the zero Value.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v was built with Number or Choice.
func (v Value) IsValid() bool { return v.kind != "" }

// Float returns the numeric value and true if v is a number.
func (v Value) Float() (float64, bool) {
	if v.kind != KindContinuous {
		return 0, false
	}
	return v.num, true
}

// Choice returns the categorical value and true if v is a choice.
func (v Value) Choice() (string, bool) {
	if v.kind != KindCategorical {
		return "", false
	}
	return v.choice, true
}

// Equal reports whether both values have the same kind and content.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.num == o.num && v.choice == o.choice
}

// String renders numbers in their shortest exact form and choices verbatim.
func (v Value) String() string {
	switch v.kind {
	case KindContinuous:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindCategorical:
		return v.choice
	default:
		return ""
	}
}

// MarshalJSON encodes numbers as JSON numbers and choices as JSON strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindContinuous:
		return json.Marshal(v.num)
	case KindCategorical:
		return json.Marshal(v.choice)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a JSON number, a JSON string or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = Value{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("unmarshal choice: %w", err)
		}
		*v = Choice(s)
		return nil
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("unmarshal number: %w", err)
		}
		*v = Number(f)
		return nil
	}
}

// Values maps parameter names to sampled values.
type Values map[string]Value

// Clone returns a shallow copy. A nil receiver yields an empty map.
func (vs Values) Clone() Values {
	out := make(Values, len(vs))
	for k, v := range vs {
		out[k] = v
	}
	return out
}
