package space

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Kind identifies the variant of a ParameterSpec.
type Kind string

const (
	KindContinuous  Kind = "continuous"
	KindCategorical Kind = "categorical"
)

// gridTolerance absorbs float error when testing grid membership.
const gridTolerance = 1e-9

// maxDecimals caps the precision grid points are rounded to.
const maxDecimals = 12

// ParameterSpec describes the domain of one parameter.
// Sealed: only Continuous and Categorical implement it.
type ParameterSpec interface {
	Kind() Kind

	// Contains reports whether v is inside the domain. For Continuous specs
	// this is the closed range [Min, Max]; grid membership is checked separately.
	Contains(v Value) bool

	check() error
}

// Continuous is a numeric range discretised into the grid Min + k*Step.
type Continuous struct {
	Min  float64
	Max  float64
	Step float64
}

func (Continuous) Kind() Kind { return KindContinuous }

func (c Continuous) check() error {
	switch {
	case !finite(c.Min) || !finite(c.Max) || !finite(c.Step):
		return fmt.Errorf("bounds must be finite (min=%v max=%v step=%v)", c.Min, c.Max, c.Step)
	case c.Step <= 0:
		return fmt.Errorf("step must be positive, got %v", c.Step)
	case c.Min > c.Max:
		return fmt.Errorf("min %v exceeds max %v", c.Min, c.Max)
	}
	return nil
}

// Contains reports whether v is a number within [Min, Max].
func (c Continuous) Contains(v Value) bool {
	f, ok := v.Float()
	if !ok {
		return false
	}
	tol := gridTolerance * math.Max(1, math.Abs(c.Max))
	return f >= c.Min-tol && f <= c.Max+tol
}

// Len returns the number of grid points.
func (c Continuous) Len() int {
	return int(math.Floor((c.Max-c.Min)/c.Step+gridTolerance)) + 1
}

// At returns grid point k, clamped to the grid and rounded to the
// precision of Min and Step so that 0.053+3*0.01 yields 0.083.
func (c Continuous) At(k int) float64 {
	k = max(0, min(k, c.Len()-1))
	v := c.round(c.Min + float64(k)*c.Step)
	return min(v, c.Max)
}

// Nearest returns the index of the grid point closest to f.
func (c Continuous) Nearest(f float64) int {
	k := int(math.Round((f - c.Min) / c.Step))
	return max(0, min(k, c.Len()-1))
}

// Snap returns the grid point closest to f.
func (c Continuous) Snap(f float64) float64 {
	return c.At(c.Nearest(f))
}

// OnGrid reports whether v is a number lying on a grid point.
func (c Continuous) OnGrid(v Value) bool {
	if !c.Contains(v) {
		return false
	}
	f, _ := v.Float()
	return math.Abs(c.Snap(f)-f) <= gridTolerance*math.Max(1, math.Abs(f))
}

func (c Continuous) divides() bool {
	r := (c.Max - c.Min) / c.Step
	return math.Abs(r-math.Round(r)) <= gridTolerance*math.Max(1, r)
}

func (c Continuous) truncated() Continuous {
	n := int(math.Floor((c.Max-c.Min)/c.Step + gridTolerance))
	c.Max = c.round(c.Min + float64(n)*c.Step)
	return c
}

func (c Continuous) round(f float64) float64 {
	p := math.Pow10(max(decimals(c.Min), decimals(c.Step)))
	if math.Abs(f*p) > 1e15 {
		return f
	}
	return math.Round(f*p) / p
}

func decimals(f float64) int {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return min(len(s)-i-1, maxDecimals)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Categorical is an ordered, non-empty set of allowed choices.
type Categorical struct {
	Choices []string
}

func (Categorical) Kind() Kind { return KindCategorical }

func (c Categorical) check() error {
	if len(c.Choices) == 0 {
		return fmt.Errorf("choices must not be empty")
	}
	seen := make(map[string]bool, len(c.Choices))
	for _, ch := range c.Choices {
		if seen[ch] {
			return fmt.Errorf("duplicate choice %q", ch)
		}
		seen[ch] = true
	}
	return nil
}

// Contains reports whether v is one of the choices.
func (c Categorical) Contains(v Value) bool {
	s, ok := v.Choice()
	return ok && c.Index(s) >= 0
}

// Index returns the position of choice, or -1.
func (c Categorical) Index(choice string) int {
	return slices.Index(c.Choices, choice)
}

// concrete dereferences pointer specs so type switches only see values.
func concrete(spec ParameterSpec) ParameterSpec {
	switch sp := spec.(type) {
	case *Continuous:
		if sp != nil {
			return *sp
		}
		return nil
	case *Categorical:
		if sp != nil {
			return Categorical{Choices: slices.Clone(sp.Choices)}
		}
		return nil
	case Categorical:
		return Categorical{Choices: slices.Clone(sp.Choices)}
	}
	return spec
}
