// Package note renders a trial as the human-readable recipe a person
// follows at the brew station.
//
// Output is a markdown heading followed by one "- label: value" line per
// layout entry, in layout order. Rendering never fails: a value the layout
// asks for but the trial lacks is printed as "-".
package note

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/brewtune/internal/derive"
	"github.com/roach88/brewtune/internal/space"
)

// Missing is rendered for a key with no value.
const Missing = "-"

// Format selects how a value is printed.
type Format string

const (
	// FormatAuto prints whole numbers as integers, other numbers in
	// shortest form, and choices verbatim.
	FormatAuto Format = ""
	// FormatInt truncates numbers toward zero.
	FormatInt   Format = "int"
	FormatFloat Format = "float"
	FormatText  Format = "text"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatAuto, FormatInt, FormatFloat, FormatText:
		return f, nil
	}
	return FormatAuto, fmt.Errorf("unknown note format %q", s)
}

// Line is one "- Label: value" entry. Key names a parameter or a derived quantity.
type Line struct {
	Label  string
	Key    string
	Format Format
}

// Layout is the fixed structure of a note.
type Layout struct {
	Heading string
	Lines   []Line
}

// DefaultLayout lists every parameter of sp then every rule of rules,
// labelled by name.
func DefaultLayout(heading string, sp *space.Space, rules *derive.Set) Layout {
	l := Layout{Heading: heading}
	for _, name := range sp.Names() {
		l.Lines = append(l.Lines, Line{Label: name, Key: name})
	}
	for _, r := range rules.Rules() {
		name := space.Normalize(r.Name())
		l.Lines = append(l.Lines, Line{Label: name, Key: name})
	}
	return l
}

// Renderer turns trial values into note text.
type Renderer struct {
	layout Layout
}

// NewRenderer returns a Renderer for layout. Keys are NFC-normalised so they
// join with parameter names.
func NewRenderer(layout Layout) *Renderer {
	lines := make([]Line, len(layout.Lines))
	for i, ln := range layout.Lines {
		ln.Key = space.Normalize(ln.Key)
		if ln.Label == "" {
			ln.Label = ln.Key
		}
		lines[i] = ln
	}
	return &Renderer{layout: Layout{Heading: layout.Heading, Lines: lines}}
}

// Layout returns the normalised layout.
func (r *Renderer) Layout() Layout {
	return r.layout
}

// Render formats values and derived quantities. Same inputs, same bytes.
func (r *Renderer) Render(values space.Values, derived []derive.Quantity) string {
	lookup := make(map[string]space.Value, len(values)+len(derived))
	for _, q := range derived {
		lookup[q.Key] = space.Number(q.Value)
	}
	for k, v := range values {
		lookup[k] = v
	}

	var b strings.Builder
	if r.layout.Heading != "" {
		fmt.Fprintf(&b, "## %s\n", r.layout.Heading)
	}
	for _, ln := range r.layout.Lines {
		v, ok := lookup[ln.Key]
		text := Missing
		if ok {
			text = formatValue(v, ln.Format)
		}
		fmt.Fprintf(&b, "- %s: %s\n", ln.Label, text)
	}
	return b.String()
}

func formatValue(v space.Value, format Format) string {
	f, ok := v.Float()
	if !ok {
		if !v.IsValid() {
			return Missing
		}
		return v.String()
	}

	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return Missing
	case format == FormatText || format == FormatFloat:
		return strconv.FormatFloat(f, 'f', -1, 64)
	case format == FormatInt:
		return formatInt(math.Trunc(f))
	case f == math.Trunc(f):
		return formatInt(f)
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}

// formatInt prints an integral float without exponent or fraction.
func formatInt(f float64) string {
	if math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', 0, 64)
}
