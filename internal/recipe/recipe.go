// Package recipe compiles brewing recipes written in CUE into the pieces
// the loop runs on: a search space, a default seed, derivation rules and a
// note layout.
//
// A recipe file declares one or more recipes under the top-level "recipe"
// field:
//
//	recipe: coffee: {
//		study:   "Coffee recipe"
//		heading: "Recipe"
//		grid:    "truncate"
//		params: [{name: "waterTemp", min: 80, max: 95, step: 1}]
//		default: {waterTemp: 86}
//		derived: [{name: "water", constant: 150}]
//		note: [{label: "Water temperature (C)", key: "waterTemp", format: "int"}]
//	}
//
// Compilation uses the CUE Go API directly. Errors carry the CUE source
// position of the offending field.
package recipe

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/brewtune/internal/derive"
	"github.com/roach88/brewtune/internal/note"
	"github.com/roach88/brewtune/internal/space"
)

// ErrUnknownRecipe is returned when a recipe ID or file cannot be resolved.
var ErrUnknownRecipe = errors.New("unknown recipe")

// DefaultFeedbackField is the note field registered with feedback surfaces
// when a recipe does not name one.
const DefaultFeedbackField = "note"

// Recipe is a compiled recipe.
type Recipe struct {
	ID      string
	Study   string
	Heading string

	// FeedbackField is the note field a feedback surface displays.
	FeedbackField string

	Space  *space.Space
	Seed   space.DefaultSeed
	Rules  *derive.Set
	Layout note.Layout
}

// Renderer returns a note renderer for the recipe's layout.
func (r *Recipe) Renderer() *note.Renderer {
	return note.NewRenderer(r.Layout)
}

// Compile parses CUE source and returns its recipes in declaration order.
// filename is used for error positions only.
func Compile(data []byte, filename string) ([]*Recipe, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	recipesVal := v.LookupPath(cue.ParsePath("recipe"))
	if !recipesVal.Exists() {
		return nil, &CompileError{Field: "recipe", Message: "no recipes declared", Pos: v.Pos()}
	}

	iter, err := recipesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []*Recipe
	for iter.Next() {
		r, err := CompileRecipe(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, &CompileError{Field: "recipe", Message: "no recipes declared", Pos: recipesVal.Pos()}
	}
	return out, nil
}

// CompileFile reads and compiles a recipe file.
func CompileFile(path string) ([]*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipe file: %w", err)
	}
	return Compile(data, path)
}

// CompileRecipe compiles one recipe struct.
func CompileRecipe(id string, v cue.Value) (*Recipe, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	r := &Recipe{ID: id}

	study, ok, err := optionalString(v, "study")
	if err != nil {
		return nil, err
	}
	if !ok || study == "" {
		return nil, &CompileError{Field: "study", Message: "study is required", Pos: v.Pos()}
	}
	r.Study = study

	r.Heading, err = stringOr(v, "heading", study)
	if err != nil {
		return nil, err
	}
	r.FeedbackField, err = stringOr(v, "feedback", DefaultFeedbackField)
	if err != nil {
		return nil, err
	}

	r.Space, err = parseSpace(v)
	if err != nil {
		return nil, err
	}

	r.Seed, err = parseSeed(v, r.Space)
	if err != nil {
		return nil, err
	}

	r.Rules, err = parseRules(v, r.Space)
	if err != nil {
		return nil, err
	}

	r.Layout, err = parseLayout(v, r)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func parseSpace(v cue.Value) (*space.Space, error) {
	grid, err := stringOr(v, "grid", "strict")
	if err != nil {
		return nil, err
	}
	var sp *space.Space
	switch grid {
	case "strict":
		sp = space.New()
	case "truncate":
		sp = space.New(space.WithTruncatedRanges())
	default:
		return nil, &CompileError{
			Field:   "grid",
			Message: fmt.Sprintf("grid must be \"strict\" or \"truncate\", got %q", grid),
			Pos:     v.LookupPath(cue.ParsePath("grid")).Pos(),
		}
	}

	paramsVal := v.LookupPath(cue.ParsePath("params"))
	if !paramsVal.Exists() {
		return nil, &CompileError{Field: "params", Message: "at least one parameter is required", Pos: v.Pos()}
	}
	iter, err := paramsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		pv := iter.Value()
		name, spec, err := parseParam(pv)
		if err != nil {
			return nil, err
		}
		if err := sp.Define(name, spec); err != nil {
			return nil, &CompileError{Field: "params", Message: err.Error(), Pos: pv.Pos(), Err: err}
		}
	}
	if sp.Len() == 0 {
		return nil, &CompileError{Field: "params", Message: "at least one parameter is required", Pos: paramsVal.Pos()}
	}
	return sp, nil
}

func parseParam(v cue.Value) (string, space.ParameterSpec, error) {
	name, ok, err := optionalString(v, "name")
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, &CompileError{Field: "params", Message: "parameter name is required", Pos: v.Pos()}
	}

	choicesVal := v.LookupPath(cue.ParsePath("choices"))
	if choicesVal.Exists() {
		var choices []string
		iter, err := choicesVal.List()
		if err != nil {
			return "", nil, formatCUEError(err)
		}
		for iter.Next() {
			c, err := iter.Value().String()
			if err != nil {
				return "", nil, formatCUEError(err)
			}
			choices = append(choices, c)
		}
		return name, space.Categorical{Choices: choices}, nil
	}

	var c space.Continuous
	for _, f := range []struct {
		field string
		dst   *float64
	}{{"min", &c.Min}, {"max", &c.Max}, {"step", &c.Step}} {
		n, ok, err := optionalNumber(v, f.field)
		if err != nil {
			return "", nil, err
		}
		if !ok {
			return "", nil, &CompileError{
				Field:   "params",
				Message: fmt.Sprintf("parameter %q: %s is required (or give choices)", name, f.field),
				Pos:     v.Pos(),
			}
		}
		*f.dst = n
	}
	return name, c, nil
}

func parseSeed(v cue.Value, sp *space.Space) (space.DefaultSeed, error) {
	defVal := v.LookupPath(cue.ParsePath("default"))
	if !defVal.Exists() {
		return nil, nil
	}
	iter, err := defVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	seed := space.DefaultSeed{}
	for iter.Next() {
		fv := iter.Value()
		switch fv.IncompleteKind() {
		case cue.StringKind:
			s, err := fv.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			seed[iter.Label()] = space.Choice(s)
		case cue.IntKind, cue.FloatKind, cue.NumberKind:
			f, err := fv.Float64()
			if err != nil {
				return nil, formatCUEError(err)
			}
			seed[iter.Label()] = space.Number(f)
		default:
			return nil, &CompileError{
				Field:   "default",
				Message: fmt.Sprintf("%s: value must be a number or a string", iter.Label()),
				Pos:     fv.Pos(),
			}
		}
	}

	if _, err := sp.ValidateSeed(seed); err != nil {
		return nil, &CompileError{Field: "default", Message: err.Error(), Pos: defVal.Pos(), Err: err}
	}
	return seed, nil
}

func parseRules(v cue.Value, sp *space.Space) (*derive.Set, error) {
	var rules []derive.Rule

	derivedVal := v.LookupPath(cue.ParsePath("derived"))
	if derivedVal.Exists() {
		iter, err := derivedVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			rule, err := parseRule(iter.Value())
			if err != nil {
				return nil, err
			}
			rules = append(rules, rule)
		}
	}

	set, err := derive.NewSet(rules...)
	if err == nil {
		err = set.Validate(sp)
	}
	if err != nil {
		return nil, &CompileError{Field: "derived", Message: err.Error(), Pos: derivedVal.Pos(), Err: err}
	}
	return set, nil
}

// parseRule reads one derived entry. Exactly one of constant, scale or
// truncate selects the rule kind.
func parseRule(v cue.Value) (derive.Rule, error) {
	name, ok, err := optionalString(v, "name")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &CompileError{Field: "derived", Message: "derived quantity name is required", Pos: v.Pos()}
	}

	constant, hasConstant, err := optionalNumber(v, "constant")
	if err != nil {
		return nil, err
	}
	factor, hasScale, err := optionalNumber(v, "scale")
	if err != nil {
		return nil, err
	}
	truncate, hasTruncate, err := optionalBool(v, "truncate")
	if err != nil {
		return nil, err
	}
	hasTruncate = hasTruncate && truncate

	kinds := 0
	for _, b := range []bool{hasConstant, hasScale, hasTruncate} {
		if b {
			kinds++
		}
	}
	if kinds != 1 {
		return nil, &CompileError{
			Field:   "derived",
			Message: fmt.Sprintf("%s: exactly one of constant, scale or truncate is required", name),
			Pos:     v.Pos(),
		}
	}
	if hasConstant {
		return derive.Constant{Key: name, Value: constant}, nil
	}

	param, ok, err := optionalString(v, "param")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &CompileError{Field: "derived", Message: fmt.Sprintf("%s: param is required", name), Pos: v.Pos()}
	}
	if hasTruncate {
		return derive.Truncated{Key: name, Param: param}, nil
	}

	roundName, err := stringOr(v, "round", "")
	if err != nil {
		return nil, err
	}
	round, err := derive.ParseRounding(roundName)
	if err != nil {
		return nil, &CompileError{Field: "derived", Message: err.Error(), Pos: v.LookupPath(cue.ParsePath("round")).Pos(), Err: err}
	}
	return derive.Scaled{Key: name, Param: param, Factor: factor, Round: round}, nil
}

func parseLayout(v cue.Value, r *Recipe) (note.Layout, error) {
	noteVal := v.LookupPath(cue.ParsePath("note"))
	if !noteVal.Exists() {
		return note.DefaultLayout(r.Heading, r.Space, r.Rules), nil
	}

	known := make(map[string]bool)
	for _, name := range r.Space.Names() {
		known[name] = true
	}
	for _, rule := range r.Rules.Rules() {
		known[space.Normalize(rule.Name())] = true
	}

	layout := note.Layout{Heading: r.Heading}
	iter, err := noteVal.List()
	if err != nil {
		return note.Layout{}, formatCUEError(err)
	}
	for iter.Next() {
		lv := iter.Value()
		key, ok, err := optionalString(lv, "key")
		if err != nil {
			return note.Layout{}, err
		}
		if !ok || !known[space.Normalize(key)] {
			return note.Layout{}, &CompileError{
				Field:   "note",
				Message: fmt.Sprintf("note key %q is not a parameter or derived quantity", key),
				Pos:     lv.Pos(),
			}
		}
		label, err := stringOr(lv, "label", key)
		if err != nil {
			return note.Layout{}, err
		}
		formatName, err := stringOr(lv, "format", "")
		if err != nil {
			return note.Layout{}, err
		}
		format, err := note.ParseFormat(formatName)
		if err != nil {
			return note.Layout{}, &CompileError{Field: "note", Message: err.Error(), Pos: lv.Pos(), Err: err}
		}
		layout.Lines = append(layout.Lines, note.Line{Label: label, Key: key, Format: format})
	}
	return layout, nil
}

func optionalString(v cue.Value, field string) (string, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", false, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", false, formatCUEError(err)
	}
	return s, true, nil
}

func stringOr(v cue.Value, field, fallback string) (string, error) {
	s, ok, err := optionalString(v, field)
	if err != nil || !ok {
		return fallback, err
	}
	return s, nil
}

func optionalNumber(v cue.Value, field string) (float64, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, false, nil
	}
	f, err := fv.Float64()
	if err != nil {
		return 0, false, formatCUEError(err)
	}
	return f, true, nil
}

func optionalBool(v cue.Value, field string) (bool, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, false, formatCUEError(err)
	}
	return b, true, nil
}
