package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/brewtune/internal/recipe"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <recipe>...",
		Short: "Check recipes without running them",
		Long: `Compile recipe files (or built-in recipe IDs) and report the first
error in each, with its file position.

Example:
  brewtune validate ./recipes/tea.cue
  brewtune validate coffee colddrip --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
}

type validationResult struct {
	Valid   bool            `json:"valid"`
	Recipes []recipeSummary `json:"recipes"`
}

type recipeSummary struct {
	Ref     string   `json:"ref"`
	ID      string   `json:"id,omitempty"`
	Study   string   `json:"study,omitempty"`
	Params  []string `json:"params,omitempty"`
	Seeded  bool     `json:"seeded"`
	Derived int      `json:"derived"`
	Error   string   `json:"error,omitempty"`
	Line    int      `json:"line,omitempty"`
}

func (r validationResult) String() string {
	var b strings.Builder
	for _, s := range r.Recipes {
		if s.Error != "" {
			fmt.Fprintf(&b, "✗ %s: %s\n", s.Ref, s.Error)
			continue
		}
		fmt.Fprintf(&b, "✓ %s: study %q, %d parameter(s), %d derived", s.Ref, s.Study, len(s.Params), s.Derived)
		if s.Seeded {
			b.WriteString(", seeded")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func summarize(ref string, r *recipe.Recipe) recipeSummary {
	return recipeSummary{
		Ref:     ref,
		ID:      r.ID,
		Study:   r.Study,
		Params:  r.Space.Names(),
		Seeded:  len(r.Seed) > 0,
		Derived: r.Rules.Len(),
	}
}

func runValidate(opts *RootOptions, refs []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result := validationResult{Valid: true}
	for _, ref := range refs {
		formatter.VerboseLog("Compiling %s", ref)
		r, err := recipe.Resolve(ref)
		if err != nil {
			result.Valid = false
			summary := recipeSummary{Ref: ref, Error: err.Error()}
			var compileErr *recipe.CompileError
			if errors.As(err, &compileErr) && compileErr.Pos.IsValid() {
				summary.Line = compileErr.Pos.Line()
			}
			result.Recipes = append(result.Recipes, summary)
			continue
		}
		result.Recipes = append(result.Recipes, summarize(ref, r))
	}

	if err := formatter.Success(result); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, "recipe validation failed")
	}
	return nil
}

// NewRecipesCommand creates the recipes command.
func NewRecipesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "recipes",
		Short:         "List built-in recipes",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			all, err := recipe.Builtins()
			if err != nil {
				return formatter.Fail(ExitFailure, ErrCodeRecipe, "built-in recipes are broken", err)
			}
			list := builtinList{}
			for _, r := range all {
				list = append(list, summarize(r.ID, r))
			}
			return formatter.Success(list)
		},
	}
}

type builtinList []recipeSummary

func (l builtinList) String() string {
	var b strings.Builder
	for _, s := range l {
		fmt.Fprintf(&b, "%-10s %s (%s)\n", s.ID, s.Study, strings.Join(s.Params, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

