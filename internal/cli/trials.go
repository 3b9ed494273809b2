package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/brewtune/internal/store"
)

// NewTrialsCommand creates the trials command.
func NewTrialsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trials",
		Short: "List a study's trials with their feedback",
		Long: `List every trial of the study with its state, parameters and the
preferences recorded against it.

Example:
  brewtune trials --db ./coffee.db
  brewtune trials --study "Cold drip" --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrials(rootOpts, cmd)
		},
	}
}

type trialsView struct {
	Study  string      `json:"study"`
	Trials []trialView `json:"trials"`
}

type trialView struct {
	Number  int         `json:"number"`
	State   string      `json:"state"`
	Params  []paramView `json:"params"`
	Wins    int         `json:"wins"`
	Losses  int         `json:"losses"`
	Skipped bool        `json:"skipped"`
	HasNote bool        `json:"has_note"`
}

type paramView struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (v trialsView) String() string {
	if len(v.Trials) == 0 {
		return fmt.Sprintf("Study %q has no trials", v.Study)
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTATE\tW/L\tPARAMS")
	for _, t := range v.Trials {
		state := t.State
		if t.Skipped {
			state += " (skipped)"
		}
		params := make([]string, len(t.Params))
		for i, p := range t.Params {
			params[i] = p.Name + "=" + p.Value
		}
		fmt.Fprintf(tw, "%d\t%s\t%d/%d\t%s\n", t.Number, state, t.Wins, t.Losses, strings.Join(params, " "))
	}
	tw.Flush()
	return strings.TrimRight(b.String(), "\n")
}

func runTrials(opts *RootOptions, cmd *cobra.Command) error {
	s, err := newSession(opts, cmd)
	if err != nil {
		return err
	}
	name, err := s.studyName()
	if err != nil {
		return err
	}
	st, err := s.openStore()
	if err != nil {
		return err
	}
	defer s.closeStore(st)

	ctx := cmd.Context()
	rec, err := findStudy(s, st, cmd, name)
	if err != nil {
		return err
	}
	trials, err := st.ReadTrials(ctx, rec.ID)
	if err != nil {
		return s.formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to read trials", err)
	}
	prefs, err := st.ReadPreferences(ctx, rec.ID)
	if err != nil {
		return s.formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to read preferences", err)
	}

	wins := make(map[int]int)
	losses := make(map[int]int)
	for _, p := range prefs {
		wins[p.Better]++
		losses[p.Worse]++
	}

	view := trialsView{Study: name, Trials: make([]trialView, 0, len(trials))}
	for _, t := range trials {
		tv := trialView{
			Number:  t.Number,
			State:   t.State,
			Wins:    wins[t.Number],
			Losses:  losses[t.Number],
			Skipped: t.Skipped,
			HasNote: t.HasNote,
			Params:  []paramView{},
		}
		for _, pname := range t.ParamOrder {
			tv.Params = append(tv.Params, paramView{Name: pname, Value: t.Params[pname].String()})
		}
		view.Trials = append(view.Trials, tv)
	}
	return s.formatter.Success(view)
}

// findStudy reads a study by name, reporting a missing one as not found.
func findStudy(s *session, st *store.Store, cmd *cobra.Command, name string) (store.StudyRecord, error) {
	rec, err := st.ReadStudy(cmd.Context(), name)
	if errors.Is(err, store.ErrNotFound) {
		return rec, s.formatter.Fail(ExitCommandError, ErrCodeNotFound, "unknown study",
			fmt.Errorf("no study named %q in %s", name, st.Path()))
	}
	if err != nil {
		return rec, s.formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to read study", err)
	}
	return rec, nil
}

// parseTrialNumber parses a positional trial number argument.
func parseTrialNumber(s *session, arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return 0, s.formatter.Fail(ExitCommandError, ErrCodeInvalidArgs, "invalid trial number",
			fmt.Errorf("%q is not a trial number", arg))
	}
	return n, nil
}
