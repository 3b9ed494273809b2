package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/brewtune/internal/store"
)

// NewNoteCommand creates the note command.
func NewNoteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "note <trial>",
		Short: "Print a trial's note",
		Long: `Print the note stored with a trial: the recipe to brew.

Example:
  brewtune note 0`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNote(rootOpts, args[0], cmd)
		},
	}
}

type noteView struct {
	Study  string `json:"study"`
	Number int    `json:"number"`
	Note   string `json:"note"`
}

func (v noteView) String() string {
	return v.Note
}

func runNote(opts *RootOptions, arg string, cmd *cobra.Command) error {
	s, err := newSession(opts, cmd)
	if err != nil {
		return err
	}
	number, err := parseTrialNumber(s, arg)
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

	rec, err := findStudy(s, st, cmd, name)
	if err != nil {
		return err
	}
	trial, err := st.ReadTrial(cmd.Context(), rec.ID, number)
	if errors.Is(err, store.ErrNotFound) {
		return s.formatter.Fail(ExitCommandError, ErrCodeNotFound, "unknown trial", err)
	}
	if err != nil {
		return s.formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to read trial", err)
	}
	if !trial.HasNote {
		return s.formatter.Fail(ExitFailure, ErrCodeNotFound, "no note yet",
			fmt.Errorf("trial %d is %s", number, trial.State))
	}

	return s.formatter.Success(noteView{Study: name, Number: number, Note: trial.Note})
}
