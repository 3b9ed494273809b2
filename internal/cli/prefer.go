package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/brewtune/internal/feedback"
)

// NewPreferCommand creates the prefer command.
func NewPreferCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prefer <better> <worse>",
		Short: "Record that one trial tasted better than another",
		Long: `Record a pairwise preference between two completed trials.

The worse trial stops holding back generation, and the sampler moves
towards the better one.

Example:
  brewtune prefer 3 1`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrefer(rootOpts, args, cmd)
		},
	}
}

// NewSkipCommand creates the skip command.
func NewSkipCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "skip <trial>",
		Short: "Drop a trial without judging it",
		Long: `Mark a completed trial as skipped, e.g. a cup that was never brewed.
Skipped trials release the generation gate and are ignored by the sampler.

Example:
  brewtune skip 2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSkip(rootOpts, args[0], cmd)
		},
	}
}

type judgementResult struct {
	Study    string `json:"study"`
	Kind     string `json:"kind"`
	Better   int    `json:"better,omitempty"`
	Worse    int    `json:"worse,omitempty"`
	Trial    int    `json:"trial,omitempty"`
	Recorded bool   `json:"recorded"`
}

func (r judgementResult) String() string {
	switch {
	case r.Kind == "skip":
		return fmt.Sprintf("Trial %d skipped", r.Trial)
	case r.Recorded:
		return fmt.Sprintf("Recorded: trial %d preferred over trial %d", r.Better, r.Worse)
	default:
		return fmt.Sprintf("Already recorded: trial %d preferred over trial %d", r.Better, r.Worse)
	}
}

func runPrefer(opts *RootOptions, args []string, cmd *cobra.Command) error {
	s, err := newSession(opts, cmd)
	if err != nil {
		return err
	}
	better, err := parseTrialNumber(s, args[0])
	if err != nil {
		return err
	}
	worse, err := parseTrialNumber(s, args[1])
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

	inserted, err := feedback.NewRecorder(st).Prefer(cmd.Context(), name, feedback.Preference{Better: better, Worse: worse})
	if err != nil {
		return judgementError(s, err)
	}
	s.logger.Debug("preference recorded", "study", name, "better", better, "worse", worse, "new", inserted)
	return s.formatter.Success(judgementResult{Study: name, Kind: "prefer", Better: better, Worse: worse, Recorded: inserted})
}

func runSkip(opts *RootOptions, arg string, cmd *cobra.Command) error {
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

	if err := feedback.NewRecorder(st).Skip(cmd.Context(), name, number); err != nil {
		return judgementError(s, err)
	}
	return s.formatter.Success(judgementResult{Study: name, Kind: "skip", Trial: number, Recorded: true})
}

func judgementError(s *session, err error) error {
	switch {
	case errors.Is(err, feedback.ErrUnknownStudy), errors.Is(err, feedback.ErrUnknownTrial):
		return s.formatter.Fail(ExitCommandError, ErrCodeNotFound, "judgement rejected", err)
	case errors.Is(err, feedback.ErrTrialNotReady), errors.Is(err, feedback.ErrInvalidJudgement):
		return s.formatter.Fail(ExitFailure, ErrCodeJudgement, "judgement rejected", err)
	default:
		return s.formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to record judgement", err)
	}
}
