package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/brewtune/internal/config"
	"github.com/roach88/brewtune/internal/recipe"
	"github.com/roach88/brewtune/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string
	Study      string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the brewtune CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "brewtune",
		Short: "brewtune - tune brewing recipes by taste",
		Long: `brewtune proposes brewing recipes one trial at a time and learns from
which cups you prefer.

Each trial is written to a SQLite study as a note you can brew from. After
tasting, record which of two trials was better (or skip one) and the next
proposal moves towards what you liked.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Study, "study", "", "study name (defaults to the recipe's study)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTrialsCommand(opts))
	cmd.AddCommand(NewNoteCommand(opts))
	cmd.AddCommand(NewPreferCommand(opts))
	cmd.AddCommand(NewSkipCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRecipesCommand(opts))

	return cmd
}

// session is the per-invocation state shared by subcommands.
type session struct {
	opts      *RootOptions
	cfg       config.Config
	formatter *OutputFormatter
	logger    *slog.Logger
}

// newSession loads config, applies global flag overrides and installs the
// slog default handler on the command's stderr.
func newSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.Study != "" {
		cfg.Study = opts.Study
	}

	level := cfg.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	return &session{opts: opts, cfg: cfg, formatter: formatter, logger: logger}, nil
}

func (s *session) openStore() (*store.Store, error) {
	s.logger.Debug("opening database", "path", s.cfg.Database)
	st, err := store.Open(s.cfg.Database)
	if err != nil {
		return nil, s.formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	return st, nil
}

func (s *session) closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

func (s *session) recipe() (*recipe.Recipe, error) {
	r, err := recipe.Resolve(s.cfg.Recipe)
	if err != nil {
		return nil, s.formatter.Fail(ExitCommandError, ErrCodeRecipe, "failed to load recipe", err)
	}
	return r, nil
}

// studyName is --study, the configured study, or the recipe's study.
func (s *session) studyName() (string, error) {
	if s.cfg.Study != "" {
		return s.cfg.Study, nil
	}
	r, err := s.recipe()
	if err != nil {
		return "", err
	}
	return r.Study, nil
}
