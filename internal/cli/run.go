package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/brewtune/internal/backend"
	"github.com/roach88/brewtune/internal/feedback"
	"github.com/roach88/brewtune/internal/loop"
	"github.com/roach88/brewtune/internal/study"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Recipe        string
	Poll          time.Duration
	Trials        int
	GenerateLimit int
	MetricsAddr   string

	// IDGenerator overrides study ID generation (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator backend.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Propose trials until interrupted",
		Long: `Open (or create) the recipe's study and propose trials.

On a fresh study the recipe's default is issued first. After that a new
trial is proposed whenever fewer than --generate-limit trials are waiting
for feedback. Each trial's note is stored with it; read it with
"brewtune note".

Example:
  brewtune run --db ./coffee.db
  brewtune run --recipe colddrip --trials 2
  brewtune run --recipe ./recipes/tea.cue --metrics-addr localhost:9102`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Recipe, "recipe", "r", "", "built-in recipe ID or recipe file (overrides config)")
	cmd.Flags().DurationVar(&opts.Poll, "poll", 0, "wait between generation checks (overrides config)")
	cmd.Flags().IntVarP(&opts.Trials, "trials", "n", 0, "stop after this many trials (0 runs until interrupted)")
	cmd.Flags().IntVar(&opts.GenerateLimit, "generate-limit", 0, "trials awaiting feedback before generation pauses")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}

func runLoop(opts *RunOptions, cmd *cobra.Command) error {
	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("recipe") {
		s.cfg.Recipe = opts.Recipe
	}
	if flags.Changed("poll") {
		s.cfg.PollInterval = opts.Poll
	}
	if flags.Changed("trials") {
		s.cfg.Trials = opts.Trials
	}
	if flags.Changed("generate-limit") {
		s.cfg.GenerateLimit = opts.GenerateLimit
	}
	if flags.Changed("metrics-addr") {
		s.cfg.MetricsAddr = opts.MetricsAddr
	}
	if err := s.cfg.Validate(); err != nil {
		return s.formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid flags", err)
	}

	r, err := s.recipe()
	if err != nil {
		return err
	}
	studyName := r.Study
	if s.cfg.Study != "" {
		studyName = s.cfg.Study
	}
	s.logger.Info("recipe loaded", "recipe", r.ID, "study", studyName, "params", r.Space.Len())

	st, err := s.openStore()
	if err != nil {
		return err
	}
	defer s.closeStore(st)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			s.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	backendOpts := []backend.Option{backend.WithGenerateLimit(s.cfg.GenerateLimit)}
	if opts.IDGenerator != nil {
		backendOpts = append(backendOpts, backend.WithIDGenerator(opts.IDGenerator))
	}
	b := backend.NewSQLite(st, backendOpts...)

	samplerConfig, err := s.cfg.Sampler.JSON()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode sampler config", err)
	}
	sess, err := study.Open(ctx, b,
		study.Identity{StorageLocation: st.Path(), Name: studyName},
		r.Space, samplerConfig, study.WithLogger(s.logger))
	if err != nil {
		return s.formatter.Fail(ExitFailure, ErrCodeRecipe, "failed to open study", err)
	}

	if r.Seed != nil {
		if _, err := sess.SeedDefaultIfEmpty(ctx, r.Seed); err != nil {
			return s.formatter.Fail(ExitFailure, ErrCodeRecipe, "failed to seed study", err)
		}
	}

	feedback.NewBridge(feedback.NewRecorder(st), s.logger).Register(ctx, sess.Ref(), r.FeedbackField)

	if s.cfg.MetricsAddr != "" {
		stop, err := serveMetrics(s, s.cfg.MetricsAddr)
		if err != nil {
			return s.formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to start metrics server", err)
		}
		defer stop()
	}

	l, err := loop.New(sess, r.Rules, r.Renderer(),
		loop.WithPollInterval(s.cfg.PollInterval),
		loop.WithTrialLimit(s.cfg.Trials),
		loop.WithLogger(s.logger),
	)
	if err != nil {
		return s.formatter.Fail(ExitFailure, ErrCodeRecipe, "invalid recipe", err)
	}

	if s.cfg.Trials == 0 {
		s.formatter.VerboseLog("Loop started for %q. Press Ctrl-C to stop.", studyName)
	}
	err = l.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return s.formatter.Fail(ExitFailure, ErrCodeGeneric, "loop stopped", err)
	}

	s.logger.Info("loop stopped gracefully", "completed", l.Completed())
	return s.formatter.Success(runResult{Study: studyName, Recipe: r.ID, Completed: l.Completed()})
}

type runResult struct {
	Study     string `json:"study"`
	Recipe    string `json:"recipe"`
	Completed int    `json:"completed"`
}

func (r runResult) String() string {
	return fmt.Sprintf("Study %q: %d trial(s) proposed", r.Study, r.Completed)
}

// serveMetrics exposes the default Prometheus registry on addr until stop
// is called.
func serveMetrics(s *session, addr string) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()
	s.logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Warn("metrics server shutdown", "error", err)
		}
	}, nil
}
