// Package loop drives a study trial by trial.
//
// The loop is a three-state machine. In Idle it asks the session whether a
// trial may be generated, sleeping one poll interval when the answer is no.
// Once permitted it moves to Proposing (issue a trial, sample every
// parameter in declaration order) and then Annotating (derive, render and
// persist the note) before returning to Idle.
//
// Run has no terminal state: it returns only when its context is cancelled,
// a session call fails, or an opt-in trial limit is reached.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/brewtune/internal/derive"
	"github.com/roach88/brewtune/internal/note"
	"github.com/roach88/brewtune/internal/space"
	"github.com/roach88/brewtune/internal/study"
)

// DefaultPollInterval is how long Idle waits before asking the gate again.
const DefaultPollInterval = 100 * time.Millisecond

// State is the loop's current phase.
type State int32

const (
	Idle State = iota
	Proposing
	Annotating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Proposing:
		return "proposing"
	case Annotating:
		return "annotating"
	default:
		return "unknown"
	}
}

// Session is the part of study.Session the loop drives.
type Session interface {
	Space() *space.Space
	ShouldGenerate(ctx context.Context) (bool, error)
	IssueTrial(ctx context.Context) (*study.Trial, error)
	PersistNote(ctx context.Context, t *study.Trial, note string) error
}

// Sleeper waits between gate polls. It must return early with ctx.Err()
// when ctx is cancelled.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a time.Timer.
type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Loop is the orchestration loop for one study.
//
// Run and Step must be called from one goroutine. State is safe to read
// from any goroutine.
type Loop struct {
	session  Session
	rules    *derive.Set
	renderer *note.Renderer

	poll    time.Duration
	sleeper Sleeper
	limit   int
	logger  *slog.Logger

	state     atomic.Int32
	completed int
}

// Option configures a Loop.
type Option func(*Loop)

// WithPollInterval sets the Idle wait. Default: DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.poll = d
		}
	}
}

// WithSleeper replaces the timer-based sleeper, e.g. with a manual one in tests.
func WithSleeper(s Sleeper) Option {
	return func(l *Loop) {
		l.sleeper = s
	}
}

// WithTrialLimit stops Run after n completed trials. Zero (the default)
// means no limit.
func WithTrialLimit(n int) Option {
	return func(l *Loop) {
		l.limit = max(n, 0)
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New builds a loop over session. rules may be nil. A nil renderer
// renders every parameter and derived value under a "Trial" heading.
//
// Rules are validated against the session's space here, so a rule reading
// an undeclared parameter fails before any trial is issued.
func New(session Session, rules *derive.Set, renderer *note.Renderer, opts ...Option) (*Loop, error) {
	if session == nil {
		return nil, errors.New("loop: session is nil")
	}
	if rules == nil {
		rules, _ = derive.NewSet()
	}
	if err := rules.Validate(session.Space()); err != nil {
		return nil, fmt.Errorf("loop: %w", err)
	}
	if renderer == nil {
		renderer = note.NewRenderer(note.DefaultLayout("Trial", session.Space(), rules))
	}

	l := &Loop{
		session:  session,
		rules:    rules,
		renderer: renderer,
		poll:     DefaultPollInterval,
		sleeper:  TimerSleeper{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// State returns the current phase.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Completed returns how many trials this loop has annotated.
func (l *Loop) Completed() int {
	return l.completed
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

// Run steps until ctx is cancelled (returning ctx.Err()), a session call
// fails (returning that error, unretried), or the trial limit is reached
// (returning nil).
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("loop starting", "poll_interval", l.poll, "trial_limit", l.limit)

	for {
		if l.limit > 0 && l.completed >= l.limit {
			l.logger.Info("loop stopping: trial limit reached", "completed", l.completed)
			return nil
		}

		generated, err := l.Step(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				l.logger.Info("loop stopping: context cancelled", "completed", l.completed)
				return ctxErr
			}
			l.logger.Error("loop stopping", "state", l.State(), "error", err)
			return err
		}
		if generated {
			continue
		}

		if err := l.sleeper.Sleep(ctx, l.poll); err != nil {
			l.logger.Info("loop stopping: context cancelled", "completed", l.completed)
			return err
		}
	}
}

// Step runs one Idle check and, if the gate allows it, one full trial.
// generated reports whether a trial was completed.
func (l *Loop) Step(ctx context.Context) (generated bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.setState(Idle)

	ok, err := l.session.ShouldGenerate(ctx)
	if err != nil {
		errorsTotal.WithLabelValues("gate").Inc()
		return false, err
	}
	if !ok {
		gatePollsTotal.WithLabelValues("wait").Inc()
		return false, nil
	}
	gatePollsTotal.WithLabelValues("generate").Inc()

	start := time.Now()
	trial, err := l.propose(ctx)
	if err != nil {
		errorsTotal.WithLabelValues("propose").Inc()
		return false, err
	}

	if err := l.annotate(ctx, trial); err != nil {
		errorsTotal.WithLabelValues("annotate").Inc()
		return false, err
	}
	l.setState(Idle)

	l.completed++
	trialsTotal.Inc()
	trialDuration.Observe(time.Since(start).Seconds())
	return true, nil
}

// propose issues a trial and samples every parameter in declaration order.
func (l *Loop) propose(ctx context.Context) (*study.Trial, error) {
	l.setState(Proposing)

	trial, err := l.session.IssueTrial(ctx)
	if err != nil {
		return nil, err
	}

	sp := l.session.Space()
	for _, name := range sp.Names() {
		v, err := sp.Sample(ctx, name, trial)
		if err != nil {
			return nil, fmt.Errorf("trial %d: sample %q: %w", trial.Number(), name, err)
		}
		l.logger.Debug("parameter sampled", "trial", trial.Number(), "param", name, "value", v.String())
	}
	return trial, nil
}

// annotate derives display quantities, renders the note and persists it.
func (l *Loop) annotate(ctx context.Context, trial *study.Trial) error {
	l.setState(Annotating)

	values := trial.Values()
	text := l.renderer.Render(values, l.rules.Derive(values))
	if err := l.session.PersistNote(ctx, trial, text); err != nil {
		return fmt.Errorf("trial %d: %w", trial.Number(), err)
	}

	l.logger.Info("trial annotated", "trial", trial.Number())
	return nil
}
