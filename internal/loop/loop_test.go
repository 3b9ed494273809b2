package loop

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/brewtune/internal/backend"
	"github.com/roach88/brewtune/internal/derive"
	"github.com/roach88/brewtune/internal/note"
	"github.com/roach88/brewtune/internal/space"
	"github.com/roach88/brewtune/internal/study"
	"github.com/roach88/brewtune/internal/testutil"
)

// opCounter counts Memory backend calls by operation name.
type opCounter struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func newOpCounter() *opCounter {
	return &opCounter{calls: make(map[string]int), fail: make(map[string]error)}
}

func (c *opCounter) before(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op]++
	return c.fail[op]
}

func (c *opCounter) count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func coffeeSpace() *space.Space {
	return space.New(space.WithTruncatedRanges()).
		MustDefine("waterTemp", space.Continuous{Min: 80, Max: 95, Step: 1}).
		MustDefine("beanRatio", space.Continuous{Min: 0.053, Max: 0.1, Step: 0.01})
}

func coffeeRules(t *testing.T) *derive.Set {
	t.Helper()
	rules, err := derive.NewSet(
		derive.Scaled{Key: "beans", Param: "beanRatio", Factor: 150, Round: derive.RoundTruncate},
		derive.Constant{Key: "water", Value: 150},
	)
	require.NoError(t, err)
	return rules
}

func coffeeRenderer() *note.Renderer {
	return note.NewRenderer(note.Layout{
		Heading: "Recipe",
		Lines: []note.Line{
			{Label: "Water temperature (C)", Key: "waterTemp", Format: note.FormatInt},
			{Label: "Beans (g)", Key: "beans", Format: note.FormatInt},
			{Label: "Extraction (g)", Key: "water", Format: note.FormatInt},
		},
	})
}

func openMemory(t *testing.T, m *backend.Memory, name string, sp *space.Space) *study.Session {
	t.Helper()
	s, err := study.Open(context.Background(), m, study.Identity{Name: name}, sp, nil)
	require.NoError(t, err)
	return s
}

func TestRun_CoffeeSeedIsFirstTrial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := backend.NewMemory("mem://loop")
	s := openMemory(t, m, "Coffee recipe", coffeeSpace())
	enqueued, err := s.SeedDefaultIfEmpty(ctx, space.DefaultSeed{
		"waterTemp": space.Number(86),
		"beanRatio": space.Number(0.08),
	})
	require.NoError(t, err)
	require.True(t, enqueued)

	l, err := New(s, coffeeRules(t), coffeeRenderer(),
		WithTrialLimit(1), WithSleeper(testutil.NewManualSleeper()))
	require.NoError(t, err)
	require.NoError(t, l.Run(ctx))

	trials, err := s.Trials(ctx)
	require.NoError(t, err)
	require.Len(t, trials, 1)

	first := trials[0]
	assert.Equal(t, 0, first.Number)
	assert.Equal(t, study.StateCompleted, first.State)
	assert.Equal(t, space.Values{
		"waterTemp": space.Number(86),
		"beanRatio": space.Number(0.08),
	}, first.Values())
	assert.True(t, first.HasNote)
	assert.Equal(t,
		"## Recipe\n- Water temperature (C): 86\n- Beans (g): 12\n- Extraction (g): 150\n",
		first.Note)
}

func TestRun_ColdDripCategoricalSeed(t *testing.T) {
	ctx := context.Background()

	sp := space.New().
		MustDefine("brewEnv", space.Categorical{Choices: []string{"room", "refrigerator"}}).
		MustDefine("grindSize", space.Continuous{Min: 1, Max: 5, Step: 1})
	m := backend.NewMemory("mem://loop")
	s := openMemory(t, m, "Cold drip", sp)
	_, err := s.SeedDefaultIfEmpty(ctx, space.DefaultSeed{"brewEnv": space.Choice("refrigerator")})
	require.NoError(t, err)

	l, err := New(s, nil, nil, WithTrialLimit(1))
	require.NoError(t, err)
	require.NoError(t, l.Run(ctx))

	trials, err := s.Trials(ctx)
	require.NoError(t, err)
	require.Len(t, trials, 1)

	env, ok := trials[0].Values()["brewEnv"].Choice()
	require.True(t, ok)
	assert.Equal(t, "refrigerator", env)
	assert.True(t, strings.HasPrefix(trials[0].Note, "## Trial\n- brewEnv: refrigerator\n- grindSize: "))
}

func TestRun_WaitsWhileGateIsClosed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ops := newOpCounter()
	m := backend.NewMemory("mem://loop")
	m.SetHooks(backend.Hooks{BeforeOp: ops.before})
	s := openMemory(t, m, "Coffee recipe", coffeeSpace())

	sleeper := testutil.NewManualSleeper().CancelAfter(5, cancel)
	l, err := New(s, coffeeRules(t), nil, WithSleeper(sleeper), WithPollInterval(250*time.Millisecond))
	require.NoError(t, err)

	err = l.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// Two trials fill the gate; every later poll waits.
	assert.Equal(t, 2, l.Completed())
	assert.Equal(t, 2, ops.count(backend.OpIssueTrial))
	assert.Equal(t, 7, ops.count(backend.OpShouldGenerate))
	assert.Equal(t, 5, sleeper.Count())
	assert.Equal(t, 5*250*time.Millisecond, sleeper.Total())
	assert.Equal(t, Idle, l.State())
}

func TestRun_FeedbackReopensGate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := backend.NewMemory("mem://loop")
	s := openMemory(t, m, "Coffee recipe", coffeeSpace())

	// On the first idle poll, rank trial 0 below trial 1, freeing a slot.
	sleeper := testutil.NewManualSleeper().
		OnSleep(func(n int) {
			if n == 1 {
				require.NoError(t, m.Prefer("Coffee recipe", 1, 0))
			}
		}).
		CancelAfter(3, cancel)

	l, err := New(s, coffeeRules(t), nil, WithSleeper(sleeper))
	require.NoError(t, err)
	assert.ErrorIs(t, l.Run(ctx), context.Canceled)
	assert.Equal(t, 3, l.Completed())

	trials, err := s.Trials(ctx)
	require.NoError(t, err)
	assert.Len(t, trials, 3)
	for i, tr := range trials {
		assert.Equal(t, i, tr.Number)
	}
}

func TestRun_PollingIsBoundedInRealTime(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	ops := newOpCounter()
	m := backend.NewMemory("mem://loop")
	m.SetHooks(backend.Hooks{BeforeOp: ops.before})
	s := openMemory(t, m, "Coffee recipe", coffeeSpace())

	l, err := New(s, nil, nil, WithPollInterval(20*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	err = l.Run(ctx)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, time.Second, "Run must return promptly on cancellation")
	// Two trials fill the gate, then at most one poll per interval.
	assert.Equal(t, 2, ops.count(backend.OpIssueTrial))
	assert.GreaterOrEqual(t, ops.count(backend.OpShouldGenerate), 3)
	assert.LessOrEqual(t, ops.count(backend.OpShouldGenerate), 2+8)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ops := newOpCounter()
	m := backend.NewMemory("mem://loop")
	m.SetHooks(backend.Hooks{BeforeOp: ops.before})
	s := openMemory(t, m, "Coffee recipe", coffeeSpace())

	l, err := New(s, nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, l.Run(ctx), context.Canceled)
	assert.Zero(t, ops.count(backend.OpShouldGenerate))
}

func TestRun_SessionErrorsStopTheLoop(t *testing.T) {
	tests := []struct {
		name  string
		op    string
		stage string
		state State
	}{
		{"gate", backend.OpShouldGenerate, "gate", Idle},
		{"issue", backend.OpIssueTrial, "propose", Proposing},
		{"sample", backend.OpSampleParameter, "propose", Proposing},
		{"persist", backend.OpPersistNote, "annotate", Annotating},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := newOpCounter()
			m := backend.NewMemory("mem://loop")
			s := openMemory(t, m, "Coffee recipe", coffeeSpace())
			ops.fail[tt.op] = errors.New("disk full")
			m.SetHooks(backend.Hooks{BeforeOp: ops.before})

			before := promtest.ToFloat64(errorsTotal.WithLabelValues(tt.stage))

			l, err := New(s, coffeeRules(t), nil, WithSleeper(testutil.NewManualSleeper()))
			require.NoError(t, err)

			err = l.Run(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, study.ErrSessionUnavailable)
			assert.Contains(t, err.Error(), "disk full")
			assert.Equal(t, 1, ops.count(tt.op), "failed call is not retried")
			assert.Equal(t, tt.state, l.State())
			assert.Zero(t, l.Completed())
			assert.Equal(t, before+1, promtest.ToFloat64(errorsTotal.WithLabelValues(tt.stage)))
		})
	}
}

func TestRun_RecordsMetrics(t *testing.T) {
	m := backend.NewMemory("mem://loop")
	s := openMemory(t, m, "Coffee recipe", coffeeSpace())

	trialsBefore := promtest.ToFloat64(trialsTotal)
	generateBefore := promtest.ToFloat64(gatePollsTotal.WithLabelValues("generate"))

	l, err := New(s, nil, nil, WithTrialLimit(2))
	require.NoError(t, err)
	require.NoError(t, l.Run(context.Background()))

	assert.Equal(t, trialsBefore+2, promtest.ToFloat64(trialsTotal))
	assert.Equal(t, generateBefore+2, promtest.ToFloat64(gatePollsTotal.WithLabelValues("generate")))
}

func TestStep_ReportsWhetherATrialRan(t *testing.T) {
	ctx := context.Background()
	m := backend.NewMemory("mem://loop", backend.WithGenerateLimit(1))
	s := openMemory(t, m, "Coffee recipe", coffeeSpace())

	l, err := New(s, nil, nil)
	require.NoError(t, err)

	generated, err := l.Step(ctx)
	require.NoError(t, err)
	assert.True(t, generated)

	generated, err = l.Step(ctx)
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, 1, l.Completed())
}

func TestNew_RejectsRulesOutsideTheSpace(t *testing.T) {
	m := backend.NewMemory("mem://loop")
	s := openMemory(t, m, "Coffee recipe", coffeeSpace())

	rules, err := derive.NewSet(derive.Truncated{Key: "clicks", Param: "clickCount"})
	require.NoError(t, err)

	_, err = New(s, rules, nil)
	assert.ErrorIs(t, err, space.ErrUnknownParameter)
}

func TestNew_NilSession(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.Error(t, err)
}

func TestTimerSleeper(t *testing.T) {
	assert.NoError(t, TimerSleeper{}.Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, TimerSleeper{}.Sleep(ctx, time.Hour), context.Canceled)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "proposing", Proposing.String())
	assert.Equal(t, "annotating", Annotating.String())
	assert.Equal(t, "unknown", State(9).String())
}
