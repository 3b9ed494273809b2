package study

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/brewtune/internal/space"
)

func coffeeSpace() *space.Space {
	return space.New(space.WithTruncatedRanges()).
		MustDefine("waterTemp", space.Continuous{Min: 80, Max: 95, Step: 1}).
		MustDefine("beanRatio", space.Continuous{Min: 0.053, Max: 0.1, Step: 0.01})
}

var coffeeID = Identity{StorageLocation: "mem", Name: "Coffee recipe"}

func openTestSession(t *testing.T, b Backend, sp *space.Space) *Session {
	t.Helper()
	s, err := Open(context.Background(), b, coffeeID, sp, nil)
	require.NoError(t, err)
	return s
}

// sampleAll samples every declared parameter through the space.
func sampleAll(t *testing.T, s *Session, trial *Trial) {
	t.Helper()
	for _, name := range s.Space().Names() {
		_, err := s.Space().Sample(context.Background(), name, trial)
		require.NoError(t, err)
	}
}

func TestOpen_CreatesThenResumes(t *testing.T) {
	b := newFakeBackend()
	ctx := context.Background()

	first := openTestSession(t, b, coffeeSpace())
	assert.True(t, first.Ref().Created)

	trial, err := first.IssueTrial(ctx)
	require.NoError(t, err)
	sampleAll(t, first, trial)
	require.NoError(t, first.PersistNote(ctx, trial, "## Recipe\n"))

	before, err := first.Trials(ctx)
	require.NoError(t, err)

	second := openTestSession(t, b, coffeeSpace())
	assert.False(t, second.Ref().Created)
	assert.Equal(t, first.Ref().ID, second.Ref().ID)

	after, err := second.Trials(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after, "reopening does not change history")
}

func TestOpen_InvalidIdentity(t *testing.T) {
	_, err := Open(context.Background(), newFakeBackend(), Identity{Name: "  "}, coffeeSpace(), nil)
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestOpen_EmptySpace(t *testing.T) {
	_, err := Open(context.Background(), newFakeBackend(), coffeeID, space.New(), nil)
	assert.ErrorIs(t, err, space.ErrInvalidSearchSpace)
}

func TestOpen_IncompatibleSpace(t *testing.T) {
	b := newFakeBackend()
	openTestSession(t, b, coffeeSpace())

	renamed := space.New().MustDefine("temperature", space.Continuous{Min: 80, Max: 95, Step: 1})
	_, err := Open(context.Background(), b, coffeeID, renamed, nil)
	assert.ErrorIs(t, err, space.ErrIncompatibleSpace)
	assert.False(t, IsSessionError(err))
}

func TestOpen_CompatibleChangeIsStored(t *testing.T) {
	b := newFakeBackend()
	openTestSession(t, b, coffeeSpace())

	grown := coffeeSpace().MustDefine("clickCount", space.Continuous{Min: 16, Max: 24, Step: 1})
	s := openTestSession(t, b, grown)

	assert.Equal(t, 1, b.calls["update"])
	assert.True(t, s.Ref().Descriptor.Equal(grown.Descriptor()))
	assert.True(t, b.study(s.Ref().ID).ref.Descriptor.Equal(grown.Descriptor()))
}

func TestOpen_BackendFailure(t *testing.T) {
	b := newFakeBackend()
	b.fail["open"] = errors.New("disk gone")

	_, err := Open(context.Background(), b, coffeeID, coffeeSpace(), nil)
	assert.ErrorIs(t, err, ErrSessionUnavailable)
	assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestSeedDefaultIfEmpty_FirstTrialEqualsSeed(t *testing.T) {
	b := newFakeBackend()
	s := openTestSession(t, b, coffeeSpace())
	ctx := context.Background()

	enqueued, err := s.SeedDefaultIfEmpty(ctx, space.DefaultSeed{
		"waterTemp": space.Number(86),
		"beanRatio": space.Number(0.08),
	})
	require.NoError(t, err)
	assert.True(t, enqueued)

	trial, err := s.IssueTrial(ctx)
	require.NoError(t, err)
	sampleAll(t, s, trial)

	assert.Equal(t, space.Values{"waterTemp": space.Number(86), "beanRatio": space.Number(0.08)}, trial.Values())
}

func TestSeedDefaultIfEmpty_NoopWithTrials(t *testing.T) {
	b := newFakeBackend()
	ctx := context.Background()
	s := openTestSession(t, b, coffeeSpace())

	trial, err := s.IssueTrial(ctx)
	require.NoError(t, err)
	sampleAll(t, s, trial)
	require.NoError(t, s.PersistNote(ctx, trial, "n"))

	resumed := openTestSession(t, b, coffeeSpace())
	enqueued, err := resumed.SeedDefaultIfEmpty(ctx, space.DefaultSeed{"waterTemp": space.Number(86)})
	require.NoError(t, err)
	assert.False(t, enqueued)

	trials, err := resumed.Trials(ctx)
	require.NoError(t, err)
	assert.Len(t, trials, 1)
}

func TestSeedDefaultIfEmpty_OncePerSession(t *testing.T) {
	b := newFakeBackend()
	s := openTestSession(t, b, coffeeSpace())
	seed := space.DefaultSeed{"waterTemp": space.Number(86)}

	_, err := s.SeedDefaultIfEmpty(context.Background(), seed)
	require.NoError(t, err)
	enqueued, err := s.SeedDefaultIfEmpty(context.Background(), seed)
	require.NoError(t, err)
	assert.False(t, enqueued)
	assert.Equal(t, 1, b.calls["enqueue"])
}

func TestSeedDefaultIfEmpty_ValidatesBeforeBackend(t *testing.T) {
	b := newFakeBackend()
	s := openTestSession(t, b, coffeeSpace())

	_, err := s.SeedDefaultIfEmpty(context.Background(), space.DefaultSeed{"grind": space.Number(3)})
	assert.ErrorIs(t, err, space.ErrUnknownParameter)

	_, err = s.SeedDefaultIfEmpty(context.Background(), space.DefaultSeed{"waterTemp": space.Number(100)})
	assert.ErrorIs(t, err, space.ErrInvalidSeed)

	assert.Zero(t, b.calls["enqueue"])
}

func TestIssueTrial_NumbersMustIncrease(t *testing.T) {
	b := newFakeBackend()
	ctx := context.Background()
	s := openTestSession(t, b, coffeeSpace())

	first, err := s.IssueTrial(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Number())

	zero := 0
	b.renumber = &zero
	_, err = s.IssueTrial(ctx)
	assert.ErrorIs(t, err, ErrSessionUnavailable)
}

func TestPersistNote_RequiresAllParameters(t *testing.T) {
	b := newFakeBackend()
	ctx := context.Background()
	s := openTestSession(t, b, coffeeSpace())

	trial, err := s.IssueTrial(ctx)
	require.NoError(t, err)
	_, err = s.Space().Sample(ctx, "waterTemp", trial)
	require.NoError(t, err)

	err = s.PersistNote(ctx, trial, "partial")
	assert.ErrorIs(t, err, ErrIncompleteTrial)
	assert.Contains(t, err.Error(), "beanRatio")
	assert.Zero(t, b.calls["persist"])

	trials, err := s.Trials(ctx)
	require.NoError(t, err)
	assert.False(t, trials[0].HasNote, "no note is visible after partial sampling")
}

func TestPersistNote_ReplacesNote(t *testing.T) {
	b := newFakeBackend()
	ctx := context.Background()
	s := openTestSession(t, b, coffeeSpace())

	trial, err := s.IssueTrial(ctx)
	require.NoError(t, err)
	sampleAll(t, s, trial)
	require.NoError(t, s.PersistNote(ctx, trial, "first"))
	require.NoError(t, s.PersistNote(ctx, trial, "second"))

	note, ok := trial.Note()
	assert.True(t, ok)
	assert.Equal(t, "second", note)
	assert.Equal(t, StateCompleted, trial.State())

	trials, err := s.Trials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", trials[0].Note)
}

func TestPersistNote_ForeignTrial(t *testing.T) {
	b := newFakeBackend()
	ctx := context.Background()
	a := openTestSession(t, b, coffeeSpace())
	other, err := Open(ctx, b, Identity{StorageLocation: "mem", Name: "Other"}, coffeeSpace(), nil)
	require.NoError(t, err)

	trial, err := other.IssueTrial(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, a.PersistNote(ctx, trial, "x"), ErrForeignTrial)
	assert.ErrorIs(t, a.PersistNote(ctx, nil, "x"), ErrForeignTrial)
}

func TestSessionErrors_Propagate(t *testing.T) {
	ops := []struct {
		op  string
		run func(ctx context.Context, s *Session) error
	}{
		{"gate", func(ctx context.Context, s *Session) error {
			_, err := s.ShouldGenerate(ctx)
			return err
		}},
		{"issue", func(ctx context.Context, s *Session) error {
			_, err := s.IssueTrial(ctx)
			return err
		}},
		{"enqueue", func(ctx context.Context, s *Session) error {
			_, err := s.SeedDefaultIfEmpty(ctx, space.DefaultSeed{"waterTemp": space.Number(86)})
			return err
		}},
		{"list", func(ctx context.Context, s *Session) error {
			_, err := s.Trials(ctx)
			return err
		}},
	}
	for _, tt := range ops {
		t.Run(tt.op, func(t *testing.T) {
			b := newFakeBackend()
			s := openTestSession(t, b, coffeeSpace())
			b.fail[tt.op] = errors.New("boom")

			err := tt.run(context.Background(), s)
			assert.ErrorIs(t, err, ErrSessionUnavailable)
			assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
			assert.True(t, IsSessionError(err))
		})
	}
}
