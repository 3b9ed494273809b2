package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/brewtune/internal/space"
)

func TestLoadOrCreateStudy_CreatesThenLoads(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, created, err := s.LoadOrCreateStudy(ctx, "id-1", "Coffee recipe", testDescriptor(), []byte(`{"seed": 42}`))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "id-1", first.ID)
	assert.JSONEq(t, `{"seed":42}`, string(first.Sampler))
	assert.True(t, first.Descriptor.Equal(testDescriptor()))

	second, created, err := s.LoadOrCreateStudy(ctx, "id-2", "Coffee recipe", space.Descriptor{}, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "id-1", second.ID, "existing study keeps its id")
	assert.True(t, second.Descriptor.Equal(testDescriptor()), "existing study keeps its descriptor")
}

func TestLoadOrCreateStudy_RejectsBadSamplerConfig(t *testing.T) {
	s := createTestStore(t)

	_, _, err := s.LoadOrCreateStudy(context.Background(), "id", "x", testDescriptor(), []byte("{seed"))
	assert.Error(t, err)
}

func TestUpdateDescriptor(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := createTestStudy(t, s, "Coffee recipe")

	desc := testDescriptor()
	desc.Params = append(desc.Params, space.ParamDescriptor{Name: "clickCount", Kind: space.KindContinuous, Min: 16, Max: 24, Step: 1})
	require.NoError(t, s.UpdateDescriptor(ctx, id, desc))

	rec, err := s.ReadStudy(ctx, "Coffee recipe")
	require.NoError(t, err)
	assert.Len(t, rec.Descriptor.Params, 3)

	assert.ErrorIs(t, s.UpdateDescriptor(ctx, "missing", desc), ErrNotFound)
}

func TestEnqueueTrialIfEmpty(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := createTestStudy(t, s, "Coffee recipe")
	seed := space.Values{"waterTemp": space.Number(86), "beanRatio": space.Number(0.08)}

	inserted, err := s.EnqueueTrialIfEmpty(ctx, id, seed)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.EnqueueTrialIfEmpty(ctx, id, seed)
	require.NoError(t, err)
	assert.False(t, inserted, "second enqueue is a no-op")

	n, err := s.CountTrials(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClaimTrial_PendingFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := createTestStudy(t, s, "Coffee recipe")
	seed := space.Values{"waterTemp": space.Number(86), "beanRatio": space.Number(0.08)}

	_, err := s.EnqueueTrialIfEmpty(ctx, id, seed)
	require.NoError(t, err)

	trial, err := s.ClaimTrial(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, trial.Number)
	assert.Equal(t, StateRunning, trial.State)
	assert.True(t, trial.Fixed["beanRatio"].Equal(space.Number(0.08)))

	require.NoError(t, s.CompleteTrial(ctx, trial.ID, "done"))

	next, err := s.ClaimTrial(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, next.Number)
	assert.Empty(t, next.Fixed)
}

func TestClaimTrial_ResumesRunning(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := createTestStudy(t, s, "Coffee recipe")

	orphan, err := s.ClaimTrial(ctx, id)
	require.NoError(t, err)
	_, err = s.WriteParam(ctx, orphan.ID, "waterTemp", space.Number(90))
	require.NoError(t, err)

	resumed, err := s.ClaimTrial(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, orphan.ID, resumed.ID)
	assert.Equal(t, []string{"waterTemp"}, resumed.ParamOrder)
}

func TestClaimTrial_NumbersIncrease(t *testing.T) {
	s := createTestStore(t)
	id := createTestStudy(t, s, "Coffee recipe")

	for want := 0; want < 5; want++ {
		trial := completeTestTrial(t, s, id, map[string]float64{"waterTemp": 80})
		assert.Equal(t, want, trial.Number)
	}
}

func TestWriteParam_FirstWriteWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := createTestStudy(t, s, "Coffee recipe")
	trial, err := s.ClaimTrial(ctx, id)
	require.NoError(t, err)

	got, err := s.WriteParam(ctx, trial.ID, "waterTemp", space.Number(86))
	require.NoError(t, err)
	assert.True(t, got.Equal(space.Number(86)))

	got, err = s.WriteParam(ctx, trial.ID, "waterTemp", space.Number(90))
	require.NoError(t, err)
	assert.True(t, got.Equal(space.Number(86)), "stored value is returned")

	_, err = s.WriteParam(ctx, trial.ID, "beanRatio", space.Number(0.073))
	require.NoError(t, err)

	rec, err := s.ReadTrial(ctx, id, trial.Number)
	require.NoError(t, err)
	assert.Equal(t, []string{"waterTemp", "beanRatio"}, rec.ParamOrder)
}

func TestDiscardParam(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := createTestStudy(t, s, "Coffee recipe")
	_, err := s.EnqueueTrialIfEmpty(ctx, id, space.Values{"waterTemp": space.Number(82)})
	require.NoError(t, err)
	trial, err := s.ClaimTrial(ctx, id)
	require.NoError(t, err)

	_, err = s.WriteParam(ctx, trial.ID, "waterTemp", space.Number(82))
	require.NoError(t, err)
	_, err = s.WriteParam(ctx, trial.ID, "beanRatio", space.Number(0.073))
	require.NoError(t, err)

	require.NoError(t, s.DiscardParam(ctx, trial.ID, "waterTemp"))

	rec, err := s.ReadTrial(ctx, id, trial.Number)
	require.NoError(t, err)
	assert.Empty(t, rec.Fixed)
	assert.Equal(t, []string{"beanRatio"}, rec.ParamOrder)

	got, err := s.WriteParam(ctx, trial.ID, "waterTemp", space.Number(88))
	require.NoError(t, err)
	assert.True(t, got.Equal(space.Number(88)), "a discarded value can be written again")

	rec, err = s.ReadTrial(ctx, id, trial.Number)
	require.NoError(t, err)
	assert.Equal(t, []string{"beanRatio", "waterTemp"}, rec.ParamOrder)

	assert.ErrorIs(t, s.DiscardParam(ctx, 999, "waterTemp"), ErrNotFound)
}

func TestWriteParam_RejectsZeroValue(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := createTestStudy(t, s, "Coffee recipe")
	trial, err := s.ClaimTrial(ctx, id)
	require.NoError(t, err)

	_, err = s.WriteParam(ctx, trial.ID, "waterTemp", space.Value{})
	assert.Error(t, err)
}

func TestCompleteTrial_ReplacesNote(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := createTestStudy(t, s, "Coffee recipe")
	trial, err := s.ClaimTrial(ctx, id)
	require.NoError(t, err)

	require.NoError(t, s.CompleteTrial(ctx, trial.ID, "first"))
	require.NoError(t, s.CompleteTrial(ctx, trial.ID, "second"))

	rec, err := s.ReadTrial(ctx, id, trial.Number)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, rec.State)
	assert.True(t, rec.HasNote)
	assert.Equal(t, "second", rec.Note)

	assert.ErrorIs(t, s.CompleteTrial(ctx, 9999, "x"), ErrNotFound)
}

func TestWritePreference(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := createTestStudy(t, s, "Coffee recipe")

	inserted, err := s.WritePreference(ctx, id, 1, 0)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.WritePreference(ctx, id, 1, 0)
	require.NoError(t, err)
	assert.False(t, inserted)

	_, err = s.WritePreference(ctx, id, 2, 2)
	assert.Error(t, err, "a trial cannot beat itself")
}

func TestSetSkipped(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := createTestStudy(t, s, "Coffee recipe")
	completeTestTrial(t, s, id, nil)

	require.NoError(t, s.SetSkipped(ctx, id, 0, true))
	rec, err := s.ReadTrial(ctx, id, 0)
	require.NoError(t, err)
	assert.True(t, rec.Skipped)

	assert.ErrorIs(t, s.SetSkipped(ctx, id, 7, true), ErrNotFound)
}

func TestStudyAttrs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := createTestStudy(t, s, "Coffee recipe")

	_, ok, err := s.ReadStudyAttr(ctx, id, "feedback.note_field")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetStudyAttr(ctx, id, "feedback.note_field", "note"))
	require.NoError(t, s.SetStudyAttr(ctx, id, "feedback.note_field", "memo"))

	v, ok, err := s.ReadStudyAttr(ctx, id, "feedback.note_field")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "memo", v)
}
