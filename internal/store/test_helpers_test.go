package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/brewtune/internal/space"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testDescriptor() space.Descriptor {
	return space.Descriptor{Params: []space.ParamDescriptor{
		{Name: "waterTemp", Kind: space.KindContinuous, Min: 80, Max: 95, Step: 1},
		{Name: "beanRatio", Kind: space.KindContinuous, Min: 0.053, Max: 0.093, Step: 0.01},
	}}
}

// createTestStudy creates a study named name and returns its id.
func createTestStudy(t *testing.T, s *Store, name string) string {
	t.Helper()
	rec, _, err := s.LoadOrCreateStudy(context.Background(), "id-"+name, name, testDescriptor(), nil)
	if err != nil {
		t.Fatalf("LoadOrCreateStudy() failed: %v", err)
	}
	return rec.ID
}

// completeTestTrial claims a trial, writes values and completes it.
func completeTestTrial(t *testing.T, s *Store, studyID string, vals map[string]float64) TrialRecord {
	t.Helper()
	ctx := context.Background()
	trial, err := s.ClaimTrial(ctx, studyID)
	if err != nil {
		t.Fatalf("ClaimTrial() failed: %v", err)
	}
	for _, name := range []string{"waterTemp", "beanRatio"} {
		if f, ok := vals[name]; ok {
			if _, err := s.WriteParam(ctx, trial.ID, name, space.Number(f)); err != nil {
				t.Fatalf("WriteParam() failed: %v", err)
			}
		}
	}
	if err := s.CompleteTrial(ctx, trial.ID, "note"); err != nil {
		t.Fatalf("CompleteTrial() failed: %v", err)
	}
	return trial
}
