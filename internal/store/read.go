package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/brewtune/internal/space"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ReadStudy returns the study called name, or ErrNotFound.
func (s *Store) ReadStudy(ctx context.Context, name string) (StudyRecord, error) {
	rec, err := scanStudy(s.db.QueryRowContext(ctx, `
		SELECT id, name, descriptor, sampler FROM studies WHERE name = ?
	`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return StudyRecord{}, fmt.Errorf("read study %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return StudyRecord{}, fmt.Errorf("read study %q: %w", name, err)
	}
	return rec, nil
}

// ListStudies returns every study ordered by name.
func (s *Store) ListStudies(ctx context.Context) ([]StudyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, descriptor, sampler FROM studies ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query studies: %w", err)
	}
	defer rows.Close()

	studies := []StudyRecord{}
	for rows.Next() {
		rec, err := scanStudy(rows)
		if err != nil {
			return nil, err
		}
		studies = append(studies, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate studies: %w", err)
	}
	return studies, nil
}

// CountTrials returns the number of trials in a study, in any state.
func (s *Store) CountTrials(ctx context.Context, studyID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trials WHERE study_id = ?
	`, studyID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count trials: %w", err)
	}
	return n, nil
}

// CountActiveTrials counts trials still waiting on a human: running, or
// completed without being skipped or ever losing a comparison. Pending
// (enqueued, never issued) trials do not count.
func (s *Store) CountActiveTrials(ctx context.Context, studyID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trials t
		WHERE t.study_id = ?
		  AND (
		    t.state = ?
		    OR (
		      t.state = ?
		      AND t.skipped = 0
		      AND NOT EXISTS (
		        SELECT 1 FROM preferences p
		        WHERE p.study_id = t.study_id AND p.worse = t.number
		      )
		    )
		  )
	`, studyID, StateRunning, StateCompleted).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active trials: %w", err)
	}
	return n, nil
}

// ReadTrials returns every trial of a study ordered by number, with
// parameters in sampling order. Returns an empty slice (not nil) for a
// study without trials.
func (s *Store) ReadTrials(ctx context.Context, studyID string) ([]TrialRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, study_id, number, state, fixed, note, skipped
		FROM trials
		WHERE study_id = ?
		ORDER BY number ASC
	`, studyID)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer rows.Close()

	trials := []TrialRecord{}
	byID := make(map[int64]int)
	for rows.Next() {
		t, err := scanTrial(rows)
		if err != nil {
			return nil, err
		}
		byID[t.ID] = len(trials)
		trials = append(trials, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trials: %w", err)
	}

	params, err := s.db.QueryContext(ctx, `
		SELECT p.trial_id, p.name, p.value
		FROM trial_params p
		JOIN trials t ON p.trial_id = t.id
		WHERE t.study_id = ?
		ORDER BY t.number ASC, p.position ASC
	`, studyID)
	if err != nil {
		return nil, fmt.Errorf("query trial params: %w", err)
	}
	defer params.Close()

	for params.Next() {
		var (
			trialID int64
			name    string
			raw     string
		)
		if err := params.Scan(&trialID, &name, &raw); err != nil {
			return nil, fmt.Errorf("scan trial param: %w", err)
		}
		v, err := unmarshalValue(raw)
		if err != nil {
			return nil, err
		}
		i, ok := byID[trialID]
		if !ok {
			continue
		}
		trials[i].Params[name] = v
		trials[i].ParamOrder = append(trials[i].ParamOrder, name)
	}
	if err := params.Err(); err != nil {
		return nil, fmt.Errorf("iterate trial params: %w", err)
	}

	return trials, nil
}

// ReadTrial returns trial number of a study, or ErrNotFound.
func (s *Store) ReadTrial(ctx context.Context, studyID string, number int) (TrialRecord, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM trials WHERE study_id = ? AND number = ?
	`, studyID, number).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return TrialRecord{}, fmt.Errorf("read trial %d: %w", number, ErrNotFound)
	}
	if err != nil {
		return TrialRecord{}, fmt.Errorf("read trial %d: %w", number, err)
	}
	return readTrialByID(ctx, s.db, id)
}

// ReadPreferences returns the study's preferences in the order recorded.
func (s *Store) ReadPreferences(ctx context.Context, studyID string) ([]PreferenceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT better, worse FROM preferences
		WHERE study_id = ?
		ORDER BY id ASC
	`, studyID)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	prefs := []PreferenceRecord{}
	for rows.Next() {
		var p PreferenceRecord
		if err := rows.Scan(&p.Better, &p.Worse); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preferences: %w", err)
	}
	return prefs, nil
}

// ReadStudyAttr returns a study attribute and whether it is set.
func (s *Store) ReadStudyAttr(ctx context.Context, studyID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM study_attrs WHERE study_id = ? AND key = ?
	`, studyID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read study attr %q: %w", key, err)
	}
	return value, true, nil
}

// readTrialByID loads one trial and its parameters through q, which may be
// the transaction that just claimed it.
func readTrialByID(ctx context.Context, q queryer, id int64) (TrialRecord, error) {
	t, err := scanTrial(q.QueryRowContext(ctx, `
		SELECT id, study_id, number, state, fixed, note, skipped
		FROM trials WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return TrialRecord{}, fmt.Errorf("read trial id %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return TrialRecord{}, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT name, value FROM trial_params
		WHERE trial_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return TrialRecord{}, fmt.Errorf("query trial params: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return TrialRecord{}, fmt.Errorf("scan trial param: %w", err)
		}
		v, err := unmarshalValue(raw)
		if err != nil {
			return TrialRecord{}, err
		}
		t.Params[name] = v
		t.ParamOrder = append(t.ParamOrder, name)
	}
	if err := rows.Err(); err != nil {
		return TrialRecord{}, fmt.Errorf("iterate trial params: %w", err)
	}
	return t, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudy(row rowScanner) (StudyRecord, error) {
	var (
		rec      StudyRecord
		descJSON string
		sampler  string
	)
	if err := row.Scan(&rec.ID, &rec.Name, &descJSON, &sampler); err != nil {
		return StudyRecord{}, err
	}
	desc, err := unmarshalDescriptor(descJSON)
	if err != nil {
		return StudyRecord{}, err
	}
	rec.Descriptor = desc
	rec.Sampler = []byte(sampler)
	return rec, nil
}

func scanTrial(row rowScanner) (TrialRecord, error) {
	var (
		t         TrialRecord
		fixedJSON string
		note      sql.NullString
	)
	if err := row.Scan(&t.ID, &t.StudyID, &t.Number, &t.State, &fixedJSON, &note, &t.Skipped); err != nil {
		return TrialRecord{}, err
	}
	fixed, err := unmarshalValues(fixedJSON)
	if err != nil {
		return TrialRecord{}, err
	}
	t.Fixed = fixed
	t.Params = space.Values{}
	t.Note, t.HasNote = note.String, note.Valid
	return t, nil
}
