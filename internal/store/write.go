package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/brewtune/internal/space"
)

// LoadOrCreateStudy returns the study called name, creating it with id,
// descriptor and sampler config when it does not exist yet.
//
// Uses INSERT ... ON CONFLICT(name) DO NOTHING followed by a select in one
// transaction, so concurrent openers agree on a single row. created reports
// whether this call inserted it. An existing study keeps its stored id,
// descriptor and sampler config.
func (s *Store) LoadOrCreateStudy(ctx context.Context, id, name string, desc space.Descriptor, sampler []byte) (rec StudyRecord, created bool, err error) {
	descJSON, err := marshalDescriptor(desc)
	if err != nil {
		return StudyRecord{}, false, fmt.Errorf("load or create study: %w", err)
	}
	samplerJSON, err := normalizeSampler(sampler)
	if err != nil {
		return StudyRecord{}, false, fmt.Errorf("load or create study: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return StudyRecord{}, false, fmt.Errorf("load or create study: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO studies (id, name, descriptor, sampler)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, id, name, descJSON, samplerJSON)
	if err != nil {
		return StudyRecord{}, false, fmt.Errorf("load or create study: insert: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return StudyRecord{}, false, fmt.Errorf("load or create study: rows affected: %w", err)
	}
	created = n > 0

	rec, err = scanStudy(tx.QueryRowContext(ctx, `
		SELECT id, name, descriptor, sampler FROM studies WHERE name = ?
	`, name))
	if err != nil {
		return StudyRecord{}, false, fmt.Errorf("load or create study: select: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return StudyRecord{}, false, fmt.Errorf("load or create study: commit: %w", err)
	}
	return rec, created, nil
}

// UpdateDescriptor rewrites the stored search space descriptor.
func (s *Store) UpdateDescriptor(ctx context.Context, studyID string, desc space.Descriptor) error {
	descJSON, err := marshalDescriptor(desc)
	if err != nil {
		return fmt.Errorf("update descriptor: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE studies SET descriptor = ? WHERE id = ?
	`, descJSON, studyID)
	if err != nil {
		return fmt.Errorf("update descriptor: %w", err)
	}
	return expectOneRow(result, "update descriptor", "study %s", studyID)
}

// EnqueueTrialIfEmpty inserts a pending trial number 0 carrying fixed
// values, but only if the study has no trials at all. The check and the
// insert are one statement. inserted is false when trials already exist.
func (s *Store) EnqueueTrialIfEmpty(ctx context.Context, studyID string, fixed space.Values) (inserted bool, err error) {
	fixedJSON, err := marshalValues(fixed)
	if err != nil {
		return false, fmt.Errorf("enqueue trial: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO trials (study_id, number, state, fixed)
		SELECT ?, 0, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM trials WHERE study_id = ?)
	`, studyID, StatePending, fixedJSON, studyID)
	if err != nil {
		return false, fmt.Errorf("enqueue trial: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueue trial: rows affected: %w", err)
	}
	return n > 0, nil
}

// ClaimTrial moves the next trial to running and returns it.
//
// Claim order: the lowest-numbered running trial left behind by a stopped
// process, then the lowest-numbered pending (enqueued) trial, then a new
// trial numbered one past the current maximum.
func (s *Store) ClaimTrial(ctx context.Context, studyID string) (TrialRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return TrialRecord{}, fmt.Errorf("claim trial: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var id int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM trials
		WHERE study_id = ? AND state IN (?, ?)
		ORDER BY CASE state WHEN ? THEN 0 ELSE 1 END, number ASC
		LIMIT 1
	`, studyID, StateRunning, StatePending, StateRunning).Scan(&id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		result, err := tx.ExecContext(ctx, `
			INSERT INTO trials (study_id, number, state)
			SELECT ?, COALESCE(MAX(number) + 1, 0), ?
			FROM trials WHERE study_id = ?
		`, studyID, StateRunning, studyID)
		if err != nil {
			return TrialRecord{}, fmt.Errorf("claim trial: insert: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return TrialRecord{}, fmt.Errorf("claim trial: last insert id: %w", err)
		}
	case err != nil:
		return TrialRecord{}, fmt.Errorf("claim trial: select: %w", err)
	default:
		if _, err := tx.ExecContext(ctx, `
			UPDATE trials SET state = ? WHERE id = ?
		`, StateRunning, id); err != nil {
			return TrialRecord{}, fmt.Errorf("claim trial: update: %w", err)
		}
	}

	trial, err := readTrialByID(ctx, tx, id)
	if err != nil {
		return TrialRecord{}, fmt.Errorf("claim trial: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return TrialRecord{}, fmt.Errorf("claim trial: commit: %w", err)
	}
	return trial, nil
}

// WriteParam records the value sampled for name on a trial and returns the
// stored value. A parameter is written at most once: if name already has a
// value, that value is returned unchanged (ON CONFLICT DO NOTHING), which
// lets a resumed trial keep what it was already sampled with.
func (s *Store) WriteParam(ctx context.Context, trialID int64, name string, v space.Value) (space.Value, error) {
	valueJSON, err := marshalValue(v)
	if err != nil {
		return space.Value{}, fmt.Errorf("write param %q: %w", name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return space.Value{}, fmt.Errorf("write param %q: begin tx: %w", name, err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trial_params (trial_id, name, value, position)
		SELECT ?, ?, ?, COALESCE(MAX(position) + 1, 0) FROM trial_params WHERE trial_id = ?
		ON CONFLICT(trial_id, name) DO NOTHING
	`, trialID, name, valueJSON, trialID)
	if err != nil {
		return space.Value{}, fmt.Errorf("write param %q: insert: %w", name, err)
	}

	var stored string
	if err := tx.QueryRowContext(ctx, `
		SELECT value FROM trial_params WHERE trial_id = ? AND name = ?
	`, trialID, name).Scan(&stored); err != nil {
		return space.Value{}, fmt.Errorf("write param %q: select: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return space.Value{}, fmt.Errorf("write param %q: commit: %w", name, err)
	}
	return unmarshalValue(stored)
}

// DiscardParam deletes the value recorded for name on a trial and drops
// name from the trial's fixed (seeded) values, in one transaction. A later
// WriteParam for name is stored after every remaining parameter.
func (s *Store) DiscardParam(ctx context.Context, trialID int64, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("discard param %q: begin tx: %w", name, err)
	}
	defer tx.Rollback() // No-op if committed

	var fixedJSON string
	err = tx.QueryRowContext(ctx, `SELECT fixed FROM trials WHERE id = ?`, trialID).Scan(&fixedJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("discard param %q: trial id %d: %w", name, trialID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("discard param %q: select: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM trial_params WHERE trial_id = ? AND name = ?
	`, trialID, name); err != nil {
		return fmt.Errorf("discard param %q: delete: %w", name, err)
	}

	fixed, err := unmarshalValues(fixedJSON)
	if err != nil {
		return fmt.Errorf("discard param %q: %w", name, err)
	}
	if _, ok := fixed[name]; ok {
		delete(fixed, name)
		updated, err := marshalValues(fixed)
		if err != nil {
			return fmt.Errorf("discard param %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE trials SET fixed = ? WHERE id = ?
		`, updated, trialID); err != nil {
			return fmt.Errorf("discard param %q: update: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("discard param %q: commit: %w", name, err)
	}
	return nil
}

// CompleteTrial attaches note to a trial and marks it completed in one
// statement. Calling it again replaces the note.
func (s *Store) CompleteTrial(ctx context.Context, trialID int64, note string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE trials SET note = ?, state = ? WHERE id = ?
	`, note, StateCompleted, trialID)
	if err != nil {
		return fmt.Errorf("complete trial: %w", err)
	}
	return expectOneRow(result, "complete trial", "trial id %d", trialID)
}

// WritePreference records that trial better was preferred over trial
// worse. Duplicate judgements are ignored; inserted reports whether the
// row is new.
func (s *Store) WritePreference(ctx context.Context, studyID string, better, worse int) (inserted bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (study_id, better, worse)
		VALUES (?, ?, ?)
		ON CONFLICT(study_id, better, worse) DO NOTHING
	`, studyID, better, worse)
	if err != nil {
		return false, fmt.Errorf("write preference: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write preference: rows affected: %w", err)
	}
	return n > 0, nil
}

// SetSkipped flags a trial as skipped (or clears the flag). Skipped
// trials no longer hold back generation.
func (s *Store) SetSkipped(ctx context.Context, studyID string, number int, skipped bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE trials SET skipped = ? WHERE study_id = ? AND number = ?
	`, skipped, studyID, number)
	if err != nil {
		return fmt.Errorf("set skipped: %w", err)
	}
	return expectOneRow(result, "set skipped", "trial %d", number)
}

// SetStudyAttr upserts a study attribute.
func (s *Store) SetStudyAttr(ctx context.Context, studyID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO study_attrs (study_id, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(study_id, key) DO UPDATE SET value = excluded.value
	`, studyID, key, value)
	if err != nil {
		return fmt.Errorf("set study attr %q: %w", key, err)
	}
	return nil
}

func expectOneRow(result sql.Result, op, format string, args ...any) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %s: %w", op, fmt.Sprintf(format, args...), ErrNotFound)
	}
	return nil
}
