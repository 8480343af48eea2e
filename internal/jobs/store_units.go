package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// InsertUnits creates one unit per content string with ordinals 1..n and
// records n as the job's total. It is all-or-nothing and refuses jobs that
// already have units.
func (s *Store) InsertUnits(ctx context.Context, jobID string, contents []string) error {
	if len(contents) == 0 {
		return errors.New("insert units: no content")
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var existing int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM units WHERE job_id = ?`, jobID).Scan(&existing); err != nil {
			return err
		}
		if existing > 0 {
			return ErrUnitsExist
		}
		timestamp := s.timestamp()
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO units (job_id, ordinal, content, status, updated_at) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, content := range contents {
			if _, err := stmt.ExecContext(ctx, jobID, i+1, content, UnitPending, timestamp); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE jobs SET total_units = ?, updated_at = ? WHERE id = ?`,
			len(contents), timestamp, jobID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrJobNotFound
		}
		return nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnitsExist), isUniqueViolation(err):
		return fmt.Errorf("insert units for %s: %w", jobID, ErrUnitsExist)
	default:
		return fmt.Errorf("insert units for %s: %w", jobID, err)
	}
}

// CountUnits returns how many units a job has.
func (s *Store) CountUnits(ctx context.Context, jobID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM units WHERE job_id = ?`, jobID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count units: %w", err)
	}
	return count, nil
}

// ListUnits returns a job's units in ordinal order. A positive limit keeps
// only the first limit units.
func (s *Store) ListUnits(ctx context.Context, jobID string, limit int) ([]Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units WHERE job_id = ? ORDER BY ordinal`
	args := []any{jobID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, unit)
	}
	return units, rows.Err()
}

// GetUnit fetches a single unit. A missing unit yields (nil, nil).
func (s *Store) GetUnit(ctx context.Context, jobID string, ordinal int) (*Unit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE job_id = ? AND ordinal = ?`, jobID, ordinal)
	unit, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get unit: %w", err)
	}
	return &unit, nil
}

// SetUnitPrompt stores a generated prompt and marks the unit processing.
// Completed units are left untouched.
func (s *Store) SetUnitPrompt(ctx context.Context, jobID string, ordinal int, prompt string) error {
	return s.updateUnit(ctx, "set unit prompt",
		`UPDATE units SET prompt = ?, status = ?, error_message = NULL, updated_at = ?
         WHERE job_id = ? AND ordinal = ? AND status != ?`,
		strings.TrimSpace(prompt), UnitProcessing, s.timestamp(), jobID, ordinal, UnitCompleted,
	)
}

// SetUnitSummary stores the unit's continuity summary.
func (s *Store) SetUnitSummary(ctx context.Context, jobID string, ordinal int, summary string) error {
	return s.updateUnit(ctx, "set unit summary",
		`UPDATE units SET summary = ?, updated_at = ? WHERE job_id = ? AND ordinal = ?`,
		strings.TrimSpace(summary), s.timestamp(), jobID, ordinal,
	)
}

// SetUnitArtifact stores the generated artifact and marks the unit completed.
func (s *Store) SetUnitArtifact(ctx context.Context, jobID string, ordinal int, ref string) error {
	return s.updateUnit(ctx, "set unit artifact",
		`UPDATE units SET artifact_ref = ?, status = ?, error_message = NULL, updated_at = ?
         WHERE job_id = ? AND ordinal = ?`,
		ref, UnitCompleted, s.timestamp(), jobID, ordinal,
	)
}

// MarkUnitFailed records a failure on a unit. A unit without a prompt moves
// to failed; a unit that already has one stays processing so the next run
// retries its image.
func (s *Store) MarkUnitFailed(ctx context.Context, jobID string, ordinal int, message string) error {
	return s.updateUnit(ctx, "mark unit failed",
		`UPDATE units SET
             status = CASE WHEN prompt IS NULL OR prompt = '' THEN ? ELSE status END,
             error_message = ?, updated_at = ?
         WHERE job_id = ? AND ordinal = ? AND status != ?`,
		UnitFailed, nullableString(message), s.timestamp(), jobID, ordinal, UnitCompleted,
	)
}

func (s *Store) updateUnit(ctx context.Context, op, query string, args ...any) error {
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: unit not found or already completed", op)
	}
	return nil
}
