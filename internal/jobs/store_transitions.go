package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RecordProgress moves a job to stage and raises its progress to at least
// progress. Progress never decreases; a lower value keeps the stored one.
// Moves the stage enum does not allow return ErrInvalidTransition.
// Recording StageError here is refused; use MarkError so the message is kept.
func (s *Store) RecordProgress(ctx context.Context, id string, stage Stage, progress int) (*Job, error) {
	if stage == StageError {
		return nil, fmt.Errorf("record progress: %w: use MarkError", ErrInvalidTransition)
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	err := s.transition(ctx, id, stage, func(tx *sql.Tx, current *Job) error {
		next := current.Progress
		if progress > next {
			next = progress
		}
		if stage == StageCompleted {
			next = 100
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE jobs SET stage = ?, progress = ?, error_message = NULL, updated_at = ? WHERE id = ?`,
			stage, next, s.timestamp(), id,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetJob(ctx, id)
}

// MarkError moves a job to StageError with message, keeping its progress.
func (s *Store) MarkError(ctx context.Context, id, message string) (*Job, error) {
	err := s.transition(ctx, id, StageError, func(tx *sql.Tx, _ *Job) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE jobs SET stage = ?, error_message = ?, updated_at = ? WHERE id = ?`,
			StageError, nullableString(message), s.timestamp(), id,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetJob(ctx, id)
}

// MarkResuming moves a job to StageResuming, clearing its error message.
// It fails with ErrDuplicateOpenJob when another unfinished job now holds
// the same title key.
func (s *Store) MarkResuming(ctx context.Context, id string) (*Job, error) {
	err := s.transition(ctx, id, StageResuming, func(tx *sql.Tx, _ *Job) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE jobs SET stage = ?, error_message = NULL, updated_at = ? WHERE id = ?`,
			StageResuming, s.timestamp(), id,
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("resume job %s: %w", id, ErrDuplicateOpenJob)
		}
		return nil, err
	}
	return s.GetJob(ctx, id)
}

func (s *Store) transition(ctx context.Context, id string, to Stage, apply func(*sql.Tx, *Job) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("job %s: %w", id, ErrJobNotFound)
		}
		if err != nil {
			return fmt.Errorf("load job: %w", err)
		}
		if !current.Stage.CanTransition(to) {
			return fmt.Errorf("job %s: %s -> %s: %w", id, current.Stage, to, ErrInvalidTransition)
		}
		return apply(tx, current)
	})
}
