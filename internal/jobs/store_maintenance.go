package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// InterruptedMessage is stored on jobs reclaimed after an unclean shutdown.
const InterruptedMessage = "interrupted before completion"

// ReclaimInterrupted moves jobs left in an active stage or Resuming by a
// previous process into StageError so the intake guard can resume them.
// Progress is preserved.
func (s *Store) ReclaimInterrupted(ctx context.Context) (int64, error) {
	stages := append(ActiveStages(), StageResuming)
	args := []any{StageError, InterruptedMessage, s.timestamp()}
	args = append(args, stageArgs(stages)...)
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET stage = ?, error_message = ?, updated_at = ?
         WHERE stage IN (`+makePlaceholders(len(stages))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

// StageCounts returns a count of jobs grouped by stage.
func (s *Store) StageCounts(ctx context.Context) (map[Stage]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage, COUNT(1) FROM jobs GROUP BY stage`)
	if err != nil {
		return nil, fmt.Errorf("stage counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[Stage]int)
	for rows.Next() {
		var (
			stage string
			count int
		)
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, err
		}
		counts[Stage(stage)] = count
	}
	return counts, rows.Err()
}

// OpenSourcePaths returns the source documents of jobs that have not
// completed. Upload pruning must keep these files.
func (s *Store) OpenSourcePaths(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_path FROM jobs WHERE stage != ?`, StageCompleted)
	if err != nil {
		return nil, fmt.Errorf("open source paths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		if path = strings.TrimSpace(path); path != "" {
			paths[path] = struct{}{}
		}
	}
	return paths, rows.Err()
}

// CheckHealth returns diagnostic information about the jobs database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("jobs database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat jobs database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("jobs database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping jobs database: %w", err)
	}
	health.DatabaseReadable = true

	for _, table := range requiredTables {
		var name string
		err := s.db.QueryRowContext(connCtx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			health.MissingTables = append(health.MissingTables, table)
			continue
		}
		if err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("query table %s: %w", table, err)
		}
	}
	if len(health.MissingTables) > 0 {
		return health, nil
	}

	if err := s.db.QueryRowContext(connCtx, "PRAGMA user_version").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}
	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM jobs").Scan(&health.TotalJobs); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count jobs: %w", err)
	}
	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM units").Scan(&health.TotalUnits); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count units: %w", err)
	}

	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")
	return health, nil
}
