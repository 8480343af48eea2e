package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CreateJob inserts a job at StageUploaded and links it into the owner's
// library. It returns ErrDuplicateOpenJob when the owner already has an
// unfinished job with the same title key.
func (s *Store) CreateJob(ctx context.Context, input NewJob) (*Job, error) {
	owner := strings.TrimSpace(input.OwnerID)
	title := strings.TrimSpace(input.Title)
	if owner == "" {
		return nil, errors.New("create job: owner is required")
	}
	if title == "" {
		return nil, errors.New("create job: title is required")
	}
	if strings.TrimSpace(input.SourcePath) == "" {
		return nil, errors.New("create job: source path is required")
	}

	id := uuid.NewString()
	timestamp := s.timestamp()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (
                id, owner_id, title, title_key, source_path, stage, progress,
                total_units, cover_ref, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?)`,
			id,
			owner,
			title,
			TitleKey(title),
			input.SourcePath,
			StageUploaded,
			nullableString(input.CoverRef),
			timestamp,
			timestamp,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO library (owner_id, job_id, added_at) VALUES (?, ?, ?)
             ON CONFLICT(owner_id, job_id) DO NOTHING`,
			owner, id, timestamp,
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create job %q: %w", title, ErrDuplicateOpenJob)
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by identifier. A missing job yields (nil, nil).
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// LatestJobForTitle returns the owner's most recent job whose title shares
// the key of title, or nil when none exists.
func (s *Store) LatestJobForTitle(ctx context.Context, ownerID, title string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE owner_id = ? AND title_key = ?
         ORDER BY rowid DESC LIMIT 1`,
		ownerID, TitleKey(title),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest job for title: %w", err)
	}
	return job, nil
}

// ListJobs returns the owner's jobs, newest first, optionally filtered by stage.
// An empty owner lists every owner's jobs.
func (s *Store) ListJobs(ctx context.Context, ownerID string, stages ...Stage) ([]*Job, error) {
	var (
		clauses []string
		args    []any
	)
	if ownerID != "" {
		clauses = append(clauses, "owner_id = ?")
		args = append(args, ownerID)
	}
	if len(stages) > 0 {
		clauses = append(clauses, "stage IN ("+makePlaceholders(len(stages))+")")
		args = append(args, stageArgs(stages)...)
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY rowid DESC"
	return s.queryJobs(ctx, query, args...)
}

// ActiveJobs returns jobs whose stage says a runner owns them, for any owner.
func (s *Store) ActiveJobs(ctx context.Context) ([]*Job, error) {
	return s.ListJobs(ctx, "", ActiveStages()...)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SetStyleGuide stores the derived style guide.
func (s *Store) SetStyleGuide(ctx context.Context, id string, guide StyleGuide) error {
	data, err := json.Marshal(guide)
	if err != nil {
		return fmt.Errorf("marshal style guide: %w", err)
	}
	return s.updateJobField(ctx, id, "style_guide_json", string(data))
}

// SetCharacterSheet stores the reference artifact used for visual consistency.
func (s *Store) SetCharacterSheet(ctx context.Context, id, ref string) error {
	return s.updateJobField(ctx, id, "character_sheet_ref", ref)
}

// SetCover stores the generated cover artifact reference.
func (s *Store) SetCover(ctx context.Context, id, ref string) error {
	return s.updateJobField(ctx, id, "cover_ref", ref)
}

func (s *Store) updateJobField(ctx context.Context, id, column, value string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		nullableString(value), s.timestamp(), id,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", column, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update job %s: %w", column, ErrJobNotFound)
	}
	return nil
}

// ListLibrary returns the owner's library entries, newest first.
func (s *Store) ListLibrary(ctx context.Context, ownerID string) ([]LibraryEntry, error) {
	columns := make([]string, 0, 16)
	for _, col := range strings.Split(jobColumns, ",") {
		columns = append(columns, "j."+strings.TrimSpace(col))
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(columns, ", ")+`, l.added_at, l.favorite
         FROM library l JOIN jobs j ON j.id = l.job_id
         WHERE l.owner_id = ?
         ORDER BY j.rowid DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query library: %w", err)
	}
	defer rows.Close()

	var entries []LibraryEntry
	for rows.Next() {
		var (
			addedRaw string
			favorite int
		)
		job, err := scanJob(libraryScanner{rows: rows, extra: []any{&addedRaw, &favorite}})
		if err != nil {
			return nil, fmt.Errorf("scan library entry: %w", err)
		}
		entry := LibraryEntry{Job: job, Favorite: favorite != 0}
		if added, err := parseTimeString(addedRaw); err == nil {
			entry.AddedAt = added
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// libraryScanner appends the library columns to a job scan.
type libraryScanner struct {
	rows  *sql.Rows
	extra []any
}

func (l libraryScanner) Scan(dest ...any) error {
	return l.rows.Scan(append(dest, l.extra...)...)
}

// SetFavorite marks or unmarks a job in the owner's library.
func (s *Store) SetFavorite(ctx context.Context, ownerID, jobID string, favorite bool) error {
	value := 0
	if favorite {
		value = 1
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE library SET favorite = ? WHERE owner_id = ? AND job_id = ?`,
		value, ownerID, jobID,
	)
	if err != nil {
		return fmt.Errorf("set favorite: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set favorite: %w", ErrJobNotFound)
	}
	return nil
}
