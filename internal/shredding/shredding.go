package shredding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/services"
	"bookture/internal/stage"
)

// Store is the persistence surface the shredder needs.
type Store interface {
	CountUnits(ctx context.Context, jobID string) (int, error)
	InsertUnits(ctx context.Context, jobID string, contents []string) error
}

// Extractor produces page texts from a source document.
type Extractor interface {
	Pages(ctx context.Context, path string) ([]string, error)
}

// Shredder splits source documents into units.
type Shredder struct {
	store     Store
	extractor Extractor
	logger    *slog.Logger
}

// New constructs the shredding stage handler.
func New(store Store, extractor Extractor, logger *slog.Logger) *Shredder {
	return &Shredder{
		store:     store,
		extractor: extractor,
		logger:    logging.NewComponentLogger(logger, "shredding"),
	}
}

func (s *Shredder) Prepare(_ context.Context, job *jobs.Job) error {
	if job == nil || strings.TrimSpace(job.SourcePath) == "" {
		return services.Wrap(services.ErrValidation, "shredding", "prepare", "Job has no source document", nil)
	}
	return nil
}

func (s *Shredder) Execute(ctx context.Context, job *jobs.Job, progress stage.Progress) error {
	logger := logging.WithContext(ctx, s.logger)

	existing, err := s.store.CountUnits(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("count units: %w", err)
	}
	if existing > 0 {
		logger.Info("units already present; skipping shredding", logging.Int("units", existing))
		return nil
	}

	pages, err := s.extractor.Pages(ctx, job.SourcePath)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return services.Wrap(services.ErrValidation, "shredding", "split", "Document contains no readable text", nil)
	}

	if err := s.store.InsertUnits(ctx, job.ID, pages); err != nil {
		if errors.Is(err, jobs.ErrUnitsExist) {
			logger.Info("units inserted concurrently; skipping shredding")
			return nil
		}
		return fmt.Errorf("insert units: %w", err)
	}
	logger.Info("document shredded",
		logging.String(logging.FieldEventType, "document_shredded"),
		logging.Int("units", len(pages)),
	)
	if err := progress.Advance(ctx, 1, 1); err != nil {
		return err
	}
	progress.Log(ctx, fmt.Sprintf("Document shredded into %d pages.", len(pages)))
	return nil
}

// HealthCheck reports whether the stage's collaborators are wired.
func (s *Shredder) HealthCheck(context.Context) stage.Health {
	return stage.CheckDependencies("shredding",
		stage.Needs("job store", s.store != nil),
		stage.Needs("text extractor", s.extractor != nil),
	)
}
