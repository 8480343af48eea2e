// Package illustration renders one image per prompted page, anchored to the
// job's character reference sheet.
package illustration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"bookture/internal/artifacts"
	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/services"
	"bookture/internal/services/imagegen"
	"bookture/internal/stage"
)

// Store is the persistence surface the illustrator needs.
type Store interface {
	ListUnits(ctx context.Context, jobID string, limit int) ([]jobs.Unit, error)
	SetUnitArtifact(ctx context.Context, jobID string, ordinal int, ref string) error
	MarkUnitFailed(ctx context.Context, jobID string, ordinal int, message string) error
}

// ImageGenerator produces an image artifact from a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, req imagegen.Request) (artifacts.Artifact, error)
}

// Options wires the illustration stage.
type Options struct {
	Store     Store
	Images    ImageGenerator
	Artifacts artifacts.Store
	Image     stage.Capability
	UnitCap   int
	Logger    *slog.Logger
}

// Illustrator is the image generation stage handler.
type Illustrator struct {
	store     Store
	images    ImageGenerator
	artifacts artifacts.Store
	image     stage.Capability
	cap       int
	logger    *slog.Logger
}

// New constructs the illustration stage handler.
func New(opts Options) *Illustrator {
	unitCap := opts.UnitCap
	if unitCap <= 0 {
		unitCap = 10
	}
	return &Illustrator{
		store:     opts.Store,
		images:    opts.Images,
		artifacts: opts.Artifacts,
		image:     opts.Image,
		cap:       unitCap,
		logger:    logging.NewComponentLogger(opts.Logger, "illustration"),
	}
}

func (i *Illustrator) Prepare(context.Context, *jobs.Job) error {
	return nil
}

func (i *Illustrator) Execute(ctx context.Context, job *jobs.Job, progress stage.Progress) error {
	logger := logging.WithContext(ctx, i.logger)

	units, err := i.store.ListUnits(ctx, job.ID, i.cap)
	if err != nil {
		return fmt.Errorf("load units: %w", err)
	}
	if len(units) == 0 {
		return services.Wrap(services.ErrConsistency, "generating_images", "select pages", "No pending images to generate", nil)
	}
	for _, unit := range units {
		if strings.TrimSpace(unit.Prompt) == "" && strings.TrimSpace(unit.ArtifactRef) == "" {
			return services.Wrap(services.ErrConsistency, "generating_images", "select pages",
				fmt.Sprintf("Page %d has no prompt; resume the job to regenerate it", unit.Ordinal), nil)
		}
	}

	reference := i.loadReference(ctx, logger, job)

	rendered := 0
	for n, unit := range units {
		if strings.TrimSpace(unit.ArtifactRef) != "" {
			if err := progress.Advance(ctx, n+1, len(units)); err != nil {
				return err
			}
			continue
		}
		if err := i.render(ctx, job.ID, unit, reference); err != nil {
			if recErr := i.store.MarkUnitFailed(ctx, job.ID, unit.Ordinal, services.UserMessage(err)); recErr != nil {
				logger.Warn("failed to record unit failure", logging.Page(unit.Ordinal), logging.Error(recErr))
			}
			return err
		}
		rendered++
		progress.Log(ctx, fmt.Sprintf("Page %d illustrated.", unit.Ordinal))
		if err := progress.Advance(ctx, n+1, len(units)); err != nil {
			return err
		}
	}

	logger.Info("pages illustrated",
		logging.String(logging.FieldEventType, "pages_illustrated"),
		logging.Int("rendered", rendered),
		logging.Int("skipped", len(units)-rendered),
	)
	return nil
}

func (i *Illustrator) render(ctx context.Context, jobID string, unit jobs.Unit, reference *artifacts.Artifact) error {
	image, err := stage.Call(ctx, i.image, fmt.Sprintf("illustrate page %d", unit.Ordinal), func(ctx context.Context) (artifacts.Artifact, error) {
		return i.images.Generate(ctx, imagegen.Request{Prompt: unit.Prompt, Reference: reference})
	})
	if err != nil {
		return err
	}
	ref, err := i.artifacts.Put(ctx, jobID, artifacts.PageIdentifier(unit.Ordinal), image)
	if err != nil {
		return fmt.Errorf("store page %d image: %w", unit.Ordinal, err)
	}
	if err := i.store.SetUnitArtifact(ctx, jobID, unit.Ordinal, ref); err != nil {
		return fmt.Errorf("persist page %d image: %w", unit.Ordinal, err)
	}
	return nil
}

// loadReference fetches the character sheet. Pages are still rendered
// without it when the sheet cannot be loaded.
func (i *Illustrator) loadReference(ctx context.Context, logger *slog.Logger, job *jobs.Job) *artifacts.Artifact {
	ref := strings.TrimSpace(job.CharacterSheetRef)
	if ref == "" {
		logging.WarnWithContext(logger, "character sheet missing; pages rendered without reference", "reference_missing",
			logging.String(logging.FieldImpact, "characters may drift between pages"),
			logging.String(logging.FieldErrorHint, "resume the job from analysis to regenerate the sheet"),
		)
		return nil
	}
	sheet, err := i.artifacts.Fetch(ctx, ref)
	if err != nil {
		logging.WarnWithContext(logger, "character sheet unreadable; pages rendered without reference", "reference_unreadable",
			logging.String("artifact", ref),
			logging.Error(err),
			logging.String(logging.FieldImpact, "characters may drift between pages"),
			logging.String(logging.FieldErrorHint, "check storage.public_base_url still matches the stored references"),
		)
		return nil
	}
	return &sheet
}

func (i *Illustrator) HealthCheck(context.Context) stage.Health {
	return stage.CheckDependencies("illustration",
		stage.Needs("job store", i.store != nil),
		stage.Needs("image generator", i.images != nil),
		stage.Needs("artifact store", i.artifacts != nil),
	)
}
