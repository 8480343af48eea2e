package analysis

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

// Store is the persistence surface the analyzer needs.
type Store interface {
	ListUnits(ctx context.Context, jobID string, limit int) ([]jobs.Unit, error)
	SetStyleGuide(ctx context.Context, id string, guide jobs.StyleGuide) error
	SetCharacterSheet(ctx context.Context, id, ref string) error
}

// StyleAnalyzer derives a style guide from opening text.
type StyleAnalyzer interface {
	AnalyzeStyle(ctx context.Context, snippet string) (jobs.StyleGuide, error)
}

// ImageGenerator produces an image artifact from a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, req imagegen.Request) (artifacts.Artifact, error)
}

// Options wires the analyzer's collaborators.
type Options struct {
	Store        Store
	Analyzer     StyleAnalyzer
	Images       ImageGenerator
	Artifacts    artifacts.Store
	Text         stage.Capability
	Image        stage.Capability
	LeadingUnits int
	Logger       *slog.Logger
}

// Analyzer is the analysis stage handler.
type Analyzer struct {
	store     Store
	analyzer  StyleAnalyzer
	images    ImageGenerator
	artifacts artifacts.Store
	text      stage.Capability
	image     stage.Capability
	leading   int
	logger    *slog.Logger
}

// New constructs the analysis stage handler.
func New(opts Options) *Analyzer {
	leading := opts.LeadingUnits
	if leading <= 0 {
		leading = 10
	}
	return &Analyzer{
		store:     opts.Store,
		analyzer:  opts.Analyzer,
		images:    opts.Images,
		artifacts: opts.Artifacts,
		text:      opts.Text,
		image:     opts.Image,
		leading:   leading,
		logger:    logging.NewComponentLogger(opts.Logger, "analysis"),
	}
}

func (a *Analyzer) Prepare(context.Context, *jobs.Job) error {
	return nil
}

func (a *Analyzer) Execute(ctx context.Context, job *jobs.Job, progress stage.Progress) error {
	logger := logging.WithContext(ctx, a.logger)

	if job.StyleGuide.Complete() && strings.TrimSpace(job.CharacterSheetRef) != "" {
		logger.Info("style guide and character sheet present; skipping analysis")
		return nil
	}

	guide := job.StyleGuide
	if !guide.Complete() {
		units, err := a.store.ListUnits(ctx, job.ID, a.leading)
		if err != nil {
			return fmt.Errorf("load leading units: %w", err)
		}
		snippet := stage.LeadingSnippet(units)
		if snippet == "" {
			return services.Wrap(services.ErrConsistency, "analyzing", "load units", "No page text available for style analysis", nil)
		}
		derived, err := stage.Call(ctx, a.text, "analyze style", func(ctx context.Context) (jobs.StyleGuide, error) {
			return a.analyzer.AnalyzeStyle(ctx, snippet)
		})
		if err != nil {
			return err
		}
		if err := a.store.SetStyleGuide(ctx, job.ID, derived); err != nil {
			return fmt.Errorf("persist style guide: %w", err)
		}
		guide = &derived
		job.StyleGuide = guide
		logger.Info("style guide derived",
			logging.String(logging.FieldEventType, "style_guide_derived"),
			logging.String("art_style", guide.ArtStyle),
		)
		progress.Log(ctx, "Style guide derived: "+guide.ArtStyle)
	}
	if err := progress.Advance(ctx, 1, 2); err != nil {
		return err
	}

	if strings.TrimSpace(job.CharacterSheetRef) == "" {
		sheet, err := stage.Call(ctx, a.image, "character sheet", func(ctx context.Context) (artifacts.Artifact, error) {
			return a.images.Generate(ctx, imagegen.Request{Prompt: CharacterSheetPrompt(*guide)})
		})
		if err != nil {
			return err
		}
		ref, err := a.artifacts.Put(ctx, job.ID, artifacts.CharacterSheet, sheet)
		if err != nil {
			return fmt.Errorf("store character sheet: %w", err)
		}
		if err := a.store.SetCharacterSheet(ctx, job.ID, ref); err != nil {
			return fmt.Errorf("persist character sheet: %w", err)
		}
		job.CharacterSheetRef = ref
		logger.Info("character sheet generated",
			logging.String(logging.FieldEventType, "character_sheet_generated"),
			logging.String("artifact", ref),
		)
		progress.Log(ctx, "Character reference sheet generated.")
	}
	return progress.Advance(ctx, 2, 2)
}

// CharacterSheetPrompt builds the image prompt for the reference sheet.
func CharacterSheetPrompt(guide jobs.StyleGuide) string {
	return fmt.Sprintf(
		"Professional character design sheet, 3 views (front, side, back), neutral background. Character: %s. Style: %s",
		strings.TrimSpace(guide.Characters),
		strings.TrimSpace(guide.ArtStyle),
	)
}

func (a *Analyzer) HealthCheck(context.Context) stage.Health {
	return stage.CheckDependencies("analysis",
		stage.Needs("job store", a.store != nil),
		stage.Needs("style analyzer", a.analyzer != nil),
		stage.Needs("image generator", a.images != nil),
		stage.Needs("artifact store", a.artifacts != nil),
	)
}
