// Package cover generates the book's cover image from its opening pages.
package cover

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

// Store is the persistence surface the cover stage needs.
type Store interface {
	ListUnits(ctx context.Context, jobID string, limit int) ([]jobs.Unit, error)
	SetCover(ctx context.Context, id, ref string) error
}

// ImageGenerator produces an image artifact from a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, req imagegen.Request) (artifacts.Artifact, error)
}

// Options wires the cover stage's collaborators.
type Options struct {
	Store        Store
	Images       ImageGenerator
	Artifacts    artifacts.Store
	Image        stage.Capability
	LeadingUnits int
	Placeholder  string
	Logger       *slog.Logger
}

// Designer is the cover stage handler.
type Designer struct {
	store       Store
	images      ImageGenerator
	artifacts   artifacts.Store
	image       stage.Capability
	leading     int
	placeholder string
	logger      *slog.Logger
}

// New constructs the cover stage handler.
func New(opts Options) *Designer {
	leading := opts.LeadingUnits
	if leading <= 0 {
		leading = 10
	}
	return &Designer{
		store:       opts.Store,
		images:      opts.Images,
		artifacts:   opts.Artifacts,
		image:       opts.Image,
		leading:     leading,
		placeholder: opts.Placeholder,
		logger:      logging.NewComponentLogger(opts.Logger, "cover"),
	}
}

func (d *Designer) Prepare(context.Context, *jobs.Job) error {
	return nil
}

func (d *Designer) Execute(ctx context.Context, job *jobs.Job, progress stage.Progress) error {
	logger := logging.WithContext(ctx, d.logger)
	if job.HasGeneratedCover(d.placeholder) {
		logger.Info("cover already generated; skipping", logging.String("artifact", job.CoverRef))
		return nil
	}

	units, err := d.store.ListUnits(ctx, job.ID, d.leading)
	if err != nil {
		return fmt.Errorf("load leading units: %w", err)
	}
	snippet := stage.LeadingSnippet(units)
	if snippet == "" {
		return services.Wrap(services.ErrConsistency, "generating_cover", "load units", "No page text available for the cover", nil)
	}

	image, err := stage.Call(ctx, d.image, "cover", func(ctx context.Context) (artifacts.Artifact, error) {
		return d.images.Generate(ctx, imagegen.Request{Prompt: Prompt(job.Title, snippet)})
	})
	if err != nil {
		return err
	}
	ref, err := d.artifacts.Put(ctx, job.ID, artifacts.BookCover, image)
	if err != nil {
		return fmt.Errorf("store cover: %w", err)
	}
	if err := d.store.SetCover(ctx, job.ID, ref); err != nil {
		return fmt.Errorf("persist cover: %w", err)
	}
	job.CoverRef = ref
	logger.Info("cover generated",
		logging.String(logging.FieldEventType, "cover_generated"),
		logging.String("artifact", ref),
	)
	progress.Log(ctx, "Cover generated.")
	return progress.Advance(ctx, 1, 1)
}

// coverSnippetLimit bounds how much opening text is quoted into the prompt.
const coverSnippetLimit = 2000

// Prompt builds the cover image prompt. Covers avoid depicting people so the
// character sheet stays the single source of character appearance.
func Prompt(title, snippet string) string {
	snippet = strings.TrimSpace(snippet)
	if runes := []rune(snippet); len(runes) > coverSnippetLimit {
		snippet = string(runes[:coverSnippetLimit])
	}
	var b strings.Builder
	b.WriteString("Book cover art, no humans, no text. A cinematic landscape or abstract composition evoking the mood and setting of the story")
	if title = strings.TrimSpace(title); title != "" {
		fmt.Fprintf(&b, " %q", title)
	}
	b.WriteString(". Opening passage:\n")
	b.WriteString(snippet)
	return b.String()
}

func (d *Designer) HealthCheck(context.Context) stage.Health {
	return stage.CheckDependencies("cover",
		stage.Needs("job store", d.store != nil),
		stage.Needs("image generator", d.images != nil),
		stage.Needs("artifact store", d.artifacts != nil),
	)
}
