package prompting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/services"
	"bookture/internal/stage"
)

// BootstrapSummary conditions the first page's prompt.
const BootstrapSummary = "The story begins. Introduce the main characters and setting."

const (
	defaultUnitCap         = 10
	defaultMinPromptLength = 20
)

// Store is the persistence surface the prompt writer needs.
type Store interface {
	ListUnits(ctx context.Context, jobID string, limit int) ([]jobs.Unit, error)
	SetUnitPrompt(ctx context.Context, jobID string, ordinal int, prompt string) error
	SetUnitSummary(ctx context.Context, jobID string, ordinal int, summary string) error
	MarkUnitFailed(ctx context.Context, jobID string, ordinal int, message string) error
}

// Writer composes prompts and continuity summaries.
type Writer interface {
	ComposePrompt(ctx context.Context, guide jobs.StyleGuide, pageText, previousSummary string) (string, error)
	Summarize(ctx context.Context, pageText string) (string, error)
}

// Options wires the prompting stage. Compose paces and retries prompt
// generation calls; Summarize only retries summary calls.
type Options struct {
	Store           Store
	Writer          Writer
	Compose         stage.Capability
	Summarize       stage.Capability
	UnitCap         int
	MinPromptLength int
	Logger          *slog.Logger
}

// Prompter is the prompt generation stage handler. A summary already stored
// on a unit stands in for the summarization call on later runs.
type Prompter struct {
	store     Store
	writer    Writer
	compose   stage.Capability
	summarize stage.Capability
	cap       int
	minLength int
	logger    *slog.Logger
}

// New constructs the prompting stage handler.
func New(opts Options) *Prompter {
	p := &Prompter{
		store:     opts.Store,
		writer:    opts.Writer,
		compose:   opts.Compose,
		summarize: opts.Summarize,
		cap:       opts.UnitCap,
		minLength: opts.MinPromptLength,
		logger:    logging.NewComponentLogger(opts.Logger, "prompting"),
	}
	if p.cap <= 0 {
		p.cap = defaultUnitCap
	}
	if p.minLength <= 0 {
		p.minLength = defaultMinPromptLength
	}
	return p
}

func (p *Prompter) Prepare(_ context.Context, job *jobs.Job) error {
	if !job.StyleGuide.Complete() {
		return services.Wrap(services.ErrConsistency, "generating_prompts", "prepare", "Style guide missing; analysis must complete before prompts", nil)
	}
	return nil
}

func (p *Prompter) Execute(ctx context.Context, job *jobs.Job, progress stage.Progress) error {
	logger := logging.WithContext(ctx, p.logger)
	if !job.StyleGuide.Complete() {
		return services.Wrap(services.ErrConsistency, "generating_prompts", "execute", "Style guide missing", nil)
	}
	guide := *job.StyleGuide

	units, err := p.store.ListUnits(ctx, job.ID, p.cap)
	if err != nil {
		return fmt.Errorf("load units: %w", err)
	}
	if len(units) == 0 {
		return services.Wrap(services.ErrConsistency, "generating_prompts", "load units", "Job has no pages", nil)
	}

	previous := BootstrapSummary
	generated, skipped := 0, 0
	for i, unit := range units {
		if unit.Ordinal != i+1 {
			return services.Wrap(services.ErrConsistency, "generating_prompts", "order",
				fmt.Sprintf("expected page %d, found page %d", i+1, unit.Ordinal), nil)
		}

		if p.hasPrompt(unit) {
			skipped++
		} else {
			prompt, err := stage.Call(ctx, p.compose, "compose prompt", func(ctx context.Context) (string, error) {
				return p.writer.ComposePrompt(ctx, guide, unit.Content, previous)
			})
			if err == nil && !p.longEnough(prompt) {
				err = services.Wrap(services.ErrMalformedOutput, "generating_prompts", "compose",
					fmt.Sprintf("prompt for page %d is too short", unit.Ordinal), nil)
			}
			if err != nil {
				p.markFailed(ctx, logger, job.ID, unit.Ordinal, err)
				return err
			}
			if err := p.store.SetUnitPrompt(ctx, job.ID, unit.Ordinal, prompt); err != nil {
				return fmt.Errorf("persist prompt for page %d: %w", unit.Ordinal, err)
			}
			generated++
			progress.Log(ctx, fmt.Sprintf("Page %d serialized into neural prompt.", unit.Ordinal))
		}

		summary, err := p.continuity(ctx, job.ID, unit)
		if err != nil {
			return err
		}
		previous = summary

		if err := progress.Advance(ctx, i+1, len(units)); err != nil {
			return err
		}
	}

	logger.Info("prompts ready",
		logging.String(logging.FieldEventType, "prompts_ready"),
		logging.Int("generated", generated),
		logging.Int("skipped", skipped),
	)
	return nil
}

// hasPrompt reports whether a unit's stored prompt is long enough to keep.
// Completed units always count as prompted.
func (p *Prompter) hasPrompt(unit jobs.Unit) bool {
	if unit.Status == jobs.UnitCompleted {
		return true
	}
	return p.longEnough(unit.Prompt)
}

func (p *Prompter) longEnough(prompt string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(prompt)) > p.minLength
}

// continuity returns the unit's summary, reusing a stored one and generating
// and persisting it otherwise.
func (p *Prompter) continuity(ctx context.Context, jobID string, unit jobs.Unit) (string, error) {
	if stored := strings.TrimSpace(unit.Summary); stored != "" {
		return stored, nil
	}
	summary, err := stage.Call(ctx, p.summarize, "summarize page", func(ctx context.Context) (string, error) {
		return p.writer.Summarize(ctx, unit.Content)
	})
	if err != nil {
		return "", err
	}
	if err := p.store.SetUnitSummary(ctx, jobID, unit.Ordinal, summary); err != nil {
		return "", fmt.Errorf("persist summary for page %d: %w", unit.Ordinal, err)
	}
	return summary, nil
}

func (p *Prompter) markFailed(ctx context.Context, logger *slog.Logger, jobID string, ordinal int, cause error) {
	if err := p.store.MarkUnitFailed(ctx, jobID, ordinal, services.UserMessage(cause)); err != nil {
		logger.Warn("failed to record unit failure",
			logging.Page(ordinal),
			logging.Error(err),
		)
	}
}

func (p *Prompter) HealthCheck(context.Context) stage.Health {
	return stage.CheckDependencies("prompting",
		stage.Needs("job store", p.store != nil),
		stage.Needs("prompt writer", p.writer != nil),
	)
}
