// Package narrative derives text context for illustration: the book-wide
// style guide, per-page image prompts, and one-line continuity summaries.
package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"bookture/internal/jobs"
	"bookture/internal/services"
	"bookture/internal/services/llm"
)

// Completer is the model transport used by Service.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const styleGuideSchema = `{
  "type": "object",
  "required": ["artStyle", "characters", "setting"],
  "properties": {
    "artStyle":   {"type": "string", "minLength": 1},
    "characters": {"type": "string", "minLength": 1},
    "setting":    {"type": "string", "minLength": 1},
    "title":      {"type": ["string", "null"]},
    "author":     {"type": ["string", "null"]}
  }
}`

const styleSystemPrompt = `You are a concept artist acting as a strict JSON-only API.
Analyze the story segment and extract a style guide for consistent illustrations.
Focus on sensory detail: lighting, texture, materials, palette, camera language.
Return exactly one JSON object with string fields:
  "artStyle":   the visual style,
  "characters": appearance, clothing and bearing of the main characters,
  "setting":    environment, weather, architecture and colour palette,
  "title":      the book title if the text states it, otherwise "",
  "author":     the author if the text states it, otherwise "".
No markdown, no commentary.`

const promptSystemPrompt = `You are a cinematographer writing prompts for an image generator.
Write one detailed prompt of about 50 words for the current scene.
Describe the visible action, lighting and camera angle.
Never use proper names; describe people by appearance instead.
Output only the prompt text.`

const summarySystemPrompt = `You summarize book pages for an illustrator.
Reply with one short sentence covering the key visual and plot events.`

// Service implements the text-understanding collaborator.
type Service struct {
	client Completer
	schema *jsonschema.Schema
}

// New compiles the style guide schema and wraps client.
func New(client Completer) (*Service, error) {
	if client == nil {
		return nil, services.Wrap(services.ErrConfiguration, "narrative", "init", "model client is nil", nil)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("style_guide.json", strings.NewReader(styleGuideSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("style_guide.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Service{client: client, schema: schema}, nil
}

// NewFromClient is New for the shared llm client.
func NewFromClient(client *llm.Client) (*Service, error) {
	if client == nil {
		return New(nil)
	}
	return New(client)
}

// AnalyzeStyle derives the style guide from the opening of the book.
// Output that is not a JSON object matching the schema fails with
// services.ErrMalformedOutput; transport failures keep their own markers.
func (s *Service) AnalyzeStyle(ctx context.Context, snippet string) (jobs.StyleGuide, error) {
	snippet = strings.TrimSpace(snippet)
	if snippet == "" {
		return jobs.StyleGuide{}, services.Wrap(services.ErrValidation, "analyzing", "style", "story snippet is empty", nil)
	}
	content, err := s.client.CompleteJSON(ctx, styleSystemPrompt, "STORY SEGMENT:\n"+snippet)
	if err != nil {
		return jobs.StyleGuide{}, err
	}
	return s.parseStyleGuide(content)
}

func (s *Service) parseStyleGuide(content string) (jobs.StyleGuide, error) {
	payload := llm.ExtractJSON(content)
	var raw any
	decoder := json.NewDecoder(bytes.NewReader([]byte(payload)))
	if err := decoder.Decode(&raw); err != nil {
		return jobs.StyleGuide{}, services.Wrap(services.ErrMalformedOutput, "analyzing", "style", "style guide is not JSON", err)
	}
	if err := s.schema.Validate(raw); err != nil {
		return jobs.StyleGuide{}, services.Wrap(services.ErrMalformedOutput, "analyzing", "style", "style guide does not match schema", err)
	}
	var guide jobs.StyleGuide
	if err := llm.DecodeLLMJSON(payload, &guide); err != nil {
		return jobs.StyleGuide{}, services.Wrap(services.ErrMalformedOutput, "analyzing", "style", "decode style guide", err)
	}
	guide.ArtStyle = strings.TrimSpace(guide.ArtStyle)
	guide.Characters = strings.TrimSpace(guide.Characters)
	guide.Setting = strings.TrimSpace(guide.Setting)
	guide.Title = strings.TrimSpace(guide.Title)
	guide.Author = strings.TrimSpace(guide.Author)
	if !guide.Complete() {
		return jobs.StyleGuide{}, services.Wrap(services.ErrMalformedOutput, "analyzing", "style", "style guide has blank fields", nil)
	}
	return guide, nil
}

// ComposePrompt turns one page into an image prompt steered by the style
// guide and the previous page's continuity summary.
func (s *Service) ComposePrompt(ctx context.Context, guide jobs.StyleGuide, pageText, previousSummary string) (string, error) {
	if !guide.Complete() {
		return "", services.Wrap(services.ErrConsistency, "generating_prompts", "compose", "style guide missing", nil)
	}
	var b strings.Builder
	b.WriteString("GLOBAL VISUAL RULES:\n")
	fmt.Fprintf(&b, "- Art style: %s\n", guide.ArtStyle)
	fmt.Fprintf(&b, "- Character designs: %s\n", guide.Characters)
	fmt.Fprintf(&b, "- Setting: %s\n\n", guide.Setting)
	b.WriteString("STORY CONTEXT:\n")
	fmt.Fprintf(&b, "- Previous action: %s\n", strings.TrimSpace(previousSummary))
	fmt.Fprintf(&b, "- Current scene: %q\n", strings.TrimSpace(pageText))

	prompt, err := s.client.Complete(ctx, promptSystemPrompt, b.String())
	if err != nil {
		return "", err
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", services.Wrap(services.ErrMalformedOutput, "generating_prompts", "compose", "model returned a blank prompt", nil)
	}
	return prompt, nil
}

// Summarize returns a one-sentence continuity digest of a page.
func (s *Service) Summarize(ctx context.Context, pageText string) (string, error) {
	summary, err := s.client.Complete(ctx, summarySystemPrompt, fmt.Sprintf("Page: %q", strings.TrimSpace(pageText)))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}

// HealthCheck verifies the model is reachable.
func (s *Service) HealthCheck(ctx context.Context) error {
	if checker, ok := s.client.(interface{ HealthCheck(context.Context) error }); ok {
		return checker.HealthCheck(ctx)
	}
	return nil
}
