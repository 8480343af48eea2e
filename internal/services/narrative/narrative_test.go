package narrative_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bookture/internal/jobs"
	"bookture/internal/services"
	"bookture/internal/services/narrative"
)

type fakeCompleter struct {
	jsonReply string
	textReply string
	err       error
	users     []string
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, user string) (string, error) {
	f.users = append(f.users, user)
	return f.textReply, f.err
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, _ string, user string) (string, error) {
	f.users = append(f.users, user)
	return f.jsonReply, f.err
}

func newService(t *testing.T, fake *fakeCompleter) *narrative.Service {
	t.Helper()
	svc, err := narrative.New(fake)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func TestAnalyzeStyleParsesFencedJSON(t *testing.T) {
	fake := &fakeCompleter{jsonReply: "```json\n{\"artStyle\":\" Ink wash \",\"characters\":\"A tall sailor\",\"setting\":\"Stormy sea\",\"title\":\"Moby Dick\"}\n```"}
	svc := newService(t, fake)

	guide, err := svc.AnalyzeStyle(context.Background(), "Call me Ishmael.")
	if err != nil {
		t.Fatalf("AnalyzeStyle: %v", err)
	}
	if guide.ArtStyle != "Ink wash" || guide.Title != "Moby Dick" || guide.Author != "" {
		t.Fatalf("unexpected guide %+v", guide)
	}
	if !strings.Contains(fake.users[0], "Call me Ishmael.") {
		t.Fatalf("expected snippet in prompt, got %q", fake.users[0])
	}
}

func TestAnalyzeStyleRejectsMalformedOutput(t *testing.T) {
	cases := map[string]string{
		"not json":       "I cannot help with that.",
		"missing field":  `{"artStyle":"ink","characters":"sailor"}`,
		"wrong type":     `{"artStyle":3,"characters":"sailor","setting":"sea"}`,
		"blank required": `{"artStyle":"   ","characters":"sailor","setting":"sea"}`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			svc := newService(t, &fakeCompleter{jsonReply: reply})
			_, err := svc.AnalyzeStyle(context.Background(), "text")
			if !errors.Is(err, services.ErrMalformedOutput) {
				t.Fatalf("expected malformed output error, got %v", err)
			}
		})
	}
}

func TestAnalyzeStylePassesTransportErrors(t *testing.T) {
	svc := newService(t, &fakeCompleter{err: services.ErrTransient})
	_, err := svc.AnalyzeStyle(context.Background(), "text")
	if !errors.Is(err, services.ErrTransient) || errors.Is(err, services.ErrMalformedOutput) {
		t.Fatalf("expected transport error to pass through, got %v", err)
	}
	if _, err := svc.AnalyzeStyle(context.Background(), "  "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty snippet, got %v", err)
	}
}

func TestComposePromptIncludesContext(t *testing.T) {
	fake := &fakeCompleter{textReply: "  A lantern-lit deck at dusk.  "}
	svc := newService(t, fake)
	guide := jobs.StyleGuide{ArtStyle: "ink", Characters: "sailor", Setting: "sea"}

	prompt, err := svc.ComposePrompt(context.Background(), guide, "The whale surfaced.", "The ship left port.")
	if err != nil {
		t.Fatalf("ComposePrompt: %v", err)
	}
	if prompt != "A lantern-lit deck at dusk." {
		t.Fatalf("unexpected prompt %q", prompt)
	}
	user := fake.users[0]
	for _, want := range []string{"ink", "sailor", "sea", "The whale surfaced.", "The ship left port."} {
		if !strings.Contains(user, want) {
			t.Fatalf("prompt request missing %q:\n%s", want, user)
		}
	}
}

func TestComposePromptRequiresStyleGuide(t *testing.T) {
	svc := newService(t, &fakeCompleter{textReply: "x"})
	_, err := svc.ComposePrompt(context.Background(), jobs.StyleGuide{}, "page", "prev")
	if !errors.Is(err, services.ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
}

func TestComposePromptRejectsBlankReply(t *testing.T) {
	svc := newService(t, &fakeCompleter{textReply: "  \n "})
	guide := jobs.StyleGuide{ArtStyle: "ink", Characters: "sailor", Setting: "sea"}
	_, err := svc.ComposePrompt(context.Background(), guide, "page", "prev")
	if !errors.Is(err, services.ErrMalformedOutput) {
		t.Fatalf("expected malformed output error, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	svc := newService(t, &fakeCompleter{textReply: "The whale appears.\n"})
	summary, err := svc.Summarize(context.Background(), "page text")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary != "The whale appears." {
		t.Fatalf("unexpected summary %q", summary)
	}
}
