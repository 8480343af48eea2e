package cover_test

import (
	"context"
	"strings"
	"testing"

	"bookture/internal/artifacts"
	"bookture/internal/cover"
	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/services/imagegen"
	"bookture/internal/stage"
	"bookture/internal/testsupport"
)

const placeholder = "https://example.com/placeholder.jpg"

type stubImages struct {
	prompts []string
}

func (s *stubImages) Generate(_ context.Context, req imagegen.Request) (artifacts.Artifact, error) {
	s.prompts = append(s.prompts, req.Prompt)
	return artifacts.Artifact{Data: []byte("jpeg"), ContentType: "image/jpeg"}, nil
}

func setup(t *testing.T) (*jobs.Store, *jobs.Job, *stubImages, *cover.Designer) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	job, err := store.CreateJob(ctx, jobs.NewJob{OwnerID: "alice", Title: "Dune", SourcePath: "/tmp/d.txt", CoverRef: placeholder})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := store.InsertUnits(ctx, job.ID, []string{"The desert wind", "Arrakis at dusk"}); err != nil {
		t.Fatalf("InsertUnits: %v", err)
	}
	artifactStore, err := artifacts.NewLocal(cfg.Paths.ArtifactDir, "https://cdn.example.com/art")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	images := &stubImages{}
	handler := cover.New(cover.Options{
		Store:       store,
		Images:      images,
		Artifacts:   artifactStore,
		Placeholder: placeholder,
		Logger:      logging.NewNop(),
	})
	return store, job, images, handler
}

func TestExecuteReplacesPlaceholder(t *testing.T) {
	store, job, images, handler := setup(t)
	if err := handler.Execute(context.Background(), job, stage.NopProgress{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(images.prompts) != 1 {
		t.Fatalf("expected one image call, got %d", len(images.prompts))
	}
	if !strings.Contains(images.prompts[0], "no humans") || !strings.Contains(images.prompts[0], "The desert wind\n\nArrakis at dusk") {
		t.Fatalf("unexpected prompt %q", images.prompts[0])
	}
	stored, err := store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	want := "https://cdn.example.com/art/book_" + job.ID + "_book_cover.jpg"
	if stored.CoverRef != want {
		t.Fatalf("cover ref = %q, want %q", stored.CoverRef, want)
	}
}

func TestExecuteSkipsGeneratedCover(t *testing.T) {
	_, job, images, handler := setup(t)
	job.CoverRef = "https://cdn.example.com/art/existing.png"
	if err := handler.Execute(context.Background(), job, stage.NopProgress{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(images.prompts) != 0 {
		t.Fatalf("expected no image call, got %d", len(images.prompts))
	}
}

func TestPromptTruncatesLongSnippets(t *testing.T) {
	prompt := cover.Prompt("Dune", strings.Repeat("z", 5000))
	if strings.Count(prompt, "z") != 2000 {
		t.Fatalf("snippet not truncated: %d z runes", strings.Count(prompt, "z"))
	}
	if !strings.Contains(prompt, `"Dune"`) {
		t.Fatalf("title missing from prompt %q", prompt)
	}
}
