package illustration_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"bookture/internal/artifacts"
	"bookture/internal/illustration"
	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/services"
	"bookture/internal/services/imagegen"
	"bookture/internal/stage"
	"bookture/internal/testsupport"
)

type stubImages struct {
	requests []imagegen.Request
	failOn   string
}

func (s *stubImages) Generate(_ context.Context, req imagegen.Request) (artifacts.Artifact, error) {
	if req.Prompt == s.failOn {
		return artifacts.Artifact{}, fmt.Errorf("%w: no image returned", services.ErrMalformedOutput)
	}
	s.requests = append(s.requests, req)
	return artifacts.Artifact{Data: []byte(req.Prompt), ContentType: "image/png"}, nil
}

type recordingProgress struct {
	logs []string
}

func (p *recordingProgress) Advance(context.Context, int, int) error { return nil }

func (p *recordingProgress) Log(_ context.Context, msg string) {
	p.logs = append(p.logs, msg)
}

type fixture struct {
	store     *jobs.Store
	job       *jobs.Job
	images    *stubImages
	artifacts *artifacts.Local
	handler   *illustration.Illustrator
}

func newFixture(t *testing.T, pages, prompted int) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	job, err := store.CreateJob(ctx, jobs.NewJob{OwnerID: "alice", Title: "Dune", SourcePath: "/tmp/d.txt"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	contents := make([]string, pages)
	for i := range contents {
		contents[i] = fmt.Sprintf("page%d", i+1)
	}
	if err := store.InsertUnits(ctx, job.ID, contents); err != nil {
		t.Fatalf("InsertUnits: %v", err)
	}
	for ordinal := 1; ordinal <= prompted; ordinal++ {
		if err := store.SetUnitPrompt(ctx, job.ID, ordinal, fmt.Sprintf("prompt for page %d", ordinal)); err != nil {
			t.Fatalf("SetUnitPrompt: %v", err)
		}
	}
	local, err := artifacts.NewLocal(cfg.Paths.ArtifactDir, "")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	sheetRef, err := local.Put(ctx, job.ID, artifacts.CharacterSheet, artifacts.Artifact{Data: []byte("sheet"), ContentType: "image/png"})
	if err != nil {
		t.Fatalf("Put sheet: %v", err)
	}
	job.CharacterSheetRef = sheetRef

	images := &stubImages{}
	return &fixture{
		store:     store,
		job:       job,
		images:    images,
		artifacts: local,
		handler: illustration.New(illustration.Options{
			Store:     store,
			Images:    images,
			Artifacts: local,
			Logger:    logging.NewNop(),
		}),
	}
}

func TestExecuteRendersPromptedPagesWithReference(t *testing.T) {
	f := newFixture(t, 3, 3)
	progress := &recordingProgress{}
	if err := f.handler.Execute(context.Background(), f.job, progress); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(f.images.requests) != 3 {
		t.Fatalf("expected 3 renders, got %d", len(f.images.requests))
	}
	for _, req := range f.images.requests {
		if req.Reference == nil || string(req.Reference.Data) != "sheet" {
			t.Fatalf("render missing character reference: %+v", req)
		}
	}
	if progress.logs[0] != "Page 1 illustrated." {
		t.Fatalf("unexpected log %q", progress.logs[0])
	}

	units, err := f.store.ListUnits(context.Background(), f.job.ID, 0)
	if err != nil {
		t.Fatalf("ListUnits: %v", err)
	}
	for _, unit := range units[:3] {
		if unit.Status != jobs.UnitCompleted || unit.ArtifactRef == "" {
			t.Fatalf("unit %d not completed: %+v", unit.Ordinal, unit)
		}
	}
	stored, err := f.artifacts.Fetch(context.Background(), units[1].ArtifactRef)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(stored.Data) != "prompt for page 2" {
		t.Fatalf("unexpected artifact content %q", stored.Data)
	}
}

func TestExecuteSkipsIllustratedPages(t *testing.T) {
	f := newFixture(t, 3, 3)
	if err := f.store.SetUnitArtifact(context.Background(), f.job.ID, 1, "/existing/page1.png"); err != nil {
		t.Fatalf("SetUnitArtifact: %v", err)
	}
	if err := f.handler.Execute(context.Background(), f.job, stage.NopProgress{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(f.images.requests) != 2 || f.images.requests[0].Prompt != "prompt for page 2" {
		t.Fatalf("expected pages 2 and 3 only, got %+v", f.images.requests)
	}
}

func TestExecuteFailsWithoutPrompts(t *testing.T) {
	f := newFixture(t, 2, 0)
	err := f.handler.Execute(context.Background(), f.job, stage.NopProgress{})
	if !errors.Is(err, services.ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
	if len(f.images.requests) != 0 {
		t.Fatalf("no renders expected")
	}
}

func TestExecuteFailsWhenAPageLacksPrompt(t *testing.T) {
	f := newFixture(t, 4, 3)
	err := f.handler.Execute(context.Background(), f.job, stage.NopProgress{})
	if !errors.Is(err, services.ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
	if len(f.images.requests) != 0 {
		t.Fatalf("no renders expected before the gap is resolved, got %d", len(f.images.requests))
	}
}

func TestExecuteAbortsOnFirstFailure(t *testing.T) {
	f := newFixture(t, 3, 3)
	f.images.failOn = "prompt for page 2"
	err := f.handler.Execute(context.Background(), f.job, stage.NopProgress{})
	if !errors.Is(err, services.ErrMalformedOutput) {
		t.Fatalf("expected malformed output error, got %v", err)
	}
	units, err := f.store.ListUnits(context.Background(), f.job.ID, 0)
	if err != nil {
		t.Fatalf("ListUnits: %v", err)
	}
	if units[0].Status != jobs.UnitCompleted {
		t.Fatalf("page 1 should be completed")
	}
	if units[1].Status != jobs.UnitProcessing || units[1].ErrorMessage == "" {
		t.Fatalf("page 2 should stay processing with an error: %+v", units[1])
	}
	if units[2].ArtifactRef != "" {
		t.Fatalf("page 3 should not be attempted")
	}
}

func TestExecuteRendersWithoutReadableSheet(t *testing.T) {
	f := newFixture(t, 1, 1)
	f.job.CharacterSheetRef = "https://elsewhere.example.com/sheet.png"
	if err := f.handler.Execute(context.Background(), f.job, stage.NopProgress{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(f.images.requests) != 1 || f.images.requests[0].Reference != nil {
		t.Fatalf("expected one render without reference, got %+v", f.images.requests)
	}
}
