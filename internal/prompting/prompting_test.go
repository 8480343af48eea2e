package prompting_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/prompting"
	"bookture/internal/ratelimit"
	"bookture/internal/services"
	"bookture/internal/stage"
	"bookture/internal/testsupport"
)

type composeCall struct {
	page     string
	previous string
}

type stubWriter struct {
	composed   []composeCall
	summarized []string
	failOn     string
	shortOn    string
}

func (w *stubWriter) ComposePrompt(_ context.Context, guide jobs.StyleGuide, pageText, previous string) (string, error) {
	if pageText == w.failOn {
		return "", fmt.Errorf("%w: refused", services.ErrMalformedOutput)
	}
	w.composed = append(w.composed, composeCall{page: pageText, previous: previous})
	if pageText == w.shortOn {
		return "a cat", nil
	}
	return fmt.Sprintf("A %s illustration of %s, cinematic lighting", guide.ArtStyle, pageText), nil
}

func (w *stubWriter) Summarize(_ context.Context, pageText string) (string, error) {
	w.summarized = append(w.summarized, pageText)
	return "after " + pageText, nil
}

type recordingProgress struct {
	advances [][2]int
	logs     []string
}

func (p *recordingProgress) Advance(_ context.Context, done, total int) error {
	p.advances = append(p.advances, [2]int{done, total})
	return nil
}

func (p *recordingProgress) Log(_ context.Context, msg string) {
	p.logs = append(p.logs, msg)
}

func setup(t *testing.T, pages int) (*jobs.Store, *jobs.Job) {
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
	job.StyleGuide = &jobs.StyleGuide{ArtStyle: "watercolor", Characters: "Paul", Setting: "Arrakis"}
	return store, job
}

func TestExecuteChainsSummariesAndCapsUnits(t *testing.T) {
	store, job := setup(t, 12)
	writer := &stubWriter{}
	progress := &recordingProgress{}
	handler := prompting.New(prompting.Options{Store: store, Writer: writer, Logger: logging.NewNop()})

	if err := handler.Execute(context.Background(), job, progress); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(writer.composed) != 10 {
		t.Fatalf("expected 10 prompts, got %d", len(writer.composed))
	}
	if writer.composed[0].previous != prompting.BootstrapSummary {
		t.Fatalf("first page should use the bootstrap summary, got %q", writer.composed[0].previous)
	}
	for i := 1; i < len(writer.composed); i++ {
		want := fmt.Sprintf("after page%d", i)
		if writer.composed[i].previous != want {
			t.Fatalf("page %d conditioned on %q, want %q", i+1, writer.composed[i].previous, want)
		}
	}
	if progress.logs[2] != "Page 3 serialized into neural prompt." {
		t.Fatalf("unexpected log line %q", progress.logs[2])
	}
	if last := progress.advances[len(progress.advances)-1]; last != [2]int{10, 10} {
		t.Fatalf("unexpected final advance %v", last)
	}

	units, err := store.ListUnits(context.Background(), job.ID, 0)
	if err != nil {
		t.Fatalf("ListUnits: %v", err)
	}
	if units[9].Status != jobs.UnitProcessing || units[9].Summary != "after page10" {
		t.Fatalf("unit 10 not persisted: %+v", units[9])
	}
	if units[10].Prompt != "" || units[10].Status != jobs.UnitPending {
		t.Fatalf("unit 11 should be outside the cap: %+v", units[10])
	}
}

func TestExecuteResumesAfterPromptedUnits(t *testing.T) {
	store, job := setup(t, 4)
	ctx := context.Background()
	for ordinal := 1; ordinal <= 2; ordinal++ {
		if err := store.SetUnitPrompt(ctx, job.ID, ordinal, "an existing prompt that is long enough"); err != nil {
			t.Fatalf("SetUnitPrompt: %v", err)
		}
	}
	if err := store.SetUnitSummary(ctx, job.ID, 2, "stored summary two"); err != nil {
		t.Fatalf("SetUnitSummary: %v", err)
	}
	// A prompt at or under the minimum length is regenerated.
	if err := store.SetUnitPrompt(ctx, job.ID, 3, "too short"); err != nil {
		t.Fatalf("SetUnitPrompt: %v", err)
	}

	writer := &stubWriter{}
	handler := prompting.New(prompting.Options{Store: store, Writer: writer})
	if err := handler.Execute(ctx, job, stage.NopProgress{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(writer.composed) != 2 {
		t.Fatalf("expected pages 3 and 4 to be composed, got %+v", writer.composed)
	}
	if writer.composed[0].page != "page3" || writer.composed[0].previous != "stored summary two" {
		t.Fatalf("page 3 should follow the stored summary, got %+v", writer.composed[0])
	}
	// Page 1 had no stored summary; page 2 reused its own.
	if strings.Join(writer.summarized, ",") != "page1,page3,page4" {
		t.Fatalf("unexpected summarize calls %v", writer.summarized)
	}
}

func TestExecuteStopsOnFirstFailure(t *testing.T) {
	store, job := setup(t, 5)
	writer := &stubWriter{failOn: "page3"}
	handler := prompting.New(prompting.Options{Store: store, Writer: writer})

	err := handler.Execute(context.Background(), job, stage.NopProgress{})
	if !errors.Is(err, services.ErrMalformedOutput) {
		t.Fatalf("expected malformed output error, got %v", err)
	}
	units, err := store.ListUnits(context.Background(), job.ID, 0)
	if err != nil {
		t.Fatalf("ListUnits: %v", err)
	}
	if units[1].Prompt == "" {
		t.Fatalf("page 2 prompt should be persisted before the failure")
	}
	if units[2].Status != jobs.UnitFailed || units[2].ErrorMessage == "" {
		t.Fatalf("page 3 should be marked failed: %+v", units[2])
	}
	if units[3].Prompt != "" {
		t.Fatalf("page 4 should not be attempted")
	}
}

func TestExecuteRejectsShortPrompt(t *testing.T) {
	store, job := setup(t, 3)
	writer := &stubWriter{shortOn: "page2"}
	handler := prompting.New(prompting.Options{Store: store, Writer: writer, Logger: logging.NewNop()})

	err := handler.Execute(context.Background(), job, stage.NopProgress{})
	if !errors.Is(err, services.ErrMalformedOutput) {
		t.Fatalf("expected malformed output error, got %v", err)
	}
	units, err := store.ListUnits(context.Background(), job.ID, 0)
	if err != nil {
		t.Fatalf("ListUnits: %v", err)
	}
	if units[1].Prompt != "" || units[1].ErrorMessage == "" {
		t.Fatalf("short prompt should be rejected and recorded: %+v", units[1])
	}
	if units[2].Prompt != "" {
		t.Fatalf("page 3 should not be attempted")
	}
}

func TestComposeCallsArePaced(t *testing.T) {
	store, job := setup(t, 3)
	var waits []time.Duration
	clock := time.Unix(0, 0)
	limiter := ratelimit.New("text", 2*time.Second,
		ratelimit.WithClock(func() time.Time { return clock }),
		ratelimit.WithSleep(func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			clock = clock.Add(d)
			return nil
		}),
	)
	handler := prompting.New(prompting.Options{
		Store:   store,
		Writer:  &stubWriter{},
		Compose: stage.Capability{Name: "text", Limiter: limiter},
	})
	if err := handler.Execute(context.Background(), job, stage.NopProgress{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(waits) != 2 || waits[0] != 2*time.Second {
		t.Fatalf("expected two 2s waits between three prompts, got %v", waits)
	}
}

func TestPrepareRequiresStyleGuide(t *testing.T) {
	handler := prompting.New(prompting.Options{})
	err := handler.Prepare(context.Background(), &jobs.Job{ID: "j"})
	if !errors.Is(err, services.ErrConsistency) {
		t.Fatalf("expected consistency error, got %v", err)
	}
}
