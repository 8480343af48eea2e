package workflow_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"bookture/internal/config"
	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/notifications"
	"bookture/internal/progress"
	"bookture/internal/services"
	"bookture/internal/stage"
	"bookture/internal/testsupport"
	"bookture/internal/workflow"
)

type stubStage struct {
	name       string
	units      int
	executeErr error
	block      chan struct{}

	mu    sync.Mutex
	calls int
}

func newStubStage(name string, units int) *stubStage {
	return &stubStage{name: name, units: units}
}

func (s *stubStage) Prepare(context.Context, *jobs.Job) error { return nil }

func (s *stubStage) Execute(ctx context.Context, _ *jobs.Job, p stage.Progress) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for i := 1; i <= s.units; i++ {
		if err := p.Advance(ctx, i, s.units); err != nil {
			return err
		}
	}
	p.Log(ctx, s.name+" done")
	return s.executeErr
}

func (s *stubStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(s.name)
}

func (s *stubStage) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   notifications.Payload
}

func (n *stubNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	n.last = payload
	return nil
}

type harness struct {
	cfg      *config.Config
	store    *jobs.Store
	hub      *progress.Hub
	notifier *stubNotifier
	manager  *workflow.Manager
	stages   map[string]*stubStage
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := progress.NewHub(512, nil)
	t.Cleanup(func() { hub.Close() })
	notifier := &stubNotifier{}
	manager := workflow.NewManager(workflow.Options{
		Store:    store,
		Sink:     progress.NewSink(store, hub, nil, nil),
		Notifier: notifier,
		JobLogs:  workflow.NewJobLogs(cfg),
		Logger:   logging.NewNop(),
	})
	stages := map[string]*stubStage{
		"shredding":    newStubStage("shredding", 1),
		"analysis":     newStubStage("analysis", 2),
		"cover":        newStubStage("cover", 1),
		"prompting":    newStubStage("prompting", 4),
		"illustration": newStubStage("illustration", 4),
	}
	manager.ConfigureStages(workflow.StageSet{
		Shredder:    stages["shredding"],
		Analyzer:    stages["analysis"],
		Cover:       stages["cover"],
		Prompter:    stages["prompting"],
		Illustrator: stages["illustration"],
	})
	t.Cleanup(manager.Stop)
	return &harness{cfg: cfg, store: store, hub: hub, notifier: notifier, manager: manager, stages: stages}
}

func (h *harness) createJob(t *testing.T) *jobs.Job {
	t.Helper()
	job, err := h.store.CreateJob(context.Background(), jobs.NewJob{OwnerID: "alice", Title: "The Hobbit", SourcePath: "/tmp/hobbit.txt"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func drain(sub *progress.Subscription) []progress.Event {
	var events []progress.Event
	for {
		select {
		case evt := <-sub.Events():
			events = append(events, evt)
		default:
			return events
		}
	}
}

func TestRunCompletesWithMonotonicProgress(t *testing.T) {
	h := newHarness(t)
	job := h.createJob(t)
	sub, err := h.hub.Subscribe(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := h.manager.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stored, err := h.store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.Stage != jobs.StageCompleted || stored.Progress != 100 {
		t.Fatalf("expected completed at 100, got %s at %d", stored.Stage, stored.Progress)
	}

	last := -1
	seen := map[jobs.Stage]bool{}
	var logs []string
	for _, evt := range drain(sub) {
		if evt.Progress < last {
			t.Fatalf("progress went backward: %d after %d", evt.Progress, last)
		}
		last = evt.Progress
		seen[evt.Stage] = true
		if evt.Type == progress.EventLog {
			logs = append(logs, evt.Message)
		}
	}
	for _, s := range []jobs.Stage{jobs.StageShredding, jobs.StageAnalyzing, jobs.StageGeneratingCover, jobs.StageGeneratingPrompts, jobs.StageGeneratingImages, jobs.StageCompleted} {
		if !seen[s] {
			t.Fatalf("no event for stage %s", s)
		}
	}
	if logs[len(logs)-1] != "Book completed." {
		t.Fatalf("unexpected final log %q", logs[len(logs)-1])
	}
	if len(h.notifier.events) != 1 || h.notifier.events[0] != notifications.EventPipelineCompleted {
		t.Fatalf("expected completion notification, got %v", h.notifier.events)
	}
}

func TestProgressStaysBelowExitUntilStageCompletes(t *testing.T) {
	h := newHarness(t)
	job := h.createJob(t)
	sub, err := h.hub.Subscribe(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := h.manager.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var prompts []int
	for _, evt := range drain(sub) {
		if evt.Stage == jobs.StageGeneratingPrompts && evt.Type == progress.EventUpdate {
			prompts = append(prompts, evt.Progress)
		}
	}
	// Entry, four unit advances, exit.
	want := []int{80, 82, 85, 87, 89, 90}
	if len(prompts) != len(want) {
		t.Fatalf("prompt stage progress = %v, want %v", prompts, want)
	}
	for i := range want {
		if prompts[i] != want[i] {
			t.Fatalf("prompt stage progress = %v, want %v", prompts, want)
		}
	}
}

func TestRunResumesAtFirstUnfinishedStage(t *testing.T) {
	h := newHarness(t)
	job := h.createJob(t)
	ctx := context.Background()
	if err := h.store.InsertUnits(ctx, job.ID, []string{"one", "two"}); err != nil {
		t.Fatalf("InsertUnits: %v", err)
	}
	if _, err := h.store.RecordProgress(ctx, job.ID, jobs.StageGeneratingCover, 60); err != nil {
		t.Fatalf("RecordProgress: %v", err)
	}
	if _, err := h.store.MarkError(ctx, job.ID, "boom"); err != nil {
		t.Fatalf("MarkError: %v", err)
	}
	if _, err := h.store.MarkResuming(ctx, job.ID); err != nil {
		t.Fatalf("MarkResuming: %v", err)
	}

	if err := h.manager.Run(ctx, job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.stages["shredding"].Calls() != 0 || h.stages["analysis"].Calls() != 0 {
		t.Fatalf("finished stages re-ran: shredding=%d analysis=%d", h.stages["shredding"].Calls(), h.stages["analysis"].Calls())
	}
	for _, name := range []string{"cover", "prompting", "illustration"} {
		if h.stages[name].Calls() != 1 {
			t.Fatalf("stage %s ran %d times", name, h.stages[name].Calls())
		}
	}
}

func TestRunFailureKeepsProgressAndRefusesRerun(t *testing.T) {
	h := newHarness(t)
	h.stages["prompting"].executeErr = services.Wrap(services.ErrMalformedOutput, "generating_prompts", "compose", "empty prompt", nil)
	job := h.createJob(t)

	err := h.manager.Run(context.Background(), job.ID)
	if !errors.Is(err, services.ErrMalformedOutput) {
		t.Fatalf("expected malformed output error, got %v", err)
	}
	stored, err := h.store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.Stage != jobs.StageError {
		t.Fatalf("expected error stage, got %s", stored.Stage)
	}
	if stored.Progress != 89 {
		t.Fatalf("expected progress 89 retained, got %d", stored.Progress)
	}
	if !strings.Contains(stored.ErrorMessage, "empty prompt") {
		t.Fatalf("unexpected error message %q", stored.ErrorMessage)
	}
	if h.stages["illustration"].Calls() != 0 {
		t.Fatalf("later stage ran after failure")
	}
	if h.notifier.events[len(h.notifier.events)-1] != notifications.EventPipelineFailed {
		t.Fatalf("expected failure notification, got %v", h.notifier.events)
	}
	if h.notifier.last["stage"] != string(jobs.StageGeneratingPrompts) {
		t.Fatalf("failure payload stage = %v", h.notifier.last["stage"])
	}

	if err := h.manager.Run(context.Background(), job.ID); !errors.Is(err, workflow.ErrJobFailed) {
		t.Fatalf("expected ErrJobFailed, got %v", err)
	}
}

func TestRunIsNoopForCompletedJob(t *testing.T) {
	h := newHarness(t)
	job := h.createJob(t)
	if err := h.manager.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := h.manager.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if h.stages["shredding"].Calls() != 1 {
		t.Fatalf("completed job re-ran")
	}
}

func TestRunMissingJob(t *testing.T) {
	h := newHarness(t)
	if err := h.manager.Run(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLaunchAllowsOneRunnerPerJob(t *testing.T) {
	h := newHarness(t)
	h.stages["shredding"].block = make(chan struct{})
	job := h.createJob(t)

	if err := h.manager.Launch(job.ID); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if !h.manager.Running(job.ID) {
		t.Fatalf("expected runner registered")
	}
	if err := h.manager.Launch(job.ID); !errors.Is(err, workflow.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if got := h.manager.ActiveJobs(); len(got) != 1 || got[0] != job.ID {
		t.Fatalf("unexpected active jobs %v", got)
	}

	close(h.stages["shredding"].block)
	h.manager.Wait()
	if h.manager.Running(job.ID) {
		t.Fatalf("runner should be released")
	}
	stored, err := h.store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.Stage != jobs.StageCompleted {
		t.Fatalf("expected completed, got %s", stored.Stage)
	}
}

func TestStopInterruptsWithoutMarkingError(t *testing.T) {
	h := newHarness(t)
	h.stages["analysis"].block = make(chan struct{})
	job := h.createJob(t)
	if err := h.manager.Launch(job.ID); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for h.stages["analysis"].Calls() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("analysis never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.manager.Stop()
	stored, err := h.store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.Stage != jobs.StageAnalyzing {
		t.Fatalf("interrupted job should stay in its stage, got %s", stored.Stage)
	}
	if err := h.manager.Launch(job.ID); !errors.Is(err, workflow.ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestJobLogWritten(t *testing.T) {
	h := newHarness(t)
	job := h.createJob(t)
	logs := workflow.NewJobLogs(h.cfg)
	if !strings.HasSuffix(logs.Path(&jobs.Job{ID: "abc", Title: "The Hobbit: Part 1"}), "the-hobbit-part-1-abc.log") {
		t.Fatalf("unexpected job log path")
	}

	if err := h.manager.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(logs.Path(job))
	if err != nil {
		t.Fatalf("read job log: %v", err)
	}
	for _, want := range []string{"pipeline_start", "stage_start", "pipeline_complete"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("job log missing %s", want)
		}
	}
}

func TestBandInterpolate(t *testing.T) {
	band := workflow.Bands[jobs.StageGeneratingImages]
	cases := []struct {
		done, total, want int
	}{
		{0, 10, 92},
		{1, 10, 92},
		{5, 10, 95},
		{10, 10, 98},
		{12, 10, 98},
		{3, 0, 92},
	}
	for _, tc := range cases {
		if got := band.Interpolate(tc.done, tc.total); got != tc.want {
			t.Fatalf("Interpolate(%d, %d) = %d, want %d", tc.done, tc.total, got, tc.want)
		}
	}
}
