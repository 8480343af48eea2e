package progress_test

import (
	"context"
	"errors"
	"testing"

	"bookture/internal/jobs"
	"bookture/internal/progress"
	"bookture/internal/testsupport"
)

type failingBroadcaster struct {
	calls int
}

func (f *failingBroadcaster) Publish(context.Context, progress.Event) error {
	f.calls++
	return errors.New("broker down")
}

func (f *failingBroadcaster) Subscribe(context.Context, string) (*progress.Subscription, error) {
	return nil, errors.New("broker down")
}

func (f *failingBroadcaster) Close() error { return nil }

func newJob(t *testing.T, store *jobs.Store) *jobs.Job {
	t.Helper()
	job, err := store.CreateJob(context.Background(), jobs.NewJob{OwnerID: "reader", Title: "Moby Dick", SourcePath: "/tmp/moby.txt"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func TestSinkPersistsThenPublishes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := progress.NewHub(8, nil)
	sink := progress.NewSink(store, hub, nil, nil)
	job := newJob(t, store)
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, job.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if _, err := sink.Record(ctx, job.ID, jobs.StageShredding, 10); err != nil {
		t.Fatalf("Record: %v", err)
	}
	evt := <-sub.Events()
	if evt.Type != progress.EventUpdate || evt.Stage != jobs.StageShredding || evt.Progress != 10 {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.Timestamp.IsZero() {
		t.Fatal("expected timestamp")
	}

	stored, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stored.Stage != jobs.StageShredding || stored.Progress != 10 {
		t.Fatalf("expected persisted progress, got %s %d", stored.Stage, stored.Progress)
	}
}

func TestSinkFailKeepsProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := progress.NewHub(8, nil)
	sink := progress.NewSink(store, hub, nil, nil)
	job := newJob(t, store)
	ctx := context.Background()

	if _, err := sink.Record(ctx, job.ID, jobs.StageAnalyzing, 45); err != nil {
		t.Fatalf("Record: %v", err)
	}
	sub, err := hub.Subscribe(ctx, job.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	failed, err := sink.Fail(ctx, job.ID, errors.New("quota exhausted"))
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.Stage != jobs.StageError || failed.Progress != 45 {
		t.Fatalf("expected error at 45, got %s %d", failed.Stage, failed.Progress)
	}
	evt := <-sub.Events()
	if evt.Type != progress.EventError || evt.Message != "quota exhausted" || evt.Progress != 45 {
		t.Fatalf("unexpected error event %+v", evt)
	}
}

func TestSinkSwallowsBroadcastFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	broadcaster := &failingBroadcaster{}
	sink := progress.NewSink(store, broadcaster, nil, nil)
	job := newJob(t, store)

	if _, err := sink.Record(context.Background(), job.ID, jobs.StageShredding, 10); err != nil {
		t.Fatalf("expected broadcast failure to be swallowed, got %v", err)
	}
	sink.Log(context.Background(), job.ID, jobs.StageShredding, 10, "hello")
	if broadcaster.calls != 2 {
		t.Fatalf("expected two publish attempts, got %d", broadcaster.calls)
	}
}

func TestSinkWithoutBroadcaster(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sink := progress.NewSink(store, nil, nil, nil)
	job := newJob(t, store)
	if _, err := sink.Record(context.Background(), job.ID, jobs.StageShredding, 10); err != nil {
		t.Fatalf("Record: %v", err)
	}
}

func TestSinkPropagatesPersistenceErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sink := progress.NewSink(store, progress.NewHub(1, nil), nil, nil)
	if _, err := sink.Record(context.Background(), "missing", jobs.StageShredding, 10); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestSnapshotFromJob(t *testing.T) {
	job := &jobs.Job{ID: "x", Stage: jobs.StageError, Progress: 80, ErrorMessage: "boom"}
	evt := progress.Snapshot(job)
	if evt.Type != progress.EventError || evt.Message != "boom" || evt.Progress != 80 {
		t.Fatalf("unexpected snapshot %+v", evt)
	}
}
