package daemonctl_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"bookture/internal/api"
	"bookture/internal/daemonctl"
	"bookture/internal/jobs"
	"bookture/internal/testsupport"
)

func offlineClient(t *testing.T) *api.Client {
	t.Helper()
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()
	return api.NewClient(server.URL, "")
}

func TestStatusSnapshotOfflineReadsDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	if _, err := store.CreateJob(ctx, jobs.NewJob{OwnerID: "local", Title: "Emma", SourcePath: "/tmp/emma.txt"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	snapshot, err := daemonctl.BuildStatusSnapshot(ctx, offlineClient(t), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if !snapshot.Offline || snapshot.Daemon.Running {
		t.Fatalf("expected offline snapshot, got %+v", snapshot.Daemon)
	}
	if snapshot.Daemon.Database.TotalJobs != 1 || snapshot.Daemon.Workflow.StageCounts[string(jobs.StageUploaded)] != 1 {
		t.Fatalf("offline counts not loaded: %+v", snapshot.Daemon)
	}
	if got := daemonctl.Summary(snapshot.Checks); got != daemonctl.SeverityWarn {
		t.Fatalf("summary = %s", got)
	}
}

func TestStatusSnapshotWithoutDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	snapshot, err := daemonctl.BuildStatusSnapshot(context.Background(), offlineClient(t), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snapshot.Daemon.Database.Error == "" {
		t.Fatal("expected missing database to be reported")
	}
}

func TestSystemChecksFlagMissingCredentials(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIKey(""))
	checks := daemonctl.BuildSystemChecks(cfg, api.DaemonStatus{Running: true, Bind: "127.0.0.1:7390", Database: api.DatabaseHealth{IntegrityCheck: true}})
	var found bool
	for _, check := range checks {
		if check.Name == "Model credentials" {
			found = true
			if check.Severity != daemonctl.SeverityError {
				t.Fatalf("credentials severity = %s", check.Severity)
			}
		}
	}
	if !found || daemonctl.Summary(checks) != daemonctl.SeverityError {
		t.Fatalf("unexpected checks %+v", checks)
	}
}
