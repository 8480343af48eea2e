package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"bookture/internal/api"
	"bookture/internal/config"
	"bookture/internal/jobs"
	"bookture/internal/progress"
	"bookture/internal/testsupport"
)

func TestClientSubmitSendsMultipart(t *testing.T) {
	var gotTitle, gotName, gotBody, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/jobs" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotTitle = r.FormValue("title")
		file, header, err := r.FormFile("document")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		gotName = header.Filename
		gotBody = string(data)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(api.IntakeResponse{Outcome: "new", Job: api.Job{ID: "job-1"}})
	}))
	defer srv.Close()

	path := testsupport.WriteFile(t, filepath.Join(t.TempDir(), "book.txt"), "call me ishmael")
	client := api.NewClient(srv.URL, "secret")
	resp, err := client.Submit(context.Background(), path, "Moby Dick")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Outcome != "new" || resp.Job.ID != "job-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if gotTitle != "Moby Dick" || gotName != "book.txt" || gotBody != "call me ishmael" {
		t.Fatalf("server saw title=%q name=%q body=%q", gotTitle, gotName, gotBody)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization = %q", gotAuth)
	}
}

func TestClientDecodesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "job not found"})
	}))
	defer srv.Close()

	_, err := api.NewClient(srv.URL, "").Job(context.Background(), "missing")
	if !api.IsStatus(err, http.StatusNotFound) {
		t.Fatalf("expected 404 status error, got %v", err)
	}
	if err.Error() != "daemon returned 404: job not found" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestClientFollowReadsEvents(t *testing.T) {
	events := []progress.Event{
		{JobID: "job-1", Type: progress.EventUpdate, Stage: jobs.StageGeneratingImages, Progress: 95},
		{JobID: "job-1", Type: progress.EventLog, Stage: jobs.StageGeneratingImages, Progress: 95, Message: "Page 3 illustrated."},
		{JobID: "job-1", Type: progress.EventUpdate, Stage: jobs.StageCompleted, Progress: 100},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": ping socket\n\n")
		for _, evt := range events {
			data, _ := json.Marshal(evt)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
		}
	}))
	defer srv.Close()

	var got []progress.Event
	err := api.NewClient(srv.URL, "").Follow(context.Background(), "job-1", func(evt progress.Event) bool {
		got = append(got, evt)
		return !evt.Terminal()
	})
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if len(got) != 3 || got[1].Message != "Page 3 illustrated." || got[2].Progress != 100 {
		t.Fatalf("unexpected events %+v", got)
	}
}

func TestTokenFor(t *testing.T) {
	cfg := config.Default()
	if api.TokenFor(&cfg, "alice") != "" {
		t.Fatal("no tokens configured should yield no token")
	}
	cfg.API.Tokens = map[string]string{"tok-b": "bob", "tok-a": "alice"}
	if got := api.TokenFor(&cfg, "bob"); got != "tok-b" {
		t.Fatalf("bob token = %q", got)
	}
	if got := api.TokenFor(&cfg, ""); got != "tok-a" {
		t.Fatalf("default token = %q", got)
	}
	if got := api.TokenFor(&cfg, "carol"); got != "" {
		t.Fatalf("unknown owner token = %q", got)
	}
}
