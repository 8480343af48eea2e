package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"bookture/internal/api"
	"bookture/internal/config"
	"bookture/internal/progress"
	"bookture/internal/testsupport"
)

// fakeDaemon serves canned API responses for CLI tests.
type fakeDaemon struct {
	mu        sync.Mutex
	library   []api.LibraryEntry
	details   map[string]api.JobDetailResponse
	intake    api.IntakeResponse
	events    []progress.Event
	uploads   []string
	favorites map[string]bool
}

func newFakeDaemon() *fakeDaemon {
	return &fakeDaemon{details: map[string]api.JobDetailResponse{}, favorites: map[string]bool{}}
}

func (f *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && path == "/api/jobs":
		writeTestJSON(w, http.StatusOK, api.JobListResponse{Items: f.library})
	case r.Method == http.MethodPost && path == "/api/jobs":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, header, err := r.FormFile("document")
		if err != nil {
			writeTestJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "document is required"})
			return
		}
		f.uploads = append(f.uploads, header.Filename+"|"+r.FormValue("title"))
		writeTestJSON(w, http.StatusAccepted, f.intake)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/resume"):
		writeTestJSON(w, http.StatusAccepted, f.intake)
	case r.Method == http.MethodPut && strings.HasSuffix(path, "/favorite"):
		var req api.FavoriteRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.favorites[strings.TrimSuffix(strings.TrimPrefix(path, "/api/jobs/"), "/favorite")] = req.Favorite
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/events"):
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": ping socket\n\n")
		for _, evt := range f.events {
			data, _ := json.Marshal(evt)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
		}
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/jobs/"):
		detail, ok := f.details[strings.TrimPrefix(path, "/api/jobs/")]
		if !ok {
			writeTestJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "job not found"})
			return
		}
		writeTestJSON(w, http.StatusOK, detail)
	default:
		http.NotFound(w, r)
	}
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	daemon     *fakeDaemon
	server     *httptest.Server
}

// setupCLITestEnv writes a config file whose api.bind points at a fake
// daemon and returns the environment.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.EnvLLMAPIKey, "")
	t.Setenv(config.EnvImagingAPIKey, "")

	fake := newFakeDaemon()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = strings.TrimPrefix(server.URL, "http://")
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, daemon: fake, server: server}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (env *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLI(t, append([]string{"--config", env.configPath}, args...)...)
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
