package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"bookture/internal/api"
	"bookture/internal/jobs"
	"bookture/internal/logging"
	"bookture/internal/services"
)

const defaultKeepAlive = 25 * time.Second

type apiServer struct {
	daemon    *Daemon
	logger    *slog.Logger
	router    chi.Router
	keepAlive time.Duration

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(d *Daemon, logger *slog.Logger) *apiServer {
	s := &apiServer{
		daemon:    d,
		logger:    logging.NewComponentLogger(logger, "api-server"),
		keepAlive: defaultKeepAlive,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.cfg.API.Metrics && d.metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.metrics.Handler())
	}
	if d.artifacts != nil {
		files := http.StripPrefix("/artifacts/", http.FileServer(http.Dir(d.artifacts.Dir())))
		r.Get("/artifacts/*", func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/") {
				http.NotFound(w, r)
				return
			}
			files.ServeHTTP(w, r)
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/status", s.handleStatus)
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleSubmit)
			r.Get("/", s.handleList)
			r.Get("/active", s.handleActive)
			r.Get("/{id}", s.handleJob)
			r.Post("/{id}/resume", s.handleResume)
			r.Put("/{id}/favorite", s.handleFavorite)
			r.Get("/{id}/events", s.handleEvents)
		})
	})
	s.router = r
	return s
}

func (s *apiServer) start(ctx context.Context, bind string) error {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return errors.New("api.bind is empty")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop(ctx context.Context) {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
	}
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Duration("elapsed", time.Since(start)),
			logging.String(logging.FieldCorrelationID, chimiddleware.GetReqID(r.Context())),
		)
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		Bind:         status.Bind,
		LockFilePath: status.LockFilePath,
		LogPath:      status.LogPath,
		Broadcast:    status.Broadcast,
		Database:     api.FromDatabaseHealth(status.Database),
		Workflow:     api.FromStatusSummary(status.Workflow),
	})
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.daemon.store.ListLibrary(r.Context(), callerOf(r))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Items: api.FromLibrary(entries)})
}

func (s *apiServer) handleActive(w http.ResponseWriter, r *http.Request) {
	stages := append(jobs.ActiveStages(), jobs.StageResuming)
	active, err := s.daemon.store.ListJobs(r.Context(), callerOf(r), stages...)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	resp := api.ActiveResponse{}
	if len(active) > 0 {
		job := api.FromJob(active[0])
		resp.Active = true
		resp.Job = &job
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.ownedJob(w, r)
	if !ok {
		return
	}
	units, err := s.daemon.store.ListUnits(r.Context(), job.ID, 0)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobDetailResponse{Job: api.FromJob(job), Units: api.FromUnits(units)})
}

func (s *apiServer) handleResume(w http.ResponseWriter, r *http.Request) {
	decision, err := s.daemon.guard.Resume(r.Context(), callerOf(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeDecision(w, decision)
}

func (s *apiServer) handleFavorite(w http.ResponseWriter, r *http.Request) {
	var req api.FavoriteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid favorite payload")
		return
	}
	if err := s.daemon.store.SetFavorite(r.Context(), callerOf(r), chi.URLParam(r, "id"), req.Favorite); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedJob loads the {id} job and answers 404 unless the caller owns it.
func (s *apiServer) ownedJob(w http.ResponseWriter, r *http.Request) (*jobs.Job, bool) {
	job, err := s.daemon.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return nil, false
	}
	if job == nil || job.OwnerID != callerOf(r) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	return job, true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

// writeFailure maps error markers to status codes.
func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound), errors.Is(err, jobs.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrConsistency):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	s.writeError(w, status, err.Error())
}
