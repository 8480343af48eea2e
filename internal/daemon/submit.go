package daemon

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"bookture/internal/api"
	"bookture/internal/fileutil"
	"bookture/internal/intake"
	"bookture/internal/logging"
	"bookture/internal/services"
	"bookture/internal/textextract"
)

const maxTitleBytes = 1024

var outcomeMessages = map[intake.Outcome]string{
	intake.OutcomeNew:         "Upload successful. Pipeline started.",
	intake.OutcomeResume:      "Pipeline resumed from its last completed stage.",
	intake.OutcomeAttach:      "Pipeline already active for this book. Connecting to existing stream...",
	intake.OutcomeAlreadyDone: "Book already illustrated.",
}

// handleSubmit streams the uploaded document to the upload directory and
// hands it to the intake guard. The pipeline runs detached.
func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	limit := int64(s.daemon.cfg.API.MaxUploadMB) << 20
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	}
	reader, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "expected multipart form upload")
		return
	}

	var (
		title    string
		path     string
		original string
	)
	cleanup := func() {
		if path != "" {
			_ = os.Remove(path)
		}
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			cleanup()
			s.writeError(w, http.StatusBadRequest, "malformed multipart body")
			return
		}
		switch part.FormName() {
		case "title":
			data, err := io.ReadAll(io.LimitReader(part, maxTitleBytes))
			if err != nil {
				cleanup()
				s.writeError(w, http.StatusBadRequest, "unreadable title field")
				return
			}
			title = strings.TrimSpace(string(data))
		case "document":
			if path != "" {
				cleanup()
				s.writeError(w, http.StatusBadRequest, "only one document per upload")
				return
			}
			original = filepath.Base(part.FileName())
			ext := strings.ToLower(filepath.Ext(original))
			if !textextract.Supported(original) {
				s.writeError(w, http.StatusBadRequest, "unsupported document type "+ext)
				return
			}
			path = filepath.Join(s.daemon.cfg.Paths.UploadDir, uuid.NewString()+ext)
			written, _, err := fileutil.StreamToFile(path, part, limit)
			if err != nil {
				path = ""
				if errors.Is(err, fileutil.ErrTooLarge) {
					s.writeError(w, http.StatusRequestEntityTooLarge, err.Error())
					return
				}
				s.writeError(w, http.StatusBadRequest, "upload failed: "+err.Error())
				return
			}
			if written == 0 {
				cleanup()
				s.writeError(w, http.StatusBadRequest, "uploaded document is empty")
				return
			}
		}
		_ = part.Close()
	}

	if path == "" {
		s.writeError(w, http.StatusBadRequest, "document is required")
		return
	}
	if title == "" {
		title = strings.TrimSuffix(original, filepath.Ext(original))
	}

	ctx := services.WithRequestID(r.Context(), chimiddleware.GetReqID(r.Context()))
	decision, err := s.daemon.guard.Admit(ctx, intake.Request{
		OwnerID:    callerOf(r),
		Title:      title,
		SourcePath: path,
	})
	if err != nil {
		cleanup()
		s.writeFailure(w, r, err)
		return
	}
	if !decision.UploadUsed {
		cleanup()
	}
	logging.WithContext(services.WithJobID(ctx, decision.Job.ID), s.logger).Info("document received",
		logging.String(logging.FieldEventType, "document_received"),
		logging.String("file", original),
		logging.String("outcome", string(decision.Outcome)),
	)
	s.writeDecision(w, decision)
}

func (s *apiServer) writeDecision(w http.ResponseWriter, decision intake.Decision) {
	status := http.StatusOK
	if decision.Outcome.Started() {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, api.IntakeResponse{
		Outcome: string(decision.Outcome),
		Message: outcomeMessages[decision.Outcome],
		Job:     api.FromJob(decision.Job),
	})
}
