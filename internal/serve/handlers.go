package serve

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/dtnitsch/persona-ingest/models"
	"github.com/dtnitsch/persona-ingest/pkg/assets"
	"github.com/dtnitsch/persona-ingest/pkg/db"
	"github.com/dtnitsch/persona-ingest/pkg/filelock"
	"github.com/dtnitsch/persona-ingest/pkg/ingest"
	"github.com/dtnitsch/persona-ingest/pkg/jobstatus"
	"github.com/dtnitsch/persona-ingest/pkg/owner"
	"github.com/dtnitsch/persona-ingest/pkg/storage"
)

// defaultJobsLimit bounds GET /api/jobs without a limit parameter.
const defaultJobsLimit = 50

type ingestInput struct {
	URL     string `json:"url"`
	OwnerID string `json:"ownerId"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var input ingestInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ack, err := s.ingest.Start(input.URL, input.OwnerID)
	switch {
	case err == nil:
	case errors.Is(err, ingest.ErrInvalidURL), errors.Is(err, owner.ErrInvalidOwner):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, jobstatus.ErrJobInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	default:
		s.logger.Error("failed to start ingest", "url", input.URL, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start ingest")
		return
	}

	writeJSON(w, http.StatusAccepted, ack)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ingest.Status())
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	list, err := s.assets.List(r.URL.Query().Get("ownerId"))
	if err != nil {
		s.registryError(w, "failed to list assets", err)
		return
	}
	if list == nil {
		list = []models.Asset{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	asset, ok, err := s.assets.Get(id)
	if err != nil {
		s.registryError(w, "failed to read asset", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := s.assets.Delete(r.Context(), id)
	if err != nil {
		s.registryError(w, "failed to delete asset", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart form with a file field")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	ownerID, err := owner.Canonical(r.FormValue("ownerId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	asset, err := s.assets.Commit(r.Context(), assets.CommitRequest{
		OwnerID:      ownerID,
		OriginalName: filepath.Base(header.Filename),
		MimeType:     header.Header.Get("Content-Type"),
		Source:       storage.Bytes{Data: data},
		Metadata:     map[string]any{models.MetaSource: models.SourceUpload},
	})
	if err != nil {
		s.registryError(w, "failed to store upload", err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultJobsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	ownerID := ""
	if raw := r.URL.Query().Get("ownerId"); raw != "" {
		var err error
		if ownerID, err = owner.Canonical(raw); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	jobs, err := s.history.ListJobs(ownerID, limit)
	if err != nil {
		s.logger.Error("failed to list jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []db.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, ok, err := s.history.GetJob(id)
	if err != nil {
		s.logger.Error("failed to read job", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read job")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	pages, err := s.history.GetJobPages(id)
	if err != nil {
		s.logger.Error("failed to read job pages", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read job")
		return
	}
	if pages == nil {
		pages = []db.PageRecord{}
	}
	writeJSON(w, http.StatusOK, struct {
		*db.Job
		Pages []db.PageRecord `json:"pages"`
	}{job, pages})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// registryError maps lock contention to 503 and everything else to 500.
func (s *Server) registryError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, filelock.ErrLockTimeout):
		writeError(w, http.StatusServiceUnavailable, "asset registry is busy, retry later")
	case errors.Is(err, owner.ErrInvalidOwner):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
