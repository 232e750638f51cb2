package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/slidedeck/explainer/internal/config"
	"github.com/slidedeck/explainer/internal/extract"
	"github.com/slidedeck/explainer/internal/service"
	"github.com/slidedeck/explainer/internal/ws"
)

var startTime = time.Now()

// multipart parts beyond this are spooled to disk
const maxMemoryBytes = 8 << 20

type Handlers struct {
	cfg      *config.Config
	svc      *service.Service
	wsServer *ws.Server
	log      zerolog.Logger
}

func NewHandlers(cfg *config.Config, svc *service.Service, log zerolog.Logger) *Handlers {
	return &Handlers{cfg: cfg, svc: svc, log: log}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"node_id":        h.cfg.NodeID,
		"version":        "0.1.0",
		"uptime_seconds": int(time.Since(startTime).Seconds()),
	})
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("stats")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stats unavailable"})
		return
	}

	watchers := 0
	if h.wsServer != nil {
		watchers = h.wsServer.Watchers()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"node_id":        h.cfg.NodeID,
		"uptime_seconds": int(time.Since(startTime).Seconds()),
		"jobs": map[string]int{
			"total":     st.Total,
			"pending":   st.Pending,
			"processed": st.Processed,
		},
		"status_watchers": watchers,
	})
}

func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	if h.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
		if isTooLarge(err) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart body"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file part"})
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No selected file"})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read file"})
		return
	}

	j, err := h.svc.Submit(r.Context(), header.Filename, data)
	switch {
	case errors.Is(err, service.ErrInvalidFilename),
		errors.Is(err, service.ErrEmptyDocument),
		errors.Is(err, extract.ErrUnsupportedDocument):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case err != nil:
		h.log.Error().Err(err).Str("filename", header.Filename).Msg("submit")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store file"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"uid": j.ID})
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	jobs, total, err := h.svc.Jobs(r.Context(), limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("list jobs")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "jobs unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   jobs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	resp, err := h.svc.Status(r.Context(), uid)
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "UID not found"})
		return
	case err != nil:
		h.log.Error().Err(err).Str("uid", uid).Msg("status")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "status unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) Result(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	record, err := h.svc.Result(r.Context(), uid)
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "UID not found"})
		return
	case errors.Is(err, service.ErrNotProcessed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case err != nil:
		h.log.Error().Err(err).Str("uid", uid).Msg("result")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "result unavailable"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(record)
}

// isTooLarge reports whether err came from the upload size limit. The
// multipart reader does not always wrap the underlying error.
func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
