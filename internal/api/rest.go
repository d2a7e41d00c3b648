// Package api serves the edge device's status and job endpoints.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/devghori1264/aerophoenix/edgefleet/internal/models"
	"github.com/devghori1264/aerophoenix/edgefleet/internal/storage"
)

// Fleet is the read side of the machine registry.
type Fleet interface {
	List() []models.Machine
	Get(id string) (models.Machine, bool)
}

type Handler struct {
	fleet Fleet
	store storage.JobStore
	log   *zap.Logger
}

// UpdateRequest sets one field of one job.
type UpdateRequest struct {
	JobID string `json:"job_id"`
	Field string `json:"field"`
	Value any    `json:"value"`
}

func NewHTTPHandler(fleet Fleet, store storage.JobStore, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{fleet: fleet, store: store, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", h.handlePing)
	mux.HandleFunc("GET /machines", h.handleMachines)
	mux.HandleFunc("GET /machine", h.handleMachine)
	mux.HandleFunc("GET /jobs", h.handleJobs)
	mux.HandleFunc("POST /jobs", h.handleInsert)
	mux.HandleFunc("POST /jobs/update", h.handleUpdate)
	return mux
}

func (h *Handler) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"msg": "pong from edge-device"})
}

func (h *Handler) handleMachines(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.fleet.List())
}

func (h *Handler) handleMachine(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "id required")
		return
	}
	m, ok := h.fleet.Get(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "machine not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) handleJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		jobs []models.Job
		err  error
	)
	if field := q.Get("field"); field != "" {
		jobs, err = h.store.Search(r.Context(), field, q.Get("value"))
	} else {
		jobs, err = h.store.GetAll(r.Context())
	}
	if err != nil {
		h.fail(w, "list jobs", err)
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handler) handleInsert(w http.ResponseWriter, r *http.Request) {
	var job models.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	created, err := h.store.Insert(r.Context(), job)
	if err != nil {
		h.fail(w, "insert job", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.JobID == "" || req.Field == "" {
		h.writeError(w, http.StatusBadRequest, "job_id and field required")
		return
	}
	if err := h.store.Update(r.Context(), req.JobID, req.Field, req.Value); err != nil {
		h.fail(w, "update job", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

// fail maps store errors onto HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrDuplicate):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrUnknownField), errors.Is(err, models.ErrFieldValue):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error(op, zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
	h.log.Debug("http error", zap.Int("status", status), zap.String("error", msg))
}
