// Package api provides the HTTP API handlers and routing for the pipeline service.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"pipeliner/internal/apperrors"
	"pipeliner/internal/health"
	"pipeliner/internal/pipeline"
	"pipeliner/internal/run"
	"pipeliner/internal/trigger"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// Handler contains HTTP handlers for the pipeline API
type Handler struct {
	runs     *run.Service
	registry *pipeline.Registry
	push     *trigger.PushHandler
	health   *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(runs *run.Service, registry *pipeline.Registry, push *trigger.PushHandler, healthChecker *health.Checker) *Handler {
	return &Handler{
		runs:     runs,
		registry: registry,
		push:     push,
		health:   healthChecker,
	}
}

// CreateRun handles POST /v1/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	// Limit request body size to prevent memory exhaustion
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req run.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp, err := h.runs.Trigger(r.Context(), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, resp)
}

// ListRuns handles GET /v1/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	resp, err := h.runs.List(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetRun handles GET /v1/runs/{runId}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runId")
	if runID == "" {
		h.writeError(w, http.StatusBadRequest, "Run ID is required")
		return
	}

	snapshot, err := h.runs.Get(r.Context(), runID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, snapshot)
}

// CancelRun handles DELETE /v1/runs/{runId}
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runId")
	if runID == "" {
		h.writeError(w, http.StatusBadRequest, "Run ID is required")
		return
	}

	if err := h.runs.Cancel(r.Context(), runID); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// pipelineListResponse is the body of GET /v1/pipelines.
type pipelineListResponse struct {
	Pipelines []*pipeline.Pipeline `json:"pipelines"`
}

// ListPipelines handles GET /v1/pipelines
func (h *Handler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, pipelineListResponse{Pipelines: h.registry.List()})
}

// GetPipeline handles GET /v1/pipelines/{name}
func (h *Handler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		h.writeError(w, http.StatusBadRequest, "Pipeline name is required")
		return
	}

	p, err := h.registry.Get(name)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, p)
}

// pushResponse is the body of POST /hooks/push.
type pushResponse struct {
	Runs []*run.Response `json:"runs"`
}

// PushHook handles POST /hooks/push - source-repository push notifications.
// The raw body is needed for HMAC verification, so it is read before decoding.
func (h *Handler) PushHook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	responses, err := h.push.Handle(r.Context(), body, r.Header.Get("X-Signature-256"))
	if err != nil {
		if errors.Is(err, trigger.ErrBadSignature) {
			h.writeError(w, http.StatusUnauthorized, "Invalid webhook signature")
			return
		}
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, pushResponse{Runs: responses})
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 if dependencies (executor backends) are unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError handles errors from service layer with appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
