package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/glimpse-dev/glimpse-go/pkg/snapshot"
)

// Handler serves the registry HTTP API.
type Handler struct {
	store  Store
	apiKey string
	logger *slog.Logger
}

// NewHandler creates a registry handler. An empty apiKey disables
// authentication, which is the default for local development.
func NewHandler(store Store, apiKey string, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		apiKey: apiKey,
		logger: logger.With("component", "registry"),
	}
}

// Router builds the registry route table with logging and auth
// middleware applied.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /sdk/snapshots/active/{service}", h.listActive)
	mux.HandleFunc("POST /sdk/snapshots/auto-register", h.autoRegister)
	mux.HandleFunc("POST /sdk/snapshots/capture", h.capture)
	mux.HandleFunc("GET /sdk/snapshots/recent/{service}", h.listSnapshots)
	mux.HandleFunc("POST /sdk/metrics", h.ingestMetrics)
	mux.HandleFunc("POST /sdk/breakpoints/{id}/enabled", h.setEnabled)
	mux.HandleFunc("GET /healthz", h.health)

	return h.requestLogging(h.requireAPIKey(mux))
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")

	breakpoints, err := h.store.ListActive(r.Context(), service)
	if err != nil {
		h.internalError(w, r.Context(), "failed to list breakpoints", err)
		return
	}
	if breakpoints == nil {
		breakpoints = []Breakpoint{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"breakpoints": breakpoints})
}

func (h *Handler) autoRegister(w http.ResponseWriter, r *http.Request) {
	var req snapshot.AutoRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ServiceName == "" || req.FunctionName == "" {
		writeError(w, http.StatusBadRequest, "service_name and function_name are required")
		return
	}

	bp, created, err := h.store.Upsert(r.Context(), req)
	if err != nil {
		h.internalError(w, r.Context(), "failed to register breakpoint", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.logger.InfoContext(r.Context(), "breakpoint registered",
			"id", bp.ID,
			"service", bp.ServiceName,
			"location", bp.FunctionKey(),
		)
	}

	writeJSON(w, status, bp)
}

func (h *Handler) capture(w http.ResponseWriter, r *http.Request) {
	var snap snapshot.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if snap.BreakpointID == "" {
		writeError(w, http.StatusBadRequest, "breakpoint_id is required")
		return
	}

	captured, err := h.store.RecordCapture(r.Context(), snap)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown breakpoint %s", snap.BreakpointID))
		return
	}
	if err != nil {
		h.internalError(w, r.Context(), "failed to record capture", err)
		return
	}

	h.logger.DebugContext(r.Context(), "snapshot received",
		"id", captured.ID,
		"breakpoint_id", snap.BreakpointID,
		"service", snap.ServiceName,
	)

	writeJSON(w, http.StatusAccepted, map[string]any{"id": captured.ID})
}

func (h *Handler) listSnapshots(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	snapshots, err := h.store.ListSnapshots(r.Context(), service, limit)
	if err != nil {
		h.internalError(w, r.Context(), "failed to list snapshots", err)
		return
	}
	if snapshots == nil {
		snapshots = []CapturedSnapshot{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snapshots})
}

func (h *Handler) ingestMetrics(w http.ResponseWriter, r *http.Request) {
	var payload MetricsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	count, err := h.store.RecordMetrics(r.Context(), payload)
	if err != nil {
		h.internalError(w, r.Context(), "failed to record metrics", err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"accepted_count": count})
}

func (h *Handler) setEnabled(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.store.SetEnabled(r.Context(), id, body.Enabled)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown breakpoint %s", id))
		return
	}
	if err != nil {
		h.internalError(w, r.Context(), "failed to update breakpoint", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": body.Enabled})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

// requireAPIKey rejects requests without the configured X-API-Key. The
// health endpoint stays open for probes.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey != "" && r.URL.Path != "/healthz" {
			if r.Header.Get("X-API-Key") != h.apiKey {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *Handler) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if recorder.status >= http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "request failed", attrs...)
		} else {
			h.logger.DebugContext(r.Context(), "request completed", attrs...)
		}
	})
}

func (h *Handler) internalError(w http.ResponseWriter, ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg, "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
