// Package api serves the harness over a local HTTP API so scripts and other
// front ends can drive the same submission pipeline as the CLI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/oicur0t/forwardog/internal/backend"
	"github.com/oicur0t/forwardog/internal/history"
	"github.com/oicur0t/forwardog/internal/prefs"
	"github.com/oicur0t/forwardog/internal/present"
	"github.com/oicur0t/forwardog/internal/presets"
	"github.com/oicur0t/forwardog/internal/storage"
	"github.com/oicur0t/forwardog/pkg/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxStateBytes = 5 << 20

// Submitter runs one submission
type Submitter interface {
	Submit(ctx context.Context, kind models.Kind, state models.EditableState) models.SubmissionResult
	InFlight(kind models.Kind) bool
}

// Backend is the part of the backend client the API proxies
type Backend interface {
	presets.Getter
	ValidateKey(ctx context.Context) (backend.KeyStatus, error)
	AgentFileRecent(ctx context.Context, n int) (backend.RecentLines, error)
	ClearAgentFile(ctx context.Context) (models.SubmissionResult, error)
	Settings(ctx context.Context) (backend.Settings, error)
}

// Handler handles local API requests
type Handler struct {
	submitter Submitter
	history   *history.Store
	recorder  *present.Recorder
	kv        storage.KV
	backend   Backend
	theme     prefs.Theme
	logger    *zap.Logger
	now       func() time.Time
}

// NewHandler creates a new API handler. fallbackTheme is served when no
// theme has been stored yet.
func NewHandler(submitter Submitter, hist *history.Store, recorder *present.Recorder, kv storage.KV, be Backend, fallbackTheme prefs.Theme, logger *zap.Logger) *Handler {
	recorder.UpdateHistoryView(hist.Entries())
	return &Handler{
		submitter: submitter,
		history:   hist,
		recorder:  recorder,
		kv:        kv,
		backend:   be,
		theme:     fallbackTheme,
		logger:    logger,
		now:       time.Now,
	}
}

// Router registers every route on a gorilla/mux router
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/submit/{kind}", h.Submit).Methods(http.MethodPost)

	// export must be registered before {id}
	r.HandleFunc("/v1/history/export", h.ExportHistory).Methods(http.MethodGet)
	r.HandleFunc("/v1/history", h.ListHistory).Methods(http.MethodGet)
	r.HandleFunc("/v1/history", h.ClearHistory).Methods(http.MethodDelete)
	r.HandleFunc("/v1/history/{id}", h.GetHistory).Methods(http.MethodGet)
	r.HandleFunc("/v1/history/{id}/replay", h.ReplayHistory).Methods(http.MethodGet)

	r.HandleFunc("/v1/feed", h.Feed).Methods(http.MethodGet)
	r.HandleFunc("/v1/theme", h.GetTheme).Methods(http.MethodGet)
	r.HandleFunc("/v1/theme", h.PutTheme).Methods(http.MethodPut)
	r.HandleFunc("/v1/presets/{kind}", h.Presets).Methods(http.MethodGet)
	r.HandleFunc("/v1/validate-key", h.ValidateKey).Methods(http.MethodGet)
	r.HandleFunc("/v1/agent-file/recent", h.AgentFileRecent).Methods(http.MethodGet)
	r.HandleFunc("/v1/agent-file/clear", h.ClearAgentFile).Methods(http.MethodPost)
	r.HandleFunc("/v1/backend-config", h.BackendConfig).Methods(http.MethodGet)
	r.HandleFunc("/v1/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// Submit decodes the editable state for {kind} and runs it through the
// dispatcher. Failed submissions are still 200: the outcome is in the body.
// A second submission of a kind that is still running gets 409.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	kind, err := models.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if h.submitter.InFlight(kind) {
		h.writeError(w, http.StatusConflict, "A "+kind.String()+" submission is already in progress")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxStateBytes))
	if err != nil {
		h.logger.Error("Failed to read request body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	state, err := models.DecodeState(kind, body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.submitter.Submit(r.Context(), kind, state)
	h.writeJSON(w, http.StatusOK, result)
}

// ListHistory returns entries newest first, optionally filtered by kind
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	var kind models.Kind
	if k := r.URL.Query().Get("kind"); k != "" {
		parsed, err := models.ParseKind(k)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		kind = parsed
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	var entries []models.HistoryEntry
	if kind != "" {
		entries = h.history.ByKind(kind, limit)
	} else {
		entries = h.history.Entries()
		if limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// GetHistory returns one entry
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.history.FindByID(mux.Vars(r)["id"])
	if !ok {
		h.writeError(w, http.StatusNotFound, "history entry not found")
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

// ReplayHistory returns the editable state reconstructed from an entry
func (h *Handler) ReplayHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	entry, ok := h.history.FindByID(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "history entry not found")
		return
	}

	state, err := h.history.Replay(id)
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"kind":  entry.Kind,
		"state": state,
	})
}

// ClearHistory empties the log. It requires ?confirm=true.
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm")); !confirm {
		h.writeError(w, http.StatusBadRequest, "Clearing history requires confirm=true")
		return
	}
	// Persist failures are logged by the store; the in-memory log is empty either way
	_ = h.history.Clear(r.Context())
	h.recorder.UpdateHistoryView(nil)
	w.WriteHeader(http.StatusNoContent)
}

// ExportHistory downloads the log as json, yaml or msgpack
func (h *Handler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = history.FormatJSON
	}

	data, err := h.history.Export(format)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	contentType := map[string]string{
		history.FormatJSON:    "application/json",
		history.FormatYAML:    "application/yaml",
		history.FormatMsgpack: "application/msgpack",
	}[format]
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="forwardog-history.`+format+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Feed returns the most recent outcomes and the kinds currently in flight
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"items":         h.recorder.Feed(),
		"busy":          h.recorder.Busy(),
		"history_count": h.recorder.HistoryCount(),
	})
}

// GetTheme returns the stored theme
func (h *Handler) GetTheme(w http.ResponseWriter, r *http.Request) {
	theme := prefs.LoadTheme(r.Context(), h.kv, h.theme, h.logger)
	h.writeJSON(w, http.StatusOK, map[string]string{"theme": string(theme)})
}

// PutTheme stores a new theme
func (h *Handler) PutTheme(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Theme string `json:"theme"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	theme, err := prefs.ParseTheme(req.Theme)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := prefs.SaveTheme(r.Context(), h.kv, theme); err != nil {
		h.logger.Error("Failed to save theme", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Failed to save theme")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"theme": string(theme)})
}

// Presets proxies the backend preset listing for {kind}
func (h *Handler) Presets(w http.ResponseWriter, r *http.Request) {
	kind, err := models.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	list, err := presets.Fetch(r.Context(), h.backend, kind, h.now())
	if err != nil {
		h.logger.Warn("Failed to fetch presets", zap.String("kind", kind.String()), zap.Error(err))
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if list == nil {
		list = []presets.Preset{}
	}
	h.writeJSON(w, http.StatusOK, list)
}

// ValidateKey proxies the backend key check
func (h *Handler) ValidateKey(w http.ResponseWriter, r *http.Request) {
	status, err := h.backend.ValidateKey(r.Context())
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// AgentFileRecent proxies the tail of the backend's agent log file.
// ?n= bounds the line count.
func (h *Handler) AgentFileRecent(w http.ResponseWriter, r *http.Request) {
	n := 0
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "n must be a non-negative integer")
			return
		}
		n = parsed
	}

	recent, err := h.backend.AgentFileRecent(r.Context(), n)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if recent.Lines == nil {
		recent.Lines = []string{}
	}
	h.writeJSON(w, http.StatusOK, recent)
}

// ClearAgentFile asks the backend to truncate its agent log file. Like
// Submit, a backend refusal is still 200 with success=false.
func (h *Handler) ClearAgentFile(w http.ResponseWriter, r *http.Request) {
	result, err := h.backend.ClearAgentFile(r.Context())
	if err != nil {
		h.logger.Warn("Failed to clear agent file", zap.Error(err))
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// BackendConfig proxies the backend's configuration summary
func (h *Handler) BackendConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := h.backend.Settings(r.Context())
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

// Health handles health check requests
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		h.logger.Debug("Failed to write response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
