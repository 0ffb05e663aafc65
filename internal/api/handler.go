package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/obsidianstack/tailalert/internal/store"
)

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	history *store.Store
	status  func() Status
	mux     *http.ServeMux
}

// New creates a Handler reading alerts from history and engine state from
// status, and registers all routes. Either argument may be nil.
func New(history *store.Store, status func() Status) http.Handler {
	h := &Handler{history: history, status: status, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthResponse{State: "unknown", Destinations: []string{}}
	if h.status != nil {
		s := h.status()
		resp.State = s.State
		resp.Path = s.Path
		resp.Pattern = s.Pattern
		resp.Offset = s.Offset
		resp.Truncations = s.Truncations
		resp.QueueDepth = s.QueueDepth
		if s.Destinations != nil {
			resp.Destinations = s.Destinations
		}
	}
	if h.history != nil {
		resp.AlertCount = len(h.history.List())
	}
	jsonResp(w, http.StatusOK, resp)
}

// alerts returns GET /api/v1/alerts, optionally capped by ?limit=N.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := -1
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	out := []AlertResponse{}
	if h.history != nil {
		for _, e := range h.history.List() {
			if limit >= 0 && len(out) >= limit {
				break
			}
			out = append(out, AlertResponse{
				Text:         e.Message.Text,
				ObservedAt:   e.Message.ObservedAt,
				DispatchedAt: e.DispatchedAt,
			})
		}
	}
	jsonResp(w, http.StatusOK, out)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
