package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/obsidianstack/tailalert/internal/alerts"
	"github.com/obsidianstack/tailalert/internal/api"
	"github.com/obsidianstack/tailalert/internal/store"
)

// --- test helpers -----------------------------------------------------------

func newHistory(texts ...string) *store.Store {
	st := store.New(10, time.Hour)
	for _, s := range texts {
		st.Put(alerts.Message{Text: s, ObservedAt: time.Now()})
	}
	return st
}

func fixedStatus() api.Status {
	return api.Status{
		State:        "running",
		Path:         "/var/log/app.log",
		Pattern:      "ERROR|CRITICAL",
		Offset:       42,
		Truncations:  1,
		QueueDepth:   3,
		Destinations: []string{"webhook", "slack"},
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth(t *testing.T) {
	h := api.New(newHistory("ERROR a"), fixedStatus)
	rr := get(t, h, "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "running" {
		t.Errorf("state: got %q, want running", resp.State)
	}
	if resp.Path != "/var/log/app.log" {
		t.Errorf("path: got %q", resp.Path)
	}
	if resp.QueueDepth != 3 {
		t.Errorf("queue_depth: got %d, want 3", resp.QueueDepth)
	}
	if resp.Truncations != 1 {
		t.Errorf("truncations: got %d, want 1", resp.Truncations)
	}
	if resp.Offset != 42 {
		t.Errorf("offset: got %d, want 42", resp.Offset)
	}
	if len(resp.Destinations) != 2 {
		t.Errorf("destinations: got %v", resp.Destinations)
	}
	if resp.AlertCount != 1 {
		t.Errorf("alert_count: got %d, want 1", resp.AlertCount)
	}
}

func TestHealth_NoStatus(t *testing.T) {
	h := api.New(nil, nil)
	var resp api.HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &resp)
	if resp.State != "unknown" {
		t.Errorf("state: got %q, want unknown", resp.State)
	}
	if resp.Destinations == nil {
		t.Error("destinations: want empty list, got null")
	}
}

// --- /api/v1/alerts ---------------------------------------------------------

func TestAlerts_NewestFirst(t *testing.T) {
	h := api.New(newHistory("ERROR one", "CRITICAL two"), nil)
	rr := get(t, h, "/api/v1/alerts")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var out []api.AlertResponse
	decode(t, rr, &out)
	if len(out) != 2 {
		t.Fatalf("alerts: got %d, want 2", len(out))
	}
	if out[0].Text != "CRITICAL two" {
		t.Errorf("alerts[0]: got %q, want CRITICAL two", out[0].Text)
	}
}

func TestAlerts_Limit(t *testing.T) {
	h := api.New(newHistory("a", "b", "c"), nil)
	var out []api.AlertResponse
	decode(t, get(t, h, "/api/v1/alerts?limit=1"), &out)
	if len(out) != 1 || out[0].Text != "c" {
		t.Errorf("alerts?limit=1: got %+v", out)
	}
}

func TestAlerts_BadLimit(t *testing.T) {
	h := api.New(newHistory(), nil)
	if rr := get(t, h, "/api/v1/alerts?limit=abc"); rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestAlerts_EmptyIsArray(t *testing.T) {
	h := api.New(nil, nil)
	rr := get(t, h, "/api/v1/alerts")
	if body := rr.Body.String(); body != "[]\n" {
		t.Errorf("body: got %q, want []", body)
	}
}

// --- method checks ----------------------------------------------------------

func TestMethodNotAllowed(t *testing.T) {
	h := api.New(newHistory(), fixedStatus)
	for _, path := range []string{"/api/v1/health", "/api/v1/alerts"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: got %d, want 405", path, rr.Code)
		}
	}
}
