package api

import "time"

// Status is the live engine state reported by /api/v1/health. The server
// supplies it through a callback so this package stays independent of the
// engine itself.
type Status struct {
	State        string
	Path         string
	Pattern      string
	Offset       uint64
	Truncations  uint64
	QueueDepth   int
	Destinations []string
}

// HealthResponse is the JSON body for GET /api/v1/health.
type HealthResponse struct {
	State        string   `json:"state"`
	Path         string   `json:"path"`
	Pattern      string   `json:"pattern"`
	Offset       uint64   `json:"offset"`
	Truncations  uint64   `json:"truncations"`
	QueueDepth   int      `json:"queue_depth"`
	Destinations []string `json:"destinations"`
	AlertCount   int      `json:"alert_count"`
}

// AlertResponse is one entry of GET /api/v1/alerts.
type AlertResponse struct {
	Text         string    `json:"text"`
	ObservedAt   time.Time `json:"observed_at"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}
