// Package api implements the HTTP REST API for the tailalert status server.
//
// New(history, status) returns an http.Handler that serves:
//
//	GET /api/v1/health   run state, watched file, pattern, queue depth, destinations
//	GET /api/v1/alerts   recently dispatched alerts, newest first (?limit=N)
//
// All endpoints:
//   - Respond with Content-Type: application/json
//   - Return 405 for non-GET methods
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api
