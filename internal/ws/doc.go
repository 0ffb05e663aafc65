// Package ws implements the live alert stream for the tailalert status server.
//
// Hub manages a set of connected WebSocket clients and pushes every dispatched
// alert to all of them. It implements alerts.Destination, so the dispatcher
// delivers to it like any other target.
//
// New(history) creates a Hub. When history is non-nil the hub records every
// alert it delivers into it, and each new client first receives the recent
// alerts held there. Each alert reaches a client exactly once.
// Hub.Run(ctx) blocks until ctx is cancelled, then closes all connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket and streams alerts
// until the client goes away.
//
// Message formats sent to clients:
//
//	{"event": "history", "data": [ /* same schema as GET /api/v1/alerts */ ]}
//	{"event": "alert",   "data": {"text": "...", "observed_at": "..."}}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The endpoint is mounted at /ws/alerts by the server.
package ws
