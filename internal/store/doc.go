// Package store keeps the recently dispatched alerts in memory for the status
// server. It is a bounded, TTL-evicted history: the oldest entries are dropped
// once the size limit is reached, and a background goroutine (Run) evicts
// entries older than the TTL.
//
// The WebSocket hub records into it as it broadcasts, so the history and the
// live stream never disagree about what was sent.
package store
