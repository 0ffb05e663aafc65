// Package alerts carries matched log lines from detection to the outside world.
//
// A Message is created once per matching line and delivered exactly once by
// the Dispatcher, which drains the alert queue on its own goroutine and hands
// each message to every configured Destination in order. Delivery is best
// effort: each destination gets one attempt bounded by the delivery timeout,
// and a failure is logged and dropped without affecting other destinations or
// later messages.
//
// Destinations: WebhookDestination (JSON POST of {"text": ...}) and
// ChatDestination (Slack chat.postMessage). The status server adds its own
// destinations (alert history, WebSocket stream) through the same interface.
package alerts
