package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/obsidianstack/tailalert/internal/config"
	"github.com/obsidianstack/tailalert/internal/metrics"
	"github.com/obsidianstack/tailalert/internal/queue"
)

// Dispatcher drains the alert queue on a single goroutine and delivers each
// message to every destination in configuration order.
type Dispatcher struct {
	queue   *queue.Queue[Message]
	dests   []Destination
	metrics *metrics.Metrics

	pollInterval    time.Duration
	deliveryTimeout time.Duration
	drain           bool
}

// NewDispatcher creates a Dispatcher reading from q. An empty dests slice is
// valid: messages are dequeued and discarded.
func NewDispatcher(cfg config.AlertsConfig, q *queue.Queue[Message], dests []Destination, m *metrics.Metrics) *Dispatcher {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = config.DefaultDispatchPoll
	}
	timeout := cfg.DeliveryTimeout
	if timeout <= 0 {
		timeout = config.DefaultDeliveryTimeout
	}
	return &Dispatcher{
		queue:           q,
		dests:           dests,
		metrics:         m,
		pollInterval:    poll,
		deliveryTimeout: timeout,
		drain:           cfg.DrainOnShutdown,
	}
}

// Destinations returns the names of the configured destinations, in order.
func (d *Dispatcher) Destinations() []string {
	out := make([]string, 0, len(d.dests))
	for _, dest := range d.dests {
		out = append(out, dest.Name())
	}
	return out
}

// Run delivers queued messages until ctx is cancelled. Messages still queued
// at that point are abandoned unless drain-on-shutdown is configured, in which
// case they are delivered before Run returns.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("alerts: dispatcher started", "destinations", d.Destinations())

	for ctx.Err() == nil {
		msg, ok := d.queue.Pop(ctx, d.pollInterval)
		if !ok {
			continue
		}
		d.Deliver(ctx, msg)
	}

	if d.drain {
		n := 0
		for {
			msg, ok := d.queue.TryPop()
			if !ok {
				break
			}
			d.Deliver(ctx, msg)
			n++
		}
		slog.Info("alerts: drained queue on shutdown", "delivered", n)
	} else if n := d.queue.Len(); n > 0 {
		slog.Warn("alerts: dispatcher stopped with undelivered alerts", "pending", n)
	}
	slog.Info("alerts: dispatcher stopped")
}

// Deliver sends msg to every destination. Each attempt gets its own timeout
// and is not cut short when ctx is cancelled; errors are logged and dropped.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) {
	base := context.WithoutCancel(ctx)
	for _, dest := range d.dests {
		dctx, cancel := context.WithTimeout(base, d.deliveryTimeout)
		err := deliverOne(dctx, dest, msg)
		cancel()

		if err != nil {
			slog.Warn("alerts: delivery failed",
				"destination", dest.Name(),
				"err", err,
			)
			d.metrics.Failed(dest.Name())
			continue
		}
		slog.Debug("alerts: delivered", "destination", dest.Name())
		d.metrics.Delivered(dest.Name())
	}
}

// deliverOne converts a panicking destination into an ordinary failure so it
// cannot take the dispatcher goroutine down.
func deliverOne(ctx context.Context, dest Destination, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("destination panicked: %v", r)
		}
	}()
	return dest.Deliver(ctx, msg)
}

// BuildDestinations creates the webhook and Slack destinations listed in cfg.
// Entries whose secret resolves to an empty value are skipped with a warning.
func BuildDestinations(cfg config.AlertsConfig, client *http.Client) ([]Destination, error) {
	var out []Destination
	for i, dc := range cfg.Destinations {
		switch dc.Type {
		case "webhook":
			url := dc.URL()
			if url == "" {
				slog.Warn("alerts: webhook url is empty, skipping", "index", i, "url_env", dc.URLEnv)
				continue
			}
			out = append(out, NewWebhook(url, client))
		case "slack":
			token := dc.Token()
			if token == "" || dc.Channel == "" {
				slog.Warn("alerts: slack token or channel is empty, skipping", "index", i, "token_env", dc.TokenEnv)
				continue
			}
			out = append(out, NewChat(token, dc.Channel, client))
		default:
			return nil, fmt.Errorf("alerts: destinations[%d]: unknown type %q", i, dc.Type)
		}
	}
	return out, nil
}
