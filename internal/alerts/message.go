package alerts

import (
	"context"
	"time"
)

// Message is one matched line on its way to the destinations.
type Message struct {
	Text       string    `json:"text"`
	ObservedAt time.Time `json:"observed_at"`
}

// NewMessage stamps text with the current time.
func NewMessage(text string) Message {
	return Message{Text: text, ObservedAt: time.Now().UTC()}
}

// Destination is one place alerts are sent to.
type Destination interface {
	// Name identifies the destination in logs and metrics.
	Name() string

	// Deliver sends msg once. ctx carries the delivery deadline.
	Deliver(ctx context.Context, msg Message) error
}
