package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrStatus is wrapped by delivery errors caused by a non-2xx response.
var ErrStatus = errors.New("unexpected response status")

// WebhookDestination posts {"text": "<line>"} as JSON to a URL.
type WebhookDestination struct {
	URL    string
	client *http.Client
}

// NewWebhook returns a webhook destination. A nil client means http.DefaultClient.
func NewWebhook(url string, client *http.Client) *WebhookDestination {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookDestination{URL: url, client: client}
}

func (w *WebhookDestination) Name() string { return "webhook" }

func (w *WebhookDestination) Deliver(ctx context.Context, msg Message) error {
	body, err := json.Marshal(map[string]string{"text": msg.Text})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return checkStatus(resp)
}

// checkStatus turns any non-2xx response into an error wrapping ErrStatus.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrStatus, resp.StatusCode)
	}
	return nil
}
