package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// SlackPostMessageURL is Slack's chat.postMessage endpoint.
const SlackPostMessageURL = "https://slack.com/api/chat.postMessage"

// maxSlackResponse caps how much of a Slack response body is inspected.
const maxSlackResponse = 64 << 10

// ChatDestination posts alerts to a Slack channel with a bot token.
type ChatDestination struct {
	Token   string
	Channel string

	endpoint string
	client   *http.Client
}

// NewChat returns a Slack destination. A nil client means http.DefaultClient.
func NewChat(token, channel string, client *http.Client) *ChatDestination {
	if client == nil {
		client = http.DefaultClient
	}
	return &ChatDestination{
		Token:    token,
		Channel:  channel,
		endpoint: SlackPostMessageURL,
		client:   client,
	}
}

func (c *ChatDestination) Name() string { return "slack" }

// Deliver posts a form-encoded chat.postMessage request. Slack reports most
// failures with HTTP 200 and {"ok": false}, so the body is checked as well as
// the status.
func (c *ChatDestination) Deliver(ctx context.Context, msg Message) error {
	form := url.Values{}
	form.Set("channel", c.Channel)
	form.Set("text", msg.Text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSlackResponse))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, &result); err != nil {
		// Not a Slack API body; the 2xx status is all there is to go on.
		return nil
	}
	if !result.OK {
		return fmt.Errorf("slack api error: %s", result.Error)
	}
	return nil
}
