package alerts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChat(t *testing.T, h http.HandlerFunc) *ChatDestination {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := NewChat("xoxb-test", "C0123", srv.Client())
	c.endpoint = srv.URL
	return c
}

func TestChat_Deliver(t *testing.T) {
	var auth, contentType, channel, text string
	c := newTestChat(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		channel = r.PostForm.Get("channel")
		text = r.PostForm.Get("text")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true, "ts": "1700000000.000100"}`)) //nolint:errcheck
	})

	err := c.Deliver(context.Background(), NewMessage("CRITICAL oom"))
	require.NoError(t, err)

	assert.Equal(t, "Bearer xoxb-test", auth)
	assert.Equal(t, "application/x-www-form-urlencoded", contentType)
	assert.Equal(t, "C0123", channel)
	assert.Equal(t, "CRITICAL oom", text)
	assert.Equal(t, "slack", c.Name())
}

func TestChat_APIError(t *testing.T) {
	c := newTestChat(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok": false, "error": "channel_not_found"}`)) //nolint:errcheck
	})

	err := c.Deliver(context.Background(), NewMessage("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestChat_HTTPError(t *testing.T) {
	c := newTestChat(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := c.Deliver(context.Background(), NewMessage("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStatus)
}

func TestChat_NonJSONBody(t *testing.T) {
	c := newTestChat(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok")) //nolint:errcheck
	})

	assert.NoError(t, c.Deliver(context.Background(), NewMessage("x")))
}
