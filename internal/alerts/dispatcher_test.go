package alerts

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/tailalert/internal/config"
	"github.com/obsidianstack/tailalert/internal/metrics"
	"github.com/obsidianstack/tailalert/internal/queue"
)

// mockDestination is a testify mock of Destination.
type mockDestination struct {
	mock.Mock
}

func (m *mockDestination) Name() string {
	return m.Called().String(0)
}

func (m *mockDestination) Deliver(ctx context.Context, msg Message) error {
	return m.Called(ctx, msg).Error(0)
}

// recorder is a Destination that keeps every message it receives.
type recorder struct {
	name string
	mu   sync.Mutex
	got  []string
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Deliver(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, msg.Text)
	return nil
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

// blocker never finishes a delivery before its deadline.
type blocker struct{}

func (blocker) Name() string { return "blocker" }

func (blocker) Deliver(ctx context.Context, _ Message) error {
	<-ctx.Done()
	return ctx.Err()
}

type panicker struct{}

func (panicker) Name() string { return "panicker" }

func (panicker) Deliver(context.Context, Message) error { panic("boom") }

func testConfig() config.AlertsConfig {
	return config.AlertsConfig{
		PollInterval:    10 * time.Millisecond,
		DeliveryTimeout: 50 * time.Millisecond,
	}
}

// runDispatcher starts d.Run and returns a function that stops it and waits.
func runDispatcher(t *testing.T, d *Dispatcher) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
	stop := func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("dispatcher did not stop")
		}
	}
	t.Cleanup(stop)
	return stop
}

func TestDispatcher_FailingDestinationIsolated(t *testing.T) {
	failing := &mockDestination{}
	failing.On("Name").Return("failing")
	failing.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	good := &recorder{name: "good"}
	q := queue.New[Message]()
	m := metrics.New()
	d := NewDispatcher(testConfig(), q, []Destination{failing, good}, m)
	runDispatcher(t, d)

	for _, text := range []string{"ERROR one", "ERROR two", "ERROR three"} {
		q.Push(NewMessage(text))
	}

	require.Eventually(t, func() bool { return len(good.texts()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"ERROR one", "ERROR two", "ERROR three"}, good.texts())
	failing.AssertNumberOfCalls(t, "Deliver", 3)

	snap, err := m.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 3.0, snap[metrics.DeliveryFailed])
	assert.Equal(t, 3.0, snap[metrics.Deliveries])
}

func TestDispatcher_TimeoutIsAFailure(t *testing.T) {
	good := &recorder{name: "good"}
	q := queue.New[Message]()
	d := NewDispatcher(testConfig(), q, []Destination{blocker{}, good}, nil)
	runDispatcher(t, d)

	q.Push(NewMessage("ERROR a"))
	q.Push(NewMessage("ERROR b"))

	require.Eventually(t, func() bool { return len(good.texts()) == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestDispatcher_PanicIsAFailure(t *testing.T) {
	good := &recorder{name: "good"}
	q := queue.New[Message]()
	d := NewDispatcher(testConfig(), q, []Destination{panicker{}, good}, nil)
	runDispatcher(t, d)

	q.Push(NewMessage("ERROR a"))
	require.Eventually(t, func() bool { return len(good.texts()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestDispatcher_NoDestinations(t *testing.T) {
	q := queue.New[Message]()
	d := NewDispatcher(testConfig(), q, nil, nil)
	runDispatcher(t, d)

	q.Push(NewMessage("ERROR dropped"))
	require.Eventually(t, func() bool { return q.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestDispatcher_StopWithoutDrain(t *testing.T) {
	good := &recorder{name: "good"}
	q := queue.New[Message]()
	q.Push(NewMessage("ERROR pending"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewDispatcher(testConfig(), q, []Destination{good}, nil).Run(ctx)

	assert.Empty(t, good.texts())
	assert.Equal(t, 1, q.Len())
}

func TestDispatcher_StopWithDrain(t *testing.T) {
	good := &recorder{name: "good"}
	q := queue.New[Message]()
	q.Push(NewMessage("ERROR one"))
	q.Push(NewMessage("ERROR two"))

	cfg := testConfig()
	cfg.DrainOnShutdown = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewDispatcher(cfg, q, []Destination{good}, nil).Run(ctx)

	assert.Equal(t, []string{"ERROR one", "ERROR two"}, good.texts())
}

func TestBuildDestinations(t *testing.T) {
	t.Setenv("TEST_HOOK_URL", "https://hooks.example.com/x")
	t.Setenv("TEST_SLACK_TOKEN", "xoxb-1")

	cfg := config.AlertsConfig{Destinations: []config.DestinationConfig{
		{Type: "webhook", URLEnv: "TEST_HOOK_URL"},
		{Type: "webhook", URLEnv: "TEST_UNSET_HOOK_URL"},
		{Type: "slack", TokenEnv: "TEST_SLACK_TOKEN", Channel: "C1"},
	}}
	dests, err := BuildDestinations(cfg, http.DefaultClient)
	require.NoError(t, err)
	require.Len(t, dests, 2)
	assert.Equal(t, "webhook", dests[0].Name())
	assert.Equal(t, "slack", dests[1].Name())
	assert.Equal(t, "https://hooks.example.com/x", dests[0].(*WebhookDestination).URL)

	d := NewDispatcher(cfg, queue.New[Message](), dests, nil)
	assert.Equal(t, []string{"webhook", "slack"}, d.Destinations())
}

func TestBuildDestinations_UnknownType(t *testing.T) {
	cfg := config.AlertsConfig{Destinations: []config.DestinationConfig{{Type: "pager"}}}
	_, err := BuildDestinations(cfg, nil)
	assert.Error(t, err)
}
