// Package orchestrator wires detection to delivery and owns their lifecycle.
//
// Start verifies the watched file, launches the dispatcher goroutine, starts
// the watch service on the file's parent directory and primes the detector
// from the initial offset. Wait blocks until the caller's context ends or the
// detection path fails. Stop cancels both goroutines and joins each with its
// own timeout.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/obsidianstack/tailalert/internal/alerts"
	"github.com/obsidianstack/tailalert/internal/config"
	"github.com/obsidianstack/tailalert/internal/detector"
	"github.com/obsidianstack/tailalert/internal/matcher"
	"github.com/obsidianstack/tailalert/internal/metrics"
	"github.com/obsidianstack/tailalert/internal/queue"
	"github.com/obsidianstack/tailalert/internal/tail"
	"github.com/obsidianstack/tailalert/internal/watch"
)

// State is the orchestrator's lifecycle position.
type State int

const (
	Created State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrWatcherClosed is returned by Wait when the watch service stopped on its
// own without reporting an error.
var ErrWatcherClosed = errors.New("orchestrator: watcher closed unexpectedly")

// Options holds the orchestrator's dependencies. Only Config is required.
type Options struct {
	Config *config.Config

	// Destinations receive every alert in order. When nil, the webhook and
	// Slack destinations listed in Config are built with HTTPClient.
	Destinations []alerts.Destination
	HTTPClient   *http.Client

	Metrics *metrics.Metrics

	// Fs is the filesystem the tail reader uses. Defaults to the OS.
	Fs afero.Fs
}

// Orchestrator runs one detector and one dispatcher.
type Orchestrator struct {
	watchCfg    config.WatchConfig
	joinTimeout time.Duration

	fs         afero.Fs
	reader     *tail.Reader
	matcher    *matcher.Matcher
	queue      *queue.Queue[alerts.Message]
	dispatcher *alerts.Dispatcher
	watcher    *watch.Service
	metrics    *metrics.Metrics

	mu       sync.Mutex
	state    State
	path     string
	detector *detector.Detector

	cancelWatch    context.CancelFunc
	cancelDispatch context.CancelFunc
	watchDone      chan struct{}
	dispatchDone   chan struct{}
	watchErr       error // set before watchDone is closed
}

// New validates opts and builds the components. Nothing runs until Start.
func New(opts Options) (*Orchestrator, error) {
	if opts.Config == nil {
		return nil, errors.New("orchestrator: config is required")
	}
	cfg := opts.Config

	m, err := matcher.New(cfg.Watch.Pattern)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	w, err := watch.New(cfg.Watch)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	dests := opts.Destinations
	if dests == nil {
		client := opts.HTTPClient
		if client == nil {
			client = &http.Client{}
		}
		dests, err = alerts.BuildDestinations(cfg.Alerts, client)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
	}

	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	join := cfg.Shutdown.JoinTimeout
	if join <= 0 {
		join = config.DefaultJoinTimeout
	}

	q := queue.New[alerts.Message]()
	opts.Metrics.ObserveQueue(q.Len)

	return &Orchestrator{
		watchCfg:    cfg.Watch,
		joinTimeout: join,
		fs:          fs,
		reader:      tail.NewReader(fs),
		matcher:     m,
		queue:       q,
		dispatcher:  alerts.NewDispatcher(cfg.Alerts, q, dests, opts.Metrics),
		watcher:     w,
		metrics:     opts.Metrics,
		state:       Created,
	}, nil
}

// Start launches detection and delivery. It returns once the detector has
// been primed, so alerts for lines already in the file (unless start_at_end
// is set) are queued by the time it returns. A missing file is an error
// wrapping fs.ErrNotExist.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != Created {
		return fmt.Errorf("orchestrator: start in state %s", o.state)
	}

	path, err := filepath.Abs(o.watchCfg.Path)
	if err != nil {
		return fmt.Errorf("orchestrator: resolve %q: %w", o.watchCfg.Path, err)
	}
	info, err := o.fs.Stat(path)
	if err != nil {
		return fmt.Errorf("orchestrator: watched file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("orchestrator: watched path %q is a directory", path)
	}

	target := tail.NewTarget(path)
	if o.watchCfg.StartAtEnd {
		if err := o.reader.SkipToEnd(target); err != nil {
			return fmt.Errorf("orchestrator: %w", err)
		}
		slog.Info("orchestrator: skipping existing content", "path", path, "offset", target.Offset)
	}
	det := detector.New(target, o.reader, o.matcher, o.queue, detector.Options{
		Metrics:        o.metrics,
		FollowRecreate: o.watchCfg.FollowRecreate,
	})

	dctx, dcancel := context.WithCancel(ctx)
	o.cancelDispatch = dcancel
	o.dispatchDone = make(chan struct{})
	go func() {
		defer close(o.dispatchDone)
		o.dispatcher.Run(dctx)
	}()

	wctx, wcancel := context.WithCancel(ctx)
	o.cancelWatch = wcancel
	o.watchDone = make(chan struct{})
	primed := make(chan struct{})
	go func() {
		defer close(o.watchDone)
		o.watchErr = o.watcher.Run(wctx, filepath.Dir(path), det, func() error {
			if err := det.Prime(); err != nil {
				return fmt.Errorf("orchestrator: prime: %w", err)
			}
			close(primed)
			return nil
		})
	}()

	select {
	case <-primed:
	case <-o.watchDone:
		err := o.watchErr
		if err == nil {
			err = ctx.Err()
		}
		if err == nil {
			err = ErrWatcherClosed
		}
		o.abort()
		return err
	}

	o.path = path
	o.detector = det
	o.state = Running
	slog.Info("orchestrator: running",
		"path", path,
		"pattern", o.matcher.String(),
		"backend", o.watcher.Backend(),
		"destinations", o.dispatcher.Destinations(),
	)
	return nil
}

// Wait blocks until ctx is done, returning nil, or until detection stops,
// returning the error that stopped it.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.watchDone
	o.mu.Unlock()
	if done == nil {
		return fmt.Errorf("orchestrator: wait before start")
	}

	select {
	case <-ctx.Done():
		return nil
	case <-done:
		if ctx.Err() != nil || o.State() >= Stopping {
			return nil
		}
		if o.watchErr != nil {
			return o.watchErr
		}
		return ErrWatcherClosed
	}
}

// Stop cancels detection, then delivery, joining each goroutine for at most
// the configured join timeout. A goroutine that does not finish in time is
// logged and left behind. Stop is safe to call more than once.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.state != Running {
		o.mu.Unlock()
		return
	}
	o.state = Stopping
	o.mu.Unlock()

	slog.Info("orchestrator: stopping", "pending", o.queue.Len())

	o.cancelWatch()
	o.join("watcher", o.watchDone)
	o.cancelDispatch()
	o.join("dispatcher", o.dispatchDone)
	o.queue.Close()

	o.mu.Lock()
	o.state = Stopped
	o.mu.Unlock()
	slog.Info("orchestrator: stopped")
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Path returns the absolute watched path once started, or the configured one.
func (o *Orchestrator) Path() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.path != "" {
		return o.path
	}
	return o.watchCfg.Path
}

// Pattern returns the alert pattern.
func (o *Orchestrator) Pattern() string {
	return o.matcher.String()
}

// Offset returns the detector's read offset, or 0 before Start.
func (o *Orchestrator) Offset() uint64 {
	o.mu.Lock()
	det := o.detector
	o.mu.Unlock()
	if det == nil {
		return 0
	}
	return det.Offset()
}

// Truncations returns how often the file was re-read after shrinking in
// place, or 0 before Start.
func (o *Orchestrator) Truncations() uint64 {
	o.mu.Lock()
	det := o.detector
	o.mu.Unlock()
	if det == nil {
		return 0
	}
	return det.Truncations()
}

// QueueDepth returns the number of alerts waiting for the dispatcher.
func (o *Orchestrator) QueueDepth() int {
	return o.queue.Len()
}

// Destinations returns the destination names in delivery order.
func (o *Orchestrator) Destinations() []string {
	return o.dispatcher.Destinations()
}

// abort tears down a failed Start. Called with mu held.
func (o *Orchestrator) abort() {
	o.cancelWatch()
	o.cancelDispatch()
	o.join("dispatcher", o.dispatchDone)
	o.queue.Close()
	o.state = Stopped
}

func (o *Orchestrator) join(name string, done <-chan struct{}) {
	t := time.NewTimer(o.joinTimeout)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		slog.Warn("orchestrator: goroutine did not stop in time", "goroutine", name, "timeout", o.joinTimeout)
	}
}
