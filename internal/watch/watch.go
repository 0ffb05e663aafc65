package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/obsidianstack/tailalert/internal/config"
)

// Op is the kind of change observed.
type Op int

const (
	Modify Op = iota
	Create
)

func (o Op) String() string {
	if o == Create {
		return "create"
	}
	return "modify"
}

// Event is one observed change to a path inside the watched directory.
type Event struct {
	Path string
	Op   Op
}

// Handler receives events. Implementations are called from one goroutine at
// a time and must not assume which one.
type Handler interface {
	OnCreate(path string) error
	OnModify(path string) error
}

// backend is a source of raw events for one directory.
type backend interface {
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}

// openFunc starts a backend on dir. Abstracted so tests can inject events.
type openFunc func(dir string) (backend, error)

// Service watches a directory and feeds a Handler.
type Service struct {
	name     string
	debounce time.Duration
	open     openFunc
}

// New builds a Service for the configured backend.
func New(cfg config.WatchConfig) (*Service, error) {
	s := &Service{name: cfg.Backend, debounce: cfg.Debounce}
	switch cfg.Backend {
	case "fsnotify", "":
		s.name = "fsnotify"
		s.open = openFSNotify
	case "poll":
		interval := cfg.PollInterval
		if interval <= 0 {
			interval = config.DefaultWatchPoll
		}
		s.open = func(dir string) (backend, error) { return openPoll(dir, interval) }
	default:
		return nil, fmt.Errorf("watch: unknown backend %q", cfg.Backend)
	}
	return s, nil
}

// Backend returns the name of the backend in use.
func (s *Service) Backend() string {
	return s.name
}

// Run watches dir until ctx is cancelled or h returns an error.
//
// onStart, if not nil, runs on the callback goroutine once the backend is
// watching and before any event is delivered. Changes made while it runs are
// delivered afterwards. An error from onStart stops Run.
func (s *Service) Run(ctx context.Context, dir string, h Handler, onStart func() error) error {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("watch: resolve %q: %w", dir, err)
	}
	b, err := s.open(dir)
	if err != nil {
		return fmt.Errorf("watch: start %s on %q: %w", s.name, dir, err)
	}
	defer b.Close()

	slog.Info("watch: watching directory", "dir", dir, "backend", s.name, "debounce", s.debounce)

	if onStart != nil {
		if err := onStart(); err != nil {
			return err
		}
	}

	limit := rate.Inf
	if s.debounce > 0 {
		limit = rate.Every(s.debounce)
	}
	limiter := rate.NewLimiter(limit, 1)

	var (
		events  = b.Events()
		errs    = b.Errors()
		pending = newBatch()
		timer   *time.Timer
		timerC  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			pending.add(ev)
			if timerC != nil {
				continue
			}
			delay := limiter.Reserve().Delay()
			if delay > 0 {
				timer = time.NewTimer(delay)
				timerC = timer.C
				continue
			}
			if err := pending.flush(h); err != nil {
				return err
			}

		case <-timerC:
			timerC = nil
			if err := pending.flush(h); err != nil {
				return err
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Error("watch: watcher error", "backend", s.name, "err", err)
		}
	}
}

// batch coalesces events per path, remembering first-seen order.
type batch struct {
	order []string
	ops   map[string]Op
}

func newBatch() *batch {
	return &batch{ops: make(map[string]Op)}
}

func (b *batch) add(ev Event) {
	if _, seen := b.ops[ev.Path]; !seen {
		b.order = append(b.order, ev.Path)
		b.ops[ev.Path] = ev.Op
		return
	}
	if ev.Op == Create {
		b.ops[ev.Path] = Create
	}
}

// flush hands every pending path to h in first-seen order and empties the batch.
func (b *batch) flush(h Handler) error {
	order, ops := b.order, b.ops
	b.order = nil
	b.ops = make(map[string]Op)

	for _, path := range order {
		var err error
		if ops[path] == Create {
			err = h.OnCreate(path)
		} else {
			err = h.OnModify(path)
		}
		if err != nil {
			return fmt.Errorf("watch: handle %s %q: %w", ops[path], path, err)
		}
	}
	return nil
}
