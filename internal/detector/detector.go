// Package detector turns change notifications for the watched file into
// queued alerts.
//
// Detector implements the watch service's Handler. Both callbacks ignore
// paths other than the watched one. OnCreate rewinds the offset because the
// path now names a new file; OnModify reads on from where the last cycle
// stopped. Each cycle reads the appended lines, tests them in file order and
// pushes one Message per match, so queue order is file order.
//
// The callbacks run on the watch service's goroutine. They share nothing with
// the dispatcher except the queue.
package detector

import (
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/obsidianstack/tailalert/internal/alerts"
	"github.com/obsidianstack/tailalert/internal/matcher"
	"github.com/obsidianstack/tailalert/internal/metrics"
	"github.com/obsidianstack/tailalert/internal/queue"
	"github.com/obsidianstack/tailalert/internal/tail"
)

// Detector binds a tail target and a matcher to the alert queue.
type Detector struct {
	target  *tail.Target
	path    string
	reader  *tail.Reader
	matcher *matcher.Matcher
	queue   *queue.Queue[alerts.Message]
	metrics *metrics.Metrics

	// followRecreate turns a missing file into a wait for the next create
	// event instead of an error.
	followRecreate bool

	// offset mirrors target.Offset for readers on other goroutines.
	offset      atomic.Uint64
	truncations atomic.Uint64

	now func() time.Time // injectable for deterministic tests
}

// Options holds the optional Detector settings.
type Options struct {
	Metrics        *metrics.Metrics
	FollowRecreate bool
}

// New creates a Detector for target. target.Path should be absolute so it
// compares equal to the paths the watch service reports.
func New(target *tail.Target, r *tail.Reader, m *matcher.Matcher, q *queue.Queue[alerts.Message], opts Options) *Detector {
	return &Detector{
		target:         target,
		path:           filepath.Clean(target.Path),
		reader:         r,
		matcher:        m,
		queue:          q,
		metrics:        opts.Metrics,
		followRecreate: opts.FollowRecreate,
		now:            time.Now,
	}
}

// Path returns the watched path.
func (d *Detector) Path() string {
	return d.path
}

// Offset returns the read offset reached by the last completed cycle. Unlike
// the target itself it is safe to call from any goroutine.
func (d *Detector) Offset() uint64 {
	return d.offset.Load()
}

// Truncations returns how many times the file was found shorter than the
// read offset and re-read from the start. Safe to call from any goroutine.
func (d *Detector) Truncations() uint64 {
	return d.truncations.Load()
}

// OnCreate handles a create event: the file at the watched path is new, so
// reading restarts at offset zero.
func (d *Detector) OnCreate(path string) error {
	if !d.watches(path) {
		return nil
	}
	slog.Info("detector: watched file created, reading from start", "path", d.path)
	d.target.Reset()
	return d.cycle("create")
}

// OnModify handles a modify event by reading what was appended.
func (d *Detector) OnModify(path string) error {
	if !d.watches(path) {
		return nil
	}
	return d.cycle("modify")
}

// Prime runs one cycle before any event has arrived. With the offset at zero
// this replays every matching line already in the file.
func (d *Detector) Prime() error {
	return d.cycle("prime")
}

// Scan runs one read-and-match cycle and returns how many alerts it queued.
// Lines are streamed from the reader, so a large backlog is never held in
// memory at once.
func (d *Detector) Scan() (int, error) {
	truncations := d.target.Truncations
	matched := 0
	read, err := d.reader.Stream(d.target, func(line string) {
		if !d.matcher.Test(line) {
			return
		}
		d.queue.Push(alerts.Message{Text: line, ObservedAt: d.now().UTC()})
		d.metrics.Matched()
		matched++
	})
	d.offset.Store(d.target.Offset)
	d.metrics.Read(read)
	if n := d.target.Truncations - truncations; n > 0 {
		d.truncations.Add(uint64(n))
		d.metrics.Truncated(n)
	}
	return matched, err
}

func (d *Detector) cycle(kind string) error {
	d.metrics.Event(kind)
	matched, err := d.Scan()
	if err != nil {
		if d.followRecreate && errors.Is(err, fs.ErrNotExist) {
			slog.Warn("detector: watched file is gone, waiting for it to be recreated",
				"path", d.path, "err", err)
			return nil
		}
		return err
	}
	if matched > 0 {
		slog.Debug("detector: queued alerts", "event", kind, "count", matched, "offset", d.target.Offset)
	}
	return nil
}

func (d *Detector) watches(path string) bool {
	return filepath.Clean(path) == d.path
}
