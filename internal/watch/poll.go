package watch

import (
	"sync"
	"time"

	poller "github.com/radovskyb/watcher"
)

// pollBackend stats the directory every interval with radovskyb/watcher.
type pollBackend struct {
	w      *poller.Watcher
	events chan Event
	errs   chan error
	done   chan struct{}
	once   sync.Once
}

func openPoll(dir string, interval time.Duration) (backend, error) {
	w := poller.New()
	w.FilterOps(poller.Write, poller.Create)

	// Add before Start: files added to a running poller can be reported as
	// created, which would make the detector re-read the whole file.
	if err := w.Add(dir); err != nil {
		return nil, err
	}

	startErr := make(chan error, 1)
	go func() {
		startErr <- w.Start(interval)
	}()

	// Close is a no-op until Start is looping, so wait for that (or for Start
	// to fail) before handing the backend out.
	started := make(chan struct{})
	go func() {
		w.Wait()
		close(started)
	}()
	select {
	case <-started:
	case err := <-startErr:
		return nil, err
	}

	b := &pollBackend{
		w:      w,
		events: make(chan Event),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go b.pump()
	return b, nil
}

func (b *pollBackend) Events() <-chan Event { return b.events }

func (b *pollBackend) Errors() <-chan error { return b.errs }

func (b *pollBackend) Close() error {
	b.once.Do(func() {
		close(b.done)
		b.w.Close()
	})
	return nil
}

// pump forwards poller events until the poller reports it has closed. It
// keeps draining after Close so the poller is never left blocked on a send
// while Close waits for it.
func (b *pollBackend) pump() {
	defer close(b.events)
	for {
		select {
		case <-b.w.Closed:
			return
		case err := <-b.w.Error:
			if b.stopped() {
				continue
			}
			select {
			case b.errs <- err:
			default:
			}
		case ev := <-b.w.Event:
			if b.stopped() || ev.IsDir() {
				continue
			}
			op := Modify
			if ev.Op == poller.Create {
				op = Create
			}
			select {
			case b.events <- Event{Path: ev.Path, Op: op}:
			case <-b.done:
			}
		}
	}
}

func (b *pollBackend) stopped() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}
