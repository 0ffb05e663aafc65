package watch

import (
	"sync"

	"github.com/fsnotify/fsnotify"
)

// fsnotifyBackend adapts an fsnotify.Watcher on one directory.
type fsnotifyBackend struct {
	w      *fsnotify.Watcher
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func openFSNotify(dir string) (backend, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	b := &fsnotifyBackend{
		w:      w,
		events: make(chan Event),
		done:   make(chan struct{}),
	}
	go b.pump()
	return b, nil
}

func (b *fsnotifyBackend) Events() <-chan Event { return b.events }

func (b *fsnotifyBackend) Errors() <-chan error { return b.w.Errors }

func (b *fsnotifyBackend) Close() error {
	b.once.Do(func() { close(b.done) })
	return b.w.Close()
}

// pump translates fsnotify events. Editors that save atomically rename a
// temp file over the target, which arrives as a Create for the target path.
func (b *fsnotifyBackend) pump() {
	defer close(b.events)
	for {
		select {
		case <-b.done:
			return
		case ev, ok := <-b.w.Events:
			if !ok {
				return
			}
			var op Op
			switch {
			case ev.Has(fsnotify.Create):
				op = Create
			case ev.Has(fsnotify.Write):
				op = Modify
			default:
				continue
			}
			select {
			case b.events <- Event{Path: ev.Name, Op: op}:
			case <-b.done:
				return
			}
		}
	}
}
