// Package watch delivers create and modify events for the files in one
// directory (non-recursive) to a Handler.
//
// Two backends produce events: fsnotify (inotify/kqueue/ReadDirectoryChangesW)
// and poll, which stats the directory on an interval with
// github.com/radovskyb/watcher for filesystems where kernel notifications are
// unreliable (NFS, some container overlays).
//
// Service.Run invokes the handler serially on a single goroutine, so a
// handler never runs concurrently with itself. Events are rate limited: at
// most one batch is handed over per debounce interval, and events that
// arrive inside the interval are coalesced per path. A create wins over a
// modify for the same path because it implies a full re-read.
//
// An error returned by the handler is fatal: Run stops and returns it.
// Errors reported by the backend itself are logged and watching continues.
package watch
