package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/obsidianstack/tailalert/internal/alerts"
)

// Entry is a dispatched alert together with the time it was recorded.
type Entry struct {
	Message      alerts.Message `json:"message"`
	DispatchedAt time.Time      `json:"dispatched_at"`
}

// Store is a thread-safe, bounded alert history.
type Store struct {
	mu      sync.RWMutex
	entries []Entry // oldest first
	max     int
	ttl     time.Duration
	now     func() time.Time // injectable for deterministic tests
}

// New creates a Store holding at most max entries for at most ttl.
// A non-positive ttl disables age-based eviction.
func New(max int, ttl time.Duration) *Store {
	return &Store{
		max: max,
		ttl: ttl,
		now: time.Now,
	}
}

// Put appends msg, dropping the oldest entry when the store is full.
func (s *Store) Put(msg alerts.Message) {
	if s.max <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, Entry{Message: msg, DispatchedAt: s.now()})
	if over := len(s.entries) - s.max; over > 0 {
		s.entries = append(s.entries[:0:0], s.entries[over:]...)
	}
}

// List returns live entries, newest first. Entries older than the TTL that
// have not yet been evicted are excluded.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.cutoff(s.now())
	out := make([]Entry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if s.ttl > 0 && !e.DispatchedAt.After(cutoff) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Count returns the number of entries held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Evict removes entries recorded at or before now minus TTL and returns how
// many were removed.
func (s *Store) Evict(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.cutoff(now)
	keep := s.entries[:0]
	for _, e := range s.entries {
		if e.DispatchedAt.After(cutoff) {
			keep = append(keep, e)
		}
	}
	removed := len(s.entries) - len(keep)
	s.entries = keep
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		<-ctx.Done()
		return
	}
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale alerts", "count", n)
			}
		}
	}
}

func (s *Store) cutoff(now time.Time) time.Time {
	return now.Add(-s.ttl)
}
