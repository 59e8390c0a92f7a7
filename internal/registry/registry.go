// Package registry tracks which notification handle currently represents each tag.
//
// The registry is the only shared state between the request loop and the
// closed-event watcher. Every method takes the registry lock for its whole
// duration and never calls out while holding it, so the three core operations
// (LookupOrDefault, Upsert, RemoveByHandle) are indivisible with respect to
// each other.
package registry

import (
	"sort"
	"sync"
	"time"

	"tagnotify/internal/gateway"
)

type entry struct {
	handle    gateway.Handle
	updatedAt time.Time
}

// Registry maps tag -> latest handle issued for it.
type Registry struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func New() *Registry {
	return &Registry{entries: map[string]entry{}, now: time.Now}
}

// LookupOrDefault returns the current handle for tag, or gateway.NoHandle.
func (r *Registry) LookupOrDefault(tag string) gateway.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[tag]; ok {
		return e.handle
	}
	return gateway.NoHandle
}

// Upsert records h as the current handle for tag, replacing any previous one.
func (r *Registry) Upsert(tag string, h gateway.Handle) {
	r.mu.Lock()
	r.entries[tag] = entry{handle: h, updatedAt: r.now()}
	r.mu.Unlock()
}

// RemoveByHandle drops every tag whose current handle is h and returns those tags.
//
// Matching is by handle, never by tag: a Closed event for a handle that has
// since been superseded must leave the newer entry alone.
func (r *Registry) RemoveByHandle(h gateway.Handle) []string {
	if h == gateway.NoHandle {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for tag, e := range r.entries {
		if e.handle == h {
			delete(r.entries, tag)
			removed = append(removed, tag)
		}
	}
	sort.Strings(removed)
	return removed
}

// SweepIdle drops entries not updated within maxAge of now. It bounds growth
// when the notification server never reports a close.
func (r *Registry) SweepIdle(maxAge time.Duration, now time.Time) []string {
	if maxAge <= 0 {
		return nil
	}
	cutoff := now.Add(-maxAge)
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for tag, e := range r.entries {
		if e.updatedAt.Before(cutoff) {
			delete(r.entries, tag)
			removed = append(removed, tag)
		}
	}
	sort.Strings(removed)
	return removed
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot copies the current mapping.
func (r *Registry) Snapshot() map[string]gateway.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]gateway.Handle, len(r.entries))
	for tag, e := range r.entries {
		out[tag] = e.handle
	}
	return out
}
