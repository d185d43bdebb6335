package dispatch

import (
	"sync"
	"time"
)

// Entry is one registered component handler.
type Entry struct {
	// ID is the caller-chosen component identifier. Last registration
	// for an ID wins.
	ID string
	// Group names the enclosing declaration whose metadata also gates
	// this handler (empty for none).
	Group  string
	Meta   Meta
	Handle HandlerFunc
}

type regEntry struct {
	e   Entry
	exp time.Time // zero = lives for the process
}

// Registry maps component identifiers to handlers. Safe for concurrent
// Register and Resolve; each write is atomic per entry.
//
// Entries live for the process by default, an accepted trade-off for
// short-lived bots. Long-running processes can bound memory with
// WithTTL/WithMax, which sweep expired entries periodically.
type Registry struct {
	mu sync.RWMutex

	ttl             time.Duration
	max             int
	cleanupInterval time.Duration
	nextCleanup     time.Time

	m map[string]regEntry
}

func NewRegistry() *Registry {
	return &Registry{
		cleanupInterval: time.Minute,
		m:               map[string]regEntry{},
	}
}

// WithTTL makes entries expire d after registration. Zero disables
// expiry (the default).
func (r *Registry) WithTTL(d time.Duration) *Registry {
	if r == nil || d < 0 {
		return r
	}
	r.mu.Lock()
	r.ttl = d
	r.mu.Unlock()
	return r
}

// WithMax caps the number of live entries; overflow evicts arbitrary
// entries. Zero means unbounded (the default).
func (r *Registry) WithMax(max int) *Registry {
	if r == nil || max < 0 {
		return r
	}
	r.mu.Lock()
	r.max = max
	r.mu.Unlock()
	return r
}

// WithCleanupInterval sets how often expired entries are swept.
func (r *Registry) WithCleanupInterval(d time.Duration) *Registry {
	if r == nil || d <= 0 {
		return r
	}
	r.mu.Lock()
	r.cleanupInterval = d
	r.mu.Unlock()
	return r
}

// Register inserts or overwrites the entry for e.ID.
func (r *Registry) Register(e Entry) {
	if e.ID == "" || e.Handle == nil {
		return
	}
	now := time.Now()
	r.maybeCleanup(now)

	r.mu.Lock()
	re := regEntry{e: e}
	if r.ttl > 0 {
		re.exp = now.Add(r.ttl)
	}
	r.m[e.ID] = re
	r.enforceMaxLocked()
	r.mu.Unlock()
}

// RegisterFunc registers fn under id with empty metadata.
func (r *Registry) RegisterFunc(id string, fn HandlerFunc) {
	r.Register(Entry{ID: id, Handle: fn})
}

// Resolve returns the entry registered under id. Absence is a normal
// outcome, not an error.
func (r *Registry) Resolve(id string) (Entry, bool) {
	if id == "" {
		return Entry{}, false
	}
	now := time.Now()
	r.maybeCleanup(now)

	r.mu.RLock()
	re, ok := r.m[id]
	r.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if !re.exp.IsZero() && now.After(re.exp) {
		r.mu.Lock()
		// Re-check under write lock.
		if re2, ok2 := r.m[id]; ok2 && !re2.exp.IsZero() && now.After(re2.exp) {
			delete(r.m, id)
		}
		r.mu.Unlock()
		return Entry{}, false
	}
	return re.e, true
}

// Remove deletes the entry for id, reporting whether one existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	_, ok := r.m[id]
	delete(r.m, id)
	r.mu.Unlock()
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

func (r *Registry) maybeCleanup(now time.Time) {
	r.mu.RLock()
	ttl := r.ttl
	next := r.nextCleanup
	interval := r.cleanupInterval
	r.mu.RUnlock()

	if ttl <= 0 {
		return
	}
	if next.IsZero() {
		r.mu.Lock()
		if r.nextCleanup.IsZero() {
			r.nextCleanup = now.Add(interval)
		}
		r.mu.Unlock()
		return
	}
	if now.Before(next) {
		return
	}

	r.mu.Lock()
	if !now.Before(r.nextCleanup) {
		for id, re := range r.m {
			if !re.exp.IsZero() && now.After(re.exp) {
				delete(r.m, id)
			}
		}
		r.nextCleanup = now.Add(interval)
	}
	r.mu.Unlock()
}

func (r *Registry) enforceMaxLocked() {
	if r.max <= 0 || len(r.m) <= r.max {
		return
	}
	over := len(r.m) - r.max
	for id := range r.m {
		delete(r.m, id)
		over--
		if over <= 0 {
			break
		}
	}
}
