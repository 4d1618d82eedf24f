package state

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// ExpiringMap is a concurrency-safe keyed store with per-entry expiry.
// Entries become observably absent once their deadline passes regardless of
// physical deletion; expiry is checked lazily on read, and the check-and-
// delete is atomic with respect to concurrent writes on the same key.
// A zero TTL stores the entry without a deadline.
type ExpiringMap[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]
	now     func() time.Time
}

// NewExpiringMap creates an empty store using wall-clock time.
func NewExpiringMap[K comparable, V any]() *ExpiringMap[K, V] {
	return &ExpiringMap[K, V]{
		entries: make(map[K]entry[V]),
		now:     time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (m *ExpiringMap[K, V]) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Put stores value under key, replacing any previous entry. A positive ttl
// sets an absolute deadline of now+ttl; zero or negative keeps the entry
// until deleted.
func (m *ExpiringMap[K, V]) Put(key K, value V, ttl time.Duration) {
	m.mu.Lock()
	e := entry[V]{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	m.mu.Unlock()
}

// Get returns the live value for key. An expired entry is deleted and
// reported as absent.
func (m *ExpiringMap[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Delete removes key if present.
func (m *ExpiringMap[K, V]) Delete(key K) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Sweep purges every expired entry and returns how many were removed. Not
// required for correctness; it bounds memory when keys are rarely read.
func (m *ExpiringMap[K, V]) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for key, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// SweepFunc removes expired entries like Sweep and calls fn with each
// removed key and value.
func (m *ExpiringMap[K, V]) SweepFunc(fn func(K, V)) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for key, e := range m.entries {
		if e.expired(now) {
			if fn != nil {
				fn(key, e.value)
			}
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Snapshot returns a copy of all live entries.
func (m *ExpiringMap[K, V]) Snapshot() map[K]V {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	out := make(map[K]V, len(m.entries))
	for key, e := range m.entries {
		if !e.expired(now) {
			out[key] = e.value
		}
	}
	return out
}

// Len reports the number of live entries.
func (m *ExpiringMap[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for _, e := range m.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// InheritedCwd records a working directory captured from a parent window so
// a later consumer (for example a terminal spawner) can start the child in
// the same directory.
type InheritedCwd struct {
	Workspace string
	OwnerID   int64
	Path      string
	CreatedAt time.Time
}

// PreservedDimensions records column geometry captured before a placement
// mutation so external consumers can restore it.
type PreservedDimensions struct {
	Workspace    string
	OwnerID      int64
	Geometry     WindowGeometry
	ParentWidth  int
	ParentHeight int
	ParentLayout string
	CreatedAt    time.Time
}

// WindowGeometry is the subset of a rect preserved across placements.
type WindowGeometry struct {
	X      int
	Y      int
	Width  int
	Height int
}

// DefaultAuxTTL bounds how long inherited cwd and preserved dimensions stay
// retrievable when nothing consumes them.
const DefaultAuxTTL = 60 * time.Second

// Stores bundles the workspace-keyed auxiliary stores. One live entry per
// workspace in each.
type Stores struct {
	Cwd        *ExpiringMap[string, InheritedCwd]
	Dimensions *ExpiringMap[string, PreservedDimensions]
}

// NewStores creates the auxiliary store set.
func NewStores() *Stores {
	return &Stores{
		Cwd:        NewExpiringMap[string, InheritedCwd](),
		Dimensions: NewExpiringMap[string, PreservedDimensions](),
	}
}

// Sweep purges expired entries from every sub-store.
func (s *Stores) Sweep() int {
	return s.Cwd.Sweep() + s.Dimensions.Sweep()
}
