package snapshot

import (
	"context"
	"strings"
	"sync"
)

// Store mirrors the remote breakpoint registry and tracks which call-site
// locations this process has already auto-registered. The cache, the
// registered-location set, and the id->label map form one logical unit:
// implementations must keep lookups atomic with respect to ReplaceAll and
// UpsertOne so a lookup never observes a half-replaced cache.
type Store interface {
	// Lookup resolves a location key to a cached breakpoint, trying the
	// function+label scheme before file+line. Returns nil when unknown.
	// The result is a private copy: callers read it after any internal
	// lock is released.
	Lookup(ctx context.Context, key string) *Breakpoint

	// ReplaceAll replaces the cache contents wholesale after a poll,
	// re-applying locally-stored label overrides by breakpoint id.
	ReplaceAll(ctx context.Context, breakpoints []Breakpoint)

	// UpsertOne merges a single breakpoint into the cache immediately
	// after auto-registration, before any poll has picked it up.
	UpsertOne(ctx context.Context, bp Breakpoint)

	// IsRegistered reports whether this location was already
	// auto-registered during this process lifetime.
	IsRegistered(ctx context.Context, key string) bool

	// Register marks a location as auto-registered and remembers the
	// breakpoint's label so it survives later cache replacement.
	Register(ctx context.Context, key string, bp Breakpoint)
}

// MemoryStore is the default in-process Store. All state is
// process-lifetime and never persisted; a restart re-triggers
// auto-registration for every call site on first use.
type MemoryStore struct {
	mu          sync.Mutex
	breakpoints []Breakpoint
	registered  map[string]struct{}
	labels      map[string]string // breakpoint id -> label
}

// NewMemoryStore creates an empty in-memory breakpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		registered: make(map[string]struct{}),
		labels:     make(map[string]string),
	}
}

func (s *MemoryStore) Lookup(ctx context.Context, key string) *Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy: callers read the result after the lock is released, and
	// UpsertOne/ReplaceAll rewrite the backing slice in place.
	if bp := lookup(s.breakpoints, key); bp != nil {
		result := *bp
		return &result
	}
	return nil
}

func (s *MemoryStore) ReplaceAll(ctx context.Context, breakpoints []Breakpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := make([]Breakpoint, len(breakpoints))
	copy(replaced, breakpoints)
	applyLabels(replaced, s.labels)
	s.breakpoints = replaced
}

func (s *MemoryStore) UpsertOne(ctx context.Context, bp Breakpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakpoints = upsert(s.breakpoints, bp)
}

func (s *MemoryStore) IsRegistered(ctx context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.registered[key]
	return ok
}

func (s *MemoryStore) Register(ctx context.Context, key string, bp Breakpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registered[key] = struct{}{}
	if bp.ID != "" {
		if label := labelFromKey(key, bp); label != "" {
			s.labels[bp.ID] = label
		}
	}
}

// lookup scans the cached breakpoints for the key. The function+label
// scheme always takes priority over file+line; within a scheme the first
// match wins (no uniqueness is enforced). The cache is a flat list scanned
// linearly: breakpoint counts are expected to be tens, not thousands.
func lookup(breakpoints []Breakpoint, key string) *Breakpoint {
	if function, label, ok := strings.Cut(key, ":"); ok {
		for i := range breakpoints {
			if breakpoints[i].FunctionName == function && breakpoints[i].Label == label {
				return &breakpoints[i]
			}
		}
	}

	for i := range breakpoints {
		if breakpoints[i].FileLineKey() == key {
			return &breakpoints[i]
		}
	}

	return nil
}

func upsert(breakpoints []Breakpoint, bp Breakpoint) []Breakpoint {
	for i := range breakpoints {
		if breakpoints[i].ID == bp.ID {
			breakpoints[i] = bp
			return breakpoints
		}
	}
	return append(breakpoints, bp)
}

// applyLabels re-applies locally-stored labels so that labels supplied at
// auto-registration are not lost to a registry response that has not yet
// propagated them.
func applyLabels(breakpoints []Breakpoint, labels map[string]string) {
	for i := range breakpoints {
		if label, ok := labels[breakpoints[i].ID]; ok {
			breakpoints[i].Label = label
		}
	}
}

// labelFromKey extracts the label half of a function+label key, falling
// back to the breakpoint's own label.
func labelFromKey(key string, bp Breakpoint) string {
	if _, label, ok := strings.Cut(key, ":"); ok && label != "" {
		return label
	}
	return bp.Label
}
