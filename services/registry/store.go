package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glimpse-dev/glimpse-go/pkg/snapshot"
)

// ErrNotFound is returned for lookups of unknown breakpoints.
var ErrNotFound = fmt.Errorf("breakpoint not found")

// Store defines registry storage operations.
type Store interface {
	// ListActive returns the breakpoints a client of the named service
	// should enforce right now.
	ListActive(ctx context.Context, service string) ([]Breakpoint, error)

	// Upsert registers a call site. Idempotent on
	// (service, function, label): re-registration updates the file/line
	// and returns the existing record. The bool reports creation.
	Upsert(ctx context.Context, req snapshot.AutoRegisterRequest) (Breakpoint, bool, error)

	// Get returns a breakpoint by id.
	Get(ctx context.Context, id string) (*Breakpoint, error)

	// SetEnabled toggles a breakpoint.
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// RecordCapture stores a received snapshot and increments the
	// owning breakpoint's capture count.
	RecordCapture(ctx context.Context, snap snapshot.Snapshot) (CapturedSnapshot, error)

	// ListSnapshots returns the most recent snapshots for a service,
	// newest first.
	ListSnapshots(ctx context.Context, service string, limit int) ([]CapturedSnapshot, error)

	// RecordMetrics stores a metrics flush and returns the number of
	// records accepted.
	RecordMetrics(ctx context.Context, payload MetricsPayload) (int, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu          sync.RWMutex
	breakpoints map[string]*Breakpoint // id -> breakpoint
	byLocation  map[string]string      // service + function key -> id
	snapshots   map[string][]CapturedSnapshot
	metrics     []MetricRecord
}

// NewMemoryStore creates a new in-memory registry store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		breakpoints: make(map[string]*Breakpoint),
		byLocation:  make(map[string]string),
		snapshots:   make(map[string][]CapturedSnapshot),
	}
}

func locationIndex(service, function, label string) string {
	return service + "|" + snapshot.LocationKey(function, label)
}

func (s *MemoryStore) ListActive(ctx context.Context, service string) ([]Breakpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var results []Breakpoint
	for _, bp := range s.breakpoints {
		if bp.ServiceName == service && bp.Active(now) {
			results = append(results, *bp)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})

	return results, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, req snapshot.AutoRegisterRequest) (Breakpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := locationIndex(req.ServiceName, req.FunctionName, req.Label)

	if id, ok := s.byLocation[key]; ok {
		bp := s.breakpoints[id]
		bp.FilePath = req.FilePath
		bp.LineNumber = req.LineNumber
		bp.UpdatedAt = now
		return *bp, false, nil
	}

	bp := &Breakpoint{
		Breakpoint: snapshot.Breakpoint{
			ID:           uuid.NewString(),
			ServiceName:  req.ServiceName,
			FilePath:     req.FilePath,
			LineNumber:   req.LineNumber,
			FunctionName: req.FunctionName,
			Label:        req.Label,
			Enabled:      true,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.breakpoints[bp.ID] = bp
	s.byLocation[key] = bp.ID

	return *bp, true, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Breakpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bp, ok := s.breakpoints[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *bp
	return &result, nil
}

func (s *MemoryStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bp, ok := s.breakpoints[id]
	if !ok {
		return ErrNotFound
	}
	bp.Enabled = enabled
	bp.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) RecordCapture(ctx context.Context, snap snapshot.Snapshot) (CapturedSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bp, ok := s.breakpoints[snap.BreakpointID]
	if !ok {
		return CapturedSnapshot{}, ErrNotFound
	}
	bp.CaptureCount++
	bp.UpdatedAt = time.Now().UTC()

	captured := CapturedSnapshot{
		ID:         uuid.NewString(),
		ReceivedAt: time.Now().UTC(),
		Snapshot:   snap,
	}
	s.snapshots[snap.ServiceName] = append(s.snapshots[snap.ServiceName], captured)

	return captured, nil
}

func (s *MemoryStore) ListSnapshots(ctx context.Context, service string, limit int) ([]CapturedSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.snapshots[service]
	results := make([]CapturedSnapshot, len(stored))
	copy(results, stored)

	// Newest first.
	sort.Slice(results, func(i, j int) bool {
		return results[i].ReceivedAt.After(results[j].ReceivedAt)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

func (s *MemoryStore) RecordMetrics(ctx context.Context, payload MetricsPayload) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, records := range payload.Metrics {
		s.metrics = append(s.metrics, records...)
		count += len(records)
	}

	return count, nil
}

var _ Store = (*MemoryStore)(nil)
