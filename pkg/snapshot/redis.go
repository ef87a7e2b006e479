package snapshot

import (
	"context"
	"log/slog"

	"github.com/glimpse-dev/glimpse-go/pkg/cache"
)

// RedisStore is a Store backed by a shared Redis instance, so that many
// processes of the same service share one mirror of the registry: a poll
// by any process refreshes the cache for all of them, and a call site
// auto-registered by one process is not re-registered by its siblings.
//
// Every operation is best-effort. Redis failures degrade to "cache knows
// nothing" and are logged; they never surface to the instrumented
// application. Losing a registration mark only causes a duplicate
// auto-registration call, which the registry treats as an upsert.
type RedisStore struct {
	client  *cache.Client
	service string
	logger  *slog.Logger
}

// NewRedisStore creates a Redis-backed breakpoint store scoped to one
// service name.
func NewRedisStore(client *cache.Client, service string, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		client:  client,
		service: service,
		logger:  logger.With("component", "snapshot.redis_store"),
	}
}

func (s *RedisStore) breakpointsKey() string { return "breakpoints:" + s.service }
func (s *RedisStore) registeredKey() string  { return "registered:" + s.service }
func (s *RedisStore) labelsKey() string      { return "labels:" + s.service }

func (s *RedisStore) Lookup(ctx context.Context, key string) *Breakpoint {
	breakpoints := s.load(ctx)
	return lookup(breakpoints, key)
}

func (s *RedisStore) ReplaceAll(ctx context.Context, breakpoints []Breakpoint) {
	labels, err := s.client.HashGetAll(ctx, s.labelsKey())
	if err != nil {
		s.logger.Debug("failed to load label overrides", "error", err)
		labels = nil
	}

	replaced := make([]Breakpoint, len(breakpoints))
	copy(replaced, breakpoints)
	applyLabels(replaced, labels)

	if err := s.client.SetJSON(ctx, s.breakpointsKey(), replaced, 0); err != nil {
		s.logger.Debug("failed to store breakpoints", "error", err)
	}
}

func (s *RedisStore) UpsertOne(ctx context.Context, bp Breakpoint) {
	breakpoints := upsert(s.load(ctx), bp)
	if err := s.client.SetJSON(ctx, s.breakpointsKey(), breakpoints, 0); err != nil {
		s.logger.Debug("failed to store breakpoint", "error", err)
	}
}

func (s *RedisStore) IsRegistered(ctx context.Context, key string) bool {
	ok, err := s.client.InSet(ctx, s.registeredKey(), key)
	if err != nil {
		s.logger.Debug("failed to check registration", "key", key, "error", err)
		return false
	}
	return ok
}

func (s *RedisStore) Register(ctx context.Context, key string, bp Breakpoint) {
	if err := s.client.AddToSet(ctx, s.registeredKey(), key); err != nil {
		s.logger.Debug("failed to mark registration", "key", key, "error", err)
	}

	if bp.ID == "" {
		return
	}
	if label := labelFromKey(key, bp); label != "" {
		if err := s.client.HashSet(ctx, s.labelsKey(), bp.ID, label); err != nil {
			s.logger.Debug("failed to store label", "id", bp.ID, "error", err)
		}
	}
}

func (s *RedisStore) load(ctx context.Context) []Breakpoint {
	var breakpoints []Breakpoint
	if err := s.client.GetJSON(ctx, s.breakpointsKey(), &breakpoints); err != nil {
		s.logger.Debug("failed to load breakpoints", "error", err)
		return nil
	}
	return breakpoints
}
