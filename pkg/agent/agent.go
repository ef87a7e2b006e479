// Package agent wires the SDK together: configuration, telemetry, the
// metrics pipeline, and the snapshot client. Applications either construct
// an Agent explicitly or use the package-level Init/CaptureSnapshot
// functions for the common single-agent case.
package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/glimpse-dev/glimpse-go/pkg/cache"
	"github.com/glimpse-dev/glimpse-go/pkg/config"
	"github.com/glimpse-dev/glimpse-go/pkg/metrics"
	"github.com/glimpse-dev/glimpse-go/pkg/snapshot"
	"github.com/glimpse-dev/glimpse-go/pkg/telemetry"
	"github.com/glimpse-dev/glimpse-go/pkg/transport"
)

// Agent is the top-level SDK handle. A disabled agent (no API key, or
// monitoring switched off) accepts every call and does nothing, with zero
// network traffic.
type Agent struct {
	cfg       *config.Config
	logger    *slog.Logger
	telemetry *telemetry.Provider
	metrics   *metrics.Buffer
	snapshots *snapshot.Client
	redis     *cache.Client

	httpClient transport.Doer
	resolver   snapshot.CallerResolver
	provider   snapshot.RequestContextProvider

	pollDone chan struct{}
	pollOnce sync.Once
	pollWG   sync.WaitGroup
}

// Option configures an Agent.
type Option func(*Agent)

// WithConfig replaces the environment-derived configuration entirely.
func WithConfig(cfg *config.Config) Option {
	return func(a *Agent) { a.cfg = cfg }
}

// WithAPIKey sets the collector API key.
func WithAPIKey(key string) Option {
	return func(a *Agent) { a.cfg.APIKey = key }
}

// WithEndpoint sets the collector base URL.
func WithEndpoint(url string) Option {
	return func(a *Agent) { a.cfg.Endpoint = url }
}

// WithEnvironment sets the deployment environment name.
func WithEnvironment(env string) Option {
	return func(a *Agent) { a.cfg.Environment = env }
}

// WithVersion sets the instrumented service version.
func WithVersion(version string) Option {
	return func(a *Agent) { a.cfg.Version = version }
}

// WithPollInterval enables the background breakpoint poller.
func WithPollInterval(d time.Duration) Option {
	return func(a *Agent) { a.cfg.PollInterval = d }
}

// WithHTTPClient overrides the HTTP client used for collector traffic.
func WithHTTPClient(doer transport.Doer) Option {
	return func(a *Agent) { a.httpClient = doer }
}

// WithResolver overrides the caller resolver on the snapshot client.
func WithResolver(r snapshot.CallerResolver) Option {
	return func(a *Agent) { a.resolver = r }
}

// WithRequestContextProvider sets the ambient request context source.
func WithRequestContextProvider(p snapshot.RequestContextProvider) Option {
	return func(a *Agent) { a.provider = p }
}

// New creates an agent for the named service. Configuration comes from
// the GLIMPSE_* environment, then options. New never fails in a way that
// should stop the host application: a bad Redis URL or an unreachable
// tracing collector degrades to local operation.
func New(ctx context.Context, serviceName string, opts ...Option) (*Agent, error) {
	cfg, err := config.Load(serviceName)
	if err != nil {
		return nil, err
	}

	a := &Agent{cfg: cfg, pollDone: make(chan struct{})}
	for _, opt := range opts {
		opt(a)
	}

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:     a.cfg.ServiceName,
		ServiceVersion:  a.cfg.Version,
		Environment:     a.cfg.Environment,
		OTLPEndpoint:    a.cfg.OTLPEndpoint,
		TracingEnabled:  a.cfg.TracingEnabled && !a.cfg.Disabled(),
		TracingSampling: a.cfg.TracingSampling,
		LogLevel:        a.cfg.LogLevel,
		LogFormat:       a.cfg.LogFormat,
	})
	if err != nil {
		return nil, err
	}
	a.telemetry = tel
	a.logger = tel.Logger().With("component", "agent", "service", a.cfg.ServiceName)

	if a.cfg.Disabled() {
		a.logger.Debug("agent disabled", "enabled", a.cfg.Enabled, "has_api_key", a.cfg.APIKey != "")
	}

	var transportOpts []transport.Option
	if a.httpClient != nil {
		transportOpts = append(transportOpts, transport.WithHTTPClient(a.httpClient))
	} else if a.cfg.HTTPTimeout > 0 {
		transportOpts = append(transportOpts, transport.WithTimeout(a.cfg.HTTPTimeout))
	}
	transportOpts = append(transportOpts, transport.WithLogger(tel.Logger()))
	registry := transport.NewRegistryClient(a.cfg.Endpoint, a.cfg.APIKey, transportOpts...)

	store := a.breakpointStore(ctx)

	clientOpts := []snapshot.ClientOption{snapshot.WithLogger(tel.Logger())}
	if a.resolver != nil {
		clientOpts = append(clientOpts, snapshot.WithResolver(a.resolver))
	}
	if a.provider != nil {
		clientOpts = append(clientOpts, snapshot.WithRequestContextProvider(a.provider))
	}
	a.snapshots = snapshot.NewClient(a.cfg, store, registry, clientOpts...)

	a.metrics = metrics.NewBuffer(metrics.BufferConfig{
		Endpoint:      a.cfg.Endpoint,
		APIKey:        a.cfg.APIKey,
		Capacity:      a.cfg.MetricsBufferSize,
		FlushInterval: a.cfg.MetricsFlushInterval,
		HTTPClient:    a.httpClient,
		Logger:        tel.Logger(),
	})

	if !a.cfg.Disabled() {
		a.metrics.Start()
		if a.cfg.PollInterval > 0 {
			a.startPoller(a.cfg.PollInterval)
		}
	}

	return a, nil
}

// breakpointStore selects the breakpoint cache backend. Redis is
// best-effort: connection failure falls back to the in-process store.
func (a *Agent) breakpointStore(ctx context.Context) snapshot.Store {
	if a.cfg.RedisURL == "" || a.cfg.Disabled() {
		return snapshot.NewMemoryStore()
	}

	client, err := cache.Connect(ctx, cache.DefaultConfig(a.cfg.RedisURL))
	if err != nil {
		a.logger.Warn("redis unavailable, using in-process breakpoint cache", "error", err)
		return snapshot.NewMemoryStore()
	}
	a.redis = client.WithLogger(a.logger)
	return snapshot.NewRedisStore(a.redis, a.cfg.ServiceName, a.logger)
}

func (a *Agent) startPoller(interval time.Duration) {
	a.pollWG.Add(1)
	go func() {
		defer a.pollWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		a.snapshots.PollBreakpoints(context.Background())
		for {
			select {
			case <-a.pollDone:
				return
			case <-ticker.C:
				a.snapshots.PollBreakpoints(context.Background())
			}
		}
	}()
}

// Config returns the agent configuration.
func (a *Agent) Config() *config.Config {
	return a.cfg
}

// Logger returns the agent logger.
func (a *Agent) Logger() *slog.Logger {
	return a.logger
}

// Metrics returns the metrics buffer for creating instruments.
func (a *Agent) Metrics() *metrics.Buffer {
	return a.metrics
}

// Snapshots returns the snapshot client.
func (a *Agent) Snapshots() *snapshot.Client {
	return a.snapshots
}

// CaptureSnapshot captures variable state at the named label if an active
// breakpoint covers the call site. Never errors, never panics.
func (a *Agent) CaptureSnapshot(ctx context.Context, label string, vars map[string]any, requestContext ...map[string]any) {
	a.snapshots.CaptureSnapshot(ctx, label, vars, requestContext...)
}

// PollBreakpoints refreshes the breakpoint cache once.
func (a *Agent) PollBreakpoints(ctx context.Context) {
	a.snapshots.PollBreakpoints(ctx)
}

// Shutdown flushes metrics, stops background workers, and releases
// telemetry resources. Safe to call more than once.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.pollOnce.Do(func() { close(a.pollDone) })
	a.pollWG.Wait()

	if a.metrics != nil {
		a.metrics.Stop(ctx)
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis client", "error", err)
		}
	}
	return a.telemetry.Shutdown(ctx)
}
