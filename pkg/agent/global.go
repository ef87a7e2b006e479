package agent

import (
	"context"
	"sync"

	"github.com/glimpse-dev/glimpse-go/pkg/metrics"
)

var (
	globalMu    sync.Mutex
	globalAgent *Agent
	initOnce    sync.Once
)

// Init initializes the package-level agent. Repeated calls return the
// agent from the first call; use New for independently-configured agents.
func Init(ctx context.Context, serviceName string, opts ...Option) (*Agent, error) {
	var err error
	initOnce.Do(func() {
		var a *Agent
		a, err = New(ctx, serviceName, opts...)
		if err != nil {
			return
		}
		globalMu.Lock()
		globalAgent = a
		globalMu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	return Default(), nil
}

// Default returns the package-level agent, or nil before Init.
func Default() *Agent {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalAgent
}

// CaptureSnapshot captures on the package-level agent. A no-op before Init.
func CaptureSnapshot(ctx context.Context, label string, vars map[string]any, requestContext ...map[string]any) {
	if a := Default(); a != nil {
		a.CaptureSnapshot(ctx, label, vars, requestContext...)
	}
}

// PollBreakpoints polls on the package-level agent. A no-op before Init.
func PollBreakpoints(ctx context.Context) {
	if a := Default(); a != nil {
		a.PollBreakpoints(ctx)
	}
}

// Counter returns a counter instrument on the package-level agent. Before
// Init the instrument discards measurements.
func Counter(name string, tags map[string]string) *metrics.Counter {
	if a := Default(); a != nil {
		return a.Metrics().Counter(name, tags)
	}
	return &metrics.Counter{}
}

// Gauge returns a gauge instrument on the package-level agent. Before Init
// the instrument discards measurements.
func Gauge(name string, tags map[string]string) *metrics.Gauge {
	if a := Default(); a != nil {
		return a.Metrics().Gauge(name, tags)
	}
	return &metrics.Gauge{}
}

// Histogram returns a histogram instrument on the package-level agent.
// Before Init the instrument discards measurements.
func Histogram(name string, tags map[string]string) *metrics.Histogram {
	if a := Default(); a != nil {
		return a.Metrics().Histogram(name, tags)
	}
	return &metrics.Histogram{}
}

// Shutdown shuts down the package-level agent and clears it, allowing a
// subsequent Init.
func Shutdown(ctx context.Context) error {
	globalMu.Lock()
	a := globalAgent
	globalAgent = nil
	globalMu.Unlock()
	initOnce = sync.Once{}

	if a == nil {
		return nil
	}
	return a.Shutdown(ctx)
}
