// Package metrics implements a small batch-and-flush metrics pipeline:
// instruments append records to a fixed-capacity buffer which is flushed
// to the collector when full or on a timer. Delivery is best-effort; a
// failed flush drops its batch.
package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Type classifies a metric record.
type Type string

const (
	TypeCounter   Type = "counter"
	TypeGauge     Type = "gauge"
	TypeHistogram Type = "histogram"
)

// Record is a single metric measurement.
type Record struct {
	Name      string            `json:"name"`
	Tags      map[string]string `json:"tags,omitempty"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Type      Type              `json:"type"`
}

// Doer abstracts the HTTP client for testing.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// BufferConfig holds buffer configuration.
type BufferConfig struct {
	Endpoint      string
	APIKey        string
	Capacity      int
	FlushInterval time.Duration
	HTTPClient    Doer
	Logger        *slog.Logger
}

// Buffer batches metric records and exports them to the collector.
// Safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	records []Record

	capacity int
	endpoint string
	apiKey   string
	http     Doer
	interval time.Duration
	logger   *slog.Logger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBuffer creates a metrics buffer. Call Start to enable timer-based
// flushing; without it the buffer still flushes whenever it fills.
func NewBuffer(cfg BufferConfig) *Buffer {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 100
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Buffer{
		records:  make([]Record, 0, cfg.Capacity),
		capacity: cfg.Capacity,
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		http:     cfg.HTTPClient,
		interval: cfg.FlushInterval,
		logger:   cfg.Logger.With("component", "metrics"),
		done:     make(chan struct{}),
	}
}

// Start launches the background flush ticker.
func (b *Buffer) Start() {
	if b.interval <= 0 {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-b.done:
				return
			case <-ticker.C:
				b.Flush(context.Background())
			}
		}
	}()
}

// Stop halts the flush ticker and flushes any buffered records. Safe to
// call more than once.
func (b *Buffer) Stop(ctx context.Context) {
	b.stopOnce.Do(func() { close(b.done) })
	b.wg.Wait()
	b.Flush(ctx)
}

// Add appends a record, flushing synchronously when the buffer fills.
func (b *Buffer) Add(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	b.records = append(b.records, rec)
	full := len(b.records) >= b.capacity
	b.mu.Unlock()

	if full {
		b.Flush(context.Background())
	}
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Flush exports all buffered records, grouped by metric name. Failures
// are logged and the batch is dropped; there is no retry or queueing.
func (b *Buffer) Flush(ctx context.Context) {
	b.mu.Lock()
	if len(b.records) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.records
	b.records = make([]Record, 0, b.capacity)
	b.mu.Unlock()

	grouped := make(map[string][]Record, len(batch))
	for _, rec := range batch {
		grouped[rec.Name] = append(grouped[rec.Name], rec)
	}

	if err := b.post(ctx, grouped); err != nil {
		b.logger.Warn("failed to flush metrics", "count", len(batch), "error", err)
	}
}

func (b *Buffer) post(ctx context.Context, grouped map[string][]Record) error {
	body, err := json.Marshal(map[string]any{"metrics": grouped})
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/sdk/metrics", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", b.apiKey)

	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return nil
}

// Counter returns a monotonic counter instrument.
func (b *Buffer) Counter(name string, tags map[string]string) *Counter {
	return &Counter{buf: b, name: name, tags: tags}
}

// Gauge returns a gauge instrument.
func (b *Buffer) Gauge(name string, tags map[string]string) *Gauge {
	return &Gauge{buf: b, name: name, tags: tags}
}

// Histogram returns a histogram instrument.
func (b *Buffer) Histogram(name string, tags map[string]string) *Histogram {
	return &Histogram{buf: b, name: name, tags: tags}
}

// Counter records monotonic counts.
type Counter struct {
	buf  *Buffer
	name string
	tags map[string]string
}

// Add records an increment. Negative values are silently ignored:
// counters are monotonic.
func (c *Counter) Add(v float64) {
	if c.buf == nil || v < 0 {
		return
	}
	c.buf.Add(Record{Name: c.name, Tags: c.tags, Value: v, Type: TypeCounter})
}

// Inc records an increment of one.
func (c *Counter) Inc() {
	c.Add(1)
}

// Gauge records point-in-time values.
type Gauge struct {
	buf  *Buffer
	name string
	tags map[string]string
}

// Set records the current value.
func (g *Gauge) Set(v float64) {
	if g.buf == nil {
		return
	}
	g.buf.Add(Record{Name: g.name, Tags: g.tags, Value: v, Type: TypeGauge})
}

// Histogram records a distribution of measurements.
type Histogram struct {
	buf  *Buffer
	name string
	tags map[string]string
}

// Observe records a measurement.
func (h *Histogram) Observe(v float64) {
	if h.buf == nil {
		return
	}
	h.buf.Add(Record{Name: h.name, Tags: h.tags, Value: v, Type: TypeHistogram})
}
