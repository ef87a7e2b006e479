// Package registry implements the breakpoint registry service: the
// server side of the SDK's snapshot protocol. It tracks breakpoints per
// service, accepts auto-registrations and captured snapshots, and serves
// the active-breakpoint list the SDK polls. Intended for local
// development and integration testing.
package registry

import (
	"time"

	"github.com/glimpse-dev/glimpse-go/pkg/snapshot"
)

// Breakpoint is the server-side breakpoint record. The embedded SDK
// fields are the wire shape; capture counting is owned here, never by
// clients.
type Breakpoint struct {
	snapshot.Breakpoint
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CapturedSnapshot is a snapshot received from an SDK, with receipt
// metadata.
type CapturedSnapshot struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	snapshot.Snapshot
}

// MetricRecord mirrors the SDK metric wire shape.
type MetricRecord struct {
	Name      string            `json:"name"`
	Tags      map[string]string `json:"tags,omitempty"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Type      string            `json:"type"`
}

// MetricsPayload is the body of a metrics flush, records grouped by
// metric name.
type MetricsPayload struct {
	Metrics map[string][]MetricRecord `json:"metrics"`
}
