// Package snapshot implements remotely-controlled, rate-limited capture of
// in-process variable state at named code locations. Call sites invoke
// Client.CaptureSnapshot with a label; whether anything is actually
// captured and transmitted is decided by breakpoints mirrored from a
// remote registry.
package snapshot

import (
	"fmt"
	"time"

	"github.com/glimpse-dev/glimpse-go/pkg/security"
)

// Breakpoint is a remote-controlled capture directive. A breakpoint is
// addressable either by (function_name, label) or by (file_path,
// line_number); auto-registered breakpoints are matched primarily by
// function+label since that key survives line-number churn from edits.
type Breakpoint struct {
	ID           string     `json:"id,omitempty"`
	ServiceName  string     `json:"service_name"`
	FilePath     string     `json:"file_path"`
	LineNumber   int        `json:"line_number"`
	FunctionName string     `json:"function_name"`
	Label        string     `json:"label,omitempty"`
	Enabled      bool       `json:"enabled"`
	ExpireAt     *time.Time `json:"expire_at,omitempty"`
	MaxCaptures  int        `json:"max_captures,omitempty"`
	CaptureCount int        `json:"capture_count"`
}

// FunctionKey renders the breakpoint's function+label location key.
func (b *Breakpoint) FunctionKey() string {
	return LocationKey(b.FunctionName, b.Label)
}

// FileLineKey renders the breakpoint's file+line location key.
func (b *Breakpoint) FileLineKey() string {
	return FileLine(b.FilePath, b.LineNumber)
}

// Active evaluates the activation policy: enabled, not expired, and
// capture quota not exhausted.
func (b *Breakpoint) Active(now time.Time) bool {
	if !b.Enabled {
		return false
	}
	if b.ExpireAt != nil && b.ExpireAt.Before(now) {
		return false
	}
	if b.MaxCaptures > 0 && b.CaptureCount >= b.MaxCaptures {
		return false
	}
	return true
}

// LocationKey derives the function+label cache key for a call site.
func LocationKey(function, label string) string {
	return function + ":" + label
}

// FileLine derives the file+line cache key for a call site.
func FileLine(file string, line int) string {
	return fmt.Sprintf("%s:%d", file, line)
}

// Snapshot is one captured, sanitized, security-scanned payload of
// variable state plus context. It is transmitted once and never persisted
// locally.
type Snapshot struct {
	BreakpointID   string          `json:"breakpoint_id"`
	ServiceName    string          `json:"service_name"`
	FilePath       string          `json:"file_path"`
	FunctionName   string          `json:"function_name"`
	Label          string          `json:"label,omitempty"`
	LineNumber     int             `json:"line_number"`
	Variables      map[string]any  `json:"variables"`
	SecurityFlags  []security.Flag `json:"security_flags"`
	StackTrace     string          `json:"stack_trace,omitempty"`
	RequestContext map[string]any  `json:"request_context,omitempty"`
	CapturedAt     time.Time       `json:"captured_at"`
}

// AutoRegisterRequest is the payload for first-use registration of a call
// site with the remote registry.
type AutoRegisterRequest struct {
	ServiceName  string `json:"service_name"`
	FilePath     string `json:"file_path"`
	LineNumber   int    `json:"line_number"`
	FunctionName string `json:"function_name"`
	Label        string `json:"label"`
}
