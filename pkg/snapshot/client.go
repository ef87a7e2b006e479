package snapshot

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/glimpse-dev/glimpse-go/pkg/config"
	"github.com/glimpse-dev/glimpse-go/pkg/sanitize"
	"github.com/glimpse-dev/glimpse-go/pkg/security"
)

// Transport is the boundary to the remote breakpoint registry.
type Transport interface {
	FetchActive(ctx context.Context, service string) ([]Breakpoint, error)
	AutoRegister(ctx context.Context, req AutoRegisterRequest) (*Breakpoint, error)
	SubmitSnapshot(ctx context.Context, snap Snapshot) error
}

// RequestContextProvider supplies request-scoped context (method, uri,
// client IP, headers) for snapshots captured without an explicit request
// context. Hosts integrate their framework's ambient request here instead
// of the SDK reaching into globals.
type RequestContextProvider interface {
	RequestContext(ctx context.Context) map[string]any
}

// Client orchestrates snapshot capture: it resolves call sites,
// auto-registers breakpoints, evaluates activation policy, and assembles
// and transmits snapshots. Snapshot capture is instrumentation injected
// into arbitrary application code paths, so nothing here ever returns an
// error or panics into the caller; every failure is logged and swallowed.
type Client struct {
	cfg      *config.Config
	store    Store
	registry Transport
	resolver CallerResolver
	provider RequestContextProvider
	logger   *slog.Logger
	disabled bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithResolver overrides the caller resolver.
func WithResolver(r CallerResolver) ClientOption {
	return func(c *Client) { c.resolver = r }
}

// WithRequestContextProvider sets the ambient request context source.
func WithRequestContextProvider(p RequestContextProvider) ClientOption {
	return func(c *Client) { c.provider = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a snapshot client. With a disabled configuration (no
// API key, or monitoring off) every public method is a no-op.
func NewClient(cfg *config.Config, store Store, registry Transport, opts ...ClientOption) *Client {
	c := &Client{
		cfg:      cfg,
		store:    store,
		registry: registry,
		resolver: &RuntimeResolver{},
		logger:   slog.Default(),
		disabled: cfg.Disabled(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "snapshot")
	return c
}

// CaptureSnapshot captures and transmits variable state at the named
// label, if an active breakpoint covers the call site. It never returns
// an error: missing locations, registration failures, inactive
// breakpoints, and network failures all abort silently.
func (c *Client) CaptureSnapshot(ctx context.Context, label string, vars map[string]any, requestContext ...map[string]any) {
	if c.disabled {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("snapshot capture panicked", "label", label, "panic", r)
		}
	}()

	loc, ok := c.resolver.Resolve()
	if !ok {
		c.logger.Debug("cannot resolve caller location", "label", label)
		return
	}

	key := LocationKey(loc.Function, label)

	// Function+label first, then file+line: a breakpoint an operator put
	// on this exact line is honored with its own gates rather than
	// shadowed by a freshly auto-registered one.
	bp := c.store.Lookup(ctx, key)
	if bp == nil {
		bp = c.store.Lookup(ctx, FileLine(loc.File, loc.Line))
	}

	if bp == nil {
		if c.store.IsRegistered(ctx, key) {
			c.logger.Debug("no breakpoint for location", "key", key)
			return
		}
		registered, err := c.registry.AutoRegister(ctx, AutoRegisterRequest{
			ServiceName:  c.cfg.ServiceName,
			FilePath:     loc.File,
			LineNumber:   loc.Line,
			FunctionName: loc.Function,
			Label:        label,
		})
		if err != nil || registered == nil {
			c.logger.Debug("auto-registration failed", "key", key, "error", err)
			return
		}
		c.store.UpsertOne(ctx, *registered)
		c.store.Register(ctx, key, *registered)

		bp = c.store.Lookup(ctx, key)
		if bp == nil {
			c.logger.Debug("no breakpoint for location", "key", key)
			return
		}
	}
	if !bp.Enabled {
		c.logger.Debug("breakpoint disabled", "key", key)
		return
	}
	if bp.ExpireAt != nil && bp.ExpireAt.Before(time.Now()) {
		c.logger.Debug("breakpoint expired", "key", key, "expire_at", bp.ExpireAt)
		return
	}
	if bp.MaxCaptures > 0 && bp.CaptureCount >= bp.MaxCaptures {
		c.logger.Debug("breakpoint capture quota exhausted", "key", key, "max_captures", bp.MaxCaptures)
		return
	}

	reqCtx := c.requestContext(ctx, requestContext)

	sanitized := sanitize.Map(vars, c.cfg.MaxCaptureDepth, c.cfg.MaxStringLength)
	redacted, flags := security.Scan(sanitized)

	snap := Snapshot{
		BreakpointID:   bp.ID,
		ServiceName:    c.cfg.ServiceName,
		FilePath:       loc.File,
		FunctionName:   loc.Function,
		Label:          label,
		LineNumber:     loc.Line,
		Variables:      redacted,
		SecurityFlags:  flags,
		StackTrace:     CallStack(16),
		RequestContext: reqCtx,
		CapturedAt:     time.Now().UTC(),
	}

	if err := c.registry.SubmitSnapshot(ctx, snap); err != nil {
		c.logger.Warn("failed to submit snapshot", "key", key, "error", err)
	}
}

// PollBreakpoints refreshes the local breakpoint cache from the remote
// registry. The host application is expected to call this periodically;
// there is no internal scheduler at this level. Fetch failures keep the
// existing cache so the registry saying nothing is not confused with the
// registry saying "no breakpoints".
func (c *Client) PollBreakpoints(ctx context.Context) {
	if c.disabled {
		return
	}

	breakpoints, err := c.registry.FetchActive(ctx, c.cfg.ServiceName)
	if err != nil {
		c.logger.Debug("breakpoint poll failed", "error", err)
		return
	}

	c.store.ReplaceAll(ctx, breakpoints)
	c.logger.Debug("breakpoint cache refreshed", "count", len(breakpoints))
}

func (c *Client) requestContext(ctx context.Context, explicit []map[string]any) map[string]any {
	if len(explicit) > 0 && explicit[0] != nil {
		return explicit[0]
	}
	if c.provider != nil {
		return c.provider.RequestContext(ctx)
	}
	return nil
}

// redactedHeaders are never forwarded verbatim in request context.
var redactedHeaders = map[string]struct{}{
	"authorization": {},
	"cookie":        {},
	"x-api-key":     {},
}

// HTTPRequestContext builds a snapshot request context from an HTTP
// request. Sensitive headers are redacted.
func HTTPRequestContext(r *http.Request) map[string]any {
	if r == nil {
		return nil
	}

	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if _, sensitive := redactedHeaders[strings.ToLower(name)]; sensitive {
			headers[name] = security.RedactedValue
			continue
		}
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	query := make(map[string]string)
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			query[name] = values[0]
		}
	}

	return map[string]any{
		"method":       r.Method,
		"uri":          r.URL.RequestURI(),
		"client_ip":    clientIP(r),
		"user_agent":   r.UserAgent(),
		"query_params": query,
		"headers":      headers,
	}
}

func clientIP(r *http.Request) string {
	// X-Forwarded-For is "client, proxy1, proxy2"; the originating
	// client is the first entry.
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}
