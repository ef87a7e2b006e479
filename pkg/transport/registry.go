// Package transport implements the HTTP boundary to the Glimpse
// breakpoint registry. All calls are short, synchronous, and bounded by a
// fixed timeout; a slow or unreachable registry cannot meaningfully stall
// the instrumented application.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/glimpse-dev/glimpse-go/pkg/snapshot"
)

const defaultTimeout = 5 * time.Second

// Doer abstracts the HTTP client for testing.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RegistryClient talks to the breakpoint registry. It implements
// snapshot.Transport.
type RegistryClient struct {
	baseURL string
	apiKey  string
	http    Doer
	logger  *slog.Logger
}

// Option configures a RegistryClient.
type Option func(*RegistryClient)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(doer Doer) Option {
	return func(c *RegistryClient) { c.http = doer }
}

// WithTimeout sets the request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *RegistryClient) {
		if hc, ok := c.http.(*http.Client); ok {
			hc.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *RegistryClient) { c.logger = logger }
}

// NewRegistryClient creates a registry client for the given base URL and
// API key.
func NewRegistryClient(baseURL, apiKey string, opts ...Option) *RegistryClient {
	c := &RegistryClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "transport")
	return c
}

type activeResponse struct {
	Breakpoints []snapshot.Breakpoint `json:"breakpoints"`
}

// FetchActive retrieves the active breakpoints for a service. Any
// network, status, or decode failure returns an error so the caller can
// distinguish "registry unreachable" from "registry says none".
func (c *RegistryClient) FetchActive(ctx context.Context, service string) ([]snapshot.Breakpoint, error) {
	url := fmt.Sprintf("%s/sdk/snapshots/active/%s", c.baseURL, service)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch breakpoints: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch breakpoints: unexpected status %d", resp.StatusCode)
	}

	var decoded activeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("fetch breakpoints: decode: %w", err)
	}

	return decoded.Breakpoints, nil
}

// AutoRegister registers a call site with the registry and returns the
// resulting breakpoint, id included. Registration is idempotent on the
// server for a given service+function+label.
func (c *RegistryClient) AutoRegister(ctx context.Context, r snapshot.AutoRegisterRequest) (*snapshot.Breakpoint, error) {
	url := c.baseURL + "/sdk/snapshots/auto-register"

	resp, err := c.postJSON(ctx, url, r)
	if err != nil {
		return nil, fmt.Errorf("auto-register: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("auto-register: unexpected status %d", resp.StatusCode)
	}

	var bp snapshot.Breakpoint
	if err := json.NewDecoder(resp.Body).Decode(&bp); err != nil {
		return nil, fmt.Errorf("auto-register: decode: %w", err)
	}

	return &bp, nil
}

// SubmitSnapshot transmits a captured snapshot. Fire-and-forget: the
// caller logs failures but never retries or queues.
func (c *RegistryClient) SubmitSnapshot(ctx context.Context, snap snapshot.Snapshot) error {
	url := c.baseURL + "/sdk/snapshots/capture"

	resp, err := c.postJSON(ctx, url, snap)
	if err != nil {
		return fmt.Errorf("submit snapshot: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("submit snapshot: unexpected status %d", resp.StatusCode)
	}

	return nil
}

func (c *RegistryClient) postJSON(ctx context.Context, url string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	return c.http.Do(req)
}

func (c *RegistryClient) setHeaders(req *http.Request) {
	req.Header.Set("X-API-Key", c.apiKey)
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
