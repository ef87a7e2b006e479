package agent

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/glimpse-dev/glimpse-go/pkg/config"
	"github.com/glimpse-dev/glimpse-go/pkg/snapshot"
	"github.com/glimpse-dev/glimpse-go/pkg/testutil"
)

func testConfig() *config.Config {
	return &config.Config{
		ServiceName:     "checkout-service",
		Environment:     "development",
		Version:         "1.0.0",
		APIKey:          "test-key",
		Endpoint:        "http://registry.test",
		Enabled:         true,
		MaxCaptureDepth: 5,
		MaxStringLength: 1000,
		LogLevel:        "error",
		LogFormat:       "text",
	}
}

func testResolver() *snapshot.StaticResolver {
	return &snapshot.StaticResolver{
		Location: snapshot.Location{File: "checkout.go", Line: 42, Function: "checkout"},
	}
}

func TestNewAppliesOptions(t *testing.T) {
	mock := testutil.NewMockHTTPClient()

	a, err := New(context.Background(), "checkout-service",
		WithAPIKey("opt-key"),
		WithEndpoint("http://opt.test"),
		WithEnvironment("staging"),
		WithVersion("2.1.0"),
		WithHTTPClient(mock),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Shutdown(context.Background())

	cfg := a.Config()
	if cfg.APIKey != "opt-key" {
		t.Errorf("expected APIKey opt-key, got %s", cfg.APIKey)
	}
	if cfg.Endpoint != "http://opt.test" {
		t.Errorf("expected Endpoint http://opt.test, got %s", cfg.Endpoint)
	}
	if cfg.Environment != "staging" {
		t.Errorf("expected Environment staging, got %s", cfg.Environment)
	}
	if cfg.Version != "2.1.0" {
		t.Errorf("expected Version 2.1.0, got %s", cfg.Version)
	}
}

func TestDisabledAgentMakesNoCalls(t *testing.T) {
	mock := testutil.NewMockHTTPClient()

	cfg := testConfig()
	cfg.APIKey = ""

	a, err := New(context.Background(), "checkout-service",
		WithConfig(cfg),
		WithHTTPClient(mock),
		WithResolver(testResolver()),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Shutdown(context.Background())

	a.CaptureSnapshot(context.Background(), "after-payment", map[string]any{"user_id": 42})
	a.PollBreakpoints(context.Background())

	if mock.CallCount() != 0 {
		t.Errorf("expected zero network calls from a disabled agent, got %d", mock.CallCount())
	}
}

func TestCaptureSnapshotEndToEnd(t *testing.T) {
	mock := testutil.NewMockHTTPClient()
	mock.AddResponse(testutil.MockResponse{
		StatusCode: http.StatusCreated,
		Body:       `{"id":"bp-1","service_name":"checkout-service","file_path":"checkout.go","line_number":42,"function_name":"checkout","label":"after-payment","enabled":true}`,
		Matcher: func(r *http.Request) bool {
			return r.URL.Path == "/sdk/snapshots/auto-register"
		},
	})
	mock.SetDefaultResponse(testutil.JSONResponse(map[string]any{"accepted": true}))

	a, err := New(context.Background(), "checkout-service",
		WithConfig(testConfig()),
		WithHTTPClient(mock),
		WithResolver(testResolver()),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Shutdown(context.Background())

	a.CaptureSnapshot(context.Background(), "after-payment", map[string]any{"user_id": 42})

	var registered, submitted bool
	for _, r := range mock.Requests() {
		switch r.URL.Path {
		case "/sdk/snapshots/auto-register":
			registered = true
		case "/sdk/snapshots/capture":
			submitted = true
		}
	}
	if !registered {
		t.Error("expected an auto-register request")
	}
	if !submitted {
		t.Error("expected a capture submission")
	}
}

func TestPollBreakpoints(t *testing.T) {
	mock := testutil.NewMockHTTPClient()
	mock.SetDefaultResponse(testutil.JSONResponse(map[string]any{
		"breakpoints": []map[string]any{
			{
				"id":            "bp-1",
				"service_name":  "checkout-service",
				"file_path":     "checkout.go",
				"line_number":   42,
				"function_name": "checkout",
				"label":         "after-payment",
				"enabled":       true,
			},
		},
	}))

	a, err := New(context.Background(), "checkout-service",
		WithConfig(testConfig()),
		WithHTTPClient(mock),
		WithResolver(testResolver()),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Shutdown(context.Background())

	a.PollBreakpoints(context.Background())

	req := mock.LastRequest()
	if req == nil {
		t.Fatal("expected a fetch request")
	}
	if !strings.HasSuffix(req.URL.Path, "/sdk/snapshots/active/checkout-service") {
		t.Errorf("unexpected fetch path %s", req.URL.Path)
	}
	if got := req.Header.Get("X-API-Key"); got != "test-key" {
		t.Errorf("expected X-API-Key test-key, got %s", got)
	}
}

func TestMetricsInstruments(t *testing.T) {
	mock := testutil.NewMockHTTPClient()
	mock.SetDefaultResponse(testutil.JSONResponse(map[string]any{"accepted": true}))

	cfg := testConfig()
	cfg.MetricsBufferSize = 2

	a, err := New(context.Background(), "checkout-service",
		WithConfig(cfg),
		WithHTTPClient(mock),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Shutdown(context.Background())

	c := a.Metrics().Counter("orders", map[string]string{"route": "/checkout"})
	c.Inc()
	c.Inc()

	req := mock.LastRequest()
	if req == nil {
		t.Fatal("expected a metrics flush")
	}
	if req.URL.Path != "/sdk/metrics" {
		t.Errorf("expected path /sdk/metrics, got %s", req.URL.Path)
	}
}

func TestGlobalInitIdempotent(t *testing.T) {
	defer Shutdown(context.Background())

	mock := testutil.NewMockHTTPClient()

	first, err := Init(context.Background(), "checkout-service",
		WithConfig(testConfig()),
		WithHTTPClient(mock),
	)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	second, err := Init(context.Background(), "other-service")
	if err != nil {
		t.Fatalf("second Init failed: %v", err)
	}

	if first != second {
		t.Error("expected repeated Init to return the same agent")
	}
	if Default() != first {
		t.Error("expected Default to return the initialized agent")
	}
}

func TestGlobalCaptureBeforeInit(t *testing.T) {
	defer Shutdown(context.Background())

	// Must not panic.
	CaptureSnapshot(context.Background(), "after-payment", map[string]any{"user_id": 42})
	PollBreakpoints(context.Background())
	Counter("orders_total", nil).Inc()
	Gauge("queue_depth", nil).Set(3)
	Histogram("checkout_ms", nil).Observe(120)

	if Default() != nil {
		t.Error("expected no default agent before Init")
	}
}

func TestGlobalInstrumentsAfterInit(t *testing.T) {
	mock := testutil.NewMockHTTPClient()
	defer Shutdown(context.Background())

	if _, err := Init(context.Background(), "checkout-service",
		WithConfig(testConfig()),
		WithHTTPClient(mock),
	); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	Counter("orders_total", map[string]string{"region": "us"}).Inc()
	if got := Default().Metrics().Len(); got != 1 {
		t.Errorf("expected 1 buffered record, got %d", got)
	}
}

func TestAgentShutdownIdempotent(t *testing.T) {
	mock := testutil.NewMockHTTPClient()

	a, err := New(context.Background(), "checkout-service",
		WithConfig(testConfig()),
		WithHTTPClient(mock),
		WithPollInterval(time.Hour),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Must not panic on the second close of the poller channel.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown failed: %v", err)
	}
}

func TestShutdownClearsGlobal(t *testing.T) {
	mock := testutil.NewMockHTTPClient()

	if _, err := Init(context.Background(), "checkout-service",
		WithConfig(testConfig()),
		WithHTTPClient(mock),
	); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if Default() != nil {
		t.Error("expected Shutdown to clear the default agent")
	}
}
