package snapshot

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glimpse-dev/glimpse-go/pkg/config"
	"github.com/glimpse-dev/glimpse-go/pkg/security"
)

// fakeTransport implements Transport with canned responses and call
// counters.
type fakeTransport struct {
	fetchResult    []Breakpoint
	fetchErr       error
	registerResult *Breakpoint
	registerErr    error
	submitErr      error

	fetchCalls    int
	registerCalls int
	submitCalls   int
	submitted     []Snapshot
}

func (f *fakeTransport) FetchActive(ctx context.Context, service string) ([]Breakpoint, error) {
	f.fetchCalls++
	return f.fetchResult, f.fetchErr
}

func (f *fakeTransport) AutoRegister(ctx context.Context, req AutoRegisterRequest) (*Breakpoint, error) {
	f.registerCalls++
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	if f.registerResult != nil {
		return f.registerResult, nil
	}
	return &Breakpoint{
		ID:           "bp-auto",
		ServiceName:  req.ServiceName,
		FilePath:     req.FilePath,
		LineNumber:   req.LineNumber,
		FunctionName: req.FunctionName,
		Label:        req.Label,
		Enabled:      true,
	}, nil
}

func (f *fakeTransport) SubmitSnapshot(ctx context.Context, snap Snapshot) error {
	f.submitCalls++
	f.submitted = append(f.submitted, snap)
	return f.submitErr
}

func testConfig() *config.Config {
	return &config.Config{
		ServiceName:     "checkout-service",
		APIKey:          "key",
		Enabled:         true,
		MaxCaptureDepth: 3,
		MaxStringLength: 1000,
	}
}

func testResolver() CallerResolver {
	return &StaticResolver{Location: Location{
		File:     "checkout.go",
		Line:     42,
		Function: "checkout",
	}}
}

func newTestClient(cfg *config.Config, registry Transport) *Client {
	return NewClient(cfg, NewMemoryStore(), registry, WithResolver(testResolver()))
}

func TestCaptureSnapshot_AutoRegistersAndSubmits(t *testing.T) {
	ft := &fakeTransport{}
	client := newTestClient(testConfig(), ft)

	client.CaptureSnapshot(context.Background(), "checkout-validation", map[string]any{"user_id": 42})

	if ft.registerCalls != 1 {
		t.Errorf("register calls = %d, want 1", ft.registerCalls)
	}
	if ft.submitCalls != 1 {
		t.Fatalf("submit calls = %d, want 1", ft.submitCalls)
	}

	snap := ft.submitted[0]
	if snap.BreakpointID != "bp-auto" {
		t.Errorf("breakpoint_id = %q, want bp-auto", snap.BreakpointID)
	}
	if snap.ServiceName != "checkout-service" {
		t.Errorf("service_name = %q", snap.ServiceName)
	}
	if snap.FunctionName != "checkout" || snap.Label != "checkout-validation" {
		t.Errorf("location = %s:%s", snap.FunctionName, snap.Label)
	}
	if snap.Variables["user_id"] != 42 {
		t.Errorf("variables = %v", snap.Variables)
	}
	if snap.CapturedAt.IsZero() {
		t.Error("captured_at not set")
	}
}

// Two sequential captures at the same call site trigger exactly one
// auto-registration: the second finds the breakpoint via the immediate
// cache insertion, not a second registration call.
func TestCaptureSnapshot_IdempotentAutoRegistration(t *testing.T) {
	ft := &fakeTransport{}
	client := newTestClient(testConfig(), ft)
	ctx := context.Background()

	client.CaptureSnapshot(ctx, "checkout-validation", map[string]any{"n": 1})
	client.CaptureSnapshot(ctx, "checkout-validation", map[string]any{"n": 2})

	if ft.registerCalls != 1 {
		t.Errorf("register calls = %d, want 1", ft.registerCalls)
	}
	if ft.submitCalls != 2 {
		t.Errorf("submit calls = %d, want 2", ft.submitCalls)
	}
}

// A breakpoint addressed by file+line — placed by an operator rather than
// auto-registered — covers captures at that exact line without spawning a
// parallel registration.
func TestCaptureSnapshot_FileLineBreakpoint(t *testing.T) {
	ft := &fakeTransport{}
	store := NewMemoryStore()
	ctx := context.Background()

	store.ReplaceAll(ctx, []Breakpoint{
		{ID: "bp-manual", FilePath: "checkout.go", LineNumber: 42, Enabled: true},
	})

	client := NewClient(testConfig(), store, ft, WithResolver(testResolver()))
	client.CaptureSnapshot(ctx, "checkout-validation", map[string]any{"n": 1})

	if ft.registerCalls != 0 {
		t.Errorf("register calls = %d, want 0", ft.registerCalls)
	}
	if ft.submitCalls != 1 {
		t.Fatalf("submit calls = %d, want 1", ft.submitCalls)
	}
	if ft.submitted[0].BreakpointID != "bp-manual" {
		t.Errorf("breakpoint_id = %q, want bp-manual", ft.submitted[0].BreakpointID)
	}
}

// A disabled file+line breakpoint suppresses capture at its line; its
// gates apply instead of a fresh auto-registered breakpoint's.
func TestCaptureSnapshot_FileLineBreakpointDisabled(t *testing.T) {
	ft := &fakeTransport{}
	store := NewMemoryStore()
	ctx := context.Background()

	store.ReplaceAll(ctx, []Breakpoint{
		{ID: "bp-manual", FilePath: "checkout.go", LineNumber: 42, Enabled: false},
	})

	client := NewClient(testConfig(), store, ft, WithResolver(testResolver()))
	client.CaptureSnapshot(ctx, "checkout-validation", map[string]any{"n": 1})

	if ft.registerCalls != 0 {
		t.Errorf("register calls = %d, want 0", ft.registerCalls)
	}
	if ft.submitCalls != 0 {
		t.Errorf("submit calls = %d, want 0", ft.submitCalls)
	}
}

func TestCaptureSnapshot_RegistrationFailureAborts(t *testing.T) {
	ft := &fakeTransport{registerErr: errors.New("registry down")}
	client := newTestClient(testConfig(), ft)

	client.CaptureSnapshot(context.Background(), "label", map[string]any{"n": 1})

	if ft.submitCalls != 0 {
		t.Errorf("submit calls = %d, want 0", ft.submitCalls)
	}
}

func TestCaptureSnapshot_ActivationGates(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name       string
		bp         Breakpoint
		wantSubmit int
	}{
		{
			name:       "disabled breakpoint",
			bp:         Breakpoint{ID: "bp", FunctionName: "checkout", Label: "l", Enabled: false},
			wantSubmit: 0,
		},
		{
			name:       "expired breakpoint",
			bp:         Breakpoint{ID: "bp", FunctionName: "checkout", Label: "l", Enabled: true, ExpireAt: &past},
			wantSubmit: 0,
		},
		{
			name:       "quota exhausted",
			bp:         Breakpoint{ID: "bp", FunctionName: "checkout", Label: "l", Enabled: true, MaxCaptures: 3, CaptureCount: 3},
			wantSubmit: 0,
		},
		{
			name:       "future expiry still fires",
			bp:         Breakpoint{ID: "bp", FunctionName: "checkout", Label: "l", Enabled: true, ExpireAt: &future},
			wantSubmit: 1,
		},
		{
			name:       "quota remaining still fires",
			bp:         Breakpoint{ID: "bp", FunctionName: "checkout", Label: "l", Enabled: true, MaxCaptures: 3, CaptureCount: 2},
			wantSubmit: 1,
		},
		{
			name:       "unlimited captures",
			bp:         Breakpoint{ID: "bp", FunctionName: "checkout", Label: "l", Enabled: true, CaptureCount: 1000},
			wantSubmit: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{}
			store := NewMemoryStore()
			ctx := context.Background()

			// Pre-register the location so no auto-registration happens.
			store.Register(ctx, LocationKey("checkout", "l"), tt.bp)
			store.UpsertOne(ctx, tt.bp)

			client := NewClient(testConfig(), store, ft, WithResolver(testResolver()))
			client.CaptureSnapshot(ctx, "l", map[string]any{"n": 1})

			if ft.registerCalls != 0 {
				t.Errorf("register calls = %d, want 0", ft.registerCalls)
			}
			if ft.submitCalls != tt.wantSubmit {
				t.Errorf("submit calls = %d, want %d", ft.submitCalls, tt.wantSubmit)
			}
		})
	}
}

func TestCaptureSnapshot_UnresolvableLocation(t *testing.T) {
	ft := &fakeTransport{}
	client := NewClient(testConfig(), NewMemoryStore(), ft, WithResolver(&StaticResolver{}))

	client.CaptureSnapshot(context.Background(), "label", map[string]any{"n": 1})

	if ft.registerCalls != 0 || ft.submitCalls != 0 {
		t.Error("unresolvable caller location should abort before any transport call")
	}
}

func TestCaptureSnapshot_RedactsSecrets(t *testing.T) {
	ft := &fakeTransport{}
	client := newTestClient(testConfig(), ft)

	client.CaptureSnapshot(context.Background(), "checkout-validation", map[string]any{
		"user_id":  42,
		"password": "supersecret123",
	})

	if ft.submitCalls != 1 {
		t.Fatalf("submit calls = %d, want 1", ft.submitCalls)
	}

	snap := ft.submitted[0]
	if snap.Variables["user_id"] != 42 {
		t.Errorf("user_id = %v, want 42", snap.Variables["user_id"])
	}
	if snap.Variables["password"] != security.RedactedValue {
		t.Errorf("password = %v, want %q", snap.Variables["password"], security.RedactedValue)
	}
	if len(snap.SecurityFlags) != 1 {
		t.Fatalf("security flags = %d, want 1", len(snap.SecurityFlags))
	}
	flag := snap.SecurityFlags[0]
	if flag.Type != "sensitive_variable_name" || flag.Severity != "medium" || flag.Variable != "password" {
		t.Errorf("flag = %+v", flag)
	}
}

func TestCaptureSnapshot_SubmitFailureSwallowed(t *testing.T) {
	ft := &fakeTransport{submitErr: errors.New("collector down")}
	client := newTestClient(testConfig(), ft)

	// Must not panic or surface the error.
	client.CaptureSnapshot(context.Background(), "label", map[string]any{"n": 1})

	if ft.submitCalls != 1 {
		t.Errorf("submit calls = %d, want 1", ft.submitCalls)
	}
}

func TestCaptureSnapshot_ExplicitRequestContext(t *testing.T) {
	ft := &fakeTransport{}
	client := newTestClient(testConfig(), ft)

	client.CaptureSnapshot(context.Background(), "label", map[string]any{"n": 1},
		map[string]any{"method": "POST", "uri": "/checkout"})

	if ft.submitCalls != 1 {
		t.Fatalf("submit calls = %d, want 1", ft.submitCalls)
	}
	rc := ft.submitted[0].RequestContext
	if rc["method"] != "POST" || rc["uri"] != "/checkout" {
		t.Errorf("request context = %v", rc)
	}
}

func TestPollBreakpoints_ReplacesCache(t *testing.T) {
	ft := &fakeTransport{fetchResult: []Breakpoint{
		{ID: "bp-1", FunctionName: "checkout", Label: "l", Enabled: true},
	}}
	store := NewMemoryStore()
	client := NewClient(testConfig(), store, ft, WithResolver(testResolver()))
	ctx := context.Background()

	client.PollBreakpoints(ctx)

	if ft.fetchCalls != 1 {
		t.Errorf("fetch calls = %d, want 1", ft.fetchCalls)
	}
	if bp := store.Lookup(ctx, LocationKey("checkout", "l")); bp == nil {
		t.Error("poll should install fetched breakpoints")
	}
}

func TestPollBreakpoints_FetchFailureKeepsCache(t *testing.T) {
	ft := &fakeTransport{fetchErr: errors.New("unreachable")}
	store := NewMemoryStore()
	ctx := context.Background()
	store.UpsertOne(ctx, Breakpoint{ID: "bp-1", FunctionName: "checkout", Label: "l", Enabled: true})

	client := NewClient(testConfig(), store, ft, WithResolver(testResolver()))
	client.PollBreakpoints(ctx)

	if bp := store.Lookup(ctx, LocationKey("checkout", "l")); bp == nil {
		t.Error("a failed poll must not wipe the existing cache")
	}
}

func TestDisabledMode_NoNetworkCalls(t *testing.T) {
	ft := &fakeTransport{}
	cfg := testConfig()
	cfg.APIKey = ""

	client := newTestClient(cfg, ft)
	ctx := context.Background()

	client.CaptureSnapshot(ctx, "label", map[string]any{"n": 1})
	client.PollBreakpoints(ctx)

	if ft.fetchCalls+ft.registerCalls+ft.submitCalls != 0 {
		t.Errorf("transport calls = %d, want 0", ft.fetchCalls+ft.registerCalls+ft.submitCalls)
	}
}

func TestHTTPRequestContext(t *testing.T) {
	r := httptest.NewRequest("POST", "/checkout?coupon=SAVE10", nil)
	r.Header.Set("User-Agent", "test-agent")
	r.Header.Set("Authorization", "Bearer abc123")
	r.Header.Set("X-Request-Id", "req-1")

	rc := HTTPRequestContext(r)

	if rc["method"] != "POST" {
		t.Errorf("method = %v", rc["method"])
	}
	if rc["uri"] != "/checkout?coupon=SAVE10" {
		t.Errorf("uri = %v", rc["uri"])
	}
	if rc["user_agent"] != "test-agent" {
		t.Errorf("user_agent = %v", rc["user_agent"])
	}

	headers := rc["headers"].(map[string]string)
	if headers["Authorization"] != security.RedactedValue {
		t.Errorf("Authorization header = %q, want redacted", headers["Authorization"])
	}
	if headers["X-Request-Id"] != "req-1" {
		t.Errorf("X-Request-Id header = %q", headers["X-Request-Id"])
	}

	query := rc["query_params"].(map[string]string)
	if query["coupon"] != "SAVE10" {
		t.Errorf("query coupon = %q", query["coupon"])
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name      string
		forwarded string
		want      string
	}{
		{"no proxy", "", "192.0.2.1:1234"},
		{"single forwarded", "203.0.113.7", "203.0.113.7"},
		{"proxy chain keeps originating client", "203.0.113.7, 10.0.0.1, 10.0.0.2", "203.0.113.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = "192.0.2.1:1234"
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}

			if got := clientIP(r); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
