package snapshot

import (
	"strings"
	"testing"
	"time"
)

// From a test, every frame above the test function belongs to the testing
// package, so a resolver bounded to this module resolves the test frame's
// caller chain rather than library internals.
func TestRuntimeResolver_SkipsLibraryFrames(t *testing.T) {
	r := &RuntimeResolver{}

	loc, ok := r.Resolve()
	if !ok {
		t.Fatal("Resolve() failed")
	}
	if loc.Function == "" {
		t.Error("resolved function is empty")
	}
	if loc.Line <= 0 {
		t.Errorf("resolved line = %d, want > 0", loc.Line)
	}
	if strings.Contains(loc.Function, "/") {
		t.Errorf("function %q should be a short name", loc.Function)
	}
}

func TestRuntimeResolver_CustomBoundary(t *testing.T) {
	// With an unrelated boundary, the first non-runtime frame is the test
	// function itself.
	r := &RuntimeResolver{Boundary: "example.com/elsewhere"}

	loc, ok := r.Resolve()
	if !ok {
		t.Fatal("Resolve() failed")
	}
	if loc.Function != "TestRuntimeResolver_CustomBoundary" {
		t.Errorf("function = %q, want TestRuntimeResolver_CustomBoundary", loc.Function)
	}
}

func TestStaticResolver(t *testing.T) {
	r := &StaticResolver{Location: Location{File: "f.go", Line: 3, Function: "fn"}}

	loc, ok := r.Resolve()
	if !ok {
		t.Fatal("Resolve() failed")
	}
	if loc.Function != "fn" || loc.Line != 3 {
		t.Errorf("location = %+v", loc)
	}

	empty := &StaticResolver{}
	if _, ok := empty.Resolve(); ok {
		t.Error("empty static resolver should report no location")
	}
}

func TestCallStack(t *testing.T) {
	// As in TestRuntimeResolver_CustomBoundary, an unrelated boundary
	// makes the test function the first application frame.
	stack := callStack(8, "example.com/elsewhere")

	if stack == "" {
		t.Fatal("callStack() returned empty trace")
	}
	if !strings.Contains(stack, "TestCallStack") {
		t.Errorf("stack trace missing calling frame:\n%s", stack)
	}
	if !strings.Contains(stack, ":") {
		t.Error("stack trace missing file:line information")
	}
}

// From a test inside this module, every frame up to the testing package
// belongs to the library boundary, so a default-boundary trace starts at
// the test runner rather than at library internals.
func TestCallStack_SkipsLibraryFrames(t *testing.T) {
	stack := CallStack(8)

	if strings.Contains(stack, "TestCallStack_SkipsLibraryFrames") {
		t.Errorf("stack trace should not lead with library-internal frames:\n%s", stack)
	}
	if !strings.Contains(stack, "testing.tRunner") {
		t.Errorf("stack trace missing first frame past the boundary:\n%s", stack)
	}
}

func TestShortFunction(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"github.com/acme/shop/internal/billing.(*Cart).checkout", "checkout"},
		{"main.main", "main"},
		{"checkout", "checkout"},
	}

	for _, tt := range tests {
		if got := shortFunction(tt.in); got != tt.want {
			t.Errorf("shortFunction(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBreakpointActive(t *testing.T) {
	// gates are covered end to end in client_test; spot-check the helper
	bp := Breakpoint{Enabled: true}
	if !bp.Active(time.Now()) {
		t.Error("enabled breakpoint with no limits should be active")
	}

	bp.Enabled = false
	if bp.Active(time.Now()) {
		t.Error("disabled breakpoint should be inactive")
	}
}
