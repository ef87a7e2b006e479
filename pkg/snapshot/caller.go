package snapshot

import (
	"fmt"
	"runtime"
	"strings"
)

// modulePath is the import-path boundary of this library. Caller
// resolution returns the first stack frame outside it, so the resolved
// location always belongs to application code regardless of how many
// wrapper frames sit between the call site and the resolver.
const modulePath = "github.com/glimpse-dev/glimpse-go"

const maxStackFrames = 32

// Location identifies the application call site that invoked a capture.
type Location struct {
	File     string
	Line     int
	Function string
}

// CallerResolver resolves the application call site of the current
// capture invocation. Implementations that cannot walk the stack may
// return a fixed location per instrumentation point.
type CallerResolver interface {
	Resolve() (Location, bool)
}

// RuntimeResolver walks the call stack and returns the first frame whose
// function lies outside this library's import path.
type RuntimeResolver struct {
	// Boundary overrides the import-path prefix treated as library
	// internals. Empty uses this module's path.
	Boundary string
}

func (r *RuntimeResolver) Resolve() (Location, bool) {
	boundary := r.Boundary
	if boundary == "" {
		boundary = modulePath
	}

	pcs := make([]uintptr, maxStackFrames)
	n := runtime.Callers(2, pcs)
	if n == 0 {
		return Location{}, false
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()

		if frame.Function != "" &&
			!strings.HasPrefix(frame.Function, boundary) &&
			!strings.HasPrefix(frame.Function, "runtime.") {
			return Location{
				File:     frame.File,
				Line:     frame.Line,
				Function: shortFunction(frame.Function),
			}, true
		}

		if !more {
			return Location{}, false
		}
	}
}

// StaticResolver returns a fixed location. Used where stack inspection is
// unavailable or undesirable (explicit instrumentation points, tests, the
// CLI).
type StaticResolver struct {
	Location Location
}

func (r *StaticResolver) Resolve() (Location, bool) {
	if r.Location.Function == "" && r.Location.File == "" {
		return Location{}, false
	}
	return r.Location, true
}

// CallStack formats a bounded stack trace of the application frames above
// the capture call, one "function\n\tfile:line" pair per frame. Leading
// library frames are skipped under the same boundary rule as Resolve, so
// the trace begins at the application frame that invoked the capture.
func CallStack(limit int) string {
	return callStack(limit, modulePath)
}

func callStack(limit int, boundary string) string {
	if limit <= 0 || limit > maxStackFrames {
		limit = maxStackFrames
	}

	pcs := make([]uintptr, maxStackFrames)
	n := runtime.Callers(2, pcs)
	if n == 0 {
		return ""
	}

	var sb strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	written := 0
	inApp := false
	for written < limit {
		frame, more := frames.Next()

		switch {
		case frame.Function == "" || strings.HasPrefix(frame.Function, "runtime."):
		case !inApp && strings.HasPrefix(frame.Function, boundary):
		default:
			inApp = true
			fmt.Fprintf(&sb, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
			written++
		}

		if !more {
			break
		}
	}

	return sb.String()
}

// shortFunction reduces a fully-qualified function name like
// "github.com/acme/shop/internal/billing.(*Cart).checkout" to "checkout".
func shortFunction(full string) string {
	name := full
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}
