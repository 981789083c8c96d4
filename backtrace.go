package taskloop

import (
	"fmt"
	"runtime"
	"strings"
)

// backtraceDepth bounds how many call-site frames captureBacktrace records,
// skipping the frames internal to the registration call itself.
const backtraceDepth = 8

// captureBacktrace records the calling goroutine's program counters, for
// attaching to a task when WithRegistrationBacktrace is enabled. skip counts
// frames above captureBacktrace's own caller to elide taskloop's internal
// registration plumbing from the result.
func captureBacktrace(skip int) []uintptr {
	pcs := make([]uintptr, backtraceDepth)
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}

// formatBacktrace renders captured program counters into a compact
// single-line call chain for a log entry.
func formatBacktrace(pcs []uintptr) string {
	if len(pcs) == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs)
	var b strings.Builder
	for {
		frame, more := frames.Next()
		if b.Len() > 0 {
			b.WriteString(" <- ")
		}
		fmt.Fprintf(&b, "%s:%d", frame.Function, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}
