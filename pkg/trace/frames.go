package trace

import (
	"runtime"
	"strconv"
	"strings"
)

const enginePathMarker = "kontrakt-labs/kontrakt/pkg/"

// CaptureFrames captures the current call stack as "func (file:line)" frames,
// skipping the given number of callers.
func CaptureFrames(skip int) []string {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var out []string
	for {
		f, more := frames.Next()
		out = append(out, f.Function+" ("+f.File+":"+strconv.Itoa(f.Line)+")")
		if !more {
			break
		}
	}
	return out
}

// FilterFrames drops engine-internal frames so reports point at user code.
// Verbose mode keeps everything.
func FilterFrames(frames []string, verbose bool) []string {
	if verbose {
		return frames
	}
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		if strings.Contains(f, enginePathMarker) || strings.Contains(f, "runtime.") {
			continue
		}
		out = append(out, f)
	}
	return out
}
