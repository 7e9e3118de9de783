// -----------------------------------------------------------------------
// Safe Goroutine - Panic-protected goroutine wrappers
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

// goroutineCounter tracks spawned goroutines for diagnostics
var goroutineCounter int64

// GetGoroutineCount returns the number of goroutines spawned via SafeGo
func GetGoroutineCount() int64 {
	return atomic.LoadInt64(&goroutineCounter)
}

// SafeGo runs a function in a goroutine with panic recovery.
// Panics are logged but don't crash the orchestrator: a panicking phase listener
// must not take the other phases or the progress server down with it.
//
// Example:
//
//	common.SafeGo(logger, "phase:add-countries", func() {
//	    consumer.Drain(ctx, phase, p)
//	})
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	atomic.AddInt64(&goroutineCounter, 1)

	go func() {
		defer recoverGoroutine(logger, name)
		fn()
	}()
}

// SafeCall runs fn on the current goroutine with the same recovery as SafeGo.
// Returns true if fn panicked.
func SafeCall(logger arbor.ILogger, name string, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			logPanic(logger, name, r, GetStackTrace())
		}
	}()
	fn()
	return false
}

func recoverGoroutine(logger arbor.ILogger, name string) {
	if r := recover(); r != nil {
		logPanic(logger, name, r, GetStackTrace())
	}
}

func logPanic(logger arbor.ILogger, name string, r interface{}, stackTrace string) {
	if logger != nil {
		logger.Error().
			Str("goroutine", name).
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack", stackTrace).
			Msg("Recovered from panic in goroutine - continuing")
		return
	}
	// Fallback to stderr if no logger
	fmt.Fprintf(os.Stderr, "PANIC in goroutine %s: %v\n%s\n", name, r, stackTrace)
}

// GetStackTrace returns the current goroutine's stack trace.
func GetStackTrace() string {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
