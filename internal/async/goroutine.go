// Package async contains panic guards for background work: render workers
// and the metrics scrape server.
package async

import (
	"fmt"
	"runtime/debug"
)

// PanicLogger receives the report of a recovered panic.
type PanicLogger interface {
	Error(format string, args ...any)
}

// Go starts fn on its own goroutine; a panic is logged and swallowed.
func Go(logger PanicLogger, name string, fn func()) {
	go func() {
		_ = Safe(logger, name, func() error {
			fn()
			return nil
		})
	}()
}

// Safe runs fn inline and converts a panic into an error naming the job.
func Safe(logger PanicLogger, name string, fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if logger != nil {
			logger.Error("panic in %s: %v\n%s", name, r, debug.Stack())
		}
		err = fmt.Errorf("panic in %s: %v", name, r)
	}()
	return fn()
}
