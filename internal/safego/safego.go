// Package safego runs the server's background tasks, such as audit shipping and
// the tenant reconciler loop, so that a panic in one is logged and counted
// instead of taking down the process.
package safego

import (
	"log/slog"
	"runtime/debug"

	"github.com/resource-catalog/resource-catalog/internal/telemetry"
)

// Go runs fn on a new goroutine under the name task. A panic in fn is recovered,
// logged with its stack, and counted in catalog_background_panics_total. The
// returned channel is closed once fn has returned or its panic was handled.
func Go(task string, fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				telemetry.BackgroundPanicsTotal.WithLabelValues(task).Inc()
				slog.Error("background task panicked", "task", task, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
	return done
}
