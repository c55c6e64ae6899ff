// Package besteffort runs operations whose failure must be visible in logs
// but must never change the outcome of the request that triggered them.
package besteffort

import (
	"context"
	"fmt"
	"log/slog"
)

// Run executes fn and reports whether it succeeded. Errors and panics are
// logged at warn level under the given operation name and then discarded.
func Run(ctx context.Context, logger *slog.Logger, operation string, fn func(context.Context) error) bool {
	_, ok := Get(ctx, logger, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return ok
}

// Get executes fn and returns its value. On error or panic the zero value and
// false are returned after the failure has been logged.
func Get[T any](ctx context.Context, logger *slog.Logger, operation string, fn func(context.Context) (T, error)) (value T, ok bool) {
	if logger == nil {
		logger = slog.Default()
	}
	defer func() {
		if r := recover(); r != nil {
			var zero T
			value, ok = zero, false
			logger.LogAttrs(ctx, slog.LevelWarn, "best-effort operation panicked",
				slog.String("operation", operation),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	value, err := fn(ctx)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelWarn, "best-effort operation failed",
			slog.String("operation", operation),
			slog.Any("error", err),
		)
		var zero T
		return zero, false
	}
	return value, true
}
