// Package logger provides a small factory around Go's slog package with
// functional options for format, level, output, and static attributes.
//
// The single entry point, New, creates a *slog.Logger:
//
//	log := logger.New(
//		logger.WithProduction("membergate"),
//		logger.WithAttr(slog.String("component", "subscriptions")),
//	)
//
// WithDevelopment and WithProduction bundle sensible defaults; individual
// options override them when applied afterwards.
package logger
