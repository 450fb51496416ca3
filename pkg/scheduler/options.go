package scheduler

import "log/slog"

type options struct {
	logger *slog.Logger
}

// Option configures the scheduler.
type Option func(*options)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
