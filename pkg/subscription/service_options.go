package subscription

import (
	"log/slog"
	"time"
)

// ServiceOption configures optional service settings.
type ServiceOption func(*service)

// WithLogger sets the structured logger used by the service and its
// background ticks. Defaults to slog.Default().
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithConfig replaces the whole configuration. Zero fields fall back to
// defaults during validation.
func WithConfig(cfg Config) ServiceOption {
	return func(s *service) {
		s.cfg = cfg
	}
}

// WithClock injects a time source so tests can advance virtual time
// deterministically instead of waiting on wall-clock intervals.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithNotifier sets the notification dispatch collaborator.
// Defaults to a LogNotifier.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *service) {
		if n != nil {
			s.notifier = n
		}
	}
}
