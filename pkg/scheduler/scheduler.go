package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TickFunc is one unit of periodic work. The scheduler treats a returned
// error as a failed run: logged, never fatal to the loop.
type TickFunc func(ctx context.Context) error

// Scheduler drives registered tick functions on fixed intervals. It is a
// thin timer facility: all domain logic lives in the ticks themselves, so
// tests can call them directly and advance virtual time deterministically.
type Scheduler struct {
	mu     sync.Mutex
	jobs   []*job
	logger *slog.Logger
}

type job struct {
	name     string
	interval time.Duration
	fn       TickFunc
}

// New creates a scheduler.
func New(opts ...Option) *Scheduler {
	options := &options{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Scheduler{logger: options.logger}
}

// Add registers a periodic job. Names must be unique; they only serve
// logging and debugging.
func (s *Scheduler) Add(name string, interval time.Duration, fn TickFunc) error {
	if fn == nil {
		return ErrNilTickFunc
	}
	if interval <= 0 {
		return ErrInvalidInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.name == name {
			return ErrJobAlreadyRegistered
		}
	}

	s.jobs = append(s.jobs, &job{name: name, interval: interval, fn: fn})

	s.logger.Info("registered periodic job",
		slog.String("job_name", name),
		slog.Duration("interval", interval))

	return nil
}

// Start runs every registered job on its own ticker until the context is
// cancelled. Each job fires once immediately on start. Blocks until
// shutdown and returns the context's error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	jobs := make([]*job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	if len(jobs) == 0 {
		return ErrNoJobsRegistered
	}

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j *job) {
			defer wg.Done()
			s.runJob(ctx, j)
		}(j)
	}

	<-ctx.Done()
	wg.Wait()

	s.logger.Info("scheduler shut down")
	return ctx.Err()
}

func (s *Scheduler) runJob(ctx context.Context, j *job) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	s.tick(ctx, j)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, j)
		}
	}
}

// tick runs one job iteration, isolating panics so a single bad run never
// takes down the scheduler.
func (s *Scheduler) tick(ctx context.Context, j *job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("periodic job panicked",
				slog.String("job_name", j.name),
				slog.String("panic", fmt.Sprint(r)))
		}
	}()

	started := time.Now()
	if err := j.fn(ctx); err != nil {
		s.logger.Error("periodic job failed",
			slog.String("job_name", j.name),
			slog.Duration("elapsed", time.Since(started)),
			slog.String("error", err.Error()))
		return
	}

	s.logger.Debug("periodic job completed",
		slog.String("job_name", j.name),
		slog.Duration("elapsed", time.Since(started)))
}
