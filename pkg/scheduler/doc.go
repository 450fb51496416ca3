// Package scheduler provides a minimal periodic job driver for background
// ticks such as subscription renewals and waiting-list promotions.
//
// Jobs are plain functions registered with a name and an interval. Start
// runs each job on its own ticker, fires every job once immediately, and
// stops when the context is cancelled. Errors and panics from a job are
// logged and isolated; they never stop the loop or affect other jobs.
//
//	sched := scheduler.New(scheduler.WithLogger(logger))
//	_ = sched.Add("subscription-renewals", time.Hour, svc.RunRenewalTick)
//	_ = sched.Add("waitlist-promotions", 30*time.Minute, svc.RunPromotionTick)
//
//	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
//		log.Fatal(err)
//	}
//
// Because jobs are ordinary functions, tests exercise the domain logic by
// invoking the tick directly instead of waiting on wall-clock time.
package scheduler
