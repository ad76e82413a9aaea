package consolidation

import (
	"context"
	"log"
	"time"
)

// jobSpec is one of the pipeline's independently enable-able scheduled
// passes (spec §4.H: "Scheduled passes, each independently enable-able").
type jobSpec struct {
	name string
	run  func(context.Context) StageResult
	next func(from time.Time) time.Time
}

// Scheduler fires each consolidation stage on its own cron-like cadence:
// decay daily 02:00, associative discovery daily 02:30, clustering weekly
// Sunday 03:00, compression weekly Sunday 03:30, forgetting monthly on the
// 1st at 04:00. Grounded on the embedded backup service's
// ticker/stop-channel loop shape, generalized from a fixed interval to a
// next-occurrence-at-HH:MM computation per job.
type Scheduler struct {
	pipeline *Pipeline
	stopCh   chan struct{}
	jobs     []jobSpec
}

// NewScheduler builds a Scheduler over an already-constructed Pipeline,
// wiring up the five default job cadences from spec §4.H.
func NewScheduler(p *Pipeline) *Scheduler {
	s := &Scheduler{pipeline: p, stopCh: make(chan struct{})}
	s.jobs = []jobSpec{
		{name: "decay", run: p.runDecay, next: nextDailyAt(2, 0)},
		{name: "associative_discovery", run: p.runAssociativeDiscovery, next: nextDailyAt(2, 30)},
		{name: "clustering", run: p.runClustering, next: nextWeeklyAt(time.Sunday, 3, 0)},
		{name: "compression", run: p.runCompression, next: nextWeeklyAt(time.Sunday, 3, 30)},
		{name: "forgetting", run: p.runForgetting, next: nextMonthlyAt(1, 4, 0)},
	}
	return s
}

// Run blocks, firing each job as its next occurrence arrives, until ctx is
// cancelled or Stop is called. Each job runs against the pipeline's own
// mutex (RunAll-style serialization happens per-stage here, not per-run,
// since jobs fire independently rather than all at once).
func (s *Scheduler) Run(ctx context.Context) error {
	timers := make([]*time.Timer, len(s.jobs))
	now := time.Now()
	for i, j := range s.jobs {
		timers[i] = time.NewTimer(time.Until(j.next(now)))
	}
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	log.Printf("consolidation: scheduler started with %d jobs", len(s.jobs))

	for {
		cases := make([]<-chan time.Time, len(timers))
		for i, t := range timers {
			cases[i] = t.C
		}

		select {
		case <-ctx.Done():
			log.Println("consolidation: scheduler stopping (context cancelled)")
			return ctx.Err()
		case <-s.stopCh:
			log.Println("consolidation: scheduler stopping (stop requested)")
			return nil
		default:
		}

		fired := s.waitNext(ctx, timers)
		if fired < 0 {
			return ctx.Err()
		}

		job := s.jobs[fired]
		s.pipeline.mu.Lock()
		r := job.run(ctx)
		s.pipeline.mu.Unlock()
		if r.Err != nil {
			log.Printf("consolidation: scheduled job %s failed: %v", job.name, r.Err)
		} else {
			log.Printf("consolidation: scheduled job %s processed=%d produced=%d", job.name, r.Processed, r.Produced)
		}

		timers[fired].Reset(time.Until(job.next(time.Now())))
	}
}

// waitNext blocks until the earliest of timers, ctx.Done, or stopCh fires,
// returning the index of the timer that fired, or -1 on cancellation.
func (s *Scheduler) waitNext(ctx context.Context, timers []*time.Timer) int {
	type result struct{ idx int }
	done := make(chan result, 1)
	stop := make(chan struct{})
	defer close(stop)

	for i, t := range timers {
		go func(i int, c <-chan time.Time) {
			select {
			case <-c:
				select {
				case done <- result{i}:
				case <-stop:
				}
			case <-stop:
			}
		}(i, t.C)
	}

	select {
	case <-ctx.Done():
		return -1
	case <-s.stopCh:
		return -1
	case r := <-done:
		return r.idx
	}
}

// Stop signals Run to exit.
func (s *Scheduler) Stop() { close(s.stopCh) }

func nextDailyAt(hour, minute int) func(time.Time) time.Time {
	return func(from time.Time) time.Time {
		next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
}

func nextWeeklyAt(weekday time.Weekday, hour, minute int) func(time.Time) time.Time {
	return func(from time.Time) time.Time {
		next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
		for next.Weekday() != weekday || !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	}
}

func nextMonthlyAt(day, hour, minute int) func(time.Time) time.Time {
	return func(from time.Time) time.Time {
		next := time.Date(from.Year(), from.Month(), day, hour, minute, 0, 0, from.Location())
		if !next.After(from) {
			next = time.Date(from.Year(), from.Month()+1, day, hour, minute, 0, 0, from.Location())
		}
		return next
	}
}
