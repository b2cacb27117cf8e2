// Package compaction runs the background maintenance loop that drives the
// TTL expiry sweep and the Merge eviction policy outside the request path.
// It never touches segment bytes or hashtable entries directly — it calls
// back into the same single-owner operations an external caller would
// use. Those take the engine's mutex, as every engine operation
// (get and insert included) does.
package compaction

import (
	"context"
	"time"

	"github.com/hashicorp/cronexpr"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ignitedb/ignite/pkg/clock"
)

// Target is the subset of engine operations the scheduler needs. It is
// defined here (rather than imported from internal/engine) so this
// package has no dependency on the façade — internal/engine depends on
// internal/compaction, not the reverse.
type Target interface {
	// ExpireSweep runs the TTL bucket expiry pass, budget segments at a
	// time (0 = exhaustive), returning how many segments it reclaimed.
	ExpireSweep(budget int) int

	// MergeCandidate runs one opportunistic Merge eviction pass,
	// returning whether a merge actually happened.
	MergeCandidate() bool
}

// Scheduler owns the background goroutine. Run it with Start and stop it
// with Stop; Stop blocks until the loop has exited.
type Scheduler struct {
	target       Target
	interval     time.Duration
	cronExpr     *cronexpr.Expression
	expireBudget int
	log          *zap.SugaredLogger

	wg     conc.WaitGroup
	cancel context.CancelFunc
}

// New builds a Scheduler. If cron is non-empty it takes precedence over
// interval for computing each run's delay.
func New(target Target, interval time.Duration, cron string, expireBudget int, log *zap.SugaredLogger) (*Scheduler, error) {
	s := &Scheduler{target: target, interval: interval, expireBudget: expireBudget, log: log}

	if cron != "" {
		expr, err := cronexpr.Parse(cron)
		if err != nil {
			return nil, err
		}
		s.cronExpr = expr
	}

	return s, nil
}

// Start launches the background loop. Call Stop to cancel and wait.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Go(func() { s.loop(ctx) })
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		if !clock.SleepInterruptibly(ctx, s.nextDelay()) {
			return
		}
		s.runOnce(ctx)
	}
}

func (s *Scheduler) nextDelay() time.Duration {
	if s.cronExpr == nil {
		return s.interval
	}
	next := s.cronExpr.Next(time.Now())
	return time.Until(next)
}

// runOnce starts the expire pass and the merge-candidate scan in two
// goroutines and waits for both. Both passes mutate segment chains; the
// Target is responsible for serialising them (the engine's
// implementations take its mutex), and no order between them is imposed.
func (s *Scheduler) runOnce(ctx context.Context) {
	g, _ := errgroup.WithContext(ctx)

	var reclaimed int
	var merged bool

	g.Go(func() error {
		reclaimed = s.target.ExpireSweep(s.expireBudget)
		return nil
	})
	g.Go(func() error {
		merged = s.target.MergeCandidate()
		return nil
	})

	_ = g.Wait()

	if s.log != nil {
		s.log.Infow("compaction pass complete", "segmentsReclaimed", reclaimed, "merged", merged)
	}
}
