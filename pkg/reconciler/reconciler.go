package reconciler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/strata/pkg/converge"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/rs/zerolog"
)

// Component is the name the loop reports under in the health registry
const Component = "converge"

// DefaultInterval is used when the reconciler is given a non-positive interval
const DefaultInterval = 30 * time.Minute

// RunFunc performs one convergence cycle. It rebuilds the resource graph
// from the current attributes each time so that status written by the
// previous cycle is honoured.
type RunFunc func(ctx context.Context) (*converge.Report, error)

// Reconciler re-runs convergence on an interval until stopped
type Reconciler struct {
	run      RunFunc
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.RWMutex
	last   *converge.Report
	cycles int

	started  atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewReconciler creates a new reconciler
func NewReconciler(run RunFunc, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{
		run:      run,
		interval: interval,
		logger:   log.WithComponent("reconciler"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// WithLogger replaces the reconciler's logger
func (r *Reconciler) WithLogger(logger zerolog.Logger) *Reconciler {
	r.logger = logger
	return r
}

// Start runs the first cycle immediately and then one per interval
func (r *Reconciler) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	metrics.RegisterComponent(Component, false, "waiting for first run")
	go r.loop(ctx)
}

// Stop ends the loop and waits for an in-flight cycle to finish. Safe to
// call more than once.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	if r.started.Load() {
		<-r.doneCh
	}
}

// Done is closed once the loop has exited
func (r *Reconciler) Done() <-chan struct{} {
	return r.doneCh
}

// LastReport returns the report of the most recent cycle, or nil
func (r *Reconciler) LastReport() *converge.Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Cycles returns how many cycles have completed
func (r *Reconciler) Cycles() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cycles
}

func (r *Reconciler) loop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.reconcile(ctx)
	for {
		select {
		case <-ticker.C:
			r.reconcile(ctx)
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// reconcile performs one cycle. Failures are reported, never fatal to the loop.
func (r *Reconciler) reconcile(ctx context.Context) {
	timer := metrics.NewTimer()

	report, err := r.run(ctx)

	r.mu.Lock()
	r.last = report
	r.cycles++
	cycle := r.cycles
	r.mu.Unlock()

	if err != nil {
		metrics.UpdateComponent(Component, false, err.Error())
		r.logger.Error().
			Err(err).
			Int("cycle", cycle).
			Dur("duration", timer.Duration()).
			Msg("Reconciliation cycle failed")
		return
	}

	msg := "converged"
	if report != nil {
		msg = fmt.Sprintf("run %s updated %d resources", report.RunID, len(report.Updated()))
	}
	metrics.UpdateComponent(Component, true, msg)
	r.logger.Info().
		Int("cycle", cycle).
		Dur("duration", timer.Duration()).
		Dur("next_in", r.interval).
		Msg("Reconciliation cycle completed")
}
