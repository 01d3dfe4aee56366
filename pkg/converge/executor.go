package converge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/strata/pkg/events"
	"github.com/cuemby/strata/pkg/guard"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/platform"
	"github.com/cuemby/strata/pkg/resource"
	"github.com/cuemby/strata/pkg/shell"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// DefaultMaxNotificationDepth bounds chains of immediate notifications
const DefaultMaxNotificationDepth = 16

// Collaborators are the external systems resource actions are applied to.
// A nil collaborator fails only the resources that need it.
type Collaborators struct {
	Runner   shell.Runner
	Packages platform.PackageManager
	Renderer platform.Renderer
	Services platform.ServiceManager
}

// Executor walks a resource graph and applies it
type Executor struct {
	collab   Collaborators
	guards   *guard.Evaluator
	broker   *events.Broker
	logger   zerolog.Logger
	maxDepth int
}

// NewExecutor creates an executor
func NewExecutor(collab Collaborators) *Executor {
	return &Executor{
		collab:   collab,
		guards:   guard.NewEvaluator(),
		logger:   log.WithComponent("converge"),
		maxDepth: DefaultMaxNotificationDepth,
	}
}

// WithLogger replaces the executor's logger
func (e *Executor) WithLogger(logger zerolog.Logger) *Executor {
	e.logger = logger
	e.guards.WithLogger(logger)
	return e
}

// WithBroker publishes progress events to b
func (e *Executor) WithBroker(b *events.Broker) *Executor {
	e.broker = b
	return e
}

// WithMaxNotificationDepth sets how deep immediate notifications may chain
func (e *Executor) WithMaxNotificationDepth(depth int) *Executor {
	e.maxDepth = depth
	return e
}

// run is the state of one convergence pass
type run struct {
	*Executor
	graph    *resource.Graph
	report   *Report
	logger   zerolog.Logger
	warnings *multierror.Error
	delayed  []resource.Notification
	queued   map[resource.ID]bool
}

// Converge applies g once. Resources run in declaration order; a fatal
// failure stops the main pass and skips the delayed queue. The report is
// returned in every case.
func (e *Executor) Converge(ctx context.Context, g *resource.Graph) (*Report, error) {
	report := &Report{
		RunID:   uuid.NewString(),
		Started: time.Now(),
	}
	r := &run{
		Executor: e,
		graph:    g,
		report:   report,
		logger:   log.WithRun(e.logger, report.RunID),
		queued:   make(map[resource.ID]bool),
	}

	timer := metrics.NewTimer()
	r.publish(events.EventConvergeStarted, "", fmt.Sprintf("converging %d resources", g.Len()))
	r.logger.Info().Int("resources", g.Len()).Msg("Convergence started")

	err := r.execute(ctx)

	report.Duration = timer.Duration()
	report.Warnings = r.warnings.ErrorOrNil()
	report.Err = err
	timer.ObserveDuration(metrics.ConvergeDuration)
	metrics.ResourcesUpdated.Set(float64(len(report.Updated())))

	if err != nil {
		metrics.ConvergeRunsTotal.WithLabelValues("failure").Inc()
		r.publish(events.EventConvergeFailed, "", err.Error())
		r.logger.Error().
			Err(err).
			Dur("duration", report.Duration).
			Msg("Convergence failed")
		return report, err
	}

	metrics.ConvergeRunsTotal.WithLabelValues("success").Inc()
	r.publish(events.EventConvergeCompleted, "", fmt.Sprintf("%d resources updated", len(report.Updated())))
	r.logger.Info().
		Int("updated", len(report.Updated())).
		Int("skipped", len(report.Skipped())).
		Dur("duration", report.Duration).
		Msg("Convergence completed")
	return report, nil
}

func (r *run) execute(ctx context.Context) error {
	if err := r.graph.Validate(); err != nil {
		return fmt.Errorf("invalid resource graph: %w", err)
	}

	for _, res := range r.graph.Resources() {
		if res.Action == resource.ActionNothing {
			r.logger.Debug().Str(log.FieldResource, res.ID.String()).Msg("Waiting for notification")
			continue
		}
		if err := r.apply(ctx, res, res.Action, "", 0); err != nil {
			return err
		}
	}

	// Delayed targets may queue further delayed work; it runs in this
	// same drain.
	for i := 0; i < len(r.delayed); i++ {
		n := r.delayed[i]
		target, _ := r.graph.Lookup(n.Target)
		if err := r.apply(ctx, target, n.Action, resource.Delayed.String(), 0); err != nil {
			return err
		}
	}
	return nil
}

// apply evaluates guards and runs one action of res. It returns an error
// only when the run must stop.
func (r *run) apply(ctx context.Context, res *resource.Resource, action resource.Action, trigger string, depth int) error {
	logger := log.WithResource(r.logger, res.ID.String()).With().Str("action", string(action)).Logger()
	result := Result{ID: res.ID, Action: action, State: StatePending, Trigger: trigger}

	decision := r.guards.Evaluate(ctx, res.Guards)
	if decision.Warnings != nil {
		r.warnings = multierror.Append(r.warnings, fmt.Errorf("%s: %w", res.ID, decision.Warnings))
	}
	if !decision.Run {
		result.State = StateSkipped
		result.Reason = decision.Reason
		r.record(result)
		logger.Debug().Str("reason", decision.Reason).Msg("Skipped by guard")
		return nil
	}

	result.State = StateRunning
	start := time.Now()
	changed, err := r.perform(ctx, res, action)
	result.Duration = time.Since(start)

	if err != nil {
		rerr := &ResourceError{ID: res.ID, Action: action, Err: err}
		result.State = StateFailed
		result.Err = rerr
		r.record(result)

		event := logger.Error()
		if res.BestEffort {
			event = logger.Warn()
		}
		event = event.Err(rerr)
		var cmdErr *shell.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Output() != "" {
			event = event.Str("output", cmdErr.Output())
		}

		if res.BestEffort {
			r.warnings = multierror.Append(r.warnings, rerr)
			event.Msg("Resource failed, continuing")
			return nil
		}
		event.Msg("Resource failed")
		return rerr
	}

	result.State = StateSucceeded
	result.UpToDate = !changed
	r.record(result)
	if !changed {
		logger.Debug().Msg("Up to date")
		return nil
	}
	logger.Info().Dur("duration", result.Duration).Msg("Resource updated")

	for _, n := range res.Notifies {
		if n.Timing == resource.Delayed {
			// one run per target; the first registered action wins
			if !r.queued[n.Target] {
				r.queued[n.Target] = true
				r.delayed = append(r.delayed, n)
			}
			metrics.NotificationsTotal.WithLabelValues(n.Timing.String()).Inc()
			continue
		}

		if depth >= r.maxDepth {
			return fmt.Errorf("%w: %s notifying %s", ErrNotificationLoop, res.ID, n.Target)
		}
		metrics.NotificationsTotal.WithLabelValues(n.Timing.String()).Inc()
		target, _ := r.graph.Lookup(n.Target)
		logger.Debug().Str("target", n.Target.String()).Msg("Notifying immediately")
		if err := r.apply(ctx, target, n.Action, resource.Immediate.String(), depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) record(result Result) {
	r.report.Results = append(r.report.Results, result)

	state := string(result.State)
	eventType := events.EventResourceFailed
	switch {
	case result.State == StateSkipped:
		eventType = events.EventResourceSkipped
	case result.Changed():
		state = "updated"
		eventType = events.EventResourceUpdated
	case result.State == StateSucceeded:
		state = "up_to_date"
		eventType = events.EventResourceUpToDate
	}
	metrics.ResourcesTotal.WithLabelValues(string(result.ID.Kind), state).Inc()

	msg := result.Reason
	if result.Err != nil {
		msg = result.Err.Error()
	}
	r.publish(eventType, result.ID.String(), msg)
}

func (r *run) publish(t events.EventType, res, msg string) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(&events.Event{
		Type:     t,
		RunID:    r.report.RunID,
		Resource: res,
		Message:  msg,
	})
}
