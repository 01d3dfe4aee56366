package guard

import (
	"context"
	"fmt"

	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// Decision is the outcome of evaluating a resource's guards.
type Decision struct {
	Run bool

	// Reason names the predicate that prevented the run.
	Reason string

	// Warnings collects probe failures. They never change the rule, a
	// failed probe simply counts as false.
	Warnings error
}

// Evaluator applies the guard combination rule.
type Evaluator struct {
	logger zerolog.Logger
}

// NewEvaluator creates an evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{logger: log.WithComponent("guard")}
}

// WithLogger replaces the evaluator's logger
func (e *Evaluator) WithLogger(logger zerolog.Logger) *Evaluator {
	e.logger = logger
	return e
}

// Evaluate runs when every only_if predicate holds and no not_if predicate
// holds. Predicates are probed fresh on every call, in declaration order,
// stopping at the first one that decides the outcome.
func (e *Evaluator) Evaluate(ctx context.Context, g Guards) Decision {
	var warnings *multierror.Error

	for _, p := range g.OnlyIf {
		ok, err := e.check(ctx, p)
		if err != nil {
			warnings = multierror.Append(warnings, err)
		}
		if !ok {
			return Decision{Reason: "only_if " + p.String(), Warnings: warnings.ErrorOrNil()}
		}
	}

	for _, p := range g.NotIf {
		ok, err := e.check(ctx, p)
		if err != nil {
			warnings = multierror.Append(warnings, err)
		}
		if ok {
			return Decision{Reason: "not_if " + p.String(), Warnings: warnings.ErrorOrNil()}
		}
	}

	return Decision{Run: true, Warnings: warnings.ErrorOrNil()}
}

// check evaluates one predicate, mapping a probe failure to false.
func (e *Evaluator) check(ctx context.Context, p Predicate) (bool, error) {
	ok, err := p.Check(ctx)
	if err == nil {
		return ok, nil
	}

	metrics.GuardProbeFailures.Inc()
	e.logger.Warn().
		Err(err).
		Str("predicate", p.String()).
		Msg("Guard probe failed, treating as false")

	return false, fmt.Errorf("guard %s: %w", p, err)
}
