package converge

import (
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/strata/pkg/resource"
)

// State is where a resource ended up in a run
type State string

const (
	StatePending   State = "pending"
	StateSkipped   State = "skipped"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

var (
	// ErrNotificationLoop is returned when immediate notifications chain
	// deeper than the executor allows.
	ErrNotificationLoop = errors.New("immediate notification chain too deep")
)

// ResourceError is a failed resource action
type ResourceError struct {
	ID     resource.ID
	Action resource.Action
	Err    error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s action %s failed: %v", e.ID, e.Action, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// Result records one evaluation of a resource. A resource notified more
// than once appears once per evaluation.
type Result struct {
	ID     resource.ID
	Action resource.Action
	State  State

	// UpToDate is set on success when the resource found nothing to change.
	UpToDate bool

	// Reason explains a skip.
	Reason string

	// Trigger is empty for the main pass, otherwise the timing of the
	// notification that caused this evaluation.
	Trigger string

	Err      error
	Duration time.Duration
}

// Changed reports whether the resource mutated anything
func (r Result) Changed() bool {
	return r.State == StateSucceeded && !r.UpToDate
}

// Report summarises a convergence run
type Report struct {
	RunID    string
	Started  time.Time
	Duration time.Duration
	Results  []Result

	// Warnings aggregates guard probe failures and best-effort failures.
	Warnings error

	// Err is the fatal error that aborted the run, if any.
	Err error
}

// Updated returns the results that changed something
func (r *Report) Updated() []Result {
	return r.filter(Result.Changed)
}

// Failed returns failed results, best-effort ones included
func (r *Report) Failed() []Result {
	return r.filter(func(res Result) bool { return res.State == StateFailed })
}

// Skipped returns guarded skips
func (r *Report) Skipped() []Result {
	return r.filter(func(res Result) bool { return res.State == StateSkipped })
}

// For returns every evaluation of id in run order
func (r *Report) For(id resource.ID) []Result {
	return r.filter(func(res Result) bool { return res.ID == id })
}

func (r *Report) filter(keep func(Result) bool) []Result {
	var out []Result
	for _, res := range r.Results {
		if keep(res) {
			out = append(out, res)
		}
	}
	return out
}
