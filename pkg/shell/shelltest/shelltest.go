// Package shelltest provides a scripted shell.Runner for tests.
package shelltest

import (
	"context"
	"strings"
	"sync"

	"github.com/cuemby/strata/pkg/shell"
)

// Response is the scripted outcome of a matched command
type Response struct {
	ExitCode int
	Stdout   string
	Stderr   string

	// Err simulates a command that could not be started.
	Err error
}

type rule struct {
	match     func(line string) bool
	responses []Response
	served    int
	fn        func(cmd shell.Command) Response
}

func (r *rule) next(cmd shell.Command) Response {
	if r.fn != nil {
		return r.fn(cmd)
	}
	resp := r.responses[len(r.responses)-1]
	if r.served < len(r.responses) {
		resp = r.responses[r.served]
	}
	r.served++
	return resp
}

// Runner records every command and answers from registered rules. Later
// rules take precedence over earlier ones; unmatched commands exit 0 with
// no output.
type Runner struct {
	mu    sync.Mutex
	rules []*rule
	calls []shell.Command
}

// New creates an empty fake runner
func New() *Runner {
	return &Runner{}
}

// On answers commands whose joined argv starts with prefix. When several
// responses are given they are served in order and the last one repeats.
func (r *Runner) On(prefix string, responses ...Response) *Runner {
	if len(responses) == 0 {
		responses = []Response{{}}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, &rule{
		match:     func(line string) bool { return strings.HasPrefix(line, prefix) },
		responses: responses,
	})
	return r
}

// OnFunc answers commands whose joined argv starts with prefix by calling fn
func (r *Runner) OnFunc(prefix string, fn func(cmd shell.Command) Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, &rule{
		match: func(line string) bool { return strings.HasPrefix(line, prefix) },
		fn:    fn,
	})
	return r
}

// Run implements shell.Runner
func (r *Runner) Run(_ context.Context, cmd shell.Command) (*shell.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	line := Line(cmd)
	var matched *rule
	for i := len(r.rules) - 1; i >= 0; i-- {
		if r.rules[i].match(line) {
			matched = r.rules[i]
			break
		}
	}
	var resp Response
	if matched != nil {
		resp = matched.next(cmd)
	}
	r.mu.Unlock()

	if resp.Err != nil {
		return nil, resp.Err
	}
	return &shell.Result{
		Command:  cmd,
		ExitCode: resp.ExitCode,
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
	}, nil
}

// Calls returns every command run so far
func (r *Runner) Calls() []shell.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shell.Command(nil), r.calls...)
}

// Lines returns every command run so far as joined argv strings
func (r *Runner) Lines() []string {
	calls := r.Calls()
	lines := make([]string, 0, len(calls))
	for _, c := range calls {
		lines = append(lines, Line(c))
	}
	return lines
}

// Matching returns the joined argv of recorded commands starting with prefix
func (r *Runner) Matching(prefix string) []string {
	var out []string
	for _, l := range r.Lines() {
		if strings.HasPrefix(l, prefix) {
			out = append(out, l)
		}
	}
	return out
}

// Reset forgets recorded calls but keeps the rules
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Line joins a command's argv with single spaces
func Line(cmd shell.Command) string {
	return strings.Join(cmd.Argv(), " ")
}
