package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrNotFound is returned when the command binary cannot be located
var ErrNotFound = errors.New("command not found")

// Command describes one external process invocation
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string
	Stdin string

	// Timeout overrides the runner default. Zero means the runner default.
	Timeout time.Duration

	// Sensitive hides arguments and output from logs and error messages.
	Sensitive bool
}

// New builds a Command from a name and arguments
func New(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

// Shell builds a Command that runs script through /bin/sh -c
func Shell(script string) Command {
	return Command{Name: "/bin/sh", Args: []string{"-c", script}}
}

// Argv returns the full argument vector including the command name
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// String renders the command for logs, redacted when sensitive
func (c Command) String() string {
	if c.Sensitive {
		return c.Name + " [sensitive]"
	}
	return strings.Join(c.Argv(), " ")
}

// Result is the outcome of a command that was started
type Result struct {
	Command  Command
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success reports whether the command exited 0
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Err returns a *CommandError when the command exited non-zero
func (r *Result) Err() error {
	if r.Success() {
		return nil
	}
	return &CommandError{
		Argv:     r.Command.Argv(),
		ExitCode: r.ExitCode,
		Stdout:   r.Stdout,
		Stderr:   r.Stderr,
		redact:   r.Command.Sensitive,
	}
}

// CommandError describes a command that ran and exited non-zero
type CommandError struct {
	Argv     []string
	ExitCode int
	Stdout   string
	Stderr   string

	redact bool
}

func (e *CommandError) Error() string {
	name := ""
	if len(e.Argv) > 0 {
		name = e.Argv[0]
	}
	if e.redact {
		return fmt.Sprintf("%s exited with status %d", name, e.ExitCode)
	}
	msg := fmt.Sprintf("%s exited with status %d", strings.Join(e.Argv, " "), e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Output returns combined stdout and stderr, empty when redacted
func (e *CommandError) Output() string {
	if e.redact {
		return ""
	}
	return e.Stdout + e.Stderr
}

// Runner executes external commands
type Runner interface {
	// Run starts the command and waits for it. The error is non-nil only when
	// the process could not be started or was killed by its timeout; a
	// non-zero exit status is reported through Result.
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands on the local host with os/exec
type ExecRunner struct {
	// DefaultTimeout applies to commands without their own timeout. Zero means none.
	DefaultTimeout time.Duration
}

// NewExecRunner creates a runner with the given default timeout
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{DefaultTimeout: timeout}
}

// Run executes the command. In-flight commands are not cancelled with ctx;
// only the process-level timeout stops them.
func (r *ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	if _, err := exec.LookPath(c.Name); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, c.Name)
	}

	execCtx := context.WithoutCancel(ctx)
	timeout := c.Timeout
	if timeout == 0 {
		timeout = r.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(execCtx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(execCtx, c.Name, c.Args...)
	cmd.WaitDelay = time.Second
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Command:  c,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return res, fmt.Errorf("%s timed out after %v", c.String(), timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, fmt.Errorf("failed to run %s: %w", c.String(), err)
	}

	return res, nil
}

// Output runs the command and returns stdout, failing on non-zero exit
func Output(ctx context.Context, r Runner, c Command) (string, error) {
	res, err := r.Run(ctx, c)
	if err != nil {
		return "", err
	}
	if err := res.Err(); err != nil {
		return "", err
	}
	return res.Stdout, nil
}
