package shell

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunnerSuccess(t *testing.T) {
	r := NewExecRunner(0)

	res, err := r.Run(context.Background(), Shell("echo hello; echo oops >&2"))
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.NoError(t, res.Err())
}

func TestExecRunnerNonZeroExit(t *testing.T) {
	r := NewExecRunner(0)

	res, err := r.Run(context.Background(), Shell("echo broken >&2; exit 3"))
	require.NoError(t, err, "non-zero exit is reported through the result")
	assert.Equal(t, 3, res.ExitCode)

	var cmdErr *CommandError
	require.True(t, errors.As(res.Err(), &cmdErr))
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Contains(t, cmdErr.Error(), "broken")
	assert.Equal(t, "broken\n", cmdErr.Output())
}

func TestExecRunnerMissingBinary(t *testing.T) {
	r := NewExecRunner(0)

	_, err := r.Run(context.Background(), New("definitely-not-a-real-binary-strata"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestExecRunnerTimeout(t *testing.T) {
	r := NewExecRunner(50 * time.Millisecond)

	_, err := r.Run(context.Background(), Shell("exec sleep 5"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestExecRunnerIgnoresCallerCancel(t *testing.T) {
	r := NewExecRunner(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.Run(ctx, Shell("echo done"))
	require.NoError(t, err)
	assert.Equal(t, "done\n", res.Stdout)
}

func TestExecRunnerStdin(t *testing.T) {
	r := NewExecRunner(0)
	cmd := New("cat")
	cmd.Stdin = "from stdin"

	out, err := Output(context.Background(), r, cmd)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", out)
}

func TestSensitiveRedaction(t *testing.T) {
	cmd := New("ceph-authtool", "--add-key=AQBsecret")
	cmd.Sensitive = true

	assert.Equal(t, "ceph-authtool [sensitive]", cmd.String())

	res := &Result{Command: cmd, ExitCode: 1, Stderr: "AQBsecret rejected"}
	err := res.Err()
	require.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "AQBsecret"))
	assert.Empty(t, err.(*CommandError).Output())
}
