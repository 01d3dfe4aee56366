package mgr

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"github.com/cuemby/strata/pkg/converge"
	"github.com/cuemby/strata/pkg/resource"
	"github.com/cuemby/strata/pkg/shell/shelltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServices struct {
	state map[string][2]bool
}

func (f *fakeServices) SetState(_ context.Context, name string, enabled, running bool) (bool, error) {
	want := [2]bool{enabled, running}
	if f.state[name] == want {
		return false, nil
	}
	f.state[name] = want
	return true, nil
}

func (f *fakeServices) Restart(context.Context, string) error { return nil }

func TestServiceName(t *testing.T) {
	assert.Equal(t, "ceph-mgr@mon1", Options{Hostname: "mon1", InitStyle: "systemd"}.ServiceName())
	assert.Equal(t, "ceph-mgr-all-starter", Options{Hostname: "mon1", InitStyle: "upstart"}.ServiceName())
	assert.Equal(t, "/var/lib/ceph/mgr/ceph-mon1", Options{Cluster: "ceph", Hostname: "mon1"}.Dir())
}

func TestPlanBootstrapsOnce(t *testing.T) {
	opts := Options{
		Cluster:   "ceph",
		Hostname:  "mon1",
		Mode:      0750,
		InitStyle: "systemd",
		DataDir:   t.TempDir(),
	}
	runner := shelltest.New().On("ceph --cluster ceph auth get-or-create mgr.mon1", shelltest.Response{
		Stdout: "[mgr.mon1]\n\tkey = AQmgr==\n",
	})
	services := &fakeServices{state: map[string][2]bool{}}
	exec := converge.NewExecutor(converge.Collaborators{Runner: runner, Services: services})

	build := func() *resource.Graph {
		g := resource.NewGraph()
		require.NoError(t, Plan(g, opts))
		return g
	}

	report, err := exec.Converge(context.Background(), build())
	require.NoError(t, err)
	assert.Len(t, report.Updated(), 4)

	keyring := filepath.Join(opts.Dir(), "keyring")
	data, err := os.ReadFile(keyring)
	require.NoError(t, err)
	assert.Contains(t, string(data), "key = AQmgr==")
	info, err := os.Stat(keyring)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	assert.FileExists(t, filepath.Join(opts.Dir(), "done"))
	assert.FileExists(t, filepath.Join(opts.Dir(), "systemd"))
	assert.Equal(t, [2]bool{true, true}, services.state["ceph-mgr@mon1"])

	runner.Reset()
	report, err = exec.Converge(context.Background(), build())
	require.NoError(t, err)
	assert.Empty(t, report.Updated())
	assert.Empty(t, runner.Lines())
}

func TestKeyringOwnedByDaemonUser(t *testing.T) {
	uid, gid := strconv.Itoa(os.Getuid()), strconv.Itoa(os.Getgid())
	opts := Options{
		Cluster:   "ceph",
		Hostname:  "mon1",
		Owner:     uid,
		Group:     gid,
		Mode:      0750,
		InitStyle: "systemd",
		DataDir:   t.TempDir(),
	}

	g := resource.NewGraph()
	require.NoError(t, Plan(g, opts))
	res, ok := g.Lookup(resource.ID{Kind: resource.KindExecute, Name: "format ceph-mgr-secret as keyring"})
	require.True(t, ok)
	spec := res.Spec.(resource.ExecuteSpec)
	assert.Equal(t, uid, spec.StdoutOwner)
	assert.Equal(t, gid, spec.StdoutGroup)

	runner := shelltest.New().On("ceph --cluster ceph auth get-or-create mgr.mon1", shelltest.Response{
		Stdout: "[mgr.mon1]\n\tkey = AQmgr==\n",
	})
	exec := converge.NewExecutor(converge.Collaborators{
		Runner:   runner,
		Services: &fakeServices{state: map[string][2]bool{}},
	})
	_, err := exec.Converge(context.Background(), g)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(opts.Dir(), "keyring"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	st, ok := info.Sys().(*syscall.Stat_t)
	require.True(t, ok)
	assert.Equal(t, uint32(os.Getuid()), st.Uid)
	assert.Equal(t, uint32(os.Getgid()), st.Gid)
}
