package federation

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cuemby/strata/pkg/attributes"
	"github.com/cuemby/strata/pkg/cephadm"
	"github.com/cuemby/strata/pkg/config"
	"github.com/cuemby/strata/pkg/converge"
	"github.com/cuemby/strata/pkg/platform"
	"github.com/cuemby/strata/pkg/resource"
	"github.com/cuemby/strata/pkg/security"
	"github.com/cuemby/strata/pkg/shell/shelltest"
	"github.com/cuemby/strata/pkg/types"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const existingKey = "AQBSdFhaAAAAABAAvLVRMDr3Tb8rmmfjZuyJ3w=="

var mutating = []string{
	"--gen-key", "--add-key", "--create-keyring", " auth add ",
	"realm create", "zonegroup set", "zone set", "zonegroup default",
}

func mutatingCalls(lines []string) []string {
	var out []string
	for _, l := range lines {
		for _, m := range mutating {
			if strings.Contains(l, m) {
				out = append(out, l)
				break
			}
		}
	}
	return out
}

type fixture struct {
	cluster *fakeCluster
	runner  *shelltest.Runner
	store   *attributes.Store
	secrets *SecretStore
	opts    Options
	fed     config.Federation
}

func newFixture(t *testing.T, instances ...types.ZoneInstance) *fixture {
	t.Helper()
	root := t.TempDir()
	opts := DefaultOptions("ceph")
	opts.ConfDir = filepath.Join(root, "etc")
	opts.LogDir = filepath.Join(root, "log")
	opts.DataDir = filepath.Join(root, "lib")
	require.NoError(t, os.MkdirAll(opts.ConfDir, 0755))

	cluster := newFakeCluster()
	store := attributes.New(nil)
	return &fixture{
		cluster: cluster,
		runner:  cluster.runner(),
		store:   store,
		secrets: NewSecretStore(store, "ceph", nil),
		opts:    opts,
		fed: config.Federation{
			Enable:                true,
			EnableZonegroupsZones: true,
			Instances:             instances,
		},
	}
}

func (f *fixture) converge(t *testing.T) *converge.Report {
	t.Helper()
	g := resource.NewGraph()
	b := NewBuilder(f.fed, f.opts, cephadm.NewCLI(f.runner, "ceph"), f.secrets)
	require.NoError(t, b.Build(g))

	renderer, err := platform.NewTemplateRenderer("")
	require.NoError(t, err)
	report, err := converge.NewExecutor(converge.Collaborators{Runner: f.runner, Renderer: renderer}).
		Converge(context.Background(), g)
	require.NoError(t, err)
	return report
}

var east = types.ZoneInstance{Zonegroup: "us", Name: "east", URL: "rgw1.example.com", Port: 8080}

func matching(lines []string, substr string) []string {
	var out []string
	for _, l := range lines {
		if strings.Contains(l, substr) {
			out = append(out, l)
		}
	}
	return out
}

func TestBuildTopologyOrder(t *testing.T) {
	f := newFixture(t, east)
	f.converge(t)

	var ops []string
	for _, l := range f.runner.Lines() {
		for _, op := range []string{"realm create", "zonegroup set", "zone set", "zonegroup default"} {
			if strings.Contains(l, op) {
				ops = append(ops, op)
			}
		}
	}
	if diff := cmp.Diff([]string{"realm create", "zonegroup set", "zone set", "zonegroup default"}, ops); diff != "" {
		t.Errorf("topology order mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{"gold"}, f.cluster.realms)
	assert.True(t, f.cluster.zonegroups["us"])
	assert.True(t, f.cluster.zones["us-east"], "non-multisite zones use the combined identity")
	assert.Equal(t, "us", f.cluster.defaultZG)

	zg, err := os.ReadFile(filepath.Join(f.opts.ConfDir, "us-east-zonegroup.json"))
	require.NoError(t, err)
	assert.Contains(t, string(zg), `"master_zone": "us-east"`)
	assert.Contains(t, string(zg), `"http://rgw1.example.com:8080/"`)
	assert.FileExists(t, filepath.Join(f.opts.ConfDir, "us-east-zonegroup-map.json"))
	zone, err := os.ReadFile(filepath.Join(f.opts.ConfDir, "us-east-zone.json"))
	require.NoError(t, err)
	assert.Contains(t, string(zone), `"name": "us-east"`)

	dir := filepath.Join(f.opts.DataDir, "ceph-radosgw.us-east")
	assert.FileExists(t, filepath.Join(dir, "done"))
	assert.FileExists(t, filepath.Join(dir, "systemd"))
	assert.FileExists(t, filepath.Join(f.opts.LogDir, "ceph.client.radosgw.us-east.log"))
}

func TestManualFederationSkipsTopology(t *testing.T) {
	f := newFixture(t, east)
	f.opts.ManualFederation = true
	f.converge(t)

	lines := f.runner.Lines()
	for _, op := range []string{"realm create", "zonegroup set", "zone set", "zonegroup default", "realm list"} {
		assert.Empty(t, matching(lines, op), op)
	}
	assert.NoFileExists(t, filepath.Join(f.opts.ConfDir, "us-east-zonegroup.json"))
	assert.NoFileExists(t, filepath.Join(f.opts.ConfDir, "us-east-zone.json"))

	// keys are still managed
	assert.Contains(t, f.cluster.auth, "client.radosgw.us-east")
}

func TestZonegroupsZonesDisabled(t *testing.T) {
	f := newFixture(t, east)
	f.fed.EnableZonegroupsZones = false
	f.converge(t)

	lines := f.runner.Lines()
	assert.Len(t, matching(lines, "realm create"), 1)
	assert.Empty(t, matching(lines, "zone set"))
	assert.Empty(t, matching(lines, "zonegroup set"))
	assert.FileExists(t, filepath.Join(f.opts.ConfDir, "us-east-zonegroup.json"))
	assert.NoFileExists(t, filepath.Join(f.opts.ConfDir, "us-east-zone.json"))
}

func TestSecretReuseFromCluster(t *testing.T) {
	f := newFixture(t, east)
	f.cluster.auth["client.radosgw.us-east"] = existingKey
	f.converge(t)

	assert.Zero(t, f.cluster.generated)
	assert.Empty(t, matching(f.runner.Lines(), "--gen-key"))
	assert.Empty(t, matching(f.runner.Lines(), " auth add "), "already registered")

	stored, ok, err := f.secrets.Load("us-east")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, existingKey, stored)

	keyring := filepath.Join(f.opts.ConfDir, "ceph.client.radosgw.us-east.keyring")
	assert.Equal(t, existingKey, readKeyring(keyring)["client.radosgw.us-east"])
}

func TestSecretReuseFromStore(t *testing.T) {
	sealer, err := security.NewSealerFromPassword("pw")
	require.NoError(t, err)

	tests := []struct {
		name   string
		sealer *security.Sealer
	}{
		{name: "plain", sealer: nil},
		{name: "sealed", sealer: sealer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, east)
			f.secrets = NewSecretStore(f.store, "ceph", tt.sealer)
			require.NoError(t, f.secrets.Save("us-east", existingKey))
			f.converge(t)

			assert.Zero(t, f.cluster.generated)
			assert.Len(t, matching(f.runner.Lines(), "--add-key="+existingKey), 1)
			assert.Equal(t, existingKey, f.cluster.auth["client.radosgw.us-east"])
		})
	}
}

func TestMalformedStoredSecretIsRegenerated(t *testing.T) {
	f := newFixture(t, east)
	require.NoError(t, f.secrets.Save("us-east", "too-short"))
	f.converge(t)

	assert.Equal(t, 1, f.cluster.generated)
	stored, _, err := f.secrets.Load("us-east")
	require.NoError(t, err)
	assert.Len(t, stored, KeyLength)
	assert.Equal(t, f.cluster.auth["client.radosgw.us-east"], stored)
}

func TestSecondRunIsIdempotent(t *testing.T) {
	f := newFixture(t, east)

	f.converge(t)
	assert.Equal(t, 1, f.cluster.generated)
	assert.NotEmpty(t, mutatingCalls(f.runner.Lines()))

	f.runner.Reset()
	report := f.converge(t)
	assert.Empty(t, mutatingCalls(f.runner.Lines()))
	assert.Empty(t, report.Updated())
	assert.Equal(t, 1, f.cluster.generated)
}

func TestMultisiteSharesZonegroup(t *testing.T) {
	west := types.ZoneInstance{Zonegroup: "us", Name: "west", URL: "rgw2.example.com", Port: 8080}
	f := newFixture(t, east, west)
	f.fed.MultisiteReplication = true
	f.fed.Zonegroups = []string{"us"}
	f.fed.MasterZone = "east"
	f.converge(t)

	lines := f.runner.Lines()
	assert.Len(t, matching(lines, "realm create"), 1)
	assert.Len(t, matching(lines, "zonegroup set"), 1)
	assert.Len(t, matching(lines, "zone set"), 2)
	assert.True(t, f.cluster.zones["east"])
	assert.True(t, f.cluster.zones["west"])

	keyring := filepath.Join(f.opts.ConfDir, "ceph.client.radosgw.keyring")
	keys := readKeyring(keyring)
	assert.Len(t, keys, 2, "one shared keyring for every instance")
	assert.Equal(t, 2, f.cluster.generated)
	for _, id := range []string{"us-east", "us-west"} {
		stored, ok, err := f.secrets.Load(id)
		require.NoError(t, err)
		require.True(t, ok, id)
		assert.Equal(t, keys["client.radosgw."+id], stored)
	}

	zg, err := os.ReadFile(filepath.Join(f.opts.ConfDir, "us-zonegroup.json"))
	require.NoError(t, err)
	assert.Contains(t, string(zg), `"master_zone": "us-east"`)
	assert.Contains(t, string(zg), `"name": "us-west"`)
}

func TestBuildSkipsDisabledAndIncomplete(t *testing.T) {
	f := newFixture(t, east, types.ZoneInstance{Zonegroup: "us", Name: "broken"})

	g := resource.NewGraph()
	f.fed.Enable = false
	require.NoError(t, NewBuilder(f.fed, f.opts, nil, f.secrets).Build(g))
	assert.Zero(t, g.Len())

	f.fed.Enable = true
	require.NoError(t, NewBuilder(f.fed, f.opts, nil, f.secrets).Build(g))
	for _, r := range g.Resources() {
		assert.NotContains(t, r.ID.Name, "broken")
	}
	assert.True(t, g.Has(resource.ID{Kind: resource.KindExecute, Name: "realm-create-us"}))
	require.NoError(t, g.Validate())
}

func TestBuildSkipsDottedInstanceNames(t *testing.T) {
	dotted := types.ZoneInstance{Zonegroup: "us", Name: "east.1", URL: "rgw2.example.com", Port: 8080}
	f := newFixture(t, east, dotted)

	g := resource.NewGraph()
	require.NoError(t, NewBuilder(f.fed, f.opts, nil, f.secrets).Build(g))
	for _, r := range g.Resources() {
		assert.NotContains(t, r.ID.Name, "east.1")
	}
	assert.True(t, g.Has(resource.ID{Kind: resource.KindBlock, Name: "radosgw-finalize-us-east"}))
}
