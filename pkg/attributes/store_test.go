package attributes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type saved struct {
	scope Scope
	path  string
	value any
}

type memBackend struct {
	data   map[Scope]map[string]any
	saves  []saved
	delete []string
}

func newMemBackend() *memBackend {
	return &memBackend{data: map[Scope]map[string]any{ScopeNode: {}, ScopeCluster: {}}}
}

func (m *memBackend) Load(scope Scope) (map[string]any, error) {
	tree := map[string]any{}
	for k, v := range m.data[scope] {
		out, err := assign(tree, splitPath(k), deepCopy(v))
		if err != nil {
			return nil, err
		}
		tree = out.(map[string]any)
	}
	return tree, nil
}

func (m *memBackend) Save(scope Scope, path string, value any) error {
	m.saves = append(m.saves, saved{scope, path, value})
	m.data[scope][path] = value
	return nil
}

func (m *memBackend) Delete(scope Scope, path string) error {
	m.delete = append(m.delete, path)
	delete(m.data[scope], path)
	return nil
}

func devices() []any {
	return []any{
		map[string]any{"data": "/dev/sdb", "journal": "/dev/sdc", "status": "deployed"},
		map[string]any{"data": "/dev/sdd", "journal": "/dev/sde"},
	}
}

func TestMergePrecedence(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.SetLayer(TierDefault, map[string]any{
		"ceph": map[string]any{
			"cluster":    "ceph",
			"init_style": "systemd",
			"packages":   []any{"ceph", "ceph-common"},
			"radosgw":    map[string]any{"port": 80, "realm": "gold"},
		},
	}))
	require.NoError(t, s.SetLayer(TierRole, map[string]any{
		"ceph": map[string]any{
			"packages": []any{"radosgw"},
			"radosgw":  map[string]any{"port": 8080},
		},
	}))
	require.NoError(t, s.SetLayer(TierEnvironment, map[string]any{
		"ceph": map[string]any{"cluster": "prod"},
	}))
	require.NoError(t, s.SetOverride("ceph.init_style", "upstart"))

	tests := []struct {
		path string
		want any
	}{
		{"ceph.cluster", "prod"},
		{"ceph.init_style", "upstart"},
		{"ceph.packages", []any{"radosgw"}},
		{"ceph.radosgw.port", 8080},
		{"ceph.radosgw.realm", "gold"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := s.Get(tt.path)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := s.Get("ceph.missing")
	assert.False(t, ok)
}

func TestSetLayerRejectsOverride(t *testing.T) {
	s := New(nil)
	err := s.SetLayer(TierOverride, map[string]any{})
	assert.ErrorIs(t, err, ErrOverrideTier)
}

func TestPartialListUpdate(t *testing.T) {
	backend := newMemBackend()
	s := New(backend)
	require.NoError(t, s.SetLayer(TierRole, map[string]any{
		"ceph": map[string]any{"osd": map[string]any{"devices": devices()}},
	}))

	require.NoError(t, s.SetOverride("ceph.osd.devices.1.status", "deployed"))

	assert.Equal(t, "deployed", s.String("ceph.osd.devices.0.status"))
	assert.Equal(t, "deployed", s.String("ceph.osd.devices.1.status"))
	assert.Equal(t, "/dev/sdd", s.String("ceph.osd.devices.1.data"))
	assert.Equal(t, "/dev/sdb", s.String("ceph.osd.devices.0.data"))

	// the role tier itself is untouched
	role := s.Layer(TierRole)
	roleDevices, _ := lookup(role, splitPath("ceph.osd.devices.1"))
	assert.NotContains(t, roleDevices, "status")

	// the whole list is persisted, never an element path
	require.Len(t, backend.saves, 1)
	assert.Equal(t, "ceph.osd.devices", backend.saves[0].path)
	assert.Len(t, backend.saves[0].value, 2)
}

func TestListElementUpdateIsVisibleAfterReload(t *testing.T) {
	backend := newMemBackend()
	s := New(backend)
	require.NoError(t, s.SetLayer(TierRole, map[string]any{
		"ceph": map[string]any{"osd": map[string]any{"devices": devices()}},
	}))
	require.NoError(t, s.SetOverride("ceph.osd.devices.1.status", "deployed"))

	next := New(backend)
	require.NoError(t, next.SetLayer(TierRole, map[string]any{
		"ceph": map[string]any{"osd": map[string]any{"devices": devices()}},
	}))
	require.NoError(t, next.Load())

	assert.Equal(t, "deployed", next.String("ceph.osd.devices.1.status"))
}

func TestOverrideScopes(t *testing.T) {
	backend := newMemBackend()
	s := New(backend)

	require.NoError(t, s.SetOverrideScoped("ceph.secrets.ceph.radosgw.us-east", "k1", ScopeCluster))
	assert.Equal(t, "k1", s.String("ceph.secrets.ceph.radosgw.us-east"))

	require.NoError(t, s.SetOverride("ceph.secrets.ceph.radosgw.us-east", "k2"))
	assert.Equal(t, "k2", s.String("ceph.secrets.ceph.radosgw.us-east"))
	assert.Equal(t, "k1", backend.data[ScopeCluster]["ceph.secrets.ceph.radosgw.us-east"])

	require.NoError(t, s.DeleteOverride("ceph.secrets.ceph.radosgw.us-east", ScopeNode))
	assert.Equal(t, "k1", s.String("ceph.secrets.ceph.radosgw.us-east"))

	err := s.DeleteOverride("ceph.nothing", ScopeNode)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOverrideReplacesScalarWithMap(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.SetOverride("ceph.mgr", true))
	require.NoError(t, s.SetOverride("ceph.mgr.enable", true))

	assert.True(t, s.Bool("ceph.mgr.enable"))
}

func TestGetReturnsCopy(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.SetLayer(TierDefault, map[string]any{"a": map[string]any{"b": []any{"x"}}}))

	v, _ := s.Get("a")
	v.(map[string]any)["b"] = "mutated"

	assert.Equal(t, []string{"x"}, s.Strings("a.b"))
}

func TestTypedHelpers(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.SetLayer(TierDefault, map[string]any{
		"port":    float64(8080),
		"portstr": "9000",
		"flag":    "true",
		"list":    []string{"a", "b"},
		"one":     "solo",
		"zones": []map[string]any{
			{"name": "us-east", "port": 80},
		},
	}))

	port, ok := s.Int("port")
	assert.True(t, ok)
	assert.Equal(t, 8080, port)

	port, ok = s.Int("portstr")
	assert.True(t, ok)
	assert.Equal(t, 9000, port)

	assert.True(t, s.Bool("flag"))
	assert.False(t, s.Bool("missing"))
	assert.Equal(t, []string{"a", "b"}, s.Strings("list"))
	assert.Equal(t, []string{"solo"}, s.Strings("one"))
	assert.Equal(t, "fallback", s.StringOr("missing", "fallback"))

	var zones []struct {
		Name string `yaml:"name"`
		Port int    `yaml:"port"`
	}
	require.NoError(t, s.Decode("zones", &zones))
	require.Len(t, zones, 1)
	assert.Equal(t, "us-east", zones[0].Name)
	assert.Equal(t, 80, zones[0].Port)

	assert.ErrorIs(t, s.Decode("nope", &zones), ErrNotFound)
}

func TestParseScope(t *testing.T) {
	scope, err := ParseScope("cluster")
	require.NoError(t, err)
	assert.Equal(t, ScopeCluster, scope)

	_, err = ParseScope("global")
	assert.Error(t, err)
}
