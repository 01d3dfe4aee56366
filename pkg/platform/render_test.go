package platform

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zonegroupBindings() map[string]any {
	return map[string]any{
		"name":        "us",
		"master_zone": "us-east",
		"zones": []any{
			map[string]any{"zonegroup": "us", "name": "east", "url": "rgw-east.example.com", "port": 8080},
			map[string]any{"zonegroup": "us", "name": "west", "url": "rgw-west.example.com", "port": 8080},
		},
		"endpoints":           []string{"http://rgw-east.example.com:8080/"},
		"s3hostnames":         []string{"s3.example.com"},
		"s3hostnames_website": nil,
	}
}

func TestRenderZonegroup(t *testing.T) {
	r, err := NewTemplateRenderer("")
	require.NoError(t, err)

	out, err := r.Render("radosgw-zonegroup.json", zonegroupBindings())
	require.NoError(t, err)

	var doc struct {
		Name       string   `json:"name"`
		MasterZone string   `json:"master_zone"`
		Endpoints  []string `json:"endpoints"`
		Hostnames  []string `json:"hostnames"`
		Website    []string `json:"hostnames_s3website"`
		Zones      []struct {
			Name      string   `json:"name"`
			Endpoints []string `json:"endpoints"`
		} `json:"zones"`
	}
	require.NoError(t, json.Unmarshal(out, &doc), string(out))

	assert.Equal(t, "us", doc.Name)
	assert.Equal(t, "us-east", doc.MasterZone)
	assert.Equal(t, []string{"s3.example.com"}, doc.Hostnames)
	assert.Empty(t, doc.Website)
	require.Len(t, doc.Zones, 2)
	assert.Equal(t, "us-west", doc.Zones[1].Name)
	assert.Equal(t, []string{"http://rgw-west.example.com:8080/"}, doc.Zones[1].Endpoints)
}

func TestRenderZonegroupMapAndZone(t *testing.T) {
	r, err := NewTemplateRenderer("")
	require.NoError(t, err)

	out, err := r.Render("radosgw-zonegroup-map.json", zonegroupBindings())
	require.NoError(t, err)
	var zgMap map[string]any
	require.NoError(t, json.Unmarshal(out, &zgMap), string(out))
	assert.Equal(t, "us", zgMap["master_zonegroup"])

	out, err = r.Render("radosgw-federated-zone.json", map[string]any{
		"zonegroup": "us", "zone": "us-east", "access_key": "", "secret_key": "",
	})
	require.NoError(t, err)
	var zone map[string]any
	require.NoError(t, json.Unmarshal(out, &zone), string(out))
	assert.Equal(t, "us-east", zone["name"])
	assert.Equal(t, "us-east.rgw.control", zone["control_pool"])
}

func TestRenderErrors(t *testing.T) {
	r, err := NewTemplateRenderer("")
	require.NoError(t, err)

	_, err = r.Render("nope.json", nil)
	assert.ErrorContains(t, err, "unknown template")

	_, err = r.Render("radosgw-federated-zone.json", map[string]any{"zone": "x"})
	assert.Error(t, err)
}

func TestRenderOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "radosgw-zonegroup.json.tmpl"),
		[]byte(`{"custom": {{ json .name }}, "inner": {{ template "zonegroup" . }}}`),
		0644))

	r, err := NewTemplateRenderer(dir)
	require.NoError(t, err)

	out, err := r.Render("radosgw-zonegroup.json", zonegroupBindings())
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc), string(out))
	assert.Equal(t, "us", doc["custom"])

	// templates without an override still come from the embedded set
	_, err = r.Render("radosgw-zonegroup-map.json", zonegroupBindings())
	assert.NoError(t, err)
}

func TestTemplates(t *testing.T) {
	r, err := NewTemplateRenderer("")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"radosgw-federated-zone.json",
		"radosgw-zonegroup-map.json",
		"radosgw-zonegroup.json",
	}, r.Templates())
}
