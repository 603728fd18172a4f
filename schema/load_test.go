package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rwhoisd/rwhoisd/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver is a minimal RootResolver for tests that don't need
// chroot containment checks.
type fakeResolver struct{ root string }

func (r fakeResolver) ResolvePath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if filepath.IsAbs(p) {
		return p, nil
	}
	return filepath.Join(r.root, p), nil
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func TestLoadAreasEndToEnd(t *testing.T) {
	root := t.TempDir()
	resolver := fakeResolver{root: root}

	writeFile(t, filepath.Join(root, "attrs.def"),
		"attribute: Domain-Name\nis-required: on\nindex: exact\n-----\n")
	writeFile(t, filepath.Join(root, "schema.conf"),
		"name: domain\nattributedef: attrs.def\ndbdir: data/domain\n-----\n")
	writeFile(t, filepath.Join(root, "soa.conf"),
		"Serial-Number: 20260730000000000\nPrimary-Server: whois.example.net\nHostmaster: admin@example.net\n")
	writeFile(t, filepath.Join(root, "auth-areas.conf"),
		"name: example.net\ntype: primary\ndata-dir: data\nschema-file: schema.conf\nsoa-file: soa.conf\n-----\n")

	areas, warnings, err := LoadAreas(resolver, filepath.Join(root, "auth-areas.conf"))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, areas, 1)

	a := areas[0]
	assert.Equal(t, "example.net", a.Name)
	require.Len(t, a.Classes, 1)
	assert.Equal(t, "domain", a.Classes[0].Name)
	_, ok := a.Classes[0].AttrByName("Domain-Name")
	assert.True(t, ok)
	assert.Equal(t, "20260730000000000", a.SOA.SerialNumber)
}

func TestLoadAreasRejectsDuplicateArea(t *testing.T) {
	root := t.TempDir()
	resolver := fakeResolver{root: root}

	writeFile(t, filepath.Join(root, "attrs.def"),
		"attribute: Domain-Name\nis-required: on\nindex: exact\n-----\n")
	writeFile(t, filepath.Join(root, "schema.conf"),
		"name: domain\nattributedef: attrs.def\ndbdir: data/domain\n-----\n")
	writeFile(t, filepath.Join(root, "soa.conf"),
		"Serial-Number: 1\nPrimary-Server: whois.example.net\nHostmaster: admin@example.net\n")
	writeFile(t, filepath.Join(root, "auth-areas.conf"),
		"name: example.net\ntype: primary\ndata-dir: data\nschema-file: schema.conf\nsoa-file: soa.conf\n-----\n"+
			"name: example.net\ntype: primary\ndata-dir: data2\nschema-file: schema.conf\nsoa-file: soa.conf\n-----\n")

	_, _, err := LoadAreas(resolver, filepath.Join(root, "auth-areas.conf"))
	assert.Error(t, err)
}

func TestWriteSOARoundTrip(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "soa.conf")
	soa := SOA{SerialNumber: "2", RefreshInterval: 3600, IncrementInterval: 3600, RetryInterval: 600, TimeToLive: 86400, PrimaryServer: "whois.example.net", Hostmaster: "admin@example.net"}
	require.NoError(t, WriteSOA(path, soa))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := config.ScanRecords(f)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	v, _ := recs[0].Get("Serial-Number")
	assert.Equal(t, "2", v)
}
