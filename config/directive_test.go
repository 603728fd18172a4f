package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rwhoisd/rwhoisd/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDirectiveTableEnablesAllBuiltins(t *testing.T) {
	tbl := NewDirectiveTable()
	e, ok := tbl.Lookup("class")
	require.True(t, ok)
	assert.Equal(t, proto.CapClass, e.Capability)
	assert.False(t, e.Disabled)
}

func TestLookupPrefixMatch(t *testing.T) {
	tbl := NewDirectiveTable()
	e, ok := tbl.Lookup("disp")
	require.True(t, ok)
	assert.Equal(t, "display", e.Name)
}

func TestLookupAmbiguousPrefixFails(t *testing.T) {
	tbl := NewDirectiveTable()
	_, ok := tbl.Lookup("s") // schema, soa, status, security all start with s
	assert.False(t, ok)
}

func TestLoadDirectiveFileDisablesEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "directive.conf")
	require.NoError(t, os.WriteFile(path, []byte("xfer disabled\n"), 0644))

	tbl := NewDirectiveTable()
	require.NoError(t, tbl.LoadDirectiveFile(path))
	e, ok := tbl.Lookup("xfer")
	require.True(t, ok)
	assert.True(t, e.Disabled)
}

func TestEnabledCapabilitiesExcludesDisabled(t *testing.T) {
	tbl := NewDirectiveTable()
	before := tbl.EnabledCapabilities()
	assert.NotZero(t, before&proto.CapXfer)

	dir := t.TempDir()
	path := filepath.Join(dir, "directive.conf")
	require.NoError(t, os.WriteFile(path, []byte("xfer disabled\n"), 0644))
	require.NoError(t, tbl.LoadDirectiveFile(path))

	after := tbl.EnabledCapabilities()
	assert.Zero(t, after&proto.CapXfer)
}

func TestLoadExtendedDirectiveFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x-directive.conf")
	body := "name: X-Foo\nprogram: /usr/local/bin/x-foo\n-----\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	tbl := NewDirectiveTable()
	require.NoError(t, tbl.LoadExtendedDirectiveFile(path))
	e, ok := tbl.Lookup("X-Foo")
	require.True(t, ok)
	assert.Equal(t, "/usr/local/bin/x-foo", e.Program)
	assert.Equal(t, proto.CapExtended, e.Capability)
}

func TestLoadExtendedDirectiveFileRequiresProgram(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x-directive.conf")
	require.NoError(t, os.WriteFile(path, []byte("name: X-Foo\n-----\n"), 0644))

	tbl := NewDirectiveTable()
	assert.Error(t, tbl.LoadExtendedDirectiveFile(path))
}
