package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

// newTestConfig builds a root config describing two authority areas,
// "biz." containing "sub.biz.", to exercise BuildGraph's containment
// edge (spec.md §4.4).
func newTestConfig(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "attrs.def"),
		"attribute: Domain-Name\nis-required: on\nindex: exact\n-----\n")
	writeFile(t, filepath.Join(root, "schema.conf"),
		"name: domain\nattributedef: attrs.def\ndbdir: data/domain\n-----\n")
	writeFile(t, filepath.Join(root, "soa.conf"),
		"Serial-Number: 20260730000000000\nPrimary-Server: whois.example.net\nHostmaster: admin@example.net\n")
	writeFile(t, filepath.Join(root, "auth-areas.conf"),
		"name: biz.\ntype: primary\ndata-dir: data-biz\nschema-file: schema.conf\nsoa-file: soa.conf\n-----\n"+
			"name: sub.biz.\ntype: primary\ndata-dir: data-sub\nschema-file: schema.conf\nsoa-file: soa.conf\n-----\n")

	configPath := filepath.Join(root, "rwhoisd.conf")
	writeFile(t, configPath, "root-dir: "+root+"\nauth-area-file: auth-areas.conf\n")
	return configPath
}

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestAreaGraphLoadReadsAreas(t *testing.T) {
	configPath := newTestConfig(t)
	g := NewAreaGraph(newTestLogger(), &AreaGraphOptions{configFile: configPath})
	require.NoError(t, g.Load())
	require.Len(t, g.areas, 2)
}

func TestAreaGraphBuildGraphAddsContainmentEdge(t *testing.T) {
	configPath := newTestConfig(t)
	g := NewAreaGraph(newTestLogger(), &AreaGraphOptions{configFile: configPath})
	require.NoError(t, g.Load())
	g.BuildGraph()

	require.Contains(t, g.nodes, "biz.")
	require.Contains(t, g.nodes, "sub.biz.")
	dotSrc := g.graph.String()
	assert.Contains(t, dotSrc, "biz.")
	assert.Contains(t, dotSrc, "sub.biz.")
	assert.Contains(t, dotSrc, "->")
}

func TestAreaGraphWriteDOTWritesFile(t *testing.T) {
	configPath := newTestConfig(t)
	g := NewAreaGraph(newTestLogger(), &AreaGraphOptions{configFile: configPath})
	require.NoError(t, g.Load())
	g.BuildGraph()

	dotPath := filepath.Join(t.TempDir(), "areas.dot")
	g.opts.dotFile = dotPath
	require.NoError(t, g.WriteDOT())

	content, err := os.ReadFile(dotPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "digraph")
}

func TestAreaGraphWriteDOTNoOpWhenUnset(t *testing.T) {
	configPath := newTestConfig(t)
	g := NewAreaGraph(newTestLogger(), &AreaGraphOptions{configFile: configPath})
	require.NoError(t, g.Load())
	g.BuildGraph()
	assert.NoError(t, g.WriteDOT())
}

func TestAreaGraphWritePNGNoOpWhenUnset(t *testing.T) {
	configPath := newTestConfig(t)
	g := NewAreaGraph(newTestLogger(), &AreaGraphOptions{configFile: configPath})
	require.NoError(t, g.Load())
	g.BuildGraph()
	assert.NoError(t, g.WritePNG())
}
