package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rwhoisd.conf")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	path := writeTempConfig(t, "port: 9999\nhostname: whois.example.net\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "whois.example.net", cfg.Hostname)
	assert.Equal(t, 256, cfg.MaxHitsCeiling, "unset tags keep their default")
}

func TestLoadWarnsOnUnknownTag(t *testing.T) {
	path := writeTempConfig(t, "totally-unknown-tag: value\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "totally-unknown-tag")
}

func TestLoadRejectsBadInt(t *testing.T) {
	path := writeTempConfig(t, "port: not-a-number\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsHitsDefaultAboveCeiling(t *testing.T) {
	path := writeTempConfig(t, "max-hits-ceiling: 10\nmax-hits-default: 50\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestResolvePathRelative(t *testing.T) {
	cfg := &Config{Root: "/var/rwhoisd"}
	p, err := cfg.ResolvePath("data/areas")
	require.NoError(t, err)
	assert.Equal(t, "/var/rwhoisd/data/areas", p)
}

func TestResolvePathChrootEscapeRejected(t *testing.T) {
	cfg := &Config{Root: "/var/rwhoisd", Chroot: true}
	_, err := cfg.ResolvePath("../../etc/passwd")
	assert.Error(t, err)
}

func TestResolvePathChrootAllowsInsideRoot(t *testing.T) {
	cfg := &Config{Root: "/var/rwhoisd", Chroot: true}
	p, err := cfg.ResolvePath("data/areas")
	require.NoError(t, err)
	assert.Equal(t, "/var/rwhoisd/data/areas", p)
}
