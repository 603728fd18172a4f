package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is the in-memory model of the root config file (spec.md Sec
// 4.1). Every recognised tag has a field here; unknown tags are
// warned and ignored by Load.
type Config struct {
	Root               string
	BinPath            string
	SpoolDir           string
	AuthAreaFile       string
	DirectiveFile      string
	ExtDirectiveFile   string
	PuntFile           string
	AllowFile          string
	DenyFile           string
	Hostname           string
	Port               int
	ProcessUser        string
	Chroot             bool
	DeadmanSeconds     int
	MaxHitsCeiling     int
	MaxHitsDefault     int
	MaxChildren        int
	Verbosity          int
	PidFile            string
	SyslogFacility     string
	ListenQueueLength  int
	ChildPriorityOffset int
	AllowWildcard      bool
	AllowSubstring     bool
	SkipReferralSearch bool
	RootServer         bool // -r flag: suppress punt referrals

	// Warnings accumulated while parsing, one per unknown tag; the
	// caller logs these rather than failing the load (spec.md Sec 4.1: "Unknown tags are warned and ignored").
	Warnings []string
}

// Default returns the built-in defaults applied before the config
// file is read.
func Default() *Config {
	return &Config{
		Port:              4321,
		DeadmanSeconds:    1200,
		MaxHitsCeiling:    256,
		MaxHitsDefault:    50,
		MaxChildren:       40,
		ListenQueueLength: 64,
	}
}

var tagSetters = map[string]func(*Config, string) error{
	"root-dir":      func(c *Config, v string) error { c.Root = v; return nil },
	"bin-path":      func(c *Config, v string) error { c.BinPath = v; return nil },
	"spool-dir":     func(c *Config, v string) error { c.SpoolDir = v; return nil },
	"auth-area-file": func(c *Config, v string) error { c.AuthAreaFile = v; return nil },
	"directive-file": func(c *Config, v string) error { c.DirectiveFile = v; return nil },
	"x-directive-file": func(c *Config, v string) error { c.ExtDirectiveFile = v; return nil },
	"punt-file":     func(c *Config, v string) error { c.PuntFile = v; return nil },
	"allow-file":    func(c *Config, v string) error { c.AllowFile = v; return nil },
	"deny-file":     func(c *Config, v string) error { c.DenyFile = v; return nil },
	"hostname":      func(c *Config, v string) error { c.Hostname = v; return nil },
	"port":          func(c *Config, v string) error { return setInt(&c.Port, v) },
	"process-uid":   func(c *Config, v string) error { c.ProcessUser = v; return nil },
	"chroot":        func(c *Config, v string) error { return setBool(&c.Chroot, v) },
	"deadman-time":  func(c *Config, v string) error { return setInt(&c.DeadmanSeconds, v) },
	"max-hits-ceiling": func(c *Config, v string) error { return setInt(&c.MaxHitsCeiling, v) },
	"max-hits-default": func(c *Config, v string) error { return setInt(&c.MaxHitsDefault, v) },
	"max-children":  func(c *Config, v string) error { return setInt(&c.MaxChildren, v) },
	"verbosity":     func(c *Config, v string) error { return setInt(&c.Verbosity, v) },
	"pid-file":      func(c *Config, v string) error { c.PidFile = v; return nil },
	"syslog-facility": func(c *Config, v string) error { c.SyslogFacility = v; return nil },
	"listen-queue-length": func(c *Config, v string) error { return setInt(&c.ListenQueueLength, v) },
	"child-priority-offset": func(c *Config, v string) error { return setInt(&c.ChildPriorityOffset, v) },
	"query-allow-wildcard": func(c *Config, v string) error { return setBool(&c.AllowWildcard, v) },
	"query-allow-substring": func(c *Config, v string) error { return setBool(&c.AllowSubstring, v) },
	"skip-referral-search": func(c *Config, v string) error { return setBool(&c.SkipReferralSearch, v) },
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("expected integer, got %q", v)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, v string) error {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "yes", "1":
		*dst = true
	case "off", "false", "no", "0", "":
		*dst = false
	default:
		return fmt.Errorf("expected boolean, got %q", v)
	}
	return nil
}

// Load reads the root config file at path and applies defaults for
// anything unset. It returns the parsed config plus any warnings for
// unknown tags.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()
	recs, err := ScanRecords(f)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg := Default()
	for _, rec := range recs {
		for _, tv := range rec.Tags {
			setter, ok := tagSetters[tv.Tag]
			if !ok {
				cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("unknown config tag %q ignored", tv.Tag))
				continue
			}
			if err := setter(cfg, tv.Value); err != nil {
				return nil, fmt.Errorf("config tag %q: %w", tv.Tag, err)
			}
		}
	}
	if cfg.MaxHitsCeiling != 0 && cfg.MaxHitsDefault > cfg.MaxHitsCeiling {
		return nil, fmt.Errorf("max-hits-default (%d) exceeds max-hits-ceiling (%d)", cfg.MaxHitsDefault, cfg.MaxHitsCeiling)
	}
	return cfg, nil
}

// ResolvePath rewrites p to be relative to the config's root
// directory (spec.md Sec 4.1 "path canonicalisation"). If chrooted,
// the result must lie inside root or an error is returned.
func (c *Config) ResolvePath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	var resolved string
	if filepath.IsAbs(p) {
		resolved = filepath.Clean(p)
	} else {
		resolved = filepath.Clean(filepath.Join(c.Root, p))
	}
	if c.Chroot {
		rootClean := filepath.Clean(c.Root)
		rel, err := filepath.Rel(rootClean, resolved)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", fmt.Errorf("path %q escapes chroot root %q", p, c.Root)
		}
	}
	return resolved, nil
}
