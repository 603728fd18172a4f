package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rwhoisd/rwhoisd/proto"
)

// DirectiveEntry is one row of the directive table (spec.md Sec
// 4.1/4.5): a name, a capability bit, whether it is disabled, and (for
// "X-" extended directives) an external program path.
type DirectiveEntry struct {
	Name        string
	Description string
	Capability  uint32
	Disabled    bool
	Program     string // non-empty for extended ("X-") directives
}

// builtinCapabilities maps the closed, built-in directive set (spec.md
// Sec 4.5) to its capability bit, so the directive file only needs to
// say which ones are disabled.
var builtinCapabilities = map[string]uint32{
	"rwhois":     proto.CapRWhois,
	"class":      proto.CapClass,
	"directive":  proto.CapDirective,
	"display":    proto.CapDisplay,
	"forward":    proto.CapForward,
	"holdconnect": proto.CapHoldConn,
	"limit":      proto.CapLimit,
	"notify":     proto.CapNotify,
	"quit":       proto.CapQuit,
	"register":   proto.CapRegister,
	"schema":     proto.CapSchema,
	"soa":        proto.CapSOA,
	"status":     proto.CapStatus,
	"xfer":       proto.CapXfer,
	"security":   proto.CapSecurity,
}

// DirectiveTable holds every directive known to this server, built-in
// plus extended.
type DirectiveTable struct {
	entries map[string]*DirectiveEntry
}

// NewDirectiveTable returns a table pre-populated with the built-in
// directives, all enabled.
func NewDirectiveTable() *DirectiveTable {
	t := &DirectiveTable{entries: map[string]*DirectiveEntry{}}
	for name, cap := range builtinCapabilities {
		t.entries[name] = &DirectiveEntry{Name: name, Capability: cap}
	}
	return t
}

// LoadDirectiveFile applies a directive-table file: one line per
// directive of the form "<name> <state>", e.g. "xfer disabled", used to
// selectively disable built-ins. A state of "disabled" or "off" disables
// the directive; any other state enables it. Blank lines, "#" comments
// and lines with fewer than two fields are skipped.
func (t *DirectiveTable) LoadDirectiveFile(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open directive file %s: %w", path, err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name, state := fields[0], fields[1]
		e, ok := t.entries[name]
		if !ok {
			e = &DirectiveEntry{Name: name}
			t.entries[name] = e
		}
		e.Disabled = strings.EqualFold(state, "disabled") || strings.EqualFold(state, "off")
	}
	return sc.Err()
}

// LoadExtendedDirectiveFile loads "X-" extended directives: each is a
// two-character prefix bound to an external program (spec.md Sec
// 4.1). Records are tag:value blocks with "name" and "program" tags.
func (t *DirectiveTable) LoadExtendedDirectiveFile(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open extended directive file %s: %w", path, err)
	}
	defer f.Close()
	recs, err := ScanRecords(f)
	if err != nil {
		return fmt.Errorf("parse extended directive file %s: %w", path, err)
	}
	for _, rec := range recs {
		name, ok := rec.Get("name")
		if !ok || !strings.HasPrefix(name, "X-") {
			return fmt.Errorf("extended directive missing valid X- name: %+v", rec)
		}
		program, ok := rec.Get("program")
		if !ok || program == "" {
			return fmt.Errorf("extended directive %q: missing required program", name)
		}
		desc, _ := rec.Get("description")
		t.entries[name] = &DirectiveEntry{
			Name:        name,
			Description: desc,
			Capability:  proto.CapExtended,
			Program:     program,
		}
	}
	return nil
}

// Lookup finds the directive table entry whose name is a case-exact
// prefix match of the dispatched token (spec.md Sec 4.5: "the
// dispatcher selects from a table ... by prefix").
func (t *DirectiveTable) Lookup(name string) (*DirectiveEntry, bool) {
	if e, ok := t.entries[name]; ok {
		return e, true
	}
	var match *DirectiveEntry
	for n, e := range t.entries {
		if strings.HasPrefix(n, name) {
			if match != nil {
				return nil, false // ambiguous prefix
			}
			match = e
		}
	}
	if match == nil {
		return nil, false
	}
	return match, true
}

// EnabledCapabilities ORs together the capability bits of every
// enabled directive, for the banner's hex bitmap (spec.md Sec 6).
func (t *DirectiveTable) EnabledCapabilities() uint32 {
	var bits uint32
	for _, e := range t.entries {
		if !e.Disabled {
			bits |= e.Capability
		}
	}
	return bits
}
