package schema

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AreaType distinguishes a primary authority area (data lives here)
// from a secondary (data is pulled from masters) (spec.md Sec 3).
type AreaType string

const (
	Primary   AreaType = "primary"
	Secondary AreaType = "secondary"
)

// SOA is the Start-Of-Authority record for an area (spec.md Sec 6).
type SOA struct {
	SerialNumber      string // timestamp string, YYYYMMDDHHMMSSmmm
	RefreshInterval   int
	IncrementInterval int
	RetryInterval     int
	TimeToLive        int
	PrimaryServer     string
	Hostmaster        string
}

// Stamp renders the current UTC time in the SOA/Updated timestamp
// format used throughout the on-disk formats (spec.md Sec 4.6 step 1).
func Stamp(t time.Time) string {
	return t.UTC().Format("20060102150405.000")[:len("20060102150405")] +
		fmt.Sprintf("%03d", t.UTC().Nanosecond()/1e6)
}

// BumpSerial computes the next serial per spec.md Sec 4.6 step 4:
// max(now, serial+1), rendered with the same timestamp format. Serial
// numbers compare lexicographically because the format is fixed-width
// digits.
func BumpSerial(current string, now time.Time) string {
	nowStamp := Stamp(now)
	next := current
	// "serial+1" is meaningless for a timestamp string except as
	// "strictly greater than current"; since the format is a
	// zero-padded fixed-width decimal, lexicographic and numeric
	// ordering coincide, so we bump by comparing strings directly.
	if nowStamp > current {
		next = nowStamp
	} else {
		next = incrementDecimalString(current)
	}
	return next
}

func incrementDecimalString(s string) string {
	b := []byte(s)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < '9' {
			b[i]++
			return string(b)
		}
		b[i] = '0'
	}
	return "1" + string(b)
}

// Area is an authority area: a naming context for which this server
// is authoritative (primary) or caching (secondary) (spec.md Sec 3).
type Area struct {
	Name          string
	Type          AreaType
	DataDir       string
	SchemaFile    string
	SOAFile       string
	PrimaryServer string
	Hostmaster    string
	SOA           SOA
	Masters       []string
	Slaves        []string
	Guardians     []string
	Classes       []Class
	CIDR          bool // true if Name parses as a CIDR network rather than a domain
}

var domainRe = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?\.)*[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?\.?$`)
var cidrRe = regexp.MustCompile(`^[0-9a-fA-F:.]+/[0-9]{1,3}$`)

// ValidAreaName reports whether name matches the DNS-name or
// CIDR-like grammar required of an authority area name (spec.md Sec 3).
func ValidAreaName(name string) bool {
	if cidrRe.MatchString(name) {
		return true
	}
	return domainRe.MatchString(name)
}

// ClassByName resolves a class by its name or any alias.
func (a *Area) ClassByName(name string) (*Class, bool) {
	for i := range a.Classes {
		if a.Classes[i].Name == name {
			return &a.Classes[i], true
		}
		for _, al := range a.Classes[i].Aliases {
			if al == name {
				return &a.Classes[i], true
			}
		}
	}
	return nil, false
}

// Validate enforces the area-level invariants of spec.md Sec 3/8:
// name syntax, primary/secondary server-list rules, and that every
// class validates and class/class-alias names are unique.
func (a *Area) Validate() error {
	if !ValidAreaName(a.Name) {
		return fmt.Errorf("area %q: invalid authority-area name", a.Name)
	}
	switch a.Type {
	case Primary:
		if len(a.Masters) != 0 {
			return fmt.Errorf("area %q: primary area must not declare masters", a.Name)
		}
		if len(a.Classes) == 0 {
			return fmt.Errorf("area %q: primary area must declare a schema", a.Name)
		}
	case Secondary:
		if len(a.Masters) == 0 {
			return fmt.Errorf("area %q: secondary area requires at least one master", a.Name)
		}
		if len(a.Slaves) != 0 {
			return fmt.Errorf("area %q: secondary area must not declare slaves", a.Name)
		}
	default:
		return fmt.Errorf("area %q: unknown area type %q", a.Name, a.Type)
	}
	seen := map[string]bool{}
	for i := range a.Classes {
		c := &a.Classes[i]
		if err := c.Validate(); err != nil {
			return fmt.Errorf("area %q: %w", a.Name, err)
		}
		for _, n := range append([]string{c.Name}, c.Aliases...) {
			if seen[n] {
				return fmt.Errorf("area %q: duplicate class name/alias %q", a.Name, n)
			}
			seen[n] = true
		}
	}
	if a.SOA.RefreshInterval < 1 || a.SOA.IncrementInterval < 1 ||
		a.SOA.RetryInterval < 1 || a.SOA.TimeToLive < 1 {
		return fmt.Errorf("area %q: SOA intervals must be >= 1 second", a.Name)
	}
	return nil
}

// NormalizedKey lowercases and strips a trailing '.' from a domain
// name, or leaves a CIDR form untouched, for use as a containment key
// (spec.md Sec 4.4).
func NormalizedKey(s string) string {
	if cidrRe.MatchString(s) {
		return s
	}
	return strings.ToLower(strings.TrimSuffix(s, "."))
}
