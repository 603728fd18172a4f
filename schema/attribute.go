// Package schema implements the authority-area/class/attribute model
// of spec.md Sec 3-4.1: attribute definitions, classes, authority
// areas, the SOA, and the verification pass that enforces the
// invariants named in spec.md Sec 8.
package schema

import (
	"fmt"
	"regexp"
)

// IndexKind enumerates how an attribute's values are indexed on disk
// (spec.md Sec 3, Attribute.index-kind).
type IndexKind string

const (
	IndexNone      IndexKind = "none"
	IndexAllWords  IndexKind = "all"
	IndexExact     IndexKind = "exact"
	IndexCIDR      IndexKind = "cidr"
	IndexSoundex   IndexKind = "soundex"
)

// ValueType enumerates an attribute's rendering type for dump output
// (spec.md Sec 4.3: Class:Attr;T:Value for see-also/id types).
type ValueType string

const (
	TypeText    ValueType = "text"
	TypeID      ValueType = "id"
	TypeSeeAlso ValueType = "see-also"
)

// Attribute is one field definition within a Class (spec.md Sec 3).
type Attribute struct {
	Name        string
	Aliases     []string
	LocalID     int // dense within class
	GlobalID    int // dense across all classes in an area
	Description string
	Format      string // raw "re: ..." tag value, empty if none
	format      *regexp.Regexp
	Index       IndexKind
	Type        ValueType

	Required      bool
	Repeatable    bool
	MultiLine     bool
	PrimaryKey    bool
	Hierarchical  bool
	Private       bool

	MaxValueLength int // 0 = unlimited; supplemental field, original_source types.h max_num_values-derived sizing
}

var identRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// ValidIdentifier reports whether s satisfies the identifier grammar
// required of attribute/class names and aliases.
func ValidIdentifier(s string) bool {
	return identRe.MatchString(s)
}

// CompileFormat compiles the attribute's declared "re: ..." format, if
// any, caching the result. It is called once at schema load.
func (a *Attribute) CompileFormat() error {
	if a.Format == "" {
		return nil
	}
	re, err := regexp.Compile(a.Format)
	if err != nil {
		return fmt.Errorf("attribute %q: invalid format regexp %q: %w", a.Name, a.Format, err)
	}
	a.format = re
	return nil
}

// MatchesFormat reports whether value satisfies the attribute's
// declared format (always true if no format was declared).
func (a *Attribute) MatchesFormat(value string) bool {
	if a.format == nil {
		return true
	}
	return a.format.MatchString(value)
}

// Validate checks the invariants of spec.md Sec 3/8 that are local to
// a single attribute definition:
//
//	primary-key => required
//	not (multi-line and repeatable)
//	name and aliases satisfy the identifier grammar
func (a *Attribute) Validate() error {
	if a.PrimaryKey && !a.Required {
		return fmt.Errorf("attribute %q: primary-key implies required", a.Name)
	}
	if a.MultiLine && a.Repeatable {
		return fmt.Errorf("attribute %q: multi-line and repeatable are mutually exclusive", a.Name)
	}
	if !ValidIdentifier(a.Name) {
		return fmt.Errorf("attribute %q: name fails identifier grammar", a.Name)
	}
	for _, al := range a.Aliases {
		if !ValidIdentifier(al) {
			return fmt.Errorf("attribute %q: alias %q fails identifier grammar", a.Name, al)
		}
	}
	if a.Format != "" && a.format == nil {
		return fmt.Errorf("attribute %q: format not compiled", a.Name)
	}
	return nil
}

// Names returns name plus all aliases, used for duplicate detection
// and for anonymous-record attribute-name resolution (spec.md Sec 4.2).
func (a *Attribute) Names() []string {
	out := make([]string, 0, len(a.Aliases)+1)
	out = append(out, a.Name)
	out = append(out, a.Aliases...)
	return out
}

// BaseAttributes are the mandatory implicit attributes forcibly added
// at the head of every class (spec.md Sec 4.1).
func BaseAttributes() []Attribute {
	return []Attribute{
		{Name: "Class-Name", Required: true, Index: IndexExact, Type: TypeText},
		{Name: "ID", Aliases: []string{"Auth-Area-ID"}, Required: true, PrimaryKey: true, Index: IndexExact, Type: TypeText},
		{Name: "Auth-Area", Aliases: []string{"AA"}, Required: true, Index: IndexExact, Type: TypeText},
		{Name: "Updated", Required: true, Index: IndexNone, Type: TypeText},
		{Name: "Guardian", Required: false, Repeatable: true, Index: IndexNone, Type: TypeText},
		{Name: "Private", Required: false, Index: IndexNone, Type: TypeText},
		{Name: "TTL", Required: false, Index: IndexNone, Type: TypeText},
	}
}
