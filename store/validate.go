package store

import (
	"fmt"

	"github.com/rwhoisd/rwhoisd/schema"
)

// ValidateFlags is the record-validation bitfield of spec.md §4.2:
// "a validate-flag bitfield carrying {on, quiet, protocol-error,
// find-all}".
type ValidateFlags uint8

const (
	ValidateOn ValidateFlags = 1 << iota
	ValidateQuiet
	ValidateProtocolError
	ValidateFindAll
)

// Has reports whether flag is set.
func (f ValidateFlags) Has(flag ValidateFlags) bool { return f&flag != 0 }

// Violation is one record-validation failure.
type Violation struct {
	Attribute string
	Reason    string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Attribute, v.Reason)
}

// Validate checks rec against class per spec.md §4.2: every required
// attribute present, non-repeatable attributes not repeated, and each
// value matching its attribute's declared format. When flags lacks
// ValidateFindAll, it returns on the first violation; otherwise it
// accumulates the full list.
func Validate(class *schema.Class, rec AnonymousRecord, flags ValidateFlags) ([]Violation, error) {
	if !flags.Has(ValidateOn) {
		return nil, nil
	}
	var violations []Violation
	record := func(v Violation) bool {
		violations = append(violations, v)
		return flags.Has(ValidateFindAll)
	}

	counts := map[string]int{}
	for _, f := range rec.Fields {
		counts[f.Name]++
	}

	for i := range class.Attributes {
		a := &class.Attributes[i]
		names := a.Names()
		present := false
		for _, n := range names {
			if counts[n] > 0 {
				present = true
			}
		}
		if a.Required && !present {
			if !record(Violation{a.Name, "required attribute missing"}) {
				return violations, nil
			}
		}
		if !a.Repeatable {
			for _, n := range names {
				if counts[n] > 1 {
					if !record(Violation{a.Name, "non-repeatable attribute repeated"}) {
						return violations, nil
					}
					break
				}
			}
		}
	}

	for _, f := range rec.Fields {
		a, ok := class.AttrByName(f.Name)
		if !ok {
			continue
		}
		if !a.MatchesFormat(f.Value) {
			if !record(Violation{a.Name, fmt.Sprintf("value %q fails declared format", f.Value)}) {
				return violations, nil
			}
		}
	}

	return violations, nil
}
