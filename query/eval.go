package query

import (
	"fmt"
	"net"
	"strings"

	"github.com/rwhoisd/rwhoisd/proto"
	"github.com/rwhoisd/rwhoisd/schema"
	"github.com/rwhoisd/rwhoisd/store"
)

// Catalog is the read access the evaluator needs onto the loaded
// schema and store, kept as an interface so session/server can supply
// a concrete implementation backed by the live reload state.
type Catalog interface {
	Areas() []*schema.Area
	AreaByName(name string) (*schema.Area, bool)
	ClassStore(areaName, className string) (*store.ClassStore, *schema.Class, bool)
}

// located is one candidate hit, scoped to the class/area it was found
// in (a locator alone is ambiguous across classes).
type located struct {
	area  string
	class string
	loc   store.Locator
}

func locKey(l located) string {
	return fmt.Sprintf("%s\x00%s\x00%d\x00%d", l.area, l.class, l.loc.FileNo, l.loc.Offset)
}

// Result is one matched, validated, rendered record.
type Result struct {
	Area   string
	Class  string
	Record store.AnonymousRecord
	Lines  []string // rendered "Class:Attr:Value" dump lines
}

// CheckComplexity rejects a query whose term count exceeds fanout
// (spec.md §4.3: "queries with more than a configurable fanout are
// rejected"). A fanout <= 0 means no limit.
func CheckComplexity(q Query, fanout int) proto.Code {
	if fanout > 0 && q.TermCount() > fanout {
		return proto.QueryTooComplex
	}
	return 0
}

// Evaluate runs q against cat, scoped to areaCtx when the query does
// not itself carry an Auth-Area= restriction (spec.md §4.3 steps 1-5).
// Collection stops as soon as more than hitLimit unique records
// accumulate, and the query then reports ExceededMaxObjectsLimit with
// no records; a hitLimit <= 0 means no limit. guardians lists
// names the caller has been authenticated as, for private-record
// suppression.
func Evaluate(cat Catalog, q Query, areaCtx string, hitLimit int, guardians []string) ([]Result, proto.Code, error) {
	area := areaFromQuery(q)
	if area == "" {
		area = areaCtx
	}
	a, ok := cat.AreaByName(area)
	if !ok {
		return nil, proto.InvalidAuthorityArea, nil
	}

	classes := candidateClasses(a, q.Class)
	if len(classes) == 0 {
		return nil, proto.InvalidClass, nil
	}

	seen := map[string]bool{}
	var hits []located
	limitHit := false

outer:
	for _, cls := range classes {
		cs, class, ok := cat.ClassStore(a.Name, cls)
		if !ok {
			continue
		}
		for _, and := range q.Or {
			matches, err := evalAnd(cs, class, and)
			if err != nil {
				return nil, proto.InvalidQuerySyntax, err
			}
			for _, loc := range matches {
				l := located{area: a.Name, class: class.Name, loc: loc}
				k := locKey(l)
				if seen[k] {
					continue
				}
				seen[k] = true
				hits = append(hits, l)
				if hitLimit > 0 && len(hits) > hitLimit {
					limitHit = true
					break outer
				}
			}
		}
	}

	// Exceeding the limit reports 330 and nothing else (spec.md §8: a
	// query with exactly hitLimit matches emits all of them and %ok;
	// one more match emits only %error 330).
	if limitHit {
		return nil, proto.ExceededMaxObjectsLimit, nil
	}

	var results []Result
	for _, h := range hits {
		cs, class, ok := cat.ClassStore(h.area, h.class)
		if !ok {
			continue
		}
		rec, err := cs.ReadRecord(h.loc)
		if err != nil {
			continue
		}
		if _, errs := store.Validate(class, rec, store.ValidateOn); len(errs) > 0 {
			continue
		}
		if isPrivate(class, rec) && !guardianSatisfied(rec, guardians) {
			continue
		}
		results = append(results, Result{
			Area: h.area, Class: h.class, Record: rec,
			Lines: renderDump(class, rec, guardians),
		})
	}

	if len(results) == 0 {
		return nil, proto.NoObjectsFound, nil
	}
	return results, 0, nil
}

func areaFromQuery(q Query) string {
	for _, and := range q.Or {
		for _, t := range and.Terms {
			if strings.EqualFold(t.Attr, "Auth-Area") || strings.EqualFold(t.Attr, "AA") {
				return t.Value
			}
		}
	}
	return ""
}

func candidateClasses(a *schema.Area, wanted string) []string {
	if wanted == "" {
		var out []string
		for _, c := range a.Classes {
			out = append(out, c.Name)
		}
		return out
	}
	if c, ok := a.ClassByName(wanted); ok {
		return []string{c.Name}
	}
	return nil
}

func evalAnd(cs *store.ClassStore, class *schema.Class, and AndExpr) ([]store.Locator, error) {
	if len(and.Terms) == 0 {
		return nil, nil
	}
	var result map[store.Locator]bool
	for _, term := range and.Terms {
		matches, err := evalTerm(cs, class, term)
		if err != nil {
			return nil, err
		}
		set := map[store.Locator]bool{}
		for _, m := range matches {
			set[m] = true
		}
		if result == nil {
			result = set
			continue
		}
		intersected := map[store.Locator]bool{}
		for k := range result {
			if set[k] {
				intersected[k] = true
			}
		}
		result = intersected
	}
	var out []store.Locator
	for k := range result {
		out = append(out, k)
	}
	return out, nil
}

func evalTerm(cs *store.ClassStore, class *schema.Class, term Term) ([]store.Locator, error) {
	var attrs []*schema.Attribute
	if term.Attr == "" {
		for i := range class.Attributes {
			if class.Attributes[i].Index != schema.IndexNone {
				attrs = append(attrs, &class.Attributes[i])
			}
		}
	} else {
		a, ok := class.AttrByName(term.Attr)
		if !ok {
			return nil, fmt.Errorf("invalid attribute %q", term.Attr)
		}
		attrs = append(attrs, a)
	}

	var matches []store.Locator
	for _, a := range attrs {
		idx, ok := cs.Index(a.Name)
		if !ok {
			continue
		}
		matches = append(matches, lookupByKind(idx, a.Index, term.Value)...)
	}
	if term.Op == OpNotEquals {
		// Not-equals is evaluated as "every record minus the matches";
		// this requires a full scan, acceptable given the store's small
		// per-class working set at this fidelity.
		return negate(cs, matches), nil
	}
	return matches, nil
}

func lookupByKind(idx *store.Index, kind schema.IndexKind, value string) []store.Locator {
	if strings.HasPrefix(value, "*") && strings.HasSuffix(value, "*") && len(value) > 1 {
		return idx.SubstringScan(strings.Trim(value, "*"))
	}
	if strings.HasPrefix(value, "*") {
		return idx.SubstringScan(strings.TrimPrefix(value, "*"))
	}
	if strings.HasSuffix(value, "*") {
		return idx.PrefixScan(strings.TrimSuffix(value, "*"))
	}
	if kind == schema.IndexCIDR {
		if ip := net.ParseIP(value); ip != nil {
			return idx.CIDRContainingScan(ip)
		}
	}
	return idx.Lookup(value)
}

func negate(cs *store.ClassStore, exclude []store.Locator) []store.Locator {
	excl := map[store.Locator]bool{}
	for _, e := range exclude {
		excl[e] = true
	}
	var out []store.Locator
	for _, entry := range cs.ActiveDataFiles() {
		df := store.DataFile{Path: cs.DataFilePath(entry)}
		recs, err := df.ScanAll(nil)
		if err != nil {
			continue
		}
		for _, r := range recs {
			loc := store.Locator{FileNo: entry.FileNo, Offset: r.Offset}
			if !excl[loc] {
				out = append(out, loc)
			}
		}
	}
	return out
}

func isPrivate(class *schema.Class, rec store.AnonymousRecord) bool {
	if v, ok := rec.Get("Private"); ok && strings.EqualFold(v, "on") {
		return true
	}
	for _, f := range rec.Fields {
		a, ok := class.AttrByName(f.Name)
		if ok && a.Private {
			return true
		}
	}
	return false
}

// guardianSatisfied reports whether any caller-asserted name appears
// on the record's Guardian attribute (spec.md §4.3: "authentication is
// out of scope ... the default is unsatisfied").
func guardianSatisfied(rec store.AnonymousRecord, guardians []string) bool {
	if len(guardians) == 0 {
		return false
	}
	recorded := rec.All("Guardian")
	for _, g := range guardians {
		for _, r := range recorded {
			if strings.EqualFold(g, r) {
				return true
			}
		}
	}
	return false
}

// renderDump formats each attribute-value pair as "Class:Attr:Value",
// or "Class:Attr;T:Value" for see-also/id typed attributes, per
// spec.md §4.3. Private attributes are suppressed unless the guardian
// list is satisfied.
func renderDump(class *schema.Class, rec store.AnonymousRecord, guardians []string) []string {
	satisfied := guardianSatisfied(rec, guardians)
	var lines []string
	for _, f := range rec.Fields {
		a, ok := class.AttrByName(f.Name)
		if ok && a.Private && !satisfied {
			continue
		}
		tag := ""
		if ok {
			switch a.Type {
			case schema.TypeSeeAlso:
				tag = ";S"
			case schema.TypeID:
				tag = ";I"
			}
		}
		lines = append(lines, fmt.Sprintf("%s:%s%s:%s", class.Name, f.Name, tag, f.Value))
	}
	return lines
}
