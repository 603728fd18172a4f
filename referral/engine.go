package referral

import (
	"fmt"
	"strings"

	"github.com/rwhoisd/rwhoisd/query"
	"github.com/rwhoisd/rwhoisd/schema"
)

// ReferralCatalog is the subset of query.Catalog plus schema access
// the engine needs: area lookup (to find a Referral class) and the
// query evaluator's Catalog to run the synthetic Referred-Auth-Area
// search.
type ReferralCatalog interface {
	query.Catalog
}

// Engine resolves referrals for a query key, per spec.md §4.4.
type Engine struct {
	tree     *Tree
	cat      ReferralCatalog
	puntURLs []string
	isRoot   bool
}

// NewEngine builds the containment tree from every loaded area and
// wraps cat for link-referral searches. puntURLs is the parsed
// content of the punt file; isRoot suppresses punt emission when this
// server is flagged as a root server.
func NewEngine(cat ReferralCatalog, puntURLs []string, isRoot bool) *Engine {
	e := &Engine{tree: NewTree(), cat: cat, puntURLs: puntURLs, isRoot: isRoot}
	for _, a := range cat.Areas() {
		if a.CIDR {
			if key, ok := NetworkKey(a.Name); ok {
				e.tree.Insert(key, a.Name)
			}
			continue
		}
		e.tree.Insert(DomainKey(a.Name), a.Name)
	}
	return e
}

// Resolve derives the hierarchical key for value and returns the
// referral URLs to emit, per spec.md §4.4's iteration from
// most-specific to least. An empty, non-nil slice means "no
// referral" (the caller should fall through to %ok with no hits,
// e.g. when containment holds but the class has no Referral entry
// matching any reduction of the key).
func (e *Engine) Resolve(value string) ([]string, error) {
	var key string
	var isNetwork bool
	if netKey, ok := NetworkKey(value); ok && looksNumericOrColon(value) {
		key, isNetwork = netKey, true
	} else {
		key = DomainKey(value)
	}

	area, contained := e.tree.Contains(key)
	if !contained {
		if e.isRoot {
			return nil, nil
		}
		return e.puntURLs, nil
	}

	candidates := e.tree.MostSpecific(key)
	_ = isNetwork
	for _, candidate := range candidates {
		urls, err := e.linkReferrals(area, candidate)
		if err != nil {
			return nil, err
		}
		if len(urls) > 0 {
			return urls, nil
		}
	}
	return []string{}, nil
}

func looksNumericOrColon(value string) bool {
	for _, r := range value {
		if r == ':' {
			return true
		}
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			if r != '.' && r != '/' {
				return false
			}
		}
	}
	return true
}

// linkReferrals builds the synthetic "referral Referred-Auth-Area=<key>"
// query against area's Referral class and returns one URL per
// Referral attribute value on each hit (spec.md §4.4 step 1).
func (e *Engine) linkReferrals(areaName, candidateKey string) ([]string, error) {
	a, ok := e.cat.AreaByName(areaName)
	if !ok {
		return nil, nil
	}
	if _, ok := a.ClassByName("referral"); !ok {
		return nil, nil
	}
	q := query.Query{
		Class: "referral",
		Or: []query.AndExpr{{Terms: []query.Term{
			{Attr: "Referred-Auth-Area", Op: query.OpEquals, Value: candidateKey},
		}}},
	}
	results, _, err := query.Evaluate(e.cat, q, areaName, 0, nil)
	if err != nil {
		return nil, err
	}
	var urls []string
	for _, r := range results {
		if !ValidReferral(a, r.Record.All("Referred-Auth-Area")) {
			continue
		}
		for _, u := range r.Record.All("Referral") {
			urls = append(urls, NormalizeURL(u, candidateKey))
		}
	}
	return urls, nil
}

// ValidReferral reports whether every Referred-Auth-Area value on a
// candidate referral record lies within the enclosing area (spec.md
// §4.4: "a referral record is valid only if its Referred-Auth-Area
// value lies within the enclosing area; rejected otherwise").
func ValidReferral(area *schema.Area, referredAreas []string) bool {
	if len(referredAreas) == 0 {
		return false
	}
	enclosing := DomainKey(area.Name)
	for _, ra := range referredAreas {
		key := DomainKey(ra)
		if key != enclosing && !strings.HasSuffix(key, "."+enclosing) {
			return false
		}
	}
	return true
}

// NormalizeURL strips a trailing '/' and appends "/auth-area=<name>"
// when the URL lacks an explicit auth-area component and areaName is
// known (spec.md §4.4).
func NormalizeURL(rawURL, areaName string) string {
	url := strings.TrimRight(rawURL, "/")
	if strings.Contains(url, "auth-area=") {
		return url
	}
	if areaName == "" {
		return url
	}
	return fmt.Sprintf("%s/auth-area=%s", url, areaName)
}
