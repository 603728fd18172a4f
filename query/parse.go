package query

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// Options gates the wildcard/substring extensions per the server's
// configuration (spec.md §4.3).
type Options struct {
	AllowWildcard  bool
	AllowSubstring bool
}

// Parse tokenizes and parses a raw query line into a Query. Quoted
// values are tokenized with shlex, which generalizes directly to the
// grammar's `'"'VALUE'"'` rule and preserves interior whitespace
// (spec.md §6.3 design note).
func Parse(line string, opts Options) (Query, error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return Query{}, fmt.Errorf("invalid query syntax: %w", err)
	}
	if len(tokens) == 0 {
		return Query{}, fmt.Errorf("invalid query syntax: empty query")
	}

	class := ""
	if len(tokens) > 1 && !looksLikeTerm(tokens[0]) {
		class = tokens[0]
		tokens = tokens[1:]
	}

	branches := splitKeyword(tokens, "OR")
	var q Query
	q.Class = class
	for _, branch := range branches {
		and, err := parseAndExpr(branch, opts)
		if err != nil {
			return Query{}, err
		}
		q.Or = append(q.Or, and)
	}
	return q, nil
}

// looksLikeTerm reports whether tok is itself a complete term (bare
// value or attr op value), as opposed to a candidate class-name token.
func looksLikeTerm(tok string) bool {
	if strings.Contains(tok, "=") {
		return true
	}
	if strings.EqualFold(tok, "AND") || strings.EqualFold(tok, "OR") {
		return true
	}
	return false
}

func splitKeyword(tokens []string, keyword string) [][]string {
	var groups [][]string
	var cur []string
	for _, t := range tokens {
		if strings.EqualFold(t, keyword) {
			groups = append(groups, cur)
			cur = nil
			continue
		}
		cur = append(cur, t)
	}
	groups = append(groups, cur)
	return groups
}

func parseAndExpr(tokens []string, opts Options) (AndExpr, error) {
	groups := splitKeyword(tokens, "AND")
	var and AndExpr
	for _, g := range groups {
		if len(g) == 0 {
			return and, fmt.Errorf("invalid query syntax: empty term")
		}
		// An implicit AND: several bare/attr=value tokens with no
		// explicit AND between them still conjoin (spec.md §4.3: "a
		// missing operator between terms is implicit AND").
		for _, tok := range g {
			term, err := parseTerm(tok, opts)
			if err != nil {
				return and, err
			}
			and.Terms = append(and.Terms, term)
		}
	}
	return and, nil
}

func parseTerm(tok string, opts Options) (Term, error) {
	var term Term
	switch {
	case strings.Contains(tok, "!="):
		parts := strings.SplitN(tok, "!=", 2)
		term.Attr, term.Op, term.Value = parts[0], OpNotEquals, parts[1]
	case strings.Contains(tok, "="):
		parts := strings.SplitN(tok, "=", 2)
		term.Attr, term.Op, term.Value = parts[0], OpEquals, parts[1]
	default:
		term.Value = tok
	}
	if strings.Contains(term.Value, "*") {
		if !opts.AllowWildcard {
			return term, fmt.Errorf("invalid query syntax: wildcards not permitted")
		}
		if strings.HasPrefix(term.Value, "*") && !opts.AllowSubstring {
			return term, fmt.Errorf("invalid query syntax: substring queries not permitted")
		}
	}
	return term, nil
}
