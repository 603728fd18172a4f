package store

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rwhoisd/rwhoisd/schema"
)

// Locator is a (file-number, offset) pair identifying a record within
// a class's data files (spec.md §4.2: "index files map keys to
// (file-number, offset) tuples").
type Locator struct {
	FileNo int
	Offset int64
}

// Index is one attribute's on-disk lookup table, held in memory once
// loaded. The on-disk form is a sorted "key\tfileNo\toffset" line file
// so it can be scanned with a simple prefix/equality walk.
type Index struct {
	Kind    schema.IndexKind
	entries map[string][]Locator
	keys    []string // sorted, for substring/prefix scans
}

// NewIndex returns an empty index of the given kind.
func NewIndex(kind schema.IndexKind) *Index {
	return &Index{Kind: kind, entries: map[string][]Locator{}}
}

// indexKeys derives the lookup keys for value according to kind
// (spec.md §4.2/§4.3): exact keys are used verbatim, all-words
// indexes each whitespace-delimited token, cidr keys are the
// normalised network prefix, soundex keys are the Soundex code.
func indexKeys(kind schema.IndexKind, value string) []string {
	switch kind {
	case schema.IndexExact:
		return []string{strings.ToLower(value)}
	case schema.IndexAllWords:
		fields := strings.Fields(value)
		out := make([]string, 0, len(fields))
		for _, f := range fields {
			out = append(out, strings.ToLower(f))
		}
		return out
	case schema.IndexCIDR:
		key := NormalizeCIDR(value)
		if key == "" {
			return nil
		}
		return []string{key}
	case schema.IndexSoundex:
		return []string{Soundex(value)}
	default:
		return nil
	}
}

// NormalizeCIDR parses a bare IP or a CIDR network and renders its
// canonical "network/prefixlen" form, zeroing bits beyond the mask
// (spec.md §4.4: "zero bits beyond the mask").
func NormalizeCIDR(value string) string {
	value = strings.TrimSpace(value)
	if !strings.Contains(value, "/") {
		ip := net.ParseIP(value)
		if ip == nil {
			return ""
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		value = fmt.Sprintf("%s/%d", value, bits)
	}
	_, network, err := net.ParseCIDR(value)
	if err != nil {
		return ""
	}
	return network.String()
}

// Soundex computes the four-character Soundex code (first letter plus
// three digits) used for the soundex-indexed attribute kind (spec.md §3
// index-kind enumeration). Every uncoded letter, H and W included,
// separates consonants, so same-coded letters on either side of one are
// both coded: "Ashcraft" yields "A226".
func Soundex(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	code := map[byte]byte{
		'B': '1', 'F': '1', 'P': '1', 'V': '1',
		'C': '2', 'G': '2', 'J': '2', 'K': '2', 'Q': '2', 'S': '2', 'X': '2', 'Z': '2',
		'D': '3', 'T': '3',
		'L': '4',
		'M': '5', 'N': '5',
		'R': '6',
	}
	var out strings.Builder
	first := s[0]
	out.WriteByte(first)
	last := code[first]
	for i := 1; i < len(s) && out.Len() < 4; i++ {
		c := s[i]
		if c < 'A' || c > 'Z' {
			continue
		}
		d, ok := code[c]
		if !ok {
			last = 0
			continue
		}
		if d != last {
			out.WriteByte(d)
		}
		last = d
	}
	for out.Len() < 4 {
		out.WriteByte('0')
	}
	return out.String()
}

// Add records value → loc in the index, deriving keys by the index's
// kind.
func (idx *Index) Add(value string, loc Locator) {
	for _, k := range indexKeys(idx.Kind, value) {
		if _, ok := idx.entries[k]; !ok {
			idx.keys = append(idx.keys, k)
		}
		idx.entries[k] = append(idx.entries[k], loc)
	}
	sort.Strings(idx.keys)
}

// Lookup returns every locator exactly matching key.
func (idx *Index) Lookup(key string) []Locator {
	return idx.entries[strings.ToLower(key)]
}

// PrefixScan returns every locator whose key has the given prefix,
// used for wildcard/substring query terms (spec.md §4.3) gated by the
// caller's config checks.
func (idx *Index) PrefixScan(prefix string) []Locator {
	prefix = strings.ToLower(prefix)
	var out []Locator
	i := sort.SearchStrings(idx.keys, prefix)
	for ; i < len(idx.keys) && strings.HasPrefix(idx.keys[i], prefix); i++ {
		out = append(out, idx.entries[idx.keys[i]]...)
	}
	return out
}

// SubstringScan returns every locator whose key contains needle
// anywhere, for leading-'*' substring queries.
func (idx *Index) SubstringScan(needle string) []Locator {
	needle = strings.ToLower(needle)
	var out []Locator
	for _, k := range idx.keys {
		if strings.Contains(k, needle) {
			out = append(out, idx.entries[k]...)
		}
	}
	return out
}

// CIDRContainingScan returns every locator whose network key contains
// ip, used to resolve a network-typed query term against a
// cidr-indexed attribute.
func (idx *Index) CIDRContainingScan(ip net.IP) []Locator {
	var out []Locator
	for k, locs := range idx.entries {
		_, network, err := net.ParseCIDR(k)
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			out = append(out, locs...)
		}
	}
	return out
}

// WriteTo serializes the index as "key\tfileNo\toffset" lines, one
// per (key, locator) pair, sorted for stable diffs.
func (idx *Index) WriteTo(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write index %s: %w", path, err)
	}
	defer f.Close()
	for _, k := range idx.keys {
		for _, loc := range idx.entries[k] {
			if _, err := fmt.Fprintf(f, "%s\t%d\t%d\n", k, loc.FileNo, loc.Offset); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadIndex reads an index file written by WriteTo.
func LoadIndex(path string, kind schema.IndexKind) (*Index, error) {
	idx := NewIndex(kind)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		parts := strings.SplitN(sc.Text(), "\t", 3)
		if len(parts) != 3 {
			continue
		}
		fileNo, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		offset, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			continue
		}
		key := parts[0]
		if _, ok := idx.entries[key]; !ok {
			idx.keys = append(idx.keys, key)
		}
		idx.entries[key] = append(idx.entries[key], Locator{FileNo: fileNo, Offset: offset})
	}
	sort.Strings(idx.keys)
	return idx, sc.Err()
}
