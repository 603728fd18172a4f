package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwhoisd/rwhoisd/proto"
	"github.com/rwhoisd/rwhoisd/schema"
	"github.com/rwhoisd/rwhoisd/store"
)

// fakeCatalog implements Catalog over a fixed set of areas built in
// memory, mirroring the shape server.Catalog exposes without pulling
// in the server package.
type fakeCatalog struct {
	areas  []*schema.Area
	stores map[string]*store.ClassStore
}

func (c *fakeCatalog) Areas() []*schema.Area { return c.areas }

func (c *fakeCatalog) AreaByName(name string) (*schema.Area, bool) {
	for _, a := range c.areas {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

func (c *fakeCatalog) ClassStore(areaName, className string) (*store.ClassStore, *schema.Class, bool) {
	a, ok := c.AreaByName(areaName)
	if !ok {
		return nil, nil, false
	}
	class, ok := a.ClassByName(className)
	if !ok {
		return nil, nil, false
	}
	cs, ok := c.stores[areaName+"\x00"+class.Name]
	return cs, class, ok
}

// newFixture builds a single "example.com" area with one "domain"
// class carrying an indexed Domain-Name attribute, and adds the given
// records via the real ClassStore.AddRecord path.
func newFixture(t *testing.T, records [][]store.Field) (*fakeCatalog, *schema.Area) {
	t.Helper()
	dir := t.TempDir()

	class := schema.Class{
		Name:    "domain",
		DataDir: dir + "/domain",
		Attributes: []schema.Attribute{
			{Name: "Domain-Name", Required: true, Index: schema.IndexExact, Type: schema.TypeText},
		},
	}
	full := class.WithBaseAttributes()
	require.NoError(t, full.Validate())

	area := &schema.Area{
		Name:    "example.com",
		Type:    schema.Primary,
		Classes: []schema.Class{*full},
	}

	cs, err := store.OpenClassStore(&area.Classes[0], store.DefaultLockOptions())
	require.NoError(t, err)

	for _, rec := range records {
		require.NoError(t, cs.AddRecord(rec))
	}

	cat := &fakeCatalog{
		areas:  []*schema.Area{area},
		stores: map[string]*store.ClassStore{"example.com\x00domain": cs},
	}
	return cat, area
}

func TestEvaluateSimpleMatch(t *testing.T) {
	cat, _ := newFixture(t, [][]store.Field{
		{{Name: "Class-Name", Value: "domain"}, {Name: "ID", Value: "X.42"}, {Name: "Auth-Area", Value: "example.com"}, {Name: "Updated", Value: "20200101000000000"}, {Name: "Domain-Name", Value: "example.com"}},
	})

	q, err := Parse("domain Domain-Name=example.com", Options{})
	require.NoError(t, err)

	results, code, err := Evaluate(cat, q, "example.com", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, proto.Code(0), code)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Lines, "domain:ID:X.42")
}

func TestEvaluateNoObjectsFound(t *testing.T) {
	cat, _ := newFixture(t, nil)
	q, err := Parse("domain Domain-Name=nothere.com", Options{})
	require.NoError(t, err)

	results, code, err := Evaluate(cat, q, "example.com", 0, nil)
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Equal(t, proto.NoObjectsFound, code)
}

func TestEvaluateInvalidAuthorityArea(t *testing.T) {
	cat, _ := newFixture(t, nil)
	q, err := Parse("domain Domain-Name=x", Options{})
	require.NoError(t, err)

	_, code, err := Evaluate(cat, q, "nowhere.tld", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, proto.InvalidAuthorityArea, code)
}

func TestEvaluateHitLimitExceeded(t *testing.T) {
	cat, _ := newFixture(t, [][]store.Field{
		{{Name: "Class-Name", Value: "domain"}, {Name: "ID", Value: "X.1"}, {Name: "Auth-Area", Value: "example.com"}, {Name: "Updated", Value: "1"}, {Name: "Domain-Name", Value: "a.com"}},
		{{Name: "Class-Name", Value: "domain"}, {Name: "ID", Value: "X.2"}, {Name: "Auth-Area", Value: "example.com"}, {Name: "Updated", Value: "1"}, {Name: "Domain-Name", Value: "b.com"}},
	})
	q, err := Parse("domain a.com OR b.com", Options{})
	require.NoError(t, err)

	_, code, err := Evaluate(cat, q, "example.com", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, proto.ExceededMaxObjectsLimit, code)
}

// TestEvaluateHitLimitExactlyMetSucceeds covers spec.md §8's stated
// boundary: exactly hitLimit matches succeeds and returns them all;
// only a count strictly greater than hitLimit is rejected.
func TestEvaluateHitLimitExactlyMetSucceeds(t *testing.T) {
	cat, _ := newFixture(t, [][]store.Field{
		{{Name: "Class-Name", Value: "domain"}, {Name: "ID", Value: "X.1"}, {Name: "Auth-Area", Value: "example.com"}, {Name: "Updated", Value: "1"}, {Name: "Domain-Name", Value: "a.com"}},
		{{Name: "Class-Name", Value: "domain"}, {Name: "ID", Value: "X.2"}, {Name: "Auth-Area", Value: "example.com"}, {Name: "Updated", Value: "1"}, {Name: "Domain-Name", Value: "b.com"}},
	})
	q, err := Parse("domain a.com OR b.com", Options{})
	require.NoError(t, err)

	results, code, err := Evaluate(cat, q, "example.com", 2, nil)
	require.NoError(t, err)
	assert.Equal(t, proto.Code(0), code)
	assert.Len(t, results, 2)
}

func TestCheckComplexityRejectsOverFanout(t *testing.T) {
	q, err := Parse("domain a=1 AND b=2 AND c=3", Options{})
	require.NoError(t, err)
	code := CheckComplexity(q, 2)
	assert.Equal(t, proto.QueryTooComplex, code)
}

func TestCheckComplexityZeroMeansNoCap(t *testing.T) {
	q, err := Parse("domain a=1 AND b=2 AND c=3", Options{})
	require.NoError(t, err)
	code := CheckComplexity(q, 0)
	assert.Equal(t, proto.Code(0), code)
}
