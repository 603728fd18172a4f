package referral

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTreeContainsStrictPrefix(t *testing.T) {
	tree := NewTree()
	tree.Insert(DomainKey("biz."), "biz.")

	area, ok := tree.Contains(DomainKey("sub.biz."))
	assert.True(t, ok)
	assert.Equal(t, "biz.", area)
}

func TestTreeContainsExactMatch(t *testing.T) {
	tree := NewTree()
	tree.Insert(DomainKey("biz."), "biz.")

	area, ok := tree.Contains(DomainKey("biz."))
	assert.True(t, ok)
	assert.Equal(t, "biz.", area)
}

func TestTreeContainsFalseOutsideAnyArea(t *testing.T) {
	tree := NewTree()
	tree.Insert(DomainKey("biz."), "biz.")

	_, ok := tree.Contains(DomainKey("unknown.tld"))
	assert.False(t, ok)
}

func TestTreeMostSpecificOrdersFromDeepestFirst(t *testing.T) {
	tree := NewTree()
	tree.Insert(DomainKey("biz."), "biz.")

	candidates := tree.MostSpecific(DomainKey("a.b.sub.biz."))
	assert.NotEmpty(t, candidates)
	// Most-specific (longest) candidate key must come first.
	for i := 1; i < len(candidates); i++ {
		assert.GreaterOrEqual(t, len(candidates[i-1]), len(candidates[i]))
	}
}

func TestTreeNetworkContainment(t *testing.T) {
	tree := NewTree()
	key, ok := NetworkKey("192.168.0.0/16")
	assert.True(t, ok)
	tree.Insert(key, "192.168.0.0/16")

	subKey, ok := NetworkKey("192.168.1.0/24")
	assert.True(t, ok)
	area, ok := tree.Contains(subKey)
	assert.True(t, ok)
	assert.Equal(t, "192.168.0.0/16", area)
}
