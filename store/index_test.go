package store

import (
	"net"
	"testing"

	"github.com/rwhoisd/rwhoisd/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexAddAndLookupExact(t *testing.T) {
	idx := NewIndex(schema.IndexExact)
	idx.Add("Example.NET", Locator{FileNo: 0, Offset: 10})
	locs := idx.Lookup("example.net")
	require.Len(t, locs, 1)
	assert.Equal(t, Locator{FileNo: 0, Offset: 10}, locs[0])
}

func TestIndexAllWordsIndexesEachToken(t *testing.T) {
	idx := NewIndex(schema.IndexAllWords)
	idx.Add("Jane Doe Networks", Locator{FileNo: 0, Offset: 0})
	assert.Len(t, idx.Lookup("jane"), 1)
	assert.Len(t, idx.Lookup("networks"), 1)
	assert.Len(t, idx.Lookup("doe"), 1)
}

func TestIndexPrefixScan(t *testing.T) {
	idx := NewIndex(schema.IndexExact)
	idx.Add("example.net", Locator{FileNo: 0, Offset: 0})
	idx.Add("example.org", Locator{FileNo: 0, Offset: 10})
	idx.Add("other.net", Locator{FileNo: 0, Offset: 20})
	locs := idx.PrefixScan("example")
	assert.Len(t, locs, 2)
}

func TestIndexSubstringScan(t *testing.T) {
	idx := NewIndex(schema.IndexExact)
	idx.Add("foo.example.net", Locator{FileNo: 0, Offset: 0})
	idx.Add("bar.net", Locator{FileNo: 0, Offset: 10})
	locs := idx.SubstringScan("example")
	assert.Len(t, locs, 1)
}

func TestIndexCIDRContainingScan(t *testing.T) {
	idx := NewIndex(schema.IndexCIDR)
	idx.Add("192.168.0.0/16", Locator{FileNo: 0, Offset: 0})
	locs := idx.CIDRContainingScan(net.ParseIP("192.168.1.1"))
	assert.Len(t, locs, 1)
}

func TestNormalizeCIDRZeroesHostBits(t *testing.T) {
	assert.Equal(t, "192.168.0.0/24", NormalizeCIDR("192.168.0.5/24"))
}

func TestNormalizeCIDRBareIPGetsHostMask(t *testing.T) {
	assert.Equal(t, "10.0.0.1/32", NormalizeCIDR("10.0.0.1"))
}

func TestNormalizeCIDRRejectsGarbage(t *testing.T) {
	assert.Equal(t, "", NormalizeCIDR("not-an-ip"))
}

func TestSoundexKnownExamples(t *testing.T) {
	assert.Equal(t, "R163", Soundex("Robert"))
	assert.Equal(t, "R163", Soundex("Rupert"))
	assert.Equal(t, "A226", Soundex("Ashcraft"))
}

func TestIndexWriteAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	idx := NewIndex(schema.IndexExact)
	idx.Add("example.net", Locator{FileNo: 2, Offset: 42})
	path := dir + "/idx.Domain-Name"
	require.NoError(t, idx.WriteTo(path))

	loaded, err := LoadIndex(path, schema.IndexExact)
	require.NoError(t, err)
	locs := loaded.Lookup("example.net")
	require.Len(t, locs, 1)
	assert.Equal(t, Locator{FileNo: 2, Offset: 42}, locs[0])
}

func TestLoadIndexMissingFileReturnsEmpty(t *testing.T) {
	idx, err := LoadIndex("/no/such/index/file", schema.IndexExact)
	require.NoError(t, err)
	assert.Empty(t, idx.Lookup("anything"))
}
