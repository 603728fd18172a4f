package store

import (
	"path/filepath"
	"testing"

	"github.com/rwhoisd/rwhoisd/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClass(t *testing.T) *schema.Class {
	t.Helper()
	dir := t.TempDir()
	class := schema.Class{
		Name:    "domain",
		DataDir: dir,
		Attributes: []schema.Attribute{
			{Name: "Domain-Name", Required: true, Index: schema.IndexExact, Type: schema.TypeText},
			{Name: "IP-Network", Required: false, Index: schema.IndexCIDR, Type: schema.TypeText},
		},
	}
	full := class.WithBaseAttributes()
	require.NoError(t, full.Validate())
	return full
}

func TestAddRecordRegistersIndexEntryWithKind(t *testing.T) {
	class := newTestClass(t)
	cs, err := OpenClassStore(class, DefaultLockOptions())
	require.NoError(t, err)

	require.NoError(t, cs.AddRecord([]Field{
		{Name: "Class-Name", Value: "domain"},
		{Name: "ID", Value: "X.1"},
		{Name: "Auth-Area", Value: "example.com"},
		{Name: "Updated", Value: "1"},
		{Name: "Domain-Name", Value: "example.com"},
	}))

	var found *MasterEntry
	for i := range cs.master.Entries {
		if cs.master.Entries[i].File == filepath.Base(cs.indexPath("Domain-Name")) {
			found = &cs.master.Entries[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, EntryExactIndex, found.Type)
	assert.Greater(t, found.Size, int64(0))
}

func TestRebuildRegistersEachIndexKindSeparately(t *testing.T) {
	class := newTestClass(t)
	cs, err := OpenClassStore(class, DefaultLockOptions())
	require.NoError(t, err)

	require.NoError(t, cs.AddRecord([]Field{
		{Name: "Class-Name", Value: "domain"},
		{Name: "ID", Value: "X.1"},
		{Name: "Auth-Area", Value: "example.com"},
		{Name: "Updated", Value: "1"},
		{Name: "Domain-Name", Value: "example.com"},
		{Name: "IP-Network", Value: "192.168.0.0/24"},
	}))

	require.NoError(t, cs.Rebuild())

	types := map[EntryType]bool{}
	for _, e := range cs.master.Entries {
		types[e.Type] = true
	}
	assert.True(t, types[EntryData])
	assert.True(t, types[EntryExactIndex])
	assert.True(t, types[EntryCIDRIndex])
}
