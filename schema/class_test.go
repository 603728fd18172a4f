package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClass() Class {
	return Class{
		Name: "domain",
		Attributes: []Attribute{
			{Name: "Domain-Name", Required: true, Index: IndexExact, Type: TypeText},
		},
	}
}

func TestWithBaseAttributesIsIdempotent(t *testing.T) {
	c := newTestClass()
	once := c.WithBaseAttributes()
	twice := once.WithBaseAttributes()
	assert.Equal(t, len(once.Attributes), len(twice.Attributes))
	assert.Equal(t, "Class-Name", once.Attributes[0].Name)
}

func TestAttrByNameResolvesAlias(t *testing.T) {
	c := newTestClass().WithBaseAttributes()
	a, ok := c.AttrByName("Auth-Area-ID")
	require.True(t, ok)
	assert.Equal(t, "ID", a.Name)
}

func TestPrimaryKeyAttrsIncludesID(t *testing.T) {
	c := newTestClass().WithBaseAttributes()
	pk := c.PrimaryKeyAttrs()
	require.Len(t, pk, 1)
	assert.Equal(t, "ID", pk[0].Name)
}

func TestClassValidateRequiresNonBaseAttribute(t *testing.T) {
	c := Class{Name: "empty"}
	c = *c.WithBaseAttributes()
	assert.Error(t, c.Validate())
}

func TestClassValidateRejectsDuplicateAttributeNames(t *testing.T) {
	c := Class{
		Name: "dup",
		Attributes: []Attribute{
			{Name: "Foo", Required: false},
			{Name: "Bar", Aliases: []string{"Foo"}, Required: false},
		},
	}
	c = *c.WithBaseAttributes()
	assert.Error(t, c.Validate())
}

func TestClassValidateOK(t *testing.T) {
	c := newTestClass().WithBaseAttributes()
	assert.NoError(t, c.Validate())
}
