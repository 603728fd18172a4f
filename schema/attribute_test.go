package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileFormatAndMatches(t *testing.T) {
	a := Attribute{Name: "Network-Name", Format: `^[A-Za-z0-9.-]+$`}
	require.NoError(t, a.CompileFormat())
	assert.True(t, a.MatchesFormat("example-net.1"))
	assert.False(t, a.MatchesFormat("has spaces"))
}

func TestMatchesFormatWithNoFormatAlwaysTrue(t *testing.T) {
	a := Attribute{Name: "Comment"}
	assert.True(t, a.MatchesFormat("anything at all"))
}

func TestCompileFormatRejectsBadRegexp(t *testing.T) {
	a := Attribute{Name: "Bad", Format: `(unterminated`}
	assert.Error(t, a.CompileFormat())
}

func TestAttributeValidatePrimaryKeyRequiresRequired(t *testing.T) {
	a := Attribute{Name: "ID", PrimaryKey: true, Required: false}
	assert.Error(t, a.Validate())
}

func TestAttributeValidateMultiLineAndRepeatableExclusive(t *testing.T) {
	a := Attribute{Name: "Description", MultiLine: true, Repeatable: true}
	assert.Error(t, a.Validate())
}

func TestAttributeValidateBadIdentifier(t *testing.T) {
	a := Attribute{Name: "bad name", Required: false}
	assert.Error(t, a.Validate())
}

func TestNamesIncludesAliases(t *testing.T) {
	a := Attribute{Name: "ID", Aliases: []string{"Auth-Area-ID"}}
	assert.Equal(t, []string{"ID", "Auth-Area-ID"}, a.Names())
}

func TestBaseAttributesIncludesRequiredSet(t *testing.T) {
	base := BaseAttributes()
	names := map[string]bool{}
	for _, a := range base {
		names[a.Name] = true
	}
	for _, want := range []string{"Class-Name", "ID", "Auth-Area", "Updated", "Guardian", "Private", "TTL"} {
		assert.True(t, names[want], "missing base attribute %q", want)
	}
}
