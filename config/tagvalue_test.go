package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRecordsSingleRecord(t *testing.T) {
	input := `root-dir: /var/rwhoisd
port: 4321
`
	recs, err := ScanRecords(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	v, ok := recs[0].Get("root-dir")
	assert.True(t, ok)
	assert.Equal(t, "/var/rwhoisd", v)
}

func TestScanRecordsMultipleSeparated(t *testing.T) {
	input := `name: foo.example
type: primary
-----
name: bar.example
type: secondary
-----
`
	recs, err := ScanRecords(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	n0, _ := recs[0].Get("name")
	n1, _ := recs[1].Get("name")
	assert.Equal(t, "foo.example", n0)
	assert.Equal(t, "bar.example", n1)
}

func TestScanRecordsIgnoresCommentsAndBlankLines(t *testing.T) {
	input := `# a comment
name: foo.example

type: primary
`
	recs, err := ScanRecords(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Len(t, recs[0].Tags, 2)
}

func TestScanRecordsRejectsMissingColon(t *testing.T) {
	_, err := ScanRecords(strings.NewReader("not-a-tag-value-line\n"))
	assert.Error(t, err)
}

func TestRecordAllPreservesOrder(t *testing.T) {
	input := `master: a.example
master: b.example
slave: c.example
`
	recs, err := ScanRecords(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example", "b.example"}, recs[0].All("master"))
}

func TestWriteRecordRoundTrip(t *testing.T) {
	rec := Record{Tags: []TagValue{{Tag: "Serial-Number", Value: "1"}, {Tag: "Hostmaster", Value: "admin@example.net"}}}
	var buf bytes.Buffer
	require.NoError(t, WriteRecord(&buf, rec))

	recs, err := ScanRecords(&buf)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	v, _ := recs[0].Get("Hostmaster")
	assert.Equal(t, "admin@example.net", v)
}
