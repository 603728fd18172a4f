package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendReturnsGrowingOffsets(t *testing.T) {
	dir := t.TempDir()
	df := DataFile{Path: filepath.Join(dir, "data.0000")}

	off1, size1, err := df.Append([]Field{{Name: "Domain-Name", Value: "example.net"}})
	require.NoError(t, err)
	assert.EqualValues(t, 0, off1)
	assert.Greater(t, size1, int64(0))

	off2, _, err := df.Append([]Field{{Name: "Domain-Name", Value: "other.net"}})
	require.NoError(t, err)
	assert.Equal(t, off1+size1, off2)
}

func TestScanAllReturnsEveryRecordWithOffsets(t *testing.T) {
	dir := t.TempDir()
	df := DataFile{Path: filepath.Join(dir, "data.0000")}

	off1, _, err := df.Append([]Field{{Name: "Domain-Name", Value: "example.net"}})
	require.NoError(t, err)
	off2, _, err := df.Append([]Field{{Name: "Domain-Name", Value: "other.net"}})
	require.NoError(t, err)

	recs, err := df.ScanAll(nil)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, off1, recs[0].Offset)
	assert.Equal(t, off2, recs[1].Offset)
	v, _ := recs[1].Get("Domain-Name")
	assert.Equal(t, "other.net", v)
}

func TestScanAllOnMissingFileReturnsEmpty(t *testing.T) {
	df := DataFile{Path: filepath.Join(t.TempDir(), "absent")}
	recs, err := df.ScanAll(nil)
	require.NoError(t, err)
	assert.Nil(t, recs)
}

func TestScanAllSkipsTombstonedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.0000")
	require.NoError(t, os.WriteFile(path, []byte("Domain-Name:example.net\n_ID:D1\n---\n"), 0644))

	df := DataFile{Path: path}
	recs, err := df.ScanAll(nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	_, ok := recs[0].Get("ID")
	assert.False(t, ok)
}

func TestTombstoneLiveRecordInPlace(t *testing.T) {
	// Tombstoning overwrites the first byte of each line with '_', so a
	// live record is tombstoned without changing its length.
	dir := t.TempDir()
	df := DataFile{Path: filepath.Join(dir, "data.0000")}
	offset, size, err := df.Append([]Field{{Name: "Domain-Name", Value: "example.net"}})
	require.NoError(t, err)

	err = df.Tombstone(offset, size)
	assert.NoError(t, err)
}

func TestTombstoneIsIdempotentOnAlreadyTombstonedRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.0000")
	body := "_Domain-Name:example.net\n---\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	df := DataFile{Path: path}
	err := df.Tombstone(0, int64(len(body)))
	assert.NoError(t, err)
}
