package referral

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPuntFileParsesURLsAndSkipsComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "punt")
	content := "# comment\n\nrwhois://root1.example:4321\nrwhois://root2.example:4321\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	urls, err := LoadPuntFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"rwhois://root1.example:4321", "rwhois://root2.example:4321"}, urls)
}

func TestLoadPuntFileMissingIsNotAnError(t *testing.T) {
	urls, err := LoadPuntFile(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Nil(t, urls)
}

func TestLoadPuntFileEmptyPathIsNoOp(t *testing.T) {
	urls, err := LoadPuntFile("")
	require.NoError(t, err)
	assert.Nil(t, urls)
}

func TestLoadPuntFileRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "punt")
	require.NoError(t, os.WriteFile(path, []byte("not-a-url\n"), 0644))

	_, err := LoadPuntFile(path)
	assert.Error(t, err)
}
