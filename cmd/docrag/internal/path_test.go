package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	got, err := ResolvePath(file)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, "a.txt", filepath.Base(got))
	assert.False(t, IsDir(got))

	got, err = ResolvePath(dir)
	require.NoError(t, err)
	assert.True(t, IsDir(got))

	_, err = ResolvePath(filepath.Join(dir, "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestStringList(t *testing.T) {
	var l StringList
	require.NoError(t, l.Set("**/*.md"))
	require.NoError(t, l.Set("**/*.pdf"))
	assert.Equal(t, StringList{"**/*.md", "**/*.pdf"}, l)
	assert.Equal(t, "**/*.md,**/*.pdf", l.String())
}
