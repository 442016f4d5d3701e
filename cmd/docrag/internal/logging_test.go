package internal

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(LogDirEnv, dir)

	got, err := LogDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}

func TestSetupLoggingWritesRunLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	t.Setenv(LogDirEnv, dir)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	path, err := SetupLogging("search")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Regexp(t, `^docrag-search-\d{8}-\d{6}-\d+\.log$`, filepath.Base(path))

	log.Printf("hello from test")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
}

func TestSetupLoggingOff(t *testing.T) {
	t.Setenv(LogDirEnv, "off")
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	path, err := SetupLogging("search")
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestPruneLogs(t *testing.T) {
	dir := t.TempDir()
	for i := 1; i <= 5; i++ {
		name := fmt.Sprintf("docrag-ingest-20260101-00000%d-1.log", i)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	other := filepath.Join(dir, "docrag-search-20250101-000000-1.log")
	require.NoError(t, os.WriteFile(other, nil, 0644))

	require.NoError(t, pruneLogs(dir, "docrag-ingest-", 2))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"docrag-ingest-20260101-000004-1.log",
		"docrag-ingest-20260101-000005-1.log",
		"docrag-search-20250101-000000-1.log",
	}, names)
}
