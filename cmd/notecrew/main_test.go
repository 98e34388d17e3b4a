package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/notecrew/internal/version"
)

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	t.Cleanup(func() {
		versionCmd.SetOut(nil)
		versionJSON = false
	})

	versionJSON = true
	require.NoError(t, versionCmd.RunE(versionCmd, nil))

	var info version.Info
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.NotEmpty(t, info.Version)
}

func TestOpenImageFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	require.NoError(t, os.WriteFile(a, []byte("x"), 0o644))

	sources, closeAll, err := openImageFiles([]string{a})
	require.NoError(t, err)
	defer closeAll()
	require.Len(t, sources, 1)
	assert.Equal(t, "a.jpg", sources[0].FileName)

	_, _, err = openImageFiles([]string{a, filepath.Join(dir, "missing.jpg")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.jpg")
}

func TestIsRunningAsSystemdService(t *testing.T) {
	t.Setenv("INVOCATION_ID", "")
	t.Setenv("WATCHDOG_USEC", "")
	assert.False(t, isRunningAsSystemdService())

	t.Setenv("INVOCATION_ID", "abc")
	assert.True(t, isRunningAsSystemdService())
}
