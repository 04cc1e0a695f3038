package app

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/texforge/internal/config"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "texforge.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNewApp(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
basedir    = "`+dir+`"
state_file = "custom.state"
`)

	a, err := NewApp(io.Discard, &Options{
		ConfigPath: path,
		LogLevel:   "info",
		LogFormat:  "text",
	})
	require.NoError(t, err)
	assert.Equal(t, dir, a.Config().Basedir)
	assert.Equal(t, "custom.state", a.Config().StateFile)
}

func TestNewAppFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `basedir = "`+dir+`"`)

	a, err := NewApp(io.Discard, &Options{
		ConfigPath: path,
		Continuous: true,
		StateFile:  "override.state",
		LogFile:    "override.log",
		AppendLog:  true,
		LogLevel:   "debug",
		LogFormat:  "text",
	})
	require.NoError(t, err)

	cfg := a.Config()
	assert.True(t, cfg.Continuous)
	assert.Equal(t, "override.state", cfg.StateFile)
	assert.Equal(t, "override.log", cfg.LogFile)
	assert.True(t, cfg.AppendLog)
}

func TestNewAppRejectsBadRules(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
basedir = "`+dir+`"

rule "\\.tex$" {
  action = "teleport"
}
`)

	_, err := NewApp(io.Discard, &Options{
		ConfigPath: path,
		LogLevel:   "info",
		LogFormat:  "text",
	})
	require.Error(t, err)

	var cfgErr *config.Error
	assert.ErrorAs(t, err, &cfgErr)
}
