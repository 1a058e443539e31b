package appdir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirUsesOverrideVerbatim(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "custom-data-dir")
	got, err := Dir(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}

func TestDirCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "agentmesh-data")
	got, err := Dir(dir)
	require.NoError(t, err)
	assert.DirExists(t, got)
}

func TestLoadSettingsDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	settings, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), settings)
}

func TestSaveAndLoadSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	original := DefaultSettings()
	original.LogLevel = "debug"
	original.DBPoolSize = 10

	require.NoError(t, SaveSettings(path, original))

	loaded, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestLoadSettingsRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := LoadSettings(path)
	assert.Error(t, err)
}

func TestDatabasePathAndSettingsPath(t *testing.T) {
	dir := "/tmp/agentmesh"
	assert.Equal(t, filepath.Join(dir, "agentmesh.db"), DatabasePath(dir))
	assert.Equal(t, filepath.Join(dir, "settings.json"), SettingsPath(dir))
}
