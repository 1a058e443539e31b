// Package appdir resolves the per-user application-data directory that
// hosts the persistence database file and a small JSON settings file,
// following platform convention (Library/Application Support on macOS,
// APPDATA on Windows, XDG config home on Linux).
package appdir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const dirName = "agentmesh"

// Settings is the small JSON sidecar file stored alongside the database.
type Settings struct {
	AppName    string `json:"app_name"`
	Version    string `json:"version"`
	DBPoolSize int    `json:"db_pool_size"`
	LogLevel   string `json:"log_level"`
}

// DefaultSettings mirrors the original desktop client's defaults.
func DefaultSettings() Settings {
	return Settings{
		AppName:    "Agent Manager",
		Version:    "0.0.1",
		DBPoolSize: 5,
		LogLevel:   "info",
	}
}

// Dir returns the per-user application-data directory for agentmesh,
// creating it if it does not already exist. override, if non-empty,
// is used verbatim instead of the platform default (set from
// config.Config.AppDataDir).
func Dir(override string) (string, error) {
	dir := override
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("appdir: resolving user config dir: %w", err)
		}
		dir = filepath.Join(base, dirName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("appdir: creating %s: %w", dir, err)
	}
	return dir, nil
}

// DatabasePath returns the SQLite-convention database file path inside
// dir. agentmesh's own pgstore backend does not use this file directly,
// but it is preserved as the path a local, file-backed persistence.Store
// implementation would use.
func DatabasePath(dir string) string {
	return filepath.Join(dir, dirName+".db")
}

// SettingsPath returns the settings JSON file path inside dir.
func SettingsPath(dir string) string {
	return filepath.Join(dir, "settings.json")
}

// LoadSettings reads the settings file at path, returning DefaultSettings
// if it does not exist.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("appdir: reading %s: %w", path, err)
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("appdir: parsing %s: %w", path, err)
	}
	return s, nil
}

// SaveSettings writes s to path as indented JSON.
func SaveSettings(path string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("appdir: encoding settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("appdir: writing %s: %w", path, err)
	}
	return nil
}
