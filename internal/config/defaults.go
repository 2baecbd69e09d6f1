package config

import (
	"os"
	"path/filepath"

	"media-optimizer/internal/domain"
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		ServerURL:      "http://localhost:5000",
		DataDir:        filepath.Join(homeDir, ".media-optimizer"),
		DefaultProfile: "balanced",
	}
}

// withDefaults fills any empty field from the default settings.
func withDefaults(cfg domain.Settings) domain.Settings {
	defaults := DefaultSettings()
	if cfg.ServerURL == "" {
		cfg.ServerURL = defaults.ServerURL
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaults.DataDir
	}
	if cfg.DefaultProfile == "" {
		cfg.DefaultProfile = defaults.DefaultProfile
	}
	return cfg
}
