package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that relocate the config file and data directory.
const (
	EnvConfigPath = "SMUGDUPS_CONFIG_PATH"
	EnvHome       = "SMUGDUPS_HOME"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - SMUGDUPS_CONFIG_PATH: config file location (default: ~/.config/smugdups.toml)
//   - SMUGDUPS_HOME: base directory for smugdups data (default: ~/.local/share/smugdups)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "smugdups.toml"), nil
}

func getBaseDir() (string, error) {
	if path := os.Getenv(EnvHome); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "smugdups"), nil
}
