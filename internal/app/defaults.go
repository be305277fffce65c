package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - ARDRIVE_CONFIG_PATH: config file location (default: ~/.config/ardrive.toml)
//   - ARDRIVE_HOME: base directory for ardrive data (default: ~/.local/share/ardrive)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"sync_folder": filepath.Join(homeDir, "ArDrive"),
	}, nil
}

// getConfigPath returns the config file path, checking ARDRIVE_CONFIG_PATH first,
// then falling back to the default ~/.config/ardrive.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("ARDRIVE_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "ardrive.toml"), nil
}

// getBaseDir returns the base directory for ardrive data, checking ARDRIVE_HOME
// first, then falling back to the XDG default ~/.local/share/ardrive.
func getBaseDir() (string, error) {
	if path := os.Getenv("ARDRIVE_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "ardrive"), nil
}
