// Package config handles configuration loading, saving, and path management.
package config

import (
	"os"
	"path/filepath"
)

// GlobalDirName is the name of the global mixdeck directory.
const GlobalDirName = ".mixdeck"

// File names
const (
	DaemonFileName   = "daemon.yaml"
	SettingsFileName = "settings.yaml"
	ScenarioFileName = "scenario.yaml"
)

// GlobalDir returns the path to the global mixdeck directory (~/.mixdeck/).
func GlobalDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, GlobalDirName), nil
}

func globalFile(name string) (string, error) {
	dir, err := GlobalDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// GlobalDaemonFile returns the path to the daemon.yaml file.
func GlobalDaemonFile() (string, error) {
	return globalFile(DaemonFileName)
}

// GlobalSettingsFile returns the path to the settings.yaml file.
func GlobalSettingsFile() (string, error) {
	return globalFile(SettingsFileName)
}

// ScenarioFile returns the scenario path from settings, or
// ~/.mixdeck/scenario.yaml when unset. A leading "~/" is expanded.
func ScenarioFile(configured string) (string, error) {
	if configured == "" {
		return globalFile(ScenarioFileName)
	}
	if len(configured) > 1 && configured[0] == '~' && (configured[1] == '/' || configured[1] == filepath.Separator) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, configured[2:]), nil
	}
	return configured, nil
}

// EnsureGlobalDir creates the global mixdeck directory if it doesn't exist.
func EnsureGlobalDir() error {
	dir, err := GlobalDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}
