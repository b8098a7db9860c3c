package config

import (
	"fmt"

	"github.com/mixdeck-io/mixdeck/internal/models"
)

// LoadSettings loads the global settings from ~/.mixdeck/settings.yaml.
// If the file doesn't exist, returns default settings.
func LoadSettings() (*models.Settings, error) {
	path, err := GlobalSettingsFile()
	if err != nil {
		return nil, err
	}
	return LoadSettingsFile(path)
}

// LoadSettingsFile loads settings from path over the defaults and checks
// them.
func LoadSettingsFile(path string) (*models.Settings, error) {
	s, err := LoadYAMLOrDefault(path, models.NewSettings)
	if err != nil {
		return nil, err
	}
	if err := Validate(s); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", path, err)
	}
	return s, nil
}

// SaveSettings saves the global settings to ~/.mixdeck/settings.yaml.
func SaveSettings(settings *models.Settings) error {
	path, err := GlobalSettingsFile()
	if err != nil {
		return err
	}
	return SaveYAML(path, settings)
}

// Validate rejects settings the bridge cannot run with.
func Validate(s *models.Settings) error {
	switch {
	case s.Serial.Port == "":
		return fmt.Errorf("serial.port is required")
	case s.Serial.Baud <= 0:
		return fmt.Errorf("serial.baud must be positive, got %d", s.Serial.Baud)
	case s.Display.MaxApps <= 0:
		return fmt.Errorf("display.max_apps must be positive, got %d", s.Display.MaxApps)
	case s.Display.MaxDevices < 0:
		return fmt.Errorf("display.max_devices must not be negative, got %d", s.Display.MaxDevices)
	case s.Display.IconSize <= 0:
		return fmt.Errorf("display.icon_size must be positive, got %d", s.Display.IconSize)
	case s.Display.AnalysisSize <= 0:
		return fmt.Errorf("display.analysis_size must be positive, got %d", s.Display.AnalysisSize)
	}

	seen := make(map[string]bool, len(s.Overrides))
	for i, o := range s.Overrides {
		if o.Name == "" {
			return fmt.Errorf("overrides[%d]: name is required", i)
		}
		if seen[o.Name] {
			return fmt.Errorf("overrides[%d]: duplicate name %q", i, o.Name)
		}
		seen[o.Name] = true
	}
	return nil
}
