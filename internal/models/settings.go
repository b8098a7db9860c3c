package models

import (
	"runtime"
	"time"
)

// SerialConfig holds the link settings.
type SerialConfig struct {
	Port            string   `yaml:"port"`
	Baud            int      `yaml:"baud"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	RetryInterval   Duration `yaml:"retry_interval"`
	BootDelay       Duration `yaml:"boot_delay"`
	AckPollInterval Duration `yaml:"ack_poll_interval"`
	AckTimeout      Duration `yaml:"ack_timeout"` // 0 = wait forever
}

// DisplayConfig holds what is sent to the display and how.
type DisplayConfig struct {
	MaxApps         int  `yaml:"max_apps"`
	MaxDevices      int  `yaml:"max_devices"`
	DefaultPriority int  `yaml:"default_priority"`
	IconSize        int  `yaml:"icon_size"`
	AnalysisSize    int  `yaml:"analysis_size"`
	ASCIITitles     bool `yaml:"ascii_titles"`
	SendClock       bool `yaml:"send_clock"`
}

// AudioConfig selects the audio source.
type AudioConfig struct {
	Scenario string `yaml:"scenario"` // empty = ~/.mixdeck/scenario.yaml
}

// NotificationsConfig controls desktop notifications.
type NotificationsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Settings represents global application settings.
// This corresponds to ~/.mixdeck/settings.yaml.
type Settings struct {
	Version       int                 `yaml:"version"`
	Serial        SerialConfig        `yaml:"serial"`
	Display       DisplayConfig       `yaml:"display"`
	Audio         AudioConfig         `yaml:"audio"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Overrides     []AppOverride       `yaml:"overrides"`
}

// NewSettings creates settings with default values.
func NewSettings() *Settings {
	port, baud := "/dev/ttyUSB0", 57600
	if runtime.GOOS == "windows" {
		port, baud = "COM5", 74880
	}

	return &Settings{
		Version: 1,
		Serial: SerialConfig{
			Port:            port,
			Baud:            baud,
			ReadTimeout:     Duration(100 * time.Millisecond),
			RetryInterval:   Duration(5 * time.Second),
			BootDelay:       Duration(15 * time.Second),
			AckPollInterval: Duration(time.Millisecond),
			AckTimeout:      Duration(10 * time.Second),
		},
		Display: DisplayConfig{
			MaxApps:         4,
			MaxDevices:      6,
			DefaultPriority: 5,
			IconSize:        128,
			AnalysisSize:    64,
			ASCIITitles:     false,
			SendClock:       true,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
		},
		Overrides: DefaultOverrides(),
	}
}

// DefaultOverrides is the built-in table for common applications.
func DefaultOverrides() []AppOverride {
	p := func(v int) *int { return &v }
	c := func(v uint16) *PackedColor { pc := PackedColor(v); return &pc }

	return []AppOverride{
		{Name: "Spotify", Priority: p(0), Color: c(7852)},
		{Name: "Google Chrome", Rename: "Chrome", Priority: p(1), Color: c(55879)},
		{Name: "Discord", Priority: p(2), Color: c(29787)},
		{Name: "steam", Rename: "Steam", Priority: p(6)},
		{Name: "System Sounds", Rename: "System", Priority: p(10)},
		{Name: "SocialClubHelper", Priority: p(11)},
		{Name: "Launcher", Priority: p(11)},
		{Name: "VLC media player", Rename: "VLC"},
		{Name: "Red Dead Redemption 2", Rename: "Red Dead 2"},
	}
}
