package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mixdeck-io/mixdeck/internal/config"
)

var settingsCmd = &cobra.Command{
	Use:     "settings",
	Aliases: []string{"config"},
	Short:   "Show the effective settings",
	Long: `Show where settings are read from and the values mixdeckd will use,
defaults included. Edit the file and restart the daemon to apply changes.`,
	Args: cobra.NoArgs,
	RunE: runSettings,
}

var settingsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default settings file if none exists",
	Args:  cobra.NoArgs,
	RunE:  runSettingsInit,
}

func init() {
	settingsCmd.AddCommand(settingsInitCmd)
}

func runSettings(cmd *cobra.Command, args []string) error {
	path, err := config.GlobalSettingsFile()
	if err != nil {
		return err
	}
	p := printer{styled: stdoutIsTerminal()}

	source := path
	if !config.FileExists(path) {
		source += " (not found, using defaults)"
	}
	fmt.Printf("%s %s\n\n", p.render(styleLabel, "Settings:"), source)

	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Println(p.render(styleError, err.Error()))
		return fmt.Errorf("settings are not usable")
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to render settings: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

func runSettingsInit(cmd *cobra.Command, args []string) error {
	path, err := config.GlobalSettingsFile()
	if err != nil {
		return err
	}
	if config.FileExists(path) {
		fmt.Printf("%s already exists.\n", path)
		return nil
	}

	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	if err := config.SaveSettings(settings); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
