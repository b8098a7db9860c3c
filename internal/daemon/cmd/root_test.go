package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestLoadSettingsAppliesFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("serial:\n  port: /dev/ttyACM0\n  baud: 9600\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var f flags
	fs := pflag.NewFlagSet("mixdeckd", pflag.ContinueOnError)
	addFlags(fs, &f)
	if err := fs.Parse([]string{"--settings", path, "--baud", "115200", "--scenario", "/tmp/bench.yaml", "-v"}); err != nil {
		t.Fatal(err)
	}

	s, err := loadSettings(&f)
	if err != nil {
		t.Fatalf("loadSettings() error = %v", err)
	}
	if s.Serial.Port != "/dev/ttyACM0" {
		t.Errorf("port = %q, want the file's value", s.Serial.Port)
	}
	if s.Serial.Baud != 115200 {
		t.Errorf("baud = %d, want the flag's value", s.Serial.Baud)
	}
	if s.Audio.Scenario != "/tmp/bench.yaml" || !f.verbose {
		t.Errorf("scenario = %q, verbose = %v", s.Audio.Scenario, f.verbose)
	}
}

func TestLoadSettingsRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("display:\n  max_apps: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := loadSettings(&flags{settings: path}); err == nil {
		t.Error("loadSettings() error = nil for max_apps 0")
	}
}

func TestStopRequest(t *testing.T) {
	s := newStopRequest()
	select {
	case <-s.Done():
		t.Fatal("Done() closed before Trigger()")
	default:
	}

	s.Trigger()
	s.Trigger()
	select {
	case <-s.Done():
	default:
		t.Fatal("Done() not closed after Trigger()")
	}
}
