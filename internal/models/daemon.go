package models

import "time"

// DaemonInfo represents the daemon connection information.
// This corresponds to ~/.mixdeck/daemon.yaml.
type DaemonInfo struct {
	Version    int       `yaml:"version"`
	Host       string    `yaml:"host"`
	Port       int       `yaml:"port"`
	PID        int       `yaml:"pid"`
	SerialPort string    `yaml:"serial_port"`
	StartedAt  time.Time `yaml:"started_at"`
}

// NewDaemonInfo creates a new daemon info with current values.
func NewDaemonInfo(host string, port, pid int, serialPort string) *DaemonInfo {
	return &DaemonInfo{
		Version:    1,
		Host:       host,
		Port:       port,
		PID:        pid,
		SerialPort: serialPort,
		StartedAt:  time.Now().UTC(),
	}
}
