// Package tray implements the system tray icon and menu for the daemon.
package tray

// DaemonState provides access to daemon state for the tray.
type DaemonState interface {
	Port() int
	Link() LinkInfo
	Apps() []AppInfo
	Resend() error
	RequestShutdown()
}

// LinkInfo describes the serial link.
type LinkInfo struct {
	Port      string
	State     string
	Connected bool
}

// AppInfo describes one application shown on the display.
type AppInfo struct {
	Title  string
	Volume int
}
