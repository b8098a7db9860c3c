package config

import (
	"os"
	"runtime"
	"syscall"

	"github.com/mixdeck-io/mixdeck/internal/models"
)

// LoadDaemonInfo reads ~/.mixdeck/daemon.yaml, which names the port the
// running mixdeckd serves on. It returns nil when no daemon published one.
func LoadDaemonInfo() (*models.DaemonInfo, error) {
	path, err := GlobalDaemonFile()
	if err != nil {
		return nil, err
	}
	return readDaemonInfo(path)
}

func readDaemonInfo(path string) (*models.DaemonInfo, error) {
	if !FileExists(path) {
		return nil, nil
	}
	info := &models.DaemonInfo{}
	if err := LoadYAML(path, info); err != nil {
		return nil, err
	}
	return info, nil
}

// SaveDaemonInfo publishes info for clients.
func SaveDaemonInfo(info *models.DaemonInfo) error {
	if err := EnsureGlobalDir(); err != nil {
		return err
	}
	path, err := GlobalDaemonFile()
	if err != nil {
		return err
	}
	return SaveYAML(path, info)
}

// RemoveDaemonInfo withdraws the published info. A missing file is fine.
func RemoveDaemonInfo() error {
	path, err := GlobalDaemonFile()
	if err != nil {
		return err
	}
	return removeIfExists(path)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsDaemonRunning reports whether a daemon published its info and its
// process is still alive. Info left behind by a dead daemon is removed.
func IsDaemonRunning() (bool, *models.DaemonInfo, error) {
	path, err := GlobalDaemonFile()
	if err != nil {
		return false, nil, err
	}
	return daemonRunning(path, processAlive)
}

func daemonRunning(path string, alive func(pid int) bool) (bool, *models.DaemonInfo, error) {
	info, err := readDaemonInfo(path)
	if err != nil || info == nil {
		return false, nil, err
	}
	if !alive(info.PID) {
		_ = removeIfExists(path)
		return false, info, nil
	}
	return true, info, nil
}

// processAlive reports whether pid names a live process. Windows cannot
// deliver signal 0, but FindProcess there fails for processes that are gone.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if runtime.GOOS == "windows" {
		_ = process.Release()
		return true
	}
	return process.Signal(syscall.Signal(0)) == nil
}
