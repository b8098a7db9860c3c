// Package cmd implements the mixdeckd command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mixdeck-io/mixdeck/internal/audio"
	"github.com/mixdeck-io/mixdeck/internal/buildinfo"
	"github.com/mixdeck-io/mixdeck/internal/config"
	"github.com/mixdeck-io/mixdeck/internal/daemon/bridge"
	"github.com/mixdeck-io/mixdeck/internal/daemon/server"
	"github.com/mixdeck-io/mixdeck/internal/daemon/tray"
	"github.com/mixdeck-io/mixdeck/internal/daemon/watcher"
	"github.com/mixdeck-io/mixdeck/internal/models"
	"github.com/mixdeck-io/mixdeck/internal/serial"
)

// flags holds the daemon's command line.
type flags struct {
	foreground bool
	port       int
	settings   string
	serialPort string
	baud       int
	scenario   string
	verbose    bool
}

var opts flags

var rootCmd = &cobra.Command{
	Use:          "mixdeckd",
	Short:        "Drive a mixdeck display over a serial port",
	Long:         `mixdeckd keeps the serial link to the display alive and mirrors what is playing on it.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	addFlags(rootCmd.Flags(), &opts)

	rootCmd.Version = buildinfo.Version
	rootCmd.SetVersionTemplate(fmt.Sprintf("mixdeckd {{.Version}} (%s, commit %s, built %s, %s/%s)\n",
		buildinfo.Codename, buildinfo.CommitHash, buildinfo.BuildDate, runtime.GOOS, runtime.GOARCH))
}

func addFlags(fs *pflag.FlagSet, f *flags) {
	fs.BoolVar(&f.foreground, "foreground", false, "Run in foreground (no system tray)")
	fs.IntVar(&f.port, "port", 0, "gRPC port to listen on (0 for dynamic allocation)")
	fs.StringVar(&f.settings, "settings", "", "Settings file (default ~/.mixdeck/settings.yaml)")
	fs.StringVar(&f.serialPort, "serial", "", "Serial port of the display (overrides settings)")
	fs.IntVar(&f.baud, "baud", 0, "Baud rate (overrides settings)")
	fs.StringVar(&f.scenario, "scenario", "", "Audio scenario file (overrides settings)")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Log every frame")
}

// Execute runs the daemon command.
func Execute() error {
	return rootCmd.Execute()
}

// loadSettings reads the settings file and applies command line overrides.
func loadSettings(f *flags) (*models.Settings, error) {
	var (
		s   *models.Settings
		err error
	)
	if f.settings != "" {
		s, err = config.LoadSettingsFile(f.settings)
	} else {
		s, err = config.LoadSettings()
	}
	if err != nil {
		return nil, err
	}

	if f.serialPort != "" {
		s.Serial.Port = f.serialPort
	}
	if f.baud != 0 {
		s.Serial.Baud = f.baud
	}
	if f.scenario != "" {
		s.Audio.Scenario = f.scenario
	}
	if err := config.Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

func run(cmd *cobra.Command, args []string) error {
	log.SetPrefix("[mixdeckd] ")
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	// Ensure global directory exists
	if err := config.EnsureGlobalDir(); err != nil {
		return fmt.Errorf("failed to create global directory: %w", err)
	}

	// Check if daemon is already running
	running, info, err := config.IsDaemonRunning()
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running {
		return fmt.Errorf("daemon already running on port %d (PID %d)", info.Port, info.PID)
	}

	settings, err := loadSettings(&opts)
	if err != nil {
		return err
	}

	d, err := newDaemon(settings, opts.verbose)
	if err != nil {
		return err
	}
	defer d.watcher.Stop()

	if opts.foreground {
		log.Println("Running in foreground mode (no system tray)")
		return d.runForeground(opts.port)
	}
	log.Println("Running in background mode (with system tray)")
	d.runWithTray(opts.port)
	return nil
}

// daemon is one mixdeckd process: the bridge plus its control surfaces.
type daemon struct {
	settings *models.Settings
	bridge   *bridge.Bridge
	watcher  *watcher.Watcher

	cancel context.CancelFunc
	done   chan error
}

func newDaemon(settings *models.Settings, verbose bool) (*daemon, error) {
	scenarioPath, err := config.ScenarioFile(settings.Audio.Scenario)
	if err != nil {
		return nil, err
	}
	source, err := audio.OpenScenario(scenarioPath)
	if err != nil {
		return nil, err
	}

	w, err := watcher.New()
	if err != nil {
		return nil, err
	}
	if err := w.Watch(scenarioPath, watcher.EventScenarioChanged); err != nil {
		log.Printf("Warning: scenario changes will not be picked up: %v", err)
	}
	if settingsPath, err := config.GlobalSettingsFile(); err == nil {
		if err := w.Watch(settingsPath, watcher.EventSettingsChanged); err != nil {
			log.Printf("Warning: failed to watch settings: %v", err)
		}
	}
	w.Start()

	b, err := bridge.New(bridge.Options{
		Settings: settings,
		Verbose:  verbose,
		Source:   source,
		Watcher:  w,
	})
	if err != nil {
		w.Stop()
		return nil, err
	}

	return &daemon{settings: settings, bridge: b, watcher: w}, nil
}

// startBridge runs the bridge in the background.
func (d *daemon) startBridge() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan error, 1)
	go func() {
		d.done <- d.bridge.Run(ctx)
	}()
	log.Printf("Driving display on %s at %d baud", d.settings.Serial.Port, d.settings.Serial.Baud)
}

// stopBridge cancels the bridge and waits for the link to close.
func (d *daemon) stopBridge() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	select {
	case err := <-d.done:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Bridge error: %v", err)
		}
	case <-time.After(5 * time.Second):
		log.Println("Bridge did not stop in time")
	}
}

func (d *daemon) publish(srv *server.Server) error {
	daemonInfo := models.NewDaemonInfo("localhost", srv.Port(), os.Getpid(), d.settings.Serial.Port)
	if err := config.SaveDaemonInfo(daemonInfo); err != nil {
		return fmt.Errorf("failed to write daemon info: %w", err)
	}
	log.Printf("Daemon started on port %d (PID %d)", srv.Port(), os.Getpid())
	return nil
}

func (d *daemon) cleanup(srv *server.Server) {
	if srv != nil {
		srv.Stop()
	}
	d.stopBridge()

	if err := config.RemoveDaemonInfo(); err != nil {
		log.Printf("Failed to remove daemon info: %v", err)
	}
	fmt.Println("Daemon stopped")
}

// runForeground runs the daemon without a system tray, blocking on signals.
func (d *daemon) runForeground(port int) error {
	stop := newStopRequest()
	srv, err := server.New(port, d.bridge, stop.Trigger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := d.publish(srv); err != nil {
		srv.Stop()
		return err
	}
	d.startBridge()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case <-stop.Done():
		log.Println("Shutdown requested, shutting down...")
	case err := <-errCh:
		log.Printf("Server error: %v", err)
	case err := <-d.done:
		log.Printf("Bridge stopped: %v", err)
		d.cancel = nil
	}

	d.cleanup(srv)
	return nil
}

// runWithTray runs the daemon with a system tray icon on the main goroutine.
// systray.Run must occupy the main goroutine on macOS (Cocoa requirement).
func (d *daemon) runWithTray(port int) {
	var (
		mu  sync.Mutex
		srv *server.Server
	)
	getSrv := func() *server.Server {
		mu.Lock()
		defer mu.Unlock()
		return srv
	}
	stopTicker := make(chan struct{})

	onStart := func() {
		s, err := server.New(port, d.bridge, tray.Quit)
		if err != nil {
			log.Fatalf("Failed to create server: %v", err)
		}
		if err := d.publish(s); err != nil {
			log.Fatalf("%v", err)
		}
		mu.Lock()
		srv = s
		mu.Unlock()

		d.bridge.OnStateChange(func(serial.State) { tray.Update() })
		d.startBridge()

		// Serve gRPC in background
		go func() {
			if err := s.Serve(); err != nil {
				log.Printf("Server error: %v", err)
				tray.Quit()
			}
		}()

		// The app list changes without link state changes.
		go func() {
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-stopTicker:
					return
				case <-ticker.C:
					tray.Update()
				}
			}
		}()

		// Handle OS signals, quit tray on SIGINT/SIGTERM
		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			log.Printf("Received signal %v, shutting down...", sig)
			tray.Quit()
		}()
	}

	onExit := func() {
		close(stopTicker)
		d.cleanup(getSrv())
	}

	// The tray needs a DaemonState before the server exists.
	lazyState := &lazyDaemonState{getSrv: getSrv}

	// This blocks the main goroutine until tray exits.
	tray.Run(lazyState, onStart, onExit)
}

// stopRequest is an in-process shutdown request. Signals cannot be sent
// to the own process on Windows, so clients and the tray go through this.
type stopRequest struct {
	once sync.Once
	ch   chan struct{}
}

func newStopRequest() *stopRequest {
	return &stopRequest{ch: make(chan struct{})}
}

// Trigger requests shutdown. Later calls are no-ops.
func (s *stopRequest) Trigger() {
	s.once.Do(func() { close(s.ch) })
}

// Done is closed once shutdown was requested.
func (s *stopRequest) Done() <-chan struct{} {
	return s.ch
}

// lazyDaemonState wraps server.TrayState with lazy initialization.
// The server is nil at tray startup and created inside onStart.
type lazyDaemonState struct {
	getSrv func() *server.Server
}

func (l *lazyDaemonState) Port() int {
	if srv := l.getSrv(); srv != nil {
		return server.NewTrayState(srv).Port()
	}
	return 0
}

func (l *lazyDaemonState) Link() tray.LinkInfo {
	if srv := l.getSrv(); srv != nil {
		return server.NewTrayState(srv).Link()
	}
	return tray.LinkInfo{State: "starting"}
}

func (l *lazyDaemonState) Apps() []tray.AppInfo {
	if srv := l.getSrv(); srv != nil {
		return server.NewTrayState(srv).Apps()
	}
	return nil
}

func (l *lazyDaemonState) Resend() error {
	if srv := l.getSrv(); srv != nil {
		return server.NewTrayState(srv).Resend()
	}
	return nil
}

func (l *lazyDaemonState) RequestShutdown() {
	if srv := l.getSrv(); srv != nil {
		server.NewTrayState(srv).RequestShutdown()
	}
}
