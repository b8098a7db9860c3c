package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mixdeck-io/mixdeck/internal/config"
	"github.com/mixdeck-io/mixdeck/internal/daemon/server"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the mixdeck daemon",
	Long:  `Manage the mixdeckd daemon process.`,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE:  runDaemonStatus,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	RunE:  runDaemonStop,
}

var startFlags struct {
	serial string
	baud   int
}

func init() {
	daemonStartCmd.Flags().StringVar(&startFlags.serial, "serial", "", "Serial port of the display")
	daemonStartCmd.Flags().IntVar(&startFlags.baud, "baud", 0, "Baud rate")

	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonStopCmd)
}

// daemonArgs turns start flags into mixdeckd arguments.
func daemonArgs(serialPort string, baud int) []string {
	var args []string
	if serialPort != "" {
		args = append(args, "--serial", serialPort)
	}
	if baud > 0 {
		args = append(args, "--baud", strconv.Itoa(baud))
	}
	return args
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	running, info, err := config.IsDaemonRunning()
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	if running && info != nil {
		fmt.Printf("Daemon is already running (PID %d, port %d).\n", info.PID, info.Port)
		return nil
	}

	// Clean up stale daemon info if it exists
	if info != nil {
		_ = config.RemoveDaemonInfo()
	}

	fmt.Print("Starting daemon...")
	if startErr := startDaemon(daemonArgs(startFlags.serial, startFlags.baud)); startErr != nil {
		fmt.Println()
		return startErr
	}

	_, freshInfo, err := GetDaemonStatus()
	if err != nil || freshInfo == nil {
		fmt.Println(" started.")
		return nil
	}

	fmt.Printf(" started (PID %d, port %d, display on %s).\n", freshInfo.PID, freshInfo.Port, freshInfo.SerialPort)
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	running, info, err := GetDaemonStatus()
	if err != nil {
		return err
	}

	if !running || info == nil {
		fmt.Println("Daemon is not running.")
		return nil
	}

	uptime := time.Since(info.StartedAt).Truncate(time.Second)

	fmt.Println("Daemon is running.")
	fmt.Printf("  Host:       %s\n", info.Host)
	fmt.Printf("  Port:       %d\n", info.Port)
	fmt.Printf("  PID:        %d\n", info.PID)
	fmt.Printf("  Serial:     %s\n", info.SerialPort)
	fmt.Printf("  Uptime:     %s\n", uptime)
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	running, info, err := config.IsDaemonRunning()
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	if !running || info == nil {
		fmt.Println("Daemon is not running.")
		return nil
	}

	// Ask over gRPC first; fall back to the process.
	rpcErr := withDaemon(func(ctx context.Context, c *server.DaemonClient) error {
		return c.Shutdown(ctx)
	})
	if rpcErr != nil {
		if err := stopProcess(info.PID); err != nil {
			return err
		}
	}

	// Poll for shutdown (max 5 seconds)
	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		stillRunning, _, err := config.IsDaemonRunning()
		if err == nil && !stillRunning {
			fmt.Println("Daemon stopped.")
			return nil
		}
	}

	return fmt.Errorf("daemon did not stop within timeout")
}

// stopProcess terminates the daemon when it cannot be reached over gRPC.
// Windows has no SIGTERM, so the process is killed there.
func stopProcess(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find daemon process: %w", err)
	}
	if runtime.GOOS == "windows" {
		err = process.Kill()
	} else {
		err = process.Signal(syscall.SIGTERM)
	}
	if err != nil {
		return fmt.Errorf("failed to send stop signal: %w", err)
	}
	return nil
}
