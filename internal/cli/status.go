package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/mixdeck-io/mixdeck/internal/daemon/server"
	"github.com/mixdeck-io/mixdeck/internal/tui"
)

// Column limits for titles and device names, in terminal cells.
const (
	maxTitleCells  = 24
	maxDeviceCells = 32
)

var (
	statusJSON  bool
	statusWatch bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the link and what the display is showing",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw status as JSON")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Keep the status on screen and update it live")
	statusCmd.MarkFlagsMutuallyExclusive("json", "watch")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusWatch {
		return watchStatus()
	}

	var st *server.DaemonStatus
	err := withDaemon(func(ctx context.Context, c *server.DaemonClient) error {
		var err error
		st, err = c.GetStatus(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	if statusJSON {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	renderStatus(os.Stdout, st, time.Now(), printer{styled: stdoutIsTerminal()})
	return nil
}

// watchStatus runs the live view over one connection to the daemon.
func watchStatus() error {
	if !stdoutIsTerminal() {
		return fmt.Errorf("--watch needs a terminal")
	}
	conn, err := connectDaemon()
	if err != nil {
		return err
	}
	defer conn.Close()

	client := server.NewDaemonClient(conn)
	return tui.Run(tui.Source{
		Status: func(ctx context.Context) (*server.DaemonStatus, error) {
			return client.GetStatus(ctx)
		},
		Refresh: func(ctx context.Context) error {
			return client.Refresh(ctx)
		},
	})
}

// fitCells truncates s to width terminal cells.
func fitCells(s string, width int) string {
	return ansi.Truncate(s, width, "…")
}

// padCells pads s with spaces to width terminal cells.
func padCells(s string, width int) string {
	if pad := width - ansi.StringWidth(s); pad > 0 {
		return s + strings.Repeat(" ", pad)
	}
	return s
}

// renderStatus writes a human readable status report.
func renderStatus(w io.Writer, st *server.DaemonStatus, now time.Time, p printer) {
	label := func(s string) string { return p.render(styleLabel, fmt.Sprintf("%-10s", s)) }

	fmt.Fprintf(w, "%s %s\n", p.render(styleBrand, "mixdeck"), p.render(styleHint, fmt.Sprintf("(PID %d, port %d)", st.Pid, st.Port)))
	fmt.Fprintf(w, "  %s %s at %d baud, %s\n", label("Display"), p.render(styleValue, st.SerialPort), st.Baud, p.badge(st.LinkState))
	if st.ConnectedSince != nil {
		since := now.Sub(st.ConnectedSince.AsTime()).Truncate(time.Second)
		fmt.Fprintf(w, "  %s %s\n", label("Up for"), since)
	}

	device := fitCells(st.DefaultDevice, maxDeviceCells)
	if device == "" {
		device = p.render(styleWarning, "none")
	}
	fmt.Fprintf(w, "  %s %s\n", label("Output"), device)
	if len(st.Devices) > 0 {
		names := make([]string, len(st.Devices))
		for i, d := range st.Devices {
			names[i] = fitCells(d, maxDeviceCells)
		}
		fmt.Fprintf(w, "  %s %s\n", label("Devices"), strings.Join(names, ", "))
	}

	if st.Transfers > 0 {
		fmt.Fprintf(w, "  %s %d (%d bad acks), last %dms at %.0f B/s\n",
			label("Icons"), st.Transfers, st.AckMismatches, st.LastTransferMillis, st.LastBytesPerSecond)
	}

	fmt.Fprintln(w)
	if len(st.Apps) == 0 {
		fmt.Fprintln(w, p.render(styleHint, "Nothing playing."))
		return
	}

	titles := make([]string, len(st.Apps))
	width := 0
	for i, a := range st.Apps {
		titles[i] = fitCells(a.Title, maxTitleCells)
		width = max(width, ansi.StringWidth(titles[i]))
	}
	for i, a := range st.Apps {
		fmt.Fprintf(w, "  %d  %s  %3d%%  %s\n", i, padCells(titles[i], width), a.Volume, p.swatch(uint16(a.Color)))
	}
}
