// Package tui implements the live status view of the mixdeck CLI.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/mixdeck-io/mixdeck/internal/daemon/server"
	"github.com/mixdeck-io/mixdeck/internal/models"
)

const (
	pollInterval = 2 * time.Second
	callTimeout  = 3 * time.Second

	volumeBarCells = 10
	minTitleCells  = 8
)

// Source is how the view talks to the daemon.
type Source struct {
	Status  func(ctx context.Context) (*server.DaemonStatus, error)
	Refresh func(ctx context.Context) error
}

type statusMsg struct {
	status *server.DaemonStatus
	err    error
	at     time.Time
}

type pollTickMsg struct{}

type refreshedMsg struct {
	err error
}

type keyMap struct {
	Quit    key.Binding
	Refresh key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "resend snapshot"),
	),
}

// Model is the watch view. It polls GetStatus every pollInterval.
type Model struct {
	src Source
	now func() time.Time

	status  *server.DaemonStatus
	err     error
	updated time.Time

	refreshing bool
	notice     string
	spinner    spinner.Model

	width int
}

// NewModel creates the watch view.
func NewModel(src Source) Model {
	return Model{
		src:     src,
		now:     time.Now,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle)),
		width:   80,
	}
}

// Run shows the view until the user quits.
func Run(src Source) error {
	p := tea.NewProgram(NewModel(src), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), pollTick())
}

func pollTick() tea.Cmd {
	return tea.Tick(pollInterval, func(_ time.Time) tea.Msg {
		return pollTickMsg{}
	})
}

func (m Model) fetch() tea.Cmd {
	status, now := m.src.Status, m.now
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		st, err := status(ctx)
		return statusMsg{status: st, err: err, at: now()}
	}
}

func (m Model) refresh() tea.Cmd {
	refresh := m.src.Refresh
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		return refreshedMsg{err: refresh(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Refresh):
			if m.refreshing {
				return m, nil
			}
			m.refreshing = true
			m.notice = ""
			return m, tea.Batch(m.refresh(), m.spinner.Tick)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case pollTickMsg:
		return m, tea.Batch(m.fetch(), pollTick())

	case statusMsg:
		// Keep the last good status on screen while the daemon is away.
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.updated = msg.at
		}

	case refreshedMsg:
		m.refreshing = false
		if msg.err != nil {
			m.notice = "Resend failed: " + msg.err.Error()
		} else {
			m.notice = "Snapshot resent."
		}
		return m, m.fetch()

	case spinner.TickMsg:
		if !m.refreshing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(brandStyle.Render("mixdeck") + "  ")
	if m.status == nil {
		if m.err != nil {
			b.WriteString(errorStyle.Render(ansi.Truncate(m.err.Error(), max(m.width-10, 10), "…")))
		} else {
			b.WriteString(hintStyle.Render("connecting to daemon…"))
		}
		b.WriteString("\n\n" + m.footer())
		return b.String()
	}

	st := m.status
	b.WriteString(ansi.Truncate(fmt.Sprintf("%s @ %d", st.SerialPort, st.Baud), max(m.width/2, 12), "…"))
	b.WriteString("  " + linkBadge(st.LinkState))
	if st.ConnectedSince != nil {
		up := m.updated.Sub(st.ConnectedSince.AsTime()).Truncate(time.Second)
		b.WriteString(hintStyle.Render(fmt.Sprintf("  up %s", up)))
	}
	b.WriteString("\n")

	device := st.DefaultDevice
	if device == "" {
		device = "none"
	}
	b.WriteString(labelStyle.Render("Output  ") + valueStyle.Render(ansi.Truncate(device, max(m.width-8, 8), "…")) + "\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render(ansi.Truncate("Daemon unreachable: "+m.err.Error(), m.width, "…")) + "\n")
	}
	b.WriteString("\n")

	if len(st.Apps) == 0 {
		b.WriteString(hintStyle.Render("Nothing playing.") + "\n")
	} else {
		b.WriteString(m.appTable(st.Apps))
	}

	b.WriteString("\n" + m.footer())
	return b.String()
}

// appTable renders one row per app: index, title, volume bar, color.
func (m Model) appTable(apps []*server.App) string {
	// "0  " + title + "  " + bar + " 100%  " + swatch
	fixed := 3 + 2 + volumeBarCells + 7 + 4
	titleCells := 0
	for _, a := range apps {
		titleCells = max(titleCells, ansi.StringWidth(a.Title))
	}
	titleCells = min(titleCells, max(m.width-fixed, minTitleCells))

	var b strings.Builder
	for i, a := range apps {
		title := ansi.Truncate(a.Title, titleCells, "…")
		pad := strings.Repeat(" ", titleCells-ansi.StringWidth(title))
		fmt.Fprintf(&b, "%d  %s%s  %s %3d%%  %s\n", i, title, pad, volumeBar(int(a.Volume)), a.Volume, swatch(uint16(a.Color)))
	}
	return b.String()
}

func (m Model) footer() string {
	var parts []string
	if m.refreshing {
		parts = append(parts, m.spinner.View()+" resending")
	} else if m.notice != "" {
		parts = append(parts, noticeStyle.Render(m.notice))
	}
	if !m.updated.IsZero() {
		parts = append(parts, "updated "+m.updated.Format("15:04:05"))
	}
	for _, k := range []key.Binding{keys.Refresh, keys.Quit} {
		h := k.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return statusBarStyle.Render(ansi.Truncate(strings.Join(parts, " · "), max(m.width, 20), "…"))
}

func linkBadge(state string) string {
	switch state {
	case "connected", "transferring":
		return linkUpStyle.Render("● " + state)
	case "connecting":
		return linkPendingStyle.Render("○ " + state)
	default:
		return linkDownStyle.Render("○ " + state)
	}
}

func volumeBar(volume int) string {
	full := min(max(volume, 0), 100) * volumeBarCells / 100
	return barFullStyle.Render(strings.Repeat("█", full)) +
		barEmptyStyle.Render(strings.Repeat("░", volumeBarCells-full))
}

func swatch(c uint16) string {
	return lipgloss.NewStyle().Background(lipgloss.Color(models.PackedColor(c).Hex())).Render("    ")
}
