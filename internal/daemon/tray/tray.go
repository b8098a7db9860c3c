package tray

import (
	"fmt"
	"log"

	"github.com/getlantern/systray"
)

const maxAppSlots = 8

var (
	state    DaemonState
	onStart  func()
	onExit   func()
	linkItem *systray.MenuItem
	portItem *systray.MenuItem

	// Pre-allocated app menu slots
	appSlots   [maxAppSlots]*systray.MenuItem
	noAppsItem *systray.MenuItem
	resendItem *systray.MenuItem
	quitItem   *systray.MenuItem
)

// Run starts the system tray. This blocks the calling goroutine (must be main).
// onStartFn is called when the tray is ready (launch gRPC server here).
// onExitFn is called when the tray exits (cleanup here).
func Run(s DaemonState, onStartFn, onExitFn func()) {
	state = s
	onStart = onStartFn
	onExit = onExitFn
	systray.Run(onReady, onQuit)
}

// Quit signals the tray to exit.
func Quit() {
	systray.Quit()
}

func onReady() {
	if data, err := iconData(); err == nil {
		systray.SetTemplateIcon(data, data)
	} else {
		log.Printf("[tray] No icon: %v", err)
	}
	systray.SetTooltip("mixdeck")

	header := systray.AddMenuItem("mixdeck Daemon", "")
	header.Disable()

	linkItem = systray.AddMenuItem("Display: starting...", "")
	linkItem.Disable()
	portItem = systray.AddMenuItem("Starting...", "")
	portItem.Disable()

	systray.AddSeparator()

	for i := 0; i < maxAppSlots; i++ {
		appSlots[i] = systray.AddMenuItem("", "")
		appSlots[i].Disable()
		appSlots[i].Hide()
	}
	noAppsItem = systray.AddMenuItem("Nothing playing", "")
	noAppsItem.Disable()

	systray.AddSeparator()

	resendItem = systray.AddMenuItem("Resend snapshot", "Rebuild and resend what is playing")
	quitItem = systray.AddMenuItem("Quit", "Shut down mixdeck daemon")

	if onStart != nil {
		onStart()
	}

	if state != nil {
		portItem.SetTitle(fmt.Sprintf("Control port: %d", state.Port()))
		Update()
	}

	go handleClicks()
}

func onQuit() {
	if onExit != nil {
		onExit()
	}
}

func handleClicks() {
	for {
		select {
		case <-resendItem.ClickedCh:
			if state == nil {
				continue
			}
			if err := state.Resend(); err != nil {
				log.Printf("[tray] Resend failed: %v", err)
			}
		case <-quitItem.ClickedCh:
			if state != nil {
				state.RequestShutdown()
			}
		}
	}
}

// Update refreshes the link line, the app slots and the tooltip.
func Update() {
	if state == nil || linkItem == nil {
		return
	}

	link := state.Link()
	linkItem.SetTitle(formatLink(link))
	if link.Connected {
		resendItem.Enable()
	} else {
		resendItem.Disable()
	}

	apps := state.Apps()
	for i := 0; i < maxAppSlots; i++ {
		appSlots[i].Hide()
	}
	if len(apps) == 0 {
		noAppsItem.Show()
	} else {
		noAppsItem.Hide()
		for i, app := range apps {
			if i >= maxAppSlots {
				break
			}
			appSlots[i].SetTitle(formatApp(app))
			appSlots[i].Show()
		}
	}

	systray.SetTooltip(formatTooltip(link, len(apps)))
}

func formatLink(link LinkInfo) string {
	marker := "○"
	if link.Connected {
		marker = "●"
	}
	return fmt.Sprintf("%s %s: %s", marker, link.Port, link.State)
}

func formatApp(app AppInfo) string {
	return fmt.Sprintf("%s (%d%%)", app.Title, app.Volume)
}

func formatTooltip(link LinkInfo, apps int) string {
	return fmt.Sprintf("mixdeck: %s, %d apps", link.State, apps)
}
