package tray

import (
	"context"
	"fmt"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/petems/freshscan/internal/app"
	"github.com/petems/freshscan/internal/audio"
	"github.com/petems/freshscan/internal/config"
	"github.com/petems/freshscan/internal/logging"
	"github.com/rs/zerolog"
)

// Session is the part of the app the tray drives.
type Session interface {
	Toggle()
	State() app.State
	LastTranscript() string
	ListDevices() ([]audio.AudioDevice, error)
	SetDevice(id string) error
	SetMode(mode string) error
}

type UI struct {
	app     Session
	cfg     *config.Config
	version string
	commit  string
	log     zerolog.Logger
	onQuit  func()

	writeClipboard func(string) error

	mu      sync.Mutex
	ready   bool
	status  string
	message string
	hazard  bool

	// Menu items
	mStartStop *systray.MenuItem
	mCopy      *systray.MenuItem
	mMode      *systray.MenuItem
	mDevices   *systray.MenuItem
}

// Status update methods for the app to call
func (u *UI) SetIdle() {
	u.updateStatus("idle", "")
}

func (u *UI) SetConnecting() {
	u.updateStatus("connecting", "")
}

func (u *UI) SetActive() {
	u.updateStatus("active", "")
}

func (u *UI) SetError(msg string) {
	u.updateStatus("error", msg)
}

func (u *UI) SetAlert(hazard bool) {
	u.mu.Lock()
	changed := u.hazard != hazard
	u.hazard = hazard
	u.mu.Unlock()
	if changed {
		u.render()
	}
}

// New creates the tray. onQuit runs when the user picks Quit.
func New(application Session, cfg *config.Config, logger zerolog.Logger, version, commit string, onQuit func()) *UI {
	return &UI{
		app:            application,
		cfg:            cfg,
		version:        version,
		commit:         commit,
		log:            logger.With().Str("component", "tray").Logger(),
		onQuit:         onQuit,
		writeClipboard: clipboard.WriteAll,
		status:         "idle",
	}
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application Session) {
	u.app = application
}

// Run blocks on the platform event loop until Quit.
func (u *UI) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	systray.SetTooltip("Fridge and pantry spoilage scanner")

	u.mStartStop = systray.AddMenuItem("Start Scan", "Start or stop the live scan")
	u.mCopy = systray.AddMenuItem("Copy Transcript", "Copy the last spoken description")
	systray.AddSeparator()

	u.mMode = systray.AddMenuItem(modeLabel(u.cfg.Mode), "Toggle between modes")
	systray.AddSeparator()

	u.mDevices = systray.AddMenuItem("Microphone", "Select audio device")
	u.buildDeviceMenu()

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About freshscan")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	u.mu.Lock()
	u.ready = true
	u.mu.Unlock()
	u.render()

	// Event loop
	go u.handleEvents(mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mStartStop.ClickedCh:
			u.app.Toggle()
		case <-u.mCopy.ClickedCh:
			if err := u.copyTranscript(); err != nil {
				u.log.Warn().Err(err).Msg("Copy transcript failed")
			}
		case <-u.mMode.ClickedCh:
			u.toggleMode()
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			if u.onQuit != nil {
				u.onQuit()
			}
			systray.Quit()
			return
		}
	}
}

func (u *UI) buildDeviceMenu() {
	// Get devices from app
	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}

	deviceItems := make(map[string]*systray.MenuItem)

	for _, dev := range devices {
		item := u.mDevices.AddSubMenuItem(dev.Name, "")
		if dev.ID == u.cfg.Audio.DeviceID || (u.cfg.Audio.DeviceID == "" && dev.Default) {
			item.Check()
		}
		deviceItems[dev.ID] = item

		go func(deviceID, deviceName string, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				if err := u.app.SetDevice(deviceID); err != nil {
					u.log.Warn().Err(err).Str("device", deviceName).Msg("Cannot change audio device")
					continue
				}
				for id, itm := range deviceItems {
					if id != deviceID {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.log.Info().Str("device", deviceName).Msg("Changed audio device")
			}
		}(dev.ID, dev.Name, item)
	}
}

func (u *UI) toggleMode() {
	oldMode := u.cfg.Mode
	mode := nextMode(oldMode)
	if err := u.app.SetMode(mode); err != nil {
		u.log.Warn().Err(err).Msg("Failed to save mode")
	}
	u.mMode.SetTitle(modeLabel(mode))
	u.log.Info().Str("from", oldMode).Str("to", mode).Msg("Changed mode")
}

func (u *UI) copyTranscript() error {
	text := u.app.LastTranscript()
	if text == "" {
		return fmt.Errorf("no transcript yet")
	}
	return u.writeClipboard(text)
}

func (u *UI) openLogs() {
	fmt.Println(logging.LogPath())
}

func (u *UI) showAbout() {
	fmt.Printf("freshscan %s (%s)\nLive fridge and pantry spoilage scanner\n", u.version, u.commit)
}

func (u *UI) onExit() {
	u.mu.Lock()
	u.ready = false
	u.mu.Unlock()
}

func (u *UI) updateStatus(status, msg string) {
	u.mu.Lock()
	u.status = status
	u.message = msg
	u.mu.Unlock()
	u.render()
}

// render pushes the current status to the tray once it exists.
func (u *UI) render() {
	u.mu.Lock()
	ready := u.ready
	status, msg, hazard := u.status, u.message, u.hazard
	u.mu.Unlock()
	if !ready {
		return
	}

	systray.SetTitle(titleFor(status, hazard))
	if msg != "" {
		systray.SetTooltip(msg)
	} else {
		systray.SetTooltip("Fridge and pantry spoilage scanner")
	}
	if status == "connecting" || status == "active" {
		u.mStartStop.SetTitle("Stop Scan")
	} else {
		u.mStartStop.SetTitle("Start Scan")
	}
}

// titleFor builds the tray title: camera, session light, hazard sign.
func titleFor(status string, hazard bool) string {
	title := fmt.Sprintf("📷 %s", emojiForStatus(status))
	if hazard {
		title += " ⚠️"
	}
	return title
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "active":
		return "🔴" // Red - live
	case "connecting":
		return "🟡" // Yellow - connecting
	case "idle":
		return "🟢" // Green - ready/idle
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢" // Green - default to ready
	}
}

func nextMode(mode string) string {
	if mode == config.ModePushToTalk {
		return config.ModeToggle
	}
	return config.ModePushToTalk
}

func modeLabel(mode string) string {
	if mode == config.ModePushToTalk {
		return "Mode: Push-to-Talk"
	}
	return "Mode: Toggle"
}
