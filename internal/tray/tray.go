// Package tray shows the system tray icon and menu.
package tray

import (
	"github.com/getlantern/systray"

	"voxkey/embedded"
)

// State is the application state shown in the tray.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateProcessing
)

// Callbacks holds the menu event handlers.
type Callbacks struct {
	// OnNotificationsToggle flips the setting and returns the new value.
	OnNotificationsToggle func() bool
	OnQuit                func()
}

// Tray drives the system tray icon.
type Tray struct {
	callbacks Callbacks
	notifyOn  bool

	status    *systray.MenuItem
	notifyBtn *systray.MenuItem
	quitBtn   *systray.MenuItem
}

// New creates a Tray. notifyOn sets the initial checkbox state of the
// notifications menu item.
func New(callbacks Callbacks, notifyOn bool) *Tray {
	return &Tray{
		callbacks: callbacks,
		notifyOn:  notifyOn,
	}
}

// Run starts the tray loop. Blocks until Quit.
func (t *Tray) Run(onReady func()) {
	systray.Run(func() {
		t.onReady()
		if onReady != nil {
			onReady()
		}
	}, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(embedded.IconIdle)
	systray.SetTitle("VoxKey")
	systray.SetTooltip("VoxKey - voice input")

	t.status = systray.AddMenuItem("Ready", "")
	t.status.Disable()

	systray.AddSeparator()

	t.notifyBtn = systray.AddMenuItemCheckbox("Notifications", "Show notifications", t.notifyOn)

	systray.AddSeparator()

	t.quitBtn = systray.AddMenuItem("Quit", "Close application")

	go t.handleMenuEvents()
}

func (t *Tray) handleMenuEvents() {
	for {
		select {
		case <-t.notifyBtn.ClickedCh:
			if t.callbacks.OnNotificationsToggle != nil {
				if t.callbacks.OnNotificationsToggle() {
					t.notifyBtn.Check()
				} else {
					t.notifyBtn.Uncheck()
				}
			}

		case <-t.quitBtn.ClickedCh:
			if t.callbacks.OnQuit != nil {
				t.callbacks.OnQuit()
			}
			systray.Quit()
		}
	}
}

// SetState updates the icon and status line.
func (t *Tray) SetState(state State) {
	switch state {
	case StateIdle:
		systray.SetIcon(embedded.IconIdle)
		systray.SetTooltip("VoxKey - Ready")
		if t.status != nil {
			t.status.SetTitle("Ready")
		}
	case StateRecording:
		systray.SetIcon(embedded.IconRecording)
		systray.SetTooltip("VoxKey - Recording...")
		if t.status != nil {
			t.status.SetTitle("Recording...")
		}
	case StateProcessing:
		systray.SetIcon(embedded.IconProcessing)
		systray.SetTooltip("VoxKey - Processing...")
		if t.status != nil {
			t.status.SetTitle("Processing...")
		}
	}
}

func (t *Tray) onExit() {}

// Quit closes the tray loop.
func (t *Tray) Quit() {
	systray.Quit()
}
