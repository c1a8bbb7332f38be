// Package notify shows desktop notifications for session progress.
package notify

import (
	"github.com/gen2brain/beeep"

	"voxkey/internal/config"
)

const appName = "VoxKey"

// Notifier sends system notifications. It reads the enabled flag from
// config on every call so the tray toggle takes effect immediately.
type Notifier struct {
	cfg *config.Config
}

// New creates a Notifier.
func New(cfg *config.Config) *Notifier {
	return &Notifier{cfg: cfg}
}

// Recording announces that capture has started.
func (n *Notifier) Recording() {
	n.notify("Recording...", "Speak into the microphone")
}

// Processing announces that transcription is underway.
func (n *Notifier) Processing() {
	n.notify("Processing...", "Please wait")
}

// Success shows the recognized text.
func (n *Notifier) Success(text string) {
	if r := []rune(text); len(r) > 100 {
		text = string(r[:100]) + "..."
	}
	n.notify("Done", text)
}

// Empty announces that nothing was recognized.
func (n *Notifier) Empty() {
	n.notify("Could not recognize", "Please try again")
}

// Error shows a failure message.
func (n *Notifier) Error(msg string) {
	n.notify("Error", msg)
}

func (n *Notifier) notify(title, message string) {
	if !n.cfg.NotificationsEnabled() {
		return
	}
	// Notification failures are not worth surfacing.
	_ = beeep.Notify(appName+": "+title, message, "")
}
