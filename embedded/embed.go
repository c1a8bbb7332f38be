// Package embedded holds the application's bundled resources.
package embedded

import (
	_ "embed"
)

// IconIdle is the tray icon while waiting (gray).
//
//go:embed icon_idle.png
var IconIdle []byte

// IconRecording is the tray icon during capture (red).
//
//go:embed icon_recording.png
var IconRecording []byte

// IconProcessing is the tray icon during transcription (orange).
//
//go:embed icon_processing.png
var IconProcessing []byte
