// Package session contains the recording session state machine, the
// transcription gate that serializes model access, the playback toggle
// and the orchestrator that ties trigger sources to deliveries.
package session

import (
	"time"
)

// Source identifies where a trigger came from.
type Source string

const (
	// SourceHotkey is the global push-to-talk key.
	SourceHotkey Source = "hotkey"
	// SourceRemote is the HTTP API.
	SourceRemote Source = "remote"
)

// TriggerKind is one kind of user action.
type TriggerKind string

const (
	// TriggerPressStart begins a recording (hotkey pressed).
	TriggerPressStart TriggerKind = "press_start"
	// TriggerPressEnd finishes a recording (hotkey released).
	TriggerPressEnd TriggerKind = "press_end"
	// TriggerCancel discards an in-progress recording.
	TriggerCancel TriggerKind = "cancel"
	// TriggerSpeak toggles reading the current selection aloud.
	TriggerSpeak TriggerKind = "speak"
)

// TriggerEvent is one user action handed to the orchestrator.
type TriggerEvent struct {
	Kind   TriggerKind
	Source Source
	At     time.Time
}

// RecordingState is the push-to-talk session lifecycle.
type RecordingState string

const (
	StateIdle         RecordingState = "idle"
	StateRecording    RecordingState = "recording"
	StateFinalizing   RecordingState = "finalizing"
	StateTranscribing RecordingState = "transcribing"
	StateDelivering   RecordingState = "delivering"
	StateCancelled    RecordingState = "cancelled"
)

// legalTransitions maps each state to the states it may move to.
var legalTransitions = map[RecordingState][]RecordingState{
	StateIdle:         {StateRecording},
	StateRecording:    {StateFinalizing, StateCancelled},
	StateFinalizing:   {StateTranscribing, StateIdle}, // Idle when empty or too short
	StateTranscribing: {StateDelivering, StateIdle},   // Idle on transcription failure
	StateDelivering:   {StateIdle},
	StateCancelled:    {StateIdle},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to RecordingState) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Outcome is the result of one completed session, successful or not.
type Outcome struct {
	SessionID      string
	Source         Source
	Ok             bool
	Text           string
	NoSpeech       bool
	TooShort       bool
	Cancelled      bool
	Err            error
	AudioDuration  time.Duration
	TranscribeTime time.Duration
	ModelID        string
}

// Reason returns a short human-readable failure description for
// notifications and API error bodies. Empty for successful outcomes.
func (o Outcome) Reason() string {
	switch {
	case o.Ok:
		return ""
	case o.Cancelled:
		return "Recording cancelled"
	case o.TooShort:
		return "Recording too short"
	case o.NoSpeech:
		return "No speech detected or transcription failed"
	case o.Err != nil:
		return o.Err.Error()
	default:
		return "Transcription failed"
	}
}
