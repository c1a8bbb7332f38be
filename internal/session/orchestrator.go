package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"voxkey/internal/audio"
	"voxkey/internal/config"
	"voxkey/internal/engine"
)

// ErrClientGone marks a remote session whose client disappeared before
// delivery; the transcript is discarded.
var ErrClientGone = errors.New("session: client gone before delivery")

// Capture is the microphone source.
type Capture interface {
	Start(sink func(chunk []float32)) error
	Stop()
}

// Engine is the model lifecycle manager.
type Engine interface {
	EnsureLoaded(modelID string) error
	Transcribe(fb *audio.FrozenBuffer, lang string) (engine.Result, error)
	BeginUse()
	EndUse()
}

// Inserter delivers hotkey transcripts, typically by typing at the cursor.
type Inserter interface {
	Insert(text string) error
}

// SelectionReader returns the currently selected text for the speak key.
type SelectionReader interface {
	Selection() (string, error)
}

// Notifier surfaces session progress to the user.
type Notifier interface {
	Recording()
	Processing()
	Empty()
	Success(text string)
	Error(msg string)
}

// Orchestrator routes trigger events through recording sessions and
// deliveries. It owns the recording state machine; at most one hotkey
// session exists at a time, while remote sessions run independently and
// meet hotkey sessions only at the gate.
type Orchestrator struct {
	cfg       *config.Config
	capture   Capture
	eng       Engine
	gate      *Gate
	playback  *Playback
	inserter  Inserter
	selection SelectionReader
	notifier  Notifier

	mu      sync.Mutex
	state   RecordingState
	active  *liveRecording
	onState func(RecordingState)
	record  func(Outcome)
}

// liveRecording is the in-flight hotkey session.
type liveRecording struct {
	id      string
	buf     *audio.Buffer
	started time.Time
	maxStop *time.Timer
}

// NewOrchestrator wires the session core to its collaborators.
func NewOrchestrator(
	cfg *config.Config,
	capture Capture,
	eng Engine,
	gate *Gate,
	playback *Playback,
	inserter Inserter,
	selection SelectionReader,
	notifier Notifier,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		capture:   capture,
		eng:       eng,
		gate:      gate,
		playback:  playback,
		inserter:  inserter,
		selection: selection,
		notifier:  notifier,
		state:     StateIdle,
	}
}

// OnStateChange registers a listener for recording state transitions.
// The listener runs with internal locks held and must not call back
// into the orchestrator.
func (o *Orchestrator) OnStateChange(fn func(RecordingState)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onState = fn
}

// OnOutcome registers a hook receiving every finished session, e.g. for
// the history log.
func (o *Orchestrator) OnOutcome(fn func(Outcome)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.record = fn
}

// Trigger handles one user action.
func (o *Orchestrator) Trigger(ev TriggerEvent) {
	switch ev.Kind {
	case TriggerPressStart:
		o.startRecording()
	case TriggerPressEnd:
		o.finishRecording()
	case TriggerCancel:
		o.cancelRecording()
	case TriggerSpeak:
		o.speakSelection()
	default:
		log.Printf("session: ignoring unknown trigger %q", ev.Kind)
	}
}

// State returns the recording state.
func (o *Orchestrator) State() RecordingState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// PlaybackState returns the playback slot state.
func (o *Orchestrator) PlaybackState() PlaybackState {
	return o.playback.State()
}

// startRecording opens a new hotkey session. Presses while anything but
// Idle are ignored, so a held key cannot stack sessions.
func (o *Orchestrator) startRecording() {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return
	}

	rec := &liveRecording{
		id:      uuid.NewString(),
		buf:     audio.NewBuffer(),
		started: time.Now(),
	}
	o.active = rec
	o.setStateLocked(StateRecording)
	o.mu.Unlock()

	buf := rec.buf
	if err := o.capture.Start(func(chunk []float32) {
		// Chunks racing past the finalize are rejected by the buffer.
		buf.Append(chunk)
	}); err != nil {
		log.Printf("session %s: start capture: %v", rec.id, err)
		o.notifier.Error("Recording failed: " + err.Error())

		o.mu.Lock()
		o.active = nil
		o.setStateLocked(StateCancelled)
		o.mu.Unlock()
		o.finish(Outcome{SessionID: rec.id, Source: SourceHotkey, Cancelled: true, Err: err})
		return
	}

	// Recordings end on their own at the cap, as if the key was released.
	maxRecording := o.cfg.MaxRecording()
	if maxRecording > 0 {
		rec.maxStop = time.AfterFunc(maxRecording, func() {
			log.Printf("session %s: max duration reached", rec.id)
			o.finishRecording()
		})
	}

	log.Printf("session %s: recording started", rec.id)
	o.notifier.Recording()
}

// finishRecording closes the hotkey session and hands its audio to the
// model. Releases while not recording are ignored.
func (o *Orchestrator) finishRecording() {
	o.mu.Lock()
	if o.state != StateRecording || o.active == nil {
		o.mu.Unlock()
		return
	}
	rec := o.active
	o.active = nil
	o.setStateLocked(StateFinalizing)
	o.mu.Unlock()

	if rec.maxStop != nil {
		rec.maxStop.Stop()
	}
	o.capture.Stop()

	fb, err := rec.buf.Finalize()
	if err != nil {
		log.Printf("session %s: nothing recorded", rec.id)
		o.notifier.Empty()
		o.finish(Outcome{SessionID: rec.id, Source: SourceHotkey, TooShort: true})
		return
	}

	if fb.Duration() < o.cfg.MinRecording() {
		log.Printf("session %s: recording too short (%v)", rec.id, fb.Duration())
		o.finish(Outcome{
			SessionID:     rec.id,
			Source:        SourceHotkey,
			TooShort:      true,
			AudioDuration: fb.Duration(),
		})
		return
	}

	if o.cfg.SaveRecordings() {
		go func() {
			path, err := audio.SaveDebugCopy(o.cfg.RecordingsDir(), fb)
			if err != nil {
				log.Printf("session %s: save recording copy: %v", rec.id, err)
				return
			}
			log.Printf("session %s: recording copy saved to %s", rec.id, path)
		}()
	}

	o.setState(StateTranscribing)
	o.notifier.Processing()

	go o.transcribeAndDeliver(rec.id, fb)
}

// transcribeAndDeliver drives the hotkey session through the gate, the
// model and text insertion.
func (o *Orchestrator) transcribeAndDeliver(id string, fb *audio.FrozenBuffer) {
	outcome := o.runTranscription(id, fb, SourceHotkey)

	if !outcome.Ok {
		if outcome.NoSpeech {
			o.notifier.Empty()
		} else if outcome.Err != nil {
			o.notifier.Error(outcome.Reason())
		}
		o.finish(outcome)
		return
	}

	o.setState(StateDelivering)
	if err := o.inserter.Insert(outcome.Text); err != nil {
		log.Printf("session %s: insert text: %v", id, err)
		o.notifier.Error("Text insertion failed: " + err.Error())
		outcome.Ok = false
		outcome.Err = err
	} else {
		o.notifier.Success(outcome.Text)
	}

	o.finish(outcome)
}

// cancelRecording discards the hotkey session before it reaches the
// model. The buffer is finalized only to seal it; its audio is dropped.
func (o *Orchestrator) cancelRecording() {
	o.mu.Lock()
	if o.state != StateRecording || o.active == nil {
		o.mu.Unlock()
		return
	}
	rec := o.active
	o.active = nil
	o.setStateLocked(StateCancelled)
	o.mu.Unlock()

	if rec.maxStop != nil {
		rec.maxStop.Stop()
	}
	o.capture.Stop()
	rec.buf.Finalize()

	log.Printf("session %s: cancelled", rec.id)
	o.finish(Outcome{SessionID: rec.id, Source: SourceHotkey, Cancelled: true})
}

// speakSelection reads the selection and toggles playback with it.
func (o *Orchestrator) speakSelection() {
	text, err := o.selection.Selection()
	if err != nil {
		// No selection behaves like an empty one: stop if speaking.
		log.Printf("session: read selection: %v", err)
		text = ""
	}
	o.playback.Toggle(text)
}

// TranscribeUpload runs one remote session over an already-complete
// buffer. It blocks until the outcome is known. clientGone, when not
// nil, is consulted after transcription; a vanished client's transcript
// is discarded rather than delivered.
func (o *Orchestrator) TranscribeUpload(fb *audio.FrozenBuffer, clientGone func() bool) Outcome {
	id := uuid.NewString()

	if fb.Duration() < o.cfg.MinRecording() {
		outcome := Outcome{
			SessionID:     id,
			Source:        SourceRemote,
			TooShort:      true,
			AudioDuration: fb.Duration(),
			ModelID:       o.cfg.ModelID(),
		}
		o.report(outcome)
		return outcome
	}

	outcome := o.runTranscription(id, fb, SourceRemote)

	if clientGone != nil && clientGone() {
		log.Printf("session %s: client gone, discarding transcript", id)
		outcome.Ok = false
		outcome.Cancelled = true
		outcome.Text = ""
		outcome.Err = ErrClientGone
	}

	o.report(outcome)
	return outcome
}

// runTranscription is the shared gate-model walk of both sources.
func (o *Orchestrator) runTranscription(id string, fb *audio.FrozenBuffer, source Source) Outcome {
	outcome := Outcome{
		SessionID:     id,
		Source:        source,
		AudioDuration: fb.Duration(),
		ModelID:       o.cfg.ModelID(),
	}

	// Pin the model for the whole permit span, not just the Transcribe
	// call, so the idle unload loop cannot free it between acquiring
	// the permit and running recognition.
	o.eng.BeginUse()
	defer o.eng.EndUse()

	permit, err := o.gate.Acquire(context.Background(), id)
	if err != nil {
		log.Printf("session %s: gate: %v", id, err)
		outcome.Err = err
		return outcome
	}
	defer permit.Release()

	if err := o.eng.EnsureLoaded(outcome.ModelID); err != nil {
		log.Printf("session %s: %v", id, err)
		outcome.Err = err
		return outcome
	}

	res, err := o.eng.Transcribe(fb, o.cfg.Language())
	outcome.TranscribeTime = res.Duration
	if err != nil {
		log.Printf("session %s: transcribe: %v", id, err)
		outcome.Err = err
		return outcome
	}
	if !res.HadSpeech {
		outcome.NoSpeech = true
		return outcome
	}

	outcome.Ok = true
	outcome.Text = res.Text
	log.Printf("session %s: transcribed %q in %.2fs", id, res.Text, res.Duration.Seconds())
	return outcome
}

// Close aborts any live recording and silences playback.
func (o *Orchestrator) Close() {
	o.cancelRecording()
	o.playback.Stop()
}

func (o *Orchestrator) setState(to RecordingState) {
	o.mu.Lock()
	o.setStateLocked(to)
	o.mu.Unlock()
}

func (o *Orchestrator) setStateLocked(to RecordingState) {
	if o.state == to {
		return
	}
	if !CanTransition(o.state, to) {
		log.Printf("session: refusing illegal transition %s -> %s", o.state, to)
		return
	}
	o.state = to
	if o.onState != nil {
		o.onState(to)
	}
}

// finish records the outcome and returns the machine to Idle.
func (o *Orchestrator) finish(outcome Outcome) {
	o.report(outcome)
	o.setState(StateIdle)
}

func (o *Orchestrator) report(outcome Outcome) {
	o.mu.Lock()
	record := o.record
	o.mu.Unlock()

	if record != nil {
		record(outcome)
	}
}
