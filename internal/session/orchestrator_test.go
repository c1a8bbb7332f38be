package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"voxkey/internal/audio"
	"voxkey/internal/config"
	"voxkey/internal/engine"
)

type fakeCapture struct {
	mu       sync.Mutex
	sink     func([]float32)
	starts   int
	stops    int
	startErr error
}

func (f *fakeCapture) Start(sink func(chunk []float32)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.sink = sink
	return nil
}

func (f *fakeCapture) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.sink = nil
}

// feed pushes n samples of silence into the live sink.
func (f *fakeCapture) feed(n int) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	if sink != nil {
		sink(make([]float32, n))
	}
}

func (f *fakeCapture) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeCapture) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakeEngine struct {
	mu      sync.Mutex
	loads   []string
	loadErr error
	result  engine.Result
	err     error
	calls   int
	users   int
	entered chan struct{} // signaled on Transcribe entry when set
	proceed chan struct{} // Transcribe blocks on it when set
}

func (f *fakeEngine) BeginUse() {
	f.mu.Lock()
	f.users++
	f.mu.Unlock()
}

func (f *fakeEngine) EndUse() {
	f.mu.Lock()
	f.users--
	f.mu.Unlock()
}

func (f *fakeEngine) useCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users
}

func (f *fakeEngine) EnsureLoaded(modelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return f.loadErr
	}
	f.loads = append(f.loads, modelID)
	return nil
}

func (f *fakeEngine) Transcribe(fb *audio.FrozenBuffer, lang string) (engine.Result, error) {
	f.mu.Lock()
	f.calls++
	entered, proceed := f.entered, f.proceed
	res, err := f.result, f.err
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if proceed != nil {
		<-proceed
	}
	return res, err
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeEngine) loadedModels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.loads...)
}

type fakeInserter struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeInserter) Insert(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeInserter) insertedTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type fakeSelection struct {
	text string
	err  error
}

func (f *fakeSelection) Selection() (string, error) {
	return f.text, f.err
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) add(ev string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeNotifier) Recording() { f.add("recording") }

func (f *fakeNotifier) Processing() { f.add("processing") }

func (f *fakeNotifier) Empty() { f.add("empty") }

func (f *fakeNotifier) Success(string) { f.add("success") }

func (f *fakeNotifier) Error(string) { f.add("error") }

func (f *fakeNotifier) list() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.events, " ")
}

type orchFixture struct {
	cfg      *config.Config
	capture  *fakeCapture
	eng      *fakeEngine
	gate     *Gate
	speaker  *fakeSpeaker
	inserter *fakeInserter
	sel      *fakeSelection
	notes    *fakeNotifier
	orch     *Orchestrator
	outcomes chan Outcome
}

// newOrchFixture builds an orchestrator over fakes. cfgJSON, when not
// empty, is written as the config file first.
func newOrchFixture(t *testing.T, cfgJSON string) *orchFixture {
	t.Helper()

	dir := t.TempDir()
	if cfgJSON != "" {
		if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(cfgJSON), 0644); err != nil {
			t.Fatal(err)
		}
	}

	fx := &orchFixture{
		cfg:     config.NewAt(dir),
		capture: &fakeCapture{},
		eng: &fakeEngine{
			result: engine.Result{Text: "hello world", HadSpeech: true, Duration: 42 * time.Millisecond},
		},
		speaker:  newFakeSpeaker(),
		inserter: &fakeInserter{},
		sel:      &fakeSelection{},
		notes:    &fakeNotifier{},
		outcomes: make(chan Outcome, 8),
	}
	fx.gate = NewGate(fx.cfg.GateWait())
	fx.orch = NewOrchestrator(
		fx.cfg, fx.capture, fx.eng, fx.gate,
		NewPlayback(fx.speaker, nil),
		fx.inserter, fx.sel, fx.notes,
	)
	fx.orch.OnOutcome(func(o Outcome) { fx.outcomes <- o })
	return fx
}

func (fx *orchFixture) press() {
	fx.orch.Trigger(TriggerEvent{Kind: TriggerPressStart, Source: SourceHotkey, At: time.Now()})
}

func (fx *orchFixture) release() {
	fx.orch.Trigger(TriggerEvent{Kind: TriggerPressEnd, Source: SourceHotkey, At: time.Now()})
}

func (fx *orchFixture) cancel() {
	fx.orch.Trigger(TriggerEvent{Kind: TriggerCancel, Source: SourceHotkey, At: time.Now()})
}

func (fx *orchFixture) speak() {
	fx.orch.Trigger(TriggerEvent{Kind: TriggerSpeak, Source: SourceHotkey, At: time.Now()})
}

func (fx *orchFixture) waitOutcome(t *testing.T) Outcome {
	t.Helper()
	select {
	case o := <-fx.outcomes:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("no outcome within 5s")
		return Outcome{}
	}
}

func waitState(t *testing.T, o *Orchestrator, want RecordingState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for o.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state never reached %q (now %q)", want, o.State())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHotkeySessionInsertsTranscript(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, "")

	var mu sync.Mutex
	var walk []RecordingState
	fx.orch.OnStateChange(func(s RecordingState) {
		mu.Lock()
		walk = append(walk, s)
		mu.Unlock()
	})

	fx.press()
	if got := fx.orch.State(); got != StateRecording {
		t.Fatalf("state after press = %q, want %q", got, StateRecording)
	}
	fx.capture.feed(audio.SampleRate) // one second

	fx.release()
	o := fx.waitOutcome(t)
	waitState(t, fx.orch, StateIdle)

	if !o.Ok {
		t.Fatalf("outcome not ok: %+v", o)
	}
	if o.Text != "hello world" {
		t.Fatalf("text = %q, want %q", o.Text, "hello world")
	}
	if o.Source != SourceHotkey {
		t.Fatalf("source = %q, want %q", o.Source, SourceHotkey)
	}
	if o.AudioDuration != time.Second {
		t.Fatalf("audio duration = %v, want 1s", o.AudioDuration)
	}
	if o.ModelID != fx.cfg.ModelID() {
		t.Fatalf("model = %q, want %q", o.ModelID, fx.cfg.ModelID())
	}

	if got := fx.inserter.insertedTexts(); len(got) != 1 || got[0] != "hello world" {
		t.Fatalf("inserted = %v, want [hello world]", got)
	}
	if got := fx.eng.loadedModels(); len(got) != 1 || got[0] != fx.cfg.ModelID() {
		t.Fatalf("loaded models = %v", got)
	}
	if got := fx.notes.list(); got != "recording processing success" {
		t.Fatalf("notifications = %q", got)
	}
	if got := fx.capture.stopCount(); got != 1 {
		t.Fatalf("capture stops = %d, want 1", got)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []RecordingState{StateRecording, StateFinalizing, StateTranscribing, StateDelivering, StateIdle}
	if len(walk) != len(want) {
		t.Fatalf("state walk = %v, want %v", walk, want)
	}
	for i := range want {
		if walk[i] != want[i] {
			t.Fatalf("state walk = %v, want %v", walk, want)
		}
	}
}

func TestTooShortRecordingSkipsModel(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, "")

	fx.press()
	fx.capture.feed(audio.SampleRate / 10) // 100ms, below the 500ms floor
	fx.release()

	o := fx.waitOutcome(t)
	waitState(t, fx.orch, StateIdle)

	if !o.TooShort || o.Ok {
		t.Fatalf("outcome = %+v, want too short", o)
	}
	if got := fx.eng.callCount(); got != 0 {
		t.Fatalf("transcribe calls = %d, want 0", got)
	}
	if got := fx.notes.list(); got != "recording" {
		t.Fatalf("notifications = %q", got)
	}
}

func TestEmptyRecordingSkipsModel(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, "")

	fx.press()
	fx.release() // no audio ever arrived

	o := fx.waitOutcome(t)
	waitState(t, fx.orch, StateIdle)

	if !o.TooShort {
		t.Fatalf("outcome = %+v, want too short", o)
	}
	if got := fx.eng.callCount(); got != 0 {
		t.Fatalf("transcribe calls = %d, want 0", got)
	}
	if got := fx.notes.list(); got != "recording empty" {
		t.Fatalf("notifications = %q", got)
	}
}

func TestSilentAudioReportsNoSpeech(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, "")
	fx.eng.result = engine.Result{HadSpeech: false}

	fx.press()
	fx.capture.feed(audio.SampleRate)
	fx.release()

	o := fx.waitOutcome(t)
	waitState(t, fx.orch, StateIdle)

	if !o.NoSpeech || o.Ok {
		t.Fatalf("outcome = %+v, want no speech", o)
	}
	if got := fx.inserter.insertedTexts(); len(got) != 0 {
		t.Fatalf("inserted = %v, want none", got)
	}
	if got := fx.notes.list(); got != "recording processing empty" {
		t.Fatalf("notifications = %q", got)
	}
}

func TestCancelDiscardsRecording(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, "")

	fx.press()
	fx.capture.feed(audio.SampleRate)
	fx.cancel()

	o := fx.waitOutcome(t)
	waitState(t, fx.orch, StateIdle)

	if !o.Cancelled {
		t.Fatalf("outcome = %+v, want cancelled", o)
	}
	if got := fx.eng.callCount(); got != 0 {
		t.Fatalf("transcribe calls = %d, want 0", got)
	}
	if got := fx.gate.Holder(); got != "" {
		t.Fatalf("gate holder = %q, want empty", got)
	}
	if got := fx.capture.stopCount(); got != 1 {
		t.Fatalf("capture stops = %d, want 1", got)
	}

	// The machine accepts a fresh session afterwards.
	fx.press()
	if got := fx.orch.State(); got != StateRecording {
		t.Fatalf("state after new press = %q, want %q", got, StateRecording)
	}
	if got := fx.capture.startCount(); got != 2 {
		t.Fatalf("capture starts = %d, want 2", got)
	}
	fx.cancel()
	fx.waitOutcome(t)
}

func TestPressWhileBusyIgnored(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, "")
	fx.eng.entered = make(chan struct{}, 2)
	fx.eng.proceed = make(chan struct{})

	fx.press()
	fx.press() // held key repeat
	if got := fx.capture.startCount(); got != 1 {
		t.Fatalf("capture starts = %d, want 1", got)
	}

	fx.capture.feed(audio.SampleRate)
	fx.release()
	<-fx.eng.entered // transcription in flight

	fx.press() // press while transcribing
	if got := fx.capture.startCount(); got != 1 {
		t.Fatalf("capture starts during transcription = %d, want 1", got)
	}

	close(fx.eng.proceed)
	o := fx.waitOutcome(t)
	if !o.Ok {
		t.Fatalf("outcome not ok: %+v", o)
	}
	waitState(t, fx.orch, StateIdle)
}

func TestEnginePinnedAcrossPermit(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, "")
	fx.eng.entered = make(chan struct{}, 1)
	fx.eng.proceed = make(chan struct{})

	fx.press()
	fx.capture.feed(audio.SampleRate)
	fx.release()
	<-fx.eng.entered

	// The session holds the gate permit mid-recognition; the engine must
	// be pinned so the idle unload loop cannot free the model under it.
	if got := fx.eng.useCount(); got != 1 {
		t.Fatalf("engine use count during permit = %d, want 1", got)
	}

	close(fx.eng.proceed)
	o := fx.waitOutcome(t)
	if !o.Ok {
		t.Fatalf("outcome not ok: %+v", o)
	}
	waitState(t, fx.orch, StateIdle)

	deadline := time.Now().Add(2 * time.Second)
	for fx.eng.useCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("engine use count after session = %d, want 0", fx.eng.useCount())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestReleaseWhileIdleIgnored(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, "")

	fx.release()
	fx.cancel()

	select {
	case o := <-fx.outcomes:
		t.Fatalf("unexpected outcome %+v", o)
	case <-time.After(50 * time.Millisecond):
	}
	if got := fx.orch.State(); got != StateIdle {
		t.Fatalf("state = %q, want %q", got, StateIdle)
	}
}

func TestCaptureFailureCancelsSession(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, "")
	fx.capture.startErr = errors.New("no input device")

	fx.press()
	o := fx.waitOutcome(t)
	waitState(t, fx.orch, StateIdle)

	if !o.Cancelled || o.Err == nil {
		t.Fatalf("outcome = %+v, want cancelled with error", o)
	}
	if got := fx.notes.list(); got != "error" {
		t.Fatalf("notifications = %q", got)
	}
}

func TestModelLoadFailureReported(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, "")
	fx.eng.loadErr = errors.New("model not downloaded")

	fx.press()
	fx.capture.feed(audio.SampleRate)
	fx.release()

	o := fx.waitOutcome(t)
	waitState(t, fx.orch, StateIdle)

	if o.Ok || o.Err == nil {
		t.Fatalf("outcome = %+v, want load error", o)
	}
	if got := fx.gate.Holder(); got != "" {
		t.Fatalf("gate holder = %q, want empty", got)
	}
	if got := fx.notes.list(); got != "recording processing error" {
		t.Fatalf("notifications = %q", got)
	}
}

func TestInsertFailureReported(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, "")
	fx.inserter.err = errors.New("typing tool missing")

	fx.press()
	fx.capture.feed(audio.SampleRate)
	fx.release()

	o := fx.waitOutcome(t)
	waitState(t, fx.orch, StateIdle)

	if o.Ok || o.Err == nil {
		t.Fatalf("outcome = %+v, want insert error", o)
	}
	if got := fx.notes.list(); got != "recording processing error" {
		t.Fatalf("notifications = %q", got)
	}
}

func TestMaxDurationStopsRecording(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, `{"max_recording_sec": 1}`)

	fx.press()
	fx.capture.feed(audio.SampleRate)

	// No release; the cap ends the session on its own.
	o := fx.waitOutcome(t)
	waitState(t, fx.orch, StateIdle)

	if !o.Ok {
		t.Fatalf("outcome = %+v, want ok", o)
	}
	if got := fx.capture.stopCount(); got != 1 {
		t.Fatalf("capture stops = %d, want 1", got)
	}
}

func TestRemoteUploadTranscribes(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, "")

	fb := audio.Freeze(make([]float32, audio.SampleRate), audio.SampleRate)
	o := fx.orch.TranscribeUpload(fb, nil)

	if !o.Ok || o.Text != "hello world" {
		t.Fatalf("outcome = %+v, want ok with text", o)
	}
	if o.Source != SourceRemote {
		t.Fatalf("source = %q, want %q", o.Source, SourceRemote)
	}
	if got := fx.inserter.insertedTexts(); len(got) != 0 {
		t.Fatalf("remote session inserted text: %v", got)
	}
	if got := fx.orch.State(); got != StateIdle {
		t.Fatalf("remote session moved hotkey state to %q", got)
	}

	reported := fx.waitOutcome(t)
	if reported.SessionID != o.SessionID {
		t.Fatalf("reported session %q, want %q", reported.SessionID, o.SessionID)
	}
}

func TestRemoteUploadTooShortRejected(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, "")

	fb := audio.Freeze(make([]float32, audio.SampleRate/10), audio.SampleRate)
	o := fx.orch.TranscribeUpload(fb, nil)

	if !o.TooShort || o.Ok {
		t.Fatalf("outcome = %+v, want too short", o)
	}
	if got := fx.eng.callCount(); got != 0 {
		t.Fatalf("transcribe calls = %d, want 0", got)
	}
}

func TestRemoteClientGoneDiscardsTranscript(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, "")

	fb := audio.Freeze(make([]float32, audio.SampleRate), audio.SampleRate)
	o := fx.orch.TranscribeUpload(fb, func() bool { return true })

	if o.Ok || o.Text != "" {
		t.Fatalf("outcome = %+v, want discarded", o)
	}
	if !errors.Is(o.Err, ErrClientGone) {
		t.Fatalf("err = %v, want ErrClientGone", o.Err)
	}
	if got := fx.gate.Holder(); got != "" {
		t.Fatalf("gate holder = %q, want empty", got)
	}
}

func TestConcurrentSessionsSerializedAtGate(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, "")
	fx.eng.entered = make(chan struct{}, 2)
	fx.eng.proceed = make(chan struct{})

	// A remote session occupies the model.
	fb := audio.Freeze(make([]float32, audio.SampleRate), audio.SampleRate)
	remoteDone := make(chan Outcome, 1)
	go func() { remoteDone <- fx.orch.TranscribeUpload(fb, nil) }()
	<-fx.eng.entered

	// A hotkey session arrives and parks at the gate.
	fx.press()
	fx.capture.feed(audio.SampleRate)
	fx.release()
	waitState(t, fx.orch, StateTranscribing)
	waitQueueLen(t, fx.gate, 1)

	if got := fx.eng.callCount(); got != 1 {
		t.Fatalf("transcribe calls while gate held = %d, want 1", got)
	}

	close(fx.eng.proceed)
	<-remoteDone

	var remote, hotkey Outcome
	for i := 0; i < 2; i++ {
		o := fx.waitOutcome(t)
		switch o.Source {
		case SourceRemote:
			remote = o
		case SourceHotkey:
			hotkey = o
		}
	}
	waitState(t, fx.orch, StateIdle)

	if !remote.Ok || !hotkey.Ok {
		t.Fatalf("outcomes remote=%+v hotkey=%+v, want both ok", remote, hotkey)
	}
	if got := fx.eng.callCount(); got != 2 {
		t.Fatalf("transcribe calls = %d, want 2", got)
	}
	if got := fx.gate.Holder(); got != "" {
		t.Fatalf("gate holder = %q, want empty", got)
	}
}

func TestGateWaitLimitFailsSession(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, `{"gate_wait_sec": 1}`)
	fx.eng.entered = make(chan struct{}, 2)
	fx.eng.proceed = make(chan struct{})

	fb := audio.Freeze(make([]float32, audio.SampleRate), audio.SampleRate)
	remoteDone := make(chan Outcome, 1)
	go func() { remoteDone <- fx.orch.TranscribeUpload(fb, nil) }()
	<-fx.eng.entered

	fx.press()
	fx.capture.feed(audio.SampleRate)
	fx.release()

	o := fx.waitOutcome(t)
	if !errors.Is(o.Err, ErrGateTimeout) {
		t.Fatalf("err = %v, want ErrGateTimeout", o.Err)
	}
	waitState(t, fx.orch, StateIdle)

	close(fx.eng.proceed)
	remote := <-remoteDone
	if !remote.Ok {
		t.Fatalf("remote outcome = %+v, want ok", remote)
	}
	fx.waitOutcome(t) // drain the reported remote outcome
}

func TestSpeakTriggerTogglesPlayback(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, "")
	fx.sel.text = "read me"

	fx.speak()
	if got := <-fx.speaker.started; got != "read me" {
		t.Fatalf("spoke %q, want %q", got, "read me")
	}
	if got := fx.orch.PlaybackState(); got != PlaybackSpeaking {
		t.Fatalf("playback state = %q, want %q", got, PlaybackSpeaking)
	}

	fx.sel.text = ""
	fx.speak()

	deadline := time.Now().Add(2 * time.Second)
	for fx.orch.PlaybackState() != PlaybackIdle {
		if time.Now().After(deadline) {
			t.Fatalf("playback never stopped")
		}
		time.Sleep(time.Millisecond)
	}
	if got := fx.speaker.stopCount(); got != 1 {
		t.Fatalf("stop count = %d, want 1", got)
	}
}

func TestSpeakSelectionFailureIsQuiet(t *testing.T) {
	t.Parallel()

	fx := newOrchFixture(t, "")
	fx.sel.err = errors.New("no selection owner")

	fx.speak()

	select {
	case text := <-fx.speaker.started:
		t.Fatalf("unexpected utterance %q", text)
	case <-time.After(30 * time.Millisecond):
	}
	if got := fx.orch.PlaybackState(); got != PlaybackIdle {
		t.Fatalf("playback state = %q, want %q", got, PlaybackIdle)
	}
}
