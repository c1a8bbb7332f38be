// Package engine owns the single loaded recognition model: lazy loading,
// serialized transcription and idle unloading.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"voxkey/internal/audio"
	"voxkey/internal/speech"
)

var (
	// ErrNoModel is returned when transcribing with nothing loaded.
	ErrNoModel = errors.New("engine: no model loaded")
	// ErrModelLoad wraps recognizer creation failures. The manager is
	// back in the unloaded state afterwards, so callers may retry.
	ErrModelLoad = errors.New("engine: model load failed")
)

// Creator builds recognizers. *speech.Factory satisfies it.
type Creator interface {
	Create(modelID string) (speech.Recognizer, error)
}

// Result is the outcome of one transcription.
type Result struct {
	Text      string
	HadSpeech bool
	Duration  time.Duration // wall time of the recognition pass
}

// Status is a point-in-time snapshot of the model state.
type Status struct {
	Loaded   bool
	ModelID  string        // empty when unloaded
	LoadTime time.Duration // how long the last successful load took
	LastUsed time.Time     // zero when unloaded or never used
}

// Manager holds at most one recognizer at a time. Transcriptions are
// expected to arrive one at a time (the session gate serializes them);
// the manager still guards its own state so status queries and the
// unload loop stay safe concurrently.
type Manager struct {
	creator Creator
	now     func() time.Time

	mu       sync.Mutex
	rec      speech.Recognizer
	modelID  string
	loadTime time.Duration
	lastUsed time.Time
	users    int
}

// New creates an unloaded manager.
func New(creator Creator) *Manager {
	return &Manager{
		creator: creator,
		now:     time.Now,
	}
}

// EnsureLoaded makes modelID the loaded model, loading it on first use.
// A different loaded model is closed before the new one loads. On load
// failure the manager reverts to unloaded and returns ErrModelLoad, so
// the next call can try again.
func (m *Manager) EnsureLoaded(modelID string) error {
	m.mu.Lock()

	if m.rec != nil && m.modelID == modelID {
		m.mu.Unlock()
		return nil
	}

	old := m.rec
	m.rec = nil
	m.modelID = ""
	m.mu.Unlock()

	if old != nil {
		log.Printf("engine: unloading model for switch to %s", modelID)
		old.Close()
	}

	log.Printf("engine: loading model %s", modelID)
	start := m.now()
	rec, err := m.creator.Create(modelID)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrModelLoad, modelID, err)
	}
	loadTime := m.now().Sub(start)

	m.mu.Lock()
	m.rec = rec
	m.modelID = modelID
	m.loadTime = loadTime
	m.lastUsed = m.now()
	m.mu.Unlock()

	log.Printf("engine: model %s loaded in %.2fs", modelID, loadTime.Seconds())
	return nil
}

// BeginUse pins the model against the idle unload check. The session
// layer brackets the whole gate permit with BeginUse/EndUse, so the
// model cannot vanish between acquiring the permit and transcribing.
func (m *Manager) BeginUse() {
	m.mu.Lock()
	m.users++
	m.mu.Unlock()
}

// EndUse releases a BeginUse pin. Must be called exactly once per
// BeginUse.
func (m *Manager) EndUse() {
	m.mu.Lock()
	if m.users > 0 {
		m.users--
	}
	m.mu.Unlock()
}

// Transcribe runs one recognition pass. Callers hold the session gate, so
// passes never overlap; the use count keeps the unload loop away while
// the model works. Audio with no recognizable speech returns
// HadSpeech=false, not an error.
func (m *Manager) Transcribe(fb *audio.FrozenBuffer, lang string) (Result, error) {
	m.mu.Lock()
	rec := m.rec
	if rec == nil {
		m.mu.Unlock()
		return Result{}, ErrNoModel
	}
	m.users++
	m.lastUsed = m.now()
	m.mu.Unlock()

	start := m.now()
	transcript, err := rec.Transcribe(fb.Samples(), lang)
	elapsed := m.now().Sub(start)

	m.mu.Lock()
	m.users--
	m.lastUsed = m.now()
	m.mu.Unlock()

	if err != nil {
		return Result{Duration: elapsed}, err
	}

	return Result{
		Text:      transcript.Text,
		HadSpeech: transcript.HadSpeech,
		Duration:  elapsed,
	}, nil
}

// MaybeUnload frees the model when it has sat unused for idleAfter or
// longer. It never unloads while the model is pinned in use. Returns
// true when it unloaded.
func (m *Manager) MaybeUnload(idleAfter time.Duration) bool {
	m.mu.Lock()
	if m.rec == nil || m.users > 0 || m.lastUsed.IsZero() || m.now().Sub(m.lastUsed) < idleAfter {
		m.mu.Unlock()
		return false
	}

	rec := m.rec
	modelID := m.modelID
	m.rec = nil
	m.modelID = ""
	m.lastUsed = time.Time{}
	m.mu.Unlock()

	log.Printf("engine: unloading model %s after inactivity", modelID)
	rec.Close()
	return true
}

// UnloadLoop runs MaybeUnload on a ticker until ctx is cancelled.
func (m *Manager) UnloadLoop(ctx context.Context, interval, idleAfter time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.MaybeUnload(idleAfter)
		}
	}
}

// Status reports the model state. Safe to call mid-transcription.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Status{
		Loaded:   m.rec != nil,
		ModelID:  m.modelID,
		LoadTime: m.loadTime,
		LastUsed: m.lastUsed,
	}
}

// Loaded reports whether a model is in memory.
func (m *Manager) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec != nil
}

// Close unloads whatever is loaded. Call after the gate has drained.
func (m *Manager) Close() {
	m.mu.Lock()
	rec := m.rec
	m.rec = nil
	m.modelID = ""
	m.lastUsed = time.Time{}
	m.mu.Unlock()

	if rec != nil {
		rec.Close()
	}
}
