package session

import (
	"log"
	"strings"
	"sync"
)

// PlaybackState is the text-to-speech slot state.
type PlaybackState string

const (
	PlaybackIdle     PlaybackState = "idle"
	PlaybackSpeaking PlaybackState = "speaking"
)

// Speaker synthesizes and plays one utterance. Speak blocks until the
// utterance finishes or Stop interrupts it; implementations serialize
// overlapping Speak calls. Stop is safe to call at any time.
type Speaker interface {
	Speak(text string) error
	Stop()
}

// Playback owns the single playback slot and the speak key's double
// duty: with text it speaks (restarting whatever was playing), without
// text it stops playback if any.
type Playback struct {
	speaker Speaker
	onError func(error)

	mu    sync.Mutex
	state PlaybackState
	gen   int
}

// NewPlayback creates an idle playback controller. onError receives
// synthesis and playback failures; nil is allowed.
func NewPlayback(speaker Speaker, onError func(error)) *Playback {
	return &Playback{
		speaker: speaker,
		onError: onError,
		state:   PlaybackIdle,
	}
}

// Toggle handles one press of the speak key with the given selection
// text. Empty text while idle is a no-op; empty text while speaking
// stops; text while speaking stops the old utterance and starts the
// new one.
func (p *Playback) Toggle(text string) {
	text = strings.TrimSpace(text)

	p.mu.Lock()
	if text == "" {
		speaking := p.state == PlaybackSpeaking
		if speaking {
			// Go idle immediately; the interrupted speak goroutine is
			// stale from here on.
			p.gen++
			p.state = PlaybackIdle
		}
		p.mu.Unlock()
		if speaking {
			log.Printf("playback: stop requested")
			p.speaker.Stop()
		}
		return
	}

	if p.state == PlaybackSpeaking {
		// Restart with the new utterance.
		p.mu.Unlock()
		p.speaker.Stop()
		p.mu.Lock()
	}

	p.gen++
	gen := p.gen
	p.state = PlaybackSpeaking
	p.mu.Unlock()

	go p.speak(gen, text)
}

func (p *Playback) speak(gen int, text string) {
	err := p.speaker.Speak(text)

	p.mu.Lock()
	if p.gen == gen {
		p.state = PlaybackIdle
	}
	p.mu.Unlock()

	if err != nil {
		log.Printf("playback: %v", err)
		if p.onError != nil {
			p.onError(err)
		}
	}
}

// State returns the current playback state.
func (p *Playback) State() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stop silences playback unconditionally. Used at shutdown.
func (p *Playback) Stop() {
	p.mu.Lock()
	p.gen++
	p.state = PlaybackIdle
	p.mu.Unlock()

	p.speaker.Stop()
}
