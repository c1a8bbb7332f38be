// Package tts reads text aloud: a selection is cleaned up, rendered by
// an OpenAI-compatible speech endpoint and played on the default output
// device.
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"voxkey/internal/audio"
	"voxkey/internal/config"
)

// ErrDisabled is returned when speech is turned off in the settings.
var ErrDisabled = errors.New("tts: speech is disabled")

type synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type audioPlayer interface {
	Play(fb *audio.FrozenBuffer) error
	Stop()
}

// Controller turns text into speech, one utterance at a time.
type Controller struct {
	cfg    *config.Config
	synth  synthesizer
	player audioPlayer

	mu sync.Mutex // serializes utterances

	flagMu      sync.Mutex
	interrupted bool
}

// NewController wires the synthesizer to the player.
func NewController(cfg *config.Config, synth *Synthesizer, player *Player) *Controller {
	return &Controller{cfg: cfg, synth: synth, player: player}
}

// Speak cleans, synthesizes and plays text, blocking until playback
// ends or Stop interrupts it. Text that cleans down to nothing is
// silently skipped.
func (c *Controller) Speak(text string) error {
	if !c.cfg.Speech().Enabled {
		return ErrDisabled
	}

	cleaned := CleanForSpeech(text)
	if cleaned == "" {
		log.Printf("tts: nothing speakable in selection")
		return nil
	}
	cleaned = TruncateForSpeech(cleaned)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.setInterrupted(false)

	ctx, cancel := context.WithTimeout(context.Background(), synthTimeout)
	defer cancel()

	data, err := c.synth.Synthesize(ctx, cleaned)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	if c.wasInterrupted() {
		// Stopped while the audio was still being generated.
		return nil
	}

	fb, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode synthesized audio: %w", err)
	}
	return c.player.Play(fb)
}

// Stop interrupts the current utterance, including one still being
// synthesized.
func (c *Controller) Stop() {
	c.setInterrupted(true)
	c.player.Stop()
}

func (c *Controller) setInterrupted(v bool) {
	c.flagMu.Lock()
	c.interrupted = v
	c.flagMu.Unlock()
}

func (c *Controller) wasInterrupted() bool {
	c.flagMu.Lock()
	defer c.flagMu.Unlock()
	return c.interrupted
}
