package tts

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"voxkey/internal/audio"
)

// Player plays utterances on the default output device. One utterance
// plays at a time; Stop interrupts it.
type Player struct {
	mu   sync.Mutex
	stop chan struct{} // non-nil while playing
}

// NewPlayer initializes the audio backend.
func NewPlayer() (*Player, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	return &Player{}, nil
}

// Play writes the audio to the output device and blocks until it
// finishes or Stop is called.
func (p *Player) Play(fb *audio.FrozenBuffer) error {
	p.mu.Lock()
	if p.stop != nil {
		p.mu.Unlock()
		return fmt.Errorf("playback already running")
	}
	stop := make(chan struct{})
	p.stop = stop
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.stop == stop {
			p.stop = nil
		}
		p.mu.Unlock()
	}()

	out := make([]float32, audio.FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, audio.Channels, float64(fb.SampleRate()), len(out), &out)
	if err != nil {
		return fmt.Errorf("open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start output stream: %w", err)
	}
	defer stream.Stop()

	samples := fb.Samples()
	for off := 0; off < len(samples); off += len(out) {
		select {
		case <-stop:
			return nil
		default:
		}

		n := copy(out, samples[off:])
		for i := n; i < len(out); i++ {
			out[i] = 0
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
	}
	return nil
}

// Stop interrupts the current utterance, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

// Close stops playback and releases the audio backend.
func (p *Player) Close() {
	p.Stop()
	portaudio.Terminate()
}
