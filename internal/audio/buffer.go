// Package audio provides microphone capture, per-utterance sample buffers
// and WAV encoding/decoding.
package audio

import (
	"errors"
	"sync"
	"time"
)

const (
	// SampleRate is the capture sample rate expected by the recognizers.
	SampleRate = 16000
	// Channels is the capture channel count (mono).
	Channels = 1
	// FramesPerBuffer is the capture chunk size.
	FramesPerBuffer = 1024
	// MinSamples is the smallest sample count handed to a recognizer
	// (200ms at 16kHz). Shorter audio is padded with silence; the models
	// misbehave below that.
	MinSamples = SampleRate / 5
)

var (
	// ErrBufferClosed is returned when appending to a finalized buffer.
	ErrBufferClosed = errors.New("audio: buffer already finalized")
	// ErrBufferEmpty is returned when finalizing a buffer with no samples.
	ErrBufferEmpty = errors.New("audio: buffer holds no samples")
)

// Buffer accumulates samples for one utterance. It is created when a
// recording starts, fed by the capture loop, and finalized exactly once
// when the recording ends.
type Buffer struct {
	mu      sync.Mutex
	samples []float32
	closed  bool
}

// NewBuffer creates an empty utterance buffer.
func NewBuffer() *Buffer {
	return &Buffer{
		samples: make([]float32, 0, SampleRate*30),
	}
}

// Append adds a chunk of samples. The chunk is copied; callers may reuse it.
func (b *Buffer) Append(chunk []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBufferClosed
	}
	b.samples = append(b.samples, chunk...)
	return nil
}

// Len returns the number of samples accumulated so far.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Duration returns the audio duration accumulated so far. It never
// mutates the buffer.
func (b *Buffer) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return samplesDuration(len(b.samples), SampleRate)
}

// Finalize closes the buffer and returns an immutable view of its audio.
// Audio shorter than MinSamples is padded with silence; the reported
// duration stays the true recorded duration. Finalizing twice returns
// ErrBufferClosed, finalizing an empty buffer ErrBufferEmpty. The
// configured minimum recording length is the orchestrator's business:
// it checks the frozen buffer's duration and skips recognition for
// takes that come up short.
func (b *Buffer) Finalize() (*FrozenBuffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBufferClosed
	}
	b.closed = true

	if len(b.samples) == 0 {
		return nil, ErrBufferEmpty
	}

	duration := samplesDuration(len(b.samples), SampleRate)
	samples := b.samples
	b.samples = nil
	if len(samples) < MinSamples {
		samples = append(samples, make([]float32, MinSamples-len(samples))...)
	}

	return &FrozenBuffer{samples: samples, rate: SampleRate, duration: duration}, nil
}

// FrozenBuffer is the immutable audio of a finished utterance.
type FrozenBuffer struct {
	samples  []float32
	rate     int
	duration time.Duration
}

// Freeze wraps already-complete audio, e.g. a decoded upload. The slice is
// owned by the FrozenBuffer afterwards.
func Freeze(samples []float32, rate int) *FrozenBuffer {
	return &FrozenBuffer{
		samples:  samples,
		rate:     rate,
		duration: samplesDuration(len(samples), rate),
	}
}

// Samples returns the audio. The slice is shared; callers must not write
// to it.
func (f *FrozenBuffer) Samples() []float32 {
	return f.samples
}

// SampleRate returns the sample rate of the audio.
func (f *FrozenBuffer) SampleRate() int {
	return f.rate
}

// Duration returns the true recorded duration, excluding any silence
// padding.
func (f *FrozenBuffer) Duration() time.Duration {
	return f.duration
}

func samplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}
