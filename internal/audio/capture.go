package audio

import (
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// Capture reads microphone audio and hands chunks to a sink callback.
// It owns the portaudio stream; utterance accumulation lives in Buffer.
type Capture struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	buffer  []float32
	sink    func(chunk []float32)
	running bool
	done    chan struct{}
}

// NewCapture initializes portaudio and prepares a capture.
func NewCapture() (*Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}

	return &Capture{
		buffer: make([]float32, FramesPerBuffer),
	}, nil
}

// Start opens the default input stream and begins delivering chunks to
// sink. The chunk slice passed to sink is a copy the sink may keep.
// Starting an already running capture is a no-op.
func (c *Capture) Start(sink func(chunk []float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	stream, err := portaudio.OpenDefaultStream(
		Channels,
		0,
		SampleRate,
		FramesPerBuffer,
		c.buffer,
	)
	if err != nil {
		return err
	}

	c.stream = stream
	c.sink = sink
	c.running = true
	c.done = make(chan struct{})

	if err := stream.Start(); err != nil {
		c.stream.Close()
		c.stream = nil
		c.running = false
		return err
	}

	go c.captureLoop(stream, c.done)

	return nil
}

// captureLoop runs until the stream it was started with is no longer the
// active one. Each loop owns its done channel; a stale loop never touches
// a successor's.
func (c *Capture) captureLoop(stream *portaudio.Stream, done chan struct{}) {
	defer close(done)

	for {
		if !c.owns(stream) {
			return
		}

		// Read only when a full chunk is buffered so Read returns
		// promptly and Stop is never left waiting on the device.
		available, err := stream.AvailableToRead()
		if err != nil || available < FramesPerBuffer {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if err := stream.Read(); err != nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		c.mu.Lock()
		sink := c.sink
		var chunk []float32
		if c.running && c.stream == stream && sink != nil {
			chunk = make([]float32, len(c.buffer))
			copy(chunk, c.buffer)
		}
		c.mu.Unlock()

		if chunk != nil {
			sink(chunk)
		}
	}
}

func (c *Capture) owns(stream *portaudio.Stream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.stream == stream
}

// Stop ends capture and closes the stream. Safe to call when not running.
func (c *Capture) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}

	c.running = false
	stream := c.stream
	c.stream = nil
	c.sink = nil
	done := c.done
	c.mu.Unlock()

	// The loop checks running every 10ms; give it time to notice.
	if done != nil {
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	if stream != nil {
		stream.Stop()
		stream.Close()
	}
}

// Close stops capture and releases portaudio.
func (c *Capture) Close() {
	c.Stop()
	portaudio.Terminate()
}
