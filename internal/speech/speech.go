// Package speech provides the recognition engine abstraction and its
// implementations.
package speech

// Transcript is the outcome of one recognition pass. Audio that contains
// no recognizable speech yields HadSpeech=false with empty Text; that is
// a normal result, not an error.
type Transcript struct {
	Text      string
	HadSpeech bool
}

// Recognizer transcribes one utterance at a time.
type Recognizer interface {
	// Transcribe recognizes speech in samples (float32, 16kHz, mono).
	// lang is the recognition language ("en", "ru", "auto").
	Transcribe(samples []float32, lang string) (Transcript, error)

	// Close releases engine resources.
	Close()

	// Name returns the engine name for logging.
	Name() string
}
