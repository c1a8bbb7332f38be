package speech

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"
)

// VoskRecognizer implements Recognizer with an in-process Vosk model.
type VoskRecognizer struct {
	mu         sync.Mutex
	model      *vosk.VoskModel
	recognizer *vosk.VoskRecognizer
	sampleRate float64
}

// voskResult parses the JSON Vosk returns.
type voskResult struct {
	Text string `json:"text"`
}

// NewVosk creates a VoskRecognizer from a model directory.
func NewVosk(modelPath string) (*VoskRecognizer, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("vosk model not found: %s", modelPath)
	}

	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load vosk model: %w", err)
	}

	sampleRate := 16000.0
	rec, err := vosk.NewRecognizer(model, sampleRate)
	if err != nil {
		model.Free()
		return nil, err
	}

	return &VoskRecognizer{
		model:      model,
		recognizer: rec,
		sampleRate: sampleRate,
	}, nil
}

// Name returns the engine name.
func (v *VoskRecognizer) Name() string {
	return "vosk"
}

// Transcribe recognizes speech. Vosk consumes PCM16, so samples are
// converted from float32 first. Language selection is baked into the
// model directory; lang is ignored here.
func (v *VoskRecognizer) Transcribe(samples []float32, lang string) (Transcript, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.recognizer == nil {
		return Transcript{}, fmt.Errorf("vosk recognizer is closed")
	}

	pcm16 := make([]byte, len(samples)*2)
	for i, sample := range samples {
		if sample > 1.0 {
			sample = 1.0
		} else if sample < -1.0 {
			sample = -1.0
		}
		val := int16(sample * math.MaxInt16)
		binary.LittleEndian.PutUint16(pcm16[i*2:], uint16(val))
	}

	v.recognizer.AcceptWaveform(pcm16)
	resultJSON := v.recognizer.FinalResult()

	// Reset so the next utterance starts clean.
	v.recognizer.Reset()

	var result voskResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return Transcript{}, err
	}

	text := strings.TrimSpace(result.Text)
	return Transcript{Text: text, HadSpeech: text != ""}, nil
}

// Close frees the model and recognizer.
func (v *VoskRecognizer) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.recognizer != nil {
		v.recognizer.Free()
		v.recognizer = nil
	}

	if v.model != nil {
		v.model.Free()
		v.model = nil
	}
}
