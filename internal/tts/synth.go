package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"voxkey/internal/config"
)

// synthTimeout bounds one synthesis request.
const synthTimeout = 30 * time.Second

// Synthesizer asks an OpenAI-compatible speech endpoint (such as a
// local openai-edge-tts bridge) to render text as WAV audio.
type Synthesizer struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewSynthesizer creates a synthesizer using the speech settings from cfg.
func NewSynthesizer(cfg *config.Config) *Synthesizer {
	return &Synthesizer{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: synthTimeout,
		},
	}
}

// speechRequest is the /v1/audio/speech payload.
type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed,omitempty"`
}

// Synthesize renders text with the configured voice and returns the
// WAV bytes.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	sp := s.cfg.Speech()

	req := speechRequest{
		Model:          "tts-1",
		Input:          text,
		Voice:          sp.Voice,
		ResponseFormat: "wav",
		Speed:          speedFromRate(sp.Rate),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", sp.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("speech service error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("speech service returned no audio")
	}
	return data, nil
}

// speedFromRate converts an edge-tts rate like "+10%" or "-5%" into
// the speed multiplier of the OpenAI API. Unparseable rates map to the
// service default.
func speedFromRate(rate string) float64 {
	rate = strings.TrimSpace(rate)
	if !strings.HasSuffix(rate, "%") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSuffix(rate, "%"), "+"))
	if err != nil {
		return 0
	}
	return 1 + float64(n)/100
}

// Voices returns the known good voices of the speech service.
func Voices() []string {
	return []string{
		"en-US-AriaNeural",    // female, friendly
		"en-US-JennyNeural",   // female, professional
		"en-US-GuyNeural",     // male, warm
		"en-US-DavisNeural",   // male, confident
		"en-GB-SoniaNeural",   // British female
		"en-GB-RyanNeural",    // British male
		"en-AU-NatashaNeural", // Australian female
		"en-AU-WilliamNeural", // Australian male
	}
}
