package speech

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"voxkey/internal/audio"
)

const (
	// DefaultServerURL is where a local whisper.cpp server usually listens.
	DefaultServerURL = "http://127.0.0.1:8080"
	// serverTimeout caps one inference round trip. Large models on CPU
	// can take a while on 30s of audio.
	serverTimeout = 120 * time.Second
)

// ServerRecognizer implements Recognizer against a whisper.cpp server
// instance. The model itself lives in the server process; Close is a
// no-op beyond dropping the client.
type ServerRecognizer struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// inferenceResponse is the whisper.cpp server reply.
type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// NewServer creates a recognizer that posts audio to a whisper.cpp server.
// model is the server-side model alias; empty uses whatever the server
// loaded at startup.
func NewServer(baseURL, model string) (*ServerRecognizer, error) {
	if baseURL == "" {
		baseURL = DefaultServerURL
	}

	s := &ServerRecognizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: serverTimeout,
		},
	}

	// Fail fast when the server is not reachable, so loading this
	// "model" reports an error the same way a missing file would.
	if err := s.ping(); err != nil {
		return nil, fmt.Errorf("whisper server %s: %w", s.baseURL, err)
	}

	return s, nil
}

func (s *ServerRecognizer) ping() error {
	resp, err := s.httpClient.Get(s.baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}

// Name returns the engine name.
func (s *ServerRecognizer) Name() string {
	return "whisper-server"
}

// Transcribe uploads the utterance as WAV and returns the server's text.
func (s *ServerRecognizer) Transcribe(samples []float32, lang string) (Transcript, error) {
	wavBytes, err := audio.EncodeWAVBytes(audio.Freeze(samples, audio.SampleRate))
	if err != nil {
		return Transcript{}, fmt.Errorf("encode upload: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return Transcript{}, err
	}
	if _, err := part.Write(wavBytes); err != nil {
		return Transcript{}, err
	}
	writer.WriteField("response_format", "json")
	writer.WriteField("temperature", "0.0")
	if lang != "" && lang != "auto" {
		writer.WriteField("language", lang)
	}
	if s.model != "" {
		writer.WriteField("model", s.model)
	}
	if err := writer.Close(); err != nil {
		return Transcript{}, err
	}

	req, err := http.NewRequest("POST", s.baseURL+"/inference", body)
	if err != nil {
		return Transcript{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Transcript{}, fmt.Errorf("whisper server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Transcript{}, fmt.Errorf("whisper server %d: %s", resp.StatusCode, string(respBody))
	}

	var result inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Transcript{}, fmt.Errorf("decode response: %w", err)
	}
	if result.Error != "" {
		return Transcript{}, fmt.Errorf("whisper server: %s", result.Error)
	}

	text := strings.TrimSpace(result.Text)
	return Transcript{Text: text, HadSpeech: text != ""}, nil
}

// Close drops the HTTP client.
func (s *ServerRecognizer) Close() {
	s.httpClient.CloseIdleConnections()
}
