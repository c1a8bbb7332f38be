// Package models manages speech recognition model files.
package models

// Engine identifies which recognizer consumes a model.
type Engine string

const (
	EngineWhisper Engine = "whisper"
	EngineVosk    Engine = "vosk"
)

// ModelInfo describes one downloadable model.
type ModelInfo struct {
	ID       string // unique identifier: "vosk-small-en"
	Engine   Engine // whisper or vosk
	Name     string // display name: "English Small"
	Filename string // file or directory name on disk
	URL      string // download URL
	Size     int64  // bytes, for progress reporting
	IsZip    bool   // unpack after download
}

// Registry lists all known models.
var Registry = []ModelInfo{
	// Vosk runs in-process; these load into this process's memory.
	{
		ID:       "vosk-small-en",
		Engine:   EngineVosk,
		Name:     "English Small",
		Filename: "vosk-model-small-en-us-0.15",
		URL:      "https://alphacephei.com/vosk/models/vosk-model-small-en-us-0.15.zip",
		Size:     40 * 1024 * 1024,
		IsZip:    true,
	},
	{
		ID:       "vosk-en",
		Engine:   EngineVosk,
		Name:     "English Large",
		Filename: "vosk-model-en-us-0.22",
		URL:      "https://alphacephei.com/vosk/models/vosk-model-en-us-0.22.zip",
		Size:     1800 * 1024 * 1024,
		IsZip:    true,
	},
	{
		ID:       "vosk-small-ru",
		Engine:   EngineVosk,
		Name:     "Russian Small",
		Filename: "vosk-model-small-ru-0.22",
		URL:      "https://alphacephei.com/vosk/models/vosk-model-small-ru-0.22.zip",
		Size:     45 * 1024 * 1024,
		IsZip:    true,
	},
	{
		ID:       "vosk-ru",
		Engine:   EngineVosk,
		Name:     "Russian Large",
		Filename: "vosk-model-ru-0.42",
		URL:      "https://alphacephei.com/vosk/models/vosk-model-ru-0.42.zip",
		Size:     1800 * 1024 * 1024,
		IsZip:    true,
	},
	// Whisper models are served by a whisper.cpp server process; the
	// files are still downloadable from here so the server has
	// something to load. Quantized variants first, they are the
	// practical choice on CPU.
	{
		ID:       "whisper-tiny-q5",
		Engine:   EngineWhisper,
		Name:     "Tiny Q5",
		Filename: "ggml-tiny-q5_1.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny-q5_1.bin",
		Size:     32 * 1024 * 1024,
		IsZip:    false,
	},
	{
		ID:       "whisper-base-q5",
		Engine:   EngineWhisper,
		Name:     "Base Q5",
		Filename: "ggml-base-q5_1.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base-q5_1.bin",
		Size:     60 * 1024 * 1024,
		IsZip:    false,
	},
	{
		ID:       "whisper-small-q5",
		Engine:   EngineWhisper,
		Name:     "Small Q5",
		Filename: "ggml-small-q5_1.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small-q5_1.bin",
		Size:     190 * 1024 * 1024,
		IsZip:    false,
	},
	{
		ID:       "whisper-base",
		Engine:   EngineWhisper,
		Name:     "Base",
		Filename: "ggml-base.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.bin",
		Size:     142 * 1024 * 1024,
		IsZip:    false,
	},
	{
		ID:       "whisper-small",
		Engine:   EngineWhisper,
		Name:     "Small",
		Filename: "ggml-small.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.bin",
		Size:     466 * 1024 * 1024,
		IsZip:    false,
	},
	{
		ID:       "whisper-turbo",
		Engine:   EngineWhisper,
		Name:     "Large v3 Turbo",
		Filename: "ggml-large-v3-turbo-q5_0.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3-turbo-q5_0.bin",
		Size:     574 * 1024 * 1024,
		IsZip:    false,
	},
}

// DefaultModelID is the model used when nothing is configured.
func DefaultModelID() string {
	return "vosk-small-en"
}

// GetModel returns the model with the given ID.
func GetModel(id string) (ModelInfo, bool) {
	for _, m := range Registry {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// GetModelsByEngine returns the models for one engine.
func GetModelsByEngine(engine Engine) []ModelInfo {
	var result []ModelInfo
	for _, m := range Registry {
		if m.Engine == engine {
			result = append(result, m)
		}
	}
	return result
}

// AllEngines returns the available engines.
func AllEngines() []Engine {
	return []Engine{EngineVosk, EngineWhisper}
}

// EngineName returns the display name of an engine.
func EngineName(e Engine) string {
	switch e {
	case EngineWhisper:
		return "Whisper"
	case EngineVosk:
		return "Vosk"
	default:
		return string(e)
	}
}
