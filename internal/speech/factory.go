package speech

import (
	"context"
	"fmt"
	"log"

	"voxkey/internal/models"
)

// Factory creates recognizers for registry models.
type Factory struct {
	manager   *models.Manager
	serverURL string
}

// NewFactory creates a factory. serverURL is the whisper.cpp server base
// URL used for whisper models.
func NewFactory(manager *models.Manager, serverURL string) *Factory {
	return &Factory{
		manager:   manager,
		serverURL: serverURL,
	}
}

// Create builds a recognizer for the given model ID. Vosk models are
// fetched on first use; whisper models live in the server process, so
// creation only checks that the server answers.
func (f *Factory) Create(modelID string) (Recognizer, error) {
	info, ok := models.GetModel(modelID)
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", modelID)
	}

	switch info.Engine {
	case models.EngineVosk:
		if err := f.ensureDownloaded(info); err != nil {
			return nil, err
		}
		rec, err := NewVosk(f.manager.GetModelPath(info))
		if err != nil {
			return nil, fmt.Errorf("create recognizer: %w", err)
		}
		return rec, nil
	case models.EngineWhisper:
		rec, err := NewServer(f.serverURL, info.Filename)
		if err != nil {
			return nil, fmt.Errorf("create recognizer: %w", err)
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("unknown engine: %s", info.Engine)
	}
}

// ensureDownloaded fetches a missing model before its first load. The
// download happens inline: the session that triggered the load waits,
// later sessions queue at the gate as usual.
func (f *Factory) ensureDownloaded(info models.ModelInfo) error {
	if f.manager.IsDownloaded(info) {
		return nil
	}

	log.Printf("speech: downloading %s (%d MB)", info.Name, info.Size/(1024*1024))

	progress := make(chan models.Progress, 16)
	logged := make(chan struct{})
	go func() {
		defer close(logged)
		lastQuarter := 0
		for p := range progress {
			if p.Total <= 0 {
				continue
			}
			quarter := int(p.Downloaded * 4 / p.Total)
			for lastQuarter < quarter {
				lastQuarter++
				log.Printf("speech: %s download %d%%", info.ID, lastQuarter*25)
			}
		}
	}()

	err := f.manager.Download(context.Background(), info, progress)
	close(progress)
	<-logged
	if err != nil {
		return fmt.Errorf("download model: %w", err)
	}
	return nil
}
