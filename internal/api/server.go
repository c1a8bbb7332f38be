// Package api exposes the HTTP interface used by the mobile client.
package api

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"voxkey/internal/audio"
	"voxkey/internal/config"
	"voxkey/internal/engine"
	"voxkey/internal/history"
	"voxkey/internal/session"
)

// Transcriber runs one uploaded recording through the recognition
// pipeline.
type Transcriber interface {
	TranscribeUpload(fb *audio.FrozenBuffer, clientGone func() bool) session.Outcome
}

// StatusSource reports the recognition model state.
type StatusSource interface {
	Status() engine.Status
}

// HistorySource lists recent transcription records.
type HistorySource interface {
	Recent(limit int) ([]history.Record, error)
}

// Server answers health, status, transcription and history requests.
type Server struct {
	cfg  *config.Config
	orch Transcriber
	eng  StatusSource
	hist HistorySource // nil when history is disabled

	app *fiber.App
}

// New builds the server and its routes.
func New(cfg *config.Config, orch Transcriber, eng StatusSource, hist HistorySource) *Server {
	s := &Server{
		cfg:  cfg,
		orch: orch,
		eng:  eng,
		hist: hist,
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             32 * 1024 * 1024,
	})
	app.Get("/health", s.handleHealth)
	app.Post("/transcribe", s.handleTranscribe)
	app.Get("/status", s.handleStatus)
	app.Get("/history", s.handleHistory)

	s.app = app
	return s
}

// Listen serves on addr. Blocks until Shutdown.
func (s *Server) Listen(addr string) error {
	log.Printf("api: listening on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"service":   "voxkey-api",
		"timestamp": unixNow(),
	})
}

func (s *Server) handleTranscribe(c *fiber.Ctx) error {
	header, err := c.FormFile("audio")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No audio file provided"})
	}
	if header.Filename == "" || header.Size == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No audio file selected"})
	}

	file, err := header.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No audio file selected"})
	}
	defer file.Close()

	fb, err := audio.DecodeWAV(file)
	if err != nil {
		log.Printf("api: rejecting upload: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success":   false,
			"error":     "Invalid audio file",
			"timestamp": unixNow(),
		})
	}

	reqCtx := c.Context()
	clientGone := func() bool {
		select {
		case <-reqCtx.Done():
			return true
		default:
			return false
		}
	}

	outcome := s.orch.TranscribeUpload(fb, clientGone)

	switch {
	case outcome.Ok:
		return c.JSON(fiber.Map{
			"success":            true,
			"text":               outcome.Text,
			"transcription_time": outcome.TranscribeTime.Seconds(),
			"timestamp":          unixNow(),
		})
	case errors.Is(outcome.Err, session.ErrGateTimeout):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success":   false,
			"error":     outcome.Reason(),
			"timestamp": unixNow(),
		})
	case outcome.Err != nil && !outcome.Cancelled:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":   false,
			"error":     outcome.Reason(),
			"timestamp": unixNow(),
		})
	default:
		// Too short, no speech, or client gone.
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success":            false,
			"error":              outcome.Reason(),
			"transcription_time": outcome.TranscribeTime.Seconds(),
			"timestamp":          unixNow(),
		})
	}
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	st := s.eng.Status()

	modelName := st.ModelID
	if modelName == "" {
		modelName = s.cfg.ModelID()
	}
	lastUsed := float64(0)
	if !st.LastUsed.IsZero() {
		lastUsed = unixFromTime(st.LastUsed)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"model_info": fiber.Map{
			"model_name": modelName,
			"is_loaded":  st.Loaded,
			"load_time":  st.LoadTime.Seconds(),
			"last_used":  lastUsed,
		},
		"config": fiber.Map{
			"model_name":  s.cfg.ModelID(),
			"sample_rate": audio.SampleRate,
			"channels":    audio.Channels,
		},
		"timestamp": unixNow(),
	})
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	if s.hist == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "History is disabled",
		})
	}

	limit := c.QueryInt("limit", 20)
	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}

	records, err := s.hist.Recent(limit)
	if err != nil {
		log.Printf("api: history query: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":   false,
			"error":     err.Error(),
			"timestamp": unixNow(),
		})
	}
	if records == nil {
		records = []history.Record{}
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"history":   records,
		"count":     len(records),
		"timestamp": unixNow(),
	})
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
