// Package app wires the collaborators into a running application.
package app

import (
	"context"
	"log"
	"sync"
	"time"

	"voxkey/internal/api"
	"voxkey/internal/audio"
	"voxkey/internal/config"
	"voxkey/internal/engine"
	"voxkey/internal/history"
	"voxkey/internal/hotkey"
	"voxkey/internal/insert"
	"voxkey/internal/models"
	"voxkey/internal/notify"
	"voxkey/internal/session"
	"voxkey/internal/speech"
	"voxkey/internal/tray"
	"voxkey/internal/tts"
)

// Options adjust startup behavior from the command line.
type Options struct {
	// NoTray runs headless: hotkeys and the API only.
	NoTray bool
}

// App owns every collaborator and the session orchestrator.
type App struct {
	cfg      *config.Config
	capture  *audio.Capture
	eng      *engine.Manager
	player   *tts.Player
	notifier *notify.Notifier
	hist     *history.Store // nil when history is disabled
	orch     *session.Orchestrator
	server   *api.Server
	tray     *tray.Tray // nil with Options.NoTray
	hotkeys  *hotkey.Manager

	cancelUnload context.CancelFunc
	done         chan struct{}
	closeOnce    sync.Once
}

// New builds the application.
func New(cfg *config.Config, opts Options) (*App, error) {
	capture, err := audio.NewCapture()
	if err != nil {
		return nil, err
	}

	player, err := tts.NewPlayer()
	if err != nil {
		capture.Close()
		return nil, err
	}

	inserter, err := insert.NewInserter()
	if err != nil {
		capture.Close()
		player.Close()
		return nil, err
	}

	modelManager, err := models.NewManager()
	if err != nil {
		capture.Close()
		player.Close()
		return nil, err
	}

	factory := speech.NewFactory(modelManager, cfg.WhisperServerURL())
	eng := engine.New(factory)

	notifier := notify.New(cfg)
	speaker := tts.NewController(cfg, tts.NewSynthesizer(cfg), player)

	playback := session.NewPlayback(speaker, func(err error) {
		log.Printf("app: speech playback failed: %v", err)
		notifier.Error("Speech failed: " + err.Error())
	})

	a := &App{
		cfg:      cfg,
		capture:  capture,
		eng:      eng,
		player:   player,
		notifier: notifier,
		done:     make(chan struct{}),
	}

	a.orch = session.NewOrchestrator(
		cfg,
		capture,
		eng,
		session.NewGate(cfg.GateWait()),
		playback,
		inserter,
		tts.NewSelectionReader(),
		notifier,
	)

	if cfg.HistoryEnabled() && cfg.HistoryPath() != "" {
		hist, err := history.Open(cfg.HistoryPath())
		if err != nil {
			// Missing history is not worth refusing to start over.
			log.Printf("app: history disabled: %v", err)
		} else {
			a.hist = hist
			a.orch.OnOutcome(func(o session.Outcome) {
				if o.Cancelled || o.TooShort {
					return
				}
				if err := hist.Append(o); err != nil {
					log.Printf("app: record history: %v", err)
				}
			})
		}
	}

	var histSource api.HistorySource
	if a.hist != nil {
		histSource = a.hist
	}
	a.server = api.New(cfg, a.orch, eng, histSource)

	a.hotkeys = hotkey.NewManager(
		func() { a.trigger(session.TriggerPressStart) },
		func() { a.trigger(session.TriggerPressEnd) },
		func() { a.trigger(session.TriggerSpeak) },
	)
	cfg.OnHotkeyChange(func() {
		if err := a.registerHotkeys(); err != nil {
			log.Printf("app: hotkey change: %v", err)
			notifier.Error("Hotkey registration failed: " + err.Error())
		}
	})

	if !opts.NoTray {
		a.tray = tray.New(tray.Callbacks{
			OnNotificationsToggle: cfg.ToggleNotifications,
			OnQuit:                a.Close,
		}, cfg.NotificationsEnabled())

		a.orch.OnStateChange(func(st session.RecordingState) {
			a.tray.SetState(trayState(st))
		})
	}

	return a, nil
}

// Run starts the background loops and blocks until the application
// quits.
func (a *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelUnload = cancel
	go a.eng.UnloadLoop(ctx, a.cfg.UnloadCheck(), a.cfg.IdleUnload())

	go func() {
		if err := a.server.Listen(a.cfg.APIAddr()); err != nil {
			log.Printf("app: api server stopped: %v", err)
		}
	}()

	if a.tray == nil {
		if err := a.registerHotkeys(); err != nil {
			log.Printf("app: register hotkeys: %v", err)
		}
		<-a.done
		return
	}

	a.tray.Run(func() {
		if err := a.registerHotkeys(); err != nil {
			log.Printf("app: register hotkeys: %v", err)
			a.notifier.Error("Hotkey registration failed: " + err.Error())
		}
	})
}

func (a *App) registerHotkeys() error {
	return a.hotkeys.Register(a.cfg.RecordHotkey(), a.cfg.SpeakHotkey())
}

func (a *App) trigger(kind session.TriggerKind) {
	a.orch.Trigger(session.TriggerEvent{
		Kind:   kind,
		Source: session.SourceHotkey,
		At:     time.Now(),
	})
}

// Close releases every resource. Safe to call more than once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		log.Printf("app: shutting down")

		a.hotkeys.Close()
		if a.cancelUnload != nil {
			a.cancelUnload()
		}
		a.orch.Close()
		if err := a.server.Shutdown(); err != nil {
			log.Printf("app: api shutdown: %v", err)
		}
		a.capture.Close()
		a.player.Close()
		a.eng.Close()
		if a.hist != nil {
			a.hist.Close()
		}

		close(a.done)
		if a.tray != nil {
			a.tray.Quit()
		}
	})
}

func trayState(st session.RecordingState) tray.State {
	switch st {
	case session.StateRecording:
		return tray.StateRecording
	case session.StateFinalizing, session.StateTranscribing, session.StateDelivering:
		return tray.StateProcessing
	default:
		return tray.StateIdle
	}
}
