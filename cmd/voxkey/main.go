// VoxKey is a cross-platform voice input application.
//
// It lives in the system tray, records speech while the push-to-talk
// key is held, types the transcript at the cursor, and answers
// transcription requests from the companion mobile app over HTTP.
// A second hotkey reads the selected text aloud.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"voxkey/internal/app"
	"voxkey/internal/config"
	"voxkey/internal/hotkey"
	"voxkey/internal/models"
	"voxkey/internal/tts"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	log.SetFlags(log.Ltime | log.Lshortfile)

	// .env is optional; real settings live in config.json.
	if err := godotenv.Load(); err == nil {
		log.Printf("loaded environment from .env")
	}

	var (
		model          = flag.String("model", "", "recognition model id (overrides config)")
		recordKey      = flag.String("hotkey", "", "push-to-talk key, e.g. ctrl+f1 (overrides config)")
		speakKey       = flag.String("tts-hotkey", "", "speak-selection key, e.g. ctrl+f2 (overrides config)")
		addr           = flag.String("addr", "", "API listen address (overrides config)")
		voice          = flag.String("voice", "", "speech synthesis voice (overrides config)")
		noTray         = flag.Bool("no-tray", false, "run without the tray icon")
		noNotify       = flag.Bool("no-notifications", false, "disable desktop notifications")
		saveRecordings = flag.Bool("save-recordings", false, "keep a WAV copy of every recording")
		listModels     = flag.Bool("models", false, "list known recognition models and exit")
		downloadID     = flag.String("download", "", "download a recognition model by id and exit")
		listVoices     = flag.Bool("voices", false, "list speech synthesis voices and exit")
	)
	flag.Parse()

	if *listModels {
		printModels()
		return
	}
	if *listVoices {
		for _, v := range tts.Voices() {
			fmt.Println(v)
		}
		return
	}
	if *downloadID != "" {
		if err := downloadModel(*downloadID); err != nil {
			log.Fatalf("-download: %v", err)
		}
		return
	}

	log.Printf("VoxKey %s starting...", Version)

	cfg := config.New()
	if *model != "" {
		cfg.SetModelID(*model)
	}
	if *recordKey != "" {
		hk, err := config.ParseHotkey(*recordKey)
		if err != nil {
			log.Fatalf("-hotkey: %v", err)
		}
		cfg.SetRecordHotkey(hk)
	}
	if *speakKey != "" {
		hk, err := config.ParseHotkey(*speakKey)
		if err != nil {
			log.Fatalf("-tts-hotkey: %v", err)
		}
		cfg.SetSpeakHotkey(hk)
	}
	if *addr != "" {
		cfg.SetAPIAddr(*addr)
	}
	if *voice != "" {
		cfg.SetSpeechVoice(*voice)
	}
	if *noNotify {
		cfg.SetNotifications(false)
	}
	if *saveRecordings {
		cfg.SetSaveRecordings(true)
	}

	// The hotkey backend needs the process main thread on macOS.
	hotkey.RunOnMainThread(func() {
		run(cfg, app.Options{NoTray: *noTray})
	})
}

func run(cfg *config.Config, opts app.Options) {
	application, err := app.New(cfg, opts)
	if err != nil {
		log.Printf("initialization failed: %v", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received %s, shutting down", sig)
		application.Close()
	}()

	log.Printf("ready: hold %s to record, press %s to speak the selection",
		cfg.RecordHotkey().String(), cfg.SpeakHotkey().String())
	application.Run()
}

func printModels() {
	manager, err := models.NewManager()
	if err != nil {
		log.Fatalf("models: %v", err)
	}
	for _, eng := range models.AllEngines() {
		fmt.Printf("%s:\n", models.EngineName(eng))
		for _, info := range models.GetModelsByEngine(eng) {
			mark := " "
			if manager.IsDownloaded(info) {
				mark = "*"
			}
			suffix := ""
			if info.ID == models.DefaultModelID() {
				suffix = " (default)"
			}
			fmt.Printf("  %s %-18s %-16s %5d MB%s\n",
				mark, info.ID, info.Name, info.Size/(1024*1024), suffix)
		}
	}
	fmt.Println()
	fmt.Println("* = downloaded")
}

func downloadModel(id string) error {
	info, ok := models.GetModel(id)
	if !ok {
		return fmt.Errorf("unknown model %q, run -models for the list", id)
	}
	manager, err := models.NewManager()
	if err != nil {
		return err
	}
	if manager.IsDownloaded(info) {
		fmt.Printf("%s is already downloaded\n", info.ID)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := make(chan models.Progress, 16)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for p := range progress {
			if p.Total > 0 {
				fmt.Printf("\r%s: %3d%%", info.ID, p.Downloaded*100/p.Total)
			}
		}
	}()

	err = manager.Download(ctx, info, progress)
	close(progress)
	<-drained
	fmt.Println()
	if err != nil {
		return err
	}
	fmt.Printf("saved to %s\n", manager.GetModelPath(info))
	return nil
}
