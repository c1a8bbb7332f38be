// Package config provides application settings persisted to a JSON file
// next to the binary.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Modifier is a hotkey modifier key.
type Modifier string

const (
	ModCtrl  Modifier = "ctrl"
	ModShift Modifier = "shift"
	ModAlt   Modifier = "alt"
	ModSuper Modifier = "super" // Win/Cmd
)

// Key is a hotkey main key.
type Key string

const (
	KeySpace  Key = "space"
	KeyReturn Key = "return"
	KeyTab    Key = "tab"
	KeyA      Key = "a"
	KeyB      Key = "b"
	KeyC      Key = "c"
	KeyD      Key = "d"
	KeyE      Key = "e"
	KeyF      Key = "f"
	KeyG      Key = "g"
	KeyH      Key = "h"
	KeyI      Key = "i"
	KeyJ      Key = "j"
	KeyK      Key = "k"
	KeyL      Key = "l"
	KeyM      Key = "m"
	KeyN      Key = "n"
	KeyO      Key = "o"
	KeyP      Key = "p"
	KeyQ      Key = "q"
	KeyR      Key = "r"
	KeyS      Key = "s"
	KeyT      Key = "t"
	KeyU      Key = "u"
	KeyV      Key = "v"
	KeyW      Key = "w"
	KeyX      Key = "x"
	KeyY      Key = "y"
	KeyZ      Key = "z"
	KeyF1     Key = "f1"
	KeyF2     Key = "f2"
	KeyF3     Key = "f3"
	KeyF4     Key = "f4"
	KeyF5     Key = "f5"
	KeyF6     Key = "f6"
	KeyF7     Key = "f7"
	KeyF8     Key = "f8"
	KeyF9     Key = "f9"
	KeyF10    Key = "f10"
	KeyF11    Key = "f11"
	KeyF12    Key = "f12"
)

// HotkeyConfig holds one hotkey binding.
type HotkeyConfig struct {
	Modifiers []Modifier `json:"modifiers"`
	Key       Key        `json:"key"`
}

// String returns the binding in "ctrl+shift+space" form.
func (h HotkeyConfig) String() string {
	result := ""
	for _, m := range h.Modifiers {
		if result != "" {
			result += "+"
		}
		result += string(m)
	}
	if result != "" {
		result += "+"
	}
	result += string(h.Key)
	return result
}

// ParseHotkey parses a "ctrl+shift+space" style binding. The last
// token is the key, everything before it a modifier.
func ParseHotkey(s string) (HotkeyConfig, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	if len(parts) == 0 || parts[len(parts)-1] == "" {
		return HotkeyConfig{}, fmt.Errorf("empty hotkey %q", s)
	}

	var hk HotkeyConfig
	for _, p := range parts[:len(parts)-1] {
		mod := Modifier(strings.TrimSpace(p))
		if !validModifier(mod) {
			return HotkeyConfig{}, fmt.Errorf("unknown modifier %q in %q", p, s)
		}
		hk.Modifiers = append(hk.Modifiers, mod)
	}

	key := Key(strings.TrimSpace(parts[len(parts)-1]))
	if !validKey(key) {
		return HotkeyConfig{}, fmt.Errorf("unknown key %q in %q", parts[len(parts)-1], s)
	}
	hk.Key = key
	return hk, nil
}

func validModifier(m Modifier) bool {
	for _, v := range AvailableModifiers() {
		if v == m {
			return true
		}
	}
	return false
}

func validKey(k Key) bool {
	for _, v := range AvailableKeys() {
		if v == k {
			return true
		}
	}
	return false
}

// SpeechConfig holds the text-to-speech settings.
type SpeechConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url,omitempty"`
	Voice   string `json:"voice,omitempty"`
	Rate    string `json:"rate,omitempty"` // e.g. "+10%"
}

// configData is the serialized form.
type configData struct {
	ModelID          string       `json:"model_id,omitempty"`
	Language         string       `json:"language"`
	Notifications    bool         `json:"notifications"`
	RecordHotkey     HotkeyConfig `json:"record_hotkey"`
	SpeakHotkey      HotkeyConfig `json:"speak_hotkey"`
	MinRecordingMS   int          `json:"min_recording_ms,omitempty"`
	MaxRecordingSec  int          `json:"max_recording_sec,omitempty"`
	IdleUnloadSec    int          `json:"idle_unload_sec,omitempty"`
	UnloadCheckSec   int          `json:"unload_check_sec,omitempty"`
	GateWaitSec      int          `json:"gate_wait_sec,omitempty"`
	APIAddr          string       `json:"api_addr,omitempty"`
	WhisperServerURL string       `json:"whisper_server_url,omitempty"`
	Speech           SpeechConfig `json:"speech"`
	SaveRecordings   bool         `json:"save_recordings,omitempty"`
	RecordingsDir    string       `json:"recordings_dir,omitempty"`
	HistoryEnabled   bool         `json:"history"`
	HistoryPath      string       `json:"history_path,omitempty"`
}

// Config holds the application settings.
type Config struct {
	mu             sync.RWMutex
	modelID        string
	language       string
	notifications  bool
	recordHotkey   HotkeyConfig
	speakHotkey    HotkeyConfig
	minRecording   time.Duration
	maxRecording   time.Duration
	idleUnload     time.Duration
	unloadCheck    time.Duration
	gateWait       time.Duration
	apiAddr        string
	whisperURL     string
	speech         SpeechConfig
	saveRecordings bool
	recordingsDir  string
	historyEnabled bool
	historyPath    string
	configPath     string
	onHotkeyChange func()
}

// New creates a Config, loading config.json next to the binary when present
// and falling back to defaults otherwise.
func New() *Config {
	dir := ""
	execPath, err := os.Executable()
	if err == nil {
		execPath, err = filepath.EvalSymlinks(execPath)
		if err == nil {
			dir = filepath.Dir(execPath)
		}
	}
	return NewAt(dir)
}

// NewAt creates a Config rooted at dir, which holds the config file, the
// recordings directory and the history database. An empty dir disables
// persistence.
func NewAt(dir string) *Config {
	c := &Config{
		modelID:       "vosk-small-en",
		language:      "en",
		notifications: true,
		recordHotkey: HotkeyConfig{
			Modifiers: []Modifier{ModCtrl},
			Key:       KeyF1,
		},
		speakHotkey: HotkeyConfig{
			Modifiers: []Modifier{ModCtrl},
			Key:       KeyF2,
		},
		minRecording: 500 * time.Millisecond,
		maxRecording: 30 * time.Second,
		idleUnload:   5 * time.Minute,
		unloadCheck:  30 * time.Second,
		gateWait:     0, // 0 = wait for the model as long as it takes
		apiAddr:      ":8000",
		whisperURL:   "http://127.0.0.1:8080",
		speech: SpeechConfig{
			Enabled: true,
			URL:     "http://127.0.0.1:5050/v1/audio/speech",
			Voice:   "en-US-AriaNeural",
			Rate:    "+0%",
		},
		historyEnabled: true,
	}

	if dir != "" {
		c.configPath = filepath.Join(dir, "config.json")
		c.recordingsDir = filepath.Join(dir, "recordings")
		c.historyPath = filepath.Join(dir, "history.db")
	}

	c.load()

	return c
}

// load reads the config file. Missing or malformed files leave defaults.
// The file is decoded over a snapshot of the current values so partial
// files keep defaults for everything they do not mention.
func (c *Config) load() {
	if c.configPath == "" {
		return
	}

	data, err := os.ReadFile(c.configPath)
	if err != nil {
		return
	}

	cfg := c.data()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return
	}

	if cfg.ModelID != "" {
		c.modelID = cfg.ModelID
	}
	if cfg.Language != "" {
		c.language = cfg.Language
	}
	c.notifications = cfg.Notifications
	if cfg.RecordHotkey.Key != "" {
		c.recordHotkey = cfg.RecordHotkey
	}
	if cfg.SpeakHotkey.Key != "" {
		c.speakHotkey = cfg.SpeakHotkey
	}
	if cfg.MinRecordingMS >= 0 {
		c.minRecording = time.Duration(cfg.MinRecordingMS) * time.Millisecond
	}
	if cfg.MaxRecordingSec > 0 {
		c.maxRecording = time.Duration(cfg.MaxRecordingSec) * time.Second
	}
	if cfg.IdleUnloadSec > 0 {
		c.idleUnload = time.Duration(cfg.IdleUnloadSec) * time.Second
	}
	if cfg.UnloadCheckSec > 0 {
		c.unloadCheck = time.Duration(cfg.UnloadCheckSec) * time.Second
	}
	if cfg.GateWaitSec >= 0 {
		c.gateWait = time.Duration(cfg.GateWaitSec) * time.Second
	}
	if cfg.APIAddr != "" {
		c.apiAddr = cfg.APIAddr
	}
	if cfg.WhisperServerURL != "" {
		c.whisperURL = cfg.WhisperServerURL
	}
	c.speech = cfg.Speech
	c.saveRecordings = cfg.SaveRecordings
	if cfg.RecordingsDir != "" {
		c.recordingsDir = cfg.RecordingsDir
	}
	c.historyEnabled = cfg.HistoryEnabled
	if cfg.HistoryPath != "" {
		c.historyPath = cfg.HistoryPath
	}
}

// data snapshots the current values in serialized form.
func (c *Config) data() configData {
	return configData{
		ModelID:          c.modelID,
		Language:         c.language,
		Notifications:    c.notifications,
		RecordHotkey:     c.recordHotkey,
		SpeakHotkey:      c.speakHotkey,
		MinRecordingMS:   int(c.minRecording / time.Millisecond),
		MaxRecordingSec:  int(c.maxRecording / time.Second),
		IdleUnloadSec:    int(c.idleUnload / time.Second),
		UnloadCheckSec:   int(c.unloadCheck / time.Second),
		GateWaitSec:      int(c.gateWait / time.Second),
		APIAddr:          c.apiAddr,
		WhisperServerURL: c.whisperURL,
		Speech:           c.speech,
		SaveRecordings:   c.saveRecordings,
		RecordingsDir:    c.recordingsDir,
		HistoryEnabled:   c.historyEnabled,
		HistoryPath:      c.historyPath,
	}
}

// save writes the config file. Callers hold c.mu.
func (c *Config) save() {
	if c.configPath == "" {
		return
	}

	data, err := json.MarshalIndent(c.data(), "", "  ")
	if err != nil {
		return
	}

	os.WriteFile(c.configPath, data, 0644)
}

// ModelID returns the active recognition model ID.
func (c *Config) ModelID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modelID
}

// SetModelID sets the active recognition model ID.
func (c *Config) SetModelID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modelID = id
	c.save()
}

// Language returns the recognition language.
func (c *Config) Language() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.language
}

// SetLanguage sets the recognition language.
func (c *Config) SetLanguage(lang string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.language = lang
	c.save()
}

// NotificationsEnabled reports whether desktop notifications are on.
func (c *Config) NotificationsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.notifications
}

// SetNotifications turns desktop notifications on or off.
func (c *Config) SetNotifications(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = enabled
	c.save()
}

// ToggleNotifications flips the notifications setting and returns the new value.
func (c *Config) ToggleNotifications() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = !c.notifications
	c.save()
	return c.notifications
}

// RecordHotkey returns the push-to-talk binding.
func (c *Config) RecordHotkey() HotkeyConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recordHotkey
}

// SetRecordHotkey sets the push-to-talk binding.
func (c *Config) SetRecordHotkey(hk HotkeyConfig) {
	c.mu.Lock()
	c.recordHotkey = hk
	callback := c.onHotkeyChange
	c.save()
	c.mu.Unlock()

	if callback != nil {
		callback()
	}
}

// SpeakHotkey returns the read-selection-aloud binding.
func (c *Config) SpeakHotkey() HotkeyConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.speakHotkey
}

// SetSpeakHotkey sets the read-selection-aloud binding.
func (c *Config) SetSpeakHotkey(hk HotkeyConfig) {
	c.mu.Lock()
	c.speakHotkey = hk
	callback := c.onHotkeyChange
	c.save()
	c.mu.Unlock()

	if callback != nil {
		callback()
	}
}

// OnHotkeyChange registers a callback invoked after either binding changes.
func (c *Config) OnHotkeyChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onHotkeyChange = fn
}

// MinRecording returns the shortest recording worth transcribing.
func (c *Config) MinRecording() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.minRecording
}

// MaxRecording returns the recording duration cap.
func (c *Config) MaxRecording() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxRecording
}

// IdleUnload returns how long the model may sit unused before unloading.
func (c *Config) IdleUnload() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idleUnload
}

// UnloadCheck returns the interval between idle checks.
func (c *Config) UnloadCheck() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unloadCheck
}

// GateWait returns the longest a caller may queue for the model.
// Zero means no limit.
func (c *Config) GateWait() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gateWait
}

// APIAddr returns the HTTP listen address.
func (c *Config) APIAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiAddr
}

// SetAPIAddr sets the HTTP listen address.
func (c *Config) SetAPIAddr(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiAddr = addr
	c.save()
}

// WhisperServerURL returns the whisper server base URL.
func (c *Config) WhisperServerURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.whisperURL
}

// Speech returns the text-to-speech settings.
func (c *Config) Speech() SpeechConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.speech
}

// SetSpeechEnabled turns text-to-speech on or off.
func (c *Config) SetSpeechEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speech.Enabled = enabled
	c.save()
}

// SetSpeechVoice sets the synthesis voice.
func (c *Config) SetSpeechVoice(voice string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speech.Voice = voice
	c.save()
}

// SaveRecordings reports whether debug WAV copies are kept.
func (c *Config) SaveRecordings() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saveRecordings
}

// SetSaveRecordings turns debug WAV copies on or off.
func (c *Config) SetSaveRecordings(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saveRecordings = enabled
	c.save()
}

// RecordingsDir returns where debug WAV copies go.
func (c *Config) RecordingsDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recordingsDir
}

// HistoryEnabled reports whether the transcription log is kept.
func (c *Config) HistoryEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.historyEnabled
}

// HistoryPath returns the transcription log database path.
func (c *Config) HistoryPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.historyPath
}

// AvailableModifiers returns the modifiers a binding may use.
func AvailableModifiers() []Modifier {
	return []Modifier{ModCtrl, ModShift, ModAlt, ModSuper}
}

// AvailableKeys returns the keys a binding may use.
func AvailableKeys() []Key {
	return []Key{
		KeySpace, KeyReturn, KeyTab,
		KeyA, KeyB, KeyC, KeyD, KeyE, KeyF, KeyG, KeyH, KeyI, KeyJ, KeyK, KeyL, KeyM,
		KeyN, KeyO, KeyP, KeyQ, KeyR, KeyS, KeyT, KeyU, KeyV, KeyW, KeyX, KeyY, KeyZ,
		KeyF1, KeyF2, KeyF3, KeyF4, KeyF5, KeyF6, KeyF7, KeyF8, KeyF9, KeyF10, KeyF11, KeyF12,
	}
}
