// Package hotkey registers the global keys that drive recording and
// speech playback.
package hotkey

import (
	"fmt"
	"log"
	"sync"
	"time"

	"golang.design/x/hotkey"
	"golang.design/x/hotkey/mainthread"

	"voxkey/internal/config"
)

const (
	// pressDebounce swallows keydown repeats while a key is held.
	pressDebounce = 300 * time.Millisecond
	// speakDebounce keeps a nervous finger from flapping playback.
	speakDebounce = 500 * time.Millisecond
)

// Binding is one registered global hotkey with press and release
// callbacks.
type Binding struct {
	onPress   func()
	onRelease func()
	debounce  time.Duration

	mu      sync.Mutex
	hk      *hotkey.Hotkey
	current config.HotkeyConfig
	stopCh  chan struct{}
}

// NewBinding creates an unregistered binding. onRelease may be nil for
// keys that only act on press.
func NewBinding(onPress, onRelease func(), debounce time.Duration) *Binding {
	return &Binding{
		onPress:   onPress,
		onRelease: onRelease,
		debounce:  debounce,
	}
}

// Register binds the key, replacing any previous registration.
func (b *Binding) Register(cfg config.HotkeyConfig) error {
	log.Printf("hotkey: registering %s", cfg.String())

	b.mu.Lock()
	if b.stopCh != nil {
		close(b.stopCh)
		b.stopCh = nil
	}
	oldHk := b.hk
	b.hk = nil
	b.mu.Unlock()

	// Give the listener a moment to drain before unregistering.
	time.Sleep(50 * time.Millisecond)

	if oldHk != nil {
		done := make(chan struct{})
		go func() {
			oldHk.Unregister()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(500 * time.Millisecond):
			log.Printf("hotkey: unregister of %s timed out", b.current.String())
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	mods := make([]hotkey.Modifier, 0, len(cfg.Modifiers))
	for _, m := range cfg.Modifiers {
		mod, ok := modifierMap[m]
		if !ok {
			// Can only happen with a hand-edited config file.
			log.Printf("hotkey: skipping unknown modifier %q", m)
			continue
		}
		mods = append(mods, mod)
	}
	key, ok := keyMap[cfg.Key]
	if !ok {
		return fmt.Errorf("unknown key %q", cfg.Key)
	}

	b.hk = hotkey.New(mods, key)
	b.current = cfg
	b.stopCh = make(chan struct{})

	if err := b.hk.Register(); err != nil {
		b.hk = nil
		b.stopCh = nil
		return fmt.Errorf("register %s: %w", cfg.String(), err)
	}

	go b.listen(b.hk, b.stopCh)
	return nil
}

func (b *Binding) listen(hk *hotkey.Hotkey, stopCh chan struct{}) {
	var lastPress time.Time

	for {
		select {
		case <-stopCh:
			return
		case _, ok := <-hk.Keydown():
			if !ok {
				return
			}
			now := time.Now()
			if b.debounce > 0 && now.Sub(lastPress) < b.debounce {
				continue
			}
			lastPress = now
			if b.onPress != nil {
				b.onPress()
			}
		case _, ok := <-hk.Keyup():
			if !ok {
				return
			}
			if b.onRelease != nil {
				b.onRelease()
			}
		}
	}
}

// Unregister removes the binding.
func (b *Binding) Unregister() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopCh != nil {
		close(b.stopCh)
		b.stopCh = nil
	}
	if b.hk != nil {
		err := b.hk.Unregister()
		b.hk = nil
		return err
	}
	return nil
}

// Manager owns the two application hotkeys: hold-to-record and the
// speak toggle.
type Manager struct {
	record *Binding
	speak  *Binding
}

// NewManager creates the bindings. onRecordPress/onRecordRelease drive
// push-to-talk; onSpeak toggles reading the selection aloud.
func NewManager(onRecordPress, onRecordRelease, onSpeak func()) *Manager {
	return &Manager{
		record: NewBinding(onRecordPress, onRecordRelease, pressDebounce),
		speak:  NewBinding(onSpeak, nil, speakDebounce),
	}
}

// Register binds both keys, replacing previous registrations.
func (m *Manager) Register(record, speak config.HotkeyConfig) error {
	if err := m.record.Register(record); err != nil {
		return fmt.Errorf("record key: %w", err)
	}
	if err := m.speak.Register(speak); err != nil {
		return fmt.Errorf("speak key: %w", err)
	}
	return nil
}

// Close unregisters both keys.
func (m *Manager) Close() {
	if err := m.record.Unregister(); err != nil {
		log.Printf("hotkey: unregister record key: %v", err)
	}
	if err := m.speak.Unregister(); err != nil {
		log.Printf("hotkey: unregister speak key: %v", err)
	}
}

// RunOnMainThread hands the process main thread to fn. The hotkey
// backend on macOS requires event handling to happen there.
func RunOnMainThread(fn func()) {
	mainthread.Init(fn)
}

// keyMap translates configured keys to the hotkey backend.
var keyMap = map[config.Key]hotkey.Key{
	config.KeySpace:  hotkey.KeySpace,
	config.KeyReturn: hotkey.KeyReturn,
	config.KeyTab:    hotkey.KeyTab,
	config.KeyA:      hotkey.KeyA,
	config.KeyB:      hotkey.KeyB,
	config.KeyC:      hotkey.KeyC,
	config.KeyD:      hotkey.KeyD,
	config.KeyE:      hotkey.KeyE,
	config.KeyF:      hotkey.KeyF,
	config.KeyG:      hotkey.KeyG,
	config.KeyH:      hotkey.KeyH,
	config.KeyI:      hotkey.KeyI,
	config.KeyJ:      hotkey.KeyJ,
	config.KeyK:      hotkey.KeyK,
	config.KeyL:      hotkey.KeyL,
	config.KeyM:      hotkey.KeyM,
	config.KeyN:      hotkey.KeyN,
	config.KeyO:      hotkey.KeyO,
	config.KeyP:      hotkey.KeyP,
	config.KeyQ:      hotkey.KeyQ,
	config.KeyR:      hotkey.KeyR,
	config.KeyS:      hotkey.KeyS,
	config.KeyT:      hotkey.KeyT,
	config.KeyU:      hotkey.KeyU,
	config.KeyV:      hotkey.KeyV,
	config.KeyW:      hotkey.KeyW,
	config.KeyX:      hotkey.KeyX,
	config.KeyY:      hotkey.KeyY,
	config.KeyZ:      hotkey.KeyZ,
	config.KeyF1:     hotkey.KeyF1,
	config.KeyF2:     hotkey.KeyF2,
	config.KeyF3:     hotkey.KeyF3,
	config.KeyF4:     hotkey.KeyF4,
	config.KeyF5:     hotkey.KeyF5,
	config.KeyF6:     hotkey.KeyF6,
	config.KeyF7:     hotkey.KeyF7,
	config.KeyF8:     hotkey.KeyF8,
	config.KeyF9:     hotkey.KeyF9,
	config.KeyF10:    hotkey.KeyF10,
	config.KeyF11:    hotkey.KeyF11,
	config.KeyF12:    hotkey.KeyF12,
}
