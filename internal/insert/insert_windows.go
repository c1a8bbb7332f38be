//go:build windows

package insert

import (
	"fmt"
	"syscall"
	"unicode/utf16"
	"unsafe"
)

var (
	user32        = syscall.NewLazyDLL("user32.dll")
	procSendInput = user32.NewProc("SendInput")
)

const (
	inputKeyboard    = 1
	keyEventFKeyUp   = 0x0002
	keyEventFUnicode = 0x0004
)

type keyboardInput struct {
	wVk         uint16
	wScan       uint16
	dwFlags     uint32
	time        uint32
	dwExtraInfo uintptr
}

type keyInput struct {
	inputType uint32
	ki        keyboardInput
	padding   uint64
}

type windowsTyper struct{}

func newTyper() (Typer, error) {
	return &windowsTyper{}, nil
}

func (t *windowsTyper) Type(text string) error {
	units := utf16.Encode([]rune(text))
	inputs := make([]keyInput, 0, len(units)*2)

	for _, u := range units {
		inputs = append(inputs, keyInput{
			inputType: inputKeyboard,
			ki: keyboardInput{
				wScan:   u,
				dwFlags: keyEventFUnicode,
			},
		})
		inputs = append(inputs, keyInput{
			inputType: inputKeyboard,
			ki: keyboardInput{
				wScan:   u,
				dwFlags: keyEventFUnicode | keyEventFKeyUp,
			},
		})
	}

	if len(inputs) == 0 {
		return nil
	}

	sent, _, _ := procSendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		uintptr(unsafe.Sizeof(inputs[0])),
	)
	if int(sent) != len(inputs) {
		return fmt.Errorf("injected %d of %d key events", sent, len(inputs))
	}
	return nil
}
