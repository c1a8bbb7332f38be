//go:build linux

package insert

import (
	"fmt"
	"os"
	"os/exec"
)

type linuxTyper struct {
	wayland bool
}

func newTyper() (Typer, error) {
	return &linuxTyper{
		wayland: os.Getenv("WAYLAND_DISPLAY") != "",
	}, nil
}

func (t *linuxTyper) Type(text string) error {
	if t.wayland {
		if err := exec.Command("wtype", text).Run(); err != nil {
			return fmt.Errorf("wtype: %w", err)
		}
		return nil
	}

	if err := exec.Command("xdotool", "type", "--clearmodifiers", "--", text).Run(); err != nil {
		return fmt.Errorf("xdotool: %w", err)
	}
	return nil
}
