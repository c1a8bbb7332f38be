//go:build linux

package tts

import (
	"fmt"
	"os"
	"os/exec"
)

func readSelection() (string, error) {
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		out, err := exec.Command("wl-paste", "--primary", "--no-newline").Output()
		if err != nil {
			return "", fmt.Errorf("wl-paste: %w", err)
		}
		return string(out), nil
	}

	out, err := exec.Command("xclip", "-selection", "primary", "-o").Output()
	if err != nil {
		return "", fmt.Errorf("xclip: %w", err)
	}
	return string(out), nil
}
