//go:build darwin

package tts

import (
	"fmt"
	"os/exec"
)

// macOS has no primary selection; the clipboard is the closest thing.
func readSelection() (string, error) {
	out, err := exec.Command("pbpaste").Output()
	if err != nil {
		return "", fmt.Errorf("pbpaste: %w", err)
	}
	return string(out), nil
}
