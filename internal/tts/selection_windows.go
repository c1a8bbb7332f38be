//go:build windows

package tts

import (
	"fmt"
	"os/exec"
	"strings"
)

// Windows has no primary selection; the clipboard is the closest thing.
func readSelection() (string, error) {
	out, err := exec.Command("powershell", "-NoProfile", "-Command", "Get-Clipboard").Output()
	if err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	return strings.TrimRight(string(out), "\r\n"), nil
}
