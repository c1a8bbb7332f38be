//go:build linux

package hotkey

import (
	"golang.design/x/hotkey"

	"voxkey/internal/config"
)

var modifierMap = map[config.Modifier]hotkey.Modifier{
	config.ModCtrl:  hotkey.ModCtrl,
	config.ModShift: hotkey.ModShift,
	config.ModAlt:   hotkey.Mod1, // Alt is Mod1 on X11
	config.ModSuper: hotkey.Mod4, // Super/Win is Mod4 on X11
}
