package protocol

import "joydance-bridge/internal/controller"

// shortcutMapping lists, per button, the shortcuts it may trigger in order of
// preference. The first one the current screen offers wins.
var shortcutMapping = map[controller.Button][]Command{
	controller.ButtonX: {
		DeleteDancercard,
		DeletePlaylist,
		GotoSongsTab,
		PlaylistDeleteSong,
		Skip,
		Sorting,
		SwapGender,
		ToggleCoop,
		ShortcutExtra,
		V1Favorite,
	},
	controller.ButtonY: {
		ActivateDancercard,
		ChangeDancercard,
		SweatActivation,
		Uplay,
		ShortcutSearch,
	},
	controller.ButtonPlus: {
		DontShowAnymore,
		Favorite,
		Pause,
		PlaylistRename,
		SavePlaylist,
	},
	controller.ButtonR: {
		PlaylistMoveSongLeft,
		TipsPrevious,
	},
	controller.ButtonZR: {
		PlaylistMoveSongRight,
		TipsNext,
	},
}

func init() {
	// Joy-Con (L) mirrors the right one.
	shortcutMapping[controller.ButtonUp] = shortcutMapping[controller.ButtonX]
	shortcutMapping[controller.ButtonLeft] = shortcutMapping[controller.ButtonY]
	shortcutMapping[controller.ButtonMinus] = shortcutMapping[controller.ButtonPlus]
	shortcutMapping[controller.ButtonL] = shortcutMapping[controller.ButtonR]
	shortcutMapping[controller.ButtonZL] = shortcutMapping[controller.ButtonZR]
}

const stickThreshold = 0.5

// CommandForButtons picks the command for a frame's button events. Only
// presses count and a later press overrides an earlier one. While the
// accelerometer is streaming only pause is reachable.
func CommandForButtons(events []controller.ButtonEvent, streaming bool, shortcuts ShortcutSet) Command {
	cmd := CommandNone
	for _, ev := range events {
		if !ev.Pressed {
			continue
		}
		b := ev.Button
		if streaming {
			if b == controller.ButtonPlus || b == controller.ButtonMinus {
				cmd = Pause
			}
			continue
		}
		switch {
		case b == controller.ButtonA || b == controller.ButtonRight:
			cmd = Accept
		case b == controller.ButtonB || b == controller.ButtonDown:
			cmd = Back
		default:
			for _, sc := range shortcutMapping[b] {
				if shortcuts.Has(sc) {
					cmd = sc
					break
				}
			}
		}
	}
	return cmd
}

// CommandForStick maps a stick deflection to a direction; vertical wins over
// horizontal.
func CommandForStick(s controller.Stick) Command {
	switch {
	case s.Vertical < -stickThreshold:
		return Down
	case s.Vertical > stickThreshold:
		return Up
	case s.Horizontal < -stickThreshold:
		return Left
	case s.Horizontal > stickThreshold:
		return Right
	}
	return CommandNone
}
