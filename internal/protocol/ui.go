package protocol

// Console UI state as observed from inbound setup messages.

import (
	"encoding/json"
	"fmt"
)

// Navigation is the V1 carousel cursor. Column positions are remembered per
// row and are not reset when the row changes.
type Navigation struct {
	Row           int
	ColumnByRow   map[int]int
	ColumnsPerRow map[int]int
	Coach         int
	NumCoaches    int
	Action        int

	InLobby bool
	OnRecap bool
}

// NumRows is the number of carousel rows seen in the last setup snapshot.
func (n *Navigation) NumRows() int { return len(n.ColumnsPerRow) }

func (n *Navigation) column() int { return n.ColumnByRow[n.Row] }

func (n *Navigation) setColumn(row, col int) {
	if n.ColumnByRow == nil {
		n.ColumnByRow = map[int]int{}
	}
	n.ColumnByRow[row] = col
}

func (n *Navigation) applyCarouselPos(raw json.RawMessage) (bool, error) {
	if !present(raw) {
		return false, nil
	}
	var pos CarouselPos
	if err := json.Unmarshal(raw, &pos); err != nil {
		return false, fmt.Errorf("carousel position: %w", err)
	}
	n.Row = pos.RowIndex
	n.setColumn(pos.RowIndex, pos.ItemIndex)
	n.Action = pos.ActionIndex
	return true, nil
}

// UIState is everything the input preprocessor needs to know about the
// current console screen.
type UIState struct {
	InputAllowed bool
	SearchOpen   bool
	Shortcuts    ShortcutSet

	// Nav is only maintained under V1.
	Nav Navigation
}

// ApplyToggle handles the *_ConsoleCommandData enable messages: an enabled
// flag allows input, a disabled one leaves it untouched.
func (u *UIState) ApplyToggle(t Toggle) {
	if t.IsEnabled == 1 {
		u.InputAllowed = true
	}
}

// ApplyInputSetup handles InputSetup_ConsoleCommandData. Under V1 it also
// re-reads the carousel position.
func (u *UIState) ApplyInputSetup(m InputSetupCommand, v Version) error {
	u.ApplyToggle(Toggle{IsEnabled: m.IsEnabled})
	if v != V1 {
		return nil
	}
	raw := m.CarouselPosSetup
	if raw == nil && m.InputSetup != nil {
		raw = m.InputSetup.CarouselPosSetup
	}
	_, err := u.Nav.applyCarouselPos(raw)
	return err
}

// ApplyShortcuts replaces the available shortcuts with those named by a
// JD_PhoneUiShortcutData message. Identifiers that do not name a known
// command are returned and otherwise ignored.
func (u *UIState) ApplyShortcuts(m PhoneUIShortcuts) (unknown []string) {
	set := ShortcutSet{}
	for _, item := range m.Shortcuts {
		if item.Class != classPhoneActionShortcut {
			continue
		}
		c, ok := commandFromJSON(item.ShortcutType)
		if !ok {
			unknown = append(unknown, string(item.ShortcutType))
			continue
		}
		set[c] = struct{}{}
	}
	u.Shortcuts = set
	return unknown
}

// ApplySetup handles a full JD_PhoneUiSetupData snapshot. Under V1 the whole
// navigation state is re-derived. Shortcut entries that could not be parsed
// are returned.
func (u *UIState) ApplySetup(m PhoneUISetup, v Version) (skipped []string, err error) {
	u.Shortcuts = ShortcutSet{}
	if present(m.SetupData.GameplaySetup.PauseSlider) {
		u.Shortcuts[Pause] = struct{}{}
	}

	if v == V1 {
		skipped, err = u.applyV1Setup(m)
	}

	if m.IsPopup == 1 {
		u.InputAllowed = true
	} else {
		u.InputAllowed = m.InputSetup != nil && m.InputSetup.IsEnabled == 1
	}
	return skipped, err
}

func (u *UIState) applyV1Setup(m PhoneUISetup) ([]string, error) {
	n := &u.Nav
	n.OnRecap = false
	n.InLobby = false
	u.SearchOpen = false

	if rows := m.SetupData.MainCarousel.Rows; len(rows) > 0 {
		cols := make(map[int]int, len(rows))
		for i, row := range rows {
			cols[i] = len(row.Items)
		}
		n.ColumnsPerRow = cols
	}

	var err error
	if m.InputSetup != nil {
		var moved bool
		moved, err = n.applyCarouselPos(m.InputSetup.CarouselPosSetup)
		if moved {
			n.Coach = 0
		}
	}

	if coaches := m.SetupData.LobbySetup.Coaches; len(coaches) > 0 {
		n.InLobby = true
		n.NumCoaches = len(coaches)
	}

	if present(m.SetupData.RecapSetup) {
		n.OnRecap = true
	}

	var skipped []string
	if len(m.SetupData.Shortcuts) > 0 {
		set := ShortcutSet{}
		for _, sc := range m.SetupData.Shortcuts {
			c, ok := shortcutFromCommand(sc.Command)
			if !ok {
				skipped = append(skipped, sc.Command)
				continue
			}
			set[c] = struct{}{}
		}
		u.Shortcuts = set
	}
	return skipped, err
}

// shortcutFromCommand reads the command named by an embedded serialized
// phone command: root.identifier first, then root.input.
func shortcutFromCommand(serialized string) (Command, bool) {
	var env struct {
		Root struct {
			Identifier json.RawMessage `json:"identifier"`
			Input      json.RawMessage `json:"input"`
		} `json:"root"`
	}
	if err := json.Unmarshal([]byte(serialized), &env); err != nil {
		return CommandNone, false
	}
	if c, ok := commandFromJSON(env.Root.Identifier); ok {
		return c, true
	}
	return commandFromJSON(env.Root.Input)
}
