package protocol

// Phone commands and their wire identities.
//
// Directional and accept commands travel as numeric "input" codes, pause and
// shortcuts travel as string identifiers.

import (
	"encoding/json"
	"strconv"
)

// Command is a logical phone action.
type Command int

const (
	CommandNone Command = iota

	Up
	Right
	Down
	Left
	Accept

	V1KeyboardErrorOK
	V1Favorite

	Pause

	Back
	ChangeDancercard
	DontShowAnymore
	Favorite
	GotoSongsTab
	Skip
	Sorting
	SwapGender
	SweatActivation
	ToggleCoop
	Uplay

	ActivateDancercard
	DeleteDancercard

	DeletePlaylist
	SavePlaylist
	PlaylistRename
	PlaylistDeleteSong
	PlaylistMoveSongLeft
	PlaylistMoveSongRight

	TipsNext
	TipsPrevious

	ShortcutSearch
	ShortcutExtra

	numCommands
)

type wireID struct {
	name  string
	input uint32
	ident string
}

var commandWire = [numCommands]wireID{
	CommandNone: {name: "NONE"},

	Up:     {name: "UP", input: 3690595578},
	Right:  {name: "RIGHT", input: 1099935642},
	Down:   {name: "DOWN", input: 2467711647},
	Left:   {name: "LEFT", input: 3652315484},
	Accept: {name: "ACCEPT", input: 1084313942},

	V1KeyboardErrorOK: {name: "V1_KEYBOARD_ERROR_OK", input: 185785632},
	V1Favorite:        {name: "V1_FAVORITE", input: 2424896653},

	Pause: {name: "PAUSE", ident: "PAUSE"},

	Back:             {name: "BACK", ident: "SHORTCUT_BACK"},
	ChangeDancercard: {name: "CHANGE_DANCERCARD", ident: "SHORTCUT_CHANGE_DANCERCARD"},
	DontShowAnymore:  {name: "DONT_SHOW_ANYMORE", ident: "SHORTCUT_DONT_SHOW_ANYMORE"},
	Favorite:         {name: "FAVORITE", ident: "SHORTCUT_FAVORITE"},
	GotoSongsTab:     {name: "GOTO_SONGSTAB", ident: "SHORTCUT_GOTO_SONGSTAB"},
	Skip:             {name: "SKIP", ident: "SHORTCUT_SKIP"},
	Sorting:          {name: "SORTING", ident: "SHORTCUT_SORTING"},
	SwapGender:       {name: "SWAP_GENDER", ident: "SHORTCUT_SWAP_GENDER"},
	SweatActivation:  {name: "SWEAT_ACTIVATION", ident: "SHORTCUT_SWEAT_ACTIVATION"},
	ToggleCoop:       {name: "TOGGLE_COOP", ident: "SHORTCUT_TOGGLE_COOP"},
	Uplay:            {name: "UPLAY", ident: "SHORTCUT_UPLAY"},

	ActivateDancercard: {name: "ACTIVATE_DANCERCARD", ident: "SHORTCUT_ACTIVATE_DANCERCARD"},
	DeleteDancercard:   {name: "DELETE_DANCERCARD", ident: "SHORTCUT_DELETE_DANCERCARD"},

	DeletePlaylist:        {name: "DELETE_PLAYLIST", ident: "SHORTCUT_DELETE_PLAYLIST"},
	SavePlaylist:          {name: "SAVE_PLAYLIST", ident: "SHORTCUT_SAVE_PLAYLIST"},
	PlaylistRename:        {name: "PLAYLIST_RENAME", ident: "SHORTCUT_PLAYLIST_RENAME"},
	PlaylistDeleteSong:    {name: "PLAYLIST_DELETE_SONG", ident: "SHORTCUT_PLAYLIST_DELETE_SONG"},
	PlaylistMoveSongLeft:  {name: "PLAYLIST_MOVE_SONG_LEFT", ident: "SHORTCUT_PLAYLIST_MOVE_SONG_LEFT"},
	PlaylistMoveSongRight: {name: "PLAYLIST_MOVE_SONG_RIGHT", ident: "SHORTCUT_PLAYLIST_MOVE_SONG_RIGHT"},

	TipsNext:     {name: "TIPS_NEXT", ident: "SHORTCUT_TIPS_NEXT"},
	TipsPrevious: {name: "TIPS_PREVIOUS", ident: "SHORTCUT_TIPS_PREVIOUS"},

	ShortcutSearch: {name: "SHORTCUT_SEARCH", ident: "SHORTCUT_SEARCH"},
	ShortcutExtra:  {name: "SHORTCUT_EXTRA", ident: "SHORTCUT_EXTRA"},
}

var (
	commandsByIdent = map[string]Command{}
	commandsByInput = map[uint32]Command{}
)

func init() {
	for c := Up; c < numCommands; c++ {
		w := commandWire[c]
		if w.ident != "" {
			commandsByIdent[w.ident] = c
		} else {
			commandsByInput[w.input] = c
		}
	}
}

func (c Command) String() string {
	if c < 0 || c >= numCommands {
		return "Command(" + strconv.Itoa(int(c)) + ")"
	}
	return commandWire[c].name
}

// Input returns the numeric wire code of a directional/accept command.
func (c Command) Input() (uint32, bool) {
	if c <= CommandNone || c >= numCommands || commandWire[c].ident != "" {
		return 0, false
	}
	return commandWire[c].input, true
}

// Identifier returns the string wire id of a pause/shortcut command.
func (c Command) Identifier() (string, bool) {
	if c <= CommandNone || c >= numCommands || commandWire[c].ident == "" {
		return "", false
	}
	return commandWire[c].ident, true
}

func CommandByIdentifier(ident string) (Command, bool) {
	c, ok := commandsByIdent[ident]
	return c, ok
}

func CommandByInput(input uint32) (Command, bool) {
	c, ok := commandsByInput[input]
	return c, ok
}

// commandFromJSON resolves a raw JSON value (string identifier or numeric
// input code) to a Command.
func commandFromJSON(raw json.RawMessage) (Command, bool) {
	if len(raw) == 0 {
		return CommandNone, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return CommandByIdentifier(s)
	}
	var n uint32
	if err := json.Unmarshal(raw, &n); err == nil {
		return CommandByInput(n)
	}
	return CommandNone, false
}

// ShortcutSet holds the commands the current game screen accepts. A nil set
// means no UI setup has arrived yet and nothing is available.
type ShortcutSet map[Command]struct{}

func NewShortcutSet(cmds ...Command) ShortcutSet {
	s := make(ShortcutSet, len(cmds))
	for _, c := range cmds {
		s[c] = struct{}{}
	}
	return s
}

func (s ShortcutSet) Has(c Command) bool {
	_, ok := s[c]
	return ok
}
