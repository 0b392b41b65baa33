package protocol

import (
	"encoding/json"

	"joydance-bridge/internal/controller"
)

// Outbound message classes.
const (
	ClassHandshakeHello = "JD_PhoneDataCmdHandshakeHello"
	ClassSync           = "JD_PhoneDataCmdSync"
	ClassScoringData    = "JD_PhoneScoringData"

	ClassPauseCommand       = "JD_Pause_PhoneCommandData"
	ClassCustomCommand      = "JD_Custom_PhoneCommandData"
	ClassInputCommand       = "JD_Input_PhoneCommandData"
	ClassCancelKeyboardCmd  = "JD_CancelKeyboard_PhoneCommandData"
	ClassSubmitKeyboardCmd  = "JD_SubmitKeyboard_PhoneCommandData"
	ClassStartGameCommand   = "JD_StartGame_PhoneCommandData"
	ClassValidateActionCmd  = "ValidateAction_PhoneCommandData"
	ClassChangeRowCommand   = "ChangeRow_PhoneCommandData"
	ClassChangeItemCommand  = "ChangeItem_PhoneCommandData"
	ClassChangeCoachCommand = "JD_ChangeCoach_PhoneCommandData"
)

// Inbound message classes.
const (
	ClassHandshakeContinue   = "JD_PhoneDataCmdHandshakeContinue"
	ClassSyncEnd             = "JD_PhoneDataCmdSyncEnd"
	ClassProfileUIData       = "JD_ProfilePhoneUiData"
	ClassPlaySound           = "JD_PlaySound_ConsoleCommandData"
	ClassEnableAccel         = "JD_EnableAccelValuesSending_ConsoleCommandData"
	ClassDisableAccel        = "JD_DisableAccelValuesSending_ConsoleCommandData"
	ClassInputSetup          = "InputSetup_ConsoleCommandData"
	ClassEnableCarousel      = "EnableCarousel_ConsoleCommandData"
	ClassEnableLobbyStart    = "JD_EnableLobbyStartbutton_ConsoleCommandData"
	ClassShortcutSetup       = "ShortcutSetup_ConsoleCommandData"
	ClassPhoneUIShortcut     = "JD_PhoneUiShortcutData"
	ClassOpenPhoneKeyboard   = "JD_OpenPhoneKeyboard_ConsoleCommandData"
	ClassCancelKeyboard      = "JD_CancelKeyboard_ConsoleCommandData"
	ClassClosePopup          = "JD_ClosePopup_ConsoleCommandData"
	ClassPhoneUISetup        = "JD_PhoneUiSetupData"
	classPhoneActionShortcut = "JD_PhoneAction_Shortcut"
)

// PhoneSync carries the phone id echoed back during the handshake.
type PhoneSync struct {
	PhoneID json.RawMessage `json:"phoneID"`
}

// Hello is the first message sent once the transport is up.
func Hello(freqHz, latencyMS, maxRange float64) Payload {
	return Payload{
		"accelAcquisitionFreqHz":  freqHz,
		"accelAcquisitionLatency": latencyMS,
		"accelMaxRange":           maxRange,
	}
}

// EchoPhoneID builds the reply payload for handshake continue/sync end.
func EchoPhoneID(id json.RawMessage) Payload {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return Payload{"phoneID": id}
}

// Toggle is the shape shared by the *_ConsoleCommandData enable messages.
type Toggle struct {
	IsEnabled Flag `json:"isEnabled"`
}

type PlaySound struct {
	SoundIndex int `json:"soundIndex"`
}

// ProfileData is the raw player profile pushed by the console.
type ProfileData struct {
	Name              *string   `json:"name"`
	PlayerID          *int      `json:"playerId"`
	Color             []float64 `json:"color"`
	Image             *string   `json:"image"`
	SkinImage         *string   `json:"skinImage"`
	AdditionalMessage *string   `json:"additionalMessage"`
}

// Profile is the player profile as surfaced to the host application.
type Profile struct {
	PlayerName        *string `json:"player_name"`
	PlayerID          *int    `json:"player_id"`
	PlayerColor       []int   `json:"player_color"`
	PlayerImage       *string `json:"player_image"`
	SkinImage         *string `json:"skin_image"`
	AdditionalMessage *string `json:"additional_message"`
}

// Profile converts the console profile: player ids become 1-based and color
// channels are scaled from 0..1 to 0..255.
func (p ProfileData) Profile() Profile {
	out := Profile{
		PlayerName:        p.Name,
		PlayerImage:       p.Image,
		SkinImage:         p.SkinImage,
		AdditionalMessage: p.AdditionalMessage,
	}
	if p.PlayerID != nil {
		id := *p.PlayerID + 1
		out.PlayerID = &id
	}
	if p.Color != nil {
		out.PlayerColor = make([]int, len(p.Color))
		for i, c := range p.Color {
			out.PlayerColor[i] = int(c * 255)
		}
	}
	return out
}

// CarouselPos is a V1 cursor position inside the menu carousel.
type CarouselPos struct {
	RowIndex    int `json:"rowIndex"`
	ItemIndex   int `json:"itemIndex"`
	ActionIndex int `json:"actionIndex"`
}

type InputSetup struct {
	IsEnabled        Flag            `json:"isEnabled"`
	CarouselPosSetup json.RawMessage `json:"carouselPosSetup"`
}

// InputSetupCommand is InputSetup_ConsoleCommandData; the carousel position
// may sit at the root or under inputSetup.
type InputSetupCommand struct {
	IsEnabled        Flag            `json:"isEnabled"`
	CarouselPosSetup json.RawMessage `json:"carouselPosSetup"`
	InputSetup       *InputSetup     `json:"inputSetup"`
}

type ShortcutItem struct {
	Class        string          `json:"__class"`
	ShortcutType json.RawMessage `json:"shortcutType"`
}

type PhoneUIShortcuts struct {
	Shortcuts []ShortcutItem `json:"shortcuts"`
}

type carouselRow struct {
	Items []json.RawMessage `json:"items"`
}

type setupShortcut struct {
	Command string `json:"command"`
}

// PhoneUISetup is the full UI snapshot sent on every screen change.
type PhoneUISetup struct {
	IsPopup    Flag        `json:"isPopup"`
	InputSetup *InputSetup `json:"inputSetup"`
	SetupData  struct {
		GameplaySetup struct {
			PauseSlider json.RawMessage `json:"pauseSlider"`
		} `json:"gameplaySetup"`
		MainCarousel struct {
			Rows []carouselRow `json:"rows"`
		} `json:"mainCarousel"`
		LobbySetup struct {
			Coaches []json.RawMessage `json:"coaches"`
		} `json:"lobbySetup"`
		RecapSetup json.RawMessage `json:"recapSetup"`
		Shortcuts  []setupShortcut `json:"shortcuts"`
	} `json:"setupData"`
}

// ScoringData builds the JD_PhoneScoringData payload for one batch.
func ScoringData(batch []controller.AccelSample, timeStamp int) Payload {
	return Payload{
		"accelData": batch,
		"timeStamp": timeStamp,
	}
}

func SubmitKeyboard(text string) Payload {
	return Payload{"keyboardOutput": text}
}
