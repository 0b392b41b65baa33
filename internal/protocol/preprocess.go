package protocol

// Command preprocessing: turns a logical Command into the message class and
// payload the console expects, or suppresses it.
//
// V2 is a stateless mapping. V1 drives the carousel cursor itself and must
// track rows, columns and coaches exactly as the console does; some moves
// update the cursor without emitting anything.

// Preprocessor maps a command to an outbound message given the current UI
// state. ok=false means the command must not be sent.
type Preprocessor interface {
	Preprocess(cmd Command, ui *UIState) (class string, payload Payload, ok bool)
}

// NewPreprocessor returns the strategy for a protocol version.
func NewPreprocessor(v Version) Preprocessor {
	if v == V1 {
		return v1Preprocessor{}
	}
	return v2Preprocessor{}
}

func customCommand(ident string) (string, Payload, bool) {
	return ClassCustomCommand, Payload{"identifier": ident}, true
}

func inputCommand(input uint32) (string, Payload, bool) {
	return ClassInputCommand, Payload{"input": input}, true
}

type v2Preprocessor struct{}

func (v2Preprocessor) Preprocess(cmd Command, _ *UIState) (string, Payload, bool) {
	if cmd == Pause {
		return ClassPauseCommand, Payload{}, true
	}
	if ident, ok := cmd.Identifier(); ok {
		return customCommand(ident)
	}
	if input, ok := cmd.Input(); ok {
		return inputCommand(input)
	}
	return "", nil, false
}

type v1Preprocessor struct{}

func (v1Preprocessor) Preprocess(cmd Command, ui *UIState) (string, Payload, bool) {
	nav := &ui.Nav

	switch cmd {
	case Pause:
		return ClassPauseCommand, Payload{}, true
	case Back:
		if ui.SearchOpen {
			return ClassCancelKeyboardCmd, Payload{}, true
		}
		ident, _ := cmd.Identifier()
		return customCommand(ident)
	}

	if ident, ok := cmd.Identifier(); ok {
		return customCommand(ident)
	}

	switch cmd {
	case V1Favorite:
		input, _ := cmd.Input()
		return inputCommand(input)
	case Accept:
		switch {
		case nav.InLobby:
			return ClassStartGameCommand, Payload{}, true
		case nav.OnRecap:
			input, _ := Accept.Input()
			return inputCommand(input)
		case ui.SearchOpen:
			input, _ := V1KeyboardErrorOK.Input()
			return inputCommand(input)
		}
		return ClassValidateActionCmd, Payload{
			"rowIndex":    nav.Row,
			"itemIndex":   nav.column(),
			"actionIndex": nav.Action,
		}, true
	}

	// Navigation below is only honoured once the console allows input.
	if !ui.InputAllowed {
		return "", nil, false
	}

	switch cmd {
	case Up:
		if nav.InLobby {
			return "", nil, false
		}
		if nav.Row <= 0 {
			// Parked one past the last row; the console is still on row 0,
			// so the next UP lands on the last row.
			nav.Row = nav.NumRows()
			return "", nil, false
		}
		nav.Row--
		return ClassChangeRowCommand, Payload{"rowIndex": nav.Row}, true

	case Down:
		if nav.InLobby {
			return "", nil, false
		}
		if nav.Row >= nav.NumRows()-1 {
			nav.Row = 0
			return "", nil, false
		}
		nav.Row++
		return ClassChangeRowCommand, Payload{"rowIndex": nav.Row}, true

	case Left, Right:
		if nav.InLobby {
			return changeCoach(nav, cmd == Right)
		}
		return changeItem(nav, cmd == Right)
	}
	return "", nil, false
}

func changeItem(nav *Navigation, forward bool) (string, Payload, bool) {
	count, known := nav.ColumnsPerRow[nav.Row]
	if !known {
		return "", nil, false
	}
	col := nav.column()
	if forward {
		col++
		if col >= count {
			col = 0
		}
	} else {
		col--
		if col < 0 {
			col = count - 1
		}
	}
	nav.setColumn(nav.Row, col)
	return ClassChangeItemCommand, Payload{"rowIndex": nav.Row, "itemIndex": col}, true
}

func changeCoach(nav *Navigation, forward bool) (string, Payload, bool) {
	if forward {
		if nav.Coach >= nav.NumCoaches-1 {
			nav.Coach = lastIndex(nav.NumCoaches)
			return "", nil, false
		}
		nav.Coach++
	} else {
		if nav.Coach <= 0 {
			nav.Coach = 0
			return "", nil, false
		}
		nav.Coach--
	}
	return ClassChangeCoachCommand, Payload{"coachId": nav.Coach}, true
}

func lastIndex(n int) int {
	if n <= 0 {
		return 0
	}
	return n - 1
}
