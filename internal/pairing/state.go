// Package pairing turns a pairing code (or a console IP) into a WebSocket
// endpoint the session can dial: guest auth, pairing-info exchange and, when
// the console asks for it, punch pairing plus hole punching.
package pairing

import (
	"fmt"
	"strconv"
)

// State is the pairing state surfaced to the host application. Values are
// part of the UI contract.
type State int

const (
	StateIdle          State = 0
	StateGettingToken  State = 1
	StatePairing       State = 2
	StateConnecting    State = 3
	StateConnected     State = 4
	StateDisconnecting State = 5
	StateDisconnected  State = 10

	StateErrorJoycon             State = 101
	StateErrorConnection         State = 102
	StateErrorInvalidPairingCode State = 103
	StateErrorPunchPairing       State = 104
	StateErrorHolePunching       State = 105
	StateErrorConsoleConnection  State = 106
)

var stateNames = map[State]string{
	StateIdle:                    "IDLE",
	StateGettingToken:            "GETTING_TOKEN",
	StatePairing:                 "PAIRING",
	StateConnecting:              "CONNECTING",
	StateConnected:               "CONNECTED",
	StateDisconnecting:           "DISCONNECTING",
	StateDisconnected:            "DISCONNECTED",
	StateErrorJoycon:             "ERROR_JOYCON",
	StateErrorConnection:         "ERROR_CONNECTION",
	StateErrorInvalidPairingCode: "ERROR_INVALID_PAIRING_CODE",
	StateErrorPunchPairing:       "ERROR_PUNCH_PAIRING",
	StateErrorHolePunching:       "ERROR_HOLE_PUNCHING",
	StateErrorConsoleConnection:  "ERROR_CONSOLE_CONNECTION",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// IsError reports whether s is one of the terminal error variants.
func (s State) IsError() bool { return s >= StateErrorJoycon }

// StepError is a failed pairing step. State is the error variant the host
// should be shown.
type StepError struct {
	State State
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func stepErr(s State, format string, args ...any) error {
	return &StepError{State: s, Err: fmt.Errorf(format, args...)}
}
