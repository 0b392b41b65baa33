package protocol

import (
	"testing"

	"joydance-bridge/internal/controller"
)

func press(buttons ...controller.Button) []controller.ButtonEvent {
	out := make([]controller.ButtonEvent, 0, len(buttons))
	for _, b := range buttons {
		out = append(out, controller.ButtonEvent{Button: b, Pressed: true})
	}
	return out
}

func TestCommandForButtons(t *testing.T) {
	shortcuts := NewShortcutSet(Skip, Pause, TipsNext)

	cases := []struct {
		name      string
		events    []controller.ButtonEvent
		streaming bool
		want      Command
	}{
		{"a accepts", press(controller.ButtonA), false, Accept},
		{"dpad right accepts", press(controller.ButtonRight), false, Accept},
		{"b backs", press(controller.ButtonB), false, Back},
		{"x picks first offered shortcut", press(controller.ButtonX), false, Skip},
		{"left joycon mirrors x", press(controller.ButtonUp), false, Skip},
		{"plus pauses", press(controller.ButtonPlus), false, Pause},
		{"zr tips next", press(controller.ButtonZR), false, TipsNext},
		{"y has nothing offered", press(controller.ButtonY), false, CommandNone},
		{"later press wins", press(controller.ButtonA, controller.ButtonB), false, Back},
		{"release ignored", []controller.ButtonEvent{{Button: controller.ButtonA}}, false, CommandNone},
		{"streaming only pauses", press(controller.ButtonA), true, CommandNone},
		{"streaming minus pauses", press(controller.ButtonMinus), true, Pause},
	}
	for _, tc := range cases {
		if got := CommandForButtons(tc.events, tc.streaming, shortcuts); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestCommandForButtons_NilShortcuts(t *testing.T) {
	if got := CommandForButtons(press(controller.ButtonX), false, nil); got != CommandNone {
		t.Fatalf("expected no shortcut before any UI setup, got %s", got)
	}
}

func TestCommandForStick(t *testing.T) {
	cases := []struct {
		stick controller.Stick
		want  Command
	}{
		{controller.Stick{Vertical: -0.8}, Down},
		{controller.Stick{Vertical: 0.8, Horizontal: 0.9}, Up},
		{controller.Stick{Horizontal: -0.6}, Left},
		{controller.Stick{Horizontal: 0.6}, Right},
		{controller.Stick{Horizontal: 0.5, Vertical: -0.5}, CommandNone},
	}
	for _, tc := range cases {
		if got := CommandForStick(tc.stick); got != tc.want {
			t.Fatalf("%+v: expected %s, got %s", tc.stick, tc.want, got)
		}
	}
}

func TestCommandWireIdentity(t *testing.T) {
	if _, ok := Pause.Input(); ok {
		t.Fatalf("pause has no input code")
	}
	if id, ok := Pause.Identifier(); !ok || id != "PAUSE" {
		t.Fatalf("unexpected pause identifier %q", id)
	}
	if c, ok := CommandByInput(2467711647); !ok || c != Down {
		t.Fatalf("expected DOWN by input, got %s", c)
	}
	if c, ok := CommandByIdentifier("SHORTCUT_UPLAY"); !ok || c != Uplay {
		t.Fatalf("expected UPLAY by identifier, got %s", c)
	}
	if Command(999).String() != "Command(999)" {
		t.Fatalf("unexpected name for out-of-range command")
	}
}
