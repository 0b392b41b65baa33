// Package controller is the boundary to the physical motion controller.
//
// The session engine only talks to the Controller interface; the Linux
// implementation reads Joy-Con input through evdev and plays rumble through
// the force-feedback interface.
package controller

import (
	"context"
	"errors"
)

// Button names a physical controller button.
type Button string

// Joy-Con (L)
const (
	ButtonUp        Button = "up"
	ButtonRight     Button = "right"
	ButtonDown      Button = "down"
	ButtonLeft      Button = "left"
	ButtonL         Button = "l"
	ButtonZL        Button = "zl"
	ButtonMinus     Button = "minus"
	ButtonCapture   Button = "capture"
	ButtonLeftStick Button = "stick_l_btn"
	ButtonLeftSR    Button = "left_sr"
	ButtonLeftSL    Button = "left_sl"
)

// Joy-Con (R)
const (
	ButtonA          Button = "a"
	ButtonB          Button = "b"
	ButtonX          Button = "x"
	ButtonY          Button = "y"
	ButtonR          Button = "r"
	ButtonZR         Button = "zr"
	ButtonPlus       Button = "plus"
	ButtonHome       Button = "home"
	ButtonRightStick Button = "stick_r_btn"
	ButtonRightSL    Button = "right_sl"
	ButtonRightSR    Button = "right_sr"
)

// ButtonEvent is a single press or release.
type ButtonEvent struct {
	Button  Button
	Pressed bool
}

// Stick is a normalized analog stick position, each axis in [-1, 1] with
// up and right positive.
type Stick struct {
	Horizontal float64
	Vertical   float64
}

// AccelSample is one (x, y, z) accelerometer reading in G.
type AccelSample [3]float64

// ErrDisconnected is returned by reads once the device has gone away.
var ErrDisconnected = errors.New("controller: device disconnected")

// Controller is a connected motion controller.
type Controller interface {
	Serial() string
	IsLeft() bool

	// Events drains button events received since the last call.
	Events() ([]ButtonEvent, error)
	// Stick returns the current position of the controller's own stick.
	Stick() Stick
	// Accels drains accelerometer samples in arrival order.
	Accels() ([]AccelSample, error)

	// Rumble starts vibrating until StopRumble. Amplitude is in [0, 1].
	Rumble(frequency, amplitude float64) error
	StopRumble() error
	RumbleEnabled() bool
	SetRumbleEnabled(enabled bool)

	// Reconnect reopens the same physical device after Close.
	Reconnect(ctx context.Context) error
	IsConnected() bool
	Close() error
}

// DeviceInfo describes a discovered controller.
type DeviceInfo struct {
	Path      string
	IMUPath   string
	VendorID  uint16
	ProductID uint16
	Serial    string
	Name      string
	IsLeft    bool
}

// Devices discovers and opens controllers.
type Devices interface {
	Discover() ([]DeviceInfo, error)
	Open(info DeviceInfo) (Controller, error)
}
