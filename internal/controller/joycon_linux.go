//go:build linux

package controller

// Joy-Con over hid-nintendo: each controller shows up as two evdev nodes,
// one for buttons/stick and one "IMU" node for the accelerometer/gyro.
// Both are polled in the background and buffered until the session drains
// them.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/kenshaw/evdev"
)

// accelPerG is the hid-nintendo accelerometer resolution, used when the IMU
// node does not report one.
const accelPerG = 4096

// maxBufferedAccels bounds the sample buffer when nothing drains it.
const maxBufferedAccels = 4096

type Joycon struct {
	info DeviceInfo

	mu        sync.Mutex
	input     *evdev.Evdev
	imu       *evdev.Evdev
	ff        *os.File
	effectID  int16
	cancel    context.CancelFunc
	connected bool
	err       error

	events  []ButtonEvent
	rawX    int32
	rawY    int32
	accels  []AccelSample
	pending AccelSample

	rumbleEnabled bool
}

// OpenJoycon opens both evdev nodes of a Joy-Con and starts polling them.
func OpenJoycon(info DeviceInfo) (*Joycon, error) {
	j := &Joycon{info: info, effectID: -1, rumbleEnabled: true}
	if err := j.open(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Joycon) open() error {
	input, err := evdev.OpenFile(j.info.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", j.info.Path, err)
	}
	imu, err := evdev.OpenFile(j.info.IMUPath)
	if err != nil {
		input.Close()
		return fmt.Errorf("open %s: %w", j.info.IMUPath, err)
	}
	// Rumble is optional; a read-only node just means no vibration.
	ff, _ := os.OpenFile(j.info.Path, os.O_RDWR, 0)

	ctx, cancel := context.WithCancel(context.Background())
	inputCh, err := input.Poll(ctx, 64)
	if err == nil {
		var imuCh <-chan evdev.Event
		imuCh, err = imu.Poll(ctx, 256)
		if err == nil {
			go j.pollInput(ctx, inputCh)
			go j.pollIMU(ctx, imuCh, imu.AbsoluteTypes())
		}
	}
	if err != nil {
		cancel()
		input.Close()
		imu.Close()
		if ff != nil {
			ff.Close()
		}
		return fmt.Errorf("poll %s: %w", j.info.Serial, err)
	}

	j.mu.Lock()
	j.input, j.imu, j.ff = input, imu, ff
	j.cancel = cancel
	j.connected = true
	j.err = nil
	j.events = nil
	j.accels = nil
	j.effectID = -1
	j.mu.Unlock()
	return nil
}

func (j *Joycon) Serial() string { return j.info.Serial }
func (j *Joycon) IsLeft() bool   { return j.info.IsLeft }

func (j *Joycon) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err == nil {
		j.err = err
	}
	j.connected = false
}

func (j *Joycon) pollInput(ctx context.Context, ch <-chan evdev.Event) {
	xAxis, yAxis := evdev.AbsoluteX, evdev.AbsoluteY
	if !j.info.IsLeft {
		xAxis, yAxis = evdev.AbsoluteRX, evdev.AbsoluteRY
	}
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				j.fail(ErrDisconnected)
				return
			}
			switch event.Type {
			case evdev.EventKey:
				b, known := keyButtons[uint16(event.Code)]
				if !known {
					continue
				}
				j.mu.Lock()
				j.events = append(j.events, ButtonEvent{Button: b, Pressed: event.Value != 0})
				j.mu.Unlock()
			case evdev.EventAbsolute:
				j.mu.Lock()
				switch evdev.AbsoluteType(event.Code) {
				case xAxis:
					j.rawX = int32(event.Value)
				case yAxis:
					j.rawY = int32(event.Value)
				}
				j.mu.Unlock()
			}
		}
	}
}

func (j *Joycon) pollIMU(ctx context.Context, ch <-chan evdev.Event, axes map[evdev.AbsoluteType]evdev.Axis) {
	res := func(a evdev.AbsoluteType) float64 {
		if ax, ok := axes[a]; ok && ax.Res > 0 {
			return float64(ax.Res)
		}
		return accelPerG
	}
	resX, resY, resZ := res(evdev.AbsoluteX), res(evdev.AbsoluteY), res(evdev.AbsoluteZ)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				j.fail(ErrDisconnected)
				return
			}
			j.mu.Lock()
			switch event.Type {
			case evdev.EventAbsolute:
				switch evdev.AbsoluteType(event.Code) {
				case evdev.AbsoluteX:
					j.pending[0] = float64(event.Value) / resX
				case evdev.AbsoluteY:
					j.pending[1] = float64(event.Value) / resY
				case evdev.AbsoluteZ:
					j.pending[2] = float64(event.Value) / resZ
				}
			case evdev.EventSync:
				if len(j.accels) >= maxBufferedAccels {
					j.accels = j.accels[1:]
				}
				j.accels = append(j.accels, j.pending)
			}
			j.mu.Unlock()
		}
	}
}

func (j *Joycon) Events() ([]ButtonEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return nil, j.err
	}
	ev := j.events
	j.events = nil
	return ev, nil
}

func (j *Joycon) Stick() Stick {
	j.mu.Lock()
	defer j.mu.Unlock()
	// evdev Y grows downwards.
	return Stick{
		Horizontal: float64(j.rawX) / stickMax,
		Vertical:   -float64(j.rawY) / stickMax,
	}
}

func (j *Joycon) Accels() ([]AccelSample, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return nil, j.err
	}
	out := j.accels
	j.accels = nil
	return out, nil
}

func (j *Joycon) Rumble(frequency, amplitude float64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.ff == nil || !j.rumbleEnabled {
		return nil
	}
	strong, weak := rumbleMagnitudes(frequency, amplitude)
	id, err := uploadRumble(j.ff, j.effectID, strong, weak)
	if err != nil {
		return fmt.Errorf("upload rumble: %w", err)
	}
	j.effectID = id
	return writeEvent(j.ff, EV_FF, uint16(id), 1)
}

func (j *Joycon) StopRumble() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.ff == nil || j.effectID < 0 {
		return nil
	}
	return writeEvent(j.ff, EV_FF, uint16(j.effectID), 0)
}

func (j *Joycon) RumbleEnabled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rumbleEnabled
}

func (j *Joycon) SetRumbleEnabled(enabled bool) {
	j.mu.Lock()
	j.rumbleEnabled = enabled
	j.mu.Unlock()
}

func (j *Joycon) IsConnected() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.connected
}

// Reconnect looks the device up again by serial (event node numbers change
// after a re-pair) and reopens it.
func (j *Joycon) Reconnect(ctx context.Context) error {
	if j.IsConnected() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_ = j.Close()

	devices, err := discoverProc()
	if err != nil {
		return err
	}
	for _, d := range devices {
		if d.Serial == j.info.Serial {
			j.info = d
			return j.open()
		}
	}
	return fmt.Errorf("reconnect %s: %w", j.info.Serial, ErrNotFound)
}

func (j *Joycon) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.connected = false
	if j.cancel != nil {
		j.cancel()
		j.cancel = nil
	}
	var errs []error
	if j.ff != nil {
		if j.effectID >= 0 {
			_ = writeEvent(j.ff, EV_FF, uint16(j.effectID), 0)
			_ = removeEffect(j.ff, j.effectID)
			j.effectID = -1
		}
		errs = append(errs, j.ff.Close())
		j.ff = nil
	}
	if j.input != nil {
		errs = append(errs, j.input.Close())
		j.input = nil
	}
	if j.imu != nil {
		errs = append(errs, j.imu.Close())
		j.imu = nil
	}
	return errors.Join(errs...)
}
