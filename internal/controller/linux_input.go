//go:build linux

package controller

// Linux input plumbing:
// - event codes hid-nintendo reports for Joy-Cons
// - ioctl helpers to upload/remove force-feedback effects
// - writing input_event structs to play/stop an effect

import (
	"encoding/binary"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Minimal Linux input constants
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_ABS = 0x03
	EV_FF  = 0x15

	FF_RUMBLE = 0x50
)

// Keys (hid-nintendo Joy-Con mapping)
const (
	BTN_SOUTH  = 0x130
	BTN_EAST   = 0x131
	BTN_NORTH  = 0x133
	BTN_WEST   = 0x134
	BTN_Z      = 0x135
	BTN_TL     = 0x136
	BTN_TR     = 0x137
	BTN_TL2    = 0x138
	BTN_TR2    = 0x139
	BTN_SELECT = 0x13a
	BTN_START  = 0x13b
	BTN_MODE   = 0x13c
	BTN_THUMBL = 0x13d
	BTN_THUMBR = 0x13e

	BTN_DPAD_UP    = 0x220
	BTN_DPAD_DOWN  = 0x221
	BTN_DPAD_LEFT  = 0x222
	BTN_DPAD_RIGHT = 0x223

	BTN_TRIGGER_HAPPY5 = 0x2c4 // SR (L)
	BTN_TRIGGER_HAPPY6 = 0x2c5 // SL (L)
	BTN_TRIGGER_HAPPY7 = 0x2c6 // SR (R)
	BTN_TRIGGER_HAPPY8 = 0x2c7 // SL (R)
)

// ABS axes
const (
	ABS_X  = 0x00
	ABS_Y  = 0x01
	ABS_Z  = 0x02
	ABS_RX = 0x03
	ABS_RY = 0x04

	stickMax = 32767
)

var keyButtons = map[uint16]Button{
	BTN_EAST:   ButtonA,
	BTN_SOUTH:  ButtonB,
	BTN_NORTH:  ButtonX,
	BTN_WEST:   ButtonY,
	BTN_TR:     ButtonR,
	BTN_TR2:    ButtonZR,
	BTN_START:  ButtonPlus,
	BTN_MODE:   ButtonHome,
	BTN_THUMBR: ButtonRightStick,

	BTN_TL:     ButtonL,
	BTN_TL2:    ButtonZL,
	BTN_SELECT: ButtonMinus,
	BTN_Z:      ButtonCapture,
	BTN_THUMBL: ButtonLeftStick,

	BTN_DPAD_UP:    ButtonUp,
	BTN_DPAD_DOWN:  ButtonDown,
	BTN_DPAD_LEFT:  ButtonLeft,
	BTN_DPAD_RIGHT: ButtonRight,

	BTN_TRIGGER_HAPPY5: ButtonLeftSR,
	BTN_TRIGGER_HAPPY6: ButtonLeftSL,
	BTN_TRIGGER_HAPPY7: ButtonRightSR,
	BTN_TRIGGER_HAPPY8: ButtonRightSL,
}

// ffEffect mirrors struct ff_effect on 64-bit kernels. The union starts at
// offset 16; for FF_RUMBLE it holds strong/weak magnitudes.
type ffEffect struct {
	Type      uint16
	ID        int16
	Direction uint16
	Trigger   [2]uint16
	Replay    [2]uint16
	_         uint16
	U         [32]byte
}

// ioctl request encoding (Linux _IOC macro)
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocWrite = 1
)

func ioc(dir uint32, typ uint32, nr uint32, size uint32) uintptr {
	return uintptr((dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift))
}

func evioCSFF() uintptr {
	// EVIOCSFF = _IOW('E', 0x80, struct ff_effect)
	return ioc(iocWrite, uint32('E'), uint32(0x80), uint32(unsafe.Sizeof(ffEffect{})))
}

func evioCRMFF() uintptr {
	// EVIOCRMFF = _IOW('E', 0x81, int)
	return ioc(iocWrite, uint32('E'), uint32(0x81), uint32(unsafe.Sizeof(int32(0))))
}

// uploadRumble uploads (or, with id >= 0, updates) a rumble effect and
// returns its kernel-assigned id.
func uploadRumble(f *os.File, id int16, strong, weak uint16) (int16, error) {
	eff := ffEffect{Type: FF_RUMBLE, ID: id}
	binary.NativeEndian.PutUint16(eff.U[0:2], strong)
	binary.NativeEndian.PutUint16(eff.U[2:4], weak)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), evioCSFF(), uintptr(unsafe.Pointer(&eff)))
	if errno != 0 {
		return -1, errno
	}
	return eff.ID, nil
}

func removeEffect(f *os.File, id int16) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), evioCRMFF(), uintptr(id))
	if errno != 0 {
		return errno
	}
	return nil
}

// inputEventSize depends on the kernel timeval size (16 or 24 bytes).
var inputEventSize = int(unsafe.Sizeof(unix.Timeval{})) + 8

// writeEvent writes one input_event with a zero timestamp.
func writeEvent(f *os.File, etype, code uint16, value int32) error {
	buf := make([]byte, inputEventSize)
	off := inputEventSize - 8
	binary.NativeEndian.PutUint16(buf[off:], etype)
	binary.NativeEndian.PutUint16(buf[off+2:], code)
	binary.NativeEndian.PutUint32(buf[off+4:], uint32(value))
	_, err := f.Write(buf)
	return err
}
