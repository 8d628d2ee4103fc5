//go:build linux

package evdevio

import "golang.org/x/sys/unix"

// InputEvent matches struct input_event from linux/input.h.
type InputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// InputID matches struct input_id.
type InputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// UinputSetup matches struct uinput_setup (used by UI_DEV_SETUP).
type UinputSetup struct {
	ID        InputID
	Name      [uinputMaxNameSize]byte
	FFEffects uint32
}

const uinputMaxNameSize = 80

// EV_* event-type bit numbers, as taken by EVIOCGBIT/UI_SET_EVBIT.
const (
	EvSyn = 0x00
	EvKey = 0x01
	EvRel = 0x02
	EvAbs = 0x03
	EvMsc = 0x04
	EvLed = 0x11
)

const (
	KeyMax = 0x2ff
	RelMax = 0x0f
	AbsMax = 0x3f
)

// EVIOCGRAB grabs/releases exclusive access to a device.
var EVIOCGRAB = IOW('E', 0x90, int(0))

// SYN_DROPPED signals the kernel dropped events due to a full buffer;
// the reader switches into sync-drain mode until it sees SYN_REPORT.
const (
	SynReport   = 0
	SynDropped  = 3
	SynMtReport = 2
)

// uinput ioctl request codes.
var (
	UISetEvBit  = IOW('U', 100, int(0))
	UISetKeyBit = IOW('U', 101, int(0))
	UISetRelBit = IOW('U', 102, int(0))
	UISetAbsBit = IOW('U', 103, int(0))
	UISetMscBit  = IOW('U', 104, int(0))
	UISetLedBit  = IOW('U', 105, int(0))
	UIDevSetup   = IOW('U', 3, UinputSetup{})
	UIDevCreate  = IO('U', 1)
	UIDevDestroy = IO('U', 2)
)

const BusVirtual = 0x06
