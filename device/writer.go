//go:build linux

package device

import (
	"fmt"
	"log"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/miken90/gonode/evdevio"
	"github.com/miken90/gonode/graph"
	"github.com/miken90/gonode/keys"
	"github.com/miken90/gonode/xerrors"
)

// Capabilities describes which event-type bitmaps a virtual device
// advertises when it is not cloned from an existing device.
type Capabilities struct {
	Keyboard bool
	Buttons  bool
	Relative bool
	Absolute bool
}

// Writer is the virtual-device emitter: a uinput-backed node that
// consumes its inbound channel and re-plays each event onto a synthetic
// device, pacing writes so downstream consumers never see a burst
// arrive faster than a real device would produce it.
type Writer struct {
	*graph.Node

	file *os.File
	name string

	quit chan struct{}
	done chan struct{}
}

const settleDelay = 50 * time.Millisecond
const framePacing = 5 * time.Millisecond

// NewWriter creates a uinput device named name. If cloneFrom is
// non-empty, its capability bitmaps are copied verbatim (the clone_from
// form from §4.4); otherwise caps selects which event-type ranges to
// enable.
func NewWriter(name string, caps Capabilities, cloneFrom string, fatal func(error)) (*Writer, error) {
	f, err := os.OpenFile("/dev/uinput", os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, xerrors.Device("device.NewWriter", fmt.Errorf("open /dev/uinput: %w", err))
	}

	if cloneFrom != "" {
		if err := cloneCapabilities(f, cloneFrom); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		if err := enableCapabilities(f, caps); err != nil {
			f.Close()
			return nil, err
		}
	}

	setup := evdevio.UinputSetup{
		ID: evdevio.InputID{Bustype: evdevio.BusVirtual, Vendor: 0x1, Product: 0x1, Version: 1},
	}
	copy(setup.Name[:], name)

	if err := evdevio.Ioctl(f.Fd(), evdevio.UIDevSetup, unsafe.Pointer(&setup)); err != nil {
		f.Close()
		return nil, xerrors.Device("device.NewWriter", fmt.Errorf("UI_DEV_SETUP: %w", err))
	}

	if err := evdevio.IoctlInt(f.Fd(), evdevio.UIDevCreate, 0); err != nil {
		f.Close()
		return nil, xerrors.Device("device.NewWriter", fmt.Errorf("UI_DEV_CREATE: %w", err))
	}

	// The kernel needs a moment to register the new device node before
	// other processes (an X/Wayland compositor rescanning /dev/input)
	// pick it up.
	time.Sleep(settleDelay)

	w := &Writer{
		Node: graph.NewNode(fatal),
		file: f,
		name: name,
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}

	go w.run()

	return w, nil
}

func enableCapabilities(f *os.File, caps Capabilities) error {
	if err := evdevio.IoctlInt(f.Fd(), evdevio.UISetEvBit, uintptr(evdevio.EvSyn)); err != nil {
		return xerrors.Device("device.NewWriter", fmt.Errorf("UI_SET_EVBIT EV_SYN: %w", err))
	}

	if caps.Keyboard {
		if err := evdevio.IoctlInt(f.Fd(), evdevio.UISetEvBit, uintptr(evdevio.EvKey)); err != nil {
			return xerrors.Device("device.NewWriter", fmt.Errorf("UI_SET_EVBIT EV_KEY: %w", err))
		}

		for code := 0; code <= evdevio.KeyMax; code++ {
			if err := evdevio.IoctlInt(f.Fd(), evdevio.UISetKeyBit, uintptr(code)); err != nil {
				return xerrors.Device("device.NewWriter", fmt.Errorf("UI_SET_KEYBIT %d: %w", code, err))
			}
		}

		if err := evdevio.IoctlInt(f.Fd(), evdevio.UISetEvBit, uintptr(evdevio.EvMsc)); err != nil {
			return xerrors.Device("device.NewWriter", fmt.Errorf("UI_SET_EVBIT EV_MSC: %w", err))
		}

		if err := evdevio.IoctlInt(f.Fd(), evdevio.UISetMscBit, 0x04 /* MSC_SCAN */); err != nil {
			return xerrors.Device("device.NewWriter", fmt.Errorf("UI_SET_MSCBIT MSC_SCAN: %w", err))
		}
	}

	if caps.Buttons {
		if err := evdevio.IoctlInt(f.Fd(), evdevio.UISetEvBit, uintptr(evdevio.EvKey)); err != nil {
			return xerrors.Device("device.NewWriter", fmt.Errorf("UI_SET_EVBIT EV_KEY: %w", err))
		}

		for code := 0x110; code <= 0x117; code++ { // BTN_LEFT..BTN_TASK
			if err := evdevio.IoctlInt(f.Fd(), evdevio.UISetKeyBit, uintptr(code)); err != nil {
				return xerrors.Device("device.NewWriter", fmt.Errorf("UI_SET_KEYBIT %d: %w", code, err))
			}
		}
	}

	if caps.Relative {
		if err := evdevio.IoctlInt(f.Fd(), evdevio.UISetEvBit, uintptr(evdevio.EvRel)); err != nil {
			return xerrors.Device("device.NewWriter", fmt.Errorf("UI_SET_EVBIT EV_REL: %w", err))
		}

		for code := 0; code <= evdevio.RelMax; code++ {
			if err := evdevio.IoctlInt(f.Fd(), evdevio.UISetRelBit, uintptr(code)); err != nil {
				return xerrors.Device("device.NewWriter", fmt.Errorf("UI_SET_RELBIT %d: %w", code, err))
			}
		}
	}

	if caps.Absolute {
		if err := evdevio.IoctlInt(f.Fd(), evdevio.UISetEvBit, uintptr(evdevio.EvAbs)); err != nil {
			return xerrors.Device("device.NewWriter", fmt.Errorf("UI_SET_EVBIT EV_ABS: %w", err))
		}

		for code := 0; code <= evdevio.AbsMax; code++ {
			if err := evdevio.IoctlInt(f.Fd(), evdevio.UISetAbsBit, uintptr(code)); err != nil {
				return xerrors.Device("device.NewWriter", fmt.Errorf("UI_SET_ABSBIT %d: %w", code, err))
			}
		}
	}

	return nil
}

// cloneCapabilities opens an existing device, reads its EV_* bitmap via
// EVIOCGBIT, and replays matching UI_SET_* calls on the new uinput fd so
// the virtual device advertises the same event types and codes.
func cloneCapabilities(f *os.File, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return xerrors.Device("device.cloneCapabilities", fmt.Errorf("open %s: %w", path, err))
	}
	defer src.Close()

	evBits := make([]byte, (evdevio.EvLed+1+7)/8)

	eviocgbitEv := evdevio.IORSized(uint('E'), 0x20, uint(len(evBits)))
	if err := evdevio.Ioctl(src.Fd(), eviocgbitEv, unsafe.Pointer(&evBits[0])); err != nil {
		return xerrors.Device("device.cloneCapabilities", fmt.Errorf("EVIOCGBIT(0): %w", err))
	}

	types := []struct {
		evType  int
		setBit  uint
		getNR   int
		maxCode int
	}{
		{evdevio.EvKey, evdevio.UISetKeyBit, 0x21, evdevio.KeyMax},
		{evdevio.EvRel, evdevio.UISetRelBit, 0x22, evdevio.RelMax},
		{evdevio.EvAbs, evdevio.UISetAbsBit, 0x23, evdevio.AbsMax},
		{evdevio.EvMsc, evdevio.UISetMscBit, 0x24, 0x07},
		{evdevio.EvLed, evdevio.UISetLedBit, 0x31, 0x0f},
	}

	if err := evdevio.IoctlInt(f.Fd(), evdevio.UISetEvBit, uintptr(evdevio.EvSyn)); err != nil {
		return xerrors.Device("device.cloneCapabilities", err)
	}

	for _, t := range types {
		if !bitSet(evBits, t.evType) {
			continue
		}

		if err := evdevio.IoctlInt(f.Fd(), evdevio.UISetEvBit, uintptr(t.evType)); err != nil {
			return xerrors.Device("device.cloneCapabilities", fmt.Errorf("UI_SET_EVBIT %d: %w", t.evType, err))
		}

		codeBits := make([]byte, (t.maxCode+1+7)/8)
		getCodes := evdevio.IORSized(uint('E'), uint(t.getNR), uint(len(codeBits)))

		if err := evdevio.Ioctl(src.Fd(), getCodes, unsafe.Pointer(&codeBits[0])); err != nil {
			continue // not every type supports EVIOCGBIT(N); best effort
		}

		for code := 0; code <= t.maxCode; code++ {
			if !bitSet(codeBits, code) {
				continue
			}

			if err := evdevio.IoctlInt(f.Fd(), t.setBit, uintptr(code)); err != nil {
				return xerrors.Device("device.cloneCapabilities", fmt.Errorf("UI_SET_*BIT %d/%d: %w", t.evType, code, err))
			}
		}
	}

	return nil
}

func bitSet(bits []byte, n int) bool {
	idx, off := n/8, uint(n%8)
	if idx >= len(bits) {
		return false
	}

	return bits[idx]&(1<<off) != 0
}

// run drains the inbound channel, writing each event through to the
// kernel followed by SYN_REPORT, then pacing itself so a burst of
// synthetic events never outruns what a physical device could produce.
func (w *Writer) run() {
	defer close(w.done)

	for {
		select {
		case <-w.quit:
			return
		case ev, ok := <-w.Inbound():
			if !ok {
				return
			}

			if err := w.emit(ev); err != nil {
				log.Printf("device writer %s: %v", w.name, err)

				continue
			}

			time.Sleep(framePacing)
		}
	}
}

func (w *Writer) emit(ev graph.Event) error {
	value := ev.Value
	if ev.Key.Type == keys.EvRel || ev.Key.Type == keys.EvAbs {
		value = ev.Axis
	}

	ie := evdevio.InputEvent{Type: ev.Key.Type, Code: ev.Key.Code, Value: value}
	if err := writeEvent(w.file, ie); err != nil {
		return err
	}

	return writeEvent(w.file, evdevio.InputEvent{Type: keys.EvSyn, Code: evdevio.SynReport, Value: 0})
}

func writeEvent(f *os.File, ie evdevio.InputEvent) error {
	buf := (*[unsafe.Sizeof(evdevio.InputEvent{})]byte)(unsafe.Pointer(&ie))[:]

	_, err := f.Write(buf)

	return err
}

// Close destroys the virtual device and joins the run loop with a
// bounded timeout.
func (w *Writer) Close() error {
	close(w.quit)

	select {
	case <-w.done:
	case <-time.After(2 * time.Second):
		log.Printf("device writer %s: Close timed out", w.name)
	}

	if err := evdevio.IoctlInt(w.file.Fd(), evdevio.UIDevDestroy, 0); err != nil {
		log.Printf("device writer %s: UI_DEV_DESTROY: %v", w.name, err)
	}

	return w.file.Close()
}
