// Package keys defines the canonical key identity and modifier-state
// types shared by every node in the graph.
package keys

import (
	"fmt"
	"strings"
)

// Key is an opaque identifier equivalent to a (type, code) pair from the
// evdev wire format.
type Key struct {
	Type uint16
	Code uint16
}

func (k Key) String() string {
	if name, ok := codeNames[k]; ok {
		return name
	}

	return fmt.Sprintf("KEY(%d,%d)", k.Type, k.Code)
}

// EV_* event types, mirroring linux/input-event-codes.h.
const (
	EvSyn = 0x00
	EvKey = 0x01
	EvRel = 0x02
	EvAbs = 0x03
	EvMsc = 0x04
	EvLed = 0x11
)

// SYN_REPORT is the synchronization marker that ends a coherent group
// of input events.
const SynReport = 0

// Key-event values.
const (
	Up     = 0
	Down   = 1
	Repeat = 2
)

// A small but representative subset of KEY_*/BTN_* codes — enough to
// cover the action-syntax parser, the mapper tests and the chord/text
// examples in the spec. Unlisted codes still round-trip through Key by
// numeric value; only their String() form falls back to KEY(type,code).
var NameToKey = map[string]Key{
	"KEY_RESERVED": {EvKey, 0}, "KEY_ESC": {EvKey, 1},
	"KEY_1": {EvKey, 2}, "KEY_2": {EvKey, 3}, "KEY_3": {EvKey, 4},
	"KEY_4": {EvKey, 5}, "KEY_5": {EvKey, 6}, "KEY_6": {EvKey, 7},
	"KEY_7": {EvKey, 8}, "KEY_8": {EvKey, 9}, "KEY_9": {EvKey, 10},
	"KEY_0": {EvKey, 11}, "KEY_MINUS": {EvKey, 12}, "KEY_EQUAL": {EvKey, 13},
	"KEY_BACKSPACE": {EvKey, 14}, "KEY_TAB": {EvKey, 15},
	"KEY_Q": {EvKey, 16}, "KEY_W": {EvKey, 17}, "KEY_E": {EvKey, 18},
	"KEY_R": {EvKey, 19}, "KEY_T": {EvKey, 20}, "KEY_Y": {EvKey, 21},
	"KEY_U": {EvKey, 22}, "KEY_I": {EvKey, 23}, "KEY_O": {EvKey, 24},
	"KEY_P": {EvKey, 25}, "KEY_LEFTBRACE": {EvKey, 26}, "KEY_RIGHTBRACE": {EvKey, 27},
	"KEY_ENTER": {EvKey, 28}, "KEY_LEFTCTRL": {EvKey, 29},
	"KEY_A": {EvKey, 30}, "KEY_S": {EvKey, 31}, "KEY_D": {EvKey, 32},
	"KEY_F": {EvKey, 33}, "KEY_G": {EvKey, 34}, "KEY_H": {EvKey, 35},
	"KEY_J": {EvKey, 36}, "KEY_K": {EvKey, 37}, "KEY_L": {EvKey, 38},
	"KEY_SEMICOLON": {EvKey, 39}, "KEY_APOSTROPHE": {EvKey, 40}, "KEY_GRAVE": {EvKey, 41},
	"KEY_LEFTSHIFT": {EvKey, 42}, "KEY_BACKSLASH": {EvKey, 43},
	"KEY_Z": {EvKey, 44}, "KEY_X": {EvKey, 45}, "KEY_C": {EvKey, 46},
	"KEY_V": {EvKey, 47}, "KEY_B": {EvKey, 48}, "KEY_N": {EvKey, 49}, "KEY_M": {EvKey, 50},
	"KEY_COMMA": {EvKey, 51}, "KEY_DOT": {EvKey, 52}, "KEY_SLASH": {EvKey, 53},
	"KEY_RIGHTSHIFT": {EvKey, 54}, "KEY_KPASTERISK": {EvKey, 55},
	"KEY_LEFTALT": {EvKey, 56}, "KEY_SPACE": {EvKey, 57}, "KEY_CAPSLOCK": {EvKey, 58},
	"KEY_F1": {EvKey, 59}, "KEY_F2": {EvKey, 60}, "KEY_F3": {EvKey, 61}, "KEY_F4": {EvKey, 62},
	"KEY_F5": {EvKey, 63}, "KEY_F6": {EvKey, 64}, "KEY_F7": {EvKey, 65}, "KEY_F8": {EvKey, 66},
	"KEY_F9": {EvKey, 67}, "KEY_F10": {EvKey, 68},
	"KEY_RIGHTCTRL": {EvKey, 97}, "KEY_RIGHTALT": {EvKey, 100},
	"KEY_HOME": {EvKey, 102}, "KEY_UP": {EvKey, 103}, "KEY_PAGEUP": {EvKey, 104},
	"KEY_LEFT": {EvKey, 105}, "KEY_RIGHT": {EvKey, 106}, "KEY_END": {EvKey, 107},
	"KEY_DOWN": {EvKey, 108}, "KEY_PAGEDOWN": {EvKey, 109}, "KEY_INSERT": {EvKey, 110},
	"KEY_DELETE": {EvKey, 111},
	"KEY_LEFTMETA": {EvKey, 125}, "KEY_RIGHTMETA": {EvKey, 126},
	"BTN_LEFT": {EvKey, 0x110}, "BTN_RIGHT": {EvKey, 0x111}, "BTN_MIDDLE": {EvKey, 0x112},
	"REL_X": {EvRel, 0x00}, "REL_Y": {EvRel, 0x01}, "REL_WHEEL": {EvRel, 0x08},
	"ABS_X": {EvAbs, 0x00}, "ABS_Y": {EvAbs, 0x01},
	"ABS_HAT0X": {EvAbs, 0x10}, "ABS_HAT0Y": {EvAbs, 0x11},
	"MSC_SCAN": {EvMsc, 0x04},
}

var codeNames = func() map[Key]string {
	m := make(map[Key]string, len(NameToKey))
	for name, k := range NameToKey {
		m[k] = name
	}

	return m
}()

// Lookup resolves a canonical name (e.g. "KEY_LEFTCTRL" or the bare
// "a"/"A" convenience alias) to a Key.
func Lookup(name string) (Key, bool) {
	if k, ok := NameToKey[name]; ok {
		return k, true
	}

	if k, ok := NameToKey["KEY_"+strings.ToUpper(name)]; ok {
		return k, true
	}

	return Key{}, false
}

// Side identifies one physical half of a two-sided modifier.
type Side int

const (
	LeftCtrl Side = iota
	RightCtrl
	LeftShift
	RightShift
	LeftAlt
	RightAlt
	LeftMeta
	RightMeta
	numSides
)

var sideKeys = [numSides]Key{
	LeftCtrl:   NameToKey["KEY_LEFTCTRL"],
	RightCtrl:  NameToKey["KEY_RIGHTCTRL"],
	LeftShift:  NameToKey["KEY_LEFTSHIFT"],
	RightShift: NameToKey["KEY_RIGHTSHIFT"],
	LeftAlt:    NameToKey["KEY_LEFTALT"],
	RightAlt:   NameToKey["KEY_RIGHTALT"],
	LeftMeta:   NameToKey["KEY_LEFTMETA"],
	RightMeta:  NameToKey["KEY_RIGHTMETA"],
}

// KeyForSide returns the physical key that carries the given modifier side.
func KeyForSide(s Side) Key { return sideKeys[s] }

// SideForKey reports which modifier side, if any, a key corresponds to.
func SideForKey(k Key) (Side, bool) {
	for s, sk := range sideKeys {
		if sk == k {
			return Side(s), true
		}
	}

	return 0, false
}

// ModMask is the set {ctrl, shift, alt, right-alt, meta}, ORed across
// left/right for every flag except right-alt, which layouts use as
// AltGr and so is tracked independently of plain alt.
type ModMask uint8

const (
	ModCtrl ModMask = 1 << iota
	ModShift
	ModAlt
	ModRightAlt
	ModMeta
)

func (m ModMask) Has(f ModMask) bool { return m&f != 0 }

// ModifierState is the eight per-side booleans, kept live per input
// source and updated on every observed key event.
type ModifierState struct {
	held [numSides]bool
}

// Observe updates live state from a raw key event. It returns true if
// the key was a modifier (and so was consumed into state rather than
// left for mapping).
func (m *ModifierState) Observe(k Key, value int32) bool {
	side, ok := SideForKey(k)
	if !ok {
		return false
	}

	if value != Up {
		m.held[side] = true
	} else {
		m.held[side] = false
	}

	return true
}

// Flags collapses the eight-boolean live state into the five-flag mask.
func (m *ModifierState) Flags() ModMask {
	var f ModMask

	if m.held[LeftCtrl] || m.held[RightCtrl] {
		f |= ModCtrl
	}

	if m.held[LeftShift] || m.held[RightShift] {
		f |= ModShift
	}

	if m.held[LeftAlt] {
		f |= ModAlt
	}

	if m.held[RightAlt] {
		f |= ModRightAlt
	}

	if m.held[LeftMeta] || m.held[RightMeta] {
		f |= ModMeta
	}

	return f
}

// HeldSides returns every modifier side currently physically held.
func (m *ModifierState) HeldSides() []Side {
	var sides []Side

	for s, held := range m.held {
		if held {
			sides = append(sides, Side(s))
		}
	}

	return sides
}

// Held reports whether a specific side is currently physically held.
func (m *ModifierState) Held(s Side) bool { return m.held[s] }

// SidesFor expands a ModMask into the canonical (left-biased) sides
// that realize it, used when synthesizing release/restore brackets.
func SidesFor(f ModMask) []Side {
	var sides []Side

	if f.Has(ModCtrl) {
		sides = append(sides, LeftCtrl)
	}

	if f.Has(ModShift) {
		sides = append(sides, LeftShift)
	}

	if f.Has(ModAlt) {
		sides = append(sides, LeftAlt)
	}

	if f.Has(ModRightAlt) {
		sides = append(sides, RightAlt)
	}

	if f.Has(ModMeta) {
		sides = append(sides, LeftMeta)
	}

	return sides
}

// KeyAction is a (Key, value, modifier-flags) triple.
type KeyAction struct {
	Key   Key
	Value int32
	Mods  ModMask
}

// Click expands to the down/up pair a click action installs as.
func Click(k Key, mods ModMask) []KeyAction {
	return []KeyAction{
		{Key: k, Value: Down, Mods: mods},
		{Key: k, Value: Up, Mods: mods},
	}
}
