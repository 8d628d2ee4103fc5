//go:build linux

// Package xkb implements the transformer §4.1 describes: translating a
// grapheme to the shortest modifier-qualified raw key sequence that
// produces it under a given keyboard layout, and the inverse direction
// for reporting what a raw key currently types. It binds libxkbcommon
// directly, the way gioui's internal xkb package does.
package xkb

/*
#cgo pkg-config: xkbcommon
#include <stdlib.h>
#include <xkbcommon/xkbcommon.h>
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
	"weak"

	"github.com/miken90/gonode/keys"
	"github.com/miken90/gonode/xerrors"
)

// Params identifies a keyboard profile: the (model, layout, variant,
// options) tuple XKB accepts, e.g. ("pc105", "us", "", "").
type Params struct {
	Model, Layout, Variant, Options string
}

func (p Params) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", p.Model, p.Layout, p.Variant, p.Options)
}

// DefaultParams matches a generic 105-key US layout, used when a script
// does not specify one explicitly.
var DefaultParams = Params{Model: "pc105", Layout: "us"}

// Transformer wraps one xkb_keymap/xkb_state pair and the precomputed
// shortest-sequence table derived from it.
type Transformer struct {
	ctx    *C.struct_xkb_context
	keymap *C.struct_xkb_keymap
	state  *C.struct_xkb_state

	mu      sync.Mutex
	utfToRaw map[rune][]keys.KeyAction
}

var (
	registryMu sync.Mutex
	registry   = map[Params]weak.Pointer[Transformer]{}
)

// New returns the process-wide transformer for params, building it if
// no live Transformer for that tuple currently exists. Transformers are
// registered weakly: once every reference drops, the next New for the
// same params rebuilds it rather than reusing a stale one.
func New(params Params) (*Transformer, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if wp, ok := registry[params]; ok {
		if t := wp.Value(); t != nil {
			return t, nil
		}
	}

	t, err := build(params)
	if err != nil {
		return nil, err
	}

	registry[params] = weak.Make(t)

	return t, nil
}

func build(params Params) (*Transformer, error) {
	ctx := C.xkb_context_new(C.XKB_CONTEXT_NO_FLAGS)
	if ctx == nil {
		return nil, xerrors.Platform("xkb.New", fmt.Errorf("xkb_context_new failed"))
	}

	names := C.struct_xkb_rule_names{}

	cmodel := cstringOrNil(params.Model)
	clayout := cstringOrNil(params.Layout)
	cvariant := cstringOrNil(params.Variant)
	coptions := cstringOrNil(params.Options)

	defer freeIfSet(cmodel)
	defer freeIfSet(clayout)
	defer freeIfSet(cvariant)
	defer freeIfSet(coptions)

	names.model = cmodel
	names.layout = clayout
	names.variant = cvariant
	names.options = coptions

	keymap := C.xkb_keymap_new_from_names(ctx, &names, C.XKB_KEYMAP_COMPILE_NO_FLAGS)
	if keymap == nil {
		C.xkb_context_unref(ctx)
		return nil, xerrors.Platform("xkb.New", fmt.Errorf("xkb_keymap_new_from_names(%s) failed", params))
	}

	state := C.xkb_state_new(keymap)
	if state == nil {
		C.xkb_keymap_unref(keymap)
		C.xkb_context_unref(ctx)
		return nil, xerrors.Platform("xkb.New", fmt.Errorf("xkb_state_new failed"))
	}

	t := &Transformer{ctx: ctx, keymap: keymap, state: state, utfToRaw: make(map[rune][]keys.KeyAction)}

	t.precompute()

	return t, nil
}

func cstringOrNil(s string) *C.char {
	if s == "" {
		return nil
	}

	return C.CString(s)
}

func freeIfSet(p *C.char) {
	if p != nil {
		C.free(unsafe.Pointer(p))
	}
}

// modifierCombos enumerates the modifier sides the precomputation
// tries, cheapest (no modifier) first, so the table ends up holding the
// shortest sequence for every reachable grapheme.
var modifierCombos = []struct {
	mods  keys.ModMask
	sides []keys.Side
}{
	{0, nil},
	{keys.ModShift, []keys.Side{keys.LeftShift}},
	{keys.ModRightAlt, []keys.Side{keys.RightAlt}},
	{keys.ModShift | keys.ModRightAlt, []keys.Side{keys.LeftShift, keys.RightAlt}},
}

// precompute walks every keycode the keymap defines under every
// modifier combo in modifierCombos and records the first (shortest)
// sequence that yields each distinct rune.
func (t *Transformer) precompute() {
	min := C.xkb_keymap_min_keycode(t.keymap)
	max := C.xkb_keymap_max_keycode(t.keymap)

	for _, combo := range modifierComboMasks(t.keymap) {
		for kc := min; kc <= max; kc++ {
			r, ok := t.runeFor(kc, combo.depressed)
			if !ok {
				continue
			}

			if _, exists := t.utfToRaw[r]; exists {
				continue
			}

			seq := make([]keys.KeyAction, 0, len(combo.sides)+2)
			for _, s := range combo.sides {
				seq = append(seq, keys.KeyAction{Key: keys.KeyForSide(s), Value: keys.Down})
			}

			seq = append(seq, keys.KeyAction{Key: keys.Key{Type: keys.EvKey, Code: uint16(kc) - 8}, Value: keys.Down})
			seq = append(seq, keys.KeyAction{Key: keys.Key{Type: keys.EvKey, Code: uint16(kc) - 8}, Value: keys.Up})

			for i := len(combo.sides) - 1; i >= 0; i-- {
				seq = append(seq, keys.KeyAction{Key: keys.KeyForSide(combo.sides[i]), Value: keys.Up})
			}

			t.utfToRaw[r] = seq
		}
	}
}

type comboMask struct {
	sides     []keys.Side
	depressed C.xkb_mod_mask_t
}

// modifierComboMasks resolves modifierCombos' symbolic sides into the
// real xkb_mod_mask_t values this keymap assigns them.
func modifierComboMasks(keymap *C.struct_xkb_keymap) []comboMask {
	out := make([]comboMask, 0, len(modifierCombos))

	for _, c := range modifierCombos {
		var mask C.xkb_mod_mask_t

		if c.mods.Has(keys.ModShift) {
			mask |= modBit(keymap, "Shift")
		}

		if c.mods.Has(keys.ModRightAlt) {
			mask |= modBit(keymap, "Mod5") // ISO_Level3_Shift / AltGr, conventionally Mod5
		}

		out = append(out, comboMask{sides: c.sides, depressed: mask})
	}

	return out
}

func modBit(keymap *C.struct_xkb_keymap, name string) C.xkb_mod_mask_t {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	idx := C.xkb_keymap_mod_get_index(keymap, cname)
	if idx == C.XKB_MOD_INVALID {
		return 0
	}

	return 1 << C.xkb_mod_mask_t(idx)
}

// runeFor looks up what a keycode produces under a forced modifier
// mask, using a scratch state so it never disturbs t.state (which
// tracks the engine's live modifier view for RawToUTF).
func (t *Transformer) runeFor(kc C.xkb_keycode_t, depressed C.xkb_mod_mask_t) (rune, bool) {
	scratch := C.xkb_state_new(t.keymap)
	if scratch == nil {
		return 0, false
	}
	defer C.xkb_state_unref(scratch)

	C.xkb_state_update_mask(scratch, depressed, 0, 0, 0, 0, 0)

	sym := C.xkb_state_key_get_one_sym(scratch, kc)
	if sym == C.XKB_KEY_NoSymbol {
		return 0, false
	}

	r := rune(C.xkb_keysym_to_utf32(sym))
	if r == 0 {
		return 0, false
	}

	return r, true
}

// UTFToRaw returns the shortest raw key-action sequence producing
// grapheme under this layout. Only single-rune graphemes are
// supported; multi-rune graphemes are a script-level concern (compose
// sequences), not this transformer's.
func (t *Transformer) UTFToRaw(grapheme string) ([]keys.KeyAction, bool) {
	runes := []rune(grapheme)
	if len(runes) != 1 {
		return nil, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	seq, ok := t.utfToRaw[runes[0]]

	return seq, ok
}

// RawToUTF reports what pressing a raw key currently produces given the
// transformer's live modifier state (as last set by Sync).
func (t *Transformer) RawToUTF(k keys.Key) (string, bool) {
	if k.Type != keys.EvKey {
		return "", false
	}

	kc := C.xkb_keycode_t(k.Code) + 8

	size := C.xkb_state_key_get_utf8(t.state, kc, nil, 0)
	if size <= 0 {
		return "", false
	}

	buf := make([]byte, size+1)
	C.xkb_state_key_get_utf8(t.state, kc, (*C.char)(unsafe.Pointer(&buf[0])), C.size_t(len(buf)))

	return string(buf[:size]), true
}

// Sync updates the transformer's live xkb_state from the engine's own
// modifier-flag view, so RawToUTF reflects what is actually held.
func (t *Transformer) Sync(flags keys.ModMask) {
	var depressed C.xkb_mod_mask_t

	if flags.Has(keys.ModShift) {
		depressed |= modBit(t.keymap, "Shift")
	}

	if flags.Has(keys.ModRightAlt) {
		depressed |= modBit(t.keymap, "Mod5")
	}

	C.xkb_state_update_mask(t.state, depressed, 0, 0, 0, 0, 0)
}

// Close releases the underlying xkb_state/xkb_keymap/xkb_context. It is
// safe to call even though Go's GC, via the weak registry entry, will
// eventually collect an unreferenced Transformer anyway.
func (t *Transformer) Close() {
	C.xkb_state_unref(t.state)
	C.xkb_keymap_unref(t.keymap)
	C.xkb_context_unref(t.ctx)
}
