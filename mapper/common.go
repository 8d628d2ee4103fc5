// Package mapper implements the four mapper state machines (key,
// modifier, chord, text) that sit between the device collector and the
// virtual emitter, each a graph node in its own right.
package mapper

import (
	"sync"

	"github.com/miken90/gonode/action"
	"github.com/miken90/gonode/graph"
	"github.com/miken90/gonode/keys"
)

// TargetKind distinguishes what a trigger maps to.
type TargetKind int

const (
	TargetSequence TargetKind = iota
	TargetCallback
	TargetNop
)

// Callback is the narrow surface the callback bridge implements; a
// mapper never runs a script callback itself, it only hands off to
// whatever satisfies this interface.
type Callback interface {
	// Invoke runs the callback for a key-down/key-up edge and reports
	// whether the triggering edge should still be forwarded downstream.
	Invoke(down bool) (forward bool)
}

// Target is what a trigger resolves to: a literal action sequence, a
// script callback, or a deliberate no-op (the key is consumed and
// nothing is emitted).
type Target struct {
	Kind     TargetKind
	Sequence []action.Action
	Callback Callback
}

// Trigger identifies a physical key qualified by the modifier flags
// that must be held for this mapping to apply.
type Trigger struct {
	Key  keys.Key
	Mods keys.ModMask
}

// Base is the state every mapper embeds: graph identity plus the live
// modifier state used to qualify incoming triggers and to compute
// release/restore brackets, and the optional per-axis handlers
// §4.6 lists as common to every mapper variant. The modifier state is a
// single one shared by every source feeding the node; it is not kept
// per source.
type Base struct {
	*graph.Node

	mu    sync.Mutex
	state keys.ModifierState

	axmu       sync.Mutex
	relHandler func(keys.Key, int32)
	absHandler func(keys.Key, int32)
}

func newBase(fatal func(error)) Base {
	return Base{Node: graph.NewNode(fatal)}
}

// modFlags returns the live modifier flags observed so far, used to
// qualify an incoming trigger's modifier mask.
func (b *Base) modFlags() keys.ModMask {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state.Flags()
}

// MapRelative installs fn as the handler invoked for every EV_REL event
// this node receives in place of forwarding it unchanged. A nil fn
// clears it.
func (b *Base) MapRelative(fn func(key keys.Key, value int32)) {
	b.axmu.Lock()
	defer b.axmu.Unlock()

	b.relHandler = fn
}

// MapAbsolute installs fn as the handler invoked for every EV_ABS event
// this node receives in place of forwarding it unchanged. A nil fn
// clears it.
func (b *Base) MapAbsolute(fn func(key keys.Key, value int32)) {
	b.axmu.Lock()
	defer b.axmu.Unlock()

	b.absHandler = fn
}

// handleAxis consults the per-axis handler registered for ev's event
// type, if any, and reports whether one ran.
func (b *Base) handleAxis(ev graph.Event) bool {
	b.axmu.Lock()
	rel, abs := b.relHandler, b.absHandler
	b.axmu.Unlock()

	switch ev.Key.Type {
	case keys.EvRel:
		if rel != nil {
			rel(ev.Key, ev.Axis)

			return true
		}
	case keys.EvAbs:
		if abs != nil {
			abs(ev.Key, ev.Axis)

			return true
		}
	}

	return false
}

// observe feeds a raw event into the shared modifier tracker, returning
// true if the key was itself a modifier (and so was not a candidate for
// triggering).
func (b *Base) observe(k keys.Key, value int32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state.Observe(k, value)
}

func (b *Base) heldSides() []keys.Side {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state.HeldSides()
}

func (b *Base) held(s keys.Side) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state.Held(s)
}

// emitKeyAction sends one KeyAction as a graph.Event tagged with this
// node's own identity (downstream nodes see the mapper as the source).
func (b *Base) emitKeyAction(ka keys.KeyAction) {
	b.SendAll(graph.Event{Key: ka.Key, Value: ka.Value, From: b.ID()})
}

func (b *Base) emitClick(k keys.Key) {
	for _, ka := range keys.Click(k, 0) {
		b.emitKeyAction(ka)
	}
}

// releaseHeldExcept emits Up for every currently-held modifier side not
// present in keep, returning the sides it released so the caller can
// restore them later. This implements the "release modifiers held but
// not needed before an action, restore after" bracket.
func (b *Base) releaseHeldExcept(keep keys.ModMask) []keys.Side {
	var released []keys.Side

	for _, s := range b.heldSides() {
		if sideInMask(s, keep) {
			continue
		}

		b.emitKeyAction(keys.KeyAction{Key: keys.KeyForSide(s), Value: keys.Up})

		released = append(released, s)
	}

	return released
}

// restoreSides re-presses every side previously released, using the
// live modifier state at restore time rather than a snapshot taken at
// release time — a side released here stays released if the user let
// go of it mid-action.
func (b *Base) restoreSides(sides []keys.Side) {
	for _, s := range sides {
		if !b.held(s) {
			continue
		}

		b.emitKeyAction(keys.KeyAction{Key: keys.KeyForSide(s), Value: keys.Down})
	}
}

// ReleaseModifiers releases every currently-held modifier, for use by a
// callback bridge that needs the release/restore bracket around a
// script callback's own synthesized output.
func (b *Base) ReleaseModifiers() []keys.Side { return b.releaseHeldExcept(0) }

// RestoreModifiers restores sides previously released by
// ReleaseModifiers.
func (b *Base) RestoreModifiers(sides []keys.Side) { b.restoreSides(sides) }

// EmitSequence plays out a parsed action sequence through this node,
// for use by a callback bridge reparsing a script's string return value.
func (b *Base) EmitSequence(seq []action.Action) { b.runSequence(seq) }

func sideInMask(s keys.Side, m keys.ModMask) bool {
	for _, c := range keys.SidesFor(m) {
		if c == s {
			return true
		}
	}

	return false
}

// bracketActions expands every action's own modifier flags into an
// explicit press/.../release bracket around it: "a -> +b" must hold
// shift for the duration of b's click, not merely remember that b wants
// shift. Idempotent on an already-expanded sequence, since its actions
// carry no Mods of their own.
func bracketActions(seq []action.Action) []action.Action {
	out := make([]action.Action, 0, len(seq))

	for _, a := range seq {
		sides := keys.SidesFor(a.Mods)
		if len(sides) == 0 {
			out = append(out, a)

			continue
		}

		for _, s := range sides {
			out = append(out, action.Action{Kind: action.KindKeyAction, Key: keys.KeyForSide(s), Value: keys.Down})
		}

		bare := a
		bare.Mods = 0
		out = append(out, bare)

		for i := len(sides) - 1; i >= 0; i-- {
			out = append(out, action.Action{Kind: action.KindKeyAction, Key: keys.KeyForSide(sides[i]), Value: keys.Up})
		}
	}

	return out
}

// runSequence plays out a literal action sequence, expanding KindClick
// into a down/up pair and passing KindKeyAction/KindAxis through as a
// single event. Actions still carrying their own Mods (a sequence
// reparsed from a callback's string return rather than built by one of
// the key-mapper builders) are bracketed here, at dispatch time.
func (b *Base) runSequence(seq []action.Action) {
	for _, a := range bracketActions(seq) {
		switch a.Kind {
		case action.KindClick:
			b.emitClick(a.Key)
		case action.KindKeyAction:
			b.emitKeyAction(keys.KeyAction{Key: a.Key, Value: a.Value})
		case action.KindAxis:
			b.SendAll(graph.Event{Key: a.Key, Axis: a.Axis, From: b.ID()})
		}
	}
}

// dispatch runs a resolved target for a key-down or key-up edge. down
// gates which targets actually fire: a Sequence only plays on the down
// edge (it already expands to a full click or contains explicit
// up/down actions of its own); a Callback and Nop both see every edge
// so they can decide per-edge behavior.
func (b *Base) dispatch(t Target, down bool) (forward bool) {
	switch t.Kind {
	case TargetSequence:
		if down {
			b.runSequence(t.Sequence)
		}

		return false
	case TargetCallback:
		if t.Callback == nil {
			return false
		}

		return t.Callback.Invoke(down)
	case TargetNop:
		return false
	default:
		return true
	}
}
