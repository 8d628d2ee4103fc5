package mapper

import (
	"sync"

	"github.com/miken90/gonode/action"
	"github.com/miken90/gonode/graph"
	"github.com/miken90/gonode/keys"
)

// KeyMapper implements §4.6.1: a table of (key, modifier-qualifier)
// triggers, each resolving to a click/action-sequence, a script
// callback, or a deliberate no-op. Everything not matched passes
// through unchanged.
type KeyMapper struct {
	Base

	tmu      sync.Mutex
	triggers map[Trigger]Target
	fallback *Target

	amu    sync.Mutex
	active map[keys.Key]activeMap
}

type activeMap struct {
	target   Target
	released []keys.Side
}

// NewKeyMapper allocates an empty key mapper. fatal is forwarded to the
// embedded graph node for backpressure reporting.
func NewKeyMapper(fatal func(error)) *KeyMapper {
	return &KeyMapper{
		Base:     newBase(fatal),
		triggers: make(map[Trigger]Target),
		active:   make(map[keys.Key]activeMap),
	}
}

// Map installs a trigger -> target mapping, overwriting any existing
// entry for the same trigger.
func (m *KeyMapper) Map(trigger Trigger, target Target) {
	m.tmu.Lock()
	defer m.tmu.Unlock()

	m.triggers[trigger] = target
}

// MapFallback installs the catch-all target applied to any key-down
// that matches no explicit trigger. A nil target clears it.
func (m *KeyMapper) MapFallback(target *Target) {
	m.tmu.Lock()
	defer m.tmu.Unlock()

	m.fallback = target
}

func (m *KeyMapper) lookup(t Trigger) (Target, bool) {
	m.tmu.Lock()
	defer m.tmu.Unlock()

	if tgt, ok := m.triggers[t]; ok {
		return tgt, true
	}

	return Target{}, false
}

// Run ranges over the mapper's inbound channel until it closes. Callers
// spawn this as the mapper's owning goroutine, per the node-graph rule
// that one goroutine processes a node's inbound events serially.
func (m *KeyMapper) Run() {
	for ev := range m.Inbound() {
		m.handle(ev)
	}
}

func (m *KeyMapper) handle(ev graph.Event) {
	if ev.Key.Type != keys.EvKey {
		if m.handleAxis(ev) {
			return
		}

		m.SendAll(ev)

		return
	}

	if m.observe(ev.Key, ev.Value) {
		m.SendAll(ev)

		return
	}

	switch ev.Value {
	case keys.Down:
		m.handleDown(ev)
	case keys.Up:
		m.handleUp(ev)
	default: // Repeat: resolved keys stay resolved, everything else passes through
		if _, held := m.peekActive(ev.Key); !held {
			m.SendAll(ev)
		}
	}
}

func (m *KeyMapper) handleDown(ev graph.Event) {
	trig := Trigger{Key: ev.Key, Mods: m.modFlags()}

	target, ok := m.lookup(trig)
	if !ok {
		m.tmu.Lock()
		fb := m.fallback
		m.tmu.Unlock()

		if fb == nil {
			m.SendAll(ev)

			return
		}

		target = *fb
	}

	released := m.releaseHeldExcept(0)

	m.amu.Lock()
	m.active[ev.Key] = activeMap{target: target, released: released}
	m.amu.Unlock()

	if m.dispatch(target, true) {
		m.emitKeyAction(keys.KeyAction{Key: ev.Key, Value: keys.Down})
	}
}

func (m *KeyMapper) handleUp(ev graph.Event) {
	a, ok := m.popActive(ev.Key)
	if !ok {
		m.SendAll(ev)

		return
	}

	if m.dispatch(a.target, false) {
		m.emitKeyAction(keys.KeyAction{Key: ev.Key, Value: keys.Up})
	}

	m.restoreSides(a.released)
}

func (m *KeyMapper) peekActive(k keys.Key) (activeMap, bool) {
	m.amu.Lock()
	defer m.amu.Unlock()

	a, ok := m.active[k]

	return a, ok
}

func (m *KeyMapper) popActive(k keys.Key) (activeMap, bool) {
	m.amu.Lock()
	defer m.amu.Unlock()

	a, ok := m.active[k]
	if ok {
		delete(m.active, k)
	}

	return a, ok
}

// The following four builders mirror the original mapper's
// click-to-click, click-to-action, action-to-click and
// action-to-sequence constructors: convenience factories scripts use
// instead of building a Trigger/Target pair by hand. Each precomputes
// the target's own release/restore bracket at install time via
// bracketActions, so e.g. a target of "+b" stores the full
// shift-down/B-down/B-up/shift-up sequence rather than a bare click
// carrying an unconsulted Mods field.

// ClickToClick maps a bare key click to another bare key click.
func ClickToClick(from, to keys.Key) (Trigger, Target) {
	return Trigger{Key: from}, Target{Kind: TargetSequence, Sequence: bracketActions([]action.Action{{Kind: action.KindClick, Key: to}})}
}

// ClickToAction maps a bare key click to a single parsed action.
func ClickToAction(from keys.Key, to action.Action) (Trigger, Target) {
	return Trigger{Key: from}, Target{Kind: TargetSequence, Sequence: bracketActions([]action.Action{to})}
}

// ActionToClick maps a modifier-qualified trigger to a bare key click.
func ActionToClick(from action.Action, to keys.Key) (Trigger, Target) {
	return Trigger{Key: from.Key, Mods: from.Mods}, Target{Kind: TargetSequence, Sequence: bracketActions([]action.Action{{Kind: action.KindClick, Key: to}})}
}

// ActionToSequence maps a modifier-qualified trigger to a full action
// sequence, e.g. a parsed {ctrl down}c{ctrl up} paste macro.
func ActionToSequence(from action.Action, seq []action.Action) (Trigger, Target) {
	return Trigger{Key: from.Key, Mods: from.Mods}, Target{Kind: TargetSequence, Sequence: bracketActions(seq)}
}

// KeyMapperSnapshot is an opaque value copy of a key mapper's trigger
// table and fallback handler.
type KeyMapperSnapshot struct {
	triggers map[Trigger]Target
	fallback *Target
}

// Snapshot copies or restores the trigger table. Called with nil it
// returns a copy of the live table without mutating it; called with a
// snapshot previously returned by Snapshot it installs that table and
// returns a copy of the table it replaced — so
// m.Snapshot(m.Snapshot(nil)) is an identity on the mapping table.
func (m *KeyMapper) Snapshot(prev *KeyMapperSnapshot) *KeyMapperSnapshot {
	m.tmu.Lock()
	defer m.tmu.Unlock()

	cur := &KeyMapperSnapshot{triggers: cloneTriggers(m.triggers), fallback: cloneTarget(m.fallback)}

	if prev != nil {
		m.triggers = cloneTriggers(prev.triggers)
		m.fallback = cloneTarget(prev.fallback)
	}

	return cur
}

func cloneTriggers(t map[Trigger]Target) map[Trigger]Target {
	cp := make(map[Trigger]Target, len(t))
	for k, v := range t {
		cp[k] = v
	}

	return cp
}

func cloneTarget(t *Target) *Target {
	if t == nil {
		return nil
	}

	cp := *t

	return &cp
}
