package mapper

import (
	"sync"

	"github.com/miken90/gonode/graph"
	"github.com/miken90/gonode/keys"
)

// modState is the idle/active/suppressed state machine §4.6.2
// describes for a dual-role key: tap it alone and it emits its own
// click; hold it and press another key and it behaves as a modifier.
type modState int

const (
	modIdle modState = iota
	modActive
	modSuppressed
)

// ModifierMapper turns one physical key into a dual-role modifier.
// Tapped alone it types Source. Held with another key, that key is
// looked up in the mapping table installed by Map: a hit emits the
// mapped key edge-for-edge in place of the underlying one (§4.6.2's
// "consult the mapping table with the trigger treated as a modifier");
// a miss falls back to folding Source into the plain modifier Side,
// forwarding the other key unchanged underneath it.
type ModifierMapper struct {
	Base

	source keys.Key
	target keys.Side

	tmu   sync.Mutex
	table map[keys.Key]keys.Key

	mu         sync.Mutex
	state      modState
	sideHeld   bool
	heldMapped map[keys.Key]keys.Key
}

// NewModifierMapper builds a mapper turning source into a dual-role
// modifier: held alone it clicks source; held with a key present in the
// table installed via Map, it substitutes the mapped key; held with any
// other key, it folds source into target for the duration.
func NewModifierMapper(source keys.Key, target keys.Side, fatal func(error)) *ModifierMapper {
	return &ModifierMapper{
		Base:       newBase(fatal),
		source:     source,
		target:     target,
		table:      make(map[keys.Key]keys.Key),
		heldMapped: make(map[keys.Key]keys.Key),
	}
}

// Map installs a per-key substitution consulted while source is held:
// key's own down/up edges emit mapped's instead of being folded into
// the plain modifier side or forwarded raw.
func (m *ModifierMapper) Map(key, mapped keys.Key) {
	m.tmu.Lock()
	defer m.tmu.Unlock()

	m.table[key] = mapped
}

func (m *ModifierMapper) lookup(key keys.Key) (keys.Key, bool) {
	m.tmu.Lock()
	defer m.tmu.Unlock()

	mapped, ok := m.table[key]

	return mapped, ok
}

// ModifierMapperSnapshot is an opaque value copy of a modifier mapper's
// substitution table.
type ModifierMapperSnapshot struct {
	table map[keys.Key]keys.Key
}

// Snapshot copies or restores the substitution table, following the
// same get-then-restore contract as KeyMapper.Snapshot.
func (m *ModifierMapper) Snapshot(prev *ModifierMapperSnapshot) *ModifierMapperSnapshot {
	m.tmu.Lock()
	defer m.tmu.Unlock()

	cur := &ModifierMapperSnapshot{table: cloneKeyTable(m.table)}

	if prev != nil {
		m.table = cloneKeyTable(prev.table)
	}

	return cur
}

func cloneKeyTable(t map[keys.Key]keys.Key) map[keys.Key]keys.Key {
	cp := make(map[keys.Key]keys.Key, len(t))
	for k, v := range t {
		cp[k] = v
	}

	return cp
}

// Run ranges over the mapper's inbound channel until it closes.
func (m *ModifierMapper) Run() {
	for ev := range m.Inbound() {
		m.handle(ev)
	}
}

func (m *ModifierMapper) handle(ev graph.Event) {
	if ev.Key.Type != keys.EvKey {
		if m.handleAxis(ev) {
			return
		}

		m.SendAll(ev)

		return
	}

	if ev.Key == m.source {
		m.handleSource(ev.Value)

		return
	}

	m.handleOther(ev)
}

func (m *ModifierMapper) handleSource(value int32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch value {
	case keys.Down:
		if m.state == modIdle {
			// idle -> active: record only, no emission yet.
			m.state = modActive
		}
	case keys.Up:
		switch m.state {
		case modActive:
			// active -> idle, not suppressed: the trigger was tapped
			// alone, so it types its own click.
			m.emitClick(m.source)
		case modSuppressed:
			m.resolveSuppressed()
		}

		m.state = modIdle
	}
}

// resolveSuppressed runs the active->idle, suppressed transition: every
// key still held gets its mapped up-action followed by a re-press of
// its own raw down (so it keeps reading as itself once the trigger lets
// go), then the folded side (if one was ever engaged) is released.
func (m *ModifierMapper) resolveSuppressed() {
	for key, mapped := range m.heldMapped {
		m.emitKeyAction(keys.KeyAction{Key: mapped, Value: keys.Up})
		m.emitKeyAction(keys.KeyAction{Key: key, Value: keys.Down})
		delete(m.heldMapped, key)
	}

	if m.sideHeld {
		m.emitKeyAction(keys.KeyAction{Key: keys.KeyForSide(m.target), Value: keys.Up})
		m.sideHeld = false
	}
}

func (m *ModifierMapper) handleOther(ev graph.Event) {
	m.mu.Lock()
	st := m.state
	m.mu.Unlock()

	if st != modActive && st != modSuppressed {
		m.SendAll(ev)

		return
	}

	mapped, hasMapping := m.lookup(ev.Key)

	switch ev.Value {
	case keys.Down:
		m.mu.Lock()
		m.state = modSuppressed
		needSide := !hasMapping && !m.sideHeld
		if needSide {
			m.sideHeld = true
		}
		if hasMapping {
			m.heldMapped[ev.Key] = mapped
		}
		m.mu.Unlock()

		if needSide {
			m.emitKeyAction(keys.KeyAction{Key: keys.KeyForSide(m.target), Value: keys.Down})
		}

		if hasMapping {
			m.emitKeyAction(keys.KeyAction{Key: mapped, Value: keys.Down})

			return
		}

		m.SendAll(ev)
	case keys.Up:
		m.mu.Lock()
		mappedUp, intercepted := m.heldMapped[ev.Key]
		if intercepted {
			delete(m.heldMapped, ev.Key)
		}
		m.mu.Unlock()

		if intercepted {
			m.emitKeyAction(keys.KeyAction{Key: mappedUp, Value: keys.Up})

			return
		}

		m.SendAll(ev)
	default:
		m.SendAll(ev)
	}
}
