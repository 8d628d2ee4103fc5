package mapper

import (
	"sort"
	"sync"
	"time"

	"github.com/miken90/gonode/graph"
	"github.com/miken90/gonode/keys"
)

// chordWindow is the resolution window §4.6.3 describes: keys pressed
// within this interval of each other are considered for a chord match
// before falling back to individual passthrough.
const chordWindow = 50 * time.Millisecond

// ChordMapper buffers near-simultaneous key-downs. It fires a chord's
// target as soon as the buffered keys name that chord; otherwise, once
// the resolution window elapses, it fires the matching chord's target
// or replays the buffered keys individually.
type ChordMapper struct {
	Base

	cmu    sync.Mutex
	chords map[string]Target

	mu      sync.Mutex
	pending []keys.Key
	resolved bool // true once the current pending set matched a chord
	swallow  map[keys.Key]bool
	timer    *time.Timer
}

// NewChordMapper allocates an empty chord mapper.
func NewChordMapper(fatal func(error)) *ChordMapper {
	return &ChordMapper{
		Base:    newBase(fatal),
		chords:  make(map[string]Target),
		swallow: make(map[keys.Key]bool),
	}
}

// Map registers a chord: the exact set of keys, in any order, resolving
// to target when all are pressed inside the resolution window.
func (m *ChordMapper) Map(keySet []keys.Key, target Target) {
	m.cmu.Lock()
	defer m.cmu.Unlock()

	m.chords[chordID(keySet)] = target
}

func chordID(ks []keys.Key) string {
	sorted := append([]keys.Key(nil), ks...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Type != sorted[j].Type {
			return sorted[i].Type < sorted[j].Type
		}

		return sorted[i].Code < sorted[j].Code
	})

	id := make([]byte, 0, len(sorted)*5)
	for _, k := range sorted {
		id = append(id, byte(k.Type), byte(k.Type>>8), byte(k.Code), byte(k.Code>>8), '|')
	}

	return string(id)
}

// Run ranges over the mapper's inbound channel until it closes.
func (m *ChordMapper) Run() {
	for ev := range m.Inbound() {
		m.handle(ev)
	}
}

func (m *ChordMapper) handle(ev graph.Event) {
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
		m.handleDown(ev.Key)
	case keys.Up:
		m.handleUp(ev.Key)
	default:
		m.SendAll(ev)
	}
}

func (m *ChordMapper) handleDown(k keys.Key) {
	m.mu.Lock()

	m.pending = append(m.pending, k)
	pending := append([]keys.Key(nil), m.pending...)

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	m.mu.Unlock()

	m.cmu.Lock()
	_, full := m.chords[chordID(pending)]
	m.cmu.Unlock()

	if full {
		// The stack already names a complete chord: resolve now instead
		// of waiting out the window, so a fast down/down/up/up burst
		// doesn't race an unresolved key-up into handleUp.
		m.resolve()

		return
	}

	m.mu.Lock()
	m.timer = time.AfterFunc(chordWindow, m.resolve)
	m.mu.Unlock()
}

func (m *ChordMapper) resolve() {
	m.mu.Lock()
	pending := append([]keys.Key(nil), m.pending...)
	m.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	m.cmu.Lock()
	target, ok := m.chords[chordID(pending)]
	m.cmu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if ok {
		m.resolved = true

		for _, k := range pending {
			m.swallow[k] = true
		}

		m.dispatch(target, true)
	} else {
		for _, k := range pending {
			m.emitClick(k)
		}
	}

	m.pending = nil
}

func (m *ChordMapper) handleUp(k keys.Key) {
	m.mu.Lock()

	if m.swallow[k] {
		delete(m.swallow, k)
		m.mu.Unlock()

		return
	}

	for i, p := range m.pending {
		if p == k {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			m.mu.Unlock()
			m.emitClick(k)

			return
		}
	}

	m.mu.Unlock()

	m.emitKeyAction(keys.KeyAction{Key: k, Value: keys.Up})
}

// ChordMapperSnapshot is an opaque value copy of a chord mapper's chord
// table.
type ChordMapperSnapshot struct {
	chords map[string]Target
}

// Snapshot copies or restores the chord table, following the same
// get-then-restore contract as KeyMapper.Snapshot.
func (m *ChordMapper) Snapshot(prev *ChordMapperSnapshot) *ChordMapperSnapshot {
	m.cmu.Lock()
	defer m.cmu.Unlock()

	cur := &ChordMapperSnapshot{chords: cloneChordTable(m.chords)}

	if prev != nil {
		m.chords = cloneChordTable(prev.chords)
	}

	return cur
}

func cloneChordTable(t map[string]Target) map[string]Target {
	cp := make(map[string]Target, len(t))
	for k, v := range t {
		cp[k] = v
	}

	return cp
}
