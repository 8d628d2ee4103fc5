package mapper

import (
	"strings"
	"sync"
	"time"

	"github.com/miken90/gonode/graph"
	"github.com/miken90/gonode/keys"
)

// textWindow bounds the rolling buffer §4.6.4 describes: only the last
// 32 characters are ever considered for a suffix match.
const textWindow = 32

// textCallbackDelay scales with the matched suffix's length: longer
// matches wait longer so a still-longer match typed immediately after
// can supersede them before the shorter one fires.
const textCallbackDelay = 10 * time.Millisecond

// TextMapper watches a rolling window of typed characters for a
// registered suffix and, once one is found, fires its target after a
// length-proportional delay (so in "okay", a longer "kay" typed right
// after "ok" can supersede "ok" before "ok" commits).
type TextMapper struct {
	Base

	smu     sync.Mutex
	suffix  map[string]Target
	maxLen  int

	mu     sync.Mutex
	buf    []rune
	pos    int64
	timer  *time.Timer
	armed  string // the suffix the pending timer will fire for
	armPos int64
}

// NewTextMapper allocates an empty text mapper.
func NewTextMapper(fatal func(error)) *TextMapper {
	return &TextMapper{Base: newBase(fatal), suffix: make(map[string]Target)}
}

// Map registers text as a suffix trigger: once the rolling window ends
// with this exact text, target fires.
func (m *TextMapper) Map(text string, target Target) {
	m.smu.Lock()
	defer m.smu.Unlock()

	m.suffix[text] = target
	if n := len([]rune(text)); n > m.maxLen {
		m.maxLen = n
	}
}

// Run ranges over the mapper's inbound channel until it closes.
func (m *TextMapper) Run() {
	for ev := range m.Inbound() {
		m.handle(ev)
	}
}

// charTable maps a small set of printable keys to their rune. A fuller
// transformer layer (xkb) is consulted by scripts that need locale-
// correct text; this mapper only needs enough to drive suffix matching
// for ASCII triggers.
var charTable = map[keys.Key]rune{}

func init() {
	for name, k := range keys.NameToKey {
		if !strings.HasPrefix(name, "KEY_") || len(name) != 5 {
			continue
		}

		r := rune(name[4])
		if r >= 'A' && r <= 'Z' {
			charTable[k] = r + ('a' - 'A')
		}
	}
}

func (m *TextMapper) handle(ev graph.Event) {
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

	if ev.Key == keys.NameToKey["KEY_BACKSPACE"] {
		// Backspace updates the window but never triggers a lookup,
		// regardless of edge; only its down actually erases a character.
		if ev.Value == keys.Down {
			m.backspace()
		}

		m.SendAll(ev)

		return
	}

	r, ok := charTable[ev.Key]
	if !ok {
		m.SendAll(ev)

		return
	}

	m.SendAll(ev)

	// The lookup runs on key-up, not key-down: the grapheme a key
	// produces is only settled once the full click is observed.
	if ev.Value == keys.Up {
		m.append(r)
	}
}

func (m *TextMapper) backspace() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.buf) > 0 {
		m.buf = m.buf[:len(m.buf)-1]
	}

	m.pos++
}

func (m *TextMapper) append(r rune) {
	m.mu.Lock()
	m.buf = append(m.buf, r)
	if len(m.buf) > textWindow {
		m.buf = m.buf[len(m.buf)-textWindow:]
	}
	m.pos++
	cur := string(m.buf)
	curPos := m.pos
	m.mu.Unlock()

	best, target, ok := m.longestSuffixMatch(cur)
	if !ok {
		return
	}

	m.mu.Lock()
	if m.timer != nil && len(best) <= len(m.armed) {
		m.mu.Unlock()

		return
	}

	if m.timer != nil {
		m.timer.Stop()
	}

	m.armed = best
	m.armPos = curPos
	m.timer = time.AfterFunc(time.Duration(len(best))*textCallbackDelay, func() {
		m.fire(best, target, curPos)
	})
	m.mu.Unlock()
}

func (m *TextMapper) fire(suffix string, target Target, atPos int64) {
	m.mu.Lock()
	stillCurrent := m.armPos == atPos
	if stillCurrent {
		m.buf = nil
	}
	m.mu.Unlock()

	if !stillCurrent {
		return
	}

	backspace := keys.NameToKey["KEY_BACKSPACE"]
	for range []rune(suffix) {
		m.emitKeyAction(keys.KeyAction{Key: backspace, Value: keys.Down})
		m.emitKeyAction(keys.KeyAction{Key: backspace, Value: keys.Up})
	}

	m.dispatch(target, true)
}

// TextMapperSnapshot is an opaque value copy of a text mapper's suffix
// table.
type TextMapperSnapshot struct {
	suffix map[string]Target
	maxLen int
}

// Snapshot copies or restores the suffix table, following the same
// get-then-restore contract as KeyMapper.Snapshot.
func (m *TextMapper) Snapshot(prev *TextMapperSnapshot) *TextMapperSnapshot {
	m.smu.Lock()
	defer m.smu.Unlock()

	cur := &TextMapperSnapshot{suffix: cloneSuffixTable(m.suffix), maxLen: m.maxLen}

	if prev != nil {
		m.suffix = cloneSuffixTable(prev.suffix)
		m.maxLen = prev.maxLen
	}

	return cur
}

func cloneSuffixTable(t map[string]Target) map[string]Target {
	cp := make(map[string]Target, len(t))
	for k, v := range t {
		cp[k] = v
	}

	return cp
}

func (m *TextMapper) longestSuffixMatch(buf string) (string, Target, bool) {
	m.smu.Lock()
	defer m.smu.Unlock()

	var best string

	var target Target

	found := false

	for suffix, t := range m.suffix {
		if strings.HasSuffix(buf, suffix) && len(suffix) > len(best) {
			best = suffix
			target = t
			found = true
		}
	}

	return best, target, found
}
