// Package script is the host scripting surface: the API a script
// interpreted by yaegi calls to describe readers, writers, mappers and
// their links, mirroring the original engine's Python host.
package script

import (
	"fmt"
	"sync"

	"github.com/miken90/gonode/action"
	"github.com/miken90/gonode/callback"
	"github.com/miken90/gonode/device"
	"github.com/miken90/gonode/focus"
	"github.com/miken90/gonode/graph"
	"github.com/miken90/gonode/keys"
	"github.com/miken90/gonode/mapper"
	"github.com/miken90/gonode/supervisor"
	"github.com/miken90/gonode/xerrors"
	"github.com/miken90/gonode/xkb"
)

// Env is the live handle a script's Run function receives. It owns
// every component the script constructs, registering each with the
// supervisor for ordered teardown.
type Env struct {
	sup      *supervisor.Supervisor
	bridge   *callback.Bridge
	oracle   *focus.Oracle
	oracleMu sync.Mutex

	mu    sync.Mutex
	nodes map[string]graph.Destination
}

// New builds an Env bound to sup. Every component the script
// subsequently constructs is tracked by sup for reverse-order teardown.
func New(sup *supervisor.Supervisor) *Env {
	e := &Env{sup: sup, nodes: make(map[string]graph.Destination)}
	e.bridge = callback.New(sup.Fatal)

	return e
}

// Reader constructs a device collector watching /dev/input paths
// matching any of patterns.
func (e *Env) Reader(patterns ...string) (*device.Reader, error) {
	r, err := device.NewReader(patterns, e.sup.Fatal)
	if err != nil {
		return nil, err
	}

	e.sup.Track(r)

	return r, nil
}

// Writer constructs a uinput virtual device named name with the given
// capabilities. If cloneFrom is non-empty its capability bitmaps are
// copied instead of caps.
func (e *Env) Writer(name string, caps device.Capabilities, cloneFrom string) (*device.Writer, error) {
	w, err := device.NewWriter(name, caps, cloneFrom, e.sup.Fatal)
	if err != nil {
		return nil, err
	}

	e.sup.Track(w)

	return w, nil
}

// VirtualReader constructs a synthetic source node that injects text and
// parsed action sequences through an XKB transformer instead of
// grabbing a real evdev device.
func (e *Env) VirtualReader(model, layout, variant, options string) (*device.VirtualReader, error) {
	v, err := device.NewVirtualReader(xkb.Params{Model: model, Layout: layout, Variant: variant, Options: options}, e.sup.Fatal)
	if err != nil {
		return nil, err
	}

	e.sup.Track(v)

	return v, nil
}

// KeyMapper constructs and starts a new key mapper.
func (e *Env) KeyMapper() *mapper.KeyMapper {
	m := mapper.NewKeyMapper(e.sup.Fatal)
	go m.Run()

	return m
}

// ModifierMapper constructs and starts a dual-role modifier mapper.
func (e *Env) ModifierMapper(source keys.Key, target keys.Side) *mapper.ModifierMapper {
	m := mapper.NewModifierMapper(source, target, e.sup.Fatal)
	go m.Run()

	return m
}

// MotionMapper constructs and starts a new motion-only mapper handling
// EV_REL/EV_ABS axis events.
func (e *Env) MotionMapper() *mapper.MotionMapper {
	m := mapper.NewMotionMapper(e.sup.Fatal)
	go m.Run()

	return m
}

// ChordMapper constructs and starts a new chord mapper.
func (e *Env) ChordMapper() *mapper.ChordMapper {
	m := mapper.NewChordMapper(e.sup.Fatal)
	go m.Run()

	return m
}

// TextMapper constructs and starts a new text mapper.
func (e *Env) TextMapper() *mapper.TextMapper {
	m := mapper.NewTextMapper(e.sup.Fatal)
	go m.Run()

	return m
}

// Callback wraps fn for use as a mapper.Target's Callback, dispatched
// through the env's shared worker pool. emitter is normally the mapper
// the resulting Target will be installed on.
func (e *Env) Callback(fn callback.Fn, async bool, emitter callback.Emitter) *callback.Callback {
	return e.bridge.New(fn, async, emitter)
}

// ParseKey exposes the action-language single-key parser to scripts.
func (e *Env) ParseKey(s string) (action.Action, error) { return action.ParseKey(s) }

// ParseSequence exposes the action-language sequence parser to scripts.
func (e *Env) ParseSequence(s string) ([]action.Action, error) { return action.ParseSequence(s) }

// Window returns the window-focus oracle, starting the X11 connection
// lazily on first use so a headless script never pays for it.
func (e *Env) Window() (*focus.Oracle, error) {
	e.oracleMu.Lock()
	defer e.oracleMu.Unlock()

	if e.oracle != nil {
		return e.oracle, nil
	}

	o, err := focus.New()
	if err != nil {
		return nil, err
	}

	e.sup.Track(o)
	e.oracle = o

	return o, nil
}

// Link connects src's output to dst's input, the script-level spelling
// of link_to.
func (e *Env) Link(src interface{ LinkTo(graph.Destination) }, dst graph.Destination) {
	src.LinkTo(dst)
}

// Named registers a node under a name so other parts of the script (or
// a reload) can look it up instead of needing to thread a Go value
// through closures.
func (e *Env) Named(name string, n graph.Destination) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[name]; exists {
		return xerrors.Link("Env.Named", fmt.Errorf("node %q already registered", name))
	}

	e.nodes[name] = n

	return nil
}

// Lookup resolves a name registered with Named.
func (e *Env) Lookup(name string) (graph.Destination, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.nodes[name]

	return n, ok
}

// Wait blocks until the engine is asked to exit (SIGINT, SIGTERM, or a
// fatal error) and tears every tracked component down in reverse
// construction order.
func (e *Env) Wait() int { return e.sup.Wait() }

// Exit requests shutdown with the given process exit code.
func (e *Env) Exit(code int) { e.sup.Exit(code) }
