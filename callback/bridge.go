// Package callback implements the script-callback bridge: a bounded
// worker pool that runs PythonCallback-equivalent script functions off
// the mapper's own goroutine, with the release/restore modifier
// discipline and string/bool return-value handling §4.7 describes.
package callback

import (
	"errors"
	"log"
	"runtime"

	"github.com/miken90/gonode/action"
	"github.com/miken90/gonode/keys"
	"github.com/miken90/gonode/xerrors"
)

var errQueueFull = errors.New("callback queue full")

// Emitter is the narrow surface a callback needs from its owning
// mapper: release/restore the live modifier state around the
// callback's own output, and replay a reparsed sequence.
type Emitter interface {
	ReleaseModifiers() []keys.Side
	RestoreModifiers([]keys.Side)
	EmitSequence([]action.Action)
}

// Fn is a script callback: given whether this edge is a key-down, it
// returns nil (no opinion, forward the edge), a bool (explicit
// forward/drop), a string (reparsed as a key sequence and played in
// place of forwarding), or an error.
type Fn func(down bool) (any, error)

// queueCapacity bounds the async job queue; a full queue is the same
// "too many events" backpressure condition the graph applies to link
// channels.
const queueCapacity = 256

// Bridge runs script callbacks on a fixed worker pool sized to
// GOMAXPROCS, off the goroutine of the mapper that observed the
// triggering key. An async callback never stalls that mapper; a
// synchronous one blocks it until the callback returns.
type Bridge struct {
	jobs  chan func()
	fatal func(error)
}

// New starts a bridge with GOMAXPROCS(0) workers.
func New(fatal func(error)) *Bridge {
	b := &Bridge{jobs: make(chan func(), queueCapacity), fatal: fatal}

	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		go b.worker()
	}

	return b
}

func (b *Bridge) worker() {
	for job := range b.jobs {
		job()
	}
}

func (b *Bridge) submit(job func()) bool {
	select {
	case b.jobs <- job:
		return true
	default:
		if b.fatal != nil {
			b.fatal(xerrors.Callback("Bridge.submit", errQueueFull))
		}

		return false
	}
}

// Callback binds one script function to one emitter, ready to satisfy
// mapper.Callback.
type Callback struct {
	bridge  *Bridge
	fn      Fn
	async   bool
	emitter Emitter
}

// New wraps fn as a mapper.Callback. async selects fire-and-forget
// dispatch (the triggering edge is always forwarded immediately,
// matching the original's non-blocking callback semantics) versus
// synchronous dispatch (the mapper goroutine blocks for the result).
func (b *Bridge) New(fn Fn, async bool, emitter Emitter) *Callback {
	return &Callback{bridge: b, fn: fn, async: async, emitter: emitter}
}

// Invoke implements mapper.Callback.
func (c *Callback) Invoke(down bool) bool {
	if c.async {
		c.bridge.submit(func() { c.run(down) })

		return true
	}

	result := make(chan bool, 1)
	if !c.bridge.submit(func() { result <- c.run(down) }) {
		return true
	}

	return <-result
}

func (c *Callback) run(down bool) bool {
	released := c.emitter.ReleaseModifiers()
	defer c.emitter.RestoreModifiers(released)

	result, err := c.fn(down)
	if err != nil {
		log.Printf("callback: %v", err)

		return true
	}

	switch v := result.(type) {
	case nil:
		return true
	case bool:
		return v
	case string:
		seq, err := action.ParseSequence(v)
		if err != nil {
			log.Printf("callback: return value %q: %v", v, err)

			return true
		}

		c.emitter.EmitSequence(seq)

		return false
	default:
		log.Printf("callback: unexpected return type %T", v)

		return true
	}
}
