// Package focus implements the window-focus oracle: it watches the X11
// root window's _NET_ACTIVE_WINDOW property and resolves the focused
// window's WM_CLASS, notifying registered callbacks on every change.
package focus

import (
	"fmt"
	"log"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"github.com/miken90/gonode/xerrors"
)

// Change describes a focus transition.
type Change struct {
	Window xproto.Window
	Class  string // the second WM_CLASS string, conventionally the application class
}

// Handler is called on every focus change, from the oracle's own
// goroutine.
type Handler func(Change)

// Oracle owns the X11 connection used purely to track focus; it never
// injects input (that stays with the collector/emitter).
type Oracle struct {
	conn *xgb.Conn
	root xproto.Window

	netActiveWindow xproto.Atom
	wmClass         xproto.Atom

	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int
	last     xproto.Window

	quit chan struct{}
	done chan struct{}
}

// New connects to the X server named by the DISPLAY environment
// variable (xgb.NewConn's default) and starts watching for focus
// changes.
func New() (*Oracle, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, xerrors.Platform("focus.New", fmt.Errorf("connect to X server: %w", err))
	}

	setup := xproto.Setup(conn)
	root := setup.DefaultScreen(conn).Root

	activeAtom, err := internAtom(conn, "_NET_ACTIVE_WINDOW")
	if err != nil {
		conn.Close()
		return nil, err
	}

	classAtom, err := internAtom(conn, "WM_CLASS")
	if err != nil {
		conn.Close()
		return nil, err
	}

	o := &Oracle{
		conn:            conn,
		root:            root,
		netActiveWindow: activeAtom,
		wmClass:         classAtom,
		handlers:        make(map[int]Handler),
		quit:            make(chan struct{}),
		done:            make(chan struct{}),
	}

	mask := []uint32{xproto.EventMaskPropertyChange}
	xproto.ChangeWindowAttributes(conn, root, xproto.CwEventMask, mask)

	go o.run()

	return o, nil
}

func internAtom(conn *xgb.Conn, name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, xerrors.Platform("focus.internAtom", fmt.Errorf("intern %s: %w", name, err))
	}

	return reply.Atom, nil
}

// OnWindowChange registers a handler, returning a token usable with
// RemoveOnWindowChange.
func (o *Oracle) OnWindowChange(h Handler) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++
	o.handlers[id] = h

	return id
}

// RemoveOnWindowChange unregisters a previously-registered handler.
func (o *Oracle) RemoveOnWindowChange(token int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.handlers, token)
}

func (o *Oracle) run() {
	defer close(o.done)

	for {
		select {
		case <-o.quit:
			return
		default:
		}

		ev, err := o.conn.WaitForEvent()
		if err != nil {
			log.Printf("focus: %v", err)

			continue
		}

		if ev == nil {
			continue
		}

		pn, ok := ev.(xproto.PropertyNotifyEvent)
		if !ok || pn.Atom != o.netActiveWindow {
			continue
		}

		o.resolveAndNotify()
	}
}

func (o *Oracle) resolveAndNotify() {
	win, ok := o.activeWindow()
	if !ok {
		return
	}

	o.mu.Lock()
	if win == o.last {
		o.mu.Unlock()

		return
	}
	o.last = win
	handlers := make([]Handler, 0, len(o.handlers))
	for _, h := range o.handlers {
		handlers = append(handlers, h)
	}
	o.mu.Unlock()

	class := o.windowClass(win)
	change := Change{Window: win, Class: class}

	for _, h := range handlers {
		h(change)
	}
}

func (o *Oracle) activeWindow() (xproto.Window, bool) {
	prop, err := xproto.GetProperty(o.conn, false, o.root, o.netActiveWindow,
		xproto.AtomWindow, 0, 1).Reply()
	if err != nil || prop == nil || len(prop.Value) < 4 {
		return 0, false
	}

	win := xproto.Window(uint32(prop.Value[0]) | uint32(prop.Value[1])<<8 |
		uint32(prop.Value[2])<<16 | uint32(prop.Value[3])<<24)

	return win, win != 0
}

func (o *Oracle) windowClass(win xproto.Window) string {
	prop, err := xproto.GetProperty(o.conn, false, win, o.wmClass,
		xproto.AtomString, 0, 1024).Reply()
	if err != nil || prop == nil {
		return ""
	}

	parts := splitNul(string(prop.Value))
	if len(parts) < 2 {
		if len(parts) == 1 {
			return parts[0]
		}

		return ""
	}

	return parts[1]
}

func splitNul(s string) []string {
	var out []string

	start := 0

	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			if i > start {
				out = append(out, s[start:i])
			}

			start = i + 1
		}
	}

	if start < len(s) {
		out = append(out, s[start:])
	}

	return out
}

// Close tears down the X11 connection, ending the run loop.
func (o *Oracle) Close() error {
	close(o.quit)
	o.conn.Close()
	<-o.done

	return nil
}
