//go:build linux

// Package device implements the two halves of §4.3/§4.4: a collector
// that discovers and grabs evdev nodes and a virtual-device emitter
// that writes through uinput.
package device

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
	"unsafe"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/miken90/gonode/evdevio"
	"github.com/miken90/gonode/graph"
	"github.com/miken90/gonode/keys"
	"github.com/miken90/gonode/xerrors"
)

const inputDir = "/dev/input"

// Reader is the device collector. It exposes one outbound node link;
// every per-device reader goroutine publishes into that same node,
// tagging events with its device id.
type Reader struct {
	*graph.Node

	patterns []*regexp.Regexp

	mu      sync.Mutex
	devices map[string]*deviceHandle
	ids     map[string]uuid.UUID

	watcher *fsnotify.Watcher
	closing chan struct{}
	wg      sync.WaitGroup
}

type deviceHandle struct {
	path string
	file *os.File
	id   uuid.UUID
	stop chan struct{}
}

// NewReader compiles the given path-regex patterns, grabs every
// currently-matching device under /dev/input, and starts a filesystem
// watcher for subsequent add/remove notifications.
func NewReader(patterns []string, fatal func(error)) (*Reader, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))

	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("device.NewReader: bad pattern %q: %w", p, err)
		}

		compiled = append(compiled, re)
	}

	r := &Reader{
		Node:     graph.NewNode(fatal),
		patterns: compiled,
		devices:  make(map[string]*deviceHandle),
		ids:      make(map[string]uuid.UUID),
		closing:  make(chan struct{}),
	}

	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, xerrors.Device("device.NewReader", fmt.Errorf("reading %s: %w", inputDir, err))
	}

	for _, e := range entries {
		path := filepath.Join(inputDir, e.Name())
		if r.matches(path) {
			if err := r.open(path); err != nil {
				log.Printf("device: %v", err)
			}
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, xerrors.Device("device.NewReader", fmt.Errorf("fsnotify: %w", err))
	}

	if err := watcher.Add(inputDir); err != nil {
		watcher.Close()
		return nil, xerrors.Device("device.NewReader", fmt.Errorf("watching %s: %w", inputDir, err))
	}

	r.watcher = watcher

	r.wg.Add(1)
	go r.watchLoop()

	return r, nil
}

func (r *Reader) matches(path string) bool {
	for _, re := range r.patterns {
		if re.MatchString(path) {
			return true
		}
	}

	return false
}

func (r *Reader) watchLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.closing:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				if r.matches(ev.Name) {
					if err := r.open(ev.Name); err != nil {
						log.Printf("device: %v", err)
					}
				}
			case ev.Op&fsnotify.Remove != 0:
				r.close(ev.Name)
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}

			log.Printf("device: watcher error: %v", err)
		}
	}
}

// open grabs a single device node exclusively and spawns its reader
// goroutine. Grab/open failures are logged and do not stop other
// devices, per the collector's error-isolation contract.
func (r *Reader) open(path string) error {
	r.mu.Lock()
	if _, already := r.devices[path]; already {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return xerrors.Device("device.open", fmt.Errorf("open %s: %w (permission denied?)", path, err))
	}

	grab := int32(1)
	if err := evdevio.Ioctl(f.Fd(), evdevio.EVIOCGRAB, unsafe.Pointer(&grab)); err != nil {
		f.Close()

		return xerrors.Device("device.open", fmt.Errorf("grab %s: %w", path, err))
	}

	r.mu.Lock()
	id, known := r.ids[path]
	if !known {
		id = uuid.New()
		r.ids[path] = id
	}

	h := &deviceHandle{path: path, file: f, id: id, stop: make(chan struct{})}
	r.devices[path] = h
	r.mu.Unlock()

	r.wg.Add(1)
	go r.readLoop(h)

	return nil
}

func (r *Reader) close(path string) {
	r.mu.Lock()
	h, ok := r.devices[path]
	if ok {
		delete(r.devices, path)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	close(h.stop)
}

const eventSize = int(unsafe.Sizeof(evdevio.InputEvent{}))

// readLoop streams normalized events from one device. EAGAIN/EWOULDBLOCK
// is a yield-and-retry condition; SYN_DROPPED switches into sync-drain
// mode until a fresh SYN_REPORT is observed; ENODEV terminates only
// this device's goroutine.
func (r *Reader) readLoop(h *deviceHandle) {
	defer r.wg.Done()
	defer h.file.Close()

	buf := make([]byte, eventSize)
	draining := false

	for {
		select {
		case <-h.stop:
			return
		case <-r.closing:
			return
		default:
		}

		n, err := h.file.Read(buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				time.Sleep(time.Millisecond)

				continue
			}

			if errors.Is(err, unix.ENODEV) {
				return
			}

			log.Printf("device %s: read error: %v", h.path, err)

			return
		}

		if n < eventSize {
			continue
		}

		ev := (*evdevio.InputEvent)(unsafe.Pointer(&buf[0]))

		if ev.Type == keys.EvSyn && ev.Code == evdevio.SynDropped {
			draining = true

			continue
		}

		if draining {
			if ev.Type == keys.EvSyn && ev.Code == evdevio.SynReport {
				draining = false
			}

			continue
		}

		out := graph.Event{
			Key:  keys.Key{Type: ev.Type, Code: ev.Code},
			From: h.id,
		}

		if ev.Type == keys.EvRel || ev.Type == keys.EvAbs {
			out.Axis = ev.Value
		} else {
			out.Value = ev.Value
		}

		r.SendAll(out)
	}
}

// Close tears down the watcher and every device goroutine, joining
// with a bounded timeout.
func (r *Reader) Close() error {
	close(r.closing)

	r.mu.Lock()
	for _, h := range r.devices {
		select {
		case <-h.stop:
		default:
			close(h.stop)
		}
	}
	r.devices = make(map[string]*deviceHandle)
	r.mu.Unlock()

	r.watcher.Close()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		log.Printf("device: Close timed out waiting for reader goroutines")
	}

	return nil
}
