// Package supervisor owns process lifetime: it tracks every
// constructed component in construction order, installs the SIGINT
// guard, and tears everything down in reverse order on exit.
package supervisor

import (
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/miken90/gonode/xerrors"
)

// Closer is anything the supervisor can tear down on exit.
type Closer interface {
	Close() error
}

// Supervisor serializes shutdown: components are closed in the reverse
// of the order they were registered, mirroring how a constructor chain
// would unwind if it used defer.
type Supervisor struct {
	mu      sync.Mutex
	closers []Closer

	exitCode int
	exitCh   chan struct{}
	once     sync.Once
}

// New returns a supervisor ready to track components.
func New() *Supervisor {
	return &Supervisor{exitCh: make(chan struct{})}
}

// Track registers c for teardown. Call this immediately after a
// component is successfully constructed.
func (s *Supervisor) Track(c Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closers = append(s.closers, c)
}

// Fatal is the callback every graph node and mapper is given; it logs
// the error and requests shutdown with the error's exit code.
func (s *Supervisor) Fatal(err error) {
	log.Printf("fatal: %v", err)

	code := 1
	if xe, ok := err.(*xerrors.Error); ok {
		code = xe.Kind.ExitCode()
	}

	s.Exit(code)
}

// Exit requests shutdown with the given process exit code. Only the
// first call takes effect; subsequent calls are no-ops so a cascade of
// fatal errors during teardown does not change the recorded code.
func (s *Supervisor) Exit(code int) {
	s.once.Do(func() {
		s.exitCode = code
		close(s.exitCh)
	})
}

// Wait blocks until SIGINT/SIGTERM or Exit is observed, tears down
// every tracked component in reverse registration order, and returns
// the process exit code.
func (s *Supervisor) Wait() int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		s.Exit(0)
	case <-s.exitCh:
	}

	signal.Stop(sigCh)

	s.mu.Lock()
	closers := append([]Closer(nil), s.closers...)
	s.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			log.Printf("supervisor: close: %v", err)
		}
	}

	return s.exitCode
}
