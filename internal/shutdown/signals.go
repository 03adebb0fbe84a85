package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// Signals relays process signals into two flags: terminate (SIGTERM, SIGINT)
// and reopen (SIGHUP). The relay does nothing else.
type Signals struct {
	terminate atomic.Bool
	reopen    atomic.Bool

	once sync.Once
	ch   chan os.Signal
	stop chan struct{}
	done chan struct{}
}

// NewSignals returns an uninstalled relay.
func NewSignals() *Signals {
	return &Signals{
		ch:   make(chan os.Signal, 4),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Install starts relaying signals.
func (s *Signals) Install() {
	signal.Notify(s.ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	go s.relay()
}

func (s *Signals) relay() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case sig := <-s.ch:
			if sig == syscall.SIGHUP {
				s.reopen.Store(true)
			} else {
				s.terminate.Store(true)
			}
		}
	}
}

// Uninstall stops relaying and restores default signal handling.
func (s *Signals) Uninstall() {
	s.once.Do(func() {
		signal.Stop(s.ch)
		close(s.stop)
	})
}

// RequestTerminate sets the terminate flag.
func (s *Signals) RequestTerminate() { s.terminate.Store(true) }

// RequestReopen sets the reopen flag.
func (s *Signals) RequestReopen() { s.reopen.Store(true) }

// TerminateRequested reports whether the terminate flag is set.
func (s *Signals) TerminateRequested() bool { return s.terminate.Load() }

// TakeReopen clears the reopen flag and reports whether it was set.
func (s *Signals) TakeReopen() bool { return s.reopen.Swap(false) }
