// Package p2p binds the peer listening sockets and runs their accept loops.
//
// The peer wire protocol is not implemented here: accepted connections get a
// version banner and are held open until the peer leaves or the node stops.
// Accept loops are handed to the daemon's thread group so shutdown can
// interrupt and join them.
package p2p

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"coind/internal/logging"
)

// ErrBindFailure reports that a required listening socket could not be opened.
var ErrBindFailure = errors.New("failed to bind listening socket")

// Banner is written to every accepted peer.
const Banner = "coind/1\n"

// Options configures Bind.
type Options struct {
	Logger *slog.Logger
	// Binds are explicit listen addresses. Each must bind.
	Binds []string
	// Port is used for the wildcard binds when Binds is empty.
	Port           int
	MaxConnections int
	Timeout        time.Duration
}

// Loop is one accept loop, run as a thread group worker.
type Loop struct {
	Name string
	Run  func(ctx context.Context) error
}

// Listeners owns the bound sockets and the connections accepted on them.
type Listeners struct {
	logger    *slog.Logger
	listeners []net.Listener
	maxConns  int
	timeout   time.Duration

	active atomic.Int64
	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	once   sync.Once
}

// Bind opens the listening sockets. With explicit binds every address must
// succeed. Without them the node tries [::] and then 0.0.0.0 on Port and
// needs at least one to bind.
func Bind(opts Options) (*Listeners, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "net")
	l := &Listeners{
		logger:   logger,
		maxConns: opts.MaxConnections,
		timeout:  opts.Timeout,
		conns:    make(map[net.Conn]struct{}),
	}

	if len(opts.Binds) > 0 {
		for _, addr := range opts.Binds {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				l.closeListeners()
				return nil, fmt.Errorf("%w: %s: %v", ErrBindFailure, addr, err)
			}
			l.add(ln)
		}
		return l, nil
	}

	port := strconv.Itoa(opts.Port)
	if ln, err := net.Listen("tcp6", net.JoinHostPort("::", port)); err == nil {
		l.add(ln)
	} else {
		logger.Debug("IPv6 wildcard bind failed", logging.Error(err))
	}
	ln, err := net.Listen("tcp4", net.JoinHostPort("0.0.0.0", port))
	switch {
	case err == nil:
		l.add(ln)
	case len(l.listeners) == 0:
		return nil, fmt.Errorf("%w: port %s: %v", ErrBindFailure, port, err)
	default:
		logger.Debug("IPv4 wildcard bind failed", logging.Error(err))
	}
	return l, nil
}

func (l *Listeners) add(ln net.Listener) {
	l.listeners = append(l.listeners, ln)
	l.logger.Info("listening for peers", logging.String("address", ln.Addr().String()))
}

// Addrs returns the bound addresses.
func (l *Listeners) Addrs() []net.Addr {
	addrs := make([]net.Addr, 0, len(l.listeners))
	for _, ln := range l.listeners {
		addrs = append(addrs, ln.Addr())
	}
	return addrs
}

// Active returns the number of open peer connections.
func (l *Listeners) Active() int64 { return l.active.Load() }

// Loops returns one accept loop per socket.
func (l *Listeners) Loops() []Loop {
	loops := make([]Loop, 0, len(l.listeners))
	for _, ln := range l.listeners {
		loops = append(loops, Loop{
			Name: "net-accept " + ln.Addr().String(),
			Run:  func(ctx context.Context) error { return l.acceptLoop(ctx, ln) },
		})
	}
	return loops
}

func (l *Listeners) acceptLoop(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.logger.Warn("accept failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "net_accept_failed"),
				logging.String(logging.FieldImpact, "inbound peers may fail to connect"),
				logging.String(logging.FieldErrorHint, "check file descriptor limits"))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if !l.track(conn) {
			_ = conn.Close()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer l.untrack(conn)
			l.serve(ctx, conn)
		}()
	}
}

func (l *Listeners) track(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	if l.maxConns > 0 && len(l.conns) >= l.maxConns {
		l.logger.Debug("peer rejected, connection limit reached", logging.String("peer", conn.RemoteAddr().String()))
		return false
	}
	l.conns[conn] = struct{}{}
	l.active.Add(1)
	return true
}

func (l *Listeners) untrack(conn net.Conn) {
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
	l.active.Add(-1)
	_ = conn.Close()
}

func (l *Listeners) serve(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if l.timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(l.timeout))
	}
	if _, err := conn.Write([]byte(Banner)); err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Time{})
	buf := make([]byte, 512)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}

// Close closes every socket and peer connection. Accept loops return once
// their socket is closed.
func (l *Listeners) Close() error {
	var errs []error
	l.once.Do(func() {
		errs = l.closeListeners()
		l.mu.Lock()
		l.closed = true
		for conn := range l.conns {
			_ = conn.Close()
		}
		l.mu.Unlock()
	})
	return errors.Join(errs...)
}

func (l *Listeners) closeListeners() []error {
	var errs []error
	for _, ln := range l.listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errs
}
