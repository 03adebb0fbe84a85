// Package threadgroup owns the daemon's background workers. Every worker is
// started through a Group so shutdown can interrupt and then join all of them.
package threadgroup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"coind/internal/logging"
)

// ErrClosed is returned by Go after InterruptAll.
var ErrClosed = errors.New("thread group interrupted")

// Func is a worker body. It must return promptly once ctx is done.
type Func func(ctx context.Context) error

// Options configures a Group.
type Options struct {
	Logger *slog.Logger
	// OnError is called when a worker returns an error other than the
	// context's own cancellation.
	OnError func(name string, err error)
	// OnStart is called just before a worker's goroutine starts.
	OnStart func(name string)
}

type task struct {
	name    string
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
	err     error
}

// Group is a registry of running workers.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
	opts   Options

	mu     sync.Mutex
	tasks  map[string]*task
	order  []string
	closed bool
	eg     errgroup.Group
}

// New returns an empty group whose workers derive from parent.
func New(parent context.Context, opts Options) *Group {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Group{
		ctx:    ctx,
		cancel: cancel,
		logger: logging.NewComponentLogger(logger, "threads"),
		opts:   opts,
		tasks:  make(map[string]*task),
	}
}

// Go registers fn under name and starts it. Names are unique for the life of
// the group.
func (g *Group) Go(name string, fn Func) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return fmt.Errorf("start %s: %w", name, ErrClosed)
	}
	if _, exists := g.tasks[name]; exists {
		g.mu.Unlock()
		return fmt.Errorf("worker %s already registered", name)
	}
	ctx, cancel := context.WithCancel(g.ctx)
	t := &task{name: name, cancel: cancel, done: make(chan struct{}), started: time.Now()}
	g.tasks[name] = t
	g.order = append(g.order, name)
	// Registered with the errgroup under mu so JoinAll never races an Add.
	start := make(chan struct{})
	g.eg.Go(func() error {
		<-start
		g.run(ctx, t, fn)
		return nil
	})
	g.mu.Unlock()

	if g.opts.OnStart != nil {
		g.opts.OnStart(name)
	}
	g.logger.Debug("worker started", logging.String("worker", name))
	close(start)
	return nil
}

func (g *Group) run(ctx context.Context, t *task, fn Func) {
	defer close(t.done)
	defer t.cancel()

	err := g.call(ctx, t.name, fn)
	g.mu.Lock()
	t.err = err
	g.mu.Unlock()

	elapsed := time.Since(t.started)
	if err == nil || (ctx.Err() != nil && errors.Is(err, context.Canceled)) {
		g.logger.Debug("worker exited", logging.String("worker", t.name), logging.Duration("ran_for", elapsed))
		return
	}
	g.logger.Error("worker failed",
		logging.String("worker", t.name),
		logging.String(logging.FieldEventType, "worker_failed"),
		logging.Duration("ran_for", elapsed),
		logging.Error(err),
	)
	if g.opts.OnError != nil {
		g.opts.OnError(t.name, err)
	}
}

func (g *Group) call(ctx context.Context, name string, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %s panicked: %v\n%s", name, r, debug.Stack())
		}
	}()
	return fn(ctx)
}

// Interrupt cancels the named worker. It reports whether the worker exists.
func (g *Group) Interrupt(name string) bool {
	g.mu.Lock()
	t, ok := g.tasks[name]
	g.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	return true
}

// Wait blocks until the named worker has exited or ctx is done.
func (g *Group) Wait(ctx context.Context, name string) error {
	g.mu.Lock()
	t, ok := g.tasks[name]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown worker %s", name)
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InterruptAll cancels every worker and refuses new ones.
func (g *Group) InterruptAll() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cancel()
}

// JoinAll blocks until every registered worker has exited. Worker failures
// are reported through Options.OnError, not here.
func (g *Group) JoinAll() {
	_ = g.eg.Wait()
}

// Err returns the error the named worker exited with.
func (g *Group) Err(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.tasks[name]; ok {
		return t.err
	}
	return nil
}

// Running returns the names of workers that have not exited, sorted.
func (g *Group) Running() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var names []string
	for _, name := range g.order {
		select {
		case <-g.tasks[name].done:
		default:
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Len returns the number of workers ever registered.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.order)
}
