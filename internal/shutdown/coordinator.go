package shutdown

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"coind/internal/logging"
)

// Phase orders teardown hooks. Hooks run in ascending phase order and in
// registration order within a phase.
type Phase int

const (
	PhaseControl Phase = iota
	PhaseNetwork
	PhaseCompute
	PhaseWorkers
	PhaseKeyStore
	PhaseStorage
	PhasePIDFile
	PhaseLock
	PhaseUnregister
)

var phaseNames = map[Phase]string{
	PhaseControl:    "control",
	PhaseNetwork:    "network",
	PhaseCompute:    "compute",
	PhaseWorkers:    "workers",
	PhaseKeyStore:   "keystore",
	PhaseStorage:    "storage",
	PhasePIDFile:    "pidfile",
	PhaseLock:       "lock",
	PhaseUnregister: "unregister",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// DefaultPollInterval is how often Watch checks the signal flags.
const DefaultPollInterval = 200 * time.Millisecond

// Options configures a Coordinator.
type Options struct {
	Logger       *slog.Logger
	Signals      *Signals
	PollInterval time.Duration
	// Reopen is called from Watch when the reopen flag was set.
	Reopen func() error
	// OnHook observes every teardown hook after it ran.
	OnHook func(phase Phase, name string, elapsed time.Duration, err error)
}

type hook struct {
	phase Phase
	seq   int
	name  string
	fn    func(ctx context.Context) error
}

// Coordinator collects teardown hooks and runs them once.
type Coordinator struct {
	gate    Gate
	signals *Signals
	logger  *slog.Logger
	opts    Options

	mu     sync.Mutex
	hooks  []hook
	reason string
	wake   chan struct{}
	done   chan struct{}
}

// NewCoordinator returns a coordinator with an armed gate.
func NewCoordinator(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	signals := opts.Signals
	if signals == nil {
		signals = NewSignals()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Coordinator{
		signals: signals,
		logger:  logging.NewComponentLogger(logger, "shutdown"),
		opts:    opts,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Signals returns the flag relay the coordinator watches.
func (c *Coordinator) Signals() *Signals { return c.signals }

func (c *Coordinator) log() *slog.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// OnShutdown registers fn to run during teardown. Registration after the gate
// fired is ignored.
func (c *Coordinator) OnShutdown(phase Phase, name string, fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gate.State() != Armed {
		return
	}
	c.hooks = append(c.hooks, hook{phase: phase, seq: len(c.hooks), name: name, fn: fn})
}

// Request asks for shutdown without running it. The first reason wins.
func (c *Coordinator) Request(reason string) {
	c.mu.Lock()
	if c.reason == "" {
		c.reason = reason
	}
	c.mu.Unlock()
	c.signals.RequestTerminate()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Requested reports whether termination was requested.
func (c *Coordinator) Requested() bool {
	return c.signals.TerminateRequested()
}

// Reason returns the first recorded shutdown reason.
func (c *Coordinator) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reason == "" && c.signals.TerminateRequested() {
		return "signal"
	}
	return c.reason
}

// Watch polls the signal flags until termination is requested or ctx is
// done, forwarding reopen requests along the way. It returns the reason.
func (c *Coordinator) Watch(ctx context.Context) string {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		if c.signals.TakeReopen() && c.opts.Reopen != nil {
			if err := c.opts.Reopen(); err != nil {
				c.log().Warn("log reopen failed", logging.Error(err))
			} else {
				c.log().Info("log files reopened")
			}
		}
		if c.signals.TerminateRequested() {
			return c.Reason()
		}
		select {
		case <-ctx.Done():
			return "context cancelled"
		case <-c.wake:
		case <-ticker.C:
		}
	}
}

// Shutdown runs teardown if no other caller has. It returns false without
// waiting when the gate already fired.
func (c *Coordinator) Shutdown(reason string) bool {
	if !c.gate.TryFire() {
		return false
	}
	c.mu.Lock()
	if c.reason == "" {
		c.reason = reason
	}
	hooks := append([]hook(nil), c.hooks...)
	logger := c.logger
	c.mu.Unlock()
	c.signals.RequestTerminate()

	sort.SliceStable(hooks, func(i, j int) bool {
		if hooks[i].phase != hooks[j].phase {
			return hooks[i].phase < hooks[j].phase
		}
		return hooks[i].seq < hooks[j].seq
	})

	started := time.Now()
	logger.Info("shutdown started", logging.String(logging.FieldReason, reason))
	ctx := context.Background()
	for _, h := range hooks {
		hookStarted := time.Now()
		err := c.runHook(ctx, h)
		elapsed := time.Since(hookStarted)
		if err != nil {
			logger.Warn("shutdown step failed",
				logging.String(logging.FieldEventType, "shutdown_step_failed"),
				logging.String(logging.FieldStep, h.name),
				logging.String("phase", h.phase.String()),
				logging.Error(err),
			)
		} else {
			logger.Debug("shutdown step done",
				logging.String(logging.FieldStep, h.name),
				logging.String("phase", h.phase.String()),
				logging.Duration("elapsed", elapsed),
			)
		}
		if c.opts.OnHook != nil {
			c.opts.OnHook(h.phase, h.name, elapsed, err)
		}
	}
	logger.Info("shutdown complete", logging.Duration("elapsed", time.Since(started)))
	c.gate.Complete()
	close(c.done)
	return true
}

func (c *Coordinator) runHook(ctx context.Context, h hook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("shutdown step %s panicked: %v", h.name, r)
		}
	}()
	return h.fn(ctx)
}

// State returns the gate state.
func (c *Coordinator) State() GateState { return c.gate.State() }

// Done is closed once teardown has finished.
func (c *Coordinator) Done() <-chan struct{} { return c.done }
