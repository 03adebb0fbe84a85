package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"coind/internal/bootstrap"
	"coind/internal/config"
	"coind/internal/instance"
	"coind/internal/ipc"
	"coind/internal/keystore"
	"coind/internal/ledger"
	"coind/internal/logging"
	"coind/internal/metrics"
	"coind/internal/p2p"
	"coind/internal/shutdown"
	"coind/internal/storage"
	"coind/internal/threadgroup"
	"coind/internal/workers"
)

// Options configures a Daemon.
type Options struct {
	// Params holds the operator's options. The config file is merged into it
	// during startup.
	Params *config.Params
	// Console receives log output until the data directory log is open.
	// Defaults to stderr.
	Console *os.File
	// Signals overrides the process signal relay.
	Signals      *shutdown.Signals
	PollInterval time.Duration
	// Observe is called after every startup step.
	Observe func(bootstrap.Report)
	// OnWorkerStart is called whenever a worker is spawned.
	OnWorkerStart func(name string)
	// OnReady is called once startup completed, before the daemon waits for
	// a shutdown request.
	OnReady func()
	// OnTeardown is called after each teardown hook ran.
	OnTeardown func(phase shutdown.Phase, name string)
}

// Daemon is the daemon context: one per process, built before any
// subsystem starts.
type Daemon struct {
	params    *config.Params
	opts      Options
	runID     string
	logSwitch *logging.Switch
	console   slog.Handler
	logger    *slog.Logger
	coord     *shutdown.Coordinator
	metrics   *metrics.Metrics

	// Handles below are written once on the control goroutine during
	// startup and only read afterwards.
	startedAt     time.Time
	settings      *config.Settings
	lock          *instance.Lock
	output        *logging.Output
	env           *storage.Environment
	store         *keystore.Store
	index         *ledger.Index
	group         *threadgroup.Group
	listeners     *p2p.Listeners
	connector     *p2p.Connector
	mixpool       *workers.MixPool
	staker        *workers.Staker
	voter         *workers.Voter
	rpc           *ipc.Server
	metricsServer *metrics.Server

	mu      sync.Mutex
	reports []bootstrap.Report
	// workerErr is the first worker failure.
	workerErr error
}

// New builds the daemon context. Nothing is started.
func New(opts Options) (*Daemon, error) {
	if opts.Params == nil {
		return nil, errors.New("daemon requires a parameter set")
	}
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	runID := uuid.NewString()
	bootHandler := logging.NewBootstrap(console, runID).Handler()
	logSwitch := logging.NewSwitch(bootHandler)
	logger := slog.New(logSwitch)

	d := &Daemon{
		params:    opts.Params,
		opts:      opts,
		runID:     runID,
		logSwitch: logSwitch,
		console:   bootHandler,
		logger:    logger,
		metrics:   metrics.New(),
	}
	d.coord = shutdown.NewCoordinator(shutdown.Options{
		Logger:       logger,
		Signals:      opts.Signals,
		PollInterval: opts.PollInterval,
		Reopen:       d.reopenLogs,
		OnHook: func(phase shutdown.Phase, name string, elapsed time.Duration, err error) {
			d.metrics.ObserveHook(phase.String(), elapsed, err)
			if opts.OnTeardown != nil {
				opts.OnTeardown(phase, name)
			}
		},
	})
	return d, nil
}

// RunID identifies this run in every log record.
func (d *Daemon) RunID() string { return d.runID }

// Run starts every subsystem in order, waits for a shutdown request and
// tears down what was started. It returns bootstrap.ErrInterrupted when a
// shutdown was requested during startup, the worker's error when a worker
// failure interrupted startup, and the failing step's error when startup
// failed. A failed startup does not run teardown.
func (d *Daemon) Run(ctx context.Context) error {
	signals := d.coord.Signals()
	signals.Install()
	defer signals.Uninstall()

	d.startedAt = time.Now()
	d.group = threadgroup.New(ctx, threadgroup.Options{
		Logger:  d.logger,
		OnError: d.workerFailed,
		OnStart: d.opts.OnWorkerStart,
	})
	d.logger.Info("coind starting",
		logging.String(logging.FieldEventType, "daemon_starting"),
		logging.Int("pid", os.Getpid()),
	)

	_, err := bootstrap.Run(ctx, d.steps(), bootstrap.Options{
		Logger:      d.logger,
		Interrupted: d.coord.Requested,
		Observe:     d.observe,
	})
	switch {
	case errors.Is(err, bootstrap.ErrInterrupted):
		d.coord.Shutdown(d.coord.Reason())
		if werr := d.workerFailure(); werr != nil {
			return fmt.Errorf("startup interrupted: %w", werr)
		}
		return err
	case err != nil:
		logging.ErrorWithContext(d.logger, "startup failed", "startup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the reported problem and start coind again"),
		)
		return err
	}

	d.logger.Info("coind started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("network", string(d.settings.Network)),
		logging.String("data_dir", d.settings.DataDir),
		logging.Duration("elapsed", time.Since(d.startedAt)),
	)
	if d.opts.OnReady != nil {
		d.opts.OnReady()
	}
	reason := d.coord.Watch(ctx)
	d.coord.Shutdown(reason)
	return nil
}

// RequestShutdown asks the control path to shut down and returns at once.
func (d *Daemon) RequestShutdown(reason string) {
	d.coord.Request(reason)
}

// Done is closed once teardown has finished.
func (d *Daemon) Done() <-chan struct{} { return d.coord.Done() }

// Reports returns the results of the startup steps run so far.
func (d *Daemon) Reports() []bootstrap.Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]bootstrap.Report(nil), d.reports...)
}

func (d *Daemon) observe(report bootstrap.Report) {
	d.mu.Lock()
	d.reports = append(d.reports, report)
	d.mu.Unlock()
	d.metrics.ObserveStep(report.Step, report.Outcome.String(), report.Elapsed)
	if d.opts.Observe != nil {
		d.opts.Observe(report)
	}
}

func (d *Daemon) workerFailed(name string, err error) {
	d.metrics.WorkerFailed(name)
	d.mu.Lock()
	if d.workerErr == nil {
		d.workerErr = fmt.Errorf("worker %s failed: %w", name, err)
	}
	d.mu.Unlock()
	d.coord.Request("worker " + name + " failed")
}

func (d *Daemon) workerFailure() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.workerErr
}

func (d *Daemon) reopenLogs() error {
	return d.output.Reopen()
}
