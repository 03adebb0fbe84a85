// Package bootstrap runs the daemon's startup steps in order.
//
// Each step yields OK, Warning or Fatal. A Fatal step stops the sequence and
// its error is returned; steps that already ran are not undone here. Between
// steps the sequencer checks the interrupt predicate and returns
// ErrInterrupted when termination was requested.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"coind/internal/logging"
)

// ErrInterrupted reports that startup stopped because shutdown was requested.
var ErrInterrupted = errors.New("startup interrupted")

// Outcome is the result of one step.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeWarning
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeWarning:
		return "warning"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Step is one startup stage.
type Step struct {
	Name string
	// Critical steps abort startup on error unless the error is a Warning.
	// Errors from non-critical steps are always warnings.
	Critical bool
	Run      func(ctx context.Context) error
}

type warning struct{ err error }

func (w *warning) Error() string { return w.err.Error() }
func (w *warning) Unwrap() error { return w.err }

// Warning marks err as non-fatal: the step is reported and startup continues.
func Warning(err error) error {
	if err == nil {
		return nil
	}
	return &warning{err: err}
}

// IsWarning reports whether err was marked with Warning.
func IsWarning(err error) bool {
	var w *warning
	return errors.As(err, &w)
}

// Report describes how one step went.
type Report struct {
	Step    string
	Outcome Outcome
	Elapsed time.Duration
	Err     error
}

// Options configures Run.
type Options struct {
	Logger *slog.Logger
	// Interrupted is polled before every step.
	Interrupted func() bool
	// Observe is called after every step.
	Observe func(Report)
}

// StepError wraps the error of the step that stopped startup.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// Run executes steps in order. It returns the reports of the steps that ran
// and, on a Fatal step or interruption, the error that stopped the sequence.
func Run(ctx context.Context, steps []Step, opts Options) ([]Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	reports := make([]Report, 0, len(steps))
	for i, step := range steps {
		if interrupted(ctx, opts) {
			logger.Info("startup interrupted",
				logging.String(logging.FieldEventType, "startup_interrupted"),
				logging.String("next_step", step.Name),
			)
			return reports, ErrInterrupted
		}

		stepLogger := logger.With(logging.String(logging.FieldStep, step.Name))
		stepLogger.Debug("step started", logging.Int("index", i+1), logging.Int("total", len(steps)))
		started := time.Now()
		err := step.Run(ctx)
		report := Report{Step: step.Name, Elapsed: time.Since(started), Err: err}

		switch {
		case err == nil:
			report.Outcome = OutcomeOK
			stepLogger.Info("step complete", logging.Duration("elapsed", report.Elapsed))
		case IsWarning(err) || !step.Critical:
			report.Outcome = OutcomeWarning
			logging.WarnWithContext(stepLogger, "step completed with warning",
				"step_warning",
				logging.Duration("elapsed", report.Elapsed),
				logging.Error(err),
				logging.String(logging.FieldImpact, "startup continues"),
			)
		default:
			report.Outcome = OutcomeFatal
			stepLogger.Error("step failed",
				logging.String(logging.FieldEventType, "step_failed"),
				logging.Duration("elapsed", report.Elapsed),
				logging.Error(err),
			)
		}
		reports = append(reports, report)
		if opts.Observe != nil {
			opts.Observe(report)
		}
		if report.Outcome == OutcomeFatal {
			return reports, &StepError{Step: step.Name, Err: err}
		}
	}
	return reports, nil
}

func interrupted(ctx context.Context, opts Options) bool {
	if ctx.Err() != nil {
		return true
	}
	return opts.Interrupted != nil && opts.Interrupted()
}
