package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"coind/internal/logging"
)

// Flushable is a store with a write counter.
type Flushable interface {
	Updates() uint64
	Flush(ctx context.Context) error
}

// FlushOptions configures a WalletFlusher.
type FlushOptions struct {
	Logger *slog.Logger
	// Poll is how often the write counter is checked.
	Poll time.Duration
	// Settle is how long the counter must stay unchanged before a flush.
	Settle time.Duration
}

// WalletFlusher checkpoints the key store once writes have settled.
type WalletFlusher struct {
	store  Flushable
	opts   FlushOptions
	logger *slog.Logger

	flushes atomic.Int64
}

// NewWalletFlusher returns a flusher for store.
func NewWalletFlusher(store Flushable, opts FlushOptions) *WalletFlusher {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Poll <= 0 {
		opts.Poll = 500 * time.Millisecond
	}
	if opts.Settle <= 0 {
		opts.Settle = 2 * time.Second
	}
	return &WalletFlusher{store: store, opts: opts, logger: logging.NewComponentLogger(logger, "keystore")}
}

// Flushes returns the number of completed flushes.
func (w *WalletFlusher) Flushes() int64 { return w.flushes.Load() }

// Run polls until ctx is done.
func (w *WalletFlusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.Poll)
	defer ticker.Stop()

	flushed := w.store.Updates()
	seen := flushed
	changedAt := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		current := w.store.Updates()
		if current != seen {
			seen = current
			changedAt = time.Now()
			continue
		}
		if seen == flushed || time.Since(changedAt) < w.opts.Settle {
			continue
		}
		started := time.Now()
		if err := w.store.Flush(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("key store flush failed",
				logging.String(logging.FieldEventType, "keystore_flush_failed"),
				logging.Error(err),
				logging.String(logging.FieldImpact, "recent key store writes stay in the write-ahead log"),
				logging.String(logging.FieldErrorHint, "check disk space in the data directory"),
			)
			continue
		}
		flushed = seen
		w.flushes.Add(1)
		w.logger.Debug("key store flushed", logging.Duration("elapsed", time.Since(started)))
	}
}
