package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"coind/internal/logging"
)

// MixPoolOptions configures a MixPool.
type MixPoolOptions struct {
	Logger *slog.Logger
	// Rounds is the number of mixing rounds requested (-darksendrounds).
	Rounds int
	// LiquidityProvider is the provider frequency, 0 when off.
	LiquidityProvider int
	Interval          time.Duration
	// EntryTimeout is how long a queued entry may wait.
	EntryTimeout time.Duration
	Now          func() time.Time
}

// MixPool keeps the local mixing queue tidy: it expires entries that waited
// longer than EntryTimeout.
type MixPool struct {
	opts   MixPoolOptions
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]time.Time
	expired int
}

// NewMixPool returns an empty pool.
func NewMixPool(opts MixPoolOptions) *MixPool {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.EntryTimeout <= 0 {
		opts.EntryTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &MixPool{opts: opts, logger: logging.NewComponentLogger(logger, "mixpool"), entries: make(map[string]time.Time)}
}

// Join queues an entry.
func (p *MixPool) Join(id string) {
	p.mu.Lock()
	p.entries[id] = p.opts.Now()
	p.mu.Unlock()
}

// Entries returns the number of queued entries.
func (p *MixPool) Entries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Expired returns the number of entries dropped for waiting too long.
func (p *MixPool) Expired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.expired
}

// CheckTimeout drops stale entries and returns how many were removed.
func (p *MixPool) CheckTimeout() int {
	cutoff := p.opts.Now().Add(-p.opts.EntryTimeout)
	p.mu.Lock()
	defer p.mu.Unlock()
	var removed int
	for id, joined := range p.entries {
		if joined.Before(cutoff) {
			delete(p.entries, id)
			removed++
		}
	}
	p.expired += removed
	return removed
}

// Run expires entries every Interval until ctx is done.
func (p *MixPool) Run(ctx context.Context) error {
	p.logger.Info("mixing pool maintenance started",
		logging.Int("rounds", p.opts.Rounds),
		logging.Int("liquidity_provider", p.opts.LiquidityProvider),
	)
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if removed := p.CheckTimeout(); removed > 0 {
			p.logger.Debug("mixing entries expired", logging.Int("removed", removed))
		}
	}
}
