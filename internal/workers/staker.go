package workers

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"

	"coind/internal/ledger"
	"coind/internal/logging"
)

// ChainTip reports the best block.
type ChainTip interface {
	Tip() (int64, ledger.Hash)
}

// KeySource supplies the staking key.
type KeySource interface {
	DefaultKey(ctx context.Context) (ed25519.PrivateKey, error)
}

// StakerOptions configures a Staker.
type StakerOptions struct {
	Logger *slog.Logger
	// Interval is the pause between attempts (-minersleep).
	Interval time.Duration
	Now      func() time.Time
}

// Staker computes a stake kernel against the tip on every tick. Block
// production belongs to the consensus engine.
type Staker struct {
	chain  ChainTip
	keys   KeySource
	opts   StakerOptions
	logger *slog.Logger

	attempts atomic.Int64
	hits     atomic.Int64
}

// NewStaker returns a staker over chain using the default key from keys.
func NewStaker(chain ChainTip, keys KeySource, opts StakerOptions) *Staker {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Staker{chain: chain, keys: keys, opts: opts, logger: logging.NewComponentLogger(logger, "staker")}
}

// Attempts returns the number of kernels computed.
func (s *Staker) Attempts() int64 { return s.attempts.Load() }

// Hits returns the number of kernels that met the target.
func (s *Staker) Hits() int64 { return s.hits.Load() }

// Run loops until ctx is done. Without a usable key it logs and returns.
func (s *Staker) Run(ctx context.Context) error {
	key, err := s.keys.DefaultKey(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logging.WarnWithContext(s.logger, "staking disabled, no usable key",
			"staking_disabled",
			logging.Error(err),
			logging.String(logging.FieldImpact, "this node does not stake"),
		)
		return nil
	}
	pub := key.Public().(ed25519.PublicKey)
	s.logger.Info("staking started", logging.Duration("interval", s.opts.Interval))

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("staking stopped", logging.Int64("attempts", s.attempts.Load()))
			return nil
		case <-ticker.C:
		}
		if s.attempt(pub) {
			s.hits.Add(1)
			height, _ := s.chain.Tip()
			s.logger.Debug("stake kernel below target", logging.Int64("height", height))
		}
	}
}

func (s *Staker) attempt(pub ed25519.PublicKey) bool {
	_, tip := s.chain.Tip()
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(s.opts.Now().Unix()))
	h := blake3.New()
	_, _ = h.Write(tip[:])
	_, _ = h.Write(pub)
	_, _ = h.Write(ts[:])
	kernel := h.Sum(nil)
	s.attempts.Add(1)
	return kernel[0] == 0
}
