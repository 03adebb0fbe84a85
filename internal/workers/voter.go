package workers

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"coind/internal/ledger"
	"coind/internal/logging"
)

// Ping is the signed liveness statement a masternode publishes.
type Ping struct {
	Addr   string
	Height int64
	Tip    ledger.Hash
	Time   int64
	Sig    []byte
}

func (p Ping) message() []byte {
	buf := make([]byte, 0, len(p.Addr)+8+32+8)
	buf = append(buf, p.Addr...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(p.Height))
	buf = append(buf, p.Tip[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(p.Time))
	return buf
}

// VerifyPing checks p's signature against pub.
func VerifyPing(pub ed25519.PublicKey, p Ping) bool {
	return ed25519.Verify(pub, p.message(), p.Sig)
}

// VoterOptions configures a Voter.
type VoterOptions struct {
	Logger *slog.Logger
	// Seed is the 32-byte masternode key (-masternodeprivkey).
	Seed []byte
	// Addr is the advertised masternode address.
	Addr     string
	Interval time.Duration
	Now      func() time.Time
}

// Voter signs a ping over the current tip every Interval.
type Voter struct {
	chain  ChainTip
	key    ed25519.PrivateKey
	opts   VoterOptions
	logger *slog.Logger

	mu    sync.Mutex
	last  Ping
	pings int
}

// NewVoter validates the key and returns a voter.
func NewVoter(chain ChainTip, opts VoterOptions) (*Voter, error) {
	if len(opts.Seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("masternode key must be %d bytes, got %d", ed25519.SeedSize, len(opts.Seed))
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Voter{
		chain:  chain,
		key:    ed25519.NewKeyFromSeed(opts.Seed),
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "masternode"),
	}, nil
}

// PublicKey returns the masternode public key.
func (v *Voter) PublicKey() ed25519.PublicKey {
	return v.key.Public().(ed25519.PublicKey)
}

// LastPing returns the most recent ping and the number signed so far.
func (v *Voter) LastPing() (Ping, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last, v.pings
}

func (v *Voter) ping() Ping {
	height, tip := v.chain.Tip()
	p := Ping{Addr: v.opts.Addr, Height: height, Tip: tip, Time: v.opts.Now().Unix()}
	p.Sig = ed25519.Sign(v.key, p.message())
	v.mu.Lock()
	v.last = p
	v.pings++
	v.mu.Unlock()
	return p
}

// Run pings at once and then every Interval until ctx is done.
func (v *Voter) Run(ctx context.Context) error {
	p := v.ping()
	v.logger.Info("masternode active", logging.String("addr", p.Addr), logging.Int64("height", p.Height))
	ticker := time.NewTicker(v.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		p := v.ping()
		v.logger.Debug("masternode ping signed", logging.Int64("height", p.Height))
	}
}
