package keystore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"

	"coind/internal/logging"
)

const (
	// VersionLegacy files predate the key pool and must be rewritten.
	VersionLegacy = 1
	// VersionBase is the oldest format this client reads without rewriting.
	VersionBase = 2
	// VersionLatest is the format written by this client.
	VersionLatest = 3
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Store is an open key store.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	addresses map[string]struct{}
	updates   atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// BestBlock is the chain locator saved with the store.
type BestBlock struct {
	Height int64
	Hash   [32]byte
}

// Summary describes the store for status reporting.
type Summary struct {
	Version      int
	Keys         int
	PoolSize     int
	Transactions int
	Balance      int64
	BestHeight   int64
}

// AddressFor derives the node address paying to pub.
func AddressFor(pub ed25519.PublicKey) string {
	sum := blake3.Sum256(pub)
	return "C" + hex.EncodeToString(sum[:20])
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	return db, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
	if err == nil {
		s.updates.Add(1)
	}
	return err
}

// Updates counts successful writes since the store was opened.
func (s *Store) Updates() uint64 {
	return s.updates.Load()
}

// Path returns the store file.
func (s *Store) Path() string {
	return s.path
}

// Addresses returns the addresses of every key in the store.
func (s *Store) Addresses() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.addresses))
	for addr := range s.addresses {
		out = append(out, addr)
	}
	return out
}

// IsMine reports whether address belongs to the store.
func (s *Store) IsMine(address string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.addresses[address]
	return ok
}

// addKey generates and stores a new key.
func (s *Store) addKey(ctx context.Context, label string, pool bool) (ed25519.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	poolFlag := 0
	if pool {
		poolFlag = 1
	}
	if err := s.exec(ctx,
		"INSERT INTO keys (pubkey, privkey, label, pool, created_at) VALUES (?, ?, ?, ?, ?)",
		[]byte(pub), priv.Seed(), label, poolFlag, s.now().Unix(),
	); err != nil {
		return nil, fmt.Errorf("store key: %w", err)
	}
	s.mu.Lock()
	s.addresses[AddressFor(pub)] = struct{}{}
	s.mu.Unlock()
	return pub, nil
}

// TopUpKeyPool generates pool keys until size are available.
func (s *Store) TopUpKeyPool(ctx context.Context, size int) (int, error) {
	var have int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM keys WHERE pool = 1").Scan(&have); err != nil {
		return 0, fmt.Errorf("count key pool: %w", err)
	}
	added := 0
	for have+added < size {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		if _, err := s.addKey(ctx, "", true); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// DefaultKey returns the private key used for staking and masternode
// messages: the key labelled "default", or the oldest key otherwise.
func (s *Store) DefaultKey(ctx context.Context) (ed25519.PrivateKey, error) {
	var seed []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT privkey FROM keys ORDER BY CASE WHEN label = 'default' THEN 0 ELSE 1 END, id LIMIT 1",
	).Scan(&seed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.New("key store has no keys")
	}
	if err != nil {
		return nil, fmt.Errorf("read default key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: default key has %d-byte seed", ErrCorrupt, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// BestBlock returns the saved chain locator, if any.
func (s *Store) BestBlock(ctx context.Context) (BestBlock, bool, error) {
	var (
		loc  BestBlock
		hash []byte
	)
	err := s.db.QueryRowContext(ctx, "SELECT height, hash FROM best_block WHERE id = 1").Scan(&loc.Height, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return BestBlock{}, false, nil
	}
	if err != nil {
		return BestBlock{}, false, fmt.Errorf("read best block: %w", err)
	}
	if len(hash) != len(loc.Hash) {
		return BestBlock{}, false, nil
	}
	copy(loc.Hash[:], hash)
	return loc, true, nil
}

// SetBestChain records the chain locator.
func (s *Store) SetBestChain(ctx context.Context, loc BestBlock) error {
	if err := s.exec(ctx,
		"INSERT INTO best_block (id, height, hash) VALUES (1, ?, ?) ON CONFLICT(id) DO UPDATE SET height = excluded.height, hash = excluded.hash",
		loc.Height, loc.Hash[:],
	); err != nil {
		return fmt.Errorf("write best block: %w", err)
	}
	return nil
}

// Summary reports counts for status output.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var sum Summary
	row := s.db.QueryRowContext(ctx, `SELECT
		(SELECT version FROM meta WHERE id = 1),
		(SELECT COUNT(1) FROM keys),
		(SELECT COUNT(1) FROM keys WHERE pool = 1),
		(SELECT COUNT(1) FROM wallet_txs),
		(SELECT COALESCE(SUM(amount), 0) FROM wallet_txs),
		COALESCE((SELECT height FROM best_block WHERE id = 1), -1)`)
	if err := row.Scan(&sum.Version, &sum.Keys, &sum.PoolSize, &sum.Transactions, &sum.Balance, &sum.BestHeight); err != nil {
		return Summary{}, fmt.Errorf("summarize key store: %w", err)
	}
	return sum, nil
}

// Flush checkpoints the write-ahead log into the main file.
func (s *Store) Flush(ctx context.Context) error {
	if err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
		return err
	}); err != nil {
		return fmt.Errorf("flush key store: %w", err)
	}
	return nil
}

// Close flushes and closes the store. Later calls return the first result.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Flush(ctx); err != nil {
			s.logger.Warn("key store flush before close failed", logging.Error(err))
		}
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
