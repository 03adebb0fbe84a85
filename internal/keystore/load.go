package keystore

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"database/sql"
	_ "embed"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"coind/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// LoadOptions configures Load.
type LoadOptions struct {
	Logger *slog.Logger
	// KeyPool is the number of unused pool keys to keep available.
	KeyPool int
	// Upgrade raises the file format to UpgradeTo (latest when zero).
	Upgrade   bool
	UpgradeTo int64
	Now       func() time.Time
}

// LoadResult describes what Load found.
type LoadResult struct {
	Status       LoadStatus
	FirstRun     bool
	Version      int
	Keys         int
	Transactions int
	// Skipped counts transaction records that could not be read.
	Skipped int
}

// Load opens the key store at path, creating it with a default key on first
// run. Fatal statuses (corrupt, too new, needs rewrite) are returned as a
// *LoadError and leave no open handle behind.
func Load(ctx context.Context, path string, opts LoadOptions) (*Store, LoadResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "keystore")
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	db, err := openDB(path)
	if err != nil {
		return nil, LoadResult{Status: LoadCorrupt}, &LoadError{Status: LoadCorrupt, Path: path, Err: err}
	}
	s := &Store{db: db, path: path, logger: logger, now: now, addresses: map[string]struct{}{}}

	result, err := s.load(ctx, opts)
	if err != nil {
		_ = db.Close()
		return nil, result, err
	}

	if opts.KeyPool > 0 {
		added, err := s.TopUpKeyPool(ctx, opts.KeyPool)
		if err != nil {
			_ = db.Close()
			return nil, result, fmt.Errorf("top up key pool: %w", err)
		}
		if added > 0 {
			logger.Debug("key pool topped up", logging.Int("added", added), logging.Int("size", opts.KeyPool))
		}
	}
	logger.Info("key store loaded",
		logging.String("path", path),
		logging.String("status", result.Status.String()),
		logging.Bool("first_run", result.FirstRun),
		logging.Int("version", result.Version),
		logging.Int("keys", result.Keys),
		logging.Int("transactions", result.Transactions),
	)
	return s, result, nil
}

func (s *Store) load(ctx context.Context, opts LoadOptions) (LoadResult, error) {
	var tableExists int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='meta'",
	).Scan(&tableExists); err != nil {
		return LoadResult{Status: LoadCorrupt}, &LoadError{Status: LoadCorrupt, Path: s.path, Err: fmt.Errorf("%w: %v", ErrCorrupt, err)}
	}
	if tableExists == 0 {
		// A missing file, or one left empty by a run killed before the
		// schema commit, is a first run. Anything else without meta is not
		// ours to overwrite.
		var tables int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'",
		).Scan(&tables); err != nil {
			return LoadResult{Status: LoadCorrupt}, &LoadError{Status: LoadCorrupt, Path: s.path, Err: fmt.Errorf("%w: %v", ErrCorrupt, err)}
		}
		if tables > 0 {
			return LoadResult{Status: LoadCorrupt}, &LoadError{Status: LoadCorrupt, Path: s.path, Err: fmt.Errorf("%w: missing metadata", ErrCorrupt)}
		}
		return s.create(ctx)
	}

	var version, minVersion int
	if err := s.db.QueryRowContext(ctx, "SELECT version, min_version FROM meta WHERE id = 1").Scan(&version, &minVersion); err != nil {
		return LoadResult{Status: LoadCorrupt}, &LoadError{Status: LoadCorrupt, Path: s.path, Err: fmt.Errorf("%w: read metadata: %v", ErrCorrupt, err)}
	}
	result := LoadResult{Version: version}

	if minVersion > VersionLatest {
		result.Status = LoadTooNew
		return result, &LoadError{Status: LoadTooNew, Path: s.path, Err: ErrTooNew}
	}
	if version <= VersionLegacy {
		if err := s.rewriteLegacy(ctx); err != nil {
			result.Status = LoadCorrupt
			return result, &LoadError{Status: LoadCorrupt, Path: s.path, Err: err}
		}
		result.Status = LoadNeedRewrite
		return result, &LoadError{Status: LoadNeedRewrite, Path: s.path, Err: ErrNeedsRewrite}
	}

	keys, err := s.loadKeys(ctx)
	if err != nil {
		result.Status = LoadCorrupt
		return result, &LoadError{Status: LoadCorrupt, Path: s.path, Err: err}
	}
	result.Keys = keys

	txs, skipped, err := s.checkTransactions(ctx)
	if err != nil {
		result.Status = LoadCorrupt
		return result, &LoadError{Status: LoadCorrupt, Path: s.path, Err: err}
	}
	result.Transactions = txs
	result.Skipped = skipped
	if skipped > 0 {
		result.Status = LoadNonCritical
		logging.WarnWithContext(s.logger, "key store has unreadable transaction records",
			"keystore_noncritical",
			logging.Int("skipped", skipped),
			logging.String(logging.FieldImpact, "all keys read correctly, transaction history may be incomplete"),
			logging.String(logging.FieldErrorHint, "restart with -rescan to rebuild transaction history"),
		)
	}

	if opts.Upgrade {
		target := opts.UpgradeTo
		if target == 0 || target > VersionLatest {
			target = VersionLatest
		}
		if target < int64(version) {
			return result, fmt.Errorf("cannot downgrade key store from version %d to %d", version, target)
		}
		if target > int64(version) {
			if err := s.exec(ctx, "UPDATE meta SET version = ? WHERE id = 1", target); err != nil {
				return result, fmt.Errorf("upgrade key store: %w", err)
			}
			s.logger.Info("key store upgraded", logging.Int("from", version), logging.Int64("to", target))
			result.Version = int(target)
		}
	}
	return result, nil
}

// create writes the schema, the format version and the default key in one
// transaction, so a file holds either all of them or none.
func (s *Store) create(ctx context.Context) (LoadResult, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return LoadResult{}, fmt.Errorf("generate key: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return LoadResult{}, fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return LoadResult{}, fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO meta (id, version, min_version) VALUES (1, ?, ?)", VersionLatest, VersionBase); err != nil {
		return LoadResult{}, fmt.Errorf("record schema version: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO keys (pubkey, privkey, label, pool, created_at) VALUES (?, ?, 'default', 0, ?)",
		[]byte(pub), priv.Seed(), s.now().Unix(),
	); err != nil {
		return LoadResult{}, fmt.Errorf("store default key: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return LoadResult{}, fmt.Errorf("commit schema: %w", err)
	}

	s.mu.Lock()
	s.addresses[AddressFor(pub)] = struct{}{}
	s.mu.Unlock()
	s.logger.Info("created new key store", logging.String("default_address", AddressFor(pub)))
	return LoadResult{Status: LoadOK, FirstRun: true, Version: VersionLatest, Keys: 1}, nil
}

// rewriteLegacy migrates a legacy file to the current format. The caller
// still reports LoadNeedRewrite so the daemon restarts on the new format.
func (s *Store) rewriteLegacy(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rewrite tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, "UPDATE keys SET pool = 0"); err != nil {
		return fmt.Errorf("rewrite keys: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE meta SET version = ?, min_version = ? WHERE id = 1", VersionLatest, VersionBase); err != nil {
		return fmt.Errorf("rewrite metadata: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rewrite: %w", err)
	}
	s.logger.Warn("legacy key store rewritten",
		logging.String(logging.FieldEventType, "keystore_rewritten"),
		logging.String(logging.FieldImpact, "startup stops until coind is restarted"),
		logging.String(logging.FieldErrorHint, "restart coind"),
	)
	return nil
}

func (s *Store) loadKeys(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, pubkey, privkey FROM keys ORDER BY id")
	if err != nil {
		return 0, fmt.Errorf("%w: read keys: %v", ErrCorrupt, err)
	}
	defer rows.Close()

	addresses := map[string]struct{}{}
	for rows.Next() {
		var (
			id        int64
			pub, seed []byte
		)
		if err := rows.Scan(&id, &pub, &seed); err != nil {
			return 0, fmt.Errorf("%w: scan key: %v", ErrCorrupt, err)
		}
		if len(seed) != ed25519.SeedSize || len(pub) != ed25519.PublicKeySize {
			return 0, fmt.Errorf("%w: key %d has malformed material", ErrCorrupt, id)
		}
		derived := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
		if !bytes.Equal(derived, pub) {
			return 0, fmt.Errorf("%w: key %d private part does not match public key", ErrCorrupt, id)
		}
		addresses[AddressFor(pub)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("%w: iterate keys: %v", ErrCorrupt, err)
	}
	if len(addresses) == 0 {
		return 0, fmt.Errorf("%w: no keys", ErrCorrupt)
	}
	s.mu.Lock()
	s.addresses = addresses
	s.mu.Unlock()
	return len(addresses), nil
}

func (s *Store) checkTransactions(ctx context.Context) (int, int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT txid, address, amount FROM wallet_txs")
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("%w: read transactions: %v", ErrCorrupt, err)
	}
	defer rows.Close()

	var total, skipped int
	for rows.Next() {
		var (
			txid    []byte
			address string
			amount  int64
		)
		if err := rows.Scan(&txid, &address, &amount); err != nil {
			skipped++
			continue
		}
		if len(txid) != 32 || amount < 0 || !s.IsMine(address) {
			skipped++
			continue
		}
		total++
	}
	if err := rows.Err(); err != nil {
		return total, skipped + 1, nil
	}
	return total, skipped, nil
}
