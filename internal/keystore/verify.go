package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"coind/internal/logging"
	"coind/internal/storage"
)

// VerifyOptions configures Verify.
type VerifyOptions struct {
	Logger *slog.Logger
	// Salvage forces a salvage pass even when the integrity check passes.
	Salvage bool
	Now     func() time.Time
}

// VerifyResult reports the outcome of Verify.
type VerifyResult struct {
	Outcome storage.Outcome
	// Backup is the name the original file was kept under after a salvage.
	Backup string
	// Salvaged counts keys copied into the new file.
	Salvaged int
	// Cause is the integrity check failure that triggered the salvage, nil
	// when the salvage was requested.
	Cause error

	path string
}

// Repair describes a salvage as recoverable corruption, or nil when the file
// was left as it was.
func (r VerifyResult) Repair() *storage.CorruptionError {
	if r.Outcome != storage.OutcomeRecoveredWithWarning {
		return nil
	}
	return &storage.CorruptionError{Kind: storage.RecoverableViaSalvage, Path: r.path, Backup: r.Backup, Err: r.Cause}
}

type salvagedKey struct {
	pub, seed []byte
	label     string
	pool      int
	createdAt int64
}

var integrityCheck = func(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()
	rows, err := db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return err
	}
	defer rows.Close()
	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return err
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(problems) > 0 {
		return fmt.Errorf("integrity check: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Verify checks the key store file at path and salvages it when damaged. A
// missing file is fine (first run). When the salvage finds nothing usable the
// original is restored under its own name and the result is
// OutcomeUnrecoverable with a *storage.CorruptionError.
func Verify(ctx context.Context, path string, opts VerifyOptions) (VerifyResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "keystore")
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return VerifyResult{Outcome: storage.OutcomeOK}, nil
		}
		return VerifyResult{Outcome: storage.OutcomeUnrecoverable}, fmt.Errorf("stat key store: %w", err)
	}

	checkErr := integrityCheck(ctx, path)
	if checkErr == nil && !opts.Salvage {
		return VerifyResult{Outcome: storage.OutcomeOK}, nil
	}
	if checkErr != nil {
		logger.Warn("key store failed integrity check, salvaging",
			logging.String(logging.FieldEventType, "keystore_verify_failed"),
			logging.String("path", path),
			logging.Error(checkErr),
		)
	}

	result, err := salvage(ctx, path, now(), logger)
	if err != nil {
		return result, err
	}
	result.Cause = checkErr
	result.path = path
	logging.WarnWithContext(logger, "key store salvaged",
		"keystore_salvaged",
		logging.String("backup", result.Backup),
		logging.Int("keys", result.Salvaged),
		logging.String(logging.FieldImpact, "transaction history was dropped and is rebuilt by rescan"),
		logging.String(logging.FieldErrorHint, "if balances look wrong, restore from the backup file"),
	)
	return result, nil
}

func salvage(ctx context.Context, path string, ts time.Time, logger *slog.Logger) (VerifyResult, error) {
	backup, err := backupName(path, ts)
	if err != nil {
		return VerifyResult{Outcome: storage.OutcomeUnrecoverable}, err
	}
	if err := moveWithSidecars(path, backup); err != nil {
		return VerifyResult{Outcome: storage.OutcomeUnrecoverable}, &storage.CorruptionError{
			Kind: storage.Unrecoverable, Path: path, Err: err,
		}
	}

	keys, readErr := readSalvageableKeys(ctx, backup)
	if readErr == nil && len(keys) == 0 {
		readErr = errors.New("no keys could be recovered")
	}
	if readErr == nil {
		readErr = writeSalvaged(ctx, path, keys)
	}
	if readErr != nil {
		removeWithSidecars(path)
		if restoreErr := moveWithSidecars(backup, path); restoreErr != nil {
			logger.Error("failed to restore key store after failed salvage",
				logging.String("backup", backup),
				logging.Error(restoreErr),
			)
			return VerifyResult{Outcome: storage.OutcomeUnrecoverable, Backup: backup}, &storage.CorruptionError{
				Kind: storage.Unrecoverable, Path: path, Backup: backup, Err: errors.Join(readErr, restoreErr),
			}
		}
		return VerifyResult{Outcome: storage.OutcomeUnrecoverable}, &storage.CorruptionError{
			Kind: storage.Unrecoverable, Path: path, Err: fmt.Errorf("salvage failed: %w", readErr),
		}
	}
	return VerifyResult{Outcome: storage.OutcomeRecoveredWithWarning, Backup: backup, Salvaged: len(keys)}, nil
}

// backupName returns <dir>/<stem>.<unix>.bak for path, avoiding names in use.
func backupName(path string, ts time.Time) (string, error) {
	dir := filepath.Dir(path)
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base := filepath.Join(dir, stem+"."+strconv.FormatInt(ts.Unix(), 10))
	candidate := base + ".bak"
	for i := 1; i < 1000; i++ {
		if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		candidate = base + "." + strconv.Itoa(i) + ".bak"
	}
	return "", fmt.Errorf("no free backup name for %s", path)
}

var sidecarSuffixes = []string{"-wal", "-shm"}

func moveWithSidecars(from, to string) error {
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s: %w", from, err)
	}
	for _, suffix := range sidecarSuffixes {
		if err := os.Rename(from+suffix, to+suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("rename %s: %w", from+suffix, err)
		}
	}
	return nil
}

func removeWithSidecars(path string) {
	_ = os.Remove(path)
	for _, suffix := range sidecarSuffixes {
		_ = os.Remove(path + suffix)
	}
}

// readSalvageableKeys copies every key row it can read, stopping at the first
// unreadable one.
func readSalvageableKeys(ctx context.Context, path string) ([]salvagedKey, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT pubkey, privkey, label, pool, created_at FROM keys ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []salvagedKey
	for rows.Next() {
		var k salvagedKey
		if err := rows.Scan(&k.pub, &k.seed, &k.label, &k.pool, &k.createdAt); err != nil {
			break
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func writeSalvaged(ctx context.Context, path string, keys []salvagedKey) error {
	db, err := openDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin salvage tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO meta (id, version, min_version) VALUES (1, ?, ?)", VersionLatest, VersionBase); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO keys (pubkey, privkey, label, pool, created_at) VALUES (?, ?, ?, ?, ?)",
			k.pub, k.seed, k.label, k.pool, k.createdAt,
		); err != nil {
			return fmt.Errorf("copy key: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit salvage: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpoint salvaged store: %w", err)
	}
	return nil
}
