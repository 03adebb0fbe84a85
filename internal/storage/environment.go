package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"coind/internal/logging"
)

// DirName is the environment directory inside the data directory.
const DirName = "database"

// Options configures Open.
type Options struct {
	Logger *slog.Logger
	// Now supplies the timestamp used in backup names.
	Now func() time.Time
	// InMemory opens a throwaway environment without touching disk.
	InMemory bool
}

// Environment is an open storage environment.
type Environment struct {
	path   string
	db     *badgerdb.DB
	logger *slog.Logger
	repair *CorruptionError

	closeOnce sync.Once
	closeErr  error
}

var openDB = func(path string, inMemory bool, logger *slog.Logger) (*badgerdb.DB, error) {
	opts := badgerdb.DefaultOptions(path).
		WithLogger(badgerLogger{logger: logger}).
		WithNumVersionsToKeep(1)
	if inMemory {
		opts = opts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	return badgerdb.Open(opts)
}

// Open opens the environment in <dataDir>/database, repairing it by rename
// and a single retry when the first open fails.
func Open(ctx context.Context, dataDir string, opts Options) (*Environment, Outcome, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "storage")
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if err := ctx.Err(); err != nil {
		return nil, OutcomeUnrecoverable, err
	}

	path := filepath.Join(dataDir, DirName)
	db, err := openDB(path, opts.InMemory, logger)
	if err == nil {
		logger.Info("storage environment opened", logging.String("path", path))
		return &Environment{path: path, db: db, logger: logger}, OutcomeOK, nil
	}
	if opts.InMemory {
		return nil, OutcomeUnrecoverable, &CorruptionError{Kind: Unrecoverable, Path: path, Err: err}
	}

	backup, renameErr := renameAside(path, now())
	if renameErr != nil {
		return nil, OutcomeUnrecoverable, &CorruptionError{
			Kind: Unrecoverable,
			Path: path,
			Err:  errors.Join(err, renameErr),
		}
	}
	logging.WarnWithContext(logger, "storage environment failed to open, moved aside",
		"storage_renamed",
		logging.String("path", path),
		logging.String("backup", backup),
		logging.Error(err),
		logging.String(logging.FieldImpact, "indexes are rebuilt from scratch"),
		logging.String(logging.FieldErrorHint, "inspect the backup directory before deleting it"),
	)

	db, retryErr := openDB(path, false, logger)
	if retryErr != nil {
		return nil, OutcomeUnrecoverable, &CorruptionError{
			Kind:   Unrecoverable,
			Path:   path,
			Backup: backup,
			Err:    retryErr,
		}
	}
	logger.Info("storage environment recreated", logging.String("path", path))
	repair := &CorruptionError{Kind: RecoverableViaRename, Path: path, Backup: backup, Err: err}
	return &Environment{path: path, db: db, logger: logger, repair: repair}, OutcomeRecoveredWithWarning, nil
}

// Repair describes the damage Open recovered from by renaming the old
// environment aside, or nil when it opened cleanly.
func (e *Environment) Repair() *CorruptionError {
	return e.repair
}

// renameAside moves path to <path>.<unix>.bak, adding a counter when that
// name is taken. A missing path is nothing to move and yields "".
func renameAside(path string, ts time.Time) (string, error) {
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	base := path + "." + strconv.FormatInt(ts.Unix(), 10)
	backup := base + ".bak"
	for i := 1; ; i++ {
		if _, err := os.Lstat(backup); errors.Is(err, fs.ErrNotExist) {
			break
		}
		backup = base + "." + strconv.Itoa(i) + ".bak"
	}
	if err := os.Rename(path, backup); err != nil {
		return "", fmt.Errorf("rename %s aside: %w", path, err)
	}
	return backup, nil
}

// Path returns the environment directory.
func (e *Environment) Path() string {
	return e.path
}

// DB returns the underlying database handle.
func (e *Environment) DB() *badgerdb.DB {
	return e.db
}

// Flush syncs pending writes to disk.
func (e *Environment) Flush() error {
	if e == nil || e.db == nil || e.db.IsClosed() {
		return nil
	}
	return e.db.Sync()
}

// Healthcheck verifies the environment can still serve a read transaction.
func (e *Environment) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.db.IsClosed() {
		return errors.New("storage environment closed")
	}
	if err := e.db.View(func(*badgerdb.Txn) error { return nil }); err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

// Close flushes and closes the environment. Later calls return the first
// result.
func (e *Environment) Close() error {
	if e == nil {
		return nil
	}
	e.closeOnce.Do(func() {
		if err := e.Flush(); err != nil {
			e.logger.Warn("storage flush before close failed", logging.Error(err))
		}
		e.closeErr = e.db.Close()
		if e.closeErr == nil {
			e.logger.Info("storage environment closed")
		}
	})
	return e.closeErr
}

// badgerLogger routes badger's own messages into slog. Info and debug chatter
// is demoted so debug.log is not flooded during compaction.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(trimNewline(fmt.Sprintf(format, args...)), logging.String(logging.FieldEventType, "badger_error"))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(trimNewline(fmt.Sprintf(format, args...)), logging.String(logging.FieldEventType, "badger_warning"))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(trimNewline(fmt.Sprintf(format, args...)), logging.Category("db"))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(trimNewline(fmt.Sprintf(format, args...)), logging.Category("db"))
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
