package storage

import (
	"log/slog"

	badgerdb "github.com/dgraph-io/badger/v4"
)

// SetOpenForTests overrides the database opener during tests.
func SetOpenForTests(fn func(path string, inMemory bool, logger *slog.Logger) (*badgerdb.DB, error)) func() {
	previous := openDB
	openDB = fn
	return func() {
		openDB = previous
	}
}

// DefaultOpenForTests exposes the real opener so tests can wrap it.
func DefaultOpenForTests() func(path string, inMemory bool, logger *slog.Logger) (*badgerdb.DB, error) {
	return openDB
}
