package testsupport

import (
	"context"
	"testing"

	"coind/internal/ledger"
	"coind/internal/storage"
)

// OpenEnvironment opens a storage environment in dir and closes it when the
// test ends.
func OpenEnvironment(t testing.TB, dir string) *storage.Environment {
	t.Helper()

	env, outcome, err := storage.Open(context.Background(), dir, storage.Options{})
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	if outcome != storage.OutcomeOK {
		t.Fatalf("storage.Open outcome = %s, want ok", outcome)
	}
	t.Cleanup(func() {
		env.Close()
	})
	return env
}

// OpenLedger opens a fresh environment and loads the ledger index for
// network from it.
func OpenLedger(t testing.TB, network string) *ledger.Index {
	t.Helper()

	env := OpenEnvironment(t, t.TempDir())
	idx, err := ledger.Load(context.Background(), env.DB(), ledger.Options{Network: network})
	if err != nil {
		t.Fatalf("ledger.Load: %v", err)
	}
	return idx
}
