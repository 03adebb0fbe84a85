package daemon

import (
	"context"
	"log/slog"

	"coind/internal/ledger"
	"coind/internal/threadgroup"
)

// SetImporterForTests replaces the -loadblock worker body during tests.
func SetImporterForTests(fn func(ctx context.Context) error) func() {
	previous := newImporter
	newImporter = func(*ledger.Index, []string, *slog.Logger) threadgroup.Func {
		return fn
	}
	return func() {
		newImporter = previous
	}
}
