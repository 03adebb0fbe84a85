package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"coind/internal/logging"
)

const rebuildProgressEvery = 10000

// ErrRebuildInterrupted is returned when Interrupted stopped the walk.
var ErrRebuildInterrupted = errors.New("address index rebuild interrupted")

// RebuildOptions configures RebuildAddressIndex.
type RebuildOptions struct {
	Logger *slog.Logger
	// OnBlock is called after each block's entries are written.
	OnBlock func(height int64)
	// Interrupted is polled before each block alongside ctx.
	Interrupted func() bool
}

// RebuildResult summarizes a rebuild.
type RebuildResult struct {
	StartHeight int64
	Visited     int64
	Elapsed     time.Duration
}

// RebuildAddressIndex walks from the tip back to genesis following each
// block's parent hash and rewrites the address index entries of every block.
// There is no checkpoint: when ctx is cancelled the walk stops and the next
// call starts from the tip again.
func RebuildAddressIndex(ctx context.Context, idx *Index, opts RebuildOptions) (RebuildResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = idx.logger
	}
	started := time.Now()
	height, cursor := idx.Tip()
	result := RebuildResult{StartHeight: height}
	logger.Info("address index rebuild started", logging.Int64("from_height", height))

	for {
		err := ctx.Err()
		if err == nil && opts.Interrupted != nil && opts.Interrupted() {
			err = ErrRebuildInterrupted
		}
		if err != nil {
			result.Elapsed = time.Since(started)
			logger.Warn("address index rebuild interrupted",
				logging.String(logging.FieldEventType, "reindex_interrupted"),
				logging.Int64("visited", result.Visited),
				logging.String(logging.FieldImpact, "address index is partially rebuilt"),
				logging.String(logging.FieldErrorHint, "restart with -reindexaddr to rebuild from the tip"),
			)
			return result, err
		}
		block, err := idx.ReadBlock(ctx, cursor)
		if err != nil {
			return result, fmt.Errorf("rebuild address index at %s: %w", cursor, err)
		}
		if err := idx.db.Update(func(txn *badgerdb.Txn) error {
			return writeAddressEntries(txn, block)
		}); err != nil {
			return result, fmt.Errorf("rebuild address index at height %d: %w", block.Height, err)
		}
		result.Visited++
		if opts.OnBlock != nil {
			opts.OnBlock(block.Height)
		}
		if result.Visited%rebuildProgressEvery == 0 {
			logger.Info("address index rebuild progress", logging.Int64("height", block.Height))
		}
		if block.Height == 0 {
			break
		}
		cursor = block.Prev
	}

	result.Elapsed = time.Since(started)
	logger.Info("address index rebuild complete",
		logging.Int64("blocks", result.Visited),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}
