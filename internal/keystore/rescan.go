package keystore

import (
	"context"
	"fmt"
	"time"

	"coind/internal/logging"
)

// ScanOutput is one payment in a block as seen by Rescan.
type ScanOutput struct {
	Address string
	Amount  int64
}

// ScanTx is a transaction as seen by Rescan.
type ScanTx struct {
	ID      [32]byte
	Outputs []ScanOutput
}

// ScanBlock is a block as seen by Rescan.
type ScanBlock struct {
	Height int64
	Hash   [32]byte
	Txs    []ScanTx
}

// Chain is the read-only view of the ledger index that Rescan walks.
type Chain interface {
	Tip() (int64, [32]byte)
	HashAt(height int64) ([32]byte, bool)
	ScanBlock(ctx context.Context, height int64) (ScanBlock, error)
}

// RescanResult summarizes a Rescan.
type RescanResult struct {
	From    int64
	To      int64
	Found   int
	Elapsed time.Duration
}

// Rescan walks the chain forward from the block after the saved locator (or
// from genesis when fromGenesis is set or the locator is not on the chain)
// and records every output paying one of the store's addresses. The locator
// is moved to the chain tip afterwards.
func (s *Store) Rescan(ctx context.Context, chain Chain, fromGenesis bool) (RescanResult, error) {
	started := time.Now()
	tipHeight, tipHash := chain.Tip()

	var start int64
	if !fromGenesis {
		loc, ok, err := s.BestBlock(ctx)
		if err != nil {
			return RescanResult{}, err
		}
		if ok {
			if hash, onChain := chain.HashAt(loc.Height); onChain && hash == loc.Hash {
				start = loc.Height + 1
			}
		}
	}

	result := RescanResult{From: start, To: tipHeight}
	if start <= tipHeight {
		s.logger.Info("rescanning",
			logging.Int64("from_height", start),
			logging.Int64("to_height", tipHeight),
		)
	}
	for height := start; height <= tipHeight; height++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		block, err := chain.ScanBlock(ctx, height)
		if err != nil {
			return result, fmt.Errorf("rescan block %d: %w", height, err)
		}
		for _, tx := range block.Txs {
			for vout, out := range tx.Outputs {
				if !s.IsMine(out.Address) {
					continue
				}
				if err := s.exec(ctx,
					"INSERT OR IGNORE INTO wallet_txs (txid, vout, address, amount, height) VALUES (?, ?, ?, ?, ?)",
					tx.ID[:], vout, out.Address, out.Amount, block.Height,
				); err != nil {
					return result, fmt.Errorf("record wallet transaction: %w", err)
				}
				result.Found++
			}
		}
	}

	if err := s.SetBestChain(ctx, BestBlock{Height: tipHeight, Hash: tipHash}); err != nil {
		return result, err
	}
	result.Elapsed = time.Since(started)
	s.logger.Info("rescan complete",
		logging.Int64("from_height", result.From),
		logging.Int64("to_height", result.To),
		logging.Int("found", result.Found),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}
