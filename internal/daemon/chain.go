package daemon

import (
	"context"

	"coind/internal/keystore"
	"coind/internal/ledger"
)

// chainView presents the ledger index as the chain a key store rescan walks.
type chainView struct {
	idx *ledger.Index
}

func (c chainView) Tip() (int64, [32]byte) {
	height, hash := c.idx.Tip()
	return height, hash
}

func (c chainView) HashAt(height int64) ([32]byte, bool) {
	return c.idx.HashAt(height)
}

func (c chainView) ScanBlock(ctx context.Context, height int64) (keystore.ScanBlock, error) {
	block, err := c.idx.BlockAt(ctx, height)
	if err != nil {
		return keystore.ScanBlock{}, err
	}
	scan := keystore.ScanBlock{
		Height: block.Height,
		Hash:   block.Hash(),
		Txs:    make([]keystore.ScanTx, 0, len(block.Txs)),
	}
	for _, tx := range block.Txs {
		outputs := make([]keystore.ScanOutput, 0, len(tx.Outputs))
		for _, out := range tx.Outputs {
			outputs = append(outputs, keystore.ScanOutput{Address: out.Address, Amount: out.Amount})
		}
		scan.Txs = append(scan.Txs, keystore.ScanTx{ID: tx.ID(), Outputs: outputs})
	}
	return scan, nil
}
