package daemon

import (
	"context"
	"testing"

	"coind/internal/ledger"
	"coind/internal/testsupport"
)

func TestChainViewPresentsLedgerBlocks(t *testing.T) {
	idx := testsupport.OpenLedger(t, "regtest")
	_, genesis := idx.Tip()
	tx := ledger.Tx{Outputs: []ledger.Output{{Address: "Cone", Amount: 7}, {Address: "Ctwo", Amount: 3}}}
	block := ledger.Block{Height: 1, Prev: genesis, Time: 1700000000, Txs: []ledger.Tx{tx}}
	if err := idx.Append(context.Background(), block); err != nil {
		t.Fatalf("Append: %v", err)
	}

	view := chainView{idx: idx}
	height, tip := view.Tip()
	if height != 1 || tip != [32]byte(block.Hash()) {
		t.Fatalf("tip = %d %x", height, tip)
	}
	if hash, ok := view.HashAt(0); !ok || hash != [32]byte(genesis) {
		t.Fatalf("HashAt(0) = %x %v", hash, ok)
	}
	if _, ok := view.HashAt(2); ok {
		t.Fatal("HashAt beyond the tip should fail")
	}

	scan, err := view.ScanBlock(context.Background(), 1)
	if err != nil {
		t.Fatalf("ScanBlock: %v", err)
	}
	if len(scan.Txs) != 1 || scan.Txs[0].ID != [32]byte(tx.ID()) {
		t.Fatalf("unexpected scan txs: %+v", scan.Txs)
	}
	if outs := scan.Txs[0].Outputs; len(outs) != 2 || outs[0].Address != "Cone" || outs[1].Amount != 3 {
		t.Fatalf("unexpected outputs: %+v", outs)
	}
}
