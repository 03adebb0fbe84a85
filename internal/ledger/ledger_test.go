package ledger_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"coind/internal/ledger"
	"coind/internal/storage"
)

func openEnv(t *testing.T, dir string) *storage.Environment {
	t.Helper()
	env, outcome, err := storage.Open(context.Background(), dir, storage.Options{})
	if err != nil {
		t.Fatalf("storage.Open returned error: %v", err)
	}
	if outcome != storage.OutcomeOK {
		t.Fatalf("outcome = %s", outcome)
	}
	return env
}

func loadIndex(t *testing.T, env *storage.Environment) *ledger.Index {
	t.Helper()
	idx, err := ledger.Load(context.Background(), env.DB(), ledger.Options{Network: "main"})
	if err != nil {
		t.Fatalf("ledger.Load returned error: %v", err)
	}
	return idx
}

func nextBlock(idx *ledger.Index, payTo string, amount int64) ledger.Block {
	height, tip := idx.Tip()
	return ledger.Block{
		Height: height + 1,
		Prev:   tip,
		Time:   1700000000 + height,
		Txs: []ledger.Tx{{
			Outputs: []ledger.Output{{Address: payTo, Amount: amount}},
		}},
	}
}

func extend(t *testing.T, idx *ledger.Index, n int) []ledger.Block {
	t.Helper()
	var blocks []ledger.Block
	for i := 0; i < n; i++ {
		b := nextBlock(idx, "Caddr", 1)
		if err := idx.Append(context.Background(), b); err != nil {
			t.Fatalf("Append returned error: %v", err)
		}
		blocks = append(blocks, b)
	}
	return blocks
}

func TestLoadCreatesGenesisAndReloads(t *testing.T) {
	dir := t.TempDir()
	env := openEnv(t, dir)
	idx := loadIndex(t, env)

	height, tip := idx.Tip()
	if height != 0 || tip != ledger.Genesis("main").Hash() {
		t.Fatalf("unexpected genesis tip %d %s", height, tip)
	}
	extend(t, idx, 2)
	wantHeight, wantTip := idx.Tip()
	if err := env.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	env = openEnv(t, dir)
	defer env.Close()
	reloaded := loadIndex(t, env)
	gotHeight, gotTip := reloaded.Tip()
	if gotHeight != wantHeight || gotTip != wantTip {
		t.Fatalf("reloaded tip %d %s, want %d %s", gotHeight, gotTip, wantHeight, wantTip)
	}
	block, err := reloaded.BlockAt(context.Background(), 1)
	if err != nil {
		t.Fatalf("BlockAt returned error: %v", err)
	}
	if block.Prev != ledger.Genesis("main").Hash() {
		t.Fatal("block 1 does not link to genesis")
	}
}

func TestAppendRejectsOrphan(t *testing.T) {
	env := openEnv(t, t.TempDir())
	defer env.Close()
	idx := loadIndex(t, env)

	orphan := nextBlock(idx, "Caddr", 1)
	orphan.Prev = ledger.Hash{0xff}
	if err := idx.Append(context.Background(), orphan); !errors.Is(err, ledger.ErrOrphan) {
		t.Fatalf("expected ErrOrphan, got %v", err)
	}
	if height, _ := idx.Tip(); height != 0 {
		t.Fatalf("tip moved to %d after rejected block", height)
	}
}

func TestAddressEntriesFollowAppends(t *testing.T) {
	env := openEnv(t, t.TempDir())
	defer env.Close()
	idx := loadIndex(t, env)
	extend(t, idx, 3)

	count, total, err := idx.AddressEntries(context.Background(), "Caddr")
	if err != nil {
		t.Fatalf("AddressEntries returned error: %v", err)
	}
	if count != 3 || total != 3 {
		t.Fatalf("entries = %d total = %d, want 3/3", count, total)
	}
}

func TestRebuildRestartsFromTipAfterInterrupt(t *testing.T) {
	env := openEnv(t, t.TempDir())
	defer env.Close()
	idx := loadIndex(t, env)
	extend(t, idx, 5)

	ctx, cancel := context.WithCancel(context.Background())
	var interrupted []int64
	result, err := ledger.RebuildAddressIndex(ctx, idx, ledger.RebuildOptions{
		OnBlock: func(height int64) {
			interrupted = append(interrupted, height)
			if len(interrupted) == 3 {
				cancel()
			}
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.Visited != 3 || interrupted[0] != 5 || interrupted[2] != 3 {
		t.Fatalf("unexpected interrupted walk %v (%+v)", interrupted, result)
	}

	var resumed []int64
	result, err = ledger.RebuildAddressIndex(context.Background(), idx, ledger.RebuildOptions{
		OnBlock: func(height int64) { resumed = append(resumed, height) },
	})
	if err != nil {
		t.Fatalf("second rebuild returned error: %v", err)
	}
	if resumed[0] != 5 {
		t.Fatalf("second rebuild started at %d, want the tip", resumed[0])
	}
	if result.Visited != 6 || resumed[len(resumed)-1] != 0 {
		t.Fatalf("second rebuild did not reach genesis: %v", resumed)
	}

	count, _, err := idx.AddressEntries(context.Background(), "Caddr")
	if err != nil || count != 5 {
		t.Fatalf("entries after rebuild = %d (%v), want 5", count, err)
	}
}

func TestImportAppendsAndSkipsKnownBlocks(t *testing.T) {
	source := openEnv(t, t.TempDir())
	defer source.Close()
	sourceIdx := loadIndex(t, source)
	blocks := append([]ledger.Block{ledger.Genesis("main")}, extend(t, sourceIdx, 3)...)

	path := filepath.Join(t.TempDir(), "bootstrap.dat")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ledger.WriteBlocks(f, blocks); err != nil {
		t.Fatalf("WriteBlocks returned error: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	env := openEnv(t, t.TempDir())
	defer env.Close()
	idx := loadIndex(t, env)

	result, err := ledger.Import(context.Background(), idx, path)
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if result.Appended != 3 || result.Skipped != 1 {
		t.Fatalf("unexpected import result: %+v", result)
	}
	_, wantTip := sourceIdx.Tip()
	if _, tip := idx.Tip(); tip != wantTip {
		t.Fatalf("tip after import %s, want %s", tip, wantTip)
	}

	again, err := ledger.Import(context.Background(), idx, path)
	if err != nil || again.Appended != 0 || again.Skipped != 4 {
		t.Fatalf("re-import = %+v %v", again, err)
	}
}

func TestImportMissingFile(t *testing.T) {
	env := openEnv(t, t.TempDir())
	defer env.Close()
	idx := loadIndex(t, env)
	if _, err := ledger.Import(context.Background(), idx, filepath.Join(t.TempDir(), "missing.dat")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRebuildStopsWhenInterrupted(t *testing.T) {
	env := openEnv(t, t.TempDir())
	defer env.Close()
	idx := loadIndex(t, env)
	extend(t, idx, 4)

	var visited int
	result, err := ledger.RebuildAddressIndex(context.Background(), idx, ledger.RebuildOptions{
		OnBlock:     func(int64) { visited++ },
		Interrupted: func() bool { return visited >= 2 },
	})
	if !errors.Is(err, ledger.ErrRebuildInterrupted) {
		t.Fatalf("expected ErrRebuildInterrupted, got %v", err)
	}
	if result.Visited != 2 {
		t.Fatalf("visited %d blocks, want 2", result.Visited)
	}
}
