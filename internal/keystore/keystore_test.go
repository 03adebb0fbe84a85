package keystore_test

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"coind/internal/keystore"
	"coind/internal/storage"
)

var fixedNow = func() time.Time { return time.Unix(1700000000, 0) }

func walletPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "wallet.db")
}

func createStore(t *testing.T, path string, pool int) {
	t.Helper()
	store, result, err := keystore.Load(context.Background(), path, keystore.LoadOptions{KeyPool: pool})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !result.FirstRun {
		t.Fatal("expected first run")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func execSQL(t *testing.T, path, query string, args ...any) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func TestLoadFirstRunCreatesDefaultKeyAndPool(t *testing.T) {
	path := walletPath(t)
	createStore(t, path, 5)

	store, result, err := keystore.Load(context.Background(), path, keystore.LoadOptions{KeyPool: 5})
	if err != nil {
		t.Fatalf("reload returned error: %v", err)
	}
	defer store.Close()
	if result.FirstRun || result.Status != keystore.LoadOK {
		t.Fatalf("unexpected reload result: %+v", result)
	}
	summary, err := store.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary returned error: %v", err)
	}
	if summary.Keys != 6 || summary.PoolSize != 5 || summary.Version != keystore.VersionLatest {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.BestHeight != -1 {
		t.Fatalf("best height = %d, want -1 before any rescan", summary.BestHeight)
	}
	if _, err := store.DefaultKey(context.Background()); err != nil {
		t.Fatalf("DefaultKey returned error: %v", err)
	}
}

func TestLoadTreatsEmptyFileAsFirstRun(t *testing.T) {
	path := walletPath(t)
	// A run killed after opening the file but before the schema commit
	// leaves an sqlite file with no tables.
	execSQL(t, path, "PRAGMA journal_mode=WAL")

	verified, err := keystore.Verify(context.Background(), path, keystore.VerifyOptions{})
	if err != nil || verified.Outcome != storage.OutcomeOK {
		t.Fatalf("Verify = %+v, %v", verified, err)
	}
	store, result, err := keystore.Load(context.Background(), path, keystore.LoadOptions{KeyPool: 2})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	defer store.Close()
	if !result.FirstRun || result.Status != keystore.LoadOK || result.Keys != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if _, err := store.DefaultKey(context.Background()); err != nil {
		t.Fatalf("DefaultKey returned error: %v", err)
	}
}

func TestLoadForeignFileWithoutMetadataIsCorrupt(t *testing.T) {
	path := walletPath(t)
	execSQL(t, path, "CREATE TABLE notes (body TEXT)")

	_, result, err := keystore.Load(context.Background(), path, keystore.LoadOptions{})
	var loadErr *keystore.LoadError
	if !errors.As(err, &loadErr) || loadErr.Status != keystore.LoadCorrupt || !result.Status.Fatal() {
		t.Fatalf("expected corrupt load, got %+v, %v", result, err)
	}
}

func TestLoadClassifiesFatalStatuses(t *testing.T) {
	tests := []struct {
		name   string
		mutate string
		status keystore.LoadStatus
		target error
	}{
		{name: "too new", mutate: "UPDATE meta SET min_version = 99", status: keystore.LoadTooNew, target: keystore.ErrTooNew},
		{name: "legacy", mutate: "UPDATE meta SET version = 1", status: keystore.LoadNeedRewrite, target: keystore.ErrNeedsRewrite},
		{name: "corrupt key", mutate: "UPDATE keys SET privkey = zeroblob(32)", status: keystore.LoadCorrupt, target: keystore.ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := walletPath(t)
			createStore(t, path, 0)
			execSQL(t, path, tt.mutate)

			store, result, err := keystore.Load(context.Background(), path, keystore.LoadOptions{})
			if store != nil {
				t.Fatal("expected no store on fatal status")
			}
			var loadErr *keystore.LoadError
			if !errors.As(err, &loadErr) || loadErr.Status != tt.status {
				t.Fatalf("expected LoadError with status %s, got %v", tt.status, err)
			}
			if !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
			if result.Status != tt.status || !result.Status.Fatal() {
				t.Fatalf("result status = %s", result.Status)
			}
		})
	}
}

func TestLoadAfterRewriteSucceeds(t *testing.T) {
	path := walletPath(t)
	createStore(t, path, 0)
	execSQL(t, path, "UPDATE meta SET version = 1")

	if _, _, err := keystore.Load(context.Background(), path, keystore.LoadOptions{}); !errors.Is(err, keystore.ErrNeedsRewrite) {
		t.Fatalf("expected ErrNeedsRewrite, got %v", err)
	}
	store, result, err := keystore.Load(context.Background(), path, keystore.LoadOptions{})
	if err != nil {
		t.Fatalf("second load returned error: %v", err)
	}
	defer store.Close()
	if result.Version != keystore.VersionLatest {
		t.Fatalf("version = %d after rewrite", result.Version)
	}
}

func TestLoadNonCriticalTransactionDamage(t *testing.T) {
	path := walletPath(t)
	createStore(t, path, 0)
	execSQL(t, path, "INSERT INTO wallet_txs (txid, vout, address, amount, height) VALUES (x'0102', 0, 'Cnotours', 5, 1)")

	store, result, err := keystore.Load(context.Background(), path, keystore.LoadOptions{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	defer store.Close()
	if result.Status != keystore.LoadNonCritical || result.Skipped != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Status.Fatal() {
		t.Fatal("non-critical status must not be fatal")
	}
}

func TestLoadUpgradeRefusesDowngrade(t *testing.T) {
	path := walletPath(t)
	createStore(t, path, 0)
	_, _, err := keystore.Load(context.Background(), path, keystore.LoadOptions{Upgrade: true, UpgradeTo: keystore.VersionBase})
	if err == nil || !strings.Contains(err.Error(), "downgrade") {
		t.Fatalf("expected downgrade error, got %v", err)
	}
}

func TestVerifyMissingFileIsOK(t *testing.T) {
	result, err := keystore.Verify(context.Background(), walletPath(t), keystore.VerifyOptions{})
	if err != nil || result.Outcome != storage.OutcomeOK {
		t.Fatalf("expected ok, got %+v %v", result, err)
	}
}

func TestVerifyHealthyFileIsOK(t *testing.T) {
	path := walletPath(t)
	createStore(t, path, 2)
	result, err := keystore.Verify(context.Background(), path, keystore.VerifyOptions{Now: fixedNow})
	if err != nil || result.Outcome != storage.OutcomeOK {
		t.Fatalf("expected ok, got %+v %v", result, err)
	}
	if repair := result.Repair(); repair != nil {
		t.Fatalf("healthy file reported repair %v", repair)
	}
}

func TestVerifySalvagesDamagedFile(t *testing.T) {
	path := walletPath(t)
	createStore(t, path, 3)
	execSQL(t, path, "INSERT INTO wallet_txs (txid, vout, address, amount, height) VALUES (zeroblob(32), 0, 'Cx', 5, 1)")

	restore := keystore.SetIntegrityCheckForTests(func(context.Context, string) error {
		return errors.New("page 7: btree cell out of order")
	})
	defer restore()

	result, err := keystore.Verify(context.Background(), path, keystore.VerifyOptions{Now: fixedNow})
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if result.Outcome != storage.OutcomeRecoveredWithWarning || result.Salvaged != 4 {
		t.Fatalf("unexpected result: %+v", result)
	}
	wantBackup := filepath.Join(filepath.Dir(path), "wallet.1700000000.bak")
	if result.Backup != wantBackup {
		t.Fatalf("backup = %q, want %q", result.Backup, wantBackup)
	}
	if _, err := os.Stat(wantBackup); err != nil {
		t.Fatalf("original file not kept: %v", err)
	}
	repair := result.Repair()
	if repair == nil || repair.Kind != storage.RecoverableViaSalvage || repair.Backup != wantBackup || repair.Path != path {
		t.Fatalf("repair = %+v, want salvage into %s", repair, wantBackup)
	}
	if repair.Err == nil || !strings.Contains(repair.Err.Error(), "btree cell out of order") {
		t.Fatalf("repair cause = %v", repair.Err)
	}

	store, _, err := keystore.Load(context.Background(), path, keystore.LoadOptions{})
	if err != nil {
		t.Fatalf("load salvaged store: %v", err)
	}
	defer store.Close()
	summary, err := store.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary returned error: %v", err)
	}
	if summary.Keys != 4 || summary.Transactions != 0 {
		t.Fatalf("unexpected salvaged summary: %+v", summary)
	}
}

func TestVerifyUnrecoverableRestoresOriginal(t *testing.T) {
	path := walletPath(t)
	garbage := []byte(strings.Repeat("not a sqlite file ", 300))
	if err := os.WriteFile(path, garbage, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	result, err := keystore.Verify(context.Background(), path, keystore.VerifyOptions{Now: fixedNow})
	if result.Outcome != storage.OutcomeUnrecoverable {
		t.Fatalf("outcome = %s, want unrecoverable", result.Outcome)
	}
	var corrupt *storage.CorruptionError
	if !errors.As(err, &corrupt) || corrupt.Kind != storage.Unrecoverable {
		t.Fatalf("expected unrecoverable CorruptionError, got %v", err)
	}
	data, readErr := os.ReadFile(path)
	if readErr != nil || string(data) != string(garbage) {
		t.Fatalf("original file not restored under its own name: %v", readErr)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".bak") {
			t.Fatalf("unexpected leftover backup %s", e.Name())
		}
	}
}

type fakeChain struct {
	blocks []keystore.ScanBlock
}

func (c *fakeChain) Tip() (int64, [32]byte) {
	last := c.blocks[len(c.blocks)-1]
	return last.Height, last.Hash
}

func (c *fakeChain) HashAt(height int64) ([32]byte, bool) {
	if height < 0 || height >= int64(len(c.blocks)) {
		return [32]byte{}, false
	}
	return c.blocks[height].Hash, true
}

func (c *fakeChain) ScanBlock(_ context.Context, height int64) (keystore.ScanBlock, error) {
	return c.blocks[height], nil
}

func TestRescanFromLocatorAndGenesis(t *testing.T) {
	path := walletPath(t)
	store, _, err := keystore.Load(context.Background(), path, keystore.LoadOptions{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	defer store.Close()

	key, err := store.DefaultKey(context.Background())
	if err != nil {
		t.Fatalf("DefaultKey: %v", err)
	}
	mine := keystore.AddressFor(key.Public().(ed25519.PublicKey))

	chain := &fakeChain{}
	for h := int64(0); h < 3; h++ {
		block := keystore.ScanBlock{Height: h, Hash: [32]byte{byte(h + 1)}}
		if h > 0 {
			block.Txs = []keystore.ScanTx{{
				ID:      [32]byte{0xaa, byte(h)},
				Outputs: []keystore.ScanOutput{{Address: "Csomeoneelse", Amount: 1}, {Address: mine, Amount: 10 * h}},
			}}
		}
		chain.blocks = append(chain.blocks, block)
	}

	first, err := store.Rescan(context.Background(), chain, false)
	if err != nil {
		t.Fatalf("Rescan returned error: %v", err)
	}
	if first.From != 0 || first.To != 2 || first.Found != 2 {
		t.Fatalf("unexpected first rescan: %+v", first)
	}

	second, err := store.Rescan(context.Background(), chain, false)
	if err != nil {
		t.Fatalf("second Rescan returned error: %v", err)
	}
	if second.From != 3 || second.Found != 0 {
		t.Fatalf("expected nothing to scan after locator, got %+v", second)
	}

	full, err := store.Rescan(context.Background(), chain, true)
	if err != nil {
		t.Fatalf("genesis Rescan returned error: %v", err)
	}
	if full.From != 0 {
		t.Fatalf("genesis rescan started at %d", full.From)
	}

	summary, err := store.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.Transactions != 2 || summary.Balance != 30 || summary.BestHeight != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
