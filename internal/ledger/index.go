package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"

	"coind/internal/logging"
)

var (
	// ErrOrphan reports a block whose parent is not the current tip.
	ErrOrphan = errors.New("block does not extend the tip")
	// ErrNotFound reports a missing block.
	ErrNotFound = errors.New("block not found")
	// ErrInconsistent reports a height chain with gaps or a tip mismatch.
	ErrInconsistent = errors.New("ledger index inconsistent")
)

// Options configures Load.
type Options struct {
	Logger  *slog.Logger
	Network string
}

// Index is the in-memory view of the chain backed by the storage environment.
type Index struct {
	db     *badgerdb.DB
	logger *slog.Logger

	mu       sync.RWMutex
	byHeight []Hash
	byHash   map[Hash]int64
}

// Load reads the height chain from db, writing the genesis block when the
// store is empty.
func Load(ctx context.Context, db *badgerdb.DB, opts Options) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	idx := &Index{
		db:     db,
		logger: logging.NewComponentLogger(logger, "ledger"),
		byHash: make(map[Hash]int64),
	}

	var tip Hash
	var haveTip bool
	err := db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keyTip))
		switch {
		case errors.Is(err, badgerdb.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				copy(tip[:], val)
				return nil
			}); err != nil {
				return err
			}
			haveTip = true
		}

		it := txn.NewIterator(badgerdb.IteratorOptions{Prefix: []byte(prefixHeight), PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()
		for it.Seek([]byte(prefixHeight)); it.ValidForPrefix([]byte(prefixHeight)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			height := heightFromKey(item.Key())
			if height != int64(len(idx.byHeight)) {
				return fmt.Errorf("%w: missing height %d", ErrInconsistent, len(idx.byHeight))
			}
			var h Hash
			if err := item.Value(func(val []byte) error {
				copy(h[:], val)
				return nil
			}); err != nil {
				return err
			}
			idx.byHeight = append(idx.byHeight, h)
			idx.byHash[h] = height
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load ledger index: %w", err)
	}

	if len(idx.byHeight) == 0 {
		if haveTip {
			return nil, fmt.Errorf("%w: tip recorded without blocks", ErrInconsistent)
		}
		genesis := Genesis(opts.Network)
		if err := idx.Append(ctx, genesis); err != nil {
			return nil, fmt.Errorf("write genesis block: %w", err)
		}
		idx.logger.Info("ledger index created", logging.String("genesis", genesis.Hash().String()))
		return idx, nil
	}
	if !haveTip || tip != idx.byHeight[len(idx.byHeight)-1] {
		return nil, fmt.Errorf("%w: tip does not match height %d", ErrInconsistent, len(idx.byHeight)-1)
	}
	idx.logger.Info("ledger index loaded",
		logging.Int64("height", int64(len(idx.byHeight)-1)),
		logging.String("tip", tip.String()),
	)
	return idx, nil
}

// Tip returns the best height and hash.
func (idx *Index) Tip() (int64, Hash) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if len(idx.byHeight) == 0 {
		return -1, Hash{}
	}
	height := len(idx.byHeight) - 1
	return int64(height), idx.byHeight[height]
}

// HashAt returns the hash of the block at height.
func (idx *Index) HashAt(height int64) (Hash, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if height < 0 || height >= int64(len(idx.byHeight)) {
		return Hash{}, false
	}
	return idx.byHeight[height], true
}

// Contains reports whether h is on the chain.
func (idx *Index) Contains(h Hash) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.byHash[h]
	return ok
}

// ReadBlock reads the block stored under h.
func (idx *Index) ReadBlock(ctx context.Context, h Hash) (Block, error) {
	if err := ctx.Err(); err != nil {
		return Block{}, err
	}
	var block Block
	err := idx.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyBlock(h))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, h)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decodeErr error
			block, decodeErr = decodeBlock(val)
			return decodeErr
		})
	})
	return block, err
}

// BlockAt reads the block at height.
func (idx *Index) BlockAt(ctx context.Context, height int64) (Block, error) {
	h, ok := idx.HashAt(height)
	if !ok {
		return Block{}, fmt.Errorf("%w: height %d", ErrNotFound, height)
	}
	return idx.ReadBlock(ctx, h)
}

// Append stores b as the new tip together with its address index entries.
func (idx *Index) Append(ctx context.Context, b Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	wantHeight := int64(len(idx.byHeight))
	var wantPrev Hash
	if wantHeight > 0 {
		wantPrev = idx.byHeight[wantHeight-1]
	}
	if b.Height != wantHeight || b.Prev != wantPrev {
		return fmt.Errorf("%w: height %d prev %s", ErrOrphan, b.Height, b.Prev)
	}

	data, err := encodeBlock(b)
	if err != nil {
		return err
	}
	h := b.Hash()
	err = idx.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(keyBlock(h), data); err != nil {
			return err
		}
		if err := txn.Set(keyHeight(b.Height), h[:]); err != nil {
			return err
		}
		if err := txn.Set([]byte(keyTip), h[:]); err != nil {
			return err
		}
		return writeAddressEntries(txn, b)
	})
	if err != nil {
		return fmt.Errorf("append block %d: %w", b.Height, err)
	}
	idx.byHeight = append(idx.byHeight, h)
	idx.byHash[h] = b.Height
	return nil
}

func writeAddressEntries(txn *badgerdb.Txn, b Block) error {
	for t, tx := range b.Txs {
		for o, out := range tx.Outputs {
			if err := txn.Set(keyAddress(out.Address, b.Height, t, o), encodeAmount(out.Amount)); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddressEntries counts the index entries and sums the amounts paid to
// address.
func (idx *Index) AddressEntries(ctx context.Context, address string) (int, int64, error) {
	var count int
	var total int64
	prefix := keyAddressPrefix(address)
	err := idx.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := it.Item().Value(func(val []byte) error {
				if len(val) == 8 {
					total += int64(binary.BigEndian.Uint64(val))
				}
				return nil
			}); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, total, err
}
