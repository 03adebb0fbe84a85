package ledger

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// Hash identifies blocks and transactions.
type Hash [32]byte

// String returns the hex form of h.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Output pays Amount to Address.
type Output struct {
	Address string `cbor:"1,keyasint"`
	Amount  int64  `cbor:"2,keyasint"`
}

// Tx is a ledger transaction. Only its outputs matter to the index.
type Tx struct {
	Outputs []Output `cbor:"1,keyasint"`
	Memo    string   `cbor:"2,keyasint,omitempty"`
}

// Block is one entry of the chain.
type Block struct {
	Height int64  `cbor:"1,keyasint"`
	Prev   Hash   `cbor:"2,keyasint"`
	Time   int64  `cbor:"3,keyasint"`
	Memo   string `cbor:"4,keyasint,omitempty"`
	Txs    []Tx   `cbor:"5,keyasint"`
}

type header struct {
	Height int64  `cbor:"1,keyasint"`
	Prev   Hash   `cbor:"2,keyasint"`
	Time   int64  `cbor:"3,keyasint"`
	Memo   string `cbor:"4,keyasint,omitempty"`
	TxRoot Hash   `cbor:"5,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("ledger: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("ledger: CBOR decoder initialization failed: " + err.Error())
	}
}

// ID returns the transaction hash.
func (tx Tx) ID() Hash {
	data, err := encMode.Marshal(tx)
	if err != nil {
		panic("ledger: encode transaction: " + err.Error())
	}
	return Hash(blake3.Sum256(data))
}

// Hash returns the block hash, computed over the header and the root of the
// transaction ids.
func (b Block) Hash() Hash {
	root := blake3.New()
	for _, tx := range b.Txs {
		id := tx.ID()
		_, _ = root.Write(id[:])
	}
	h := header{Height: b.Height, Prev: b.Prev, Time: b.Time, Memo: b.Memo}
	copy(h.TxRoot[:], root.Sum(nil))
	data, err := encMode.Marshal(h)
	if err != nil {
		panic("ledger: encode header: " + err.Error())
	}
	return Hash(blake3.Sum256(data))
}

// Genesis returns the first block of the named network.
func Genesis(network string) Block {
	return Block{Height: 0, Time: genesisTime, Memo: "coind genesis " + network}
}

const genesisTime = 1393221600

func encodeBlock(b Block) ([]byte, error) {
	data, err := encMode.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode block %d: %w", b.Height, err)
	}
	return data, nil
}

func decodeBlock(data []byte) (Block, error) {
	var b Block
	if err := decMode.Unmarshal(data, &b); err != nil {
		return Block{}, fmt.Errorf("decode block: %w", err)
	}
	return b, nil
}

// WriteBlocks writes blocks to w as a CBOR sequence, the format Import reads.
func WriteBlocks(w io.Writer, blocks []Block) error {
	enc := encMode.NewEncoder(w)
	for _, b := range blocks {
		if err := enc.Encode(b); err != nil {
			return fmt.Errorf("write block %d: %w", b.Height, err)
		}
	}
	return nil
}
