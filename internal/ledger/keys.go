package ledger

import "encoding/binary"

// Key layout in the storage environment:
//
//	blk/<hash>                              encoded block
//	hgt/<height:8>                          block hash at height
//	tip                                     hash of the best block
//	addr/<address>/<height:8><tx:4><out:4>  amount (8 bytes)
const (
	prefixBlock   = "blk/"
	prefixHeight  = "hgt/"
	prefixAddress = "addr/"
	keyTip        = "tip"
)

func keyBlock(h Hash) []byte {
	return append([]byte(prefixBlock), h[:]...)
}

func keyHeight(height int64) []byte {
	key := make([]byte, len(prefixHeight)+8)
	copy(key, prefixHeight)
	binary.BigEndian.PutUint64(key[len(prefixHeight):], uint64(height))
	return key
}

func heightFromKey(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key[len(prefixHeight):]))
}

func keyAddressPrefix(address string) []byte {
	return []byte(prefixAddress + address + "/")
}

func keyAddress(address string, height int64, tx, out int) []byte {
	prefix := keyAddressPrefix(address)
	key := make([]byte, len(prefix)+16)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(height))
	binary.BigEndian.PutUint32(key[len(prefix)+8:], uint32(tx))
	binary.BigEndian.PutUint32(key[len(prefix)+12:], uint32(out))
	return key
}

func encodeAmount(amount int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(amount))
	return buf[:]
}
