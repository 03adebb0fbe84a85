// Package ledger keeps the block index in the storage environment.
//
// Blocks are CBOR encoded and addressed by their blake3 hash. The Index holds
// the height-to-hash chain in memory after Load and appends new blocks
// atomically together with their address index entries. RebuildAddressIndex
// recomputes those entries by walking from the tip back to genesis; it keeps
// no progress marker, so an interrupted rebuild starts again from the tip.
// Import reads CBOR block sequence files (the -loadblock option).
package ledger
