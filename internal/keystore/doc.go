// Package keystore persists the node's keys and wallet transactions in a
// SQLite file inside the data directory (wallet.db by default).
//
// Startup touches the store twice. Verify checks the file before anything
// else opens it: a healthy file passes, a damaged one is salvaged (the
// original is kept as wallet.<unix-seconds>.bak and every readable key is
// copied into a fresh file), and a file that cannot be salvaged is put back
// under its own name so the operator can inspect it. Load then opens the file,
// classifies what it finds (corrupt keys, a format from a newer client, a
// legacy format that needed rewriting, or only non-critical damage) and tops
// up the key pool. A fresh data directory gets a default key on first load.
//
// Rescan replays the chain from the stored best-block locator (or from
// genesis) to pick up outputs paying the store's addresses, and SetBestChain
// records the locator again on shutdown.
package keystore
