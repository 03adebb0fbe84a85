// Package workers holds the daemon's background maintenance loops.
//
// Each worker exposes Run(ctx) and is started through the daemon's thread
// group; Run returns promptly once ctx is done. The loops keep the node's
// housekeeping going (key store flushing, chain import, staking attempts,
// mixing pool expiry, masternode pings). The protocols behind staking,
// mixing and voting are not implemented here.
package workers
