// Command coind runs the full-node daemon and talks to a running one.
//
// Run without a subcommand, coind starts the node in the foreground and
// exits once a shutdown was requested by a signal, by `coind stop`, or by a
// failed worker. The exit status distinguishes configuration errors (78) and
// a data directory already in use (17) from other failures (1).
package main
