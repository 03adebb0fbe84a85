// Package ipc is coind's command and control service: JSON-RPC over a Unix
// domain socket in the data directory, plus the client the CLI uses.
//
// The server never tears the node down itself. Stop only records a shutdown
// request with the Backend; the daemon's control path notices it and runs
// the shutdown sequence, which closes this server first.
package ipc
