// Package daemon is the coind process lifecycle: it owns the daemon context
// (settings, lock, storage, key store, ledger index, workers) and drives the
// startup steps and the single teardown.
//
// Startup is a fixed list of steps run by the bootstrap sequencer on the
// calling goroutine. A subsystem registers its stop action with the
// shutdown coordinator only once it has fully started, so teardown touches
// exactly what exists. Workers are spawned into the thread group only after
// storage, the key store and the ledger index reported success.
//
// Keep orchestration here: what each subsystem does belongs to its own
// package.
package daemon
