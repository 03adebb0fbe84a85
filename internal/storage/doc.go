// Package storage opens the node's storage environment, the badger database
// under <datadir>/database that holds the block and address indexes.
//
// Opening follows a fixed recovery protocol. A healthy environment opens
// with OutcomeOK. If the open fails, the directory is renamed aside to
// database.<unix-seconds>.bak and the open is retried exactly once against a
// fresh directory; success yields OutcomeRecoveredWithWarning. A second
// failure is reported as a *CorruptionError of kind Unrecoverable. Nothing is
// ever deleted: a repaired environment always leaves its predecessor on disk
// for the operator.
package storage
