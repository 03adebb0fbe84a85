// Package config turns operator options into the resolved parameter set the
// daemon runs with.
//
// Options arrive as a Params value (option name to ordered values) built from
// the command line and, beneath it, the TOML or YAML configuration file. The
// parameter interaction cascade then fills in defaults that follow from other
// options (a -connect peer list disables DNS seeding and listening, a proxy
// disables discovery, and so on) through soft-sets that never override a value
// the operator supplied. Resolve runs the cascade and produces the typed
// Settings consumed by the rest of the daemon.
//
// Contradictory or unsupported options are reported as *Error so the caller
// can exit with the configuration status before touching the data directory.
package config
