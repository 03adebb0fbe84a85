// Package preflight provides the readiness checks coind runs before it
// touches the data directory or spawns workers.
//
// CheckCrypto exercises the primitives the node depends on with known
// answers; a failure means the build or platform is broken and startup must
// stop. CheckDirectoryAccess and CheckDiskSpace guard the data directory.
// `coind status` reuses the same checks to display node health.
package preflight
