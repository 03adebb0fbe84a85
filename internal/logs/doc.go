// Package logs reads the node's debug.log for `coind logs`.
//
// Tail returns the last lines with bounded memory and the offset to resume
// from; Follow polls for appended lines and restarts from the top when the
// file shrinks underneath it (startup shrink or external rotation).
package logs
