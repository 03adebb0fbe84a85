package keystore

import "context"

// SetIntegrityCheckForTests overrides the file integrity check during tests.
func SetIntegrityCheckForTests(fn func(context.Context, string) error) func() {
	previous := integrityCheck
	integrityCheck = fn
	return func() {
		integrityCheck = previous
	}
}
