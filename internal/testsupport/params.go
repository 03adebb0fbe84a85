package testsupport

import (
	"os"
	"testing"

	"coind/internal/config"
)

// ParamsOption customizes the generated parameter set.
type ParamsOption func(*config.Params)

// NewParams returns a regtest parameter set rooted in a fresh temp
// directory, with peer listening and staking off so tests stay local.
func NewParams(t testing.TB, opts ...ParamsOption) *config.Params {
	t.Helper()

	p := config.NewParams()
	p.Set("datadir", t.TempDir())
	p.Set("regtest", "1")
	p.Set("listen", "0")
	p.Set("staking", "0")
	p.Set("keypool", "3")
	p.Set("shrinkdebugfile", "0")
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithOption sets a single-valued option.
func WithOption(key, value string) ParamsOption {
	return func(p *config.Params) {
		p.Set(key, value)
	}
}

// WithValues sets every value of a multi-valued option.
func WithValues(key string, values ...string) ParamsOption {
	return func(p *config.Params) {
		p.SetAll(key, values)
	}
}

// Settings resolves a copy of p, leaving p untouched.
func Settings(t testing.TB, p *config.Params) *config.Settings {
	t.Helper()

	s, _, err := config.Resolve(p.Clone())
	if err != nil {
		t.Fatalf("config.Resolve: %v", err)
	}
	return s
}

// DataDir resolves p and creates its network data directory.
func DataDir(t testing.TB, p *config.Params) string {
	t.Helper()

	s := Settings(t, p)
	if err := os.MkdirAll(s.DataDir, 0o700); err != nil {
		t.Fatalf("mkdir data dir: %v", err)
	}
	return s.DataDir
}
