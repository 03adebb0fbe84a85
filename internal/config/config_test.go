package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"coind/internal/config"
)

func newParams(t *testing.T, kv ...string) *config.Params {
	t.Helper()
	if len(kv)%2 != 0 {
		t.Fatalf("odd key/value list")
	}
	p := config.NewParams()
	p.Set("datadir", t.TempDir())
	for i := 0; i < len(kv); i += 2 {
		p.Add(kv[i], kv[i+1])
	}
	return p
}

func TestCascadeConnectDisablesSeedingAndListening(t *testing.T) {
	p := newParams(t, "connect", "10.0.0.1:24055")

	interactions := config.ApplyCascade(p)

	if p.Bool("dnsseed", true) {
		t.Fatal("expected dnsseed soft-set to 0")
	}
	if p.Bool("listen", true) {
		t.Fatal("expected listen soft-set to 0")
	}
	// listen=0 from rule 2 feeds rule 4
	if p.Bool("upnp", true) || p.Bool("discover", true) {
		t.Fatal("expected upnp and discover soft-set to 0 after listen resolved false")
	}
	if len(interactions) != 4 {
		t.Fatalf("expected 4 interactions, got %d: %+v", len(interactions), interactions)
	}
}

func TestCascadeNeverOverridesOperatorValue(t *testing.T) {
	p := newParams(t, "connect", "10.0.0.1", "listen", "1")

	config.ApplyCascade(p)

	if !p.Bool("listen", false) {
		t.Fatal("operator listen=1 was overridden")
	}
	if p.Has("upnp") {
		t.Fatal("upnp must not be touched while listen stays true")
	}
	if p.Bool("dnsseed", true) {
		t.Fatal("expected dnsseed soft-set to 0")
	}
}

func TestCascadeBindWinsOverProxyForListen(t *testing.T) {
	p := newParams(t, "bind", "127.0.0.1:24055", "proxy", "127.0.0.1:9050")

	interactions := config.ApplyCascade(p)

	if !p.Bool("listen", false) {
		t.Fatal("bind should soft-set listen=1 before proxy is considered")
	}
	if p.Bool("discover", true) {
		t.Fatal("proxy should soft-set discover=0")
	}
	want := []config.Interaction{
		{Trigger: "-bind set", Key: "listen", Value: true},
		{Trigger: "-proxy set", Key: "discover", Value: false},
	}
	if !reflect.DeepEqual(interactions, want) {
		t.Fatalf("unexpected interactions: %+v", interactions)
	}
}

func TestCascadeExternalIPAndSalvage(t *testing.T) {
	p := newParams(t, "externalip", "203.0.113.7", "salvagewallet", "1")

	config.ApplyCascade(p)

	if p.Bool("discover", true) {
		t.Fatal("externalip should disable discovery")
	}
	if !p.Bool("rescan", false) {
		t.Fatal("salvagewallet should imply rescan")
	}
}

func TestSoftSetReportsChange(t *testing.T) {
	p := config.NewParams()
	if !p.SoftSet("-listen", "0") {
		t.Fatal("expected first soft-set to apply")
	}
	if p.SoftSet("listen", "1") {
		t.Fatal("expected second soft-set to be ignored")
	}
	if got, _ := p.Get("listen"); got != "0" {
		t.Fatalf("listen = %q, want 0", got)
	}
}

func TestResolveRejectsTestnetWithRegtestBeforeCascade(t *testing.T) {
	p := newParams(t, "testnet", "1", "regtest", "1", "connect", "10.0.0.1")

	_, _, err := config.Resolve(p)

	var cfgErr *config.Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *config.Error, got %v", err)
	}
	if p.Has("listen") || p.Has("dnsseed") {
		t.Fatal("cascade ran despite exclusive network modes")
	}
}

func TestResolveDefaults(t *testing.T) {
	p := newParams(t)

	settings, interactions, err := config.Resolve(p)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(interactions) != 0 {
		t.Fatalf("unexpected interactions: %+v", interactions)
	}
	if settings.Network != config.NetworkMain || settings.Port != 24055 {
		t.Fatalf("unexpected network defaults: %s:%d", settings.Network, settings.Port)
	}
	if !settings.Listen || !settings.Discover || !settings.DNSSeed || settings.UPnP {
		t.Fatalf("unexpected listener defaults: %+v", settings)
	}
	if settings.ConnectTimeout != 5*time.Second {
		t.Fatalf("timeout = %s", settings.ConnectTimeout)
	}
	if !settings.Staking || settings.MinerSleep != 500*time.Millisecond {
		t.Fatalf("unexpected staking defaults: %v %s", settings.Staking, settings.MinerSleep)
	}
	if settings.PIDFile != filepath.Join(settings.DataDir, "coind.pid") {
		t.Fatalf("pid file = %q", settings.PIDFile)
	}
	if settings.WalletPath() != filepath.Join(settings.DataDir, "wallet.db") {
		t.Fatalf("wallet path = %q", settings.WalletPath())
	}
}

func TestResolveNetworkDataDir(t *testing.T) {
	p := newParams(t, "regtest", "1")

	settings, _, err := config.Resolve(p)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if filepath.Base(settings.DataDir) != "regtest" || settings.Port != 18444 {
		t.Fatalf("unexpected regtest settings: %s %d", settings.DataDir, settings.Port)
	}
}

func TestResolveDebugZeroDisablesCategories(t *testing.T) {
	p := newParams(t, "debug", "net", "debug", "0", "debug", "rpc")

	settings, _, err := config.Resolve(p)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if settings.Debug || len(settings.DebugCategories) != 0 {
		t.Fatalf("expected debug off, got %v %v", settings.Debug, settings.DebugCategories)
	}

	p = newParams(t, "debug", "net", "debug", "rpc")
	settings, _, err = config.Resolve(p)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !settings.Debug || !reflect.DeepEqual(settings.DebugCategories, []string{"net", "rpc"}) {
		t.Fatalf("unexpected debug settings: %v %v", settings.Debug, settings.DebugCategories)
	}
}

func TestResolveWarnsOnDebugnet(t *testing.T) {
	settings, _, err := config.Resolve(newParams(t, "debugnet", "1"))
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(settings.Warnings) != 1 || !strings.Contains(settings.Warnings[0], "debugnet") {
		t.Fatalf("expected debugnet warning, got %v", settings.Warnings)
	}
}

func TestResolveRejectsInvalidCombinations(t *testing.T) {
	tests := []struct {
		name   string
		kv     []string
		option string
	}{
		{name: "socks", kv: []string{"socks", "4"}, option: "socks"},
		{name: "wallet path", kv: []string{"wallet", "../wallet.db"}, option: "wallet"},
		{name: "timeout", kv: []string{"timeout", "600000"}, option: "timeout"},
		{name: "onlynet", kv: []string{"onlynet", "i2p"}, option: "onlynet"},
		{name: "proxy", kv: []string{"proxy", ":9050"}, option: "proxy"},
		{name: "masternode without key", kv: []string{"masternode", "1"}, option: "masternodeprivkey"},
		{name: "masternode litemode", kv: []string{"masternode", "1", "litemode", "1"}, option: "litemode"},
		{name: "logformat", kv: []string{"logformat", "xml"}, option: "logformat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := config.Resolve(newParams(t, tt.kv...))
			var cfgErr *config.Error
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *config.Error, got %v", err)
			}
			if cfgErr.Option != tt.option {
				t.Fatalf("option = %q, want %q", cfgErr.Option, tt.option)
			}
		})
	}
}

func TestResolveMixingClamps(t *testing.T) {
	settings, _, err := config.Resolve(newParams(t, "darksendrounds", "40"))
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if settings.DarksendRounds != 16 {
		t.Fatalf("darksendrounds = %d, want 16", settings.DarksendRounds)
	}

	settings, _, err = config.Resolve(newParams(t, "liquidityprovider", "250"))
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if settings.LiquidityProvider != 100 || !settings.EnableDarksend || settings.DarksendRounds != 99999 {
		t.Fatalf("unexpected liquidity settings: %+v", settings)
	}
}

func TestResolveProxyDefaultPort(t *testing.T) {
	settings, _, err := config.Resolve(newParams(t, "proxy", "127.0.0.1"))
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if settings.Proxy != "127.0.0.1:9050" {
		t.Fatalf("proxy = %q", settings.Proxy)
	}
	if settings.Listen {
		t.Fatal("proxy should disable listening")
	}
}

func TestLoadFileCommandLineWins(t *testing.T) {
	p := newParams(t, "port", "30000")
	path := filepath.Join(t.TempDir(), "coind.conf")
	contents := "port = 31000\nlisten = false\nconnect = [\"10.0.0.1\", \"10.0.0.2\"]\ntimeout = 2500\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	found, err := config.LoadFile(path, p)
	if err != nil {
		t.Fatalf("LoadFile returned error: %v", err)
	}
	if !found {
		t.Fatal("expected config file to be found")
	}
	if got := p.Int("port", 0); got != 30000 {
		t.Fatalf("port = %d, want command-line value", got)
	}
	if p.Bool("listen", true) {
		t.Fatal("expected listen=false from file")
	}
	if got := p.All("connect"); !reflect.DeepEqual(got, []string{"10.0.0.1", "10.0.0.2"}) {
		t.Fatalf("connect = %v", got)
	}
	if got := p.Int("timeout", 0); got != 2500 {
		t.Fatalf("timeout = %d", got)
	}
}

func TestLoadFileYAML(t *testing.T) {
	p := config.NewParams()
	path := filepath.Join(t.TempDir(), "coind.yaml")
	contents := "debug:\n  - net\n  - rpc\nstaking: false\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := config.LoadFile(path, p); err != nil {
		t.Fatalf("LoadFile returned error: %v", err)
	}
	if got := p.All("debug"); !reflect.DeepEqual(got, []string{"net", "rpc"}) {
		t.Fatalf("debug = %v", got)
	}
	if p.Bool("staking", true) {
		t.Fatal("expected staking=false")
	}
}

func TestLoadFileMissingIsNotAnError(t *testing.T) {
	found, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.conf"), config.NewParams())
	if err != nil || found {
		t.Fatalf("expected (false, nil), got (%v, %v)", found, err)
	}
}

func TestLoadFileUnreadableIsConfigError(t *testing.T) {
	// A directory exists but cannot be read as a file, even as root.
	path := filepath.Join(t.TempDir(), "coind.conf")
	if err := os.Mkdir(path, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	found, err := config.LoadFile(path, config.NewParams())
	var cfgErr *config.Error
	if found || !errors.As(err, &cfgErr) {
		t.Fatalf("expected *config.Error, got (%v, %v)", found, err)
	}
	if cfgErr.Option != "conf" || !strings.Contains(cfgErr.Reason, path) {
		t.Fatalf("unexpected error: %+v", cfgErr)
	}
}

func TestCreateSampleParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "coind.conf")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	p := config.NewParams()
	if _, err := config.LoadFile(path, p); err != nil {
		t.Fatalf("sample config should parse: %v", err)
	}
}
