package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"coind/internal/config"
	"coind/internal/daemon"
	"coind/internal/ipc"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCollectParamsKeepsOnlyChangedFlags(t *testing.T) {
	fs := pflag.NewFlagSet("coind", pflag.ContinueOnError)
	registerOptions(fs)
	err := fs.Parse([]string{
		"--regtest",
		"--listen=0",
		"--connect", "10.0.0.1:1",
		"--connect=10.0.0.2:2",
		"--debug",
		"--keypool", "7",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	p := collectParams(fs)
	if got := p.Keys(); !slices.Equal(got, []string{"connect", "debug", "keypool", "listen", "regtest"}) {
		t.Fatalf("keys = %v", got)
	}
	if !p.Bool("regtest", false) || p.Bool("listen", true) {
		t.Fatal("switch values not carried over")
	}
	if got := p.All("connect"); !slices.Equal(got, []string{"10.0.0.1:1", "10.0.0.2:2"}) {
		t.Fatalf("connect = %v", got)
	}
	if got := p.All("debug"); !slices.Equal(got, []string{"1"}) {
		t.Fatalf("debug = %v", got)
	}
	if got := p.Int("keypool", 0); got != 7 {
		t.Fatalf("keypool = %d", got)
	}
}

func TestEveryOptionIsRegistered(t *testing.T) {
	fs := pflag.NewFlagSet("coind", pflag.ContinueOnError)
	registerOptions(fs)
	seen := map[string]bool{}
	for _, opt := range nodeOptions {
		if seen[opt.name] {
			t.Fatalf("option %s listed twice", opt.name)
		}
		seen[opt.name] = true
		if fs.Lookup(opt.name) == nil {
			t.Fatalf("option %s has no flag", opt.name)
		}
	}
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "config", "init", "--datadir", dir)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	target := filepath.Join(dir, "coind.conf")
	if !strings.Contains(out, target) {
		t.Fatalf("unexpected output: %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config missing: %v", err)
	}

	if _, err := execute(t, "config", "init", "--datadir", dir); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected refusal to overwrite, got %v", err)
	}
	if _, err := execute(t, "config", "init", "--datadir", dir, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateRejectsConflictingNetworks(t *testing.T) {
	_, err := execute(t, "config", "validate", "--datadir", t.TempDir(), "--testnet", "--regtest")
	var cfgErr *config.Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *config.Error, got %v", err)
	}
	if code := daemon.ExitCode(err); code != daemon.ExitConfig {
		t.Fatalf("exit code = %d, want %d", code, daemon.ExitConfig)
	}
}

func TestStopAndStatusWithoutDaemon(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "stop", "--datadir", dir, "--regtest")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !strings.Contains(out, "not running") {
		t.Fatalf("unexpected stop output: %q", out)
	}

	out, err = execute(t, "status", "--datadir", dir, "--regtest")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "[ERROR] not running") {
		t.Fatalf("unexpected status output: %q", out)
	}
}

func TestRunServesStatusUntilStopped(t *testing.T) {
	dir := t.TempDir()
	args := []string{"--datadir", dir, "--regtest", "--listen=0", "--staking=0", "--shrinkdebugfile=0", "--keypool=3"}
	done := make(chan error, 1)
	go func() {
		_, err := execute(t, args...)
		done <- err
	}()

	socket := filepath.Join(dir, "regtest", "coind.sock")
	var client *ipc.Client
	deadline := time.Now().Add(30 * time.Second)
	for client == nil {
		select {
		case err := <-done:
			t.Fatalf("daemon exited early: %v", err)
		default:
		}
		if c, err := ipc.Dial(socket); err == nil {
			client = c
		} else if time.Now().After(deadline) {
			t.Fatalf("control service never came up: %v", err)
		} else {
			time.Sleep(20 * time.Millisecond)
		}
	}
	defer client.Close()

	out, err := execute(t, "status", "--datadir", dir, "--regtest")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"[OK] running", "Regtest", "flush-wallet", "storage-environment"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}

	if _, err := client.Stop("test finished"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("daemon returned error: %v", err)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("daemon did not exit after stop")
	}
}

func TestLogsPrintsTail(t *testing.T) {
	dir := t.TempDir()
	netDir := filepath.Join(dir, "regtest")
	if err := os.MkdirAll(netDir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(netDir, "debug.log"), []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	out, err := execute(t, "logs", "--datadir", dir, "--regtest", "-n", "2")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "two\nthree\n" {
		t.Fatalf("unexpected output: %q", out)
	}
}
