package preflight

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"coind/internal/config"
)

func TestCheckCrypto(t *testing.T) {
	result := CheckCrypto()
	if !result.Passed {
		t.Fatalf("crypto sanity failed: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDiskSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckDiskSpace("disk", dir, 1); !result.Passed {
		t.Fatalf("expected pass with a one byte minimum, got: %s", result.Detail)
	}
	result := CheckDiskSpace("disk", dir, math.MaxUint64)
	if result.Passed || !strings.Contains(result.Detail, "required") {
		t.Fatalf("expected shortage, got: %+v", result)
	}
}

func TestRunAllAndFailed(t *testing.T) {
	ok := RunAll(&config.Settings{DataDir: t.TempDir()})
	if len(ok) != 2 {
		t.Fatalf("expected 2 results, got %d", len(ok))
	}
	if err := Failed(ok); err != nil {
		t.Fatalf("expected no failures, got %v", err)
	}

	missing := RunAll(&config.Settings{DataDir: filepath.Join(t.TempDir(), "gone")})
	err := Failed(missing)
	if err == nil || !strings.Contains(err.Error(), "Data directory") {
		t.Fatalf("expected data directory failure, got %v", err)
	}
	if RunAll(nil) != nil {
		t.Fatal("expected nil results for nil settings")
	}
}
