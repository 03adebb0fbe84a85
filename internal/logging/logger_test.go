package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"coind/internal/config"
	"coind/internal/logging"
	"coind/internal/testsupport"
)

func TestNewWritesJSONToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "json.log")

	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json message", logging.String("key", "value"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), `"msg":"json message"`) || !strings.Contains(string(content), `"level":"info"`) {
		t.Fatalf("unexpected json output: %s", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestNewFromSettingsWritesDebugLogAndReopens(t *testing.T) {
	dir := t.TempDir()
	settings := &config.Settings{DataDir: dir, LogFormat: "console", LogTimestamps: true}

	out, err := logging.NewFromSettings(settings, "run-42")
	if err != nil {
		t.Fatalf("NewFromSettings returned error: %v", err)
	}
	out.Logger.Info("before rotation")

	rotated := filepath.Join(dir, "debug.log.1")
	if err := os.Rename(settings.DebugLogPath(), rotated); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if err := out.Reopen(); err != nil {
		t.Fatalf("Reopen returned error: %v", err)
	}
	out.Logger.Info("after rotation")
	if err := out.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	out.Logger.Info("after close is dropped")

	old, _ := os.ReadFile(rotated)
	current, _ := os.ReadFile(settings.DebugLogPath())
	if !strings.Contains(string(old), "before rotation") {
		t.Fatalf("rotated file missing first record: %q", old)
	}
	if !strings.Contains(string(current), "after rotation") || strings.Contains(string(current), "before rotation") {
		t.Fatalf("reopened file has unexpected content: %q", current)
	}
	if strings.Contains(string(current), "after close") {
		t.Fatalf("records after Close should be dropped: %q", current)
	}
}

func TestShrinkFileKeepsTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	testsupport.WriteFile(t, path, 10*1000*1000+1000, "tail")

	shrunk, err := logging.ShrinkFile(path)
	if err != nil {
		t.Fatalf("ShrinkFile returned error: %v", err)
	}
	if !shrunk {
		t.Fatal("expected file to be shrunk")
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 200*1000 || !strings.HasSuffix(string(got), "tail") {
		t.Fatalf("unexpected shrunk file: len=%d", len(got))
	}
}

func TestShrinkFileLeavesSmallFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	if err := os.WriteFile(path, []byte("small"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	shrunk, err := logging.ShrinkFile(path)
	if err != nil || shrunk {
		t.Fatalf("expected (false, nil), got (%v, %v)", shrunk, err)
	}
	if shrunk, err := logging.ShrinkFile(filepath.Join(t.TempDir(), "missing.log")); err != nil || shrunk {
		t.Fatalf("missing file: (%v, %v)", shrunk, err)
	}
}
