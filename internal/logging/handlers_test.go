package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Fatal("expected single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsEachLevel(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	logger := slog.New(h).With(String(FieldComponent, "test"))

	logger.Debug("debug only")

	if infoBuf.Len() != 0 {
		t.Fatalf("info handler received debug record: %s", infoBuf.String())
	}
	if !strings.Contains(debugBuf.String(), `"component":"test"`) {
		t.Fatalf("debug handler missing bound attrs: %s", debugBuf.String())
	}
}

func TestCategoryHandlerFiltersDebugRecords(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(newCategoryHandler(base, []string{"net"}))

	logger.Debug("kept", Category("net"))
	logger.Debug("dropped", Category("rpc"))
	logger.Debug("untagged")
	logger.With(Category("rpc")).Info("info always passes")
	logger.With(Category("rpc")).Debug("bound category dropped")

	out := buf.String()
	for _, want := range []string{"kept", "untagged", "info always passes"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output: %s", want, out)
		}
	}
	for _, unwanted := range []string{"dropped\"", "bound category dropped"} {
		if strings.Contains(out, unwanted) {
			t.Fatalf("unexpected %q in output: %s", unwanted, out)
		}
	}
}

func TestRunIDHandlerStampsRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newRunIDHandler(slog.NewJSONHandler(&buf, nil), "run-1"))
	logger.Info("hello")
	if !strings.Contains(buf.String(), `"run_id":"run-1"`) {
		t.Fatalf("missing run id: %s", buf.String())
	}
}

func TestConsoleHandlerFormatsInfoInline(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	h := newConsoleHandler(&buf, levelVar, handlerOptions{})
	logger := slog.New(h).With(String(FieldComponent, "storage"), String(FieldRunID, "hidden"))

	logger.Info("environment opened", String("path", "/tmp/db dir"), Int("attempts", 1))

	line := buf.String()
	if !strings.HasPrefix(line, "INFO [storage] environment opened") {
		t.Fatalf("unexpected header: %q", line)
	}
	if !strings.Contains(line, `path="/tmp/db dir"`) || !strings.Contains(line, "attempts=1") {
		t.Fatalf("missing attributes: %q", line)
	}
	if strings.Contains(line, "hidden") {
		t.Fatalf("run id should not be printed on console: %q", line)
	}
}

func TestConsoleHandlerDebugUsesIndentedFields(t *testing.T) {
	var buf bytes.Buffer
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelDebug)
	h := newConsoleHandler(&buf, levelVar, handlerOptions{})

	if err := h.Handle(context.Background(), newRecord(slog.LevelDebug, "detail", String("key", "value"))); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "\n    key: value\n") {
		t.Fatalf("unexpected debug layout: %q", buf.String())
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	WarnWithContext(logger, "salvaged key store", "keystore_salvaged", String(FieldImpact, "some transactions may be missing"))

	out := buf.String()
	for _, want := range []string{`"event_type":"keystore_salvaged"`, `"error_hint"`, `"impact":"some transactions may be missing"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func newRecord(level slog.Level, msg string, attrs ...slog.Attr) slog.Record {
	var r slog.Record
	r.Level = level
	r.Message = msg
	r.AddAttrs(attrs...)
	return r
}

func TestSwitchRedirectsDerivedLoggers(t *testing.T) {
	var first, second bytes.Buffer
	sw := NewSwitch(slog.NewJSONHandler(&first, nil))
	logger := slog.New(sw).With(String(FieldComponent, "storage")).WithGroup("db")

	logger.Info("before", String("path", "a"))
	sw.Set(slog.NewJSONHandler(&second, nil))
	logger.Info("after", String("path", "b"))

	if !strings.Contains(first.String(), `"msg":"before"`) || strings.Contains(first.String(), "after") {
		t.Fatalf("unexpected first output: %s", first.String())
	}
	out := second.String()
	if !strings.Contains(out, `"component":"storage"`) || !strings.Contains(out, `"db":{"path":"b"}`) {
		t.Fatalf("derived attrs lost after switch: %s", out)
	}
}

func TestSwitchNilTargetDiscards(t *testing.T) {
	sw := NewSwitch(nil)
	if sw.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected nil target to discard records")
	}
}
