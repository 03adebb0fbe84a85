package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"coind/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string
	Development bool
	// NoTimestamps drops the time from every record (-logtimestamps=0).
	NoTimestamps bool
	// DebugCategories limits debug records to the named categories.
	DebugCategories []string
	RunID           string
}

type handlerOptions struct {
	addSource  bool
	timestamps bool
	color      bool
}

// Output is a constructed logger together with the files it writes to. The
// files can be reopened after an external rotation (SIGHUP).
type Output struct {
	Logger *slog.Logger
	files  []*ReopenableFile
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	out, err := Open(opts)
	if err != nil {
		return nil, err
	}
	return out.Logger, nil
}

// Open is New that also hands back the opened files.
func Open(opts Options) (*Output, error) {
	level := parseLevel(opts.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	writer, files, err := openWriters(defaultSlice(opts.OutputPaths, []string{"stdout"}))
	if err != nil {
		return nil, err
	}
	hopts := handlerOptions{
		addSource:  opts.Development || level <= slog.LevelDebug,
		timestamps: !opts.NoTimestamps,
	}

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	var handler slog.Handler
	switch format {
	case "json":
		handler = newJSONHandler(writer, levelVar, hopts)
	case "console", "":
		handler = newConsoleHandler(writer, levelVar, hopts)
	default:
		closeFiles(files)
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
	handler = newCategoryHandler(handler, opts.DebugCategories)
	handler = newRunIDHandler(handler, opts.RunID)
	return &Output{Logger: slog.New(handler), files: files}, nil
}

// NewFromSettings builds the daemon logger: debug.log in the data directory
// in the configured format, plus a console copy on stdout when
// -printtoconsole is set.
func NewFromSettings(s *config.Settings, runID string) (*Output, error) {
	if s == nil {
		return nil, errors.New("logging: nil settings")
	}
	file, err := OpenReopenable(s.DebugLogPath())
	if err != nil {
		return nil, err
	}

	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(s.LogLevel()))
	hopts := handlerOptions{addSource: s.Debug, timestamps: s.LogTimestamps}

	var fileHandler slog.Handler
	if s.LogFormat == "json" {
		fileHandler = newJSONHandler(file, levelVar, hopts)
	} else {
		fileHandler = newConsoleHandler(file, levelVar, hopts)
	}

	var stdoutHandler slog.Handler
	if s.PrintToConsole {
		consoleOpts := hopts
		consoleOpts.color = isTerminal(os.Stdout)
		stdoutHandler = newConsoleHandler(os.Stdout, levelVar, consoleOpts)
	}

	handler := newFanoutHandler(fileHandler, stdoutHandler)
	handler = newCategoryHandler(handler, s.DebugCategories)
	handler = newRunIDHandler(handler, runID)
	return &Output{Logger: slog.New(handler), files: []*ReopenableFile{file}}, nil
}

// NewBootstrap returns the console logger used before the data directory is
// known. Colour is enabled only when w is a terminal.
func NewBootstrap(w *os.File, runID string) *slog.Logger {
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	handler := newConsoleHandler(w, levelVar, handlerOptions{timestamps: true, color: isTerminal(w)})
	return slog.New(newRunIDHandler(handler, runID))
}

// Reopen reopens every file the logger writes to.
func (o *Output) Reopen() error {
	if o == nil {
		return nil
	}
	var errs []error
	for _, f := range o.files {
		if err := f.Reopen(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every file the logger writes to. Records logged afterwards
// are dropped.
func (o *Output) Close() error {
	if o == nil {
		return nil
	}
	return closeFiles(o.files)
}

func closeFiles(files []*ReopenableFile) error {
	var errs []error
	for _, f := range files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func defaultSlice(value []string, fallback []string) []string {
	if len(value) == 0 {
		return append([]string(nil), fallback...)
	}
	return append([]string(nil), value...)
}

func openWriters(paths []string) (io.Writer, []*ReopenableFile, error) {
	seen := map[string]struct{}{}
	var writers []io.Writer
	var files []*ReopenableFile

	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}

		switch trimmed {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			file, err := OpenReopenable(trimmed)
			if err != nil {
				closeFiles(files)
				return nil, nil, err
			}
			files = append(files, file)
			writers = append(writers, file)
		}
	}

	switch len(writers) {
	case 0:
		return os.Stdout, files, nil
	case 1:
		return writers[0], files, nil
	}
	return io.MultiWriter(writers...), files, nil
}
