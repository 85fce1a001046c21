package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// LogFileName is the process log inside the configured log directory.
const LogFileName = "da.log"

// daHandler is a slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<opID>\t<message>\t<key=value ...>
//
// Handlers derived with WithAttrs share the writer and its lock, so lines
// from concurrent workers never interleave.
type daHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	opID  string
	level slog.Leveler
	attrs []slog.Attr
}

func newDAHandler(w io.Writer, opID string, level slog.Leveler) *daHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &daHandler{mu: &sync.Mutex{}, w: w, opID: opID, level: level}
}

func (h *daHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *daHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")

	line := fmt.Sprintf("%s\t%s\t%s\t%s", ts, r.Level.String(), h.opID, r.Message)
	for _, a := range h.attrs {
		line += fmt.Sprintf("\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf("\t%s=%v", a.Key, a.Value)
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.w, line)
	return err
}

func (h *daHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &daHandler{
		mu:    h.mu,
		w:     h.w,
		opID:  h.opID,
		level: h.level,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *daHandler) WithGroup(string) slog.Handler { return h }

// parseLevel maps the config's log_level. Empty means info.
func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// newLogger creates a structured logger that writes to both logDir/da.log
// and stderr. It returns the slog.Logger, the open log file (for cleanup),
// and any error.
func newLogger(logDir, opID, levelName string, stderr io.Writer) (*slog.Logger, *os.File, error) {
	level, err := parseLevel(levelName)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(logDir, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	return slog.New(newDAHandler(io.MultiWriter(f, stderr), opID, level)), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy the da.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
