package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewNilConfig(t *testing.T) {
	l := New(nil)
	if l == nil {
		t.Fatalf("expected a usable logger")
	}
	if !l.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("nil config should log at info")
	}
	if l.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatalf("nil config should not log at debug")
	}
}

func TestNewRespectsLevel(t *testing.T) {
	l := New(&Config{Level: "error"})
	if l.Enabled(context.Background(), slog.LevelWarn) {
		t.Fatalf("warn should be suppressed at error level")
	}
	if !l.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("error should be enabled")
	}
}

func TestWriterFileWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.log")
	c := &Config{Path: path}

	w := c.writer()
	rot, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("expected rotating writer, got %T", w)
	}
	if rot.MaxSize != DefaultMaxSizeMB || rot.MaxBackups != DefaultMaxBackups || rot.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("defaults not applied: %+v", rot)
	}

	l := New(c)
	l.Info("agent started", "queue", 0)
	_ = rot.Close()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not created: %v", err)
	}
	if !strings.Contains(string(data), "agent started") {
		t.Fatalf("log line missing: %q", string(data))
	}
}

func TestWriterStderrWhenNoPath(t *testing.T) {
	c := &Config{}
	if c.writer() != os.Stderr {
		t.Fatalf("empty path should log to stderr")
	}
}
