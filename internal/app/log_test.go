package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPlotHandler_Handle(t *testing.T) {
	ts := time.Date(2026, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			opID:    "op-123",
			level:   slog.LevelInfo,
			message: "migration applied",
			want:    "2026-06-15T14:30:45Z\tINFO\top-123\tmigration applied\n",
		},
		{
			name:    "debug level",
			opID:    "op-456",
			level:   slog.LevelDebug,
			message: "loading document",
			want:    "2026-06-15T14:30:45Z\tDEBUG\top-456\tloading document\n",
		},
		{
			name:    "with record attrs",
			opID:    "op-789",
			level:   slog.LevelInfo,
			message: "backup created",
			attrs:   []slog.Attr{slog.String("key", "allotment-data-backup-1"), slog.Int("bytes", 42)},
			want:    "2026-06-15T14:30:45Z\tINFO\top-789\tbackup created\tkey=allotment-data-backup-1\tbytes=42\n",
		},
		{
			name:    "quotes values with spaces",
			opID:    "op-1",
			level:   slog.LevelWarn,
			message: "repaired",
			attrs:   []slog.Attr{slog.String("detail", "area bed a renamed")},
			want:    "2026-06-15T14:30:45Z\tWARN\top-1\trepaired\tdetail=\"area bed a renamed\"\n",
		},
		{
			name:    "flattens groups",
			opID:    "op-2",
			level:   slog.LevelInfo,
			message: "synced",
			attrs:   []slog.Attr{slog.Group("peer", slog.String("id", "r2"), slog.Int("ops", 3))},
			want:    "2026-06-15T14:30:45Z\tINFO\top-2\tsynced\tpeer.id=r2\tpeer.ops=3\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := newPlotHandler(&buf, tt.opID, slog.LevelDebug)

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			r.AddAttrs(tt.attrs...)

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestPlotHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := newPlotHandler(&buf, "op-1", slog.LevelDebug)

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "sync")}).(*plotHandler)

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "update applied", 0)
	r.AddAttrs(slog.String("peer", "abc"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=sync") {
		t.Errorf("expected pre-set attr component=sync, got: %q", got)
	}
	if !strings.Contains(got, "peer=abc") {
		t.Errorf("expected record attr peer=abc, got: %q", got)
	}
}

func TestPlotHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	h := newPlotHandler(&bytes.Buffer{}, "op-1", slog.LevelDebug)
	h.attrs = []slog.Attr{slog.String("a", "1")}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*plotHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestPlotHandler_Enabled(t *testing.T) {
	h := newPlotHandler(&bytes.Buffer{}, "", slog.LevelInfo)
	tests := []struct {
		level slog.Level
		want  bool
	}{
		{slog.LevelDebug, false},
		{slog.LevelInfo, true},
		{slog.LevelWarn, true},
		{slog.LevelError, true},
	}
	for _, tt := range tests {
		if got := h.Enabled(context.Background(), tt.level); got != tt.want {
			t.Errorf("Enabled(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestFanoutHandler(t *testing.T) {
	var all, warn bytes.Buffer
	logger := slog.New(&fanoutHandler{handlers: []slog.Handler{
		newPlotHandler(&all, "op", slog.LevelDebug),
		newPlotHandler(&warn, "op", slog.LevelWarn),
	}})

	logger.Debug("quiet")
	logger.Warn("loud")

	if !strings.Contains(all.String(), "quiet") || !strings.Contains(all.String(), "loud") {
		t.Errorf("debug handler missed records: %q", all.String())
	}
	if strings.Contains(warn.String(), "quiet") || !strings.Contains(warn.String(), "loud") {
		t.Errorf("warn handler = %q, want only the warning", warn.String())
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "test-op", slog.LevelError)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	logger.Info("written to file")

	data, err := os.ReadFile(filepath.Join(dir, "plot.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "test-op\twritten to file") {
		t.Errorf("log file = %q", data)
	}
}
