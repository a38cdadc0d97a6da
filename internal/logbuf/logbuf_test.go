package logbuf

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestBufferRingOverwrite(t *testing.T) {
	buf := New(3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		buf.Write(Entry{
			Time:    now.Add(time.Duration(i) * time.Second),
			Level:   "INFO",
			Message: "msg",
			Attrs:   map[string]any{"i": i},
		})
	}

	if buf.Len() != 3 {
		t.Fatalf("Len = %d, want 3", buf.Len())
	}
	entries := buf.Query(Query{})
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Attrs["i"] != 2 || entries[2].Attrs["i"] != 4 {
		t.Fatalf("entries not oldest-first: %v .. %v", entries[0].Attrs, entries[2].Attrs)
	}
}

func TestBufferQueryFilters(t *testing.T) {
	buf := New(10)
	now := time.Now()

	buf.Write(Entry{Time: now, Level: "DEBUG", Message: "fetching thread", Component: "bot", Key: "C1_1"})
	buf.Write(Entry{Time: now.Add(time.Second), Level: "INFO", Message: "Draft sent for review", Component: "bot", Key: "C1_1"})
	buf.Write(Entry{Time: now.Add(2 * time.Second), Level: "WARN", Message: "slack socket connection error", Component: "slack"})
	buf.Write(Entry{Time: now.Add(3 * time.Second), Level: "ERROR", Message: "worker failed", Component: "bot", Key: "C2_2"})

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"all", Query{MinLevel: slog.LevelDebug}, []string{"fetching thread", "Draft sent for review", "slack socket connection error", "worker failed"}},
		{"default level hides debug", Query{}, []string{"Draft sent for review", "slack socket connection error", "worker failed"}},
		{"warn and up", Query{MinLevel: slog.LevelWarn}, []string{"slack socket connection error", "worker failed"}},
		{"since", Query{Since: now.Add(2 * time.Second)}, []string{"slack socket connection error", "worker failed"}},
		{"component", Query{MinLevel: slog.LevelDebug, Component: "slack"}, []string{"slack socket connection error"}},
		{"key", Query{MinLevel: slog.LevelDebug, Key: "C1_1"}, []string{"fetching thread", "Draft sent for review"}},
		{"contains", Query{Contains: "DRAFT"}, []string{"Draft sent for review"}},
		{"limit keeps newest", Query{MinLevel: slog.LevelDebug, Limit: 2}, []string{"slack socket connection error", "worker failed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buf.Query(tt.q)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Message != tt.want[i] {
					t.Errorf("[%d] = %q, want %q", i, got[i].Message, tt.want[i])
				}
			}
		})
	}
}

func TestHandlerCapturesAllLevels(t *testing.T) {
	buf := New(10)
	inner := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := slog.New(NewHandler(inner, buf))

	logger.Debug("debug msg")
	logger.Info("info msg")
	logger.Warn("warn msg")

	if got := len(buf.Query(Query{MinLevel: slog.LevelDebug})); got != 3 {
		t.Fatalf("expected 3 entries in buffer, got %d", got)
	}
}

func TestHandlerPromotesComponentAndKey(t *testing.T) {
	buf := New(10)
	logger := slog.New(NewHandler(slog.NewJSONHandler(io.Discard, nil), buf)).
		With("component", "bot")

	logger.With("worker", "w-1").Error("worker failed", "key", "C1_1", "error", errors.New("boom"))

	entries := buf.Query(Query{Component: "bot", Key: "C1_1"})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Level != "ERROR" {
		t.Errorf("level = %q", e.Level)
	}
	if e.Attrs["worker"] != "w-1" {
		t.Errorf("worker attr = %v", e.Attrs["worker"])
	}
	if e.Attrs["error"] != "boom" {
		t.Errorf("error attr = %v, want string", e.Attrs["error"])
	}
	if _, ok := e.Attrs["component"]; ok {
		t.Error("component left in attrs")
	}
}

func TestHandlerGroups(t *testing.T) {
	buf := New(10)
	logger := slog.New(NewHandler(slog.NewTextHandler(io.Discard, nil), buf))

	logger.WithGroup("jira").Info("request", "status", 201, slog.Group("retry", "attempt", 2))

	e := buf.Query(Query{})[0]
	if e.Attrs["jira.status"] != int64(201) {
		t.Errorf("jira.status = %#v", e.Attrs["jira.status"])
	}
	if e.Attrs["jira.retry.attempt"] != int64(2) {
		t.Errorf("jira.retry.attempt = %#v", e.Attrs["jira.retry.attempt"])
	}
}

func TestHandlerEnabled(t *testing.T) {
	h := NewHandler(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}), New(1))
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("buffer must see debug records")
	}
}

func TestParseLevel(t *testing.T) {
	if l, ok := ParseLevel("warn"); !ok || l != slog.LevelWarn {
		t.Errorf("warn = %v %v", l, ok)
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Error("unknown level accepted")
	}
}
