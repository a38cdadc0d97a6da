// Package logbuf keeps the most recent log records in memory so the admin
// API can show what the bot did for a given draft without shell access.
package logbuf

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Entry is one captured log record. Component and Key are lifted out of the
// attributes because the API filters on them.
type Entry struct {
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Key       string         `json:"key,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`

	level slog.Level
}

// Query selects entries. Zero fields do not filter.
type Query struct {
	Since     time.Time
	MinLevel  slog.Level
	Component string
	// Key matches the draft key a record was logged for.
	Key string
	// Contains is a case-insensitive substring of the message.
	Contains string
	// Limit keeps the newest entries.
	Limit int
}

func (q Query) match(e *Entry) bool {
	if !q.Since.IsZero() && e.Time.Before(q.Since) {
		return false
	}
	if e.level < q.MinLevel {
		return false
	}
	if q.Component != "" && e.Component != q.Component {
		return false
	}
	if q.Key != "" && e.Key != q.Key {
		return false
	}
	if q.Contains != "" && !strings.Contains(strings.ToLower(e.Message), strings.ToLower(q.Contains)) {
		return false
	}
	return true
}

// Buffer is a fixed-size ring of entries, safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// New creates a buffer holding up to size entries.
func New(size int) *Buffer {
	if size < 1 {
		size = 1
	}
	return &Buffer{entries: make([]Entry, size)}
}

// Write stores e, evicting the oldest entry when the buffer is full.
func (b *Buffer) Write(e Entry) {
	if lvl, ok := parseLevel(e.Level); ok {
		e.level = lvl
	}
	b.mu.Lock()
	b.entries[b.next] = e
	b.next++
	if b.next == len(b.entries) {
		b.next = 0
		b.full = true
	}
	b.mu.Unlock()
}

// Len returns the number of stored entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return len(b.entries)
	}
	return b.next
}

// Query returns matching entries, oldest first.
func (b *Buffer) Query(q Query) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Entry
	visit := func(e *Entry) {
		if q.match(e) {
			out = append(out, *e)
		}
	}
	if b.full {
		for i := b.next; i < len(b.entries); i++ {
			visit(&b.entries[i])
		}
	}
	for i := 0; i < b.next; i++ {
		visit(&b.entries[i])
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

// ParseLevel reads a level name such as "warn" or "ERROR". Unknown names
// return false.
func ParseLevel(s string) (slog.Level, bool) {
	return parseLevel(s)
}

func parseLevel(s string) (slog.Level, bool) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, false
	}
	return l, true
}
