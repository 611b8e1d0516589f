/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps the most recent structured log lines in memory so
// operators can inspect generation warnings without shell access.
package logbuffer

import (
	"strings"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Entry is one captured log line.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a fixed-capacity ring of entries, safe for concurrent use.
type Buffer struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	head     int
	count    int
}

// New creates a buffer. A non-positive capacity means 5000.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 5000
	}
	return &Buffer{entries: make([]Entry, capacity), capacity: capacity}
}

// Add appends an entry, overwriting the oldest once full.
func (b *Buffer) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.head] = e
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// Entries returns every entry, oldest first.
func (b *Buffer) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, b.count)
	start := 0
	if b.count == b.capacity {
		start = b.head
	}
	for i := range out {
		out[i] = b.entries[(start+i)%b.capacity]
	}
	return out
}

// Clear drops every entry.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make([]Entry, b.capacity)
	b.head = 0
	b.count = 0
}

// Query filters captured entries.
type Query struct {
	// MinLevel keeps entries at or above this zerolog level name.
	MinLevel   string
	Component  string
	ChannelID  string
	Search     string
	Since      time.Time
	Limit      int
	Descending bool
}

// Query returns the entries matching q.
func (b *Buffer) Query(q Query) []Entry {
	floor := zerolog.TraceLevel
	if q.MinLevel != "" {
		if lvl, err := zerolog.ParseLevel(q.MinLevel); err == nil {
			floor = lvl
		}
	}
	search := strings.ToLower(q.Search)

	var out []Entry
	for _, e := range b.Entries() {
		if lvl, err := zerolog.ParseLevel(e.Level); err == nil && lvl < floor {
			continue
		}
		if q.Component != "" && e.Component != q.Component {
			continue
		}
		if q.ChannelID != "" {
			if id, _ := e.Fields["channel_id"].(string); id != q.ChannelID {
				continue
			}
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		if search != "" && !e.contains(search) {
			continue
		}
		out = append(out, e)
	}

	if q.Descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (e Entry) contains(lowered string) bool {
	if strings.Contains(strings.ToLower(e.Message), lowered) ||
		strings.Contains(strings.ToLower(e.Component), lowered) {
		return true
	}
	for _, v := range e.Fields {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), lowered) {
			return true
		}
	}
	return false
}

// Stats summarises the buffer.
type Stats struct {
	Capacity   int            `json:"capacity"`
	Count      int            `json:"count"`
	LevelCount map[string]int `json:"level_count"`
	Components []string       `json:"components"`
}

// Stats counts entries per level and lists the components seen.
func (b *Buffer) Stats() Stats {
	entries := b.Entries()
	s := Stats{Capacity: b.capacity, Count: len(entries), LevelCount: map[string]int{}}
	seen := map[string]bool{}
	for _, e := range entries {
		s.LevelCount[e.Level]++
		if e.Component != "" && !seen[e.Component] {
			seen[e.Component] = true
			s.Components = append(s.Components, e.Component)
		}
	}
	return s
}

// Writer feeds zerolog JSON lines into a Buffer. Lines that are not JSON
// objects are dropped.
type Writer struct {
	buffer *Buffer
}

// NewWriter returns an io.Writer for use as an extra zerolog sink.
func NewWriter(b *Buffer) *Writer { return &Writer{buffer: b} }

func (w *Writer) Write(p []byte) (int, error) {
	var raw map[string]any
	if err := gojson.Unmarshal(p, &raw); err != nil {
		return len(p), nil
	}
	e := Entry{Timestamp: time.Now().UTC()}
	if v, ok := raw[zerolog.LevelFieldName].(string); ok {
		e.Level = v
	}
	if v, ok := raw[zerolog.MessageFieldName].(string); ok {
		e.Message = v
	}
	if v, ok := raw["component"].(string); ok {
		e.Component = v
	}
	switch ts := raw[zerolog.TimestampFieldName].(type) {
	case float64:
		e.Timestamp = time.Unix(int64(ts), 0).UTC()
	case string:
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			e.Timestamp = t
		}
	}
	for _, k := range []string{zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.TimestampFieldName, "component"} {
		delete(raw, k)
	}
	if len(raw) > 0 {
		e.Fields = raw
	}
	w.buffer.Add(e)
	return len(p), nil
}
