/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package track holds the read-only track view consumed by the sequencer.
package track

import (
	"strings"

	"github.com/friendsincode/slotsequencer/internal/attribute"
)

// MetadataPrefix marks a field path that must be resolved through the metadata bag.
const MetadataPrefix = "metadata."

// Flat column names resolvable on every track.
const (
	FieldID         = "id"
	FieldTitle      = "title"
	FieldArtist     = "artist"
	FieldAlbum      = "album"
	FieldDurationMS = "duration_ms"
)

var columns = map[string]struct{}{
	FieldID:         {},
	FieldTitle:      {},
	FieldArtist:     {},
	FieldAlbum:      {},
	FieldDurationMS: {},
}

// Track is an immutable catalog entry.
type Track struct {
	ID         string                     `json:"id"`
	Title      string                     `json:"title,omitempty"`
	Artist     string                     `json:"artist,omitempty"`
	Album      string                     `json:"album,omitempty"`
	DurationMS int64                      `json:"duration_ms,omitempty"`
	Attributes map[string]attribute.Value `json:"attributes,omitempty"`
	Metadata   map[string]any             `json:"metadata,omitempty"`
}

// Resolve returns the value of a field. Attributes of the model are checked
// first, then flat columns, then dotted paths through the metadata bag
// ("metadata.mood.primary" or "mood.primary"), then bare metadata keys.
// Unknown fields resolve to Missing.
func (t Track) Resolve(field string) attribute.Value {
	name := strings.ToLower(strings.TrimSpace(field))
	if name == "" {
		return attribute.Missing()
	}

	if spec, ok := attribute.Lookup(name); ok {
		v, present := t.Attributes[spec.Name]
		if !present {
			return attribute.Missing()
		}
		return spec.Normalize(v)
	}

	switch name {
	case FieldID:
		return attribute.String(t.ID)
	case FieldTitle:
		return optionalString(t.Title)
	case FieldArtist:
		return optionalString(t.Artist)
	case FieldAlbum:
		return optionalString(t.Album)
	case FieldDurationMS:
		if t.DurationMS <= 0 {
			return attribute.Missing()
		}
		return attribute.Number(float64(t.DurationMS))
	}

	path := strings.TrimSpace(field)
	if len(path) >= len(MetadataPrefix) && strings.EqualFold(path[:len(MetadataPrefix)], MetadataPrefix) {
		path = path[len(MetadataPrefix):]
	}
	return lookupPath(t.Metadata, strings.Split(path, "."))
}

// Number returns the numeric value of a field, reporting whether it was present.
func (t Track) Number(field string) (float64, bool) {
	return t.Resolve(field).Float()
}

func optionalString(s string) attribute.Value {
	if s == "" {
		return attribute.Missing()
	}
	return attribute.String(s)
}

func lookupPath(bag map[string]any, parts []string) attribute.Value {
	var current any = bag
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok || m == nil {
			return attribute.Missing()
		}
		next, found := lookupKey(m, part)
		if !found {
			return attribute.Missing()
		}
		current = next
	}
	if _, isMap := current.(map[string]any); isMap {
		return attribute.Missing()
	}
	return attribute.FromAny(current)
}

// lookupKey matches exactly first, then case-insensitively.
func lookupKey(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// IsKnownField reports whether field can ever resolve: model attributes, flat
// columns, and any non-empty metadata path.
func IsKnownField(field string) bool {
	name := strings.ToLower(strings.TrimSpace(field))
	if name == "" {
		return false
	}
	if attribute.IsAttribute(name) {
		return true
	}
	if _, ok := columns[name]; ok {
		return true
	}
	path := strings.TrimPrefix(name, MetadataPrefix)
	if path == "" {
		return false
	}
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return false
		}
	}
	return true
}

// IDs returns the identifiers of tracks in order.
func IDs(tracks []Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.ID
	}
	return out
}
