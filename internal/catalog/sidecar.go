/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gojson "github.com/goccy/go-json"
	"github.com/go-viper/mapstructure/v2"

	"github.com/friendsincode/slotsequencer/internal/attribute"
	"github.com/friendsincode/slotsequencer/internal/track"
)

// sidecar is the loose shape of a per-track JSON document shipped next to an
// audio file. Attributes may sit at the top level or under "attributes";
// unrecognised top-level keys are kept as metadata.
type sidecar struct {
	ID         string         `mapstructure:"id"`
	Title      string         `mapstructure:"title"`
	Artist     string         `mapstructure:"artist"`
	Album      string         `mapstructure:"album"`
	DurationMS int64          `mapstructure:"duration_ms"`
	Duration   float64        `mapstructure:"duration"`
	Attributes map[string]any `mapstructure:"attributes"`
	Metadata   map[string]any `mapstructure:"metadata"`
	Extra      map[string]any `mapstructure:",remain"`
}

// LoadFile reads tracks from a JSON file holding a single sidecar object, a
// list of them, or {"tracks": [...]}. A single sidecar without an id takes
// the file name stem, matching the audio file it describes.
func LoadFile(path string) ([]track.Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	tracks, err := Parse(data, stem)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tracks, nil
}

// LoadDir reads every *.json sidecar in dir, sorted by file name.
func LoadDir(dir string) ([]track.Track, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	var out []track.Track
	for _, path := range matches {
		tracks, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, tracks...)
	}
	return out, nil
}

// Parse decodes sidecar JSON. defaultID names a lone object that has no id.
func Parse(data []byte, defaultID string) ([]track.Track, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var raw any
	if err := gojson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode sidecar: %w", err)
	}

	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		if list, ok := v["tracks"].([]any); ok {
			items = list
		} else {
			items = []any{v}
		}
	default:
		return nil, fmt.Errorf("decode sidecar: want object or list, got %T", raw)
	}

	out := make([]track.Track, 0, len(items))
	for i, item := range items {
		id := ""
		if len(items) == 1 {
			id = defaultID
		}
		t, err := decodeSidecar(item, id)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func decodeSidecar(item any, defaultID string) (track.Track, error) {
	var sc sidecar
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &sc,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return track.Track{}, err
	}
	if err := dec.Decode(item); err != nil {
		return track.Track{}, err
	}

	t := track.Track{
		ID:         strings.TrimSpace(sc.ID),
		Title:      sc.Title,
		Artist:     sc.Artist,
		Album:      sc.Album,
		DurationMS: sc.DurationMS,
	}
	if t.ID == "" {
		t.ID = defaultID
	}
	if t.DurationMS == 0 && sc.Duration > 0 {
		t.DurationMS = int64(sc.Duration * 1000)
	}

	attrs := map[string]attribute.Value{}
	addAttr := func(name string, v any) bool {
		spec, ok := attribute.Lookup(name)
		if !ok {
			return false
		}
		attrs[spec.Name] = spec.Normalize(attribute.FromAny(v))
		return true
	}
	for name, v := range sc.Attributes {
		if !addAttr(name, v) {
			return track.Track{}, fmt.Errorf("unknown attribute %q", name)
		}
	}

	meta := sc.Metadata
	for k, v := range sc.Extra {
		if addAttr(k, v) {
			continue
		}
		if meta == nil {
			meta = map[string]any{}
		}
		meta[k] = v
	}

	if len(attrs) > 0 {
		t.Attributes = attrs
	}
	if len(meta) > 0 {
		t.Metadata = meta
	}
	return t, nil
}
