/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/slotsequencer/internal/attribute"
	"github.com/friendsincode/slotsequencer/internal/track"
)

// Track is a catalog row. Every attribute of the model has its own nullable
// column so narrowing predicates can run in SQL; anything else lives in the
// metadata bag.
type Track struct {
	ID         string `gorm:"type:varchar(64);primaryKey" json:"id"`
	Title      string `gorm:"index" json:"title"`
	Artist     string `gorm:"index" json:"artist"`
	Album      string `json:"album"`
	DurationMS int64  `json:"duration_ms"`

	Speed      *float64 `gorm:"column:speed" json:"speed,omitempty"`
	Intensity  *float64 `gorm:"column:intensity;index" json:"intensity,omitempty"`
	Brightness *float64 `gorm:"column:brightness" json:"brightness,omitempty"`
	Complexity *float64 `gorm:"column:complexity" json:"complexity,omitempty"`
	Valence    *float64 `gorm:"column:valence" json:"valence,omitempty"`
	Arousal    *float64 `gorm:"column:arousal" json:"arousal,omitempty"`
	BPM        *float64 `gorm:"column:bpm;index" json:"bpm,omitempty"`
	Key        *string  `gorm:"column:musical_key;type:varchar(4)" json:"key,omitempty"`
	Proximity  *float64 `gorm:"column:proximity" json:"proximity,omitempty"`

	Metadata map[string]any `gorm:"type:text;serializer:json" json:"metadata,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// attributeColumns maps numeric model attributes to their SQL column.
var attributeColumns = map[string]string{
	attribute.Speed:      "speed",
	attribute.Intensity:  "intensity",
	attribute.Brightness: "brightness",
	attribute.Complexity: "complexity",
	attribute.Valence:    "valence",
	attribute.Arousal:    "arousal",
	attribute.BPM:        "bpm",
	attribute.Proximity:  "proximity",
}

// NumericColumn returns the column backing a numeric attribute.
func NumericColumn(name string) (string, bool) {
	spec, ok := attribute.Lookup(name)
	if !ok {
		return "", false
	}
	col, ok := attributeColumns[spec.Name]
	return col, ok
}

func (t *Track) numericFields() map[string]**float64 {
	return map[string]**float64{
		attribute.Speed:      &t.Speed,
		attribute.Intensity:  &t.Intensity,
		attribute.Brightness: &t.Brightness,
		attribute.Complexity: &t.Complexity,
		attribute.Valence:    &t.Valence,
		attribute.Arousal:    &t.Arousal,
		attribute.BPM:        &t.BPM,
		attribute.Proximity:  &t.Proximity,
	}
}

// TrackFromDomain builds a row from an engine track. Attribute values that
// are not numbers (or, for key, not a recognised key) are dropped.
func TrackFromDomain(src track.Track) Track {
	row := Track{
		ID:         src.ID,
		Title:      src.Title,
		Artist:     src.Artist,
		Album:      src.Album,
		DurationMS: src.DurationMS,
		Metadata:   src.Metadata,
	}
	for name, dst := range row.numericFields() {
		v, ok := src.Attributes[name]
		if !ok {
			continue
		}
		if f, ok := v.Float(); ok {
			*dst = &f
		}
	}
	if v, ok := src.Attributes[attribute.Key]; ok {
		if k, ok := attribute.NormalizeKey(v.Text()); ok {
			row.Key = &k
		}
	}
	return row
}

// Domain converts the row into the engine's read-only view.
func (t Track) Domain() track.Track {
	out := track.Track{
		ID:         t.ID,
		Title:      t.Title,
		Artist:     t.Artist,
		Album:      t.Album,
		DurationMS: t.DurationMS,
		Metadata:   t.Metadata,
	}
	attrs := map[string]attribute.Value{}
	for name, src := range t.numericFields() {
		if *src != nil {
			attrs[name] = attribute.Number(**src)
		}
	}
	if t.Key != nil {
		attrs[attribute.Key] = attribute.String(*t.Key)
	}
	if len(attrs) > 0 {
		out.Attributes = attrs
	}
	return out
}
