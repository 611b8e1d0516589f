/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package attribute defines the fixed set of track attributes used by
// filtering and scoring, together with their valid ranges.
package attribute

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Attribute names.
const (
	Speed      = "speed"
	Intensity  = "intensity"
	Brightness = "brightness"
	Complexity = "complexity"
	Valence    = "valence"
	Arousal    = "arousal"
	BPM        = "bpm"
	Key        = "key"
	Proximity  = "proximity"
)

// Scale distinguishes continuous from categorical attributes.
type Scale string

const (
	ScaleContinuous  Scale = "continuous"
	ScaleCategorical Scale = "categorical"
)

// ErrOutOfRange is returned when a value falls outside an attribute's range.
var ErrOutOfRange = errors.New("attribute value out of range")

// ErrWrongType is returned when a value cannot be interpreted for an attribute.
var ErrWrongType = errors.New("attribute value has wrong type")

// Spec describes one attribute of the model.
type Spec struct {
	Name        string   `json:"name"`
	Scale       Scale    `json:"scale"`
	Min         float64  `json:"min,omitempty"`
	Max         float64  `json:"max,omitempty"`
	Choices     []string `json:"choices,omitempty"`
	Description string   `json:"description"`
}

var specs = map[string]Spec{
	Speed:      {Name: Speed, Scale: ScaleContinuous, Min: 0, Max: 10, Description: "perceived pace"},
	Intensity:  {Name: Intensity, Scale: ScaleContinuous, Min: 0, Max: 10, Description: "perceived loudness and density"},
	Brightness: {Name: Brightness, Scale: ScaleContinuous, Min: 0, Max: 10, Description: "spectral brightness"},
	Complexity: {Name: Complexity, Scale: ScaleContinuous, Min: 0, Max: 10, Description: "arrangement complexity"},
	Valence:    {Name: Valence, Scale: ScaleContinuous, Min: -1, Max: 1, Description: "negative to positive mood"},
	Arousal:    {Name: Arousal, Scale: ScaleContinuous, Min: -1, Max: 1, Description: "calm to excited"},
	BPM:        {Name: BPM, Scale: ScaleContinuous, Min: 20, Max: 300, Description: "tempo in beats per minute"},
	Key:        {Name: Key, Scale: ScaleCategorical, Choices: keyNames(), Description: "musical key"},
	Proximity:  {Name: Proximity, Scale: ScaleContinuous, Min: 0, Max: 10, Description: "distant to intimate"},
}

// Lookup returns the spec for an attribute name. Names are case-insensitive.
func Lookup(name string) (Spec, bool) {
	spec, ok := specs[strings.ToLower(strings.TrimSpace(name))]
	return spec, ok
}

// IsAttribute reports whether name is part of the model.
func IsAttribute(name string) bool {
	_, ok := Lookup(name)
	return ok
}

// All returns every attribute spec sorted by name.
func All() []Spec {
	out := make([]Spec, 0, len(specs))
	for _, spec := range specs {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns every attribute name sorted.
func Names() []string {
	all := All()
	out := make([]string, len(all))
	for i, spec := range all {
		out[i] = spec.Name
	}
	return out
}

// Validate checks that v is a legal value for the attribute.
func (s Spec) Validate(v Value) error {
	switch s.Scale {
	case ScaleContinuous:
		f, ok := v.Float()
		if !ok {
			return fmt.Errorf("%s: %w: want number, got %s", s.Name, ErrWrongType, v.Kind)
		}
		if f < s.Min || f > s.Max {
			return fmt.Errorf("%s: %w: %g not in [%g, %g]", s.Name, ErrOutOfRange, f, s.Min, s.Max)
		}
	case ScaleCategorical:
		if v.Kind != KindString {
			return fmt.Errorf("%s: %w: want string, got %s", s.Name, ErrWrongType, v.Kind)
		}
		if s.Name == Key {
			if _, ok := NormalizeKey(v.Str); !ok {
				return fmt.Errorf("%s: %w: unknown key %q", s.Name, ErrOutOfRange, v.Str)
			}
			return nil
		}
		for _, choice := range s.Choices {
			if strings.EqualFold(choice, v.Str) {
				return nil
			}
		}
		return fmt.Errorf("%s: %w: %q", s.Name, ErrOutOfRange, v.Str)
	}
	return nil
}

// Normalize canonicalises a value for the attribute (key spelling, numeric strings).
func (s Spec) Normalize(v Value) Value {
	switch s.Scale {
	case ScaleContinuous:
		if v.Kind == KindString {
			if f, ok := v.Float(); ok {
				return Number(f)
			}
		}
	case ScaleCategorical:
		if s.Name == Key && v.Kind == KindString {
			if canon, ok := NormalizeKey(v.Str); ok {
				return String(canon)
			}
		}
	}
	return v
}
