/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scoring computes the weighted distance between a track and a slot's
// target profile. Lower scores are better matches.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/friendsincode/slotsequencer/internal/attribute"
	"github.com/friendsincode/slotsequencer/internal/track"
)

// Mode selects how a boost applies. Both modes scale linearly today.
type Mode string

const (
	ModeNear  Mode = "near"
	ModeExact Mode = "exact"
)

const (
	MinWeight = 1
	MaxWeight = 5
)

var (
	ErrInvalidBoost  = errors.New("invalid boost")
	ErrInvalidTarget = errors.New("invalid target")
	ErrInvalidSlot   = errors.New("invalid slot")
)

// Boost amplifies one field's contribution to the distance.
type Boost struct {
	Field  string `json:"field" yaml:"field"`
	Mode   Mode   `json:"mode" yaml:"mode"`
	Weight int    `json:"weight" yaml:"weight"`
}

// Slot is one sequence position with its target profile.
type Slot struct {
	Index   int                        `json:"index" yaml:"index"`
	Targets map[string]attribute.Value `json:"targets" yaml:"targets"`
	Boosts  []Boost                    `json:"boosts" yaml:"boosts"`
}

// Ranked pairs a track with its score against a slot.
type Ranked struct {
	Track track.Track `json:"track"`
	Score float64     `json:"score"`
}

// Weight returns the multiplier for field, defaulting to 1. When a field is
// boosted more than once the largest weight wins.
func (s Slot) Weight(field string) float64 {
	w := 0
	for _, b := range s.Boosts {
		if strings.EqualFold(strings.TrimSpace(b.Field), strings.TrimSpace(field)) && b.Weight > w {
			w = b.Weight
		}
	}
	if w <= 0 {
		return 1
	}
	return float64(w)
}

// Score sums |value - target| * weight over the slot's targets. Missing
// numeric values count as 0; categorical fields contribute 0 on a match and 1
// otherwise. The result is always finite and non-negative.
func Score(t track.Track, slot Slot) float64 {
	total := 0.0
	for _, field := range fields(slot.Targets) {
		total += distance(t, field, slot.Targets[field]) * slot.Weight(field)
	}
	return total
}

// Breakdown returns the weighted contribution of every targeted field.
func Breakdown(t track.Track, slot Slot) map[string]float64 {
	out := make(map[string]float64, len(slot.Targets))
	for field, target := range slot.Targets {
		out[field] = distance(t, field, target) * slot.Weight(field)
	}
	return out
}

// Rank scores every track and returns them best first. Equal scores keep pool
// order. A limit of zero or less returns the full ranking.
func Rank(pool []track.Track, slot Slot, limit int) []Ranked {
	ranked := make([]Ranked, len(pool))
	for i, t := range pool {
		ranked[i] = Ranked{Track: t, Score: Score(t, slot)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score < ranked[j].Score })
	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}
	return ranked
}

func distance(t track.Track, field string, target attribute.Value) float64 {
	got := t.Resolve(field)
	if spec, ok := attribute.Lookup(field); ok {
		target = spec.Normalize(target)
	}

	if target.Kind == attribute.KindNumber {
		have, ok := got.Float()
		if !ok {
			have = 0
		}
		return finite(math.Abs(have - target.Num))
	}

	if target.IsMissing() {
		return 0
	}
	if got.IsMissing() {
		return 1
	}
	if strings.EqualFold(strings.TrimSpace(got.Text()), strings.TrimSpace(target.Text())) {
		return 0
	}
	return 1
}

// maxDistance caps a single field's distance so sums stay finite.
const maxDistance = 1e12

func finite(f float64) float64 {
	if math.IsNaN(f) || f > maxDistance {
		return maxDistance
	}
	return f
}

// fields returns target names in a fixed order so float sums are reproducible.
func fields(targets map[string]attribute.Value) []string {
	out := make([]string, 0, len(targets))
	for field := range targets {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

// Validate checks the slot against the attribute model: index is positive,
// target fields resolve and carry legal values, boosts are well formed.
func (s Slot) Validate() error {
	if s.Index < 1 {
		return fmt.Errorf("%w: index %d must be >= 1", ErrInvalidSlot, s.Index)
	}
	for _, field := range fields(s.Targets) {
		value := s.Targets[field]
		if !track.IsKnownField(field) {
			return fmt.Errorf("slot %d: %w: unknown field %q", s.Index, ErrInvalidTarget, field)
		}
		if value.IsMissing() || value.Kind == attribute.KindList {
			return fmt.Errorf("slot %d: %w: %q needs a scalar value", s.Index, ErrInvalidTarget, field)
		}
		if spec, ok := attribute.Lookup(field); ok {
			if err := spec.Validate(value); err != nil {
				return fmt.Errorf("slot %d: %w: %v", s.Index, ErrInvalidTarget, err)
			}
		}
	}
	seen := map[string]bool{}
	for _, b := range s.Boosts {
		field := strings.ToLower(strings.TrimSpace(b.Field))
		if !track.IsKnownField(field) {
			return fmt.Errorf("slot %d: %w: unknown field %q", s.Index, ErrInvalidBoost, b.Field)
		}
		switch b.Mode {
		case ModeNear, ModeExact:
		default:
			return fmt.Errorf("slot %d: %w: mode %q on %q", s.Index, ErrInvalidBoost, b.Mode, b.Field)
		}
		if b.Weight < MinWeight || b.Weight > MaxWeight {
			return fmt.Errorf("slot %d: %w: weight %d on %q not in [%d, %d]", s.Index, ErrInvalidBoost, b.Weight, b.Field, MinWeight, MaxWeight)
		}
		if seen[field] {
			return fmt.Errorf("slot %d: %w: %q boosted twice", s.Index, ErrInvalidBoost, b.Field)
		}
		seen[field] = true
	}
	return nil
}
