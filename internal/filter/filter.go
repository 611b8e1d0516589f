/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package filter evaluates composable rule groups over track metadata to
// produce the eligible candidate pool.
package filter

import (
	"fmt"

	"github.com/friendsincode/slotsequencer/internal/track"
)

// Filter returns the tracks that pass every group, preserving pool order.
func Filter(pool []track.Track, groups []Group) []track.Track {
	out := make([]track.Track, 0, len(pool))
	for _, t := range pool {
		if Matches(t, groups) {
			out = append(out, t)
		}
	}
	return out
}

// Matches reports whether t passes every group. No groups means every track passes.
func Matches(t track.Track, groups []Group) bool {
	for _, g := range groups {
		if !g.Passes(t) {
			return false
		}
	}
	return true
}

// Passes evaluates the group's rules with its logic. An empty AND group passes
// every track; an empty OR group passes none. Unknown logic passes nothing.
func (g Group) Passes(t track.Track) bool {
	switch g.Logic.normalized() {
	case LogicAnd:
		for _, r := range g.Rules {
			if !r.Matches(t) {
				return false
			}
		}
		return true
	case LogicOr:
		for _, r := range g.Rules {
			if r.Matches(t) {
				return true
			}
		}
		return false
	}
	return false
}

// Validate reports the first configuration error in the group.
func (g Group) Validate() error {
	switch g.Logic.normalized() {
	case LogicAnd, LogicOr:
	default:
		return fmt.Errorf("%w %q", ErrUnknownLogic, g.Logic)
	}
	for i, r := range g.Rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i+1, err)
		}
	}
	return nil
}

// ValidateGroups validates every group, naming the failing one.
func ValidateGroups(groups []Group) error {
	for i, g := range groups {
		if err := g.Validate(); err != nil {
			label := fmt.Sprintf("group %d", i+1)
			if g.Name != "" {
				label = fmt.Sprintf("group %d (%s)", i+1, g.Name)
			}
			return fmt.Errorf("%s: %w", label, err)
		}
	}
	return nil
}

// IsAnd reports whether the group combines rules with AND.
func (g Group) IsAnd() bool {
	return g.Logic.normalized() == LogicAnd
}
