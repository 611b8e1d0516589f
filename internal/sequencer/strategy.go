/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package sequencer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/friendsincode/slotsequencer/internal/filter"
	"github.com/friendsincode/slotsequencer/internal/scoring"
)

var (
	// ErrNoSlots indicates a strategy without slot definitions.
	ErrNoSlots = errors.New("strategy has no slots")
	// ErrInvalidStrategy wraps every other strategy configuration problem.
	ErrInvalidStrategy = errors.New("invalid strategy")
	// ErrSlotNotFound is returned when a slot index does not exist.
	ErrSlotNotFound = errors.New("slot not found")
	// ErrInvalidLength is returned for negative sequence lengths.
	ErrInvalidLength = errors.New("invalid sequence length")
)

// ConfigError marks a strategy that must be fixed before generation can run.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "strategy configuration: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err carries a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Strategy combines the eligibility rules, slot targets, and repeat policy
// for one channel and energy tier.
type Strategy struct {
	RuleGroups         []filter.Group `json:"rule_groups" yaml:"rule_groups"`
	Slots              []scoring.Slot `json:"slots" yaml:"slots"`
	RecentRepeatWindow int            `json:"recent_repeat_window" yaml:"recent_repeat_window"`
}

// Validate checks the strategy against the attribute model and the rule
// language. It returns a *ConfigError or nil.
func (s Strategy) Validate() error {
	if len(s.Slots) == 0 {
		return &ConfigError{Err: ErrNoSlots}
	}
	if s.RecentRepeatWindow < 0 {
		return &ConfigError{Err: fmt.Errorf("%w: recent repeat window %d is negative", ErrInvalidStrategy, s.RecentRepeatWindow)}
	}
	if err := filter.ValidateGroups(s.RuleGroups); err != nil {
		return &ConfigError{Err: fmt.Errorf("%w: %w", ErrInvalidStrategy, err)}
	}

	seen := make(map[int]bool, len(s.Slots))
	for _, slot := range s.Slots {
		if err := slot.Validate(); err != nil {
			return &ConfigError{Err: fmt.Errorf("%w: %w", ErrInvalidStrategy, err)}
		}
		if seen[slot.Index] {
			return &ConfigError{Err: fmt.Errorf("%w: duplicate slot index %d", ErrInvalidStrategy, slot.Index)}
		}
		seen[slot.Index] = true
	}
	return nil
}

// OrderedSlots returns a copy of the slots sorted by index.
func (s Strategy) OrderedSlots() []scoring.Slot {
	out := make([]scoring.Slot, len(s.Slots))
	copy(out, s.Slots)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Slot returns the slot with the given 1-based index.
func (s Strategy) Slot(index int) (scoring.Slot, bool) {
	for _, slot := range s.Slots {
		if slot.Index == index {
			return slot, true
		}
	}
	return scoring.Slot{}, false
}
