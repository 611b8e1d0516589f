/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sequencer turns a filtered track pool and a strategy into an
// ordered playback sequence.
package sequencer

import (
	"fmt"

	"github.com/friendsincode/slotsequencer/internal/filter"
	"github.com/friendsincode/slotsequencer/internal/scoring"
	"github.com/friendsincode/slotsequencer/internal/track"
)

// Placement records the decision made for one output position.
type Placement struct {
	Position  int     `json:"position"`
	SlotIndex int     `json:"slot_index"`
	TrackID   string  `json:"track_id"`
	Score     float64 `json:"score"`
	Reset     bool    `json:"reset,omitempty"`
}

// Result is a generated sequence together with its shortfall report.
type Result struct {
	TrackIDs   []string    `json:"track_ids"`
	Placements []Placement `json:"placements"`
	Requested  int         `json:"requested"`
	Shortfall  int         `json:"shortfall"`
	Resets     int         `json:"resets"`
	PoolSize   int         `json:"pool_size"`
}

// Exhausted reports whether fewer tracks were placed than requested.
func (r Result) Exhausted() bool { return r.Shortfall > 0 }

// Run is an in-progress generation. It owns the recently-used bookkeeping for
// one sequence and must not be shared between goroutines.
type Run struct {
	pool     []track.Track
	slots    []scoring.Slot
	window   int
	recent   []string
	used     map[string]int
	position int
}

// NewRun prepares incremental generation over pool. The pool is read, never modified.
func NewRun(pool []track.Track, strategy Strategy) (*Run, error) {
	if len(strategy.Slots) == 0 {
		return nil, &ConfigError{Err: ErrNoSlots}
	}
	if strategy.RecentRepeatWindow < 0 {
		return nil, &ConfigError{Err: fmt.Errorf("%w: recent repeat window %d is negative", ErrInvalidStrategy, strategy.RecentRepeatWindow)}
	}
	return &Run{
		pool:   pool,
		slots:  strategy.OrderedSlots(),
		window: strategy.RecentRepeatWindow,
		used:   make(map[string]int),
	}, nil
}

// Position returns the number of placements made so far.
func (r *Run) Position() int { return r.position }

// Next places the next position. It returns false only when the pool is empty.
//
// The slot for position i is slots[i mod len(slots)]. Tracks placed within the
// last window positions are excluded; when that leaves nothing, the
// recently-used set is cleared and the full pool is eligible again. The lowest
// score wins and ties go to the earliest track in pool order.
func (r *Run) Next() (Placement, bool) {
	if len(r.pool) == 0 {
		return Placement{}, false
	}

	slot := r.slots[r.position%len(r.slots)]
	idx, score := r.best(slot, true)
	reset := false
	if idx < 0 {
		r.clearRecent()
		reset = true
		idx, score = r.best(slot, false)
	}

	chosen := r.pool[idx]
	r.remember(chosen.ID)

	p := Placement{
		Position:  r.position,
		SlotIndex: slot.Index,
		TrackID:   chosen.ID,
		Score:     score,
		Reset:     reset,
	}
	r.position++
	return p, true
}

func (r *Run) best(slot scoring.Slot, excludeRecent bool) (int, float64) {
	bestIdx := -1
	bestScore := 0.0
	for i, t := range r.pool {
		if excludeRecent && r.used[t.ID] > 0 {
			continue
		}
		s := scoring.Score(t, slot)
		if bestIdx < 0 || s < bestScore {
			bestIdx, bestScore = i, s
		}
	}
	return bestIdx, bestScore
}

func (r *Run) remember(id string) {
	if r.window == 0 {
		return
	}
	r.recent = append(r.recent, id)
	r.used[id]++
	for len(r.recent) > r.window {
		old := r.recent[0]
		r.recent = r.recent[1:]
		if r.used[old]--; r.used[old] <= 0 {
			delete(r.used, old)
		}
	}
}

func (r *Run) clearRecent() {
	r.recent = r.recent[:0]
	clear(r.used)
}

// Generate produces up to length track IDs from pool. A length of zero means
// one full cycle of the strategy's slots. An empty pool yields an empty
// sequence with the whole length reported as shortfall.
func Generate(pool []track.Track, strategy Strategy, length int) (Result, error) {
	if length < 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	run, err := NewRun(pool, strategy)
	if err != nil {
		return Result{}, err
	}
	if length == 0 {
		length = len(strategy.Slots)
	}

	res := Result{
		TrackIDs:   make([]string, 0, length),
		Placements: make([]Placement, 0, length),
		Requested:  length,
		PoolSize:   len(pool),
	}
	for i := 0; i < length; i++ {
		p, ok := run.Next()
		if !ok {
			break
		}
		res.TrackIDs = append(res.TrackIDs, p.TrackID)
		res.Placements = append(res.Placements, p)
		if p.Reset {
			res.Resets++
		}
	}
	res.Shortfall = length - len(res.TrackIDs)
	return res, nil
}

// Sequence filters the catalog with the strategy's rule groups and generates
// from the surviving pool. Playback and preview both go through here.
func Sequence(catalog []track.Track, strategy Strategy, length int) (Result, error) {
	return Generate(filter.Filter(catalog, strategy.RuleGroups), strategy, length)
}

// PreviewSlot filters the catalog and ranks the pool against one slot,
// returning the best limit candidates.
func PreviewSlot(catalog []track.Track, strategy Strategy, slotIndex, limit int) ([]scoring.Ranked, error) {
	slot, ok := strategy.Slot(slotIndex)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrSlotNotFound, slotIndex)
	}
	return scoring.Rank(filter.Filter(catalog, strategy.RuleGroups), slot, limit), nil
}
