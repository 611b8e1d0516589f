/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog gives the sequencer read access to the track library and
// lets operators bulk load tracks from sidecar documents.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/slotsequencer/internal/attribute"
	"github.com/friendsincode/slotsequencer/internal/cache"
	"github.com/friendsincode/slotsequencer/internal/filter"
	"github.com/friendsincode/slotsequencer/internal/models"
	"github.com/friendsincode/slotsequencer/internal/track"
)

var (
	// ErrNotFound is returned when a track does not exist.
	ErrNotFound = errors.New("track not found")
	// ErrEmptyReplace guards replace imports that would empty the catalog.
	ErrEmptyReplace = errors.New("replace import has no valid tracks")
)

const importBatchSize = 200

// Repository reads and writes catalog rows. Tracks always come back ordered
// by id, which is the pool order the generator breaks ties with.
type Repository struct {
	db     *gorm.DB
	cache  *cache.Cache
	logger zerolog.Logger
}

// NewRepository creates a catalog repository. Writes drop the cached catalog
// snapshot before returning; c may be nil.
func NewRepository(db *gorm.DB, c *cache.Cache, logger zerolog.Logger) *Repository {
	return &Repository{db: db, cache: c, logger: logger.With().Str("component", "catalog").Logger()}
}

// All returns every non-deleted track.
func (r *Repository) All(ctx context.Context) ([]track.Track, error) {
	return r.find(r.db.WithContext(ctx))
}

// Narrowed returns a superset of the tracks that can pass groups. Only rules
// that SQL can evaluate with the same result as the in-memory engine are
// pushed down, so callers must still run filter.Filter over the result.
func (r *Repository) Narrowed(ctx context.Context, groups []filter.Group) ([]track.Track, error) {
	q := r.db.WithContext(ctx)
	pushed := 0
	for _, g := range groups {
		if !g.IsAnd() {
			continue
		}
		for _, rule := range g.Rules {
			clauseSQL, args, ok := pushdown(rule)
			if !ok {
				continue
			}
			q = q.Where(clauseSQL, args...)
			pushed++
		}
	}
	r.logger.Debug().Int("pushed_rules", pushed).Msg("narrowed catalog query")
	return r.find(q)
}

func (r *Repository) find(q *gorm.DB) ([]track.Track, error) {
	var rows []models.Track
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load tracks: %w", err)
	}
	out := make([]track.Track, len(rows))
	for i, row := range rows {
		out[i] = row.Domain()
	}
	return out, nil
}

// pushdown translates a rule into a WHERE fragment when the field is a
// numeric attribute column and the operator compares numbers.
func pushdown(rule filter.Rule) (string, []any, bool) {
	col, ok := models.NumericColumn(rule.Field)
	if !ok {
		return "", nil, false
	}
	switch rule.Operator.Canonical() {
	case filter.OpExists:
		if rule.Value.Kind == attribute.KindBool && !rule.Value.Bool {
			return col + " IS NULL", nil, true
		}
		return col + " IS NOT NULL", nil, true
	case filter.OpGte:
		if rule.Value.Kind != attribute.KindNumber {
			return "", nil, false
		}
		return col + " >= ?", []any{rule.Value.Num}, true
	case filter.OpLte:
		if rule.Value.Kind != attribute.KindNumber {
			return "", nil, false
		}
		return col + " <= ?", []any{rule.Value.Num}, true
	case filter.OpBetween:
		lo, hi, ok := filter.Bounds(rule.Value)
		if !ok {
			return "", nil, false
		}
		return col + " BETWEEN ? AND ?", []any{lo, hi}, true
	}
	return "", nil, false
}

// Rejection explains why a track was left out of an import.
type Rejection struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// ImportResult summarises a bulk import.
type ImportResult struct {
	Imported int         `json:"imported"`
	Removed  int         `json:"removed,omitempty"`
	Rejected []Rejection `json:"rejected,omitempty"`
}

// ImportOptions controls a bulk import.
type ImportOptions struct {
	// Replace soft-deletes every catalog track whose id is not in the import.
	// Ids of rejected tracks count as part of the import and are kept.
	Replace bool
}

// Import upserts tracks by id. Tracks with attribute values outside the
// model's ranges are rejected individually; the rest are written in one
// transaction together with any replace deletions.
func (r *Repository) Import(ctx context.Context, tracks []track.Track, opts ImportOptions) (ImportResult, error) {
	var result ImportResult
	rows := make([]models.Track, 0, len(tracks))
	seen := make(map[string]int, len(tracks))
	keep := make(map[string]bool, len(tracks))

	for _, t := range tracks {
		keep[t.ID] = true
		if err := Validate(t); err != nil {
			result.Rejected = append(result.Rejected, Rejection{ID: t.ID, Reason: err.Error()})
			continue
		}
		row := models.TrackFromDomain(t)
		// Later duplicates in one batch win.
		if i, dup := seen[row.ID]; dup {
			rows[i] = row
			continue
		}
		seen[row.ID] = len(rows)
		rows = append(rows, row)
	}
	if opts.Replace && len(rows) == 0 {
		return result, ErrEmptyReplace
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) > 0 {
			err := tx.Clauses(clause.OnConflict{UpdateAll: true}).
				CreateInBatches(rows, importBatchSize).Error
			if err != nil {
				return fmt.Errorf("import tracks: %w", err)
			}
		}
		if !opts.Replace {
			return nil
		}
		removed, err := removeMissing(tx, keep)
		if err != nil {
			return err
		}
		result.Removed = removed
		return nil
	})
	if err != nil {
		return ImportResult{Rejected: result.Rejected}, err
	}
	result.Imported = len(rows)
	if result.Imported > 0 || result.Removed > 0 {
		r.invalidate(ctx)
	}

	r.logger.Info().
		Int("imported", result.Imported).
		Int("removed", result.Removed).
		Int("rejected", len(result.Rejected)).
		Msg("catalog import complete")
	return result, nil
}

func removeMissing(tx *gorm.DB, keep map[string]bool) (int, error) {
	var ids []string
	if err := tx.Model(&models.Track{}).Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("list tracks: %w", err)
	}
	var stale []string
	for _, id := range ids {
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	for start := 0; start < len(stale); start += importBatchSize {
		end := min(start+importBatchSize, len(stale))
		if err := tx.Delete(&models.Track{}, "id IN ?", stale[start:end]).Error; err != nil {
			return 0, fmt.Errorf("remove tracks: %w", err)
		}
	}
	return len(stale), nil
}

func (r *Repository) invalidate(ctx context.Context) {
	if err := r.cache.InvalidateCatalog(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("catalog cache invalidation failed")
	}
}

// Validate checks a track before it is written.
func Validate(t track.Track) error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("missing id")
	}
	for name, v := range t.Attributes {
		spec, ok := attribute.Lookup(name)
		if !ok {
			return fmt.Errorf("unknown attribute %q", name)
		}
		if err := spec.Validate(v); err != nil {
			return err
		}
	}
	return nil
}

// Delete soft-deletes a track.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Track{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete track: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	r.invalidate(ctx)
	return nil
}

// Count returns the number of non-deleted tracks.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Track{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count tracks: %w", err)
	}
	return n, nil
}
