/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store persists channel strategies and named saved sequences.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/slotsequencer/internal/cache"
	"github.com/friendsincode/slotsequencer/internal/events"
	"github.com/friendsincode/slotsequencer/internal/models"
	"github.com/friendsincode/slotsequencer/internal/strategydoc"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrNameTaken      = errors.New("name already in use")
	ErrInvalidName    = errors.New("invalid name")
	ErrInvalidTier    = errors.New("invalid energy tier")
	ErrInvalidChannel = errors.New("invalid channel id")
)

// Store reads and writes strategy documents. Writes are validated before they
// reach the database, drop the cached strategy before returning, and are
// announced on the event bus for peer instances.
type Store struct {
	db     *gorm.DB
	bus    events.Broker
	cache  *cache.Cache
	logger zerolog.Logger
}

// New creates a store. bus and c may be nil.
func New(db *gorm.DB, bus events.Broker, c *cache.Cache, logger zerolog.Logger) *Store {
	return &Store{db: db, bus: bus, cache: c, logger: logger.With().Str("component", "store").Logger()}
}

// ParseTier validates an energy tier name.
func ParseTier(raw string) (models.EnergyTier, error) {
	tier := models.EnergyTier(strings.ToLower(strings.TrimSpace(raw)))
	if !tier.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTier, raw)
	}
	return tier, nil
}

// StrategySummary describes a stored channel strategy without its body.
type StrategySummary struct {
	ChannelID     string            `json:"channel_id"`
	EnergyTier    models.EnergyTier `json:"energy_tier"`
	SchemaVersion int               `json:"schema_version"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Get loads the strategy of a channel at a tier.
func (s *Store) Get(ctx context.Context, channelID, tier string) (strategydoc.Document, error) {
	t, err := ParseTier(tier)
	if err != nil {
		return strategydoc.Document{}, err
	}
	var rec models.StrategyRecord
	err = s.db.WithContext(ctx).
		Where("channel_id = ? AND energy_tier = ?", channelID, t).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return strategydoc.Document{}, ErrNotFound
	}
	if err != nil {
		return strategydoc.Document{}, fmt.Errorf("load strategy: %w", err)
	}
	doc, err := decode(rec.Document)
	if err != nil {
		return strategydoc.Document{}, fmt.Errorf("strategy %s/%s: %w", channelID, t, err)
	}
	doc.Kind = strategydoc.KindChannelStrategy
	doc.ChannelID = rec.ChannelID
	doc.EnergyTier = string(rec.EnergyTier)
	doc.Name = ""
	return doc, nil
}

// Put creates or replaces the strategy of a channel at a tier.
func (s *Store) Put(ctx context.Context, channelID, tier string, doc strategydoc.Document) (strategydoc.Document, error) {
	t, err := ParseTier(tier)
	if err != nil {
		return strategydoc.Document{}, err
	}
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return strategydoc.Document{}, ErrInvalidChannel
	}
	if err := doc.Strategy().Validate(); err != nil {
		return strategydoc.Document{}, err
	}

	doc.SchemaVersion = strategydoc.CurrentSchemaVersion
	doc.Kind = strategydoc.KindChannelStrategy
	doc.ChannelID = channelID
	doc.EnergyTier = string(t)
	doc.Name = ""
	body, err := encode(doc)
	if err != nil {
		return strategydoc.Document{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.StrategyRecord
		err := tx.Where("channel_id = ? AND energy_tier = ?", channelID, t).First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = models.StrategyRecord{ID: uuid.NewString(), ChannelID: channelID, EnergyTier: t}
		case err != nil:
			return err
		}
		rec.SchemaVersion = strategydoc.CurrentSchemaVersion
		rec.Document = body
		return tx.Save(&rec).Error
	})
	if err != nil {
		return strategydoc.Document{}, fmt.Errorf("save strategy: %w", err)
	}

	s.invalidate(ctx, channelID, t)
	s.publish(events.EventStrategyUpdated, events.Payload{"channel_id": channelID, "energy_tier": string(t)})
	s.logger.Info().Str("channel_id", channelID).Str("energy_tier", string(t)).Msg("strategy saved")
	return doc.Canonical(), nil
}

// Delete removes the strategy of a channel at a tier.
func (s *Store) Delete(ctx context.Context, channelID, tier string) error {
	t, err := ParseTier(tier)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).
		Where("channel_id = ? AND energy_tier = ?", channelID, t).
		Delete(&models.StrategyRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete strategy: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.invalidate(ctx, channelID, t)
	s.publish(events.EventStrategyDeleted, events.Payload{"channel_id": channelID, "energy_tier": string(t)})
	return nil
}

// List returns stored strategies, for one channel or, with an empty id, all.
func (s *Store) List(ctx context.Context, channelID string) ([]StrategySummary, error) {
	q := s.db.WithContext(ctx).Model(&models.StrategyRecord{})
	if channelID != "" {
		q = q.Where("channel_id = ?", channelID)
	}
	var recs []models.StrategyRecord
	if err := q.Select("channel_id", "energy_tier", "schema_version", "updated_at").
		Order("channel_id, energy_tier").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	out := make([]StrategySummary, len(recs))
	for i, rec := range recs {
		out[i] = StrategySummary{
			ChannelID:     rec.ChannelID,
			EnergyTier:    rec.EnergyTier,
			SchemaVersion: rec.SchemaVersion,
			UpdatedAt:     rec.UpdatedAt,
		}
	}
	return out, nil
}

func (s *Store) invalidate(ctx context.Context, channelID string, tier models.EnergyTier) {
	if err := s.cache.InvalidateStrategy(ctx, channelID, string(tier)); err != nil {
		s.logger.Warn().Err(err).Str("channel_id", channelID).Msg("strategy cache invalidation failed")
	}
}

func (s *Store) publish(eventType events.EventType, payload events.Payload) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventType, payload)
}

func encode(doc strategydoc.Document) (string, error) {
	body, err := strategydoc.Marshal(doc, strategydoc.FormatJSON)
	if err != nil {
		return "", fmt.Errorf("encode strategy document: %w", err)
	}
	return string(body), nil
}

// decode runs stored bodies through the import pipeline so rows written by
// older releases are migrated on read.
func decode(body string) (strategydoc.Document, error) {
	return strategydoc.Unmarshal([]byte(body), strategydoc.FormatJSON)
}
