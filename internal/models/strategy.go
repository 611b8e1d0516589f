/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// EnergyTier selects one of a channel's strategies.
type EnergyTier string

const (
	TierLow    EnergyTier = "low"
	TierMedium EnergyTier = "medium"
	TierHigh   EnergyTier = "high"
)

// EnergyTiers lists the tiers in ascending energy.
var EnergyTiers = []EnergyTier{TierLow, TierMedium, TierHigh}

// Valid reports whether the tier is known.
func (t EnergyTier) Valid() bool {
	for _, known := range EnergyTiers {
		if t == known {
			return true
		}
	}
	return false
}

// StrategyRecord stores the strategy of one channel at one energy tier as an
// exported strategy document. Older documents are migrated when read.
type StrategyRecord struct {
	ID            string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	ChannelID     string     `gorm:"type:varchar(128);not null;uniqueIndex:idx_strategy_channel_tier,priority:1" json:"channel_id"`
	EnergyTier    EnergyTier `gorm:"type:varchar(16);not null;uniqueIndex:idx_strategy_channel_tier,priority:2" json:"energy_tier"`
	SchemaVersion int        `gorm:"not null;default:2" json:"schema_version"`
	Document      string     `gorm:"type:text;not null" json:"-"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// SavedSequence is a named strategy kept outside any channel, used by editors
// to stash and reuse configurations.
type SavedSequence struct {
	ID            string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name          string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"name"`
	SchemaVersion int       `gorm:"not null;default:2" json:"schema_version"`
	Document      string    `gorm:"type:text;not null" json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
