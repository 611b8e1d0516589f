/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/slotsequencer/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.Track{},
		&models.StrategyRecord{},
		&models.SavedSequence{},
	); err != nil {
		return err
	}

	return backfillSchemaVersions(database)
}

// backfillSchemaVersions marks rows written before the version column existed
// as version 1 documents so they are migrated on read.
func backfillSchemaVersions(database *gorm.DB) error {
	for _, model := range []any{&models.StrategyRecord{}, &models.SavedSequence{}} {
		if err := database.Model(model).
			Where("schema_version IS NULL OR schema_version = 0").
			Update("schema_version", 1).Error; err != nil {
			return fmt.Errorf("backfill schema versions: %w", err)
		}
	}
	return nil
}
