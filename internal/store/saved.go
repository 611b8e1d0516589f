/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/slotsequencer/internal/events"
	"github.com/friendsincode/slotsequencer/internal/models"
	"github.com/friendsincode/slotsequencer/internal/strategydoc"
)

const maxNameLength = 191

// SavedSummary describes a saved sequence without its body.
type SavedSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func cleanName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || len(name) > maxNameLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, raw)
	}
	return name, nil
}

// Save stores doc under name, replacing any saved sequence with that name.
func (s *Store) Save(ctx context.Context, name string, doc strategydoc.Document) (SavedSummary, error) {
	name, err := cleanName(name)
	if err != nil {
		return SavedSummary{}, err
	}
	if err := doc.Strategy().Validate(); err != nil {
		return SavedSummary{}, err
	}
	body, err := encode(savedDoc(doc, name))
	if err != nil {
		return SavedSummary{}, err
	}

	var rec models.SavedSequence
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("name = ?", name).First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = models.SavedSequence{ID: uuid.NewString(), Name: name}
		case err != nil:
			return err
		}
		rec.SchemaVersion = strategydoc.CurrentSchemaVersion
		rec.Document = body
		return tx.Save(&rec).Error
	})
	if err != nil {
		return SavedSummary{}, fmt.Errorf("save sequence: %w", err)
	}
	s.publish(events.EventSavedChanged, events.Payload{"name": name, "action": "saved"})
	return summarize(rec), nil
}

// Load returns the saved sequence called name.
func (s *Store) Load(ctx context.Context, name string) (strategydoc.Document, error) {
	rec, err := s.findSaved(s.db.WithContext(ctx), name)
	if err != nil {
		return strategydoc.Document{}, err
	}
	doc, err := decode(rec.Document)
	if err != nil {
		return strategydoc.Document{}, fmt.Errorf("saved sequence %q: %w", name, err)
	}
	return savedDoc(doc, rec.Name), nil
}

// Duplicate copies the saved sequence called name to newName.
func (s *Store) Duplicate(ctx context.Context, name, newName string) (SavedSummary, error) {
	newName, err := cleanName(newName)
	if err != nil {
		return SavedSummary{}, err
	}
	var copied models.SavedSequence
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		src, err := s.findSaved(tx, name)
		if err != nil {
			return err
		}
		if err := nameFree(tx, newName); err != nil {
			return err
		}
		doc, err := decode(src.Document)
		if err != nil {
			return fmt.Errorf("saved sequence %q: %w", name, err)
		}
		body, err := encode(savedDoc(doc, newName))
		if err != nil {
			return err
		}
		copied = models.SavedSequence{
			ID:            uuid.NewString(),
			Name:          newName,
			SchemaVersion: strategydoc.CurrentSchemaVersion,
			Document:      body,
		}
		return tx.Create(&copied).Error
	})
	if err != nil {
		return SavedSummary{}, err
	}
	s.publish(events.EventSavedChanged, events.Payload{"name": newName, "action": "duplicated", "source": name})
	return summarize(copied), nil
}

// Rename changes the name of a saved sequence.
func (s *Store) Rename(ctx context.Context, name, newName string) (SavedSummary, error) {
	newName, err := cleanName(newName)
	if err != nil {
		return SavedSummary{}, err
	}
	var rec models.SavedSequence
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.findSaved(tx, name)
		if err != nil {
			return err
		}
		rec = found
		if rec.Name == newName {
			return nil
		}
		if err := nameFree(tx, newName); err != nil {
			return err
		}
		doc, err := decode(rec.Document)
		if err != nil {
			return fmt.Errorf("saved sequence %q: %w", name, err)
		}
		body, err := encode(savedDoc(doc, newName))
		if err != nil {
			return err
		}
		rec.Name = newName
		rec.SchemaVersion = strategydoc.CurrentSchemaVersion
		rec.Document = body
		return tx.Save(&rec).Error
	})
	if err != nil {
		return SavedSummary{}, err
	}
	s.publish(events.EventSavedChanged, events.Payload{"name": newName, "action": "renamed", "source": name})
	return summarize(rec), nil
}

// DeleteSaved removes the saved sequence called name.
func (s *Store) DeleteSaved(ctx context.Context, name string) error {
	res := s.db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).Delete(&models.SavedSequence{})
	if res.Error != nil {
		return fmt.Errorf("delete saved sequence: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	s.publish(events.EventSavedChanged, events.Payload{"name": name, "action": "deleted"})
	return nil
}

// ListSaved returns every saved sequence ordered by name.
func (s *Store) ListSaved(ctx context.Context) ([]SavedSummary, error) {
	var recs []models.SavedSequence
	if err := s.db.WithContext(ctx).
		Select("id", "name", "created_at", "updated_at").
		Order("name").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list saved sequences: %w", err)
	}
	out := make([]SavedSummary, len(recs))
	for i, rec := range recs {
		out[i] = summarize(rec)
	}
	return out, nil
}

func (s *Store) findSaved(tx *gorm.DB, name string) (models.SavedSequence, error) {
	var rec models.SavedSequence
	err := tx.Where("name = ?", strings.TrimSpace(name)).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("load saved sequence: %w", err)
	}
	return rec, nil
}

func nameFree(tx *gorm.DB, name string) error {
	var n int64
	if err := tx.Model(&models.SavedSequence{}).Where("name = ?", name).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %q", ErrNameTaken, name)
	}
	return nil
}

func savedDoc(doc strategydoc.Document, name string) strategydoc.Document {
	doc.SchemaVersion = strategydoc.CurrentSchemaVersion
	doc.Kind = strategydoc.KindSavedSequence
	doc.Name = name
	doc.ChannelID = ""
	doc.EnergyTier = ""
	return doc
}

func summarize(rec models.SavedSequence) SavedSummary {
	return SavedSummary{ID: rec.ID, Name: rec.Name, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt}
}
