/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/slotsequencer/internal/strategydoc"
)

const archivePrefix = "strategies/"

// Snapshot identifies one archived strategy document.
type Snapshot struct {
	Key        string    `json:"key"`
	ChannelID  string    `json:"channel_id"`
	EnergyTier string    `json:"energy_tier"`
	TakenAt    time.Time `json:"taken_at"`
	Format     string    `json:"format"`
}

// Archive writes timestamped strategy documents to an object store.
type Archive struct {
	store  ObjectStore
	now    func() time.Time
	logger zerolog.Logger
}

// NewArchive creates an archive over store.
func NewArchive(store ObjectStore, logger zerolog.Logger) *Archive {
	return &Archive{store: store, now: time.Now, logger: logger.With().Str("component", "archive").Logger()}
}

func archiveDir(channelID, tier string) string {
	return archivePrefix + url.PathEscape(channelID) + "/" + url.PathEscape(tier) + "/"
}

// Save stores doc under strategies/<channel>/<tier>/<utc timestamp>.<format>.
func (a *Archive) Save(ctx context.Context, doc strategydoc.Document, format strategydoc.Format) (Snapshot, error) {
	if doc.ChannelID == "" || doc.EnergyTier == "" {
		return Snapshot{}, fmt.Errorf("%w: archived documents need a channel and tier", ErrInvalidKey)
	}
	body, err := strategydoc.Marshal(doc, format)
	if err != nil {
		return Snapshot{}, err
	}
	taken := a.now().UTC()
	key := archiveDir(doc.ChannelID, doc.EnergyTier) + taken.Format("20060102T150405.000Z") + "." + string(format)
	if err := a.store.Put(ctx, key, body, format.ContentType()); err != nil {
		return Snapshot{}, fmt.Errorf("archive strategy: %w", err)
	}
	a.logger.Info().Str("key", key).Msg("strategy archived")
	return Snapshot{Key: key, ChannelID: doc.ChannelID, EnergyTier: doc.EnergyTier, TakenAt: taken, Format: string(format)}, nil
}

// History lists snapshots of a channel tier, oldest first.
func (a *Archive) History(ctx context.Context, channelID, tier string) ([]Snapshot, error) {
	keys, err := a.store.List(ctx, archiveDir(channelID, tier))
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(keys))
	for _, key := range keys {
		name := key[strings.LastIndex(key, "/")+1:]
		stamp, ext, ok := strings.Cut(name, ".")
		if !ok {
			continue
		}
		// The timestamp itself contains a dot before the milliseconds.
		if ms, rest, found := strings.Cut(ext, "."); found {
			stamp, ext = stamp+"."+ms, rest
		}
		taken, err := time.Parse("20060102T150405.000Z", stamp)
		if err != nil {
			continue
		}
		out = append(out, Snapshot{Key: key, ChannelID: channelID, EnergyTier: tier, TakenAt: taken, Format: ext})
	}
	return out, nil
}

// Load reads and parses an archived snapshot.
func (a *Archive) Load(ctx context.Context, snap Snapshot) (strategydoc.Document, error) {
	body, err := a.store.Get(ctx, snap.Key)
	if err != nil {
		return strategydoc.Document{}, err
	}
	f, err := strategydoc.ParseFormat(snap.Format)
	if err != nil {
		return strategydoc.Document{}, err
	}
	return strategydoc.Unmarshal(body, f)
}
