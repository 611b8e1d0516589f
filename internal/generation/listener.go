/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package generation

import (
	"context"

	"github.com/friendsincode/slotsequencer/internal/events"
)

// Listen drops cached strategies and catalog snapshots when another writer
// (this instance or a peer on the shared bus) changes them. It blocks until
// ctx is done.
func (s *Service) Listen(ctx context.Context) {
	if s.bus == nil {
		return
	}
	updated := s.bus.Subscribe(events.EventStrategyUpdated)
	deleted := s.bus.Subscribe(events.EventStrategyDeleted)
	catalog := s.bus.Subscribe(events.EventCatalogUpdated)
	defer func() {
		s.bus.Unsubscribe(events.EventStrategyUpdated, updated)
		s.bus.Unsubscribe(events.EventStrategyDeleted, deleted)
		s.bus.Unsubscribe(events.EventCatalogUpdated, catalog)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-updated:
			if !ok {
				return
			}
			s.dropStrategy(ctx, p)
		case p, ok := <-deleted:
			if !ok {
				return
			}
			s.dropStrategy(ctx, p)
		case _, ok := <-catalog:
			if !ok {
				return
			}
			if err := s.cache.InvalidateCatalog(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("catalog cache invalidation failed")
			}
		}
	}
}

func (s *Service) dropStrategy(ctx context.Context, p events.Payload) {
	channelID, _ := p["channel_id"].(string)
	tier, _ := p["energy_tier"].(string)
	if channelID == "" {
		return
	}
	if err := s.cache.InvalidateStrategy(ctx, channelID, tier); err != nil {
		s.logger.Warn().Err(err).Str("channel_id", channelID).Msg("strategy cache invalidation failed")
		return
	}
	s.logger.Debug().Str("channel_id", channelID).Str("energy_tier", tier).Msg("strategy cache invalidated")
}
