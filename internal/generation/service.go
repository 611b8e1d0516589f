/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package generation serves sequences and slot previews for stored channel
// strategies. Preview and playback callers share the same path so previews
// always show what playback would produce.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	otelattr "go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/friendsincode/slotsequencer/internal/cache"
	"github.com/friendsincode/slotsequencer/internal/events"
	"github.com/friendsincode/slotsequencer/internal/filter"
	"github.com/friendsincode/slotsequencer/internal/scoring"
	"github.com/friendsincode/slotsequencer/internal/sequencer"
	"github.com/friendsincode/slotsequencer/internal/strategydoc"
	"github.com/friendsincode/slotsequencer/internal/telemetry"
	"github.com/friendsincode/slotsequencer/internal/track"
)

// StrategySource loads a channel strategy.
type StrategySource interface {
	Get(ctx context.Context, channelID, tier string) (strategydoc.Document, error)
}

// CatalogSource loads the track catalog.
type CatalogSource interface {
	All(ctx context.Context) ([]track.Track, error)
	Narrowed(ctx context.Context, groups []filter.Group) ([]track.Track, error)
}

// Options bound the work done per request.
type Options struct {
	MaxLength    int
	PreviewLimit int
	Timeout      time.Duration
}

// Service generates sequences from stored strategies.
type Service struct {
	strategies StrategySource
	catalog    CatalogSource
	cache      *cache.Cache
	bus        events.Broker
	opts       Options
	logger     zerolog.Logger
}

// NewService wires a generation service. cache and bus may be nil.
func NewService(strategies StrategySource, catalog CatalogSource, c *cache.Cache, bus events.Broker, opts Options, logger zerolog.Logger) *Service {
	if opts.MaxLength <= 0 {
		opts.MaxLength = 100
	}
	if opts.PreviewLimit <= 0 {
		opts.PreviewLimit = 10
	}
	return &Service{
		strategies: strategies,
		catalog:    catalog,
		cache:      c,
		bus:        bus,
		opts:       opts,
		logger:     logger.With().Str("component", "generation").Logger(),
	}
}

// Sequence is a generated sequence for a channel tier.
type Sequence struct {
	ChannelID  string `json:"channel_id,omitempty"`
	EnergyTier string `json:"energy_tier,omitempty"`
	sequencer.Result
	// Capped is set when the requested length was reduced to the service maximum.
	Capped      bool      `json:"capped,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Candidate is one ranked track in a slot preview.
type Candidate struct {
	Rank      int                `json:"rank"`
	TrackID   string             `json:"track_id"`
	Title     string             `json:"title,omitempty"`
	Artist    string             `json:"artist,omitempty"`
	Score     float64            `json:"score"`
	Breakdown map[string]float64 `json:"breakdown"`
}

// SlotPreview lists the best candidates for one slot.
type SlotPreview struct {
	ChannelID  string      `json:"channel_id"`
	EnergyTier string      `json:"energy_tier"`
	SlotIndex  int         `json:"slot_index"`
	PoolSize   int         `json:"pool_size"`
	Candidates []Candidate `json:"candidates"`
}

// Generate builds a sequence of length positions for a channel tier. A
// length of zero means one pass over the strategy's slots.
func (s *Service) Generate(ctx context.Context, channelID, tier string, length int) (seq Sequence, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "generation.Generate",
		otelattr.String("channel_id", channelID),
		otelattr.String("energy_tier", tier),
		otelattr.Int("length", length),
	)
	defer func() {
		telemetry.EndSpan(span, err)
		s.observe("generate", start, seq.Result, err)
	}()

	length, capped, err := s.clampLength(length)
	if err != nil {
		return Sequence{}, err
	}
	strategy, catalog, err := s.load(ctx, channelID, tier)
	if err != nil {
		return Sequence{}, err
	}
	res, err := sequencer.Sequence(catalog, strategy, length)
	if err != nil {
		return Sequence{}, err
	}

	seq = Sequence{ChannelID: channelID, EnergyTier: tier, Result: res, Capped: capped, GeneratedAt: time.Now().UTC()}
	s.announce(seq)
	return seq, nil
}

// PreviewSlot ranks the filtered pool against one slot of a channel tier.
func (s *Service) PreviewSlot(ctx context.Context, channelID, tier string, slotIndex, limit int) (prev SlotPreview, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "generation.PreviewSlot",
		otelattr.String("channel_id", channelID),
		otelattr.String("energy_tier", tier),
		otelattr.Int("slot_index", slotIndex),
	)
	defer func() {
		telemetry.EndSpan(span, err)
		s.observe("preview_slot", start, sequencer.Result{PoolSize: prev.PoolSize}, err)
	}()

	if limit <= 0 {
		limit = s.opts.PreviewLimit
	}
	if limit > s.opts.MaxLength {
		limit = s.opts.MaxLength
	}

	strategy, catalog, err := s.load(ctx, channelID, tier)
	if err != nil {
		return SlotPreview{}, err
	}
	slot, ok := strategy.Slot(slotIndex)
	if !ok {
		return SlotPreview{}, fmt.Errorf("%w: %d", sequencer.ErrSlotNotFound, slotIndex)
	}
	pool := filter.Filter(catalog, strategy.RuleGroups)
	ranked := scoring.Rank(pool, slot, limit)

	prev = SlotPreview{
		ChannelID:  channelID,
		EnergyTier: tier,
		SlotIndex:  slotIndex,
		PoolSize:   len(pool),
		Candidates: make([]Candidate, len(ranked)),
	}
	for i, r := range ranked {
		prev.Candidates[i] = Candidate{
			Rank:      i + 1,
			TrackID:   r.Track.ID,
			Title:     r.Track.Title,
			Artist:    r.Track.Artist,
			Score:     r.Score,
			Breakdown: scoring.Breakdown(r.Track, slot),
		}
	}
	return prev, nil
}

// Stream generates a sequence one position at a time, handing each placement
// to emit as soon as it is chosen. It stops early when ctx is cancelled or
// emit fails.
func (s *Service) Stream(ctx context.Context, channelID, tier string, length int, emit func(sequencer.Placement) error) (seq Sequence, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "generation.Stream",
		otelattr.String("channel_id", channelID),
		otelattr.String("energy_tier", tier),
	)
	defer func() {
		telemetry.EndSpan(span, err)
		s.observe("stream", start, seq.Result, err)
	}()

	length, capped, err := s.clampLength(length)
	if err != nil {
		return Sequence{}, err
	}
	strategy, catalog, err := s.load(ctx, channelID, tier)
	if err != nil {
		return Sequence{}, err
	}
	pool := filter.Filter(catalog, strategy.RuleGroups)
	run, err := sequencer.NewRun(pool, strategy)
	if err != nil {
		return Sequence{}, err
	}
	if length == 0 {
		length = len(strategy.Slots)
	}

	res := sequencer.Result{Requested: length, PoolSize: len(pool)}
	for run.Position() < length {
		if err := ctx.Err(); err != nil {
			return Sequence{}, err
		}
		p, ok := run.Next()
		if !ok {
			break
		}
		res.TrackIDs = append(res.TrackIDs, p.TrackID)
		res.Placements = append(res.Placements, p)
		if p.Reset {
			res.Resets++
		}
		if err := emit(p); err != nil {
			return Sequence{}, fmt.Errorf("emit position %d: %w", p.Position, err)
		}
	}
	res.Shortfall = length - len(res.TrackIDs)

	seq = Sequence{ChannelID: channelID, EnergyTier: tier, Result: res, Capped: capped, GeneratedAt: time.Now().UTC()}
	s.announce(seq)
	return seq, nil
}

// PreviewStrategy generates from an unsaved strategy, as editors do while a
// strategy is being written.
func (s *Service) PreviewStrategy(ctx context.Context, strategy sequencer.Strategy, length int) (seq Sequence, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "generation.PreviewStrategy", otelattr.Int("length", length))
	defer func() {
		telemetry.EndSpan(span, err)
		s.observe("preview", start, seq.Result, err)
	}()

	length, capped, err := s.clampLength(length)
	if err != nil {
		return Sequence{}, err
	}
	if err := strategy.Validate(); err != nil {
		return Sequence{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	catalog, err := s.catalog.Narrowed(ctx, strategy.RuleGroups)
	if err != nil {
		return Sequence{}, fmt.Errorf("load catalog: %w", err)
	}
	res, err := sequencer.Sequence(catalog, strategy, length)
	if err != nil {
		return Sequence{}, err
	}
	return Sequence{Result: res, Capped: capped, GeneratedAt: time.Now().UTC()}, nil
}

func (s *Service) clampLength(length int) (int, bool, error) {
	if length < 0 {
		return 0, false, &sequencer.ConfigError{Err: fmt.Errorf("%w: %d", sequencer.ErrInvalidLength, length)}
	}
	if length > s.opts.MaxLength {
		return s.opts.MaxLength, true, nil
	}
	return length, false, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.Timeout)
}

// load fetches the strategy and the catalog snapshot concurrently, then
// validates the strategy.
func (s *Service) load(ctx context.Context, channelID, tier string) (sequencer.Strategy, []track.Track, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		strategy sequencer.Strategy
		catalog  []track.Track
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		strategy, err = s.strategy(gctx, channelID, tier)
		return err
	})
	g.Go(func() error {
		var err error
		catalog, err = s.snapshot(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return sequencer.Strategy{}, nil, err
	}

	if err := strategy.Validate(); err != nil {
		return sequencer.Strategy{}, nil, err
	}
	return strategy, catalog, nil
}

func (s *Service) strategy(ctx context.Context, channelID, tier string) (sequencer.Strategy, error) {
	cached, version, ok := s.cache.GetStrategy(ctx, channelID, tier)
	s.countCache("strategy", ok)
	if ok {
		return cached, nil
	}

	doc, err := s.strategies.Get(ctx, channelID, tier)
	if err != nil {
		return sequencer.Strategy{}, err
	}
	strategy := doc.Strategy()
	if err := s.cache.SetStrategy(ctx, channelID, tier, version, strategy); err != nil {
		s.logger.Debug().Err(err).Msg("strategy not cached")
	}
	return strategy, nil
}

func (s *Service) snapshot(ctx context.Context) ([]track.Track, error) {
	cached, version, ok := s.cache.GetCatalog(ctx)
	s.countCache("catalog", ok)
	if ok {
		return cached, nil
	}

	tracks, err := s.catalog.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if err := s.cache.SetCatalog(ctx, version, tracks); err != nil {
		s.logger.Debug().Err(err).Msg("catalog not cached")
	}
	return tracks, nil
}

func (s *Service) countCache(object string, hit bool) {
	if !s.cache.IsAvailable() {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	telemetry.CacheRequestsTotal.WithLabelValues(object, result).Inc()
}

func (s *Service) announce(seq Sequence) {
	if seq.Exhausted() {
		s.logger.Warn().
			Str("channel_id", seq.ChannelID).
			Str("energy_tier", seq.EnergyTier).
			Int("requested", seq.Requested).
			Int("shortfall", seq.Shortfall).
			Int("pool_size", seq.PoolSize).
			Msg("sequence shorter than requested")
	}
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.EventSequenceGenerated, events.Payload{
		"channel_id":  seq.ChannelID,
		"energy_tier": seq.EnergyTier,
		"requested":   seq.Requested,
		"length":      len(seq.TrackIDs),
		"shortfall":   seq.Shortfall,
		"resets":      seq.Resets,
	})
}

func (s *Service) observe(kind string, start time.Time, res sequencer.Result, err error) {
	telemetry.GenerationDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	telemetry.GenerationsTotal.WithLabelValues(kind, outcome(res, err)).Inc()
	if err != nil {
		return
	}
	telemetry.PoolSize.Observe(float64(res.PoolSize))
	telemetry.ShortfallTotal.Add(float64(res.Shortfall))
	telemetry.ExhaustionResetsTotal.Add(float64(res.Resets))
}

func outcome(res sequencer.Result, err error) string {
	switch {
	case err == nil && res.Shortfall > 0:
		return "shortfall"
	case err == nil:
		return "ok"
	case sequencer.IsConfigError(err), errors.Is(err, sequencer.ErrSlotNotFound):
		return "config_error"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
