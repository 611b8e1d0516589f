package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/friendsincode/slotsequencer/internal/attribute"
	"github.com/friendsincode/slotsequencer/internal/cache"
	"github.com/friendsincode/slotsequencer/internal/events"
	"github.com/friendsincode/slotsequencer/internal/filter"
	"github.com/friendsincode/slotsequencer/internal/scoring"
	"github.com/friendsincode/slotsequencer/internal/sequencer"
	"github.com/friendsincode/slotsequencer/internal/strategydoc"
	"github.com/friendsincode/slotsequencer/internal/track"
)

var errMissing = errors.New("missing")

type fakeStrategies map[string]strategydoc.Document

func (f fakeStrategies) Get(_ context.Context, channelID, tier string) (strategydoc.Document, error) {
	doc, ok := f[channelID+"/"+tier]
	if !ok {
		return strategydoc.Document{}, errMissing
	}
	return doc, nil
}

type fakeCatalog struct {
	tracks   []track.Track
	err      error
	narrowed int
}

func (f *fakeCatalog) All(context.Context) ([]track.Track, error) {
	return f.tracks, f.err
}

func (f *fakeCatalog) Narrowed(_ context.Context, _ []filter.Group) ([]track.Track, error) {
	f.narrowed++
	return f.tracks, f.err
}

func bpmPool(values ...float64) []track.Track {
	out := make([]track.Track, len(values))
	for i, v := range values {
		out[i] = track.Track{
			ID:         fmt.Sprintf("bpm-%03.0f", v),
			Title:      fmt.Sprintf("Track %d", i+1),
			Attributes: map[string]attribute.Value{attribute.BPM: attribute.Number(v)},
		}
	}
	return out
}

func tempoStrategy() sequencer.Strategy {
	return sequencer.Strategy{
		RecentRepeatWindow: 2,
		RuleGroups: []filter.Group{{Logic: filter.LogicAnd, Rules: []filter.Rule{
			{Field: attribute.BPM, Operator: filter.OpLte, Value: attribute.Number(150)},
		}}},
		Slots: []scoring.Slot{
			{
				Index:   1,
				Targets: map[string]attribute.Value{attribute.BPM: attribute.Number(120)},
				Boosts:  []scoring.Boost{{Field: attribute.BPM, Mode: scoring.ModeNear, Weight: 2}},
			},
			{Index: 2, Targets: map[string]attribute.Value{attribute.BPM: attribute.Number(80)}},
		},
	}
}

func newTestService(t *testing.T, opts Options) (*Service, *fakeCatalog, *events.Bus) {
	t.Helper()
	catalog := &fakeCatalog{tracks: bpmPool(80, 100, 120, 140, 160)}
	strategies := fakeStrategies{
		"rain/low":  strategydoc.New(tempoStrategy()),
		"broken/hi": {SchemaVersion: 2},
	}
	bus := events.NewBus()
	svc := NewService(strategies, catalog, cache.Disabled(zerolog.Nop()), bus, opts, zerolog.Nop())
	return svc, catalog, bus
}

func TestGenerate(t *testing.T) {
	svc, _, bus := newTestService(t, Options{})
	generated := bus.Subscribe(events.EventSequenceGenerated)

	seq, err := svc.Generate(context.Background(), "rain", "low", 4)
	require.NoError(t, err)
	// bpm 160 is filtered out. At position 2 the window excludes 120 and 80,
	// and 100 beats 140 on pool order.
	assert.Equal(t, []string{"bpm-120", "bpm-080", "bpm-100", "bpm-120"}, seq.TrackIDs)
	assert.Equal(t, 4, seq.PoolSize)
	assert.Zero(t, seq.Shortfall)
	assert.False(t, seq.Capped)

	select {
	case p := <-generated:
		assert.Equal(t, "rain", p["channel_id"])
		assert.Equal(t, 4, p["length"])
	case <-time.After(time.Second):
		t.Fatal("sequence.generated not published")
	}
}

func TestGenerateCapsLength(t *testing.T) {
	svc, _, _ := newTestService(t, Options{MaxLength: 3})
	seq, err := svc.Generate(context.Background(), "rain", "low", 50)
	require.NoError(t, err)
	assert.True(t, seq.Capped)
	assert.Equal(t, 3, seq.Requested)
	assert.Len(t, seq.TrackIDs, 3)
}

func TestGenerateErrors(t *testing.T) {
	svc, catalog, _ := newTestService(t, Options{})
	ctx := context.Background()

	_, err := svc.Generate(ctx, "nobody", "low", 1)
	assert.ErrorIs(t, err, errMissing)

	_, err = svc.Generate(ctx, "broken", "hi", 1)
	assert.True(t, sequencer.IsConfigError(err))
	assert.ErrorIs(t, err, sequencer.ErrNoSlots)

	_, err = svc.Generate(ctx, "rain", "low", -1)
	assert.ErrorIs(t, err, sequencer.ErrInvalidLength)

	catalog.err = errors.New("database gone")
	_, err = svc.Generate(ctx, "rain", "low", 1)
	assert.ErrorContains(t, err, "database gone")
}

func TestGenerateReportsShortfallOnEmptyPool(t *testing.T) {
	svc, catalog, _ := newTestService(t, Options{})
	catalog.tracks = bpmPool(200, 220)

	seq, err := svc.Generate(context.Background(), "rain", "low", 3)
	require.NoError(t, err)
	assert.Empty(t, seq.TrackIDs)
	assert.Equal(t, 3, seq.Shortfall)
	assert.True(t, seq.Exhausted())
}

func TestPreviewSlot(t *testing.T) {
	svc, _, _ := newTestService(t, Options{PreviewLimit: 2})

	prev, err := svc.PreviewSlot(context.Background(), "rain", "low", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, prev.PoolSize)
	require.Len(t, prev.Candidates, 2)
	assert.Equal(t, "bpm-120", prev.Candidates[0].TrackID)
	assert.Equal(t, 1, prev.Candidates[0].Rank)
	assert.Zero(t, prev.Candidates[0].Score)
	// 100 and 140 tie at 40; pool order keeps 100 first.
	assert.Equal(t, "bpm-100", prev.Candidates[1].TrackID)
	assert.Equal(t, map[string]float64{attribute.BPM: 40}, prev.Candidates[1].Breakdown)

	_, err = svc.PreviewSlot(context.Background(), "rain", "low", 7, 0)
	assert.ErrorIs(t, err, sequencer.ErrSlotNotFound)
}

func TestStreamMatchesGenerate(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	want, err := svc.Generate(ctx, "rain", "low", 6)
	require.NoError(t, err)

	var streamed []string
	got, err := svc.Stream(ctx, "rain", "low", 6, func(p sequencer.Placement) error {
		streamed = append(streamed, p.TrackID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, want.TrackIDs, streamed)
	assert.Equal(t, want.Result, got.Result)
}

func TestStreamStopsOnEmitError(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	stop := errors.New("client went away")
	calls := 0
	_, err := svc.Stream(context.Background(), "rain", "low", 6, func(sequencer.Placement) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, calls)
}

func TestStreamHonoursCancellation(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := svc.Stream(ctx, "rain", "low", 6, func(sequencer.Placement) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPreviewStrategyMatchesStoredGeneration(t *testing.T) {
	svc, catalog, _ := newTestService(t, Options{})
	ctx := context.Background()

	stored, err := svc.Generate(ctx, "rain", "low", 5)
	require.NoError(t, err)
	preview, err := svc.PreviewStrategy(ctx, tempoStrategy(), 5)
	require.NoError(t, err)
	assert.Equal(t, stored.Result, preview.Result)
	assert.Equal(t, 1, catalog.narrowed)

	_, err = svc.PreviewStrategy(ctx, sequencer.Strategy{}, 5)
	assert.True(t, sequencer.IsConfigError(err))
}

func TestConcurrentGenerationIsDeterministic(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	want, err := svc.Generate(context.Background(), "rain", "low", 8)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seq, err := svc.Generate(context.Background(), "rain", "low", 8)
			if err == nil {
				results[i] = seq.TrackIDs
			}
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		assert.Equal(t, want.TrackIDs, got)
	}
}

func TestListenUnsubscribesOnCancel(t *testing.T) {
	svc, _, bus := newTestService(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Listen(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return bus.SubscriberCount(events.EventStrategyUpdated) == 1
	}, time.Second, 10*time.Millisecond)
	bus.Publish(events.EventStrategyUpdated, events.Payload{"channel_id": "rain", "energy_tier": "low"})
	bus.Publish(events.EventCatalogUpdated, events.Payload{})

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Listen did not return")
	}
	assert.Zero(t, bus.SubscriberCount(events.EventStrategyUpdated))
	assert.Zero(t, bus.SubscriberCount(events.EventCatalogUpdated))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", outcome(sequencer.Result{}, nil))
	assert.Equal(t, "shortfall", outcome(sequencer.Result{Shortfall: 1}, nil))
	assert.Equal(t, "config_error", outcome(sequencer.Result{}, &sequencer.ConfigError{Err: sequencer.ErrNoSlots}))
	assert.Equal(t, "cancelled", outcome(sequencer.Result{}, context.DeadlineExceeded))
	assert.Equal(t, "error", outcome(sequencer.Result{}, errMissing))
}

func newRedisCache(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := cache.DefaultConfig()
	cfg.RedisAddr = mr.Addr()
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), cfg, zerolog.Nop())
	t.Cleanup(func() { _ = c.Close() })
	require.True(t, c.IsAvailable())
	return c, mr
}

func targetStrategy(bpm float64) strategydoc.Document {
	return strategydoc.New(sequencer.Strategy{Slots: []scoring.Slot{{
		Index:   1,
		Targets: map[string]attribute.Value{attribute.BPM: attribute.Number(bpm)},
		Boosts:  []scoring.Boost{{Field: attribute.BPM, Mode: scoring.ModeNear, Weight: 2}},
	}}})
}

// racingStrategies commits a newer strategy (and invalidates the cache the
// way the store does) right after handing out the first read.
type racingStrategies struct {
	mu    sync.Mutex
	cache *cache.Cache
	reads int
}

func (r *racingStrategies) Get(ctx context.Context, channelID, tier string) (strategydoc.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if r.reads == 1 {
		if err := r.cache.InvalidateStrategy(ctx, channelID, tier); err != nil {
			return strategydoc.Document{}, err
		}
		return targetStrategy(80), nil
	}
	return targetStrategy(160), nil
}

func TestCacheFillRacingWriteIsNotServed(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t)
	strategies := &racingStrategies{cache: c}
	svc := NewService(strategies, &fakeCatalog{tracks: bpmPool(80, 120, 160)}, c, nil, Options{}, zerolog.Nop())

	first, err := svc.Generate(ctx, "rain", "low", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"bpm-080"}, first.TrackIDs)
	assert.False(t, mr.Exists(cache.StrategyKey("rain", "low")), "fill from before the write must be dropped")

	second, err := svc.Generate(ctx, "rain", "low", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"bpm-160"}, second.TrackIDs)
	assert.Equal(t, 2, strategies.reads)

	// The second read filled normally and is now served from cache.
	assert.True(t, mr.Exists(cache.StrategyKey("rain", "low")))
	third, err := svc.Generate(ctx, "rain", "low", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"bpm-160"}, third.TrackIDs)
	assert.Equal(t, 2, strategies.reads)
}

func TestListenDropsCachedKeys(t *testing.T) {
	c, mr := newRedisCache(t)
	bus := events.NewBus()
	strategies := fakeStrategies{"rain/low": strategydoc.New(tempoStrategy())}
	svc := NewService(strategies, &fakeCatalog{tracks: bpmPool(80, 100, 120)}, c, bus, Options{}, zerolog.Nop())

	_, err := svc.Generate(context.Background(), "rain", "low", 2)
	require.NoError(t, err)
	require.True(t, mr.Exists(cache.StrategyKey("rain", "low")))
	require.True(t, mr.Exists(cache.KeyCatalog))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Listen(ctx)
	require.Eventually(t, func() bool {
		return bus.SubscriberCount(events.EventCatalogUpdated) == 1
	}, time.Second, 10*time.Millisecond)

	bus.Publish(events.EventStrategyUpdated, events.Payload{"channel_id": "rain", "energy_tier": "low"})
	require.Eventually(t, func() bool {
		return !mr.Exists(cache.StrategyKey("rain", "low"))
	}, time.Second, 10*time.Millisecond)
	assert.True(t, mr.Exists(cache.KeyCatalog))

	bus.Publish(events.EventCatalogUpdated, events.Payload{})
	require.Eventually(t, func() bool {
		return !mr.Exists(cache.KeyCatalog)
	}, time.Second, 10*time.Millisecond)
}
