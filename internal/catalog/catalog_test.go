package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/slotsequencer/internal/attribute"
	"github.com/friendsincode/slotsequencer/internal/cache"
	"github.com/friendsincode/slotsequencer/internal/db"
	"github.com/friendsincode/slotsequencer/internal/filter"
	"github.com/friendsincode/slotsequencer/internal/track"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "catalog.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(database))
	t.Cleanup(func() { _ = db.Close(database) })
	return NewRepository(database, nil, zerolog.Nop())
}

func bpmTrack(id string, bpm float64) track.Track {
	return track.Track{ID: id, Attributes: map[string]attribute.Value{attribute.BPM: attribute.Number(bpm)}}
}

func TestImportAndAll(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	res, err := repo.Import(ctx, []track.Track{
		bpmTrack("c", 140),
		bpmTrack("a", 80),
		{ID: "b", Title: "Fog", Metadata: map[string]any{"mood": map[string]any{"primary": "calm"}}},
		bpmTrack("bad", 900),
		{ID: ""},
	}, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	require.Len(t, res.Rejected, 2)
	assert.Equal(t, "bad", res.Rejected[0].ID)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, track.IDs(all))
	assert.Equal(t, "calm", all[1].Resolve("metadata.mood.primary").Str)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestImportUpsertsAndRestores(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Import(ctx, []track.Track{bpmTrack("a", 80)}, ImportOptions{})
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, "a"))
	assert.ErrorIs(t, repo.Delete(ctx, "a"), ErrNotFound)

	_, err = repo.Import(ctx, []track.Track{bpmTrack("a", 95)}, ImportOptions{})
	require.NoError(t, err)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	bpm, ok := all[0].Number(attribute.BPM)
	require.True(t, ok)
	assert.Equal(t, 95.0, bpm)
}

func TestNarrowedIsSupersetOfFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	pool := []track.Track{
		bpmTrack("t080", 80),
		bpmTrack("t100", 100),
		bpmTrack("t120", 120),
		{ID: "none", Metadata: map[string]any{"genre": "drone"}},
		{ID: "t110", Attributes: map[string]attribute.Value{
			attribute.BPM:       attribute.Number(110),
			attribute.Intensity: attribute.Number(7),
		}},
	}
	_, err := repo.Import(ctx, pool, ImportOptions{})
	require.NoError(t, err)

	groups := []filter.Group{
		{Logic: filter.LogicAnd, Rules: []filter.Rule{
			{Field: "bpm", Operator: filter.OpBetween, Value: attribute.List(attribute.Number(90), attribute.Number(130))},
			{Field: "intensity", Operator: filter.OpExists, Value: attribute.Bool(false)},
			{Field: "title", Operator: filter.OpExists, Value: attribute.Bool(false)},
		}},
		{Logic: filter.LogicOr, Rules: []filter.Rule{
			{Field: "bpm", Operator: filter.OpGte, Value: attribute.Number(115)},
			{Field: "bpm", Operator: filter.OpLte, Value: attribute.Number(100)},
		}},
	}

	narrowed, err := repo.Narrowed(ctx, groups)
	require.NoError(t, err)
	// OR groups are not pushed down, so t100 and t120 both survive SQL.
	assert.Equal(t, []string{"t100", "t120"}, track.IDs(narrowed))

	all, err := repo.All(ctx)
	require.NoError(t, err)
	want := track.IDs(filter.Filter(all, groups))
	assert.Equal(t, []string{"t100", "t120"}, want)
	assert.Equal(t, want, track.IDs(filter.Filter(narrowed, groups)))
}

func TestPushdown(t *testing.T) {
	tests := []struct {
		name string
		rule filter.Rule
		want string
		ok   bool
	}{
		{"gte", filter.Rule{Field: "BPM", Operator: filter.OpGte, Value: attribute.Number(100)}, "bpm >= ?", true},
		{"between", filter.Rule{Field: "valence", Operator: filter.OpBetween, Value: attribute.List(attribute.Number(-1), attribute.Number(0))}, "valence BETWEEN ? AND ?", true},
		{"exists", filter.Rule{Field: "speed", Operator: filter.OpExists}, "speed IS NOT NULL", true},
		{"string bound", filter.Rule{Field: "bpm", Operator: filter.OpGte, Value: attribute.String("100")}, "", false},
		{"key", filter.Rule{Field: "key", Operator: filter.OpEq, Value: attribute.String("Am")}, "", false},
		{"metadata", filter.Rule{Field: "metadata.bpm", Operator: filter.OpGte, Value: attribute.Number(1)}, "", false},
		{"eq", filter.Rule{Field: "bpm", Operator: filter.OpEq, Value: attribute.Number(120)}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, ok := pushdown(tt.rule)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSidecar(t *testing.T) {
	single := []byte(`{"title": "Harbour", "bpm": "96", "key": "a minor", "duration": 181.5, "mood": {"primary": "calm"}}`)
	tracks, err := Parse(single, "harbour")
	require.NoError(t, err)
	require.Len(t, tracks, 1)

	got := tracks[0]
	assert.Equal(t, "harbour", got.ID)
	assert.EqualValues(t, 181500, got.DurationMS)
	assert.Equal(t, attribute.Number(96), got.Attributes[attribute.BPM])
	assert.Equal(t, "Am", got.Attributes[attribute.Key].Str)
	assert.Equal(t, "calm", got.Resolve("mood.primary").Str)

	list := []byte(`{"tracks": [{"id": "x", "attributes": {"Intensity": 3}}, {"id": "y"}]}`)
	tracks, err = Parse(list, "ignored")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, track.IDs(tracks))
	assert.Equal(t, attribute.Number(3), tracks[0].Attributes[attribute.Intensity])

	_, err = Parse([]byte(`{"attributes": {"loudness": 2}}`), "z")
	assert.Error(t, err)
	_, err = Parse([]byte(`"nope"`), "z")
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b-side.json"), []byte(`{"bpm": 100}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-side.json"), []byte(`{"bpm": 90}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`ignored`), 0o600))

	tracks, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-side", "b-side"}, track.IDs(tracks))
}

func TestImportReplace(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Import(ctx, []track.Track{bpmTrack("a", 80), bpmTrack("b", 100), bpmTrack("c", 120), bpmTrack("d", 140)}, ImportOptions{})
	require.NoError(t, err)

	// "d" is rejected but listed, so it stays; "b" is missing and goes.
	res, err := repo.Import(ctx, []track.Track{bpmTrack("a", 85), bpmTrack("c", 125), bpmTrack("d", 900), bpmTrack("e", 160)}, ImportOptions{Replace: true})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, 1, res.Removed)
	require.Len(t, res.Rejected, 1)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d", "e"}, track.IDs(all))
	assert.Equal(t, 85.0, all[0].Resolve("bpm").Num)

	_, err = repo.Import(ctx, []track.Track{bpmTrack("x", 900)}, ImportOptions{Replace: true})
	assert.ErrorIs(t, err, ErrEmptyReplace)
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

func TestWritesDropCachedSnapshot(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), cache.DefaultConfig(), zerolog.Nop())
	t.Cleanup(func() { _ = c.Close() })
	repo := NewRepository(newTestRepo(t).db, c, zerolog.Nop())

	_, err := repo.Import(ctx, []track.Track{bpmTrack("a", 80)}, ImportOptions{})
	require.NoError(t, err)
	_, v, ok := c.GetCatalog(ctx)
	require.False(t, ok)
	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.NoError(t, c.SetCatalog(ctx, v, all))
	require.True(t, mr.Exists(cache.KeyCatalog))

	_, err = repo.Import(ctx, []track.Track{bpmTrack("b", 90)}, ImportOptions{})
	require.NoError(t, err)
	assert.False(t, mr.Exists(cache.KeyCatalog))
	assert.ErrorIs(t, c.SetCatalog(ctx, v, all), cache.ErrStale)

	_, v, _ = c.GetCatalog(ctx)
	require.NoError(t, c.SetCatalog(ctx, v, all))
	require.NoError(t, repo.Delete(ctx, "a"))
	assert.False(t, mr.Exists(cache.KeyCatalog))
}
