package logbuffer

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingKeepsNewest(t *testing.T) {
	b := New(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		b.Add(Entry{Message: msg, Level: "info"})
	}
	entries := b.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "b", entries[0].Message)
	assert.Equal(t, "d", entries[2].Message)
}

func TestWriterCapturesZerologLines(t *testing.T) {
	b := New(10)
	log := zerolog.New(NewWriter(b)).With().Timestamp().Logger()

	log.Info().Str("component", "generation").Str("channel_id", "lobby").Msg("sequence generated")
	log.Warn().Str("component", "generation").Str("channel_id", "rooftop").Int("shortfall", 3).Msg("pool exhausted")
	log.Debug().Str("component", "store").Msg("strategy saved")

	all := b.Entries()
	require.Len(t, all, 3)
	assert.Equal(t, "generation", all[0].Component)
	assert.Equal(t, "lobby", all[0].Fields["channel_id"])
	assert.WithinDuration(t, time.Now(), all[0].Timestamp, time.Minute)

	warn := b.Query(Query{MinLevel: "warn"})
	require.Len(t, warn, 1)
	assert.Equal(t, "pool exhausted", warn[0].Message)

	assert.Len(t, b.Query(Query{ChannelID: "lobby"}), 1)
	assert.Len(t, b.Query(Query{Component: "generation"}), 2)
	assert.Len(t, b.Query(Query{Search: "EXHAUSTED"}), 1)

	newest := b.Query(Query{Descending: true, Limit: 1})
	require.Len(t, newest, 1)
	assert.Equal(t, "strategy saved", newest[0].Message)

	stats := b.Stats()
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 1, stats.LevelCount["warn"])
	assert.ElementsMatch(t, []string{"generation", "store"}, stats.Components)
}

func TestWriterIgnoresNonJSON(t *testing.T) {
	b := New(2)
	n, err := NewWriter(b).Write([]byte("plain text\n"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Empty(t, b.Entries())
}

func TestClear(t *testing.T) {
	b := New(2)
	b.Add(Entry{Message: "x"})
	b.Add(Entry{Message: "y"})
	b.Add(Entry{Message: "z"})
	b.Clear()
	assert.Empty(t, b.Entries())
	b.Add(Entry{Message: "fresh"})
	require.Len(t, b.Entries(), 1)
	assert.Equal(t, "fresh", b.Entries()[0].Message)
}
