package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/slotsequencer/internal/catalog"
	"github.com/friendsincode/slotsequencer/internal/db"
	"github.com/friendsincode/slotsequencer/internal/events"
	"github.com/friendsincode/slotsequencer/internal/generation"
	"github.com/friendsincode/slotsequencer/internal/logbuffer"
	"github.com/friendsincode/slotsequencer/internal/storage"
	"github.com/friendsincode/slotsequencer/internal/store"
)

const tempoDoc = `{
	"schema_version": 2,
	"recent_repeat_window": 2,
	"rule_groups": [{"logic": "AND", "rules": [{"field": "bpm", "operator": "lte", "value": 150}]}],
	"slots": [
		{"index": 1, "targets": {"bpm": 120}, "boosts": [{"field": "bpm", "mode": "near", "weight": 2}]},
		{"index": 2, "targets": {"bpm": 80}}
	]
}`

const tempoTracks = `{"tracks": [
	{"id": "bpm-080", "title": "Slow", "bpm": 80},
	{"id": "bpm-100", "title": "Walk", "bpm": 100},
	{"id": "bpm-120", "title": "Jog", "bpm": 120},
	{"id": "bpm-140", "title": "Run", "bpm": 140},
	{"id": "bpm-160", "title": "Sprint", "bpm": 160}
]}`

type testEnv struct {
	server *httptest.Server
	bus    *events.Bus
	logs   *logbuffer.Buffer
}

func newTestEnv(t *testing.T, configure ...func(*API)) *testEnv {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "api.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(database))
	t.Cleanup(func() { _ = db.Close(database) })

	log := zerolog.Nop()
	bus := events.NewBus()
	st := store.New(database, bus, nil, log)
	cat := catalog.NewRepository(database, nil, log)
	gen := generation.NewService(st, cat, nil, bus, generation.Options{MaxLength: 20, Timeout: 5 * time.Second}, log)
	archive := storage.NewArchive(storage.NewFilesystemStore(t.TempDir(), log), log)

	logs := logbuffer.New(50)
	a := New(database, st, cat, gen, archive, bus, "test", log)
	a.SetLogBuffer(logs)
	for _, fn := range configure {
		fn(a)
	}
	r := chi.NewRouter()
	a.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, bus: bus, logs: logs}
}

func (e *testEnv) do(t *testing.T, method, path, contentType, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/v1/tracks/import", "application/json", tempoTracks)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	resp, body = e.do(t, http.MethodPut, "/api/v1/channels/lobby/tiers/medium/strategy", "application/json", tempoDoc)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var e struct {
		Error string `json:"error"`
	}
	require.NoError(t, gojson.Unmarshal(body, &e), string(body))
	return e.Error
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/api/v1/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func TestAttributes(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/api/v1/attributes", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var specs []struct {
		Name string `json:"name"`
	}
	require.NoError(t, gojson.Unmarshal(body, &specs))
	assert.Len(t, specs, 9)
}

func TestStrategyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	sub := env.bus.Subscribe(events.EventStrategyUpdated)
	base := "/api/v1/channels/lobby/tiers/medium/strategy"

	resp, body := env.do(t, http.MethodPut, base, "application/json", tempoDoc)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	select {
	case payload := <-sub:
		assert.Equal(t, "lobby", payload["channel_id"])
	case <-time.After(time.Second):
		t.Fatal("expected strategy.updated event")
	}

	resp, body = env.do(t, http.MethodGet, base, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"channel_id":"lobby"`)
	assert.Contains(t, string(body), `"energy_tier":"medium"`)

	resp, body = env.do(t, http.MethodGet, base+"/export?format=yaml", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "schema_version: 2")

	resp, body = env.do(t, http.MethodGet, "/api/v1/channels/lobby/strategies", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"energy_tier":"medium"`)

	resp, _ = env.do(t, http.MethodDelete, base, "", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, base, "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, body))
}

func TestStrategyImportCSV(t *testing.T) {
	env := newTestEnv(t)
	csv := "field,1,2\nbpm,120,80\nboost:bpm,near:2,\n@recent_repeat_window,1\n"
	resp, body := env.do(t, http.MethodPost, "/api/v1/channels/lobby/tiers/low/strategy/import?format=csv", "text/csv", csv)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"recent_repeat_window":1`)

	resp, body = env.do(t, http.MethodGet, "/api/v1/channels/lobby/tiers/low/strategy/export?format=csv", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(string(body), "field,1,2\n"), string(body))
}

func TestStrategyErrors(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"bad tier", "/api/v1/channels/lobby/tiers/extreme/strategy", tempoDoc, http.StatusBadRequest, "invalid_tier"},
		{"schema violation", "/api/v1/channels/lobby/tiers/low/strategy", `{"schema_version": 2, "slots": [{"index": 1, "boosts": [{"field": "bpm", "mode": "near", "weight": 9}]}]}`, http.StatusBadRequest, "invalid_document"},
		{"future version", "/api/v1/channels/lobby/tiers/low/strategy", `{"schema_version": 7, "slots": []}`, http.StatusBadRequest, "unsupported_schema_version"},
		{"no slots", "/api/v1/channels/lobby/tiers/low/strategy", `{"schema_version": 2, "slots": []}`, http.StatusUnprocessableEntity, "strategy_config"},
		{"unknown format", "/api/v1/channels/lobby/tiers/low/strategy?format=xml", tempoDoc, http.StatusBadRequest, "unsupported_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPut, tt.path, "application/json", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))
			assert.Equal(t, tt.code, errorCode(t, body))
		})
	}
}

func TestSchemaProblemsAreListed(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodPut, "/api/v1/channels/lobby/tiers/low/strategy", "application/json",
		`{"schema_version": 2, "recent_repeat_window": -1, "slots": [{"index": 0}]}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var e struct {
		Problems []string `json:"problems"`
	}
	require.NoError(t, gojson.Unmarshal(body, &e))
	assert.GreaterOrEqual(t, len(e.Problems), 2)
}

type sequenceBody struct {
	TrackIDs  []string `json:"track_ids"`
	Shortfall int      `json:"shortfall"`
	Capped    bool     `json:"capped"`
	PoolSize  int      `json:"pool_size"`
}

func TestGenerate(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/channels/lobby/tiers/medium/generate", "application/json", `{"length": 4}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var seq sequenceBody
	require.NoError(t, gojson.Unmarshal(body, &seq))
	assert.Equal(t, []string{"bpm-120", "bpm-080", "bpm-100", "bpm-120"}, seq.TrackIDs)
	assert.Equal(t, 4, seq.PoolSize)
	assert.Zero(t, seq.Shortfall)

	resp, body = env.do(t, http.MethodPost, "/api/v1/channels/lobby/tiers/medium/generate?length=50", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, gojson.Unmarshal(body, &seq))
	assert.True(t, seq.Capped)
	assert.Len(t, seq.TrackIDs, 20)

	resp, body = env.do(t, http.MethodPost, "/api/v1/channels/lobby/tiers/medium/generate", "application/json", `{"length": -1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "strategy_config", errorCode(t, body))

	resp, body = env.do(t, http.MethodPost, "/api/v1/channels/nowhere/tiers/medium/generate", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, body))
}

func TestSlotPreview(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/channels/lobby/tiers/medium/slots/1/preview?limit=2", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var prev struct {
		Candidates []struct {
			TrackID string `json:"track_id"`
		} `json:"candidates"`
	}
	require.NoError(t, gojson.Unmarshal(body, &prev))
	require.Len(t, prev.Candidates, 2)
	assert.Equal(t, "bpm-120", prev.Candidates[0].TrackID)

	resp, body = env.do(t, http.MethodGet, "/api/v1/channels/lobby/tiers/medium/slots/9/preview", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "slot_not_found", errorCode(t, body))
}

func TestPreviewUnsavedDocument(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/preview", "application/json", `{"length": 4, "document": `+tempoDoc+`}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var seq sequenceBody
	require.NoError(t, gojson.Unmarshal(body, &seq))
	assert.Equal(t, []string{"bpm-120", "bpm-080", "bpm-100", "bpm-120"}, seq.TrackIDs)
}

func TestGenerateStream(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/v1/channels/lobby/tiers/medium/generate/stream?length=4"
	conn, _, err := ws.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(ws.StatusNormalClosure, "")

	var placed []string
	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var msg streamMessage
		require.NoError(t, gojson.Unmarshal(data, &msg))
		if msg.Type == "placement" {
			placed = append(placed, msg.Placement.TrackID)
			continue
		}
		require.Equal(t, "done", msg.Type, string(data))
		assert.Equal(t, placed, msg.Sequence.TrackIDs)
		break
	}
	assert.Equal(t, []string{"bpm-120", "bpm-080", "bpm-100", "bpm-120"}, placed)
}

func TestGenerateStreamReportsErrors(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/v1/channels/lobby/tiers/medium/generate/stream"
	conn, _, err := ws.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(ws.StatusNormalClosure, "")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg streamMessage
	require.NoError(t, gojson.Unmarshal(data, &msg))
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "not_found", msg.Error)
}

func TestArchiveAndRestore(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	base := "/api/v1/channels/lobby/tiers/medium/strategy"

	resp, body := env.do(t, http.MethodPost, base+"/archive?format=yaml", "", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var snap storage.Snapshot
	require.NoError(t, gojson.Unmarshal(body, &snap))
	assert.Equal(t, "yaml", snap.Format)

	resp, body = env.do(t, http.MethodGet, base+"/archive", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), snap.Key)

	resp, _ = env.do(t, http.MethodPut, base, "application/json",
		`{"schema_version": 2, "slots": [{"index": 1, "targets": {"bpm": 160}}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, base+"/archive/restore", "application/json", `{"key": "`+snap.Key+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"recent_repeat_window":2`)

	resp, _ = env.do(t, http.MethodPost, base+"/archive/restore", "application/json", `{"key": "strategies/lobby/medium/missing.json"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSavedSequences(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/sequences", "application/json", `{"name": "morning", "document": `+tempoDoc+`}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = env.do(t, http.MethodPost, "/api/v1/sequences/morning/duplicate", "application/json", `{"name": "evening"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = env.do(t, http.MethodPost, "/api/v1/sequences/morning/rename", "application/json", `{"name": "evening"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "name_taken", errorCode(t, body))

	resp, body = env.do(t, http.MethodPost, "/api/v1/sequences/morning/rename", "application/json", `{"name": "dawn"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = env.do(t, http.MethodGet, "/api/v1/sequences/dawn", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"name":"dawn"`)
	assert.Contains(t, string(body), `"kind":"saved_sequence"`)

	resp, body = env.do(t, http.MethodGet, "/api/v1/sequences/dawn?format=csv&download=1", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "dawn.csv")
	assert.Contains(t, string(body), "@name,dawn")

	resp, body = env.do(t, http.MethodPut, "/api/v1/sequences/night?format=yaml", "application/yaml",
		"schema_version: 2\nslots:\n  - index: 1\n    targets: {bpm: 70}\n")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = env.do(t, http.MethodGet, "/api/v1/sequences", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, name := range []string{"dawn", "evening", "night"} {
		assert.Contains(t, string(body), `"name":"`+name+`"`)
	}

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/sequences/dawn", "", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/api/v1/sequences/dawn", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTracks(t *testing.T) {
	env := newTestEnv(t)
	sub := env.bus.Subscribe(events.EventCatalogUpdated)

	resp, body := env.do(t, http.MethodPost, "/api/v1/tracks/import", "application/json",
		`[{"id": "ok", "bpm": 90}, {"id": "too-fast", "bpm": 900}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res catalog.ImportResult
	require.NoError(t, gojson.Unmarshal(body, &res))
	assert.Equal(t, 1, res.Imported)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "too-fast", res.Rejected[0].ID)

	select {
	case <-sub:
	case <-time.After(time.Second):
		t.Fatal("expected catalog.updated event")
	}

	resp, body = env.do(t, http.MethodGet, "/api/v1/tracks/count", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"count": 1}`, string(body))

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/tracks/ok", "", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = env.do(t, http.MethodDelete, "/api/v1/tracks/ok", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/api/v1/tracks/import", "application/json", `"nope"`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_tracks", errorCode(t, body))
}

func TestEventsStream(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/v1/events?types=catalog.updated"
	conn, _, err := ws.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(ws.StatusNormalClosure, "")

	// The subscription is registered after the handshake; wait for it.
	require.Eventually(t, func() bool {
		return env.bus.SubscriberCount(events.EventCatalogUpdated) > 0
	}, 2*time.Second, 10*time.Millisecond)

	resp, _ := env.do(t, http.MethodPost, "/api/v1/tracks/import", "application/json", `{"id": "a", "bpm": 100}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg eventMessage
	require.NoError(t, gojson.Unmarshal(data, &msg))
	assert.Equal(t, events.EventCatalogUpdated, msg.Type)
}

func TestLogs(t *testing.T) {
	env := newTestEnv(t)
	env.logs.Add(logbuffer.Entry{Timestamp: time.Now(), Level: "info", Component: "generation", Message: "sequence generated", Fields: map[string]any{"channel_id": "lobby"}})
	env.logs.Add(logbuffer.Entry{Timestamp: time.Now(), Level: "warn", Component: "generation", Message: "pool exhausted", Fields: map[string]any{"channel_id": "rooftop"}})

	resp, body := env.do(t, http.MethodGet, "/api/v1/logs?level=warn", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out struct {
		Entries []logbuffer.Entry `json:"entries"`
		Count   int               `json:"count"`
	}
	require.NoError(t, gojson.Unmarshal(body, &out))
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "pool exhausted", out.Entries[0].Message)

	_, body = env.do(t, http.MethodGet, "/api/v1/logs?channel_id=lobby&order=asc", "", "")
	require.NoError(t, gojson.Unmarshal(body, &out))
	assert.Equal(t, 1, out.Count)

	resp, body = env.do(t, http.MethodGet, "/api/v1/logs?since=yesterday", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_since", errorCode(t, body))

	resp, _ = env.do(t, http.MethodGet, "/api/v1/logs?limit=0", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = env.do(t, http.MethodGet, "/api/v1/logs/stats", "", "")
	var stats logbuffer.Stats
	require.NoError(t, gojson.Unmarshal(body, &stats))
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, []string{"generation"}, stats.Components)

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/logs", "", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, env.logs.Entries())
}

func TestWebSocketOriginCheck(t *testing.T) {
	env := newTestEnv(t, func(a *API) { a.SetWebSocketOrigins([]string{"studio.example"}) })
	env.seed(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/v1/channels/lobby/tiers/medium/generate/stream?length=1"

	_, resp, err := ws.Dial(ctx, url, &ws.DialOptions{HTTPHeader: http.Header{"Origin": {"https://elsewhere.example"}}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := ws.Dial(ctx, url, &ws.DialOptions{HTTPHeader: http.Header{"Origin": {"https://studio.example"}}})
	require.NoError(t, err)
	defer conn.Close(ws.StatusNormalClosure, "")
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg streamMessage
	require.NoError(t, gojson.Unmarshal(data, &msg))
	assert.Equal(t, "placement", msg.Type)
}

func TestTracksImportReplace(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/tracks/import?replace=true", "application/json",
		`{"tracks": [{"id": "bpm-080", "bpm": 80}, {"id": "bpm-120", "bpm": 120}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res struct {
		Imported int `json:"imported"`
		Removed  int `json:"removed"`
	}
	require.NoError(t, gojson.Unmarshal(body, &res))
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 3, res.Removed)

	_, body = env.do(t, http.MethodGet, "/api/v1/tracks/count", "", "")
	assert.JSONEq(t, `{"count": 2}`, string(body))

	resp, body = env.do(t, http.MethodPost, "/api/v1/tracks/import?replace=true", "application/json", `{"id": "loud", "bpm": 900}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "empty_replace", errorCode(t, body))

	resp, body = env.do(t, http.MethodPost, "/api/v1/tracks/import?replace=maybe", "application/json", `{"id": "a", "bpm": 100}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_replace", errorCode(t, body))
}
