/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/slotsequencer/internal/attribute"
	"github.com/friendsincode/slotsequencer/internal/catalog"
	"github.com/friendsincode/slotsequencer/internal/events"
	"github.com/friendsincode/slotsequencer/internal/filter"
	"github.com/friendsincode/slotsequencer/internal/generation"
	"github.com/friendsincode/slotsequencer/internal/logbuffer"
	"github.com/friendsincode/slotsequencer/internal/storage"
	"github.com/friendsincode/slotsequencer/internal/store"
)

// maxBodyBytes bounds request bodies; track imports are the largest.
const maxBodyBytes = 32 << 20

// API exposes HTTP handlers.
type API struct {
	db        *gorm.DB
	store     *store.Store
	catalog   *catalog.Repository
	generator *generation.Service
	archive   *storage.Archive
	bus       events.Broker
	logs      *logbuffer.Buffer
	origins   []string
	version   string
	logger    zerolog.Logger
}

// New creates the API router wrapper. archive may be nil to disable snapshots.
func New(db *gorm.DB, st *store.Store, cat *catalog.Repository, gen *generation.Service, archive *storage.Archive, bus events.Broker, version string, logger zerolog.Logger) *API {
	return &API{
		db:        db,
		store:     st,
		catalog:   cat,
		generator: gen,
		archive:   archive,
		bus:       bus,
		version:   version,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// SetLogBuffer exposes captured logs under /api/v1/logs.
func (a *API) SetLogBuffer(buf *logbuffer.Buffer) {
	a.logs = buf
}

// SetWebSocketOrigins allows browser pages on these origin host patterns to
// open websocket streams in addition to same-origin pages.
func (a *API) SetWebSocketOrigins(patterns []string) {
	a.origins = patterns
}

// Routes registers every endpoint under /api/v1.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/attributes", a.handleAttributes)
		r.Get("/operators", a.handleOperators)
		r.Get("/events", a.handleEvents)
		r.Get("/logs", a.handleLogs)
		r.Delete("/logs", a.handleLogsClear)
		r.Get("/logs/stats", a.handleLogStats)

		r.Get("/strategies", a.handleStrategiesList)
		r.Route("/channels/{channelID}", func(r chi.Router) {
			r.Get("/strategies", a.handleStrategiesList)
			r.Route("/tiers/{tier}", func(r chi.Router) {
				r.Route("/strategy", func(r chi.Router) {
					r.Get("/", a.handleStrategyGet)
					r.Put("/", a.handleStrategyPut)
					r.Delete("/", a.handleStrategyDelete)
					r.Get("/export", a.handleStrategyExport)
					r.Post("/import", a.handleStrategyImport)
					r.Get("/archive", a.handleStrategyArchiveList)
					r.Post("/archive", a.handleStrategyArchive)
					r.Post("/archive/restore", a.handleStrategyRestore)
				})
				r.Post("/generate", a.handleGenerate)
				r.Get("/generate/stream", a.handleGenerateStream)
				r.Get("/slots/{slotIndex}/preview", a.handleSlotPreview)
			})
		})

		r.Post("/preview", a.handlePreview)

		r.Route("/sequences", func(r chi.Router) {
			r.Get("/", a.handleSavedList)
			r.Post("/", a.handleSavedCreate)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", a.handleSavedGet)
				r.Put("/", a.handleSavedPut)
				r.Delete("/", a.handleSavedDelete)
				r.Post("/duplicate", a.handleSavedDuplicate)
				r.Post("/rename", a.handleSavedRename)
			})
		})

		r.Route("/tracks", func(r chi.Router) {
			r.Post("/import", a.handleTracksImport)
			r.Get("/count", a.handleTracksCount)
			r.Delete("/{trackID}", a.handleTrackDelete)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if a.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		sqlDB, err := a.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]string{"status": status, "version": a.version})
}

func (a *API) handleAttributes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, attribute.All())
}

func (a *API) handleOperators(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"operators": filter.Operators,
		"logic":     []filter.Logic{filter.LogicAnd, filter.LogicOr},
	})
}

func (a *API) publish(eventType events.EventType, payload events.Payload) {
	if a.bus != nil {
		a.bus.Publish(eventType, payload)
	}
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

func decodeJSON(r *http.Request, dst any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errEmptyBody
	}
	return gojson.Unmarshal(body, dst)
}

var errEmptyBody = errors.New("empty request body")

// intQuery parses an optional integer query parameter.
func intQuery(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = gojson.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func writeErrorDetail(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}
