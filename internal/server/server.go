/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/slotsequencer/internal/api"
	"github.com/friendsincode/slotsequencer/internal/cache"
	"github.com/friendsincode/slotsequencer/internal/catalog"
	"github.com/friendsincode/slotsequencer/internal/config"
	"github.com/friendsincode/slotsequencer/internal/db"
	"github.com/friendsincode/slotsequencer/internal/eventbus"
	"github.com/friendsincode/slotsequencer/internal/generation"
	"github.com/friendsincode/slotsequencer/internal/logbuffer"
	"github.com/friendsincode/slotsequencer/internal/storage"
	"github.com/friendsincode/slotsequencer/internal/store"
	"github.com/friendsincode/slotsequencer/internal/telemetry"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	version       string
	logBuf        *logbuffer.Buffer
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	db        *gorm.DB
	cache     *cache.Cache
	bus       eventbus.Bus
	store     *store.Store
	catalog   *catalog.Repository
	generator *generation.Service
	archive   *storage.Archive
	tracing   *telemetry.Tracing
	api       *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New wires every dependency and starts the background workers. The caller
// owns the returned HTTP servers and must call Close.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, version string, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware)
	router.Use(telemetry.MetricsMiddleware)
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Generation streams manage their own deadlines.
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:     cfg,
		version: version,
		logBuf:  logBuf,
		logger:  logger,
		router:  router,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// Streams hold the connection open; handlers bound their own writes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.MetricsBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		srv.metricsServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger writes one structured line per request.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "http").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			ev := logger.Debug()
			if ww.Status() >= http.StatusInternalServerError {
				ev = logger.Warn()
			}
			ev.Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// newBus picks the event transport named in the config.
func newBus(cfg *config.Config, logger zerolog.Logger) (eventbus.Bus, error) {
	nodeID := eventbus.NodeID(cfg.InstanceID)
	switch cfg.EventBus {
	case config.BusRedis:
		rc := eventbus.DefaultRedisConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		return eventbus.NewRedisBus(rc, nodeID, logger), nil
	case config.BusNATS:
		nc := eventbus.DefaultNATSConfig()
		nc.URL = cfg.NATSURL
		return eventbus.NewNATSBus(nc, nodeID, logger)
	case config.BusMemory, "":
		return eventbus.NewMemory(), nil
	}
	return nil, fmt.Errorf("unsupported event bus %q", cfg.EventBus)
}

func (s *Server) initDependencies() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracing, err := telemetry.SetupTracing(ctx, s.cfg, s.version, s.logger)
	if err != nil {
		return err
	}
	s.tracing = tracing
	s.DeferClose(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.tracing.Shutdown(ctx)
	})

	bus, err := newBus(s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.bus = bus
	s.DeferClose(bus.Close)

	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database

	if s.cfg.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		cacheCfg.StrategyTTL = s.cfg.CacheTTL.Std()
		cacheCfg.CatalogTTL = s.cfg.CacheTTL.Std()
		s.cache = cache.New(cacheCfg, s.logger)
		s.DeferClose(s.cache.Close)
	} else {
		s.cache = cache.Disabled(s.logger)
	}

	objects, err := storage.New(ctx, s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("archive storage: %w", err)
	}
	s.archive = storage.NewArchive(objects, s.logger)

	s.store = store.New(database, bus, s.cache, s.logger)
	s.catalog = catalog.NewRepository(database, s.cache, s.logger)
	s.generator = generation.NewService(s.store, s.catalog, s.cache, bus, generation.Options{
		MaxLength:    s.cfg.MaxSequenceLength,
		PreviewLimit: s.cfg.PreviewLimit,
		Timeout:      s.cfg.GenerateTimeout.Std(),
	}, s.logger)
	s.api = api.New(database, s.store, s.catalog, s.generator, s.archive, bus, s.version, s.logger)
	s.api.SetWebSocketOrigins(s.cfg.WebSocketOrigins)
	if s.logBuf != nil {
		s.api.SetLogBuffer(s.logBuf)
	}
	return nil
}

// HTTPServer exposes the API server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer exposes the Prometheus listener, or nil when metrics share
// the API port.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// Close stops background work and releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		db.UpdateConnectionMetrics(s.db)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.logger.Info().Msg("cache invalidation listener started")
		s.generator.Listen(ctx)
		s.logger.Info().Msg("cache invalidation listener stopped")
	}()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if s.cfg.MetricsBind == "" {
		s.router.Handle("/metrics", telemetry.Handler())
	}

	s.api.Routes(s.router)
}
