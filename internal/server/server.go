/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"github.com/friendsincode/heimdall_gate/internal/api"
	"github.com/friendsincode/heimdall_gate/internal/archive"
	"github.com/friendsincode/heimdall_gate/internal/audit"
	"github.com/friendsincode/heimdall_gate/internal/auth"
	"github.com/friendsincode/heimdall_gate/internal/cache"
	"github.com/friendsincode/heimdall_gate/internal/config"
	"github.com/friendsincode/heimdall_gate/internal/db"
	"github.com/friendsincode/heimdall_gate/internal/directory"
	"github.com/friendsincode/heimdall_gate/internal/eventbus"
	"github.com/friendsincode/heimdall_gate/internal/events"
	"github.com/friendsincode/heimdall_gate/internal/leadership"
	"github.com/friendsincode/heimdall_gate/internal/ratelimit"
	"github.com/friendsincode/heimdall_gate/internal/rotation"
	"github.com/friendsincode/heimdall_gate/internal/telemetry"
	"github.com/friendsincode/heimdall_gate/internal/version"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	db        *gorm.DB
	cache     *cache.Cache
	bus       events.PubSub
	cachedDir *directory.Cached
	limiter   *ratelimit.Limiter
	auditSvc  *audit.Service
	rotator   *rotation.Coordinator
	api       *api.API
	archiver  *archive.Exporter
	election  *leadership.Election

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(otelhttp.NewMiddleware("heimdall-gate-api"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(15 * time.Second))

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
	}

	if err := srv.initDependencies(); err != nil {
		srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", telemetry.Handler())
	srv.metricsServer = &http.Server{
		Addr:              cfg.MetricsBind,
		Handler:           metricsRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return srv, nil
}

// securityHeadersMiddleware sets response headers appropriate for an API that
// hands out plaintext credentials. no-store keeps rotation responses out of
// shared caches.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "no-referrer")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	nodeID := s.cfg.InstanceID
	if nodeID == "" {
		host, _ := os.Hostname()
		nodeID = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}

	// Event bus, cross-instance when configured
	switch s.cfg.EventBusBackend {
	case config.EventBusRedis:
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = s.cfg.RedisAddr
		redisCfg.Password = s.cfg.RedisPassword
		redisCfg.DB = s.cfg.RedisDB
		bus, err := eventbus.NewRedisBus(redisCfg, nodeID, s.logger)
		if err != nil {
			return fmt.Errorf("create redis event bus: %w", err)
		}
		s.bus = bus
		s.DeferClose(bus.Close)
	case config.EventBusNATS:
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		bus, err := eventbus.NewNATSBus(natsCfg, nodeID, s.logger)
		if err != nil {
			return fmt.Errorf("create nats event bus: %w", err)
		}
		s.bus = bus
		s.DeferClose(bus.Close)
	default:
		s.bus = events.NewBus()
	}

	// Credential directory with optional Redis cache in front
	store := directory.New(database)
	var dir auth.Directory = store

	if s.cfg.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		credCache, err := cache.New(cacheCfg, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
		} else {
			s.cache = credCache
			s.DeferClose(credCache.Close)
			s.cachedDir = directory.NewCached(store, credCache, s.bus, s.logger)
			dir = s.cachedDir
		}
	}

	authn, err := auth.NewAuthenticator(dir, s.logger)
	if err != nil {
		return fmt.Errorf("create authenticator: %w", err)
	}

	s.auditSvc = audit.NewService(database, s.logger)
	s.rotator = rotation.NewCoordinator(store, s.auditSvc, s.bus, s.cfg.TokenPrefix, s.logger)

	// Rate limiting: Redis counters shared across instances, memory fallback
	policies, err := ratelimit.LoadPolicies(s.cfg.RateLimitPolicyPath)
	if err != nil {
		return fmt.Errorf("load rate limit policies: %w", err)
	}

	var counters ratelimit.CounterStore
	if s.cfg.CacheEnabled {
		counters = ratelimit.NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPassword,
			DB:       s.cfg.RedisDB,
		}))
	} else {
		counters = ratelimit.NewMemoryStore()
	}
	s.limiter = ratelimit.NewLimiter(counters, s.cfg.RateLimitQuota, s.cfg.RateLimitWindow, policies, s.logger)

	s.api = api.New(authn, []byte(s.cfg.JWTSigningKey), s.rotator, s.auditSvc, s.limiter, s.logger)

	// Scheduled audit archival, leader-elected when Redis is available so
	// only one instance per fleet exports
	if s.cfg.ArchiveInterval > 0 {
		var sink archive.Sink
		if s.cfg.S3Bucket != "" {
			sink, err = archive.NewS3Sink(context.Background(), archive.S3Config{
				AccessKeyID:     s.cfg.S3AccessKeyID,
				SecretAccessKey: s.cfg.S3SecretAccessKey,
				Region:          s.cfg.S3Region,
				Bucket:          s.cfg.S3Bucket,
				Endpoint:        s.cfg.S3Endpoint,
				UsePathStyle:    s.cfg.S3UsePathStyle,
			}, s.logger)
		} else {
			sink, err = archive.NewFSSink(s.cfg.ArchiveDir)
		}
		if err != nil {
			return fmt.Errorf("create archive sink: %w", err)
		}
		s.archiver = archive.NewExporter(s.auditSvc, sink, 4, s.logger)

		if s.cfg.CacheEnabled {
			election, err := leadership.NewElection(leadership.Config{
				RedisAddr:     s.cfg.RedisAddr,
				RedisPassword: s.cfg.RedisPassword,
				RedisDB:       s.cfg.RedisDB,
				InstanceID:    nodeID,
			}, s.logger)
			if err != nil {
				return fmt.Errorf("create leader election: %w", err)
			}
			s.election = election
			s.DeferClose(election.Stop)
		}
	}

	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer exposes the Prometheus scrape endpoint server.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Directory cache invalidation listener
	if s.cachedDir != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.cachedDir.Start(ctx)
		}()
	}

	// Expired window sweeper for the in-memory rate limit fallback
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.limiter.Sweep()
			}
		}
	}()

	// Scheduled audit archival; with an election only the leader exports
	if s.archiver != nil {
		if s.election != nil {
			s.election.Start(ctx)
		}
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			ticker := time.NewTicker(s.cfg.ArchiveInterval)
			defer ticker.Stop()
			since := time.Now().UTC()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if s.election != nil && !s.election.IsLeader() {
						continue
					}
					until := time.Now().UTC()
					n, err := s.archiver.Export(ctx, &since, &until)
					if err != nil {
						s.logger.Error().Err(err).Msg("scheduled audit export failed")
						continue
					}
					since = until
					if n > 0 {
						s.logger.Info().Int("events", n).Time("until", until).Msg("archived audit events")
					}
				}
			}
		}()
	}
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
		_, _ = fmt.Fprintf(w, `{"status":"ok","version":%q}`, version.Version)
	})

	s.api.Routes(s.router)
}
