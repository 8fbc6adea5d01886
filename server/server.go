// Package server assembles the HTTP server and background runners.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/soulmap/internal/profile"
	"github.com/hrygo/soulmap/plugin/ai"
	aigraph "github.com/hrygo/soulmap/plugin/ai/graph"
	"github.com/hrygo/soulmap/server/internal/observability"
	"github.com/hrygo/soulmap/server/middleware"
	apiv1 "github.com/hrygo/soulmap/server/router/api/v1"
	"github.com/hrygo/soulmap/server/router/feed"
	"github.com/hrygo/soulmap/server/runner/embedding"
	"github.com/hrygo/soulmap/server/service/graph"
	"github.com/hrygo/soulmap/server/service/journal"
	"github.com/hrygo/soulmap/store"
	"github.com/hrygo/soulmap/store/cache"
)

const summaryTimeout = 30 * time.Second

// AIServices are the external AI collaborators. A nil LLM disables graph
// enrichment and summaries; a nil Embedder makes finish and search unavailable.
type AIServices struct {
	Embedder ai.EmbeddingService
	LLM      ai.LLMService
}

// NewAIServices builds the AI clients configured by the profile. The LLM is
// wrapped in a circuit breaker.
func NewAIServices(p *profile.Profile) (*AIServices, error) {
	if !p.IsAIEnabled() {
		return &AIServices{}, nil
	}
	cfg := ai.NewConfigFromProfile(p)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid AI configuration")
	}

	embedder, err := ai.NewEmbeddingService(&cfg.Embedding)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create embedding service")
	}
	llm, err := ai.NewLLMService(&cfg.LLM)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create LLM service")
	}
	return &AIServices{
		Embedder: embedder,
		LLM:      ai.NewBreakerLLMService(llm, ai.DefaultBreakerConfig("llm")),
	}, nil
}

// NewLogger returns the process logger for the profile's mode.
func NewLogger(p *profile.Profile, w io.Writer) *slog.Logger {
	return observability.NewLogger(p.Mode, w)
}

type Server struct {
	Profile *profile.Profile
	Store   *store.Store
	Metrics *observability.Metrics

	echoServer        *echo.Echo
	embedder          ai.EmbeddingService
	runnerCancelFuncs []context.CancelFunc
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store, services *AIServices) (*Server, error) {
	if services == nil {
		services = &AIServices{}
	}
	s := &Server{
		Profile:  profile,
		Store:    store,
		Metrics:  observability.NewMetrics("soulmap"),
		embedder: services.Embedder,
	}

	if profile.CacheRedisAddr != "" {
		redisCfg := cache.DefaultRedisConfig()
		redisCfg.Addr = profile.CacheRedisAddr
		redisCfg.Password = profile.CacheRedisPassword
		redisCfg.DB = profile.CacheRedisDB
		if profile.CacheRedisPrefix != "" {
			redisCfg.KeyPrefix = profile.CacheRedisPrefix
		}
		redisCache, err := cache.NewRedis(ctx, redisCfg)
		if err != nil {
			// Serving from the in-process cache only is fine for a single instance.
			slog.Warn("redis cache unavailable, using memory cache only", "addr", redisCfg.Addr, "error", err)
		} else {
			store.SetCache(cache.NewTiered(cache.NewLRU(cache.DefaultLRUConfig()), redisCache, time.Minute))
		}
	}

	journalCfg := journal.Config{
		Store:         store,
		Embedder:      services.Embedder,
		Metrics:       s.Metrics,
		DefaultUserID: profile.DefaultUserID,
	}
	if services.LLM != nil {
		extractorCfg := aigraph.DefaultExtractorConfig()
		if profile.GraphMaxConcurrentMerges > 0 {
			extractorCfg.MaxConcurrent = int64(profile.GraphMaxConcurrentMerges)
		}
		journalCfg.Extractor = aigraph.NewExtractor(services.LLM, extractorCfg)
		journalCfg.Summarizer = journal.NewSummarizer(services.LLM, summaryTimeout)
	} else {
		slog.Warn("no LLM configured, journal entries will not be enriched")
	}
	journalService := journal.NewService(journalCfg)
	graphService := graph.NewService(store, s.Metrics)

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomiddleware.Recover())
	echoServer.Use(middleware.RequestContext(slog.Default(), s.Metrics))
	s.echoServer = echoServer

	echoServer.GET("/healthz", func(c echo.Context) error {
		if err := store.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": profile.Version})
	})
	echoServer.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))

	apiv1.NewAPIV1Service(profile, journalService, graphService).RegisterRoutes(echoServer)
	feed.NewFeedService(profile, journalService).RegisterRoutes(echoServer)

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Start begins listening and launches the background runners. It returns once
// the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", address)
	}
	s.echoServer.Listener = listener

	s.StartBackgroundRunners(ctx)

	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	slog.Info("server listening", "address", listener.Addr().String())
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")

	for _, cancelFunc := range s.runnerCancelFuncs {
		cancelFunc()
	}

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}

	slog.Info("soulmap stopped properly")
}

func (s *Server) StartBackgroundRunners(ctx context.Context) {
	if s.embedder == nil {
		return
	}
	runnerCtx, cancel := context.WithCancel(ctx)
	s.runnerCancelFuncs = append(s.runnerCancelFuncs, cancel)

	runner := embedding.NewRunner(s.Store, s.embedder, s.Profile.EmbeddingBackfillInterval, s.Metrics)
	go runner.Run(runnerCtx)
	slog.Info("embedding backfill runner started", "interval", s.Profile.EmbeddingBackfillInterval)
}
