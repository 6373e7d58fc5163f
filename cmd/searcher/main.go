// Command searcher runs the search service: a near-real-time index fed over
// HTTP or Kafka, the JSON query API with result and filter caching, and
// search analytics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/nrt"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/querylog"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search"
	searchcache "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search/cache"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/search/fieldcache"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/searcher/dsl"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/search-scoring-engine/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "data_dir", cfg.Index.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Profiling)
		defer shutdownMetrics(context.Background())
	}

	analyzer, err := analysis.ByName(cfg.Index.Analyzer)
	if err != nil {
		slog.Error("invalid analyzer", "error", err)
		os.Exit(1)
	}
	writer, err := index.OpenWriter(index.WriterConfig{
		DataDir:         cfg.Index.DataDir,
		Analyzer:        analyzer,
		MaxBufferedDocs: cfg.Index.MaxBufferedDocs,
		Metrics:         m,
	})
	if err != nil {
		slog.Error("failed to open index", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("closing index writer", "error", err)
		}
	}()

	searchCfg := search.DefaultConfig()
	searchCfg.MaxClauseCount = cfg.Search.MaxClauseCount
	searchCfg.Concurrency = cfg.Search.Concurrency
	searchCfg.FieldCache = fieldcache.New(m)
	searchCfg.Metrics = m
	manager, err := nrt.NewManager(writer, nrt.ConfigFactory(searchCfg), m)
	if err != nil {
		slog.Error("failed to open searcher manager", "error", err)
		os.Exit(1)
	}
	defer manager.Close()

	reopen, err := nrt.NewReopenLoop(writer, manager, cfg.Index.RefreshInterval, cfg.Index.MinStaleInterval, m)
	if err != nil {
		slog.Error("invalid reopen settings", "error", err)
		os.Exit(1)
	}
	reopen.Start(ctx)
	defer reopen.Close()

	commits := nrt.NewCommitLoop(writer, cfg.Index.CommitInterval)
	commits.Start(ctx)
	defer commits.Close()

	checker := health.NewChecker(5 * time.Second)
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		s, err := manager.Acquire()
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		defer manager.Release(s)
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d docs, searching generation %d", s.Reader().NumDocs(), reopen.SearchingGeneration()),
		}
	})

	filters := searchcache.NewRegistry(cfg.Search.MaxCachedFilters, m)
	parser := dsl.NewParser(analyzer, filters, cfg.Index.PrecisionStep).WithTuning(dsl.Tuning{
		AutoRewriteTermCount:  cfg.Search.AutoRewriteTermCount,
		AutoRewriteDocPercent: cfg.Search.AutoRewriteDocPercent,
		RandomAccessThreshold: cfg.Search.RandomAccessThreshold,
	})

	opts := handler.Options{Filters: filters}
	var resultCache executor.ResultCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, result caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			qc := cache.New(redisClient, cache.Config{
				TTL:          cfg.Redis.CacheTTL,
				StoreTimeout: cfg.Redis.OpTimeout,
				Breaker: resilience.CircuitBreakerConfig{
					FailureThreshold:    5,
					ResetTimeout:        10 * time.Second,
					HalfOpenMaxRequests: 1,
				},
			}, m)
			resultCache, opts.Results = qc, qc
			checker.Register("redis", health.Optional(health.PingCheck(redisClient.Ping)))
			slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	applier := ingest.NewApplier(writer, cfg.Index.PrecisionStep)
	var (
		docPublisher   ingest.Publisher
		eventPublisher analytics.Publisher
	)
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, true, applier.HandleMessage())
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("document consumer stopped", "error", err)
			}
		}()
		defer consumer.Close()

		docProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
		defer docProducer.Close()
		eventProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer eventProducer.Close()
		docPublisher, eventPublisher = docProducer, eventProducer
		slog.Info("kafka enabled",
			"documents_topic", cfg.Kafka.Topics.DocumentIngest,
			"events_topic", cfg.Kafka.Topics.AnalyticsEvents,
		)
	}

	aggregator := analytics.NewAggregator()
	collector := analytics.NewCollector(eventPublisher, aggregator, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
	collector.Start(ctx)
	defer collector.Close()
	opts.Tracker = collector

	var recent analytics.RecentSource
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, query log disabled", "error", err)
		} else {
			defer db.Close()
			store := querylog.NewStore(db)
			if err := store.Migrate(ctx); err != nil {
				slog.Warn("query log migration failed, query log disabled", "error", err)
			} else {
				qlog := querylog.NewWriter(store, cfg.Analytics.QueryLogBuffer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
				qlog.Start(ctx)
				defer qlog.Close()
				opts.QueryLog, recent = qlog, store
				checker.Register("postgres", health.Optional(health.PingCheck(db.Ping)))
			}
		}
	}

	exec := executor.New(manager, reopen, parser, resultCache, executor.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
	}, m)

	mux := http.NewServeMux()
	handler.New(exec, opts).Register(mux)
	mux.HandleFunc("POST /api/v1/documents", ingest.NewHandler(applier, docPublisher).Ingest)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator, recent).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var limiter *middleware.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow)
		defer limiter.Close()
	}

	var chain http.Handler = mux
	chain = middleware.RateLimit(limiter)(chain)
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.RequestID(chain)
	chain = middleware.Metrics(m)(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr, "query_types", dsl.QueryTypes())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}
