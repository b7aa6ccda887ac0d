package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pravoline/allowdex/internal/config"
	dbRedis "github.com/pravoline/allowdex/internal/db/redis"
	"github.com/pravoline/allowdex/internal/domain"
	logpkg "github.com/pravoline/allowdex/internal/logger"
	"github.com/pravoline/allowdex/internal/metrics"
	"github.com/pravoline/allowdex/internal/reranker"
	catalogrepo "github.com/pravoline/allowdex/internal/repository/catalog"
	"github.com/pravoline/allowdex/internal/repository/embcache"
	embeddingrepo "github.com/pravoline/allowdex/internal/repository/embedding"
	chiTransport "github.com/pravoline/allowdex/internal/transport/chi"
	cataloguc "github.com/pravoline/allowdex/internal/usecase/catalog"
	healthuc "github.com/pravoline/allowdex/internal/usecase/health"
	indexuc "github.com/pravoline/allowdex/internal/usecase/index"
	searchuc "github.com/pravoline/allowdex/internal/usecase/search"
	"github.com/pravoline/allowdex/internal/vectorizer"
	"github.com/pravoline/allowdex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting allowdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("embedding_backend", cfg.Embedding.Backend),
		zap.String("metric", cfg.Search.Metric),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()

	// Build the vectorizer chain
	vec, err := buildVectorizer(cfg, store, logger)
	if err != nil {
		logger.Fatal("Failed to create vectorizer", zap.Error(err))
	}
	logger.Info("Vectorizer created",
		zap.String("backend", cfg.Embedding.Backend),
		zap.String("model", vec.ModelName()),
		zap.Int("dimension", vec.Dimension()),
	)

	if cfg.Embedding.WarmUp {
		if err := vec.WarmUp(ctx); err != nil {
			logger.Fatal("Model warm-up failed", zap.Error(err))
		}
		logger.Info("Model warmed up", zap.Int("dimension", vec.Dimension()))
	}

	metric, err := domain.ParseMetric(cfg.Search.Metric)
	if err != nil {
		logger.Fatal("Invalid similarity metric", zap.Error(err))
	}

	// Reranker is optional
	var rr domain.Reranker
	if cfg.Rerank.Enabled {
		client, err := reranker.New(reranker.Options{
			Endpoint:    cfg.Rerank.Endpoint,
			Model:       cfg.Rerank.Model,
			LoadTimeout: time.Duration(cfg.Rerank.LoadTimeoutSec) * time.Second,
			Logger:      logger,
		})
		if err != nil {
			logger.Fatal("Failed to create reranker", zap.Error(err))
		}
		rr = client
		logger.Info("Reranker enabled",
			zap.String("model", cfg.Rerank.Model),
			zap.Int("pool_size", cfg.Rerank.PoolSize),
			zap.Int("top_k", cfg.Rerank.TopK),
		)
	}

	// Repositories
	catalogRepo := catalogrepo.New(store, cfg.Storage.KeyPrefix)
	embRepo := embeddingrepo.New(store, cfg.Storage.KeyPrefix, metric)

	// Usecase services
	indexSvc := indexuc.New(catalogRepo, embRepo, vec, logger)
	catalogSvc := cataloguc.New(catalogRepo, indexSvc, logger)
	searchSvc := searchuc.New(embRepo, catalogRepo, indexSvc, vec, rr, searchuc.Options{
		Metric:       metric,
		MinScore:     cfg.Search.MinScore,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		RerankPool:   cfg.Rerank.PoolSize,
		RerankTopK:   cfg.Rerank.TopK,
	}, logger)
	healthSvc := healthuc.New(store, vec)

	server := chiTransport.NewServer(catalogSvc, searchSvc, indexSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)
	r.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildVectorizer assembles the vectorizer chain: backend -> cache decorator.
func buildVectorizer(cfg config.Config, store *dbRedis.Store, logger *zap.Logger) (domain.Vectorizer, error) {
	base, err := vectorizer.New(vectorizer.Options{
		Backend:     cfg.Embedding.Backend,
		APIKey:      cfg.Embedding.Provider.APIKey,
		BaseURL:     cfg.Embedding.Provider.BaseURL,
		Model:       cfg.Embedding.Model,
		Dimension:   cfg.Embedding.Dimension,
		LoadTimeout: time.Duration(cfg.Embedding.LoadTimeoutSec) * time.Second,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Embedding.Cache {
		return embcache.New(base, store, cfg.Storage.KeyPrefix, metrics.EmbeddingCacheTotal, logger), nil
	}
	return base, nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
