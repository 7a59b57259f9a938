package main

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/tradeapp/exchange-core/internal/adapter/cache"
	"github.com/tradeapp/exchange-core/internal/adapter/pg"
	"github.com/tradeapp/exchange-core/internal/adapter/publish"
	"github.com/tradeapp/exchange-core/internal/api/http"
	"github.com/tradeapp/exchange-core/internal/config"
	"github.com/tradeapp/exchange-core/internal/core"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	dbpool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("failed to connect to Postgres", zap.Error(err))
	}
	defer dbpool.Close()

	repo := pg.NewRepository(dbpool)

	quoteCache := cache.NewRedisCache(cfg.RedisAddr, "", cfg.RedisDB, cfg.QuoteTTL)
	publisher := publish.NewRedisPublisher(redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	}))

	engine := core.NewEngine(repo, quoteCache, publisher, logger)

	server := http.NewHTTPServer(engine, cfg.RateLimit)
	logger.Info("starting HTTP server", zap.String("addr", cfg.HTTPAddr))
	if err := server.Run(cfg.HTTPAddr); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}
