package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"smartpharma/internal/cache"
	"smartpharma/internal/config"
	"smartpharma/internal/httpapi"
	"smartpharma/internal/obs"
	"smartpharma/internal/recommendation"
	"smartpharma/internal/seed"
	"smartpharma/internal/service"
	"smartpharma/internal/store"
	"smartpharma/internal/store/memory"
	pgstore "smartpharma/internal/store/postgres"
	sqlitestore "smartpharma/internal/store/sqlite"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			obs.Logger.Error("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", "err", err)
			os.Exit(1)
		}
		repo = pg
		closers = append(closers, pg.Close)
		obs.Logger.Info("repository ready", "driver", "postgres")
	case cfg.SQLitePath != "":
		sq, err := sqlitestore.New(ctx, cfg.SQLitePath)
		if err != nil {
			obs.Logger.Error("sqlite unavailable and SQLITE_PATH is set; refusing to start with in-memory fallback", "err", err)
			os.Exit(1)
		}
		repo = sq
		closers = append(closers, sq.Close)
		obs.Logger.Info("repository ready", "driver", "sqlite", "path", cfg.SQLitePath)
	default:
		repo = memory.NewSeeded()
		obs.Logger.Info("repository ready", "driver", "memory")
	}

	// Database-backed stores start empty; the in-memory store seeds itself.
	if cfg.DatabaseURL != "" || cfg.SQLitePath != "" {
		if created, err := seed.EnsureSuppliers(ctx, repo); err != nil {
			obs.Logger.Warn("supplier seed failed", "err", err)
		} else if created > 0 {
			obs.Logger.Info("suppliers seeded", "created", created)
		}
	}
	if cfg.SeedPath != "" {
		created, err := seed.LoadMedicinesCSV(ctx, repo, cfg.SeedPath)
		if err != nil {
			obs.Logger.Error("medicine seed failed", "path", cfg.SeedPath, "err", err)
			os.Exit(1)
		}
		obs.Logger.Info("medicines seeded", "path", cfg.SeedPath, "created", created)
	}

	cacheStore := cache.RecommendationCache(cache.NoopRecommendationCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisRecommendationCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			obs.Logger.Warn("redis unavailable, using noop cache", "err", err)
		} else {
			cacheStore = redisCache
			closers = append(closers, redisCache.Close)
			obs.Logger.Info("cache ready", "driver", "redis")
		}
	}

	recommender := recommendation.NewEngine(repo, cacheStore, time.Duration(cfg.RecommendationTTLSeconds)*time.Second)
	svc := service.New(repo, recommender, cfg.LowStockThreshold, cfg.ExpiryWindowDays)
	api := httpapi.New(svc, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		obs.Logger.Info("pharmacy backend listening", "addr", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obs.Logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		obs.Logger.Error("shutdown error", "err", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			obs.Logger.Error("close error", "err", err)
		}
	}

	obs.Logger.Info("server stopped")
}
