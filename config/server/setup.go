package server

import (
	"CatalogAuth/config"
	"CatalogAuth/internal"
	"CatalogAuth/internal/logging"
	"CatalogAuth/internal/migrations"
	"CatalogAuth/internal/ports"
	"CatalogAuth/internal/repository"
	"context"
	"fmt"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"net/http"
	"time"
)

const readyAttempts = 8

// SetupDatabase opens the pool, waits until postgres answers and applies
// migrations.
func SetupDatabase(ctx context.Context, cfg config.DatabaseConfig) (*internal.Database, error) {
	database, err := internal.NewDatabaseConnection(cfg.Driver, cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения: %w", err)
	}

	if err := database.WaitReady(ctx, readyAttempts); err != nil {
		_ = database.Close()
		return nil, err
	}
	if err := migrations.Up(ctx, database.DB.DB); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ошибка применения миграций: %w", err)
	}
	return database, nil
}

// SetupRecordStore builds the configured refresh record store. The returned
// close func releases its connections; ctx bounds background sweeping.
func SetupRecordStore(ctx context.Context, cfg *config.Config, log logging.Logger) (ports.RefreshRecordStore, func() error, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		database, err := SetupDatabase(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		store := repository.NewRefreshRepository(database)
		go repository.RunSweeper(ctx, store, cfg.Store.SweepInterval, log)
		return store, database.Close, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := repository.NewRedisRepository(client, cfg.Redis.KeyPrefix)
		if err := store.WaitReady(ctx, readyAttempts); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis недоступен: %w", err)
		}
		return store, client.Close, nil

	case config.BackendMemory:
		log.Warn(ctx, "refresh records are kept in memory and will not survive a restart")
		return repository.NewMemoryRepository(), func() error { return nil }, nil
	}

	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func SetupServer(cfg config.ServerConfig) (*http.Server, *chi.Mux) {
	router := chi.NewRouter()
	server := &http.Server{
		Addr:              cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server, router
}
