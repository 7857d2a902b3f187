// Package main is the entry point for the Pokémon arena API server.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pokemon-arena/internal/auth"
	"pokemon-arena/internal/battle"
	"pokemon-arena/internal/catalog"
	"pokemon-arena/internal/config"
	"pokemon-arena/internal/pkg/cache"
	"pokemon-arena/internal/pkg/db"
	"pokemon-arena/internal/pkg/store"
	"pokemon-arena/internal/realtime"
	"pokemon-arena/internal/repository"
	"pokemon-arena/internal/server"
	"pokemon-arena/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// A missing .env is fine; the environment and config.yaml still apply.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to read .env file")
	}

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg.Log)

	log.Info().
		Str("storage", cfg.Storage.Driver).
		Str("presence", cfg.Presence.Driver).
		Bool("auth_enforced", cfg.Auth.Enforce).
		Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Record store
	var (
		recordStore store.Store
		dbPool      *db.Pool
	)
	opts := store.Options{TolerateCorrupt: cfg.Storage.TolerateCorrupt}
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		dbPool, err = db.NewPool(ctx, &cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer dbPool.Close()

		if err := db.Migrate(ctx, dbPool.Pool); err != nil {
			log.Fatal().Err(err).Msg("Failed to run database migrations")
		}
		recordStore = store.NewPostgresStore(dbPool.Pool, opts)
	default:
		recordStore, err = store.NewFileStore(cfg.Storage.DataDir, opts)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open data directory")
		}
	}
	defer recordStore.Close()

	// Presence
	var presence repository.PresenceRepository = repository.NewStorePresenceRepository(recordStore)
	if cfg.Presence.Driver == config.PresenceRedis {
		rdb, err := cache.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		presence = repository.NewRedisPresenceRepository(rdb.Client)
	}

	// Repositories
	userRepo := repository.NewUserRepository(recordStore)
	favoriteRepo := repository.NewFavoriteRepository(recordStore)
	historyRepo := repository.NewHistoryRepository(recordStore)
	leaderboardRepo := repository.NewLeaderboardRepository(recordStore)

	// Services
	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	hub := realtime.NewHub()
	pokemon := catalog.New(cfg.Catalog, nil)

	judges := battle.DefaultRegistry()
	for _, mode := range judges.Modes() {
		if j, ok := judges.Get(mode); ok {
			log.Info().
				Str("mode", mode).
				Str("rules", j.Description()).
				Msg("Battle judge registered")
		}
	}

	accountService := service.NewAccountService(
		userRepo,
		presence,
		tokens,
		hub,
		cfg.Auth.BcryptCost,
		cfg.Presence.IdleTimeout,
	)
	favoriteService := service.NewFavoriteService(userRepo, favoriteRepo)
	rankingService := service.NewRankingService(userRepo, historyRepo, leaderboardRepo)

	arenaService, err := service.NewArenaService(
		recordStore,
		userRepo,
		favoriteRepo,
		historyRepo,
		pokemon,
		accountService,
		judges,
		cfg.Arena,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create arena service")
	}

	deps := &server.Dependencies{
		Config:    cfg,
		Accounts:  accountService,
		Favorites: favoriteService,
		Ranking:   rankingService,
		Arena:     arenaService,
		Catalog:   pokemon,
		Tokens:    tokens,
		Hub:       hub,
	}
	if dbPool != nil {
		deps.HealthCheck = dbPool.HealthCheck
	}

	srv, err := server.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errChan:
		if err != nil {
			log.Error().Err(err).Msg("Server stopped unexpectedly")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}

// setupLogger applies the configured level and output format.
func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
