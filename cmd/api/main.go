package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angelmondragon/agencyhub-backend/api/routes"
	"github.com/angelmondragon/agencyhub-backend/internal/contracts"
	"github.com/angelmondragon/agencyhub-backend/internal/notifications"
	"github.com/angelmondragon/agencyhub-backend/pkg/config"
	"github.com/angelmondragon/agencyhub-backend/pkg/db"
	"github.com/angelmondragon/agencyhub-backend/pkg/instance"
	"github.com/angelmondragon/agencyhub-backend/pkg/logger"
	"github.com/angelmondragon/agencyhub-backend/pkg/metrics"
	"github.com/angelmondragon/agencyhub-backend/pkg/migrate"
	"github.com/angelmondragon/agencyhub-backend/pkg/outbox"
	"github.com/angelmondragon/agencyhub-backend/pkg/redis"
	"github.com/joho/godotenv"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	promRegistry := metrics.NewRegistry()

	contractsRepo := contracts.NewRepository(dbClient.DB())
	numbers, err := contracts.NewNumberGenerator(redisClient, contractsRepo, cfg.Contracts.NumberPrefix)
	if err != nil {
		logg.Error(context.Background(), "failed to create contract number generator", err)
		os.Exit(1)
	}

	contractsService, err := contracts.NewService(contracts.ServiceParams{
		Repository: contractsRepo,
		DB:         dbClient,
		Outbox:     outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Numbers:    numbers,
		Logger:     logg,
		Metrics:    metrics.NewContractMetrics(promRegistry),
		Config:     cfg.Contracts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create contracts service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.ID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			metrics.Handler(promRegistry),
			contractsService,
			notificationsService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}
