package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/tutorflow/internal/app"
	"github.com/Freeeeeet/tutorflow/internal/config"
	"github.com/Freeeeeet/tutorflow/internal/controller"
	"github.com/Freeeeeet/tutorflow/internal/httpapi"
	"github.com/Freeeeeet/tutorflow/internal/metrics"
	"github.com/Freeeeeet/tutorflow/internal/ratelimit"
	"github.com/Freeeeeet/tutorflow/internal/repository"
	"github.com/Freeeeeet/tutorflow/internal/repository/memstore"
	"github.com/Freeeeeet/tutorflow/internal/service"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Engine stopped with error", zap.Error(err))
	}
	logger.Info("Engine stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting tutorflow engine",
		zap.String("environment", cfg.Environment),
		zap.String("storage", cfg.StorageDriver),
		zap.Bool("telegram", cfg.TelegramToken != ""),
		zap.String("http_addr", cfg.HTTPAddr),
	)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = ratelimit.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			// без Redis команды не ограничиваются
			logger.Warn("Redis unavailable, rate limiting disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
		}
	}
	limiter := ratelimit.New(redisClient, cfg.CommandRateLimitPerMin, time.Minute, m, logger)

	audit := service.NewAuditTrail(store.AuditLogs(), m, logger)
	ledger := service.NewSessionLedger(store, service.NewEntitlementCounter(), audit, m, logger, service.LedgerConfig{
		LateRescheduleWindow: cfg.LateRescheduleWindow(),
		Clock:                time.Now,
	})
	engagement := service.NewEngagementService(store, ledger, audit, m, logger, service.EngagementConfig{
		PackageWindowDays: cfg.PackageWindowDays,
		Clock:             time.Now,
	})
	users := service.NewUserService(store.Users(), cfg.BootstrapRoles(), logger)

	// бот создаётся до запуска горутин
	var botController *controller.BotController
	if cfg.TelegramToken != "" {
		b, err := bot.New(cfg.TelegramToken)
		if err != nil {
			return fmt.Errorf("create telegram bot: %w", err)
		}
		botController = controller.NewBotController(b, users, engagement, ledger, limiter, logger)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.NewScheduler(engagement, cfg.ExpirySweepInterval, logger).Run(ctx)
	})

	if cfg.HTTPAddr != "" {
		server := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           httpapi.NewServer(users, engagement, ledger, limiter, m, cfg.InternalAPIToken, logger).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if botController != nil {
		if err := botController.RegisterHandlers(ctx); err != nil {
			// меню команд не критично для работы
			logger.Warn("Failed to register bot commands", zap.Error(err))
		}
		g.Go(func() error {
			return botController.Start(ctx)
		})
	}

	return g.Wait()
}

// openStore выбирает хранилище по STORAGE_DRIVER
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, func(), error) {
	if cfg.StorageDriver == config.StorageMemory {
		logger.Warn("Using in-memory storage, data is lost on restart")
		return memstore.New(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("Database connected")

	if cfg.MigrationsEnabled {
		migrator, err := app.NewMigrator(pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		defer migrator.Close()
		if err := migrator.Run(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}

	return repository.NewPgStore(pool), pool.Close, nil
}
