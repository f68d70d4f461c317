package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stampbook/stampbook-backend/internal/cards"
	"github.com/stampbook/stampbook-backend/internal/cron"
	"github.com/stampbook/stampbook-backend/internal/customers"
	"github.com/stampbook/stampbook-backend/internal/ledger"
	"github.com/stampbook/stampbook-backend/internal/notifications"
	"github.com/stampbook/stampbook-backend/internal/qrcodes"
	"github.com/stampbook/stampbook-backend/internal/rewards"
	"github.com/stampbook/stampbook-backend/pkg/config"
	"github.com/stampbook/stampbook-backend/pkg/db"
	"github.com/stampbook/stampbook-backend/pkg/logger"
	"github.com/stampbook/stampbook-backend/pkg/metrics"
	"github.com/stampbook/stampbook-backend/pkg/migrate"
	"github.com/stampbook/stampbook-backend/pkg/redis"
)

const lockNameFormat = "cron-worker:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
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

	registry, err := buildJobs(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Cron.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	conn := dbClient.DB()

	cardsService, err := cards.NewService(cards.NewRepository(conn), logg)
	if err != nil {
		return nil, err
	}
	customersRepo := customers.NewRepository(conn)
	customersService, err := customers.NewService(customers.ServiceParams{Repo: customersRepo, Logger: logg})
	if err != nil {
		return nil, err
	}
	ledgerService, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	rewardsService, err := rewards.NewService(rewards.ServiceParams{
		TxRunner:  dbClient,
		Repo:      rewards.NewRepository(conn),
		Cards:     cardsService,
		Customers: customersService,
		Ledger:    ledgerService,
		Config:    cfg.Stamps,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}

	rewardExpiry, err := cron.NewRewardExpiryJob(cron.RewardExpiryJobParams{Logger: logg, Rewards: rewardsService})
	if err != nil {
		return nil, err
	}
	qrRetention, err := cron.NewQRRetentionJob(cron.QRRetentionJobParams{
		Logger:     logg,
		Repository: qrcodes.NewRepository(conn),
		Retention:  cfg.Stamps.QRRetention,
	})
	if err != nil {
		return nil, err
	}
	notificationCleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		Repository: notifications.NewRepository(conn),
	})
	if err != nil {
		return nil, err
	}
	pendingCustomers, err := cron.NewPendingCustomerJob(cron.PendingCustomerJobParams{
		Logger:     logg,
		Repository: customersRepo,
	})
	if err != nil {
		return nil, err
	}

	return cron.NewRegistry(rewardExpiry, qrRetention, notificationCleanup, pendingCustomers)
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockNameFormat, env)
}
