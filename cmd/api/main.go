package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stampbook/stampbook-backend/api/routes"
	"github.com/stampbook/stampbook-backend/internal/auth"
	"github.com/stampbook/stampbook-backend/internal/cards"
	"github.com/stampbook/stampbook-backend/internal/customers"
	"github.com/stampbook/stampbook-backend/internal/ledger"
	"github.com/stampbook/stampbook-backend/internal/notifications"
	"github.com/stampbook/stampbook-backend/internal/qrcodes"
	"github.com/stampbook/stampbook-backend/internal/ratelimit"
	"github.com/stampbook/stampbook-backend/internal/rewards"
	"github.com/stampbook/stampbook-backend/internal/stamps"
	"github.com/stampbook/stampbook-backend/internal/users"
	"github.com/stampbook/stampbook-backend/pkg/config"
	"github.com/stampbook/stampbook-backend/pkg/db"
	"github.com/stampbook/stampbook-backend/pkg/instance"
	"github.com/stampbook/stampbook-backend/pkg/logger"
	"github.com/stampbook/stampbook-backend/pkg/metrics"
	"github.com/stampbook/stampbook-backend/pkg/migrate"
	"github.com/stampbook/stampbook-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(context.Background(), logg, "database", err)
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
	requireResource(context.Background(), logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stampMetrics := metrics.NewStampMetrics(prometheus.DefaultRegisterer)
	conn := dbClient.DB()

	userRepo := users.NewRepository(conn)
	ledgerRepo := ledger.NewRepository(conn)
	qrRepo := qrcodes.NewRepository(conn)

	customersService, err := customers.NewService(customers.ServiceParams{
		Repo:   customers.NewRepository(conn),
		Logger: logg,
	})
	requireResource(context.Background(), logg, "customers service", err)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:  userRepo,
		JWTConfig: cfg.JWT,
	})
	requireResource(context.Background(), logg, "auth service", err)

	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		TxRunner:        dbClient,
		UserRepoFactory: auth.UsersRepoFactory(userRepo),
		PendingMerger:   customersService,
		PasswordConfig:  cfg.Password,
		JWTConfig:       cfg.JWT,
		Logger:          logg,
	})
	requireResource(context.Background(), logg, "register service", err)

	cardsService, err := cards.NewService(cards.NewRepository(conn), logg)
	requireResource(context.Background(), logg, "cards service", err)

	qrService, err := qrcodes.NewService(qrcodes.ServiceParams{
		Repo:    qrRepo,
		Cards:   cardsService,
		Config:  cfg.Stamps,
		Metrics: stampMetrics,
		Logger:  logg,
	})
	requireResource(context.Background(), logg, "qr code service", err)

	ledgerService, err := ledger.NewService(ledgerRepo)
	requireResource(context.Background(), logg, "ledger service", err)

	notificationsService, err := notifications.NewService(notifications.NewRepository(conn))
	requireResource(context.Background(), logg, "notifications service", err)

	limiter, err := ratelimit.New(cfg.Stamps, ledgerRepo, redisClient)
	requireResource(context.Background(), logg, "stamp rate limiter", err)

	stampsService, err := stamps.NewService(stamps.ServiceParams{
		TxRunner:      dbClient,
		Repo:          stamps.NewRepository(conn),
		QRCodes:       qrRepo,
		Cards:         cardsService,
		Customers:     customersService,
		Limiter:       limiter,
		Ledger:        ledgerService,
		Notifications: notificationsService,
		Config:        cfg.Stamps,
		Metrics:       stampMetrics,
		Logger:        logg,
	})
	requireResource(context.Background(), logg, "stamps service", err)

	rewardsService, err := rewards.NewService(rewards.ServiceParams{
		TxRunner:      dbClient,
		Repo:          rewards.NewRepository(conn),
		Cards:         cardsService,
		Customers:     customersService,
		Ledger:        ledgerService,
		Notifications: notificationsService,
		Config:        cfg.Stamps,
		Metrics:       stampMetrics,
		Logger:        logg,
	})
	requireResource(context.Background(), logg, "rewards service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			promhttp.Handler(),
			authService,
			registerService,
			cardsService,
			qrService,
			stampsService,
			rewardsService,
			notificationsService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("failed to bootstrap %s", resource), err)
	os.Exit(1)
}
