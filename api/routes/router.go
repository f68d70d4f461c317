package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stampbook/stampbook-backend/api/controllers"
	authcontrollers "github.com/stampbook/stampbook-backend/api/controllers/auth"
	"github.com/stampbook/stampbook-backend/api/middleware"
	"github.com/stampbook/stampbook-backend/internal/auth"
	"github.com/stampbook/stampbook-backend/internal/cards"
	"github.com/stampbook/stampbook-backend/internal/notifications"
	"github.com/stampbook/stampbook-backend/internal/qrcodes"
	"github.com/stampbook/stampbook-backend/internal/rewards"
	"github.com/stampbook/stampbook-backend/internal/stamps"
	"github.com/stampbook/stampbook-backend/pkg/config"
	"github.com/stampbook/stampbook-backend/pkg/db"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	"github.com/stampbook/stampbook-backend/pkg/logger"
	"github.com/stampbook/stampbook-backend/pkg/redis"
)

type fixedWindowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	metricsHandler http.Handler,
	authService auth.Service,
	registerService auth.RegisterService,
	cardsService cards.Service,
	qrService qrcodes.Service,
	stampsService stamps.Service,
	rewardsService rewards.Service,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	// a nil *redis.Client must reach the middleware as a nil interface
	var (
		limiter    fixedWindowLimiter
		idemStore  redis.IdempotencyStore
		readyRedis controllers.Pinger
	)
	if redisClient != nil {
		limiter = redisClient
		idemStore = redisClient
		readyRedis = redisClient
	}
	var readyDB controllers.Pinger
	if dbP != nil {
		readyDB = dbP
	}

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    readyDB,
			"redis": readyRedis,
		}))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, limiter, logg)).Post("/login", authcontrollers.AuthLogin(authService, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, limiter, logg)).Post("/register", authcontrollers.AuthRegister(registerService, logg))
	})

	// Idempotency is attached per route so it sees the full route pattern.
	idempotent := middleware.Idempotency(idemStore, cfg.Idempotency.TTL, logg)

	r.Route("/api/v1/merchant", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.UserRoleMerchant, logg))

		r.With(idempotent).Post("/cards", controllers.MerchantCreateCard(cardsService, logg))
		r.Get("/cards", controllers.MerchantListCards(cardsService, logg))
		r.Patch("/cards/{cardId}", controllers.MerchantUpdateCard(cardsService, logg))

		r.With(idempotent).Post("/qr-codes", controllers.MerchantIssueQRCode(qrService, logg))
		r.Get("/qr-codes", controllers.MerchantListQRCodes(qrService, logg))
		r.Get("/qr-codes/{qrId}/payload", controllers.MerchantQRCodePayload(qrService, logg))
		r.Get("/qr-codes/{qrId}/image", controllers.MerchantQRCodeImage(qrService, logg))

		r.With(idempotent).Post("/stamps", controllers.MerchantIssueStamps(stampsService, logg))
		r.With(idempotent).Post("/rewards/redeem", controllers.MerchantRedeemReward(rewardsService, logg))
		r.Get("/transactions", controllers.MerchantTransactions(stampsService, logg))
	})

	r.Route("/api/v1/customer", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.UserRoleCustomer, logg))

		r.Get("/cards", controllers.CustomerCards(stampsService, logg))
		r.Get("/cards/{customerCardId}/transactions", controllers.CustomerCardTransactions(stampsService, logg))
		r.With(idempotent).Post("/cards/{customerCardId}/claim", controllers.CustomerClaimReward(rewardsService, logg))
		r.Get("/rewards", controllers.CustomerRewards(rewardsService, logg))
		r.Get("/notifications", controllers.ListNotifications(notificationsService, logg))
		r.Post("/notifications/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		r.Post("/notifications/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
	})

	return r
}
