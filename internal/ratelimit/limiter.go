// Package ratelimit caps stamp issuance per merchant and per
// merchant/customer pair over a trailing window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/internal/ledger"
	"github.com/stampbook/stampbook-backend/pkg/config"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	pkgredis "github.com/stampbook/stampbook-backend/pkg/redis"
)

// Scope names which limit rejected a request.
type Scope string

const (
	ScopeMerchant Scope = "merchant"
	ScopePair     Scope = "merchant_customer"
)

// Limiter guards stamp issuance. Check runs before the write; Record runs
// after the write commits.
type Limiter interface {
	Check(ctx context.Context, merchantID, customerID uuid.UUID, now time.Time) error
	Record(ctx context.Context, merchantID, customerID uuid.UUID, now time.Time) error
}

// Limits are the thresholds shared by both strategies.
type Limits struct {
	Window   time.Duration
	Merchant int64
	Pair     int64
}

// LimitsFromConfig reads the stamp limits, falling back to 100/20 per hour.
func LimitsFromConfig(cfg config.StampsConfig) Limits {
	limits := Limits{
		Window:   cfg.RateLimitWindow,
		Merchant: int64(cfg.MerchantLimit),
		Pair:     int64(cfg.PairLimit),
	}
	if limits.Window <= 0 {
		limits.Window = time.Hour
	}
	if limits.Merchant <= 0 {
		limits.Merchant = 100
	}
	if limits.Pair <= 0 {
		limits.Pair = 20
	}
	return limits
}

// New picks the strategy named in cfg.
func New(cfg config.StampsConfig, counter ledgerCounter, windows pkgredis.WindowCounter) (Limiter, error) {
	limits := LimitsFromConfig(cfg)
	switch cfg.Strategy() {
	case config.RateLimitStrategyLedger, "":
		if counter == nil {
			return nil, fmt.Errorf("ledger counter required for ledger rate limiting")
		}
		return NewLedgerLimiter(counter, limits), nil
	case config.RateLimitStrategyRedis:
		if windows == nil {
			return nil, fmt.Errorf("redis window counter required for redis rate limiting")
		}
		return NewRedisLimiter(windows, limits), nil
	}
	return nil, fmt.Errorf("unsupported rate limit strategy %q", cfg.RateLimitStrategy)
}

type ledgerCounter interface {
	CountSince(ctx context.Context, filter ledger.CountFilter) (int64, error)
}

type ledgerLimiter struct {
	counter ledgerCounter
	limits  Limits
}

// NewLedgerLimiter counts stamp rows in the trailing window on every check.
func NewLedgerLimiter(counter ledgerCounter, limits Limits) Limiter {
	return &ledgerLimiter{counter: counter, limits: limits}
}

func (l *ledgerLimiter) Check(ctx context.Context, merchantID, customerID uuid.UUID, now time.Time) error {
	since := now.Add(-l.limits.Window)

	merchantCount, err := l.counter.CountSince(ctx, ledger.CountFilter{
		MerchantID: merchantID,
		Type:       enums.TransactionTypeStamp,
		Since:      since,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count merchant stamps")
	}
	if merchantCount >= l.limits.Merchant {
		return limitError(ScopeMerchant, l.limits.Merchant, l.limits.Window, 0)
	}

	pairCount, err := l.counter.CountSince(ctx, ledger.CountFilter{
		MerchantID: merchantID,
		CustomerID: &customerID,
		Type:       enums.TransactionTypeStamp,
		Since:      since,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count customer stamps")
	}
	if pairCount >= l.limits.Pair {
		return limitError(ScopePair, l.limits.Pair, l.limits.Window, 0)
	}
	return nil
}

// Record is a no-op: the ledger row is the counter.
func (l *ledgerLimiter) Record(context.Context, uuid.UUID, uuid.UUID, time.Time) error {
	return nil
}

type redisLimiter struct {
	windows pkgredis.WindowCounter
	limits  Limits
}

// NewRedisLimiter keeps one fixed-window counter per merchant and per pair.
// Concurrent requests can overshoot a limit by the number in flight because
// the counter is bumped after commit.
func NewRedisLimiter(windows pkgredis.WindowCounter, limits Limits) Limiter {
	return &redisLimiter{windows: windows, limits: limits}
}

func merchantScope(merchantID uuid.UUID) string {
	return "stamps:merchant:" + merchantID.String()
}

func pairScope(merchantID, customerID uuid.UUID) string {
	return "stamps:pair:" + merchantID.String() + ":" + customerID.String()
}

func (l *redisLimiter) Check(ctx context.Context, merchantID, customerID uuid.UUID, now time.Time) error {
	retryAfter := now.UTC().Truncate(l.limits.Window).Add(l.limits.Window).Sub(now)

	merchantCount, err := l.windows.WindowCount(ctx, merchantScope(merchantID), l.limits.Window, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read merchant window")
	}
	if merchantCount >= l.limits.Merchant {
		return limitError(ScopeMerchant, l.limits.Merchant, l.limits.Window, retryAfter)
	}

	pairCount, err := l.windows.WindowCount(ctx, pairScope(merchantID, customerID), l.limits.Window, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read customer window")
	}
	if pairCount >= l.limits.Pair {
		return limitError(ScopePair, l.limits.Pair, l.limits.Window, retryAfter)
	}
	return nil
}

func (l *redisLimiter) Record(ctx context.Context, merchantID, customerID uuid.UUID, now time.Time) error {
	if _, err := l.windows.WindowIncr(ctx, merchantScope(merchantID), l.limits.Window, now); err != nil {
		return err
	}
	_, err := l.windows.WindowIncr(ctx, pairScope(merchantID, customerID), l.limits.Window, now)
	return err
}

func limitError(scope Scope, limit int64, window, retryAfter time.Duration) error {
	msg := "merchant stamp limit reached, try again later"
	if scope == ScopePair {
		msg = "too many stamps for this customer, try again later"
	}
	details := map[string]any{
		"scope":          string(scope),
		"limit":          limit,
		"window_seconds": int64(window / time.Second),
	}
	if retryAfter > 0 {
		details["retry_after_seconds"] = int64(retryAfter.Round(time.Second) / time.Second)
	}
	return pkgerrors.New(pkgerrors.CodeRateLimit, msg).WithDetails(details)
}
