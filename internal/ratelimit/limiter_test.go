package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/internal/ledger"
	"github.com/stampbook/stampbook-backend/pkg/config"
	"github.com/stampbook/stampbook-backend/pkg/db/dbtest"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stretchr/testify/require"
)

var defaultLimits = Limits{Window: time.Hour, Merchant: 100, Pair: 20}

type fakeWindows struct {
	counts map[string]int64
}

func (f *fakeWindows) key(scope string, window time.Duration, now time.Time) string {
	return scope + "@" + now.UTC().Truncate(window).String()
}

func (f *fakeWindows) WindowCount(ctx context.Context, scope string, window time.Duration, now time.Time) (int64, error) {
	return f.counts[f.key(scope, window, now)], nil
}

func (f *fakeWindows) WindowIncr(ctx context.Context, scope string, window time.Duration, now time.Time) (int64, error) {
	k := f.key(scope, window, now)
	f.counts[k]++
	return f.counts[k], nil
}

func seedStamps(t *testing.T, repo ledger.Repository, merchantID, customerID uuid.UUID, n int, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, repo.Create(context.Background(), &models.StampTransaction{
			CardID:       uuid.New(),
			CustomerID:   customerID,
			CustomerKind: enums.CustomerKindUser,
			MerchantID:   merchantID,
			Type:         enums.TransactionTypeStamp,
			Count:        1,
			Timestamp:    at,
		}))
	}
}

func TestLedgerLimiterMerchantBoundary(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewRepository(dbtest.Open(t).DB())
	limiter := NewLedgerLimiter(repo, defaultLimits)

	merchant := uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// 99 rows spread over other customers so the pair limit never trips.
	for i := 0; i < 9; i++ {
		seedStamps(t, repo, merchant, uuid.New(), 11, now.Add(-30*time.Minute))
	}
	require.NoError(t, limiter.Check(ctx, merchant, uuid.New(), now), "100th issuance must pass")

	seedStamps(t, repo, merchant, uuid.New(), 1, now.Add(-time.Minute))
	err := limiter.Check(ctx, merchant, uuid.New(), now)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRateLimit), "101st issuance must be rate limited: %v", err)
	details := pkgerrors.As(err).Details().(map[string]any)
	require.Equal(t, string(ScopeMerchant), details["scope"])

	// the same rows fall out of the trailing window an hour later
	require.NoError(t, limiter.Check(ctx, merchant, uuid.New(), now.Add(45*time.Minute)))
}

func TestLedgerLimiterPairBoundary(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewRepository(dbtest.Open(t).DB())
	limiter := NewLedgerLimiter(repo, defaultLimits)

	merchant := uuid.New()
	customer := uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seedStamps(t, repo, merchant, customer, 19, now.Add(-10*time.Minute))
	require.NoError(t, limiter.Check(ctx, merchant, customer, now))

	seedStamps(t, repo, merchant, customer, 1, now.Add(-time.Minute))
	err := limiter.Check(ctx, merchant, customer, now)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRateLimit))
	require.Equal(t, string(ScopePair), pkgerrors.As(err).Details().(map[string]any)["scope"])

	require.NoError(t, limiter.Check(ctx, merchant, uuid.New(), now), "other customers are unaffected")
}

func TestRedisLimiterCountsAfterRecord(t *testing.T) {
	ctx := context.Background()
	windows := &fakeWindows{counts: map[string]int64{}}
	limiter := NewRedisLimiter(windows, Limits{Window: time.Hour, Merchant: 3, Pair: 2})

	merchant := uuid.New()
	customer := uuid.New()
	now := time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		require.NoError(t, limiter.Check(ctx, merchant, customer, now))
		require.NoError(t, limiter.Record(ctx, merchant, customer, now))
	}
	err := limiter.Check(ctx, merchant, customer, now)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRateLimit))
	details := pkgerrors.As(err).Details().(map[string]any)
	require.Equal(t, string(ScopePair), details["scope"])
	require.EqualValues(t, 3000, details["retry_after_seconds"])

	other := uuid.New()
	require.NoError(t, limiter.Check(ctx, merchant, other, now))
	require.NoError(t, limiter.Record(ctx, merchant, other, now))
	err = limiter.Check(ctx, merchant, uuid.New(), now)
	require.Equal(t, string(ScopeMerchant), pkgerrors.As(err).Details().(map[string]any)["scope"])

	require.NoError(t, limiter.Check(ctx, merchant, customer, now.Add(time.Hour)), "next bucket starts empty")
}

func TestNewSelectsStrategy(t *testing.T) {
	repo := ledger.NewRepository(dbtest.Open(t).DB())
	windows := &fakeWindows{counts: map[string]int64{}}

	l, err := New(config.StampsConfig{RateLimitStrategy: "ledger"}, repo, nil)
	require.NoError(t, err)
	require.IsType(t, &ledgerLimiter{}, l)

	r, err := New(config.StampsConfig{RateLimitStrategy: " Redis "}, nil, windows)
	require.NoError(t, err)
	require.IsType(t, &redisLimiter{}, r)

	_, err = New(config.StampsConfig{RateLimitStrategy: "redis"}, repo, nil)
	require.Error(t, err)

	_, err = New(config.StampsConfig{RateLimitStrategy: "sliding"}, repo, windows)
	require.Error(t, err)
}

func TestLimitsFromConfigDefaults(t *testing.T) {
	limits := LimitsFromConfig(config.StampsConfig{})
	require.Equal(t, defaultLimits, limits)
}
