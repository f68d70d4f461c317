package qrcodes

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/internal/cards"
	"github.com/stampbook/stampbook-backend/pkg/config"
	"github.com/stampbook/stampbook-backend/pkg/db/dbtest"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stampbook/stampbook-backend/pkg/qrpayload"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc      Service
	repo     Repository
	cards    cards.Service
	merchant uuid.UUID
	card     *models.StampCard
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	cardSvc, err := cards.NewService(cards.NewRepository(client.DB()), nil)
	require.NoError(t, err)

	f := &fixture{
		repo:     NewRepository(client.DB()),
		cards:    cardSvc,
		merchant: uuid.New(),
		now:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc, err = NewService(ServiceParams{
		Repo:   f.repo,
		Cards:  cardSvc,
		Config: config.StampsConfig{MinQRExpiryHours: 1, MaxQRExpiryHours: 72},
		Now:    func() time.Time { return f.now },
	})
	require.NoError(t, err)

	f.card, err = cardSvc.Create(context.Background(), f.merchant, cards.CreateCardInput{Name: "Coffee", Reward: "Free Coffee", TotalStamps: 5})
	require.NoError(t, err)
	return f
}

func TestIssueBuildsPayloadAndRow(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Issue(context.Background(), f.merchant, IssueInput{CardID: f.card.ID, ExpiresInHours: 2, IsSingleUse: true})
	require.NoError(t, err)
	require.Equal(t, f.now.Add(2*time.Hour), result.QRCode.ExpiresAt)
	require.True(t, result.QRCode.IsSingleUse)
	require.Equal(t, enums.SecurityLevelStandard, result.QRCode.SecurityLevel)
	require.Len(t, result.QRCode.Code, 22)

	payload, err := qrpayload.Parse(result.QRValue)
	require.NoError(t, err)
	require.Equal(t, result.QRCode.Code, payload.Code)
	require.Equal(t, f.card.ID.String(), payload.CardID)
	require.Equal(t, f.merchant.String(), payload.MerchantID)
	require.Equal(t, f.now.UnixMilli(), payload.Timestamp)

	stored, err := f.repo.FindByCode(context.Background(), result.QRCode.Code)
	require.NoError(t, err)
	require.Equal(t, result.QRCode.ID, stored.ID)
}

func TestIssueHighSecurityForcesSingleUse(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Issue(context.Background(), f.merchant, IssueInput{CardID: f.card.ID, ExpiresInHours: 1, SecurityLevel: "HIGH"})
	require.NoError(t, err)
	require.True(t, result.QRCode.IsSingleUse)
	require.Len(t, result.QRCode.Code, 43)
}

func TestIssueRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, hours := range []int{0, 73, -5} {
		_, err := f.svc.Issue(ctx, f.merchant, IssueInput{CardID: f.card.ID, ExpiresInHours: hours})
		require.Truef(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "hours=%d err=%v", hours, err)
	}
	for _, hours := range []int{1, 72} {
		_, err := f.svc.Issue(ctx, f.merchant, IssueInput{CardID: f.card.ID, ExpiresInHours: hours})
		require.NoErrorf(t, err, "hours=%d", hours)
	}

	_, err := f.svc.Issue(ctx, f.merchant, IssueInput{CardID: f.card.ID, ExpiresInHours: 1, SecurityLevel: "paranoid"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Issue(ctx, uuid.New(), IssueInput{CardID: f.card.ID, ExpiresInHours: 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Issue(ctx, f.merchant, IssueInput{CardID: uuid.New(), ExpiresInHours: 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.cards.SetActive(ctx, f.merchant, f.card.ID, false)
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, f.merchant, IssueInput{CardID: f.card.ID, ExpiresInHours: 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRefreshPayloadAndRender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Issue(ctx, f.merchant, IssueInput{CardID: f.card.ID, ExpiresInHours: 1, IsSingleUse: true})
	require.NoError(t, err)

	f.now = f.now.Add(30 * time.Minute)
	refreshed, err := f.svc.RefreshPayload(ctx, f.merchant, issued.QRCode.ID)
	require.NoError(t, err)
	payload, err := qrpayload.Parse(refreshed.QRValue)
	require.NoError(t, err)
	require.Equal(t, f.now.UnixMilli(), payload.Timestamp)

	png, err := f.svc.Render(ctx, f.merchant, issued.QRCode.ID, 0)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = f.svc.RefreshPayload(ctx, uuid.New(), issued.QRCode.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	rows, err := f.repo.Consume(ctx, issued.QRCode.ID, f.now)
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)
	_, err = f.svc.RefreshPayload(ctx, f.merchant, issued.QRCode.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyUsed))

	f.now = f.now.Add(2 * time.Hour)
	_, err = f.svc.RefreshPayload(ctx, f.merchant, issued.QRCode.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeExpired))
}

func TestListActiveAndRetention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	short, err := f.svc.Issue(ctx, f.merchant, IssueInput{CardID: f.card.ID, ExpiresInHours: 1})
	require.NoError(t, err)
	long, err := f.svc.Issue(ctx, f.merchant, IssueInput{CardID: f.card.ID, ExpiresInHours: 48})
	require.NoError(t, err)
	used, err := f.svc.Issue(ctx, f.merchant, IssueInput{CardID: f.card.ID, ExpiresInHours: 48, IsSingleUse: true})
	require.NoError(t, err)
	_, err = f.repo.Consume(ctx, used.QRCode.ID, f.now)
	require.NoError(t, err)

	active, err := f.svc.ListActive(ctx, f.merchant, &f.card.ID)
	require.NoError(t, err)
	require.Len(t, active, 2)

	f.now = f.now.Add(3 * time.Hour)
	active, err = f.svc.ListActive(ctx, f.merchant, nil)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, long.QRCode.ID, active[0].ID)

	deleted, err := f.repo.DeleteExpiredBefore(ctx, f.now)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
	_, err = f.repo.FindByID(ctx, short.QRCode.ID)
	require.Error(t, err)

	again, err := f.repo.Consume(ctx, used.QRCode.ID, f.now)
	require.NoError(t, err)
	require.Zero(t, again)
}
