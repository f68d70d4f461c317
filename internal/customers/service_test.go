package customers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/db"
	"github.com/stampbook/stampbook-backend/pkg/db/dbtest"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (Service, *db.Client) {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(ServiceParams{Repo: NewRepository(client.DB())})
	require.NoError(t, err)
	return svc, client
}

func seedUser(t *testing.T, client *db.Client, email string) *models.User {
	t.Helper()
	user := &models.User{Email: email, PasswordHash: "h", DisplayName: "U", Role: enums.UserRoleCustomer}
	require.NoError(t, client.DB().Create(user).Error)
	return user
}

func savePending(t *testing.T, svc Service, email string) Customer {
	t.Helper()
	ctx := context.Background()
	resolved, err := svc.Resolve(ctx, Ref{Email: email})
	require.NoError(t, err)
	saved, err := svc.Save(ctx, nil, resolved)
	require.NoError(t, err)
	return saved
}

func TestResolveByEmailDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	svc, client := newTestService(t)

	first, err := svc.Resolve(ctx, Ref{Email: "New.Customer@Example.com"})
	require.NoError(t, err)
	require.Equal(t, enums.CustomerKindPending, first.Kind)
	require.Equal(t, "new.customer@example.com", first.Email)
	require.True(t, first.Unsaved())
	require.NotEqual(t, uuid.Nil, first.ID)

	var count int64
	require.NoError(t, client.DB().Model(&models.PendingCustomer{}).Count(&count).Error)
	require.Zero(t, count)

	saved, err := svc.Save(ctx, nil, first)
	require.NoError(t, err)
	require.Equal(t, first.ID, saved.ID)
	require.False(t, saved.Unsaved())

	second, err := svc.Resolve(ctx, Ref{Email: "new.customer@example.com "})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.False(t, second.Unsaved())

	require.NoError(t, client.DB().Model(&models.PendingCustomer{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSaveReturnsPendingStoredConcurrently(t *testing.T) {
	ctx := context.Background()
	svc, client := newTestService(t)

	a, err := svc.Resolve(ctx, Ref{Email: "race@example.com"})
	require.NoError(t, err)
	b, err := svc.Resolve(ctx, Ref{Email: "race@example.com"})
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)

	savedA, err := svc.Save(ctx, nil, a)
	require.NoError(t, err)
	savedB, err := svc.Save(ctx, nil, b)
	require.NoError(t, err)
	require.Equal(t, savedA.ID, savedB.ID)

	var count int64
	require.NoError(t, client.DB().Model(&models.PendingCustomer{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSaveRollsBackWithTransaction(t *testing.T) {
	ctx := context.Background()
	svc, client := newTestService(t)

	resolved, err := svc.Resolve(ctx, Ref{Email: "gone@example.com"})
	require.NoError(t, err)
	failed := errors.New("issuance failed")
	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := svc.Save(ctx, tx, resolved); err != nil {
			return err
		}
		return failed
	})
	require.ErrorIs(t, err, failed)

	var count int64
	require.NoError(t, client.DB().Model(&models.PendingCustomer{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestResolveRejectsMerchantAccounts(t *testing.T) {
	ctx := context.Background()
	svc, client := newTestService(t)
	merchant := &models.User{Email: "shop@example.com", PasswordHash: "h", DisplayName: "Shop", Role: enums.UserRoleMerchant}
	require.NoError(t, client.DB().Create(merchant).Error)

	_, err := svc.Resolve(ctx, Ref{ID: &merchant.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "got %v", err)

	_, err = svc.Resolve(ctx, Ref{Email: "SHOP@example.com"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "got %v", err)
}

func TestResolvePrefersRegisteredUser(t *testing.T) {
	ctx := context.Background()
	svc, client := newTestService(t)
	user := seedUser(t, client, "known@example.com")

	byEmail, err := svc.Resolve(ctx, Ref{Email: "KNOWN@example.com"})
	require.NoError(t, err)
	require.Equal(t, user.ID, byEmail.ID)
	require.Equal(t, enums.CustomerKindUser, byEmail.Kind)

	byID, err := svc.Resolve(ctx, Ref{ID: &user.ID, Email: "ignored@example.com"})
	require.NoError(t, err)
	require.Equal(t, user.ID, byID.ID)
}

func TestResolveErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Resolve(ctx, Ref{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Resolve(ctx, Ref{Email: "not-an-email"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	missing := uuid.New()
	_, err = svc.Resolve(ctx, Ref{ID: &missing})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMergePendingMovesCardsAndGrants(t *testing.T) {
	ctx := context.Background()
	svc, client := newTestService(t)

	pending := savePending(t, svc, "later@example.com")

	card := &models.StampCard{MerchantID: uuid.New(), Name: "Coffee", TotalStamps: 5, Reward: "Free Coffee", IsActive: true}
	require.NoError(t, client.DB().Create(card).Error)
	customerCard := &models.CustomerStampCard{CardID: card.ID, CustomerID: pending.ID, CustomerKind: enums.CustomerKindPending, CurrentStamps: 3}
	require.NoError(t, client.DB().Create(customerCard).Error)
	grant := &models.RewardGrant{
		Code: "ABC123", CardID: card.ID, CustomerStampCardID: customerCard.ID, CustomerID: pending.ID,
		CustomerKind: enums.CustomerKindPending, MerchantID: card.MerchantID, State: enums.RewardGrantStateEarned,
		EarnedTransactionID: uuid.New(), EarnedAt: time.Now().UTC(),
	}
	require.NoError(t, client.DB().Create(grant).Error)

	user := seedUser(t, client, "later@example.com")

	var result *MergeResult
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = svc.MergePending(ctx, tx, user.ID, "later@example.com")
		return err
	}))
	require.NotNil(t, result)
	require.Equal(t, pending.ID, result.PendingID)
	require.Equal(t, 1, result.CardsMoved)
	require.EqualValues(t, 1, result.GrantsMoved)

	var moved models.CustomerStampCard
	require.NoError(t, client.DB().First(&moved, "id = ?", customerCard.ID).Error)
	require.Equal(t, user.ID, moved.CustomerID)
	require.Equal(t, enums.CustomerKindUser, moved.CustomerKind)

	var reloaded models.RewardGrant
	require.NoError(t, client.DB().First(&reloaded, "id = ?", grant.ID).Error)
	require.Equal(t, user.ID, reloaded.CustomerID)

	ids, err := svc.IdentityIDs(ctx, user.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{user.ID, pending.ID}, ids)

	resolved, err := svc.Resolve(ctx, Ref{ID: &pending.ID})
	require.NoError(t, err)
	require.Equal(t, user.ID, resolved.ID)

	again, err := svc.MergePending(ctx, nil, user.ID, "later@example.com")
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestMergePendingCombinesAndCapsStamps(t *testing.T) {
	ctx := context.Background()
	svc, client := newTestService(t)

	pending := savePending(t, svc, "dup@example.com")
	user := seedUser(t, client, "dup@example.com")

	card := &models.StampCard{MerchantID: uuid.New(), Name: "Bagels", TotalStamps: 5, Reward: "Bagel", IsActive: true}
	require.NoError(t, client.DB().Create(card).Error)
	pendingCard := &models.CustomerStampCard{CardID: card.ID, CustomerID: pending.ID, CustomerKind: enums.CustomerKindPending, CurrentStamps: 4}
	userCard := &models.CustomerStampCard{CardID: card.ID, CustomerID: user.ID, CustomerKind: enums.CustomerKindUser, CurrentStamps: 3}
	require.NoError(t, client.DB().Create(pendingCard).Error)
	require.NoError(t, client.DB().Create(userCard).Error)

	result, err := svc.MergePending(ctx, nil, user.ID, "dup@example.com")
	require.NoError(t, err)
	require.Equal(t, 1, result.CardsCombined)

	var rows []models.CustomerStampCard
	require.NoError(t, client.DB().Where("card_id = ?", card.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, userCard.ID, rows[0].ID)
	require.Equal(t, 5, rows[0].CurrentStamps)
}
