// Package rewards validates and records reward redemptions and lets
// customers claim a completed card.
package rewards

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/internal/ledger"
	"github.com/stampbook/stampbook-backend/internal/notifications"
	"github.com/stampbook/stampbook-backend/internal/stamps"
	"github.com/stampbook/stampbook-backend/pkg/config"
	"github.com/stampbook/stampbook-backend/pkg/db"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stampbook/stampbook-backend/pkg/logger"
	"github.com/stampbook/stampbook-backend/pkg/metrics"
	"github.com/stampbook/stampbook-backend/pkg/rewardcode"
	"gorm.io/gorm"
)

const defaultValidity = 24 * time.Hour

// Service redeems reward codes and manages the customer side of a grant.
type Service interface {
	Redeem(ctx context.Context, merchantID uuid.UUID, req RedeemRequest, meta stamps.RequestMeta) (*RedeemResult, error)
	Claim(ctx context.Context, customerID, customerCardID uuid.UUID) (*ClaimResult, error)
	ListGrants(ctx context.Context, customerID uuid.UUID) ([]GrantDTO, error)
	// ExpireStale flips earned grants past the validity window to expired.
	ExpireStale(ctx context.Context) (int64, error)
}

type cardLoader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.StampCard, error)
}

type identityResolver interface {
	IdentityIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type notifier interface {
	Notify(ctx context.Context, input notifications.NotifyInput) (*models.Notification, error)
}

// ServiceParams bundles the rewards dependencies.
type ServiceParams struct {
	TxRunner      db.TxRunner
	Repo          Repository
	Cards         cardLoader
	Customers     identityResolver
	Ledger        ledger.Service
	Notifications notifier
	Config        config.StampsConfig
	Metrics       *metrics.StampMetrics
	Logger        *logger.Logger
	Now           func() time.Time
}

type service struct {
	tx        db.TxRunner
	repo      Repository
	cards     cardLoader
	customers identityResolver
	ledger    ledger.Service
	notifier  notifier
	validity  time.Duration
	metrics   *metrics.StampMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// NewService validates dependencies and returns the rewards service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.TxRunner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "rewards repository required")
	case params.Cards == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "card loader required")
	case params.Customers == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "identity resolver required")
	case params.Ledger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ledger service required")
	}
	validity := params.Config.RewardValidity
	if validity <= 0 {
		validity = defaultValidity
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		tx:        params.TxRunner,
		repo:      params.Repo,
		cards:     params.Cards,
		customers: params.Customers,
		ledger:    params.Ledger,
		notifier:  params.Notifications,
		validity:  validity,
		metrics:   params.Metrics,
		logg:      logg,
		now:       now,
	}, nil
}

func (s *service) Redeem(ctx context.Context, merchantID uuid.UUID, req RedeemRequest, meta stamps.RequestMeta) (*RedeemResult, error) {
	if merchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "merchant identity required")
	}
	ctx = s.logg.WithMerchantID(ctx, merchantID.String())
	now := s.now()

	code, err := rewardcode.Normalize(req.RewardCode)
	if err != nil {
		return nil, s.reject(ctx, pkgerrors.New(pkgerrors.CodeValidation, "reward code must be 6 letters or digits"))
	}

	grant, err := s.repo.FindGrantByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, s.reject(ctx, pkgerrors.New(pkgerrors.CodeNotFound, "invalid reward code"))
		}
		return nil, s.reject(ctx, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reward grant"))
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"reward_grant_id": grant.ID.String(),
		"customer_id":     grant.CustomerID.String(),
	})

	if grant.State == enums.RewardGrantStateRedeemed {
		return nil, s.reject(ctx, pkgerrors.New(pkgerrors.CodeAlreadyUsed, "reward has already been redeemed"))
	}
	if grant.MerchantID != merchantID {
		return nil, s.reject(ctx, pkgerrors.New(pkgerrors.CodeForbidden, "reward code was issued by another merchant"))
	}
	if grant.State == enums.RewardGrantStateExpired {
		return nil, s.reject(ctx, pkgerrors.New(pkgerrors.CodeExpired, "reward code has expired"))
	}
	if now.Sub(grant.EarnedAt) > s.validity {
		if _, err := s.repo.MarkExpired(ctx, grant.ID, grant.Version, now); err != nil {
			s.logg.Error(ctx, "rewards.redeem.mark_expired_failed", err)
		}
		return nil, s.reject(ctx, pkgerrors.New(pkgerrors.CodeExpired, "reward code has expired"))
	}

	card, err := s.cards.Get(ctx, grant.CardID)
	if err != nil {
		return nil, s.reject(ctx, err)
	}

	var txn *models.StampTransaction
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		metadata := map[string]any{
			ledger.MetaEarnedTransactionID: grant.EarnedTransactionID.String(),
			ledger.MetaRewardGrantID:       grant.ID.String(),
		}
		meta.Annotate(metadata)
		var err error
		txn, err = s.ledger.Record(ctx, tx, ledger.RecordInput{
			CardID:       grant.CardID,
			CustomerID:   grant.CustomerID,
			CustomerKind: grant.CustomerKind,
			MerchantID:   grant.MerchantID,
			Type:         enums.TransactionTypeRedeem,
			RewardCode:   &code,
			Metadata:     metadata,
			Timestamp:    now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record redemption")
		}
		updated, err := s.repo.WithTx(tx).MarkRedeemed(ctx, grant.ID, grant.Version, txn.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark reward redeemed")
		}
		if updated == 0 {
			return pkgerrors.New(pkgerrors.CodeAlreadyUsed, "reward has already been redeemed")
		}
		return nil
	})
	if err != nil {
		return nil, s.reject(ctx, err)
	}

	s.metrics.RewardRedeemed()
	if s.notifier != nil && grant.CustomerKind == enums.CustomerKindUser {
		if _, err := s.notifier.Notify(ctx, notifications.NotifyInput{
			RecipientID: grant.CustomerID,
			Type:        enums.NotificationTypeRewardRedeemed,
			Message:     "Enjoy your " + card.Reward + "!",
			Link:        "/customer/rewards",
		}); err != nil {
			s.metrics.PostCommitFailure("notification")
			s.logg.Error(ctx, "rewards.redeem.notify_failed", err)
		}
	}
	s.logg.Info(s.logg.WithField(ctx, "transaction_id", txn.ID.String()), "rewards.redeemed")

	return &RedeemResult{
		Transaction: RedeemedTransactionDTO{
			TransactionDTO: *ledger.FromModel(txn),
			RedeemedAt:     txn.Timestamp,
		},
		Reward:       card.Reward,
		CustomerInfo: CustomerInfo{ID: grant.CustomerID},
	}, nil
}

func (s *service) reject(ctx context.Context, err error) error {
	kind := pkgerrors.KindOf(err)
	s.metrics.RedemptionRejected(string(kind))
	logCtx := s.logg.WithField(ctx, "error_type", string(kind))
	if kind == pkgerrors.KindInternal || kind == pkgerrors.KindDependency {
		s.logg.Error(logCtx, "rewards.redeem.failed", err)
	} else {
		s.logg.Warn(s.logg.WithField(logCtx, "reason", err.Error()), "rewards.redeem.rejected")
	}
	return err
}

func (s *service) Claim(ctx context.Context, customerID, customerCardID uuid.UUID) (*ClaimResult, error) {
	ids, err := s.customers.IdentityIDs(ctx, customerID)
	if err != nil {
		return nil, err
	}
	row, err := s.repo.FindCustomerCard(ctx, customerCardID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stamp card not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer card")
	}
	if !slices.Contains(ids, row.CustomerID) || row.Card == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stamp card not found")
	}
	if row.CurrentStamps < row.Card.TotalStamps {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "stamp card is not complete yet").
			WithDetails(map[string]any{"current_stamps": row.CurrentStamps, "total_stamps": row.Card.TotalStamps})
	}

	now := s.now()
	var grant *models.RewardGrant
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		grant, err = repo.FindUnclaimedGrant(ctx, row.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "no reward is waiting on this card")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reward grant")
		}
		reset, err := repo.ResetStamps(ctx, row.ID, row.CurrentStamps, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset stamp card")
		}
		if reset == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "stamp card changed, please retry")
		}
		if _, err := repo.MarkClaimed(ctx, grant.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark reward claimed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	row.CurrentStamps = 0
	row.UpdatedAt = now
	grant.ClaimedAt = &now
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"customer_card_id": row.ID.String(),
		"reward_grant_id":  grant.ID.String(),
	})
	s.logg.Info(logCtx, "rewards.claimed")

	return &ClaimResult{
		Grant:     s.grantDTO(grant, row.Card, now),
		StampCard: stamps.CustomerCardFromModel(row, row.Card),
	}, nil
}

func (s *service) ListGrants(ctx context.Context, customerID uuid.UUID) ([]GrantDTO, error) {
	ids, err := s.customers.IdentityIDs(ctx, customerID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListGrants(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reward grants")
	}

	now := s.now()
	loaded := map[uuid.UUID]*models.StampCard{}
	out := make([]GrantDTO, 0, len(rows))
	for i := range rows {
		card, ok := loaded[rows[i].CardID]
		if !ok {
			card, err = s.cards.Get(ctx, rows[i].CardID)
			if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return nil, err
			}
			loaded[rows[i].CardID] = card
		}
		out = append(out, s.grantDTO(&rows[i], card, now))
	}
	return out, nil
}

func (s *service) ExpireStale(ctx context.Context) (int64, error) {
	now := s.now()
	expired, err := s.repo.ExpireEarnedBefore(ctx, now.Add(-s.validity), now)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire reward grants")
	}
	return expired, nil
}

func (s *service) grantDTO(grant *models.RewardGrant, card *models.StampCard, now time.Time) GrantDTO {
	dto := GrantDTO{
		ID:         grant.ID,
		Code:       grant.Code,
		State:      grant.State,
		CardID:     grant.CardID,
		MerchantID: grant.MerchantID,
		EarnedAt:   grant.EarnedAt,
		ExpiresAt:  grant.EarnedAt.Add(s.validity),
		RedeemedAt: grant.RedeemedAt,
		ClaimedAt:  grant.ClaimedAt,
	}
	if dto.State == enums.RewardGrantStateEarned && now.After(dto.ExpiresAt) {
		dto.State = enums.RewardGrantStateExpired
	}
	if card != nil {
		dto.Reward = card.Reward
		dto.CardName = card.Name
	}
	return dto
}
