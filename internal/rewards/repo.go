package rewards

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	"gorm.io/gorm"
)

// Repository persists reward grant transitions and the card reset on claim.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindGrantByCode(ctx context.Context, code string) (*models.RewardGrant, error)
	// MarkRedeemed moves an earned grant at version to redeemed. Zero rows
	// means the grant changed underneath the caller.
	MarkRedeemed(ctx context.Context, id uuid.UUID, version int, transactionID uuid.UUID, at time.Time) (int64, error)
	MarkExpired(ctx context.Context, id uuid.UUID, version int, at time.Time) (int64, error)
	ExpireEarnedBefore(ctx context.Context, cutoff, at time.Time) (int64, error)
	ListGrants(ctx context.Context, customerIDs []uuid.UUID) ([]models.RewardGrant, error)
	FindUnclaimedGrant(ctx context.Context, customerCardID uuid.UUID) (*models.RewardGrant, error)
	MarkClaimed(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	FindCustomerCard(ctx context.Context, id uuid.UUID) (*models.CustomerStampCard, error)
	ResetStamps(ctx context.Context, id uuid.UUID, expected int, at time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a rewards repository to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindGrantByCode(ctx context.Context, code string) (*models.RewardGrant, error) {
	var grant models.RewardGrant
	if err := r.db.WithContext(ctx).First(&grant, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &grant, nil
}

func (r *repository) MarkRedeemed(ctx context.Context, id uuid.UUID, version int, transactionID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RewardGrant{}).
		Where("id = ? AND version = ? AND state = ?", id, version, enums.RewardGrantStateEarned).
		Updates(map[string]any{
			"state":                   enums.RewardGrantStateRedeemed,
			"redeemed_transaction_id": transactionID,
			"redeemed_at":             at.UTC(),
			"version":                 gorm.Expr("version + 1"),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) MarkExpired(ctx context.Context, id uuid.UUID, version int, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RewardGrant{}).
		Where("id = ? AND version = ? AND state = ?", id, version, enums.RewardGrantStateEarned).
		Updates(map[string]any{
			"state":      enums.RewardGrantStateExpired,
			"expired_at": at.UTC(),
			"version":    gorm.Expr("version + 1"),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ExpireEarnedBefore(ctx context.Context, cutoff, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RewardGrant{}).
		Where("state = ? AND earned_at < ?", enums.RewardGrantStateEarned, cutoff.UTC()).
		Updates(map[string]any{
			"state":      enums.RewardGrantStateExpired,
			"expired_at": at.UTC(),
			"version":    gorm.Expr("version + 1"),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListGrants(ctx context.Context, customerIDs []uuid.UUID) ([]models.RewardGrant, error) {
	var rows []models.RewardGrant
	if len(customerIDs) == 0 {
		return rows, nil
	}
	if err := r.db.WithContext(ctx).
		Where("customer_id IN ?", customerIDs).
		Order("earned_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindUnclaimedGrant(ctx context.Context, customerCardID uuid.UUID) (*models.RewardGrant, error) {
	var grant models.RewardGrant
	if err := r.db.WithContext(ctx).
		Where("customer_stamp_card_id = ? AND claimed_at IS NULL", customerCardID).
		Order("earned_at DESC, id DESC").
		First(&grant).Error; err != nil {
		return nil, err
	}
	return &grant, nil
}

func (r *repository) MarkClaimed(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RewardGrant{}).
		Where("id = ? AND claimed_at IS NULL", id).
		Update("claimed_at", at.UTC())
	return res.RowsAffected, res.Error
}

func (r *repository) FindCustomerCard(ctx context.Context, id uuid.UUID) (*models.CustomerStampCard, error) {
	var row models.CustomerStampCard
	if err := r.db.WithContext(ctx).
		Preload("Card").
		First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) ResetStamps(ctx context.Context, id uuid.UUID, expected int, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CustomerStampCard{}).
		Where("id = ? AND current_stamps = ?", id, expected).
		Updates(map[string]any{
			"current_stamps": 0,
			"updated_at":     at.UTC(),
		})
	return res.RowsAffected, res.Error
}
