package cards

import (
	"context"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository persists stamp card definitions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, card *models.StampCard) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.StampCard, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]models.StampCard, error)
	Update(ctx context.Context, merchantID, id uuid.UUID, updates map[string]any) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a cards repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, card *models.StampCard) error {
	return r.db.WithContext(ctx).Create(card).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.StampCard, error) {
	var card models.StampCard
	if err := r.db.WithContext(ctx).First(&card, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

func (r *repository) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]models.StampCard, error) {
	var out []models.StampCard
	if err := r.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("created_at DESC, id DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) Update(ctx context.Context, merchantID, id uuid.UUID, updates map[string]any) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.StampCard{}).
		Where("id = ? AND merchant_id = ?", id, merchantID).
		Updates(updates)
	return result.RowsAffected, result.Error
}
