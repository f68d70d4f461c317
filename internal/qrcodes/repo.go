package qrcodes

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository persists stamp QR codes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, code *models.StampQRCode) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.StampQRCode, error)
	FindByCode(ctx context.Context, code string) (*models.StampQRCode, error)
	ListActive(ctx context.Context, merchantID uuid.UUID, cardID *uuid.UUID, now time.Time) ([]models.StampQRCode, error)
	// Consume flips an unused single-use code to used. Zero rows means the
	// code was already spent.
	Consume(ctx context.Context, id uuid.UUID, now time.Time) (int64, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a QR code repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, code *models.StampQRCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.StampQRCode, error) {
	var code models.StampQRCode
	if err := r.db.WithContext(ctx).First(&code, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.StampQRCode, error) {
	var row models.StampQRCode
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListActive(ctx context.Context, merchantID uuid.UUID, cardID *uuid.UUID, now time.Time) ([]models.StampQRCode, error) {
	query := r.db.WithContext(ctx).
		Where("merchant_id = ? AND expires_at > ?", merchantID, now.UTC()).
		Where("NOT (is_single_use AND is_used)")
	if cardID != nil {
		query = query.Where("card_id = ?", *cardID)
	}
	var out []models.StampQRCode
	if err := query.Order("created_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) Consume(ctx context.Context, id uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.StampQRCode{}).
		Where("id = ? AND is_single_use = ? AND is_used = ?", id, true, false).
		Updates(map[string]any{
			"is_used": true,
			"used_at": now.UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *repository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", cutoff.UTC()).
		Delete(&models.StampQRCode{})
	return result.RowsAffected, result.Error
}
