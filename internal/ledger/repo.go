package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	"github.com/stampbook/stampbook-backend/pkg/pagination"
	"gorm.io/gorm"
)

// Repository manages persistence for stamp transactions. Rows are never
// updated or deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.StampTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.StampTransaction, error)
	CountSince(ctx context.Context, filter CountFilter) (int64, error)
	List(ctx context.Context, filter listFilter) ([]models.StampTransaction, error)
}

// CountFilter selects ledger rows of one type for a merchant, optionally
// narrowed to one customer, at or after Since.
type CountFilter struct {
	MerchantID uuid.UUID
	CustomerID *uuid.UUID
	Type       enums.TransactionType
	Since      time.Time
}

type listFilter struct {
	CustomerIDs []uuid.UUID
	MerchantID  *uuid.UUID
	CardID      *uuid.UUID
	Cursor      *pagination.Cursor
	Limit       int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.StampTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.StampTransaction, error) {
	var txn models.StampTransaction
	if err := r.db.WithContext(ctx).First(&txn, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) CountSince(ctx context.Context, filter CountFilter) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.StampTransaction{}).
		Where("merchant_id = ? AND type = ? AND timestamp >= ?", filter.MerchantID, filter.Type, filter.Since.UTC())
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) List(ctx context.Context, filter listFilter) ([]models.StampTransaction, error) {
	query := r.db.WithContext(ctx).Model(&models.StampTransaction{})
	if len(filter.CustomerIDs) > 0 {
		query = query.Where("customer_id IN ?", filter.CustomerIDs)
	}
	if filter.MerchantID != nil {
		query = query.Where("merchant_id = ?", *filter.MerchantID)
	}
	if filter.CardID != nil {
		query = query.Where("card_id = ?", *filter.CardID)
	}
	if filter.Cursor != nil {
		query = query.Where("(timestamp < ? OR (timestamp = ? AND id < ?))",
			filter.Cursor.At, filter.Cursor.At, filter.Cursor.ID)
	}

	var rows []models.StampTransaction
	if err := query.Order("timestamp DESC, id DESC").Limit(filter.Limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
