package stamps

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists customer card progress and the reward grants issued
// when a card completes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindCustomerCard(ctx context.Context, cardID, customerID uuid.UUID) (*models.CustomerStampCard, error)
	FindCustomerCardByID(ctx context.Context, id uuid.UUID) (*models.CustomerStampCard, error)
	// InsertCustomerCard creates the row unless (card_id, customer_id) already
	// exists and reports whether it inserted.
	InsertCustomerCard(ctx context.Context, row *models.CustomerStampCard) (bool, error)
	// CompareAndSetStamps moves current_stamps from expected to next and
	// returns the affected row count; zero means another writer got there first.
	CompareAndSetStamps(ctx context.Context, id uuid.UUID, expected, next int, now time.Time) (int64, error)
	ListCustomerCards(ctx context.Context, customerIDs []uuid.UUID) ([]models.CustomerStampCard, error)
	GrantCodeTaken(ctx context.Context, code string) (bool, error)
	CreateGrant(ctx context.Context, grant *models.RewardGrant) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a stamps repository to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindCustomerCard(ctx context.Context, cardID, customerID uuid.UUID) (*models.CustomerStampCard, error) {
	var row models.CustomerStampCard
	if err := r.db.WithContext(ctx).
		Where("card_id = ? AND customer_id = ?", cardID, customerID).
		First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindCustomerCardByID(ctx context.Context, id uuid.UUID) (*models.CustomerStampCard, error) {
	var row models.CustomerStampCard
	if err := r.db.WithContext(ctx).
		Preload("Card").
		First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) InsertCustomerCard(ctx context.Context, row *models.CustomerStampCard) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "card_id"}, {Name: "customer_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CompareAndSetStamps(ctx context.Context, id uuid.UUID, expected, next int, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CustomerStampCard{}).
		Where("id = ? AND current_stamps = ?", id, expected).
		Updates(map[string]any{
			"current_stamps": next,
			"updated_at":     now.UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListCustomerCards(ctx context.Context, customerIDs []uuid.UUID) ([]models.CustomerStampCard, error) {
	var rows []models.CustomerStampCard
	if len(customerIDs) == 0 {
		return rows, nil
	}
	if err := r.db.WithContext(ctx).
		Preload("Card").
		Where("customer_id IN ?", customerIDs).
		Order("updated_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) GrantCodeTaken(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.RewardGrant{}).
		Where("code = ?", code).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) CreateGrant(ctx context.Context, grant *models.RewardGrant) error {
	return r.db.WithContext(ctx).Create(grant).Error
}
