package customers

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists pending customers and rewrites customer ownership when
// a pending customer is merged into a registered user.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// FindUserByID and FindUserByEmail match any role; callers decide who
	// may hold stamps.
	FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindPendingByID(ctx context.Context, id uuid.UUID) (*models.PendingCustomer, error)
	FindPendingByEmail(ctx context.Context, email string) (*models.PendingCustomer, error)
	// CreatePending inserts pending unless a row for its email exists, and
	// reports whether it did.
	CreatePending(ctx context.Context, pending *models.PendingCustomer) (bool, error)
	ListMergedPendingIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	ListCustomerCards(ctx context.Context, customerID uuid.UUID) ([]models.CustomerStampCard, error)
	FindCustomerCard(ctx context.Context, cardID, customerID uuid.UUID) (*models.CustomerStampCard, error)
	ReassignCustomerCard(ctx context.Context, id, userID uuid.UUID) error
	SetCustomerCardStamps(ctx context.Context, id uuid.UUID, stamps int) error
	DeleteCustomerCard(ctx context.Context, id uuid.UUID) error
	ReassignGrants(ctx context.Context, fromCustomerCardID, toCustomerCardID uuid.UUID) error
	ReassignGrantOwner(ctx context.Context, pendingID, userID uuid.UUID) (int64, error)
	MarkMerged(ctx context.Context, pendingID, userID uuid.UUID, at time.Time) error
	// CountPending reports unmerged pending customers created before cutoff
	// and all merged ones.
	CountPending(ctx context.Context, cutoff time.Time) (PendingCounts, error)
}

// PendingCounts summarises the pending customer table.
type PendingCounts struct {
	StaleUnmerged int64
	Merged        int64
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a customers repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("lower(email) = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindPendingByID(ctx context.Context, id uuid.UUID) (*models.PendingCustomer, error) {
	var pending models.PendingCustomer
	if err := r.db.WithContext(ctx).First(&pending, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &pending, nil
}

func (r *repository) FindPendingByEmail(ctx context.Context, email string) (*models.PendingCustomer, error) {
	var pending models.PendingCustomer
	if err := r.db.WithContext(ctx).Where("lower(email) = ?", normalizeEmail(email)).First(&pending).Error; err != nil {
		return nil, err
	}
	return &pending, nil
}

func (r *repository) CreatePending(ctx context.Context, pending *models.PendingCustomer) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(pending)
	return res.RowsAffected > 0, res.Error
}

func (r *repository) ListMergedPendingIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.PendingCustomer{}).
		Where("merged_into_user_id = ?", userID).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) ListCustomerCards(ctx context.Context, customerID uuid.UUID) ([]models.CustomerStampCard, error) {
	var rows []models.CustomerStampCard
	if err := r.db.WithContext(ctx).
		Preload("Card").
		Where("customer_id = ?", customerID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
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

func (r *repository) ReassignCustomerCard(ctx context.Context, id, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.CustomerStampCard{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"customer_id":   userID,
			"customer_kind": enums.CustomerKindUser,
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (r *repository) SetCustomerCardStamps(ctx context.Context, id uuid.UUID, stamps int) error {
	return r.db.WithContext(ctx).
		Model(&models.CustomerStampCard{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"current_stamps": stamps,
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (r *repository) DeleteCustomerCard(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.CustomerStampCard{}, "id = ?", id).Error
}

func (r *repository) ReassignGrants(ctx context.Context, fromCustomerCardID, toCustomerCardID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.RewardGrant{}).
		Where("customer_stamp_card_id = ?", fromCustomerCardID).
		UpdateColumn("customer_stamp_card_id", toCustomerCardID).Error
}

func (r *repository) ReassignGrantOwner(ctx context.Context, pendingID, userID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.RewardGrant{}).
		Where("customer_id = ? AND customer_kind = ?", pendingID, enums.CustomerKindPending).
		Updates(map[string]any{
			"customer_id":   userID,
			"customer_kind": enums.CustomerKindUser,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) MarkMerged(ctx context.Context, pendingID, userID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PendingCustomer{}).
		Where("id = ? AND merged_into_user_id IS NULL", pendingID).
		Updates(map[string]any{
			"merged_into_user_id": userID,
			"merged_at":           at,
		}).Error
}

func (r *repository) CountPending(ctx context.Context, cutoff time.Time) (PendingCounts, error) {
	var counts PendingCounts
	if err := r.db.WithContext(ctx).
		Model(&models.PendingCustomer{}).
		Where("merged_into_user_id IS NULL AND created_at < ?", cutoff.UTC()).
		Count(&counts.StaleUnmerged).Error; err != nil {
		return PendingCounts{}, err
	}
	if err := r.db.WithContext(ctx).
		Model(&models.PendingCustomer{}).
		Where("merged_into_user_id IS NOT NULL").
		Count(&counts.Merged).Error; err != nil {
		return PendingCounts{}, err
	}
	return counts, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
