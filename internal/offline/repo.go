package offline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxStoredErrorLen = 1024

// Repository persists queued operations and the drain lease in the local store.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// Insert assigns the next sequence number and stores op.
	Insert(ctx context.Context, op *models.OfflineOperation) error
	ListPending(ctx context.Context, opType enums.OperationType) ([]models.OfflineOperation, error)
	CountPending(ctx context.Context, opType enums.OperationType) (int64, error)
	// HeadAttemptAt returns when the first pending operation of opType may be
	// replayed. ok is false when nothing of that type is pending.
	HeadAttemptAt(ctx context.Context, opType enums.OperationType) (at time.Time, ok bool, err error)
	Delete(ctx context.Context, id uuid.UUID) error
	MarkRetry(ctx context.Context, id uuid.UUID, attempts int, next time.Time, cause error) error
	MarkDeadLetter(ctx context.Context, id uuid.UUID, attempts int, at time.Time, cause error) error
	ListDeadLetters(ctx context.Context, limit int) ([]models.OfflineOperation, error)
	// AcquireLease takes or renews the named lease for owner. It fails when
	// another owner holds an unexpired lease.
	AcquireLease(ctx context.Context, name, owner string, ttl time.Duration, now time.Time) (bool, error)
	ReleaseLease(ctx context.Context, name, owner string, now time.Time) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, op *models.OfflineOperation) error {
	var last int64
	if err := r.db.WithContext(ctx).
		Model(&models.OfflineOperation{}).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&last).Error; err != nil {
		return err
	}
	op.Seq = last + 1
	return r.db.WithContext(ctx).Create(op).Error
}

func (r *repository) ListPending(ctx context.Context, opType enums.OperationType) ([]models.OfflineOperation, error) {
	var rows []models.OfflineOperation
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ?", opType, enums.OperationStatusPending).
		Order("created_at ASC").
		Order("seq ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) CountPending(ctx context.Context, opType enums.OperationType) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.OfflineOperation{}).
		Where("type = ? AND status = ?", opType, enums.OperationStatusPending).
		Count(&n).Error
	return n, err
}

func (r *repository) HeadAttemptAt(ctx context.Context, opType enums.OperationType) (time.Time, bool, error) {
	var row models.OfflineOperation
	err := r.db.WithContext(ctx).
		Select("next_attempt_at").
		Where("type = ? AND status = ?", opType, enums.OperationStatusPending).
		Order("created_at ASC").
		Order("seq ASC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return row.NextAttemptAt, true, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.OfflineOperation{}, "id = ?", id).Error
}

func (r *repository) MarkRetry(ctx context.Context, id uuid.UUID, attempts int, next time.Time, cause error) error {
	return r.db.WithContext(ctx).
		Model(&models.OfflineOperation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempt_count":   attempts,
			"next_attempt_at": next.UTC(),
			"last_error":      storedError(cause),
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *repository) MarkDeadLetter(ctx context.Context, id uuid.UUID, attempts int, at time.Time, cause error) error {
	return r.db.WithContext(ctx).
		Model(&models.OfflineOperation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        enums.OperationStatusDeadLetter,
			"attempt_count": attempts,
			"last_error":    storedError(cause),
			"dead_at":       at.UTC(),
			"updated_at":    at.UTC(),
		}).Error
}

func (r *repository) ListDeadLetters(ctx context.Context, limit int) ([]models.OfflineOperation, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.OfflineOperation
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.OperationStatusDeadLetter).
		Order("dead_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration, now time.Time) (bool, error) {
	now = now.UTC()
	lease := models.QueueLease{Name: name, Owner: owner, ExpiresAt: now.Add(ttl)}
	created := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&lease)
	if created.Error != nil {
		return false, created.Error
	}
	if created.RowsAffected == 1 {
		return true, nil
	}

	res := r.db.WithContext(ctx).
		Model(&models.QueueLease{}).
		Where("name = ? AND (owner = ? OR expires_at <= ?)", name, owner, now).
		Updates(map[string]any{
			"owner":      owner,
			"expires_at": now.Add(ttl),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ReleaseLease(ctx context.Context, name, owner string, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.QueueLease{}).
		Where("name = ? AND owner = ?", name, owner).
		Update("expires_at", now.UTC()).Error
}

func storedError(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxStoredErrorLen {
		msg = msg[:maxStoredErrorLen]
	}
	return &msg
}
