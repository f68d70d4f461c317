package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	"gorm.io/gorm"
)

// OfflineOperation is a client-local issuance or redemption call waiting for
// the API to become reachable. The id doubles as the Idempotency-Key sent on
// replay.
type OfflineOperation struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Seq           int64                 `gorm:"column:seq;not null;index"`
	Type          enums.OperationType   `gorm:"column:type;type:text;not null;index"`
	Status        enums.OperationStatus `gorm:"column:status;type:text;not null"`
	Payload       []byte                `gorm:"column:payload;not null"`
	AttemptCount  int                   `gorm:"column:attempt_count;not null;default:0"`
	NextAttemptAt time.Time             `gorm:"column:next_attempt_at;not null"`
	LastError     *string               `gorm:"column:last_error;type:text"`
	DeadAt        *time.Time            `gorm:"column:dead_at"`
	CreatedAt     time.Time             `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time             `gorm:"column:updated_at;not null"`
}

func (o *OfflineOperation) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// QueueLease is the single-writer lock a drain holds on the local store.
type QueueLease struct {
	Name      string    `gorm:"column:name;primaryKey"`
	Owner     string    `gorm:"column:owner;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null"`
}
