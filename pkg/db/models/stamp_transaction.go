package models

import (
	"time"

	"github.com/google/uuid"
	dbtypes "github.com/stampbook/stampbook-backend/pkg/db/types"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	"gorm.io/gorm"
)

// StampTransaction is an append-only ledger entry.
type StampTransaction struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	CardID       uuid.UUID             `gorm:"column:card_id;type:uuid;not null"`
	CustomerID   uuid.UUID             `gorm:"column:customer_id;type:uuid;not null"`
	CustomerKind enums.CustomerKind    `gorm:"column:customer_kind;type:text;not null"`
	MerchantID   uuid.UUID             `gorm:"column:merchant_id;type:uuid;not null"`
	Type         enums.TransactionType `gorm:"column:type;type:text;not null"`
	Count        int                   `gorm:"column:count;not null"`
	RewardCode   *string               `gorm:"column:reward_code"`
	Metadata     dbtypes.JSONMap       `gorm:"column:metadata;type:jsonb"`
	Timestamp    time.Time             `gorm:"column:timestamp;not null"`
}

func (t *StampTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	return nil
}
