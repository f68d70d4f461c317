package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	"gorm.io/gorm"
)

// RewardGrant ties an earned reward code to the ledger entries that earned
// and redeemed it. Version guards the earned -> redeemed/expired transition.
type RewardGrant struct {
	ID                    uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	Code                  string                 `gorm:"column:code;not null;uniqueIndex"`
	CardID                uuid.UUID              `gorm:"column:card_id;type:uuid;not null"`
	CustomerStampCardID   uuid.UUID              `gorm:"column:customer_stamp_card_id;type:uuid;not null"`
	CustomerID            uuid.UUID              `gorm:"column:customer_id;type:uuid;not null"`
	CustomerKind          enums.CustomerKind     `gorm:"column:customer_kind;type:text;not null"`
	MerchantID            uuid.UUID              `gorm:"column:merchant_id;type:uuid;not null"`
	State                 enums.RewardGrantState `gorm:"column:state;type:text;not null"`
	EarnedTransactionID   uuid.UUID              `gorm:"column:earned_transaction_id;type:uuid;not null"`
	RedeemedTransactionID *uuid.UUID             `gorm:"column:redeemed_transaction_id;type:uuid"`
	EarnedAt              time.Time              `gorm:"column:earned_at;not null"`
	RedeemedAt            *time.Time             `gorm:"column:redeemed_at"`
	ExpiredAt             *time.Time             `gorm:"column:expired_at"`
	ClaimedAt             *time.Time             `gorm:"column:claimed_at"`
	Version               int                    `gorm:"column:version;not null"`
}

func (g *RewardGrant) BeforeCreate(*gorm.DB) error {
	ensureID(&g.ID)
	return nil
}
