package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	"gorm.io/gorm"
)

// StampQRCode is a time-boxed token that grants stamps on a card when scanned.
type StampQRCode struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	MerchantID    uuid.UUID           `gorm:"column:merchant_id;type:uuid;not null" json:"merchant_id"`
	CardID        uuid.UUID           `gorm:"column:card_id;type:uuid;not null" json:"card_id"`
	Code          string              `gorm:"column:code;not null;uniqueIndex" json:"code"`
	SecurityLevel enums.SecurityLevel `gorm:"column:security_level;type:text;not null" json:"security_level"`
	IsSingleUse   bool                `gorm:"column:is_single_use;not null" json:"is_single_use"`
	IsUsed        bool                `gorm:"column:is_used;not null" json:"is_used"`
	UsedAt        *time.Time          `gorm:"column:used_at" json:"used_at,omitempty"`
	ExpiresAt     time.Time           `gorm:"column:expires_at;not null" json:"expires_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (StampQRCode) TableName() string { return "stamp_qr_codes" }

func (q *StampQRCode) BeforeCreate(*gorm.DB) error {
	ensureID(&q.ID)
	return nil
}

// Expired reports whether the code is past its window at now.
func (q StampQRCode) Expired(now time.Time) bool {
	return now.After(q.ExpiresAt)
}

// Consumed reports whether a single-use code has already been spent.
func (q StampQRCode) Consumed() bool {
	return q.IsSingleUse && q.IsUsed
}
