package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	"gorm.io/gorm"
)

// StampCard is a merchant-owned stamp card definition.
type StampCard struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	MerchantID    uuid.UUID           `gorm:"column:merchant_id;type:uuid;not null"`
	Name          string              `gorm:"column:name;not null"`
	Description   *string             `gorm:"column:description"`
	TotalStamps   int                 `gorm:"column:total_stamps;not null"`
	Reward        string              `gorm:"column:reward;not null"`
	RewardValue   decimal.NullDecimal `gorm:"column:reward_value;type:numeric(12,2)"`
	BusinessLogo  *string             `gorm:"column:business_logo"`
	BusinessColor *string             `gorm:"column:business_color"`
	IsActive      bool                `gorm:"column:is_active;not null"`
	ExpiryDays    *int                `gorm:"column:expiry_days"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (StampCard) TableName() string { return "stamp_cards" }

func (c *StampCard) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// CustomerStampCard is one customer's progress against a StampCard.
// 0 <= CurrentStamps <= StampCard.TotalStamps; one row per (card, customer).
type CustomerStampCard struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	CardID        uuid.UUID          `gorm:"column:card_id;type:uuid;not null"`
	CustomerID    uuid.UUID          `gorm:"column:customer_id;type:uuid;not null"`
	CustomerKind  enums.CustomerKind `gorm:"column:customer_kind;type:text;not null"`
	CurrentStamps int                `gorm:"column:current_stamps;not null"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`

	Card *StampCard `gorm:"foreignKey:CardID;references:ID"`
}

func (CustomerStampCard) TableName() string { return "customer_stamp_cards" }

func (c *CustomerStampCard) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
