package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	"gorm.io/gorm"
)

// Notification stores in-app notifications addressed to a customer.
type Notification struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	RecipientID uuid.UUID              `gorm:"column:recipient_id;type:uuid;not null" json:"recipient_id"`
	Type        enums.NotificationType `gorm:"column:type;type:text;not null" json:"type"`
	Title       string                 `gorm:"column:title;type:text;not null" json:"title"`
	Message     string                 `gorm:"column:message;type:text;not null" json:"message"`
	Link        *string                `gorm:"column:link;type:text" json:"link,omitempty"`
	ReadAt      *time.Time             `gorm:"column:read_at" json:"read_at,omitempty"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	ensureID(&n.ID)
	return nil
}
