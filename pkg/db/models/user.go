package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	"gorm.io/gorm"
)

// User represents the canonical identity entity for customers and merchants.
type User struct {
	ID           uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Email        string         `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash string         `gorm:"column:password_hash;not null"`
	DisplayName  string         `gorm:"column:display_name;not null"`
	Role         enums.UserRole `gorm:"column:role;type:text;not null"`
	LastLoginAt  *time.Time     `gorm:"column:last_login_at"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}

// PendingCustomer is an email that received stamps before registering.
type PendingCustomer struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Email            string     `gorm:"column:email;type:text;not null;uniqueIndex"`
	MergedIntoUserID *uuid.UUID `gorm:"column:merged_into_user_id;type:uuid"`
	MergedAt         *time.Time `gorm:"column:merged_at"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (p *PendingCustomer) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
