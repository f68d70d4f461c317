package cards

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
)

// Bounds on StampCard.TotalStamps.
const (
	MinTotalStamps = 1
	MaxTotalStamps = 100
)

// CreateCardInput is the merchant-supplied definition of a new card.
type CreateCardInput struct {
	Name          string  `json:"name" validate:"required,notblank,max=120"`
	Description   *string `json:"description,omitempty" validate:"omitempty,max=500"`
	TotalStamps   int     `json:"total_stamps" validate:"required,min=1,max=100"`
	Reward        string  `json:"reward" validate:"required,notblank,max=200"`
	RewardValue   *string `json:"reward_value,omitempty"`
	BusinessLogo  *string `json:"business_logo,omitempty" validate:"omitempty,url"`
	BusinessColor *string `json:"business_color,omitempty" validate:"omitempty,hexcolor"`
	ExpiryDays    *int    `json:"expiry_days,omitempty" validate:"omitempty,min=1,max=3650"`
}

// UpdateCardInput carries the administrative fields a merchant may edit.
// TotalStamps is fixed once created.
type UpdateCardInput struct {
	Name          *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Description   *string `json:"description,omitempty" validate:"omitempty,max=500"`
	Reward        *string `json:"reward,omitempty" validate:"omitempty,min=1,max=200"`
	BusinessLogo  *string `json:"business_logo,omitempty" validate:"omitempty,url"`
	BusinessColor *string `json:"business_color,omitempty" validate:"omitempty,hexcolor"`
	IsActive      *bool   `json:"is_active,omitempty"`
	ExpiryDays    *int    `json:"expiry_days,omitempty" validate:"omitempty,min=1,max=3650"`
}

// CardDTO is the transport shape of a stamp card definition.
type CardDTO struct {
	ID            uuid.UUID        `json:"id"`
	MerchantID    uuid.UUID        `json:"merchant_id"`
	Name          string           `json:"name"`
	Description   *string          `json:"description,omitempty"`
	TotalStamps   int              `json:"total_stamps"`
	Reward        string           `json:"reward"`
	RewardValue   *decimal.Decimal `json:"reward_value,omitempty"`
	BusinessLogo  *string          `json:"business_logo,omitempty"`
	BusinessColor *string          `json:"business_color,omitempty"`
	IsActive      bool             `json:"is_active"`
	ExpiryDays    *int             `json:"expiry_days,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// FromModel maps a card row to its DTO.
func FromModel(card *models.StampCard) *CardDTO {
	if card == nil {
		return nil
	}
	dto := &CardDTO{
		ID:            card.ID,
		MerchantID:    card.MerchantID,
		Name:          card.Name,
		Description:   card.Description,
		TotalStamps:   card.TotalStamps,
		Reward:        card.Reward,
		BusinessLogo:  card.BusinessLogo,
		BusinessColor: card.BusinessColor,
		IsActive:      card.IsActive,
		ExpiryDays:    card.ExpiryDays,
		CreatedAt:     card.CreatedAt,
		UpdatedAt:     card.UpdatedAt,
	}
	if card.RewardValue.Valid {
		value := card.RewardValue.Decimal
		dto.RewardValue = &value
	}
	return dto
}
