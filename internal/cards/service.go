package cards

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stampbook/stampbook-backend/pkg/logger"
	"gorm.io/gorm"
)

const (
	msgNotFound  = "stamp card not found"
	msgForbidden = "stamp card belongs to another merchant"
	msgInactive  = "stamp card is not active"
)

// Service manages merchant stamp card definitions.
type Service interface {
	Create(ctx context.Context, merchantID uuid.UUID, input CreateCardInput) (*models.StampCard, error)
	ListForMerchant(ctx context.Context, merchantID uuid.UUID) ([]models.StampCard, error)
	Get(ctx context.Context, id uuid.UUID) (*models.StampCard, error)
	// GetOwned loads a card and requires merchantID to own it.
	GetOwned(ctx context.Context, merchantID, id uuid.UUID) (*models.StampCard, error)
	Update(ctx context.Context, merchantID, id uuid.UUID, input UpdateCardInput) (*models.StampCard, error)
	SetActive(ctx context.Context, merchantID, id uuid.UUID, active bool) (*models.StampCard, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService returns a cards service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cards repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, logg: logg}, nil
}

// RequireActive rejects cards that no longer accept QR codes or stamps.
func RequireActive(card *models.StampCard) error {
	if card == nil || !card.IsActive {
		return pkgerrors.New(pkgerrors.CodeValidation, msgInactive)
	}
	return nil
}

func (s *service) Create(ctx context.Context, merchantID uuid.UUID, input CreateCardInput) (*models.StampCard, error) {
	if merchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "merchant identity required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	reward := strings.TrimSpace(input.Reward)
	if reward == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reward is required")
	}
	if input.TotalStamps < MinTotalStamps || input.TotalStamps > MaxTotalStamps {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total_stamps must be between 1 and 100").
			WithDetails(map[string]any{"min": MinTotalStamps, "max": MaxTotalStamps})
	}
	if input.ExpiryDays != nil && *input.ExpiryDays <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expiry_days must be positive")
	}

	card := &models.StampCard{
		MerchantID:    merchantID,
		Name:          name,
		Description:   trimmedOrNil(input.Description),
		TotalStamps:   input.TotalStamps,
		Reward:        reward,
		BusinessLogo:  trimmedOrNil(input.BusinessLogo),
		BusinessColor: trimmedOrNil(input.BusinessColor),
		IsActive:      true,
		ExpiryDays:    input.ExpiryDays,
	}
	if input.RewardValue != nil && strings.TrimSpace(*input.RewardValue) != "" {
		value, err := decimal.NewFromString(strings.TrimSpace(*input.RewardValue))
		if err != nil || value.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "reward_value must be a non-negative decimal")
		}
		card.RewardValue = decimal.NewNullDecimal(value.Round(2))
	}

	if err := s.repo.Create(ctx, card); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stamp card")
	}
	s.logg.Info(s.logg.WithCardID(ctx, card.ID.String()), "cards.created")
	return card, nil
}

func (s *service) ListForMerchant(ctx context.Context, merchantID uuid.UUID) ([]models.StampCard, error) {
	if merchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "merchant identity required")
	}
	out, err := s.repo.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stamp cards")
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.StampCard, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card id is required")
	}
	card, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, msgNotFound)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stamp card")
	}
	return card, nil
}

func (s *service) GetOwned(ctx context.Context, merchantID, id uuid.UUID) (*models.StampCard, error) {
	card, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if card.MerchantID != merchantID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, msgForbidden)
	}
	return card, nil
}

func (s *service) Update(ctx context.Context, merchantID, id uuid.UUID, input UpdateCardInput) (*models.StampCard, error) {
	if _, err := s.GetOwned(ctx, merchantID, id); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		updates["name"] = name
	}
	if input.Reward != nil {
		reward := strings.TrimSpace(*input.Reward)
		if reward == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "reward cannot be empty")
		}
		updates["reward"] = reward
	}
	if input.Description != nil {
		updates["description"] = trimmedOrNil(input.Description)
	}
	if input.BusinessLogo != nil {
		updates["business_logo"] = trimmedOrNil(input.BusinessLogo)
	}
	if input.BusinessColor != nil {
		updates["business_color"] = trimmedOrNil(input.BusinessColor)
	}
	if input.ExpiryDays != nil {
		if *input.ExpiryDays <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "expiry_days must be positive")
		}
		updates["expiry_days"] = *input.ExpiryDays
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}

	if _, err := s.repo.Update(ctx, merchantID, id, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stamp card")
	}
	return s.Get(ctx, id)
}

func (s *service) SetActive(ctx context.Context, merchantID, id uuid.UUID, active bool) (*models.StampCard, error) {
	card, err := s.Update(ctx, merchantID, id, UpdateCardInput{IsActive: &active})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{"card_id": id.String(), "is_active": active})
	s.logg.Info(logCtx, "cards.active_changed")
	return card, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
