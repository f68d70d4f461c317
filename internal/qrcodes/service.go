package qrcodes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"github.com/stampbook/stampbook-backend/internal/cards"
	"github.com/stampbook/stampbook-backend/pkg/config"
	"github.com/stampbook/stampbook-backend/pkg/db"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stampbook/stampbook-backend/pkg/logger"
	"github.com/stampbook/stampbook-backend/pkg/metrics"
	"github.com/stampbook/stampbook-backend/pkg/qrpayload"
	"github.com/stampbook/stampbook-backend/pkg/security"
	"gorm.io/gorm"
)

const (
	defaultImageSize = 256
	minImageSize     = 128
	maxImageSize     = 1024
	codeAttempts     = 3
)

// IssueInput is the merchant request to mint a QR code.
type IssueInput struct {
	CardID         uuid.UUID `json:"card_id" validate:"required"`
	ExpiresInHours int       `json:"expires_in_hours" validate:"required"`
	IsSingleUse    bool      `json:"is_single_use"`
	SecurityLevel  string    `json:"security_level,omitempty"`
}

// IssueResult pairs the persisted code with the payload to render.
type IssueResult struct {
	QRCode  *models.StampQRCode `json:"qrCode"`
	QRValue string              `json:"qrValue"`
}

// Service mints and serves stamp QR codes.
type Service interface {
	Issue(ctx context.Context, merchantID uuid.UUID, input IssueInput) (*IssueResult, error)
	RefreshPayload(ctx context.Context, merchantID, qrID uuid.UUID) (*IssueResult, error)
	Render(ctx context.Context, merchantID, qrID uuid.UUID, size int) ([]byte, error)
	ListActive(ctx context.Context, merchantID uuid.UUID, cardID *uuid.UUID) ([]models.StampQRCode, error)
}

type cardLoader interface {
	GetOwned(ctx context.Context, merchantID, id uuid.UUID) (*models.StampCard, error)
}

// ServiceParams bundles the QR service dependencies.
type ServiceParams struct {
	Repo    Repository
	Cards   cardLoader
	Config  config.StampsConfig
	Metrics *metrics.StampMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

type service struct {
	repo    Repository
	cards   cardLoader
	cfg     config.StampsConfig
	metrics *metrics.StampMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService validates dependencies and returns a QR service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "qr code repository required")
	}
	if params.Cards == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "card loader required")
	}
	cfg := params.Config
	if cfg.MinQRExpiryHours <= 0 {
		cfg.MinQRExpiryHours = 1
	}
	if cfg.MaxQRExpiryHours < cfg.MinQRExpiryHours {
		cfg.MaxQRExpiryHours = 72
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:    params.Repo,
		cards:   params.Cards,
		cfg:     cfg,
		metrics: params.Metrics,
		logg:    logg,
		now:     now,
	}, nil
}

func (s *service) Issue(ctx context.Context, merchantID uuid.UUID, input IssueInput) (*IssueResult, error) {
	if input.ExpiresInHours < s.cfg.MinQRExpiryHours || input.ExpiresInHours > s.cfg.MaxQRExpiryHours {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expires_in_hours is out of range").
			WithDetails(map[string]any{"min": s.cfg.MinQRExpiryHours, "max": s.cfg.MaxQRExpiryHours})
	}
	level, err := enums.ParseSecurityLevel(input.SecurityLevel)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid security_level")
	}
	if input.CardID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card_id is required")
	}

	card, err := s.cards.GetOwned(ctx, merchantID, input.CardID)
	if err != nil {
		return nil, err
	}
	if err := cards.RequireActive(card); err != nil {
		return nil, err
	}

	now := s.now()
	row := &models.StampQRCode{
		MerchantID:    merchantID,
		CardID:        card.ID,
		SecurityLevel: level,
		IsSingleUse:   input.IsSingleUse || level == enums.SecurityLevelHigh,
		ExpiresAt:     now.Add(time.Duration(input.ExpiresInHours) * time.Hour),
	}
	for attempt := 1; ; attempt++ {
		code, err := security.RandomToken(level.TokenBytes())
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate qr code")
		}
		row.ID = uuid.Nil
		row.Code = code
		err = s.repo.Create(ctx, row)
		if err == nil {
			break
		}
		if !db.IsUniqueViolation(err, "") || attempt >= codeAttempts {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create qr code")
		}
	}

	s.metrics.QRCodeIssued(string(level))
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"qr_code_id": row.ID.String(),
		"card_id":    card.ID.String(),
		"single_use": row.IsSingleUse,
		"security":   string(level),
		"expires_at": row.ExpiresAt,
	})
	s.logg.Info(logCtx, "qrcodes.issued")

	return s.withPayload(row, now)
}

func (s *service) RefreshPayload(ctx context.Context, merchantID, qrID uuid.UUID) (*IssueResult, error) {
	row, err := s.loadOwned(ctx, merchantID, qrID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if row.Expired(now) {
		return nil, pkgerrors.New(pkgerrors.CodeExpired, "QR code has expired")
	}
	if row.Consumed() {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyUsed, "QR code has already been used")
	}
	return s.withPayload(row, now)
}

func (s *service) Render(ctx context.Context, merchantID, qrID uuid.UUID, size int) ([]byte, error) {
	result, err := s.RefreshPayload(ctx, merchantID, qrID)
	if err != nil {
		return nil, err
	}
	switch {
	case size <= 0:
		size = defaultImageSize
	case size < minImageSize:
		size = minImageSize
	case size > maxImageSize:
		size = maxImageSize
	}
	recovery := qrcode.Medium
	if result.QRCode.SecurityLevel == enums.SecurityLevelHigh {
		recovery = qrcode.High
	}
	png, err := qrcode.Encode(result.QRValue, recovery, size)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render qr image")
	}
	return png, nil
}

func (s *service) ListActive(ctx context.Context, merchantID uuid.UUID, cardID *uuid.UUID) ([]models.StampQRCode, error) {
	if merchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "merchant identity required")
	}
	if cardID != nil {
		if _, err := s.cards.GetOwned(ctx, merchantID, *cardID); err != nil {
			return nil, err
		}
	}
	rows, err := s.repo.ListActive(ctx, merchantID, cardID, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list qr codes")
	}
	return rows, nil
}

func (s *service) loadOwned(ctx context.Context, merchantID, qrID uuid.UUID) (*models.StampQRCode, error) {
	row, err := s.repo.FindByID(ctx, qrID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "QR code not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load qr code")
	}
	if row.MerchantID != merchantID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "QR code belongs to another merchant")
	}
	return row, nil
}

func (s *service) withPayload(row *models.StampQRCode, now time.Time) (*IssueResult, error) {
	value, err := qrpayload.New(row.Code, row.CardID, row.MerchantID, now).Encode()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode qr payload")
	}
	return &IssueResult{QRCode: row, QRValue: value}, nil
}
