package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	dbtypes "github.com/stampbook/stampbook-backend/pkg/db/types"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stampbook/stampbook-backend/pkg/pagination"
	"gorm.io/gorm"
)

// Metadata keys written on ledger rows.
const (
	MetaMethod              = "method"
	MetaIP                  = "ip"
	MetaUserAgent           = "user_agent"
	MetaRequestID           = "request_id"
	MetaQRCodeID            = "qr_code_id"
	MetaRewardEarned        = "reward_earned"
	MetaEarnedTransactionID = "earned_transaction_id"
	MetaRewardGrantID       = "reward_grant_id"
)

// Service records and reads ledger entries.
type Service interface {
	// Record appends one entry. A non-nil tx binds the insert to it.
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.StampTransaction, error)
	CountSince(ctx context.Context, filter CountFilter) (int64, error)
	List(ctx context.Context, params ListParams) (*pagination.Page[models.StampTransaction], error)
}

type service struct {
	repo Repository
}

// RecordInput captures the immutable data a ledger entry requires.
type RecordInput struct {
	CardID       uuid.UUID
	CustomerID   uuid.UUID
	CustomerKind enums.CustomerKind
	MerchantID   uuid.UUID
	Type         enums.TransactionType
	Count        int
	RewardCode   *string
	Metadata     map[string]any
	Timestamp    time.Time
}

// ListParams filters a ledger page. CustomerIDs and MerchantID scope the
// caller; at least one is required.
type ListParams struct {
	CustomerIDs []uuid.UUID
	MerchantID  *uuid.UUID
	CardID      *uuid.UUID
	Cursor      string
	Limit       int
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.StampTransaction, error) {
	if input.CardID == uuid.Nil {
		return nil, fmt.Errorf("card id is required")
	}
	if input.CustomerID == uuid.Nil {
		return nil, fmt.Errorf("customer id is required")
	}
	if !input.CustomerKind.IsValid() {
		return nil, fmt.Errorf("invalid customer kind %q", input.CustomerKind)
	}
	if input.MerchantID == uuid.Nil {
		return nil, fmt.Errorf("merchant id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid transaction type %q", input.Type)
	}
	if input.Type == enums.TransactionTypeStamp && input.Count <= 0 {
		return nil, fmt.Errorf("stamp entries need a positive count")
	}
	if input.Type != enums.TransactionTypeStamp && (input.RewardCode == nil || strings.TrimSpace(*input.RewardCode) == "") {
		return nil, fmt.Errorf("%s entries need a reward code", input.Type)
	}

	txn := &models.StampTransaction{
		CardID:       input.CardID,
		CustomerID:   input.CustomerID,
		CustomerKind: input.CustomerKind,
		MerchantID:   input.MerchantID,
		Type:         input.Type,
		Count:        input.Count,
		RewardCode:   input.RewardCode,
		Metadata:     dbtypes.JSONMap(input.Metadata),
		Timestamp:    input.Timestamp.UTC(),
	}

	if err := s.repo.WithTx(tx).Create(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) CountSince(ctx context.Context, filter CountFilter) (int64, error) {
	if filter.MerchantID == uuid.Nil {
		return 0, fmt.Errorf("merchant id is required")
	}
	if !filter.Type.IsValid() {
		return 0, fmt.Errorf("invalid transaction type %q", filter.Type)
	}
	return s.repo.CountSince(ctx, filter)
}

func (s *service) List(ctx context.Context, params ListParams) (*pagination.Page[models.StampTransaction], error) {
	if len(params.CustomerIDs) == 0 && params.MerchantID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer or merchant scope required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.List(ctx, listFilter{
		CustomerIDs: params.CustomerIDs,
		MerchantID:  params.MerchantID,
		CardID:      params.CardID,
		Cursor:      cursor,
		Limit:       pagination.LimitWithBuffer(params.Limit),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	page := pagination.BuildPage(rows, params.Limit, func(t models.StampTransaction) pagination.Cursor {
		return pagination.Cursor{At: t.Timestamp, ID: t.ID}
	})
	return &page, nil
}
