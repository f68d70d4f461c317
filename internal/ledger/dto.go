package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	"github.com/stampbook/stampbook-backend/pkg/pagination"
)

// TransactionDTO is the transport shape of a ledger entry.
type TransactionDTO struct {
	ID           uuid.UUID             `json:"id"`
	CardID       uuid.UUID             `json:"card_id"`
	CustomerID   uuid.UUID             `json:"customer_id"`
	CustomerKind enums.CustomerKind    `json:"customer_kind"`
	MerchantID   uuid.UUID             `json:"merchant_id"`
	Type         enums.TransactionType `json:"type"`
	Count        int                   `json:"count"`
	RewardCode   *string               `json:"reward_code"`
	Metadata     map[string]any        `json:"metadata,omitempty"`
	Timestamp    time.Time             `json:"timestamp"`
}

// FromModel maps a ledger row to its DTO.
func FromModel(txn *models.StampTransaction) *TransactionDTO {
	if txn == nil {
		return nil
	}
	return &TransactionDTO{
		ID:           txn.ID,
		CardID:       txn.CardID,
		CustomerID:   txn.CustomerID,
		CustomerKind: txn.CustomerKind,
		MerchantID:   txn.MerchantID,
		Type:         txn.Type,
		Count:        txn.Count,
		RewardCode:   txn.RewardCode,
		Metadata:     map[string]any(txn.Metadata),
		Timestamp:    txn.Timestamp,
	}
}

// PageFromModels maps a page of rows, keeping the cursor.
func PageFromModels(page *pagination.Page[models.StampTransaction]) *pagination.Page[TransactionDTO] {
	out := &pagination.Page[TransactionDTO]{Items: make([]TransactionDTO, 0, len(page.Items)), NextCursor: page.NextCursor}
	for i := range page.Items {
		out.Items = append(out.Items, *FromModel(&page.Items[i]))
	}
	return out
}
