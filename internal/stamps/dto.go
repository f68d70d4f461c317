package stamps

import (
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/internal/cards"
	"github.com/stampbook/stampbook-backend/internal/ledger"
	"github.com/stampbook/stampbook-backend/pkg/db/models"
	"github.com/stampbook/stampbook-backend/pkg/enums"
)

const (
	MinCount     = 1
	MaxCount     = 10
	DefaultCount = 1
)

// IssueRequest is the body of a stamp issuance call. QRPayload carries the
// scanned QR document for the qr method; CardID is used for direct issuance.
type IssueRequest struct {
	Method        string `json:"method"`
	QRPayload     string `json:"qrCode,omitempty"`
	CardID        string `json:"cardId,omitempty"`
	CustomerID    string `json:"customerId,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	Count         *int   `json:"count,omitempty"`
}

// RequestMeta is caller context copied onto the ledger row.
type RequestMeta struct {
	IP        string
	UserAgent string
	RequestID string
}

// Annotate copies the non-empty request attributes into ledger metadata.
func (m RequestMeta) Annotate(metadata map[string]any) {
	for key, value := range map[string]string{
		ledger.MetaIP:        m.IP,
		ledger.MetaUserAgent: m.UserAgent,
		ledger.MetaRequestID: m.RequestID,
	} {
		if value != "" {
			metadata[key] = value
		}
	}
}

// CustomerCardDTO is a customer's progress joined with the card definition.
type CustomerCardDTO struct {
	ID            uuid.UUID          `json:"id"`
	CardID        uuid.UUID          `json:"card_id"`
	CustomerID    uuid.UUID          `json:"customer_id"`
	CustomerKind  enums.CustomerKind `json:"customer_kind"`
	CurrentStamps int                `json:"current_stamps"`
	Completed     bool               `json:"completed"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Card          *cards.CardDTO     `json:"stamp_card,omitempty"`
}

// CustomerCardFromModel maps a customer card; card may be nil when the
// definition was not loaded.
func CustomerCardFromModel(row *models.CustomerStampCard, card *models.StampCard) *CustomerCardDTO {
	if row == nil {
		return nil
	}
	if card == nil {
		card = row.Card
	}
	dto := &CustomerCardDTO{
		ID:            row.ID,
		CardID:        row.CardID,
		CustomerID:    row.CustomerID,
		CustomerKind:  row.CustomerKind,
		CurrentStamps: row.CurrentStamps,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
		Card:          cards.FromModel(card),
	}
	if card != nil {
		dto.Completed = row.CurrentStamps >= card.TotalStamps
	}
	return dto
}

// IssueResult is what a successful issuance returns.
type IssueResult struct {
	StampCard    *CustomerCardDTO       `json:"stampCard"`
	RewardEarned bool                   `json:"rewardEarned"`
	RewardCode   *string                `json:"rewardCode"`
	Transaction  *ledger.TransactionDTO `json:"transaction"`
}
