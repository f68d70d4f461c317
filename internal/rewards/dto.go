package rewards

import (
	"time"

	"github.com/google/uuid"
	"github.com/stampbook/stampbook-backend/internal/ledger"
	"github.com/stampbook/stampbook-backend/internal/stamps"
	"github.com/stampbook/stampbook-backend/pkg/enums"
)

// RedeemRequest is the body of a redemption call.
type RedeemRequest struct {
	RewardCode string `json:"rewardCode" validate:"required,rewardcode"`
}

// RedeemedTransactionDTO is the redeem ledger entry plus its redemption time.
type RedeemedTransactionDTO struct {
	ledger.TransactionDTO
	RedeemedAt time.Time `json:"redeemed_at"`
}

type CustomerInfo struct {
	ID uuid.UUID `json:"id"`
}

// RedeemResult is what a successful redemption returns.
type RedeemResult struct {
	Transaction  RedeemedTransactionDTO `json:"transaction"`
	Reward       string                 `json:"reward"`
	CustomerInfo CustomerInfo           `json:"customerInfo"`
}

// GrantDTO is a reward code as a customer sees it. State reads expired once
// the validity window has passed even before the expiry job runs.
type GrantDTO struct {
	ID         uuid.UUID              `json:"id"`
	Code       string                 `json:"code"`
	State      enums.RewardGrantState `json:"state"`
	CardID     uuid.UUID              `json:"card_id"`
	CardName   string                 `json:"card_name,omitempty"`
	Reward     string                 `json:"reward,omitempty"`
	MerchantID uuid.UUID              `json:"merchant_id"`
	EarnedAt   time.Time              `json:"earned_at"`
	ExpiresAt  time.Time              `json:"expires_at"`
	RedeemedAt *time.Time             `json:"redeemed_at,omitempty"`
	ClaimedAt  *time.Time             `json:"claimed_at,omitempty"`
}

// ClaimResult pairs the claimed grant with the reset card.
type ClaimResult struct {
	Grant     GrantDTO                `json:"reward"`
	StampCard *stamps.CustomerCardDTO `json:"stampCard"`
}
