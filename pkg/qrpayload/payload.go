// Package qrpayload encodes and validates the JSON document embedded in a
// stamp QR image:
//
//	{"type":"stamp","code":"...","card_id":"...","merchant_id":"...","timestamp":1700000000000}
//
// timestamp is milliseconds since the epoch and only bounds the replay window
// at scan time; the code's own lifetime is stored server side.
package qrpayload

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const TypeStamp = "stamp"

// DefaultReplayWindow is how old a scanned payload may be.
const DefaultReplayWindow = 5 * time.Minute

var (
	ErrMalformed  = errors.New("qr payload is malformed")
	ErrWrongType  = errors.New("qr payload is not a stamp code")
	ErrIncomplete = errors.New("qr payload is missing required fields")
	ErrFuture     = errors.New("qr payload timestamp is in the future")
	ErrStale      = errors.New("qr payload has expired")
)

// Payload is the decoded QR document.
type Payload struct {
	Type       string `json:"type"`
	Code       string `json:"code"`
	CardID     string `json:"card_id"`
	MerchantID string `json:"merchant_id"`
	Timestamp  int64  `json:"timestamp"`
}

// New builds a stamp payload stamped at now.
func New(code string, cardID, merchantID uuid.UUID, now time.Time) Payload {
	return Payload{
		Type:       TypeStamp,
		Code:       code,
		CardID:     cardID.String(),
		MerchantID: merchantID.String(),
		Timestamp:  now.UnixMilli(),
	}
}

// Encode serializes the payload to the string placed in the QR image.
func (p Payload) Encode() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode qr payload: %w", err)
	}
	return string(raw), nil
}

// IssuedAt returns the embedded timestamp.
func (p Payload) IssuedAt() time.Time {
	return time.UnixMilli(p.Timestamp).UTC()
}

// CardUUID parses card_id.
func (p Payload) CardUUID() (uuid.UUID, error) {
	return uuid.Parse(p.CardID)
}

// MerchantUUID parses merchant_id.
func (p Payload) MerchantUUID() (uuid.UUID, error) {
	return uuid.Parse(p.MerchantID)
}

// Parse decodes raw and checks shape: type must be "stamp" and code, card_id
// and merchant_id must be present.
func Parse(raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{}, ErrMalformed
	}

	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.Type != TypeStamp {
		return Payload{}, ErrWrongType
	}
	if strings.TrimSpace(p.Code) == "" || strings.TrimSpace(p.CardID) == "" || strings.TrimSpace(p.MerchantID) == "" {
		return Payload{}, ErrIncomplete
	}
	if _, err := p.CardUUID(); err != nil {
		return Payload{}, fmt.Errorf("%w: card_id", ErrMalformed)
	}
	if _, err := p.MerchantUUID(); err != nil {
		return Payload{}, fmt.Errorf("%w: merchant_id", ErrMalformed)
	}
	return p, nil
}

// CheckFreshness enforces the anti-replay window. A timestamp after now is
// rejected outright; one older than window is stale. The boundary itself is
// still fresh.
func (p Payload) CheckFreshness(now time.Time, window time.Duration) error {
	if window <= 0 {
		window = DefaultReplayWindow
	}
	issued := p.IssuedAt()
	if issued.After(now) {
		return ErrFuture
	}
	if now.Sub(issued) > window {
		return ErrStale
	}
	return nil
}
