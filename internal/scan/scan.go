// Package scan turns what a till reads (typed text or a scanned QR) into the
// request the API expects.
package scan

import (
	"errors"
	"io"
	"strings"

	"github.com/stampbook/stampbook-backend/internal/rewards"
	"github.com/stampbook/stampbook-backend/internal/stamps"
	"github.com/stampbook/stampbook-backend/pkg/enums"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stampbook/stampbook-backend/pkg/qrpayload"
	"github.com/stampbook/stampbook-backend/pkg/rewardcode"
)

type Kind string

const (
	KindRewardCode Kind = "reward_code"
	KindQRPayload  Kind = "qr_payload"
)

// ErrImageUnsupported is returned by FromImage. Camera decoding happens on
// the device; the server side only ever sees decoded text.
var ErrImageUnsupported = errors.New("decoding QR images is not supported; send the decoded text")

// Input is a classified scan.
type Input struct {
	Kind       Kind
	RewardCode string
	// Raw is the payload text exactly as scanned; the server checks its
	// freshness, so it is forwarded untouched.
	Raw     string
	Payload qrpayload.Payload
}

// FromText classifies manual or scanner input: a JSON document is a stamp QR
// payload, anything else must be a reward code.
func FromText(raw string) (Input, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Input{}, pkgerrors.New(pkgerrors.CodeValidation, "scan input is empty")
	}

	if strings.HasPrefix(trimmed, "{") {
		payload, err := qrpayload.Parse(trimmed)
		if err != nil {
			return Input{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid QR code format")
		}
		return Input{Kind: KindQRPayload, Raw: trimmed, Payload: payload}, nil
	}

	code, err := rewardcode.Normalize(trimmed)
	if err != nil {
		return Input{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "input is neither a QR code nor a reward code")
	}
	return Input{Kind: KindRewardCode, RewardCode: code, Raw: trimmed}, nil
}

// FromImage always fails with ErrImageUnsupported.
func FromImage(io.Reader) (Input, error) {
	return Input{}, pkgerrors.Wrap(pkgerrors.CodeValidation, ErrImageUnsupported, "image scanning unsupported")
}

// IssueRequest builds a QR issuance request from a scanned payload.
func (in Input) IssueRequest(customerID, customerEmail string) (stamps.IssueRequest, error) {
	if in.Kind != KindQRPayload {
		return stamps.IssueRequest{}, pkgerrors.New(pkgerrors.CodeValidation, "scan is not a stamp QR code")
	}
	return stamps.IssueRequest{
		Method:        string(enums.IssuanceMethodQR),
		QRPayload:     in.Raw,
		CustomerID:    strings.TrimSpace(customerID),
		CustomerEmail: strings.TrimSpace(customerEmail),
	}, nil
}

// RedeemRequest builds a redemption request from a scanned reward code.
func (in Input) RedeemRequest() (rewards.RedeemRequest, error) {
	if in.Kind != KindRewardCode {
		return rewards.RedeemRequest{}, pkgerrors.New(pkgerrors.CodeValidation, "scan is not a reward code")
	}
	return rewards.RedeemRequest{RewardCode: in.RewardCode}, nil
}
