package controllers

import (
	"net/http"
	"strconv"

	"github.com/stampbook/stampbook-backend/api/responses"
	"github.com/stampbook/stampbook-backend/api/validators"
	"github.com/stampbook/stampbook-backend/internal/qrcodes"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stampbook/stampbook-backend/pkg/logger"
)

// MerchantIssueQRCode mints a QR code for one of the caller's cards.
func MerchantIssueQRCode(svc qrcodes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "qr code service unavailable"))
			return
		}
		merchantID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var body qrcodes.IssueInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Issue(r.Context(), merchantID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// MerchantListQRCodes lists unexpired codes, optionally for one card.
func MerchantListQRCodes(svc qrcodes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "qr code service unavailable"))
			return
		}
		merchantID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		cardID, err := validators.ParseQueryUUID(r, "card_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListActive(r.Context(), merchantID, cardID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// MerchantQRCodePayload returns a fresh payload for an existing code. The
// embedded timestamp is renewed on every call so a displayed code can be
// refreshed before the replay window closes.
func MerchantQRCodePayload(svc qrcodes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "qr code service unavailable"))
			return
		}
		merchantID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		qrID, err := validators.ParseURLUUID(r, "qrId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RefreshPayload(r.Context(), merchantID, qrID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// MerchantQRCodeImage renders the current payload as a PNG.
func MerchantQRCodeImage(svc qrcodes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "qr code service unavailable"))
			return
		}
		merchantID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		qrID, err := validators.ParseURLUUID(r, "qrId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		size, err := validators.ParseQueryInt(r, "size", 0, 0, 4096)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		png, err := svc.Render(r.Context(), merchantID, qrID, size)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
	}
}
