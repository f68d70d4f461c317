package controllers

import (
	"net/http"

	"github.com/stampbook/stampbook-backend/api/responses"
	"github.com/stampbook/stampbook-backend/api/validators"
	"github.com/stampbook/stampbook-backend/internal/stamps"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stampbook/stampbook-backend/pkg/logger"
)

// IssueStampsResponse is flat: success sits next to the result fields.
type IssueStampsResponse struct {
	Success bool `json:"success"`
	*stamps.IssueResult
}

// MerchantIssueStamps grants stamps by scanned QR payload or directly by
// customer id or email.
func MerchantIssueStamps(svc stamps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stamps service unavailable"))
			return
		}
		merchantID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var body stamps.IssueRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.IssueStamps(r.Context(), merchantID, body, requestMeta(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, IssueStampsResponse{Success: true, IssueResult: result})
	}
}

// MerchantTransactions pages through the caller's ledger, newest first.
func MerchantTransactions(svc stamps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stamps service unavailable"))
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
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListMerchantTransactions(r.Context(), merchantID, cardID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func CustomerCards(svc stamps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stamps service unavailable"))
			return
		}
		customerID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		rows, err := svc.ListCustomerCards(r.Context(), customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if rows == nil {
			rows = []stamps.CustomerCardDTO{}
		}
		responses.WriteSuccess(w, rows)
	}
}

func CustomerCardTransactions(svc stamps.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stamps service unavailable"))
			return
		}
		customerID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		customerCardID, err := validators.ParseURLUUID(r, "customerCardId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListCustomerCardTransactions(r.Context(), customerID, customerCardID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
