package controllers

import (
	"net/http"

	"github.com/stampbook/stampbook-backend/api/responses"
	"github.com/stampbook/stampbook-backend/api/validators"
	"github.com/stampbook/stampbook-backend/internal/rewards"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stampbook/stampbook-backend/pkg/logger"
)

// RedeemRewardResponse is flat like the issuance response.
type RedeemRewardResponse struct {
	Success bool `json:"success"`
	*rewards.RedeemResult
}

// MerchantRedeemReward consumes a reward code at the caller's counter.
func MerchantRedeemReward(svc rewards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rewards service unavailable"))
			return
		}
		merchantID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var body rewards.RedeemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Redeem(r.Context(), merchantID, body, requestMeta(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteJSON(w, http.StatusOK, RedeemRewardResponse{Success: true, RedeemResult: result})
	}
}

// CustomerClaimReward resets a completed card and hands the customer the
// pending reward code.
func CustomerClaimReward(svc rewards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rewards service unavailable"))
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

		result, err := svc.Claim(r.Context(), customerID, customerCardID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func CustomerRewards(svc rewards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rewards service unavailable"))
			return
		}
		customerID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		grants, err := svc.ListGrants(r.Context(), customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if grants == nil {
			grants = []rewards.GrantDTO{}
		}
		responses.WriteSuccess(w, grants)
	}
}
