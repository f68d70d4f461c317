package controllers

import (
	"net/http"

	"github.com/stampbook/stampbook-backend/api/responses"
	"github.com/stampbook/stampbook-backend/api/validators"
	"github.com/stampbook/stampbook-backend/internal/cards"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stampbook/stampbook-backend/pkg/logger"
)

// MerchantCreateCard defines a new stamp card owned by the caller.
func MerchantCreateCard(svc cards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cards service unavailable"))
			return
		}
		merchantID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var body cards.CreateCardInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		card, err := svc.Create(r.Context(), merchantID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, cards.FromModel(card))
	}
}

func MerchantListCards(svc cards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cards service unavailable"))
			return
		}
		merchantID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		rows, err := svc.ListForMerchant(r.Context(), merchantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]*cards.CardDTO, 0, len(rows))
		for i := range rows {
			out = append(out, cards.FromModel(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// MerchantUpdateCard patches the editable fields of an owned card.
func MerchantUpdateCard(svc cards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cards service unavailable"))
			return
		}
		merchantID, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		cardID, err := validators.ParseURLUUID(r, "cardId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body cards.UpdateCardInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		card, err := svc.Update(r.Context(), merchantID, cardID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cards.FromModel(card))
	}
}
