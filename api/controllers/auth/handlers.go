package auth

import (
	"context"
	"net/http"

	"github.com/stampbook/stampbook-backend/api/responses"
	"github.com/stampbook/stampbook-backend/api/validators"
	"github.com/stampbook/stampbook-backend/internal/auth"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stampbook/stampbook-backend/pkg/logger"
)

// tokenCall is the shared shape of login and register.
type tokenCall[T any] func(ctx context.Context, req T) (*auth.TokenResponse, error)

// AuthLogin exchanges email and password for an access token.
func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("auth service unavailable", logg)
	}
	return tokenHandler(svc.Login, http.StatusOK, "auth.login.succeeded", logg)
}

// AuthRegister creates an account and returns a token for it. Registering a
// customer attaches stamps collected under the same email before signup.
func AuthRegister(svc auth.RegisterService, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("register service unavailable", logg)
	}
	return tokenHandler(svc.Register, http.StatusCreated, "auth.register.succeeded", logg)
}

func tokenHandler[T any](call tokenCall[T], status int, event string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body T
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := call(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if logg != nil && result != nil && result.User != nil {
			ctx := logg.WithUserID(r.Context(), result.User.ID.String())
			ctx = logg.WithActorRole(ctx, string(result.User.Role))
			if result.MergedPendingCustomer {
				ctx = logg.WithField(ctx, "merged_pending_customer", true)
			}
			logg.Info(ctx, event)
		}

		// tokens must not end up in shared caches
		w.Header().Set("Cache-Control", "no-store")
		responses.WriteSuccessStatus(w, status, result)
	}
}

func unavailable(msg string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, msg))
	}
}
