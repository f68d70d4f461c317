package middleware

import (
	"net/http"
	"strings"

	"github.com/stampbook/stampbook-backend/api/responses"
	pkgAuth "github.com/stampbook/stampbook-backend/pkg/auth"
	"github.com/stampbook/stampbook-backend/pkg/config"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stampbook/stampbook-backend/pkg/logger"
)

const bearerScheme = "bearer"

// Auth requires a Bearer access token. The user id and role from its claims
// are placed on the request context and the log context.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				rejectUnauthorized(w, r, logg, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				rejectUnauthorized(w, r, logg, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if !claims.Role.IsValid() {
				rejectUnauthorized(w, r, logg, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid role claim"))
				return
			}

			userID := claims.UserID.String()
			ctx := WithRole(WithUserID(r.Context(), userID), string(claims.Role))
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithUserID(ctx, userID), string(claims.Role))
				if claims.ID != "" {
					ctx = logg.WithField(ctx, "token_id", claims.ID)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the credentials of an "Authorization: Bearer <token>"
// header. Other schemes are refused.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func rejectUnauthorized(w http.ResponseWriter, r *http.Request, logg *logger.Logger, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="stampbook"`)
	responses.WriteError(r.Context(), logg, w, err)
}
