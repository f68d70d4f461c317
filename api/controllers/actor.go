package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/stampbook/stampbook-backend/api/middleware"
	"github.com/stampbook/stampbook-backend/api/responses"
	"github.com/stampbook/stampbook-backend/internal/stamps"
	pkgerrors "github.com/stampbook/stampbook-backend/pkg/errors"
	"github.com/stampbook/stampbook-backend/pkg/logger"
)

// requireActor writes an UNAUTHORIZED response and returns false when the
// request carries no usable identity.
func requireActor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	id, ok := middleware.ActorID(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return uuid.Nil, false
	}
	return id, true
}

func requestMeta(r *http.Request) stamps.RequestMeta {
	return stamps.RequestMeta{
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: middleware.RequestIDFromContext(r.Context()),
	}
}
