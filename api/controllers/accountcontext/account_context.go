package accountcontext

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/sherlocker/sherlocker-backend/api/middleware"
	pkgerrors "github.com/sherlocker/sherlocker-backend/pkg/errors"
)

// ResolveAccountID extracts the authenticated account from the request.
func ResolveAccountID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.AccountIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "Unauthorized")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid account id")
	}
	return id, nil
}
