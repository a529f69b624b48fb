package billing

import (
	"context"
	"net/http"

	"github.com/sherlocker/sherlocker-backend/api/responses"
	"github.com/sherlocker/sherlocker-backend/internal/plans"
	pkgerrors "github.com/sherlocker/sherlocker-backend/pkg/errors"
	"github.com/sherlocker/sherlocker-backend/pkg/logger"
)

// PlanCatalog lists the plans offered to customers.
type PlanCatalog interface {
	ListActive(ctx context.Context) ([]plans.PlanDTO, error)
}

type planListResponse struct {
	Plans []plans.PlanDTO `json:"plans"`
}

func PlansList(svc PlanCatalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		list, err := svc.ListActive(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if list == nil {
			list = []plans.PlanDTO{}
		}
		responses.WriteSuccess(w, planListResponse{Plans: list})
	}
}
