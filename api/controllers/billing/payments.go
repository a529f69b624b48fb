package billing

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/sherlocker/sherlocker-backend/api/controllers/accountcontext"
	"github.com/sherlocker/sherlocker-backend/api/responses"
	"github.com/sherlocker/sherlocker-backend/api/validators"
	billingsvc "github.com/sherlocker/sherlocker-backend/internal/billing"
	pkgerrors "github.com/sherlocker/sherlocker-backend/pkg/errors"
	"github.com/sherlocker/sherlocker-backend/pkg/logger"
)

// PaymentService describes the billing methods used by the payment controllers.
type PaymentService interface {
	CreatePixPayment(ctx context.Context, accountID, planID uuid.UUID) (*billingsvc.PixPaymentResult, error)
	CheckPaymentStatus(ctx context.Context, accountID uuid.UUID, pixCopyPaste string) (*billingsvc.PaymentStatusResult, error)
}

type createPixPaymentRequest struct {
	PlanID string `json:"planId" validate:"required,uuid"`
}

const pixCopyPasteMaxLen = 1024

type checkPaymentStatusRequest struct {
	PixCopyPaste string `json:"pixCopyPaste" validate:"required,max=1024"`
}

// CreatePixPayment issues a Pix charge for the requested plan.
func CreatePixPayment(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		accountID, err := accountcontext.ResolveAccountID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload createPixPaymentRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		planID, err := uuid.Parse(payload.PlanID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid planId"))
			return
		}

		result, err := svc.CreatePixPayment(ctx, accountID, planID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CheckPaymentStatus reports whether the charge identified by its Pix code
// was paid and, when it was, returns a refreshed access token.
func CheckPaymentStatus(svc PaymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		accountID, err := accountcontext.ResolveAccountID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload checkPaymentStatusRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		code, err := validators.PixCode("pixCopyPaste", payload.PixCopyPaste, pixCopyPasteMaxLen)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.CheckPaymentStatus(ctx, accountID, code)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
