package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sherlocker/sherlocker-backend/internal/accounts"
	"github.com/sherlocker/sherlocker-backend/internal/gateway/zyonpay"
	"github.com/sherlocker/sherlocker-backend/internal/payments"
	"github.com/sherlocker/sherlocker-backend/pkg/db/models"
	pkgerrors "github.com/sherlocker/sherlocker-backend/pkg/errors"
)

const (
	chargeKindInitial   = "initial"
	chargeKindRecurring = "recurring"

	msgGatewayRejected = "Failed to create Pix payment with gateway"
	msgChargeFailed    = "Failed to create Pix payment. Please try again later."
)

// chargeInput collects what a single gateway charge needs.
type chargeInput struct {
	payment      *models.Payment
	subscription *models.Subscription
	plan         *models.Plan
	profile      *accounts.BillingProfile
	dueDays      int
	recurring    bool
}

// requestCharge issues one Pix charge for the payment and returns the
// gateway data to persist. Any failure is an application error.
func (s *service) requestCharge(ctx context.Context, in chargeInput) (*zyonpay.ChargeResponse, payments.ChargeDetails, error) {
	now := s.clock()
	price := zyonpay.NewAmount(in.plan.Price())
	zero := zyonpay.NewAmount(decimal.Zero)

	metadata := map[string]string{
		"subscriptionId": in.subscription.ID.String(),
		"authId":         in.subscription.AccountID.String(),
	}
	if in.recurring {
		metadata["paymentId"] = in.payment.ID.String()
		metadata["isRecurringCharge"] = "true"
	}

	req := zyonpay.ChargeRequest{
		Identifier:  in.payment.ID.String(),
		Amount:      price,
		ShippingFee: zero,
		ExtraFee:    zero,
		Discount:    zero,
		Client: zyonpay.Customer{
			Name:     in.profile.Name,
			Email:    in.profile.Email,
			Phone:    in.profile.Phone,
			Document: in.profile.Document,
		},
		Products: []zyonpay.Product{{
			ID:    in.plan.ID.String(),
			Name:  in.plan.Name,
			Price: price,
		}},
		DueDate:     zyonpay.DueDate(now.AddDate(0, 0, in.dueDays)),
		Metadata:    metadata,
		CallbackURL: s.callbackURL,
	}

	started := time.Now()
	resp, err := s.gateway.CreatePixCharge(ctx, req)
	if err != nil {
		s.metrics.ObserveGateway("error", time.Since(started))
		return nil, payments.ChargeDetails{}, pkgerrors.Wrap(pkgerrors.CodeApplication, err, msgChargeFailed)
	}
	if !resp.IsOK() || resp.TransactionID == "" || resp.Pix == nil {
		s.metrics.ObserveGateway("rejected", time.Since(started))
		return nil, payments.ChargeDetails{}, pkgerrors.New(pkgerrors.CodeApplication, msgGatewayRejected).
			WithDetails(map[string]any{"status": resp.Status})
	}
	s.metrics.ObserveGateway("ok", time.Since(started))

	return resp, payments.ChargeDetails{
		TransactionID: resp.TransactionID,
		QRCode:        resp.Pix.Base64,
		CopyPaste:     resp.Pix.Code,
		ExpiresAt:     resp.Pix.ExpiresAtTime(),
	}, nil
}
