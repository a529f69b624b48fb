package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/sherlocker/sherlocker-backend/api/responses"
	billingsvc "github.com/sherlocker/sherlocker-backend/internal/billing"
	zyonpaywebhook "github.com/sherlocker/sherlocker-backend/internal/webhooks/zyonpay"
	pkgerrors "github.com/sherlocker/sherlocker-backend/pkg/errors"
	"github.com/sherlocker/sherlocker-backend/pkg/logger"
	"github.com/sherlocker/sherlocker-backend/pkg/metrics"
)

const (
	webhookBodyLimit     = 1 << 20
	msgInvalidPayload    = "Invalid webhook payload"
	msgProcessingFailed  = "Error processing webhook"
	msgDuplicateDelivery = "Payment already processed"

	outcomeProcessed = "processed"
	outcomeDuplicate = "duplicate"
	outcomeInvalid   = "invalid"
	outcomeRejected  = "rejected"
	outcomeError     = "error"
)

type PaymentWebhookService interface {
	HandlePaymentWebhook(ctx context.Context, input billingsvc.WebhookInput) (*billingsvc.WebhookResult, error)
}

type zyonPayWebhookGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Release(ctx context.Context, deliveryID string) error
}

// ZyonPayWebhook handles gateway transaction notifications. It always
// answers 200 so the gateway does not retry; the outcome is carried in the
// body. A nil guard disables replay suppression.
func ZyonPayWebhook(svc PaymentWebhookService, guard zyonPayWebhookGuard, m *metrics.BillingMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload zyonpaywebhook.Payload
		if err := json.NewDecoder(io.LimitReader(r.Body, webhookBodyLimit)).Decode(&payload); err != nil {
			m.IncWebhook("", outcomeInvalid)
			acknowledge(ctx, logg, w, false, msgInvalidPayload, err)
			return
		}
		gatewayStatus := strings.ToUpper(strings.TrimSpace(payload.Transaction.Status))

		notification, err := payload.Normalize()
		if err != nil {
			m.IncWebhook(gatewayStatus, outcomeInvalid)
			acknowledge(ctx, logg, w, false, publicMessage(err), err)
			return
		}
		ctx = logg.WithFields(ctx, map[string]any{
			"payment_id":     notification.PaymentID.String(),
			"transaction_id": notification.TransactionID,
			"gateway_status": gatewayStatus,
		})
		if svc == nil {
			m.IncWebhook(gatewayStatus, outcomeError)
			acknowledge(ctx, logg, w, false, msgProcessingFailed, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		deliveryID := zyonpaywebhook.DeliveryID(notification.TransactionID, notification.Status)
		if guard != nil && notification.Known {
			seen, err := guard.CheckAndMark(ctx, deliveryID)
			if err != nil {
				// The payment compare-and-set still rejects replays.
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook idempotency check failed")
				}
			} else if seen {
				m.IncWebhook(gatewayStatus, outcomeDuplicate)
				acknowledge(ctx, logg, w, true, msgDuplicateDelivery, nil)
				return
			}
		}

		result, err := svc.HandlePaymentWebhook(ctx, billingsvc.WebhookInput{
			PaymentID:     notification.PaymentID,
			TransactionID: notification.TransactionID,
			Status:        notification.Status,
			PaidAt:        notification.PaidAt,
		})
		if err != nil {
			outcome := outcomeRejected
			if pkgerrors.IsRetryable(err) {
				outcome = outcomeError
				if guard != nil && notification.Known {
					if relErr := guard.Release(ctx, deliveryID); relErr != nil {
						logg.Error(ctx, "release webhook idempotency key", relErr)
					}
				}
			}
			m.IncWebhook(gatewayStatus, outcome)
			acknowledge(ctx, logg, w, false, publicMessage(err), err)
			return
		}

		m.IncWebhook(gatewayStatus, outcomeProcessed)
		logg.Info(logg.WithField(ctx, "result", result.Message), "zyonpay webhook processed")
		responses.WriteJSON(w, http.StatusOK, result)
	}
}

func acknowledge(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, success bool, message string, err error) {
	if err != nil {
		logg.Error(ctx, "zyonpay webhook not applied", err)
	}
	responses.WriteJSON(w, http.StatusOK, billingsvc.WebhookResult{Success: success, Message: message})
}

func publicMessage(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil || pkgerrors.IsRetryable(typed) {
		return msgProcessingFailed
	}
	if msg := typed.Message(); msg != "" {
		return msg
	}
	return msgProcessingFailed
}
