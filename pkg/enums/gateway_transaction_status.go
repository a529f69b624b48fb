package enums

// GatewayTransactionStatus is the status vocabulary ZyonPay uses in webhooks.
type GatewayTransactionStatus string

const (
	GatewayStatusPending   GatewayTransactionStatus = "PENDING"
	GatewayStatusCompleted GatewayTransactionStatus = "COMPLETED"
	GatewayStatusFailed    GatewayTransactionStatus = "FAILED"
	GatewayStatusCanceled  GatewayTransactionStatus = "CANCELED"
	GatewayStatusRefunded  GatewayTransactionStatus = "REFUNDED"
)

var gatewayToPaymentStatus = map[GatewayTransactionStatus]PaymentStatus{
	GatewayStatusPending:   PaymentStatusPending,
	GatewayStatusCompleted: PaymentStatusPaid,
	GatewayStatusFailed:    PaymentStatusFailed,
	GatewayStatusCanceled:  PaymentStatusCanceled,
	GatewayStatusRefunded:  PaymentStatusRefunded,
}

// PaymentStatus maps the gateway status onto the local payment vocabulary.
// The boolean is false for statuses the gateway may add later.
func (g GatewayTransactionStatus) PaymentStatus() (PaymentStatus, bool) {
	status, ok := gatewayToPaymentStatus[g]
	return status, ok
}
