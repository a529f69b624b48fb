package enums

// PaymentStatus tracks the lifecycle of a single Pix charge. PENDING is the
// only non-terminal state.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusCanceled PaymentStatus = "CANCELED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

var paymentStatuses = []PaymentStatus{
	PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCanceled, PaymentStatusRefunded,
}

func (p PaymentStatus) IsValid() bool { return known(p, paymentStatuses) }

func (p PaymentStatus) IsTerminal() bool {
	return p.IsValid() && p != PaymentStatusPending
}
