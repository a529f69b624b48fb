package enums

// PaymentMethod describes how a charge is settled. Only Pix is issued today.
type PaymentMethod string

const PaymentMethodPix PaymentMethod = "PIX"

func (p PaymentMethod) IsValid() bool { return p == PaymentMethodPix }
