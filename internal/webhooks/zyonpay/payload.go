package zyonpaywebhook

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sherlocker/sherlocker-backend/pkg/enums"
	pkgerrors "github.com/sherlocker/sherlocker-backend/pkg/errors"
)

// Payload is the gateway's transaction notification. Only the fields the
// billing flow reads are typed; everything else is kept raw.
type Payload struct {
	Event       string          `json:"event"`
	Token       *string         `json:"token,omitempty"`
	Client      *Client         `json:"client,omitempty"`
	Transaction Transaction     `json:"transaction"`
	TrackProps  *TrackProps     `json:"trackProps,omitempty"`
	OrderItems  json.RawMessage `json:"orderItems,omitempty"`
}

type Client struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Phone *string `json:"phone,omitempty"`
	CPF   *string `json:"cpf,omitempty"`
	CNPJ  *string `json:"cnpj,omitempty"`
}

type Transaction struct {
	ID             string          `json:"id"`
	Identifier     string          `json:"identifier"`
	Status         string          `json:"status"`
	PaymentMethod  string          `json:"paymentMethod"`
	Amount         json.Number     `json:"amount"`
	Currency       string          `json:"currency"`
	CreatedAt      string          `json:"createdAt"`
	PayedAt        *string         `json:"payedAt,omitempty"`
	PixInformation json.RawMessage `json:"pixInformation,omitempty"`
}

type TrackProps struct {
	AuthID         string `json:"authId"`
	SubscriptionID string `json:"subscriptionId"`
	IsUpsell       bool   `json:"isUpsell,omitempty"`
}

// Notification is the normalized form handed to the billing use case.
type Notification struct {
	PaymentID     uuid.UUID
	TransactionID string
	Status        enums.PaymentStatus
	// Known is false when the gateway status has no internal equivalent.
	Known  bool
	PaidAt *time.Time
}

// Normalize validates the payload and maps the gateway status.
func (p Payload) Normalize() (*Notification, error) {
	identifier := strings.TrimSpace(p.Transaction.Identifier)
	if identifier == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction identifier is required")
	}
	paymentID, err := uuid.Parse(identifier)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction identifier must be a payment id")
	}
	transactionID := strings.TrimSpace(p.Transaction.ID)
	if transactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}

	status, known := enums.GatewayTransactionStatus(strings.ToUpper(strings.TrimSpace(p.Transaction.Status))).PaymentStatus()
	return &Notification{
		PaymentID:     paymentID,
		TransactionID: transactionID,
		Status:        status,
		Known:         known,
		PaidAt:        parsePaidAt(p.Transaction.PayedAt),
	}, nil
}

var paidAtLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

func parsePaidAt(raw *string) *time.Time {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	for _, layout := range paidAtLayouts {
		if parsed, err := time.Parse(layout, strings.TrimSpace(*raw)); err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}
	return nil
}
