// Package zyonpay creates Pix charges through the ZyonPay (HotPayy) gateway.
package zyonpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sherlocker/sherlocker-backend/pkg/config"
	pkgerrors "github.com/sherlocker/sherlocker-backend/pkg/errors"
)

const (
	defaultBaseURL       = "https://app.hotpayy.com/api/v1"
	defaultTimeout       = 15 * time.Second
	pixReceivePath       = "gateway/pix/receive"
	responseBodyLimit    = 1 << 20
	errorBodyReadLimit   = 4096
	StatusOK             = "OK"
	headerPublicKey      = "x-public-key"
	headerSecretKey      = "x-secret-key"
	dueDateLayout        = "2006-01-02"
	unknownGatewayReason = "unknown error"
)

var (
	errCredentialsRequired = errors.New("zyonpay public and secret keys are required")
	// ErrInvalidResponse is returned when a 2xx response lacks the transaction or pix data.
	ErrInvalidResponse = errors.New("invalid response from ZyonPay API")
)

// Gateway is the charge surface the billing use cases depend on.
type Gateway interface {
	CreatePixCharge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error)
}

// Client calls the ZyonPay REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	publicKey  string
	secretKey  string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds a gateway client from the ZyonPay credentials.
func NewClient(publicKey, secretKey string, opts ...Option) (*Client, error) {
	publicKey = strings.TrimSpace(publicKey)
	secretKey = strings.TrimSpace(secretKey)
	if publicKey == "" || secretKey == "" {
		return nil, errCredentialsRequired
	}

	client := &Client{
		publicKey:  publicKey,
		secretKey:  secretKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// NewClientFromConfig builds a client using the service configuration.
func NewClientFromConfig(cfg config.ZyonPayConfig) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewClient(cfg.PublicKey, cfg.SecretKey,
		WithBaseURL(cfg.BaseURL),
		WithHTTPClient(&http.Client{Timeout: timeout}),
	)
}

// Customer identifies the payer.
type Customer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Document string `json:"document"`
}

// Amount is a money value in major units (BRL) encoded as a bare JSON
// number, which is what the gateway accepts.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps d.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	return a.Decimal.UnmarshalJSON(data)
}

// Product is one line of the charge.
type Product struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price Amount `json:"price"`
}

// ChargeRequest describes a Pix charge.
type ChargeRequest struct {
	Identifier  string            `json:"identifier"`
	Amount      Amount            `json:"amount"`
	ShippingFee Amount            `json:"shippingFee"`
	ExtraFee    Amount            `json:"extraFee"`
	Discount    Amount            `json:"discount"`
	Client      Customer          `json:"client"`
	Products    []Product         `json:"products,omitempty"`
	DueDate     string            `json:"dueDate,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CallbackURL string            `json:"callbackUrl"`
}

// DueDate formats t the way the gateway expects.
func DueDate(t time.Time) string {
	return t.UTC().Format(dueDateLayout)
}

// PixData carries the payable Pix artifacts.
type PixData struct {
	Code      string `json:"code"`
	Base64    string `json:"base64"`
	Image     string `json:"image"`
	ExpiresAt string `json:"expiresAt"`
}

// ExpiresAtTime parses the expiry timestamp when the gateway sent one.
func (p PixData) ExpiresAtTime() *time.Time {
	if strings.TrimSpace(p.ExpiresAt) == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, p.ExpiresAt)
	if err != nil {
		return nil
	}
	utc := parsed.UTC()
	return &utc
}

// Order echoes the charged totals.
type Order struct {
	Identifier  string          `json:"identifier"`
	Amount      decimal.Decimal `json:"amount"`
	ShippingFee decimal.Decimal `json:"shippingFee"`
	ExtraFee    decimal.Decimal `json:"extraFee"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
}

// ChargeResponse is the gateway answer to a charge request.
type ChargeResponse struct {
	TransactionID    string          `json:"transactionId"`
	Status           string          `json:"status"`
	Fee              decimal.Decimal `json:"fee"`
	Order            Order           `json:"order"`
	Pix              *PixData        `json:"pix"`
	Details          string          `json:"details,omitempty"`
	ErrorDescription string          `json:"errorDescription,omitempty"`
}

// IsOK reports whether the gateway accepted the charge.
func (r *ChargeResponse) IsOK() bool {
	return r != nil && r.Status == StatusOK
}

// CreatePixCharge issues a single charge request. There is no retry; the
// HTTP client timeout bounds the call.
func (c *Client) CreatePixCharge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "zyonpay client not configured")
	}
	if strings.TrimSpace(req.Identifier) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge identifier is required")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal charge request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(pixReceivePath), bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build charge request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(headerPublicKey, c.publicKey)
	httpReq.Header.Set(headerSecretKey, c.secretKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute charge request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		reason := gatewayMessage(body, resp.Status)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, reason),
			"ZyonPay API error: "+reason)
	}

	var out ChargeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, responseBodyLimit)).Decode(&out); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode charge response")
	}
	if strings.TrimSpace(out.TransactionID) == "" || out.Pix == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, ErrInvalidResponse, ErrInvalidResponse.Error())
	}
	return &out, nil
}

func gatewayMessage(body []byte, fallback string) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && strings.TrimSpace(payload.Message) != "" {
		return strings.TrimSpace(payload.Message)
	}
	if strings.TrimSpace(fallback) != "" {
		return fallback
	}
	return unknownGatewayReason
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
