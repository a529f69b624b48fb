// Package mailer renders and sends the billing notification emails.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sherlocker/sherlocker-backend/pkg/logger"
)

const (
	subjectPaymentConfirmed = "Pagamento Confirmado - Sherlocker"
	subjectPaymentExpired   = "Assinatura Cancelada - Pagamento Não Realizado"
	subjectRecurringCharge  = "Nova cobrança da sua assinatura - %s"
	dateLayout              = "02/01/2006"
)

//go:embed templates/*.html
var templateFS embed.FS

// Message is a rendered email ready for delivery.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Tags    map[string]string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Mailer is the notification surface billing depends on. Callers treat
// every send as best effort.
type Mailer interface {
	SendPaymentConfirmation(ctx context.Context, input PaymentConfirmation) error
	SendRecurringCharge(ctx context.Context, input RecurringCharge) error
	SendPaymentExpired(ctx context.Context, input PaymentExpired) error
}

// PaymentConfirmation is sent after a webhook activates a subscription.
type PaymentConfirmation struct {
	To          string
	Name        string
	PlanName    string
	AmountCents int64
	EndDate     time.Time
}

// RecurringCharge carries the Pix data of a renewal charge.
type RecurringCharge struct {
	To           string
	Name         string
	PlanName     string
	AmountCents  int64
	DueDate      time.Time
	QRCodeBase64 string
	CopyPaste    string
}

// PaymentExpired tells the account its subscription was canceled.
type PaymentExpired struct {
	To             string
	Name           string
	PlanName       string
	AmountCents    int64
	ChargedAt      time.Time
	ExpirationDays int
}

type service struct {
	sender Sender
	from   string
	logg   *logger.Logger
	tmpl   map[string]*template.Template
}

// New builds a Mailer that renders the embedded templates and hands them to sender.
func New(sender Sender, from string, logg *logger.Logger) (Mailer, error) {
	if sender == nil {
		return nil, errors.New("mail sender required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, errors.New("from address required")
	}

	tmpl := map[string]*template.Template{}
	for _, name := range []string{"payment_confirmation", "recurring_charge", "payment_expired"} {
		parsed, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		tmpl[name] = parsed
	}
	return &service{sender: sender, from: from, logg: logg, tmpl: tmpl}, nil
}

func (s *service) SendPaymentConfirmation(ctx context.Context, input PaymentConfirmation) error {
	return s.send(ctx, input.To, subjectPaymentConfirmed, "payment_confirmation", "payment_confirmed", map[string]any{
		"Title":    "Pagamento Confirmado",
		"Name":     input.Name,
		"PlanName": input.PlanName,
		"Amount":   formatBRL(input.AmountCents),
		"EndDate":  input.EndDate.UTC().Format(dateLayout),
	})
}

func (s *service) SendRecurringCharge(ctx context.Context, input RecurringCharge) error {
	return s.send(ctx, input.To, fmt.Sprintf(subjectRecurringCharge, input.PlanName), "recurring_charge", "recurring_charge", map[string]any{
		"Title":        "Nova Cobrança",
		"Name":         input.Name,
		"PlanName":     input.PlanName,
		"Amount":       formatBRL(input.AmountCents),
		"DueDate":      input.DueDate.UTC().Format(dateLayout),
		"QRCodeBase64": input.QRCodeBase64,
		"QRCodeSrc":    qrCodeSource(input.QRCodeBase64),
		"CopyPaste":    input.CopyPaste,
	})
}

func (s *service) SendPaymentExpired(ctx context.Context, input PaymentExpired) error {
	return s.send(ctx, input.To, subjectPaymentExpired, "payment_expired", "payment_expired", map[string]any{
		"Title":          "Assinatura Cancelada",
		"Name":           input.Name,
		"PlanName":       input.PlanName,
		"Amount":         formatBRL(input.AmountCents),
		"ChargedAt":      input.ChargedAt.UTC().Format(dateLayout),
		"ExpirationDays": input.ExpirationDays,
	})
}

func (s *service) send(ctx context.Context, to, subject, name, tag string, data map[string]any) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("recipient required")
	}
	var buf bytes.Buffer
	if err := s.tmpl[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	err := s.sender.Send(ctx, Message{
		From:    s.from,
		To:      to,
		Subject: subject,
		HTML:    buf.String(),
		Tags:    map[string]string{"category": tag},
	})
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "email_template", name), "email delivery failed", err)
	}
	return err
}

func formatBRL(cents int64) string {
	return strings.Replace(decimal.New(cents, -2).StringFixed(2), ".", ",", 1)
}

// qrCodeSource accepts either a bare base64 payload or a full data URI.
func qrCodeSource(encoded string) template.URL {
	if encoded == "" {
		return ""
	}
	if strings.HasPrefix(encoded, "data:") {
		return template.URL(encoded)
	}
	return template.URL("data:image/png;base64," + encoded)
}
