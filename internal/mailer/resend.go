package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"

	"github.com/sherlocker/sherlocker-backend/pkg/config"
	"github.com/sherlocker/sherlocker-backend/pkg/logger"
)

type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendSender delivers messages through the Resend API.
type ResendSender struct {
	emails emailSender
}

// NewResendSender builds a sender from an API key.
func NewResendSender(apiKey string) (*ResendSender, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("resend api key required")
	}
	return &ResendSender{emails: resend.NewClient(apiKey).Emails}, nil
}

func (r *ResendSender) Send(ctx context.Context, msg Message) error {
	req := &resend.SendEmailRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	}
	for name, value := range msg.Tags {
		req.Tags = append(req.Tags, resend.Tag{Name: name, Value: value})
	}
	if _, err := r.emails.SendWithContext(ctx, req); err != nil {
		return fmt.Errorf("send email via resend: %w", err)
	}
	return nil
}

// LogSender records messages instead of delivering them. It backs local
// environments without a Resend key.
type LogSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

func (l *LogSender) Send(ctx context.Context, msg Message) error {
	logCtx := l.logg.WithFields(ctx, map[string]any{"to": msg.To, "subject": msg.Subject})
	l.logg.Info(logCtx, "email delivery skipped: no resend api key")
	return nil
}

// NewFromConfig picks the Resend sender when an API key is configured.
func NewFromConfig(cfg config.ResendConfig, logg *logger.Logger) (Mailer, error) {
	var sender Sender = NewLogSender(logg)
	if strings.TrimSpace(cfg.APIKey) != "" {
		resendSender, err := NewResendSender(cfg.APIKey)
		if err != nil {
			return nil, err
		}
		sender = resendSender
	}
	return New(sender, cfg.DefaultFrom, logg)
}
