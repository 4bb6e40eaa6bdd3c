// Package email holds the outbound message transports.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"golang.org/x/time/rate"

	"github.com/taskmaster/notifier/internal/domain/entities"
	"github.com/taskmaster/notifier/internal/infrastructure/config"
	"github.com/taskmaster/notifier/internal/infrastructure/logger"
	"github.com/taskmaster/notifier/internal/ports"
)

type sendClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridTransport sends plain-text mail through the SendGrid v3 API
type SendGridTransport struct {
	client  sendClient
	from    *mail.Email
	cfg     config.EmailConfig
	limiter *rate.Limiter
	logger  *logger.Logger
}

// NewSendGridTransport creates a transport using cfg.APIKey
func NewSendGridTransport(cfg config.EmailConfig, log *logger.Logger) *SendGridTransport {
	return newSendGridTransport(sendgrid.NewSendClient(cfg.APIKey), cfg, log)
}

func newSendGridTransport(client sendClient, cfg config.EmailConfig, log *logger.Logger) *SendGridTransport {
	if log == nil {
		log = logger.NewNop()
	}
	return &SendGridTransport{
		client:  client,
		from:    mail.NewEmail(cfg.SenderName, cfg.SenderAddress),
		cfg:     cfg,
		limiter: newLimiter(cfg.RatePerSecond),
		logger:  log.WithComponent("sendgrid"),
	}
}

var _ ports.EmailTransport = (*SendGridTransport)(nil)

func (t *SendGridTransport) Send(ctx context.Context, to, subject, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return entities.ErrMissingRecipient
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return entities.TransportError("rate limit", "", err)
	}

	if t.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.SendTimeout)
		defer cancel()
	}

	resp, err := t.client.SendWithContext(ctx, buildMessage(t.from, to, subject, body))
	if err != nil {
		return entities.TransportError("send email", "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return entities.TransportError("send email", "", &StatusError{Code: resp.StatusCode, Body: resp.Body})
	}

	t.logger.Debugw("Email accepted", "to", to, "status", resp.StatusCode)
	return nil
}

// StatusError is a non-2xx answer from the provider
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Code, strings.TrimSpace(e.Body))
}

// IsStatus reports whether err carries a provider status equal to code
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

func buildMessage(from *mail.Email, to, subject, body string) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(from)
	m.Subject = subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail("", to))
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/plain", body))
	return m
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
