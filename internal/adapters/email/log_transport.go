package email

import (
	"context"
	"strings"
	"sync"

	"github.com/taskmaster/notifier/internal/domain/entities"
	"github.com/taskmaster/notifier/internal/infrastructure/config"
	"github.com/taskmaster/notifier/internal/infrastructure/logger"
	"github.com/taskmaster/notifier/internal/ports"
)

// Message is one email handed to a transport
type Message struct {
	To      string
	Subject string
	Body    string
}

// LogTransport writes messages to the log instead of sending them.
// Used for dry runs and local development.
type LogTransport struct {
	logger *logger.Logger

	mu   sync.Mutex
	sent []Message
}

func NewLogTransport(log *logger.Logger) *LogTransport {
	if log == nil {
		log = logger.NewNop()
	}
	return &LogTransport{logger: log.WithComponent("log_transport")}
}

var _ ports.EmailTransport = (*LogTransport)(nil)

func (t *LogTransport) Send(ctx context.Context, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return entities.ErrMissingRecipient
	}
	if err := ctx.Err(); err != nil {
		return entities.TransportError("send email", "", err)
	}

	t.mu.Lock()
	t.sent = append(t.sent, Message{To: to, Subject: subject, Body: body})
	t.mu.Unlock()

	t.logger.Infow("Email not sent (log transport)", "to", to, "subject", subject, "body_bytes", len(body))
	return nil
}

// Sent returns a copy of every message accepted so far
func (t *LogTransport) Sent() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Message(nil), t.sent...)
}

// NewTransport picks the transport named by cfg.Provider
func NewTransport(cfg config.EmailConfig, log *logger.Logger) ports.EmailTransport {
	if cfg.Provider == "log" {
		return NewLogTransport(log)
	}
	return NewSendGridTransport(cfg, log)
}
