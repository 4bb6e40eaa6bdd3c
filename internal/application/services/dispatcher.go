package services

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/taskmaster/notifier/internal/domain/entities"
	"github.com/taskmaster/notifier/internal/domain/notification"
	"github.com/taskmaster/notifier/internal/infrastructure/config"
	"github.com/taskmaster/notifier/internal/infrastructure/logger"
	"github.com/taskmaster/notifier/internal/infrastructure/metrics"
	"github.com/taskmaster/notifier/internal/ports"
)

// DispatcherService renders notifications and hands them to the transport
type DispatcherService struct {
	transport ports.EmailTransport
	signature string
	validate  *validator.Validate
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

// NewDispatcherService creates a new dispatcher
func NewDispatcherService(transport ports.EmailTransport, cfg config.EmailConfig, m *metrics.Metrics, logger *logger.Logger) *DispatcherService {
	return &DispatcherService{
		transport: transport,
		signature: cfg.Signature,
		validate:  validator.New(),
		logger:    logger.WithComponent("dispatcher"),
		metrics:   m,
	}
}

var _ ports.Dispatcher = (*DispatcherService)(nil)

// Dispatch sends one notification. Failures are logged and returned in the
// result; nothing is retried.
func (s *DispatcherService) Dispatch(ctx context.Context, kind notification.Kind, todo *entities.TodoItem) ports.SendResult {
	result := ports.SendResult{Kind: kind}
	if todo == nil {
		result.Err = entities.ErrInvalidDocument
		return result
	}

	to := strings.TrimSpace(todo.Email)
	result.To = to
	if err := s.validate.Var(to, "required,email"); err != nil {
		result.Err = &entities.OpError{Class: entities.ErrMissingRecipient, Op: "dispatch " + string(kind), TodoID: todo.ID, Err: err}
		s.logger.WithTodo(todo.ID).Warnw("No usable recipient, skipping notification", "kind", kind, "email", todo.Email)
		s.metrics.ObserveFailure(string(kind), "missing_recipient")
		return result
	}

	subject, body, err := renderMessage(kind, todo, s.signature)
	if err != nil {
		result.Err = err
		s.logger.WithTodo(todo.ID).WithError(err).Error("Failed to render notification")
		s.metrics.ObserveFailure(string(kind), "render")
		return result
	}
	result.Subject = subject

	if err := s.transport.Send(ctx, to, subject, body); err != nil {
		if !errors.Is(err, entities.ErrTransport) && !errors.Is(err, entities.ErrMissingRecipient) {
			err = entities.TransportError("dispatch "+string(kind), todo.ID, err)
		}
		result.Err = err
		s.logger.LogNotification(todo.ID, string(kind), to, err)
		s.metrics.ObserveFailure(string(kind), "transport")
		return result
	}

	result.Sent = true
	s.logger.LogNotification(todo.ID, string(kind), to, nil)
	s.metrics.ObserveSent(string(kind))
	return result
}
