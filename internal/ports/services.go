package ports

import (
	"context"
	"time"

	"github.com/taskmaster/notifier/internal/domain/entities"
	"github.com/taskmaster/notifier/internal/domain/notification"
)

// EmailTransport delivers a single plain-text message
type EmailTransport interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Dispatcher turns a notification kind into a message and sends it
type Dispatcher interface {
	Dispatch(ctx context.Context, kind notification.Kind, todo *entities.TodoItem) SendResult
}

// Processor is the single entry point every trigger calls into
type Processor interface {
	ProcessDue(ctx context.Context, todo *entities.TodoItem, now time.Time) (*ProcessResult, error)
	ProcessChange(ctx context.Context, doc, prior *entities.TodoItem, now time.Time) (*ProcessResult, error)
	ProcessByID(ctx context.Context, id string, now time.Time) (*ProcessResult, error)
	Sweep(ctx context.Context, now time.Time) (*SweepReport, error)
}

// SendResult is the outcome of one dispatch
type SendResult struct {
	Kind    notification.Kind `json:"kind"`
	To      string            `json:"to,omitempty"`
	Subject string            `json:"subject,omitempty"`
	Sent    bool              `json:"sent"`
	Err     error             `json:"-"`
}

// ProcessResult describes what happened to one item
type ProcessResult struct {
	TodoID    string                  `json:"todo_id"`
	Kind      notification.Kind       `json:"kind"`
	Change    notification.ChangeKind `json:"change,omitempty"`
	Sent      bool                    `json:"sent"`
	Persisted bool                    `json:"persisted"`
	Skipped   string                  `json:"skipped,omitempty"`
}

// SweepReport summarizes a timer sweep
type SweepReport struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Processed int           `json:"processed"`
	Sent      int           `json:"sent"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
}

// Request types

// EvaluateRequest accepts either a full document or an id to load
type EvaluateRequest struct {
	ID       string             `json:"id" validate:"required_without=Document"`
	Document *entities.TodoItem `json:"document" validate:"required_without=ID"`
	Now      *int64             `json:"now,omitempty" validate:"omitempty,gt=0"`
}

// ChangeRequest carries a change-feed style event posted over HTTP
type ChangeRequest struct {
	Document *entities.TodoItem `json:"document" validate:"required"`
	Prior    *entities.TodoItem `json:"prior,omitempty"`
}
