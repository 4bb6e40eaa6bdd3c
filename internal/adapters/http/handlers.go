package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/taskmaster/notifier/internal/application/triggers"
	"github.com/taskmaster/notifier/internal/domain/entities"
	"github.com/taskmaster/notifier/internal/domain/notification"
	"github.com/taskmaster/notifier/internal/infrastructure/logger"
	"github.com/taskmaster/notifier/internal/ports"
)

// Sweeper runs one guarded sweep
type Sweeper interface {
	Tick(ctx context.Context) (*ports.SweepReport, error)
}

// ProcessResponse is returned by the evaluate and change endpoints
type ProcessResponse struct {
	Result *ports.ProcessResult `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// NotificationHandler exposes the processor over HTTP
type NotificationHandler struct {
	processor ports.Processor
	sweeper   Sweeper
	logger    *logger.Logger
	now       func() time.Time
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(processor ports.Processor, sweeper Sweeper, logger *logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		processor: processor,
		sweeper:   sweeper,
		logger:    logger.WithComponent("http_trigger"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate runs the due-date evaluation for a posted document, or for the
// stored item named by id
func (h *NotificationHandler) Evaluate(c echo.Context) error {
	var req ports.EvaluateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	now := h.now()
	if req.Now != nil {
		now = time.Unix(*req.Now, 0).UTC()
	}

	var (
		result *ports.ProcessResult
		err    error
	)
	if req.Document != nil {
		if req.Document.ID == "" {
			req.Document.ID = req.ID
		}
		result, err = h.processor.ProcessDue(c.Request().Context(), req.Document, now)
	} else {
		result, err = h.processor.ProcessByID(c.Request().Context(), req.ID, now)
	}

	return h.respond(c, result, err)
}

// Change runs change classification on a posted document
func (h *NotificationHandler) Change(c echo.Context) error {
	var req ports.ChangeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.processor.ProcessChange(c.Request().Context(), req.Document, req.Prior, h.now())
	return h.respond(c, result, err)
}

// Sweep runs one sweep immediately
func (h *NotificationHandler) Sweep(c echo.Context) error {
	report, err := h.sweeper.Tick(c.Request().Context())
	if err != nil {
		if errors.Is(err, triggers.ErrSweepInProgress) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		h.logger.WithError(err).Error("Sweep request failed")
		return echo.NewHTTPError(statusFor(err), "Sweep failed")
	}

	return c.JSON(http.StatusOK, report)
}

func (h *NotificationHandler) respond(c echo.Context, result *ports.ProcessResult, err error) error {
	if err == nil {
		return c.JSON(http.StatusOK, ProcessResponse{Result: result})
	}

	status := statusFor(err)
	if result == nil {
		return echo.NewHTTPError(status, err.Error())
	}

	if status >= http.StatusInternalServerError {
		h.logger.WithTodo(result.TodoID).WithError(err).Error("Notification request failed")
	}
	return c.JSON(status, ProcessResponse{Result: result, Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, entities.ErrTodoNotFound):
		return http.StatusNotFound
	case errors.Is(err, entities.ErrMissingID), errors.Is(err, entities.ErrInvalidDocument):
		return http.StatusBadRequest
	case errors.Is(err, notification.ErrParse), errors.Is(err, entities.ErrMissingRecipient):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entities.ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, entities.ErrStore), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
