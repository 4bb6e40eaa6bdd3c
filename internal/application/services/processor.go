package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/taskmaster/notifier/internal/domain/entities"
	"github.com/taskmaster/notifier/internal/domain/notification"
	"github.com/taskmaster/notifier/internal/infrastructure/config"
	"github.com/taskmaster/notifier/internal/infrastructure/logger"
	"github.com/taskmaster/notifier/internal/infrastructure/metrics"
	"github.com/taskmaster/notifier/internal/ports"
)

// Skip reasons reported in ProcessResult.Skipped
const (
	SkipCompleted     = "completed"
	SkipParseError    = "parse_error"
	SkipNoRecipient   = "missing_recipient"
	SkipSelfInflicted = "self_inflicted"
	SkipNothingDue    = "nothing_due"
)

// ProcessorService runs evaluate, dispatch and persist for one item at a
// time. Every trigger calls into it.
type ProcessorService struct {
	store       ports.TodoRepository
	dispatcher  ports.Dispatcher
	concurrency int
	itemTimeout time.Duration
	logger      *logger.Logger
	metrics     *metrics.Metrics
}

// NewProcessorService creates a new processor
func NewProcessorService(store ports.TodoRepository, dispatcher ports.Dispatcher, cfg config.SchedulerConfig, m *metrics.Metrics, logger *logger.Logger) *ProcessorService {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &ProcessorService{
		store:       store,
		dispatcher:  dispatcher,
		concurrency: concurrency,
		itemTimeout: cfg.ItemTimeout,
		logger:      logger.WithComponent("processor"),
		metrics:     m,
	}
}

var _ ports.Processor = (*ProcessorService)(nil)

// ProcessDue evaluates the due-date windows for todo and, when a notice is
// due, sends it and then persists the dedup state. State is written only
// after the transport accepted the message.
func (s *ProcessorService) ProcessDue(ctx context.Context, todo *entities.TodoItem, now time.Time) (*ports.ProcessResult, error) {
	if todo == nil {
		return nil, entities.ErrInvalidDocument
	}
	result := &ports.ProcessResult{TodoID: todo.ID, Kind: notification.KindNone}
	log := s.logger.WithTodo(todo.ID)

	if todo.IsCompleted() {
		result.Skipped = SkipCompleted
		return result, nil
	}

	decision, err := notification.Evaluate(todo, now)
	if err != nil {
		result.Skipped = SkipParseError
		log.WithError(err).Warn("Skipping todo with unreadable due date")
		s.metrics.ObserveFailure(string(notification.KindNone), "parse")
		return result, err
	}
	s.metrics.ObserveEvaluation(string(decision.Kind))

	if !decision.ShouldSend() {
		result.Skipped = SkipNothingDue
		return result, nil
	}
	result.Kind = decision.Kind

	return s.deliver(ctx, todo, decision, result)
}

// ProcessChange classifies a change event and sends the creation or update
// notice it calls for. prior may be nil.
func (s *ProcessorService) ProcessChange(ctx context.Context, doc, prior *entities.TodoItem, now time.Time) (*ports.ProcessResult, error) {
	if doc == nil {
		return nil, entities.ErrInvalidDocument
	}
	if doc.ID == "" {
		return nil, entities.ErrMissingID
	}
	result := &ports.ProcessResult{TodoID: doc.ID, Kind: notification.KindNone}
	log := s.logger.WithTodo(doc.ID)

	change := notification.Classify(doc, prior, now)
	result.Change = change
	s.metrics.ObserveChange(string(change))

	if change != notification.ChangeSelfInflicted && doc.IsCompleted() {
		result.Skipped = SkipCompleted
		return result, nil
	}

	switch change {
	case notification.ChangeSelfInflicted:
		log.Debug("Skipping change written by the notifier")
		result.Skipped = SkipSelfInflicted
		return result, nil

	case notification.ChangeNew:
		decision := notification.EvaluateNew(doc)
		if !decision.ShouldSend() {
			result.Skipped = SkipNothingDue
			return result, nil
		}
		result.Kind = decision.Kind
		log.Infow("Detected new todo", "created_at", doc.CreatedAt.Raw())
		return s.deliver(ctx, doc, decision, result)

	default:
		result.Kind = notification.KindContentUpdate
		return s.deliver(ctx, doc, notification.Decision{Kind: notification.KindContentUpdate}, result)
	}
}

// ProcessByID loads the item and runs ProcessDue on it.
func (s *ProcessorService) ProcessByID(ctx context.Context, id string, now time.Time) (*ports.ProcessResult, error) {
	if id == "" {
		return nil, entities.ErrMissingID
	}

	readCtx, cancel := s.itemContext(ctx)
	todo, err := s.store.GetByID(readCtx, id)
	cancel()
	if err != nil {
		return nil, err
	}

	return s.ProcessDue(ctx, todo, now)
}

// Sweep evaluates every stored item once. Items are handled independently
// with bounded parallelism; a failing item is logged and counted, never
// aborting the rest.
func (s *ProcessorService) Sweep(ctx context.Context, now time.Time) (*ports.SweepReport, error) {
	report := &ports.SweepReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log := s.logger.WithRun("timer", report.RunID)

	readCtx, cancel := s.itemContext(ctx)
	todos, err := s.store.GetAll(readCtx)
	cancel()
	if err != nil {
		log.WithError(err).Error("Failed to load todos for sweep")
		return report, err
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, todo := range todos {
		todo := todo
		g.Go(func() error {
			result, err := s.ProcessDue(ctx, todo, now)

			mu.Lock()
			defer mu.Unlock()
			report.Processed++
			if result != nil && result.Sent {
				report.Sent++
			}
			switch {
			case err == nil && result != nil && result.Skipped != "":
				report.Skipped++
			case err == nil:
			case isSkippable(err):
				report.Skipped++
			default:
				report.Failed++
				log.WithTodo(todo.ID).WithError(err).Error("Failed to process todo")
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(report.StartedAt)
	s.metrics.ObserveSweep(report.Duration, report.Sent, report.Skipped, report.Failed)
	log.Infow("Sweep finished",
		"processed", report.Processed,
		"sent", report.Sent,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration_ms", report.Duration.Milliseconds(),
	)

	return report, nil
}

// deliver dispatches decision and, once sent, persists its mutation.
func (s *ProcessorService) deliver(ctx context.Context, todo *entities.TodoItem, decision notification.Decision, result *ports.ProcessResult) (*ports.ProcessResult, error) {
	ctx, cancel := s.itemContext(ctx)
	defer cancel()

	sent := s.dispatcher.Dispatch(ctx, decision.Kind, todo)
	if sent.Err != nil {
		if errors.Is(sent.Err, entities.ErrMissingRecipient) {
			result.Skipped = SkipNoRecipient
		}
		return result, sent.Err
	}
	result.Sent = true

	if decision.Mutate == nil {
		return result, nil
	}

	if err := s.persist(ctx, todo, decision); err != nil {
		s.logger.WithTodo(todo.ID).WithError(err).Errorw("Notification sent but state not saved", "kind", decision.Kind)
		s.metrics.ObserveFailure(string(decision.Kind), "store")
		return result, err
	}
	result.Persisted = true
	return result, nil
}

// persist re-reads the item so the mutation lands on the freshest copy,
// falling back to the copy in hand when the store does not have it.
func (s *ProcessorService) persist(ctx context.Context, todo *entities.TodoItem, decision notification.Decision) error {
	current, err := s.store.GetByID(ctx, todo.ID)
	switch {
	case err == nil:
	case errors.Is(err, entities.ErrTodoNotFound):
		current = todo.Clone()
	default:
		return err
	}

	decision.Apply(current)
	if _, err := s.store.Upsert(ctx, current); err != nil {
		return err
	}
	return nil
}

func (s *ProcessorService) itemContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.itemTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.itemTimeout)
}

func isSkippable(err error) bool {
	return errors.Is(err, notification.ErrParse) || errors.Is(err, entities.ErrMissingRecipient)
}
