package services

import (
	"context"
	"sync"
	"time"

	"github.com/taskmaster/notifier/internal/domain/entities"
	"github.com/taskmaster/notifier/internal/infrastructure/config"
	"github.com/taskmaster/notifier/internal/infrastructure/logger"
	"github.com/taskmaster/notifier/internal/ports"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type memoryStore struct {
	mu        sync.Mutex
	items     map[string]*entities.TodoItem
	order     []string
	getAllErr error
	getErr    error
	upsertErr error
	upserts   int
}

func newMemoryStore(items ...*entities.TodoItem) *memoryStore {
	s := &memoryStore{items: map[string]*entities.TodoItem{}}
	for _, it := range items {
		s.items[it.ID] = it.Clone()
		s.order = append(s.order, it.ID)
	}
	return s
}

func (s *memoryStore) GetAll(ctx context.Context) ([]*entities.TodoItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getAllErr != nil {
		return nil, s.getAllErr
	}
	out := make([]*entities.TodoItem, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].Clone())
	}
	return out, nil
}

func (s *memoryStore) GetByID(ctx context.Context, id string) (*entities.TodoItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	it, ok := s.items[id]
	if !ok {
		return nil, entities.ErrTodoNotFound
	}
	return it.Clone(), nil
}

func (s *memoryStore) Find(ctx context.Context, filter ports.TodoFilter) ([]*entities.TodoItem, error) {
	return s.GetAll(ctx)
}

func (s *memoryStore) Upsert(ctx context.Context, todo *entities.TodoItem) (*entities.TodoItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	s.upserts++
	stored := todo.Clone()
	updated := entities.NewTimestamp(testNow.Add(time.Second))
	stored.UpdatedAt = &updated
	if prev, ok := s.items[todo.ID]; ok && prev.CreatedAt.IsSet() {
		stored.CreatedAt = prev.CreatedAt
	}
	if _, ok := s.items[todo.ID]; !ok {
		s.order = append(s.order, todo.ID)
	}
	s.items[todo.ID] = stored
	return stored.Clone(), nil
}

func (s *memoryStore) get(id string) *entities.TodoItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[id].Clone()
}

type sentMail struct {
	to, subject, body string
}

type recordingTransport struct {
	mu      sync.Mutex
	sent    []sentMail
	err     error
	failFor map[string]error
	block   bool
}

func (t *recordingTransport) Send(ctx context.Context, to, subject, body string) error {
	if t.block {
		<-ctx.Done()
		return ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err, ok := t.failFor[to]; ok {
		return err
	}
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (t *recordingTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

func newTestProcessor(store ports.TodoRepository, transport ports.EmailTransport) *ProcessorService {
	log := logger.NewNop()
	dispatcher := NewDispatcherService(transport, config.EmailConfig{Signature: "Test Todo App"}, nil, log)
	return NewProcessorService(store, dispatcher, config.SchedulerConfig{Concurrency: 3, ItemTimeout: time.Second}, nil, log)
}

func ts(t time.Time) *entities.Timestamp {
	v := entities.NewTimestamp(t)
	return &v
}

func boolp(b bool) *bool { return &b }

func todoDueIn(id string, d time.Duration) *entities.TodoItem {
	return &entities.TodoItem{
		ID:        id,
		Title:     "Task " + id,
		Assignee:  "Alice",
		Email:     id + "@example.com",
		Status:    entities.TodoStatusNotStarted,
		DueDate:   ts(testNow.Add(d)),
		CreatedAt: ts(testNow.Add(-72 * time.Hour)),
	}
}
