package ports

import (
	"context"
	"time"

	"github.com/taskmaster/notifier/internal/domain/entities"
)

// TodoRepository defines the document store operations the notifier needs
type TodoRepository interface {
	GetAll(ctx context.Context) ([]*entities.TodoItem, error)
	GetByID(ctx context.Context, id string) (*entities.TodoItem, error)
	Find(ctx context.Context, filter TodoFilter) ([]*entities.TodoItem, error)
	// Upsert refreshes updated_at, sets created_at on first insert and
	// otherwise keeps the stored created_at.
	Upsert(ctx context.Context, todo *entities.TodoItem) (*entities.TodoItem, error)
}

// TodoFilter narrows a Find query. Zero values do not filter.
type TodoFilter struct {
	PartitionKey     string
	ExcludeCompleted bool
	Statuses         []entities.TodoStatus
	DueBefore        *time.Time
	DueAfter         *time.Time
	Limit            int
}

// ChangeEvent is one recorded mutation of a todo document.
type ChangeEvent struct {
	Seq       int64
	TodoID    string
	Operation string
	Document  *entities.TodoItem
	Prior     *entities.TodoItem
	ChangedAt time.Time
}

// ChangeFeedRepository reads the change log written by the store trigger
// and tracks per-consumer progress through it.
type ChangeFeedRepository interface {
	Pending(ctx context.Context, afterSeq int64, limit int) ([]ChangeEvent, error)
	Checkpoint(ctx context.Context, consumer string) (int64, error)
	SaveCheckpoint(ctx context.Context, consumer string, seq int64) error
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// Lease guards a named job so overlapping runs across instances skip.
type Lease interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}
