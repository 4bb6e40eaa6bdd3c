package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/taskmaster/notifier/internal/domain/entities"
	"github.com/taskmaster/notifier/internal/infrastructure/logger"
	"github.com/taskmaster/notifier/internal/ports"
)

// TodoRepositoryImpl implements ports.TodoRepository on a Postgres table
// holding one JSONB document per todo.
type TodoRepositoryImpl struct {
	db           *sqlx.DB
	partitionKey string
	logger       *logger.Logger
	now          func() time.Time
}

type todoRow struct {
	ID           string `db:"id"`
	PartitionKey string `db:"partition_key"`
	Doc          []byte `db:"doc"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

// NewTodoRepository creates a new todo repository
func NewTodoRepository(db *sqlx.DB, partitionKey string, log *logger.Logger) *TodoRepositoryImpl {
	if partitionKey == "" {
		partitionKey = entities.DefaultPartitionKey
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &TodoRepositoryImpl{
		db:           db,
		partitionKey: partitionKey,
		logger:       log.WithComponent("todo_repository"),
		now:          time.Now,
	}
}

var _ ports.TodoRepository = (*TodoRepositoryImpl)(nil)

const selectTodos = `
		SELECT id, partition_key, doc, created_at, updated_at
		FROM todos`

// GetAll returns every todo in the configured partition, newest first.
// Documents that cannot be decoded are logged and left out.
func (r *TodoRepositoryImpl) GetAll(ctx context.Context) ([]*entities.TodoItem, error) {
	return r.Find(ctx, ports.TodoFilter{})
}

func (r *TodoRepositoryImpl) GetByID(ctx context.Context, id string) (*entities.TodoItem, error) {
	if id == "" {
		return nil, entities.ErrMissingID
	}

	query := selectTodos + `
		WHERE id = $1`

	var row todoRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entities.ErrTodoNotFound
		}
		return nil, entities.StoreError("get todo", id, err)
	}

	todo, err := row.decode()
	if err != nil {
		return nil, entities.StoreError("decode todo", id, err)
	}
	return todo, nil
}

// Find loads the partition and applies the remaining filter fields in Go.
// Status and due_date come in several spellings and encodings, so they are
// matched after decoding rather than in SQL.
func (r *TodoRepositoryImpl) Find(ctx context.Context, filter ports.TodoFilter) ([]*entities.TodoItem, error) {
	partition := filter.PartitionKey
	if partition == "" {
		partition = r.partitionKey
	}

	query := selectTodos + `
		WHERE partition_key = $1
		ORDER BY created_at DESC, id`

	var rows []todoRow
	start := time.Now()
	err := r.db.SelectContext(ctx, &rows, query, partition)
	r.logger.LogDatabaseQuery("list todos", elapsedMs(start), err)
	if err != nil {
		return nil, entities.StoreError("list todos", "", err)
	}

	todos := make([]*entities.TodoItem, 0, len(rows))
	for _, row := range rows {
		todo, err := row.decode()
		if err != nil {
			r.logger.WithTodo(row.ID).WithError(err).Warn("Skipping undecodable todo document")
			continue
		}
		if !matches(todo, filter) {
			continue
		}
		todos = append(todos, todo)
		if filter.Limit > 0 && len(todos) >= filter.Limit {
			break
		}
	}

	return todos, nil
}

// Upsert writes the whole document. updated_at is always refreshed and the
// created_at already stored for the id wins over the incoming one.
func (r *TodoRepositoryImpl) Upsert(ctx context.Context, todo *entities.TodoItem) (*entities.TodoItem, error) {
	if todo == nil || todo.ID == "" {
		return nil, entities.ErrMissingID
	}

	doc := todo.Clone()
	if doc.PartitionKey == "" {
		doc.PartitionKey = r.partitionKey
	}
	now := entities.NewTimestamp(r.now())
	doc.UpdatedAt = &now
	if !doc.CreatedAt.IsSet() || doc.CreatedAt.Unix() == 0 {
		created := now
		doc.CreatedAt = &created
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrInvalidDocument, err)
	}

	query := `
		INSERT INTO todos (id, partition_key, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET partition_key = EXCLUDED.partition_key,
			doc = jsonb_set(EXCLUDED.doc, '{created_at}', to_jsonb(todos.created_at)),
			updated_at = EXCLUDED.updated_at
		RETURNING id, partition_key, doc, created_at, updated_at`

	var row todoRow
	start := time.Now()
	err = r.db.QueryRowxContext(ctx, query,
		doc.ID, doc.PartitionKey, payload, doc.CreatedAt.Unix(), doc.UpdatedAt.Unix(),
	).StructScan(&row)
	r.logger.WithTodo(doc.ID).LogDatabaseQuery("upsert todo", elapsedMs(start), err)
	if err != nil {
		return nil, entities.StoreError("upsert todo", doc.ID, err)
	}

	stored, err := row.decode()
	if err != nil {
		return nil, entities.StoreError("decode todo", doc.ID, err)
	}
	return stored, nil
}

func (row todoRow) decode() (*entities.TodoItem, error) {
	var todo entities.TodoItem
	if err := json.Unmarshal(row.Doc, &todo); err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrInvalidDocument, err)
	}
	todo.ID = row.ID
	if todo.PartitionKey == "" {
		todo.PartitionKey = row.PartitionKey
	}
	if !todo.CreatedAt.IsSet() && row.CreatedAt > 0 {
		ts := entities.TimestampFromUnix(row.CreatedAt)
		todo.CreatedAt = &ts
	}
	if !todo.UpdatedAt.IsSet() && row.UpdatedAt > 0 {
		ts := entities.TimestampFromUnix(row.UpdatedAt)
		todo.UpdatedAt = &ts
	}
	return &todo, nil
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

func matches(todo *entities.TodoItem, filter ports.TodoFilter) bool {
	if filter.ExcludeCompleted && todo.IsCompleted() {
		return false
	}

	if len(filter.Statuses) > 0 {
		status := entities.ParseTodoStatus(string(todo.Status))
		found := false
		for _, s := range filter.Statuses {
			if entities.ParseTodoStatus(string(s)) == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.DueBefore != nil || filter.DueAfter != nil {
		due, err := todo.DueDate.Time()
		if err != nil {
			return false
		}
		if filter.DueBefore != nil && !due.Before(*filter.DueBefore) {
			return false
		}
		if filter.DueAfter != nil && !due.After(*filter.DueAfter) {
			return false
		}
	}

	return true
}
