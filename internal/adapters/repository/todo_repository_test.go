package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/taskmaster/notifier/internal/domain/entities"
	"github.com/taskmaster/notifier/internal/infrastructure/logger"
	"github.com/taskmaster/notifier/internal/ports"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var todoColumns = []string{"id", "partition_key", "doc", "created_at", "updated_at"}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestGetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTodoRepository(db, "", nil)

	mock.ExpectQuery(`SELECT id, partition_key, doc, created_at, updated_at\s+FROM todos\s+WHERE id = \$1`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows(todoColumns).
			AddRow("t1", "family_todos", []byte(`{"title":"Buy milk","due_date":1700000000,"reminder_24h_sent":true}`), 1600000000, 1600000100))

	todo, err := repo.GetByID(context.Background(), "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if todo.ID != "t1" || todo.Title != "Buy milk" || !todo.HasReceived24hReminder() {
		t.Fatalf("unexpected todo %+v", todo)
	}
	if todo.CreatedAt.Unix() != 1600000000 {
		t.Fatalf("created_at not filled from column: %d", todo.CreatedAt.Unix())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTodoRepository(db, "", nil)

	mock.ExpectQuery(`FROM todos`).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, entities.ErrTodoNotFound) {
		t.Fatalf("expected ErrTodoNotFound, got %v", err)
	}
}

func TestGetByIDStoreFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTodoRepository(db, "", nil)

	mock.ExpectQuery(`FROM todos`).WithArgs("t1").WillReturnError(errors.New("connection reset"))

	_, err := repo.GetByID(context.Background(), "t1")
	if !errors.Is(err, entities.ErrStore) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestGetAllSkipsUndecodableDocuments(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTodoRepository(db, "family_todos", nil)

	mock.ExpectQuery(`WHERE partition_key = \$1`).
		WithArgs("family_todos").
		WillReturnRows(sqlmock.NewRows(todoColumns).
			AddRow("a", "family_todos", []byte(`{"title":"ok"}`), 2, 2).
			AddRow("b", "family_todos", []byte(`{"title":42}`), 1, 1).
			AddRow("c", "family_todos", []byte(`{"title":"also ok"}`), 0, 0))

	todos, err := repo.GetAll(context.Background())
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(todos) != 2 || todos[0].ID != "a" || todos[1].ID != "c" {
		t.Fatalf("unexpected todos %+v", todos)
	}
}

func TestFindFiltersInGo(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTodoRepository(db, "family_todos", nil)

	mock.ExpectQuery(`WHERE partition_key = \$1`).
		WithArgs("other").
		WillReturnRows(sqlmock.NewRows(todoColumns).
			AddRow("done", "other", []byte(`{"status":"done","due_date":100}`), 1, 1).
			AddRow("late", "other", []byte(`{"status":"Pending","due_date":100}`), 1, 1).
			AddRow("soon", "other", []byte(`{"status":"InProgress","due_date":5000}`), 1, 1).
			AddRow("nodue", "other", []byte(`{"status":"NotStarted"}`), 1, 1))

	before := time.Unix(1000, 0)
	todos, err := repo.Find(context.Background(), ports.TodoFilter{
		PartitionKey:     "other",
		ExcludeCompleted: true,
		DueBefore:        &before,
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(todos) != 1 || todos[0].ID != "late" {
		t.Fatalf("unexpected todos %+v", todos)
	}
}

func TestFindByStatusAndLimit(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTodoRepository(db, "", nil)

	mock.ExpectQuery(`WHERE partition_key = \$1`).
		WithArgs("family_todos").
		WillReturnRows(sqlmock.NewRows(todoColumns).
			AddRow("a", "family_todos", []byte(`{"status":"pending"}`), 3, 3).
			AddRow("b", "family_todos", []byte(`{"status":"Completed"}`), 2, 2).
			AddRow("c", "family_todos", []byte(`{"status":"NotStarted"}`), 1, 1))

	todos, err := repo.Find(context.Background(), ports.TodoFilter{
		Statuses: []entities.TodoStatus{entities.TodoStatusNotStarted},
		Limit:    1,
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(todos) != 1 || todos[0].ID != "a" {
		t.Fatalf("unexpected todos %+v", todos)
	}
}

func TestUpsertRefreshesUpdatedAt(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTodoRepository(db, "", nil)
	now := time.Unix(1700000500, 0)
	repo.now = func() time.Time { return now }

	mock.ExpectQuery(`(?s)INSERT INTO todos .*ON CONFLICT \(id\) DO UPDATE`).
		WithArgs("t1", "family_todos", sqlmock.AnyArg(), int64(1700000000), now.Unix()).
		WillReturnRows(sqlmock.NewRows(todoColumns).
			AddRow("t1", "family_todos", []byte(`{"title":"Buy milk","created_at":1600000000,"updated_at":1700000500,"new_todo_notification_sent":true}`), 1600000000, 1700000500))

	created := entities.TimestampFromUnix(1700000000)
	sent := true
	stored, err := repo.Upsert(context.Background(), &entities.TodoItem{
		ID:                      "t1",
		Title:                   "Buy milk",
		CreatedAt:               &created,
		NewTodoNotificationSent: &sent,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if stored.CreatedAt.Unix() != 1600000000 {
		t.Fatalf("stored created_at should win, got %d", stored.CreatedAt.Unix())
	}
	if stored.UpdatedAt.Unix() != now.Unix() {
		t.Fatalf("updated_at not refreshed: %d", stored.UpdatedAt.Unix())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertStampsMissingCreatedAt(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTodoRepository(db, "", nil)
	now := time.Unix(1700000500, 0)
	repo.now = func() time.Time { return now }

	mock.ExpectQuery(`INSERT INTO todos`).
		WithArgs("t2", "family_todos", sqlmock.AnyArg(), now.Unix(), now.Unix()).
		WillReturnRows(sqlmock.NewRows(todoColumns).
			AddRow("t2", "family_todos", []byte(`{"created_at":1700000500,"updated_at":1700000500}`), now.Unix(), now.Unix()))

	if _, err := repo.Upsert(context.Background(), &entities.TodoItem{ID: "t2"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

func TestUpsertRequiresID(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewTodoRepository(db, "", nil)

	if _, err := repo.Upsert(context.Background(), &entities.TodoItem{}); !errors.Is(err, entities.ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
}

func TestUpsertDoesNotMutateInput(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTodoRepository(db, "", nil)

	mock.ExpectQuery(`INSERT INTO todos`).
		WillReturnRows(sqlmock.NewRows(todoColumns).AddRow("t3", "family_todos", []byte(`{}`), 1, 1))

	in := &entities.TodoItem{ID: "t3"}
	if _, err := repo.Upsert(context.Background(), in); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if in.UpdatedAt != nil || in.PartitionKey != "" {
		t.Fatalf("input was mutated: %+v", in)
	}
}

func TestQueriesAreTimedInLogs(t *testing.T) {
	db, mock := newMockDB(t)
	core, logs := observer.New(zap.DebugLevel)
	repo := NewTodoRepository(db, "", logger.FromZap(zap.New(core)))

	mock.ExpectQuery(`WHERE partition_key = \$1`).
		WithArgs("family_todos").
		WillReturnRows(sqlmock.NewRows(todoColumns).AddRow("a", "family_todos", []byte(`{}`), 1, 1))
	mock.ExpectQuery(`INSERT INTO todos`).WillReturnError(errors.New("deadlock detected"))

	if _, err := repo.GetAll(context.Background()); err != nil {
		t.Fatalf("get all: %v", err)
	}
	if _, err := repo.Upsert(context.Background(), &entities.TodoItem{ID: "a"}); !errors.Is(err, entities.ErrStore) {
		t.Fatalf("expected store error, got %v", err)
	}

	executed := logs.FilterMessage("Database query executed").All()
	if len(executed) != 1 || executed[0].ContextMap()["query"] != "list todos" {
		t.Fatalf("expected list query at debug, got %+v", executed)
	}
	if _, ok := executed[0].ContextMap()["duration_ms"]; !ok {
		t.Fatalf("missing duration_ms field")
	}

	failed := logs.FilterMessage("Database query failed").All()
	if len(failed) != 1 || failed[0].Level != zap.ErrorLevel || failed[0].ContextMap()["todo_id"] != "a" {
		t.Fatalf("expected failed upsert at error level, got %+v", failed)
	}
}
