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
	"github.com/taskmaster/notifier/internal/ports"
)

// ChangeFeedRepositoryImpl reads the todo_changes log populated by the
// record_todo_change trigger.
type ChangeFeedRepositoryImpl struct {
	db *sqlx.DB
}

type changeRow struct {
	Seq       int64     `db:"seq"`
	TodoID    string    `db:"todo_id"`
	Operation string    `db:"operation"`
	Doc       []byte    `db:"doc"`
	PriorDoc  []byte    `db:"prior_doc"`
	ChangedAt time.Time `db:"changed_at"`
}

// NewChangeFeedRepository creates a new change feed repository
func NewChangeFeedRepository(db *sqlx.DB) *ChangeFeedRepositoryImpl {
	return &ChangeFeedRepositoryImpl{db: db}
}

var _ ports.ChangeFeedRepository = (*ChangeFeedRepositoryImpl)(nil)

// Pending returns up to limit changes recorded after afterSeq, oldest first.
// A change whose document cannot be decoded is returned with a nil Document
// so the caller can log it and move past it.
func (r *ChangeFeedRepositoryImpl) Pending(ctx context.Context, afterSeq int64, limit int) ([]ports.ChangeEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT seq, todo_id, operation, doc, prior_doc, changed_at
		FROM todo_changes
		WHERE seq > $1
		ORDER BY seq
		LIMIT $2`

	var rows []changeRow
	if err := r.db.SelectContext(ctx, &rows, query, afterSeq, limit); err != nil {
		return nil, entities.StoreError("read change feed", "", err)
	}

	events := make([]ports.ChangeEvent, 0, len(rows))
	for _, row := range rows {
		event := ports.ChangeEvent{
			Seq:       row.Seq,
			TodoID:    row.TodoID,
			Operation: row.Operation,
			ChangedAt: row.ChangedAt,
		}
		event.Document = decodeDoc(row.TodoID, row.Doc)
		event.Prior = decodeDoc(row.TodoID, row.PriorDoc)
		events = append(events, event)
	}

	return events, nil
}

// Checkpoint returns the last sequence consumer acknowledged, or 0.
func (r *ChangeFeedRepositoryImpl) Checkpoint(ctx context.Context, consumer string) (int64, error) {
	query := `SELECT last_seq FROM change_feed_checkpoints WHERE consumer = $1`

	var seq int64
	if err := r.db.GetContext(ctx, &seq, query, consumer); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, entities.StoreError("read checkpoint", "", err)
	}
	return seq, nil
}

// SaveCheckpoint advances the consumer cursor. It never moves backwards.
func (r *ChangeFeedRepositoryImpl) SaveCheckpoint(ctx context.Context, consumer string, seq int64) error {
	query := `
		INSERT INTO change_feed_checkpoints (consumer, last_seq, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (consumer) DO UPDATE
		SET last_seq = GREATEST(change_feed_checkpoints.last_seq, EXCLUDED.last_seq),
			updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, consumer, seq); err != nil {
		return entities.StoreError("save checkpoint", "", err)
	}
	return nil
}

// Prune deletes changes older than olderThan that every consumer has
// already moved past.
func (r *ChangeFeedRepositoryImpl) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM todo_changes
		WHERE changed_at < $1
		  AND seq <= (SELECT COALESCE(MIN(last_seq), 0) FROM change_feed_checkpoints)`

	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, entities.StoreError("prune change feed", "", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune change feed: %w", err)
	}
	return n, nil
}

func decodeDoc(id string, raw []byte) *entities.TodoItem {
	if len(raw) == 0 {
		return nil
	}
	var todo entities.TodoItem
	if err := json.Unmarshal(raw, &todo); err != nil {
		return nil
	}
	if todo.ID == "" {
		todo.ID = id
	}
	return &todo
}
