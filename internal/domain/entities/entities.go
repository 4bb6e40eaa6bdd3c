package entities

import (
	"errors"
	"strings"
	"time"
)

// Common errors
var (
	ErrTodoNotFound    = errors.New("todo not found")
	ErrMissingID       = errors.New("todo id is required")
	ErrInvalidDocument = errors.New("invalid todo document")
)

// DefaultPartitionKey is the partition every todo document is written to.
const DefaultPartitionKey = "family_todos"

type TodoStatus string

const (
	TodoStatusNotStarted TodoStatus = "NotStarted"
	TodoStatusInProgress TodoStatus = "InProgress"
	TodoStatusCompleted  TodoStatus = "Completed"
)

// ParseTodoStatus normalizes the spellings the producing applications use.
// Unknown values are returned unchanged.
func ParseTodoStatus(s string) TodoStatus {
	switch strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.TrimSpace(s))) {
	case "notstarted", "pending":
		return TodoStatusNotStarted
	case "inprogress":
		return TodoStatusInProgress
	case "completed", "done":
		return TodoStatusCompleted
	default:
		return TodoStatus(s)
	}
}

func (s TodoStatus) IsCompleted() bool {
	return ParseTodoStatus(string(s)) == TodoStatusCompleted
}

// TodoItem is the persisted todo document.
//
// Tracking fields are pointers: the change classifier must tell an absent
// field from an explicit false.
type TodoItem struct {
	ID           string     `json:"id"`
	PartitionKey string     `json:"partition_key,omitempty"`
	Title        string     `json:"title,omitempty"`
	Description  string     `json:"description,omitempty"`
	Assignee     string     `json:"assignee,omitempty"`
	Email        string     `json:"email,omitempty"`
	Priority     string     `json:"priority,omitempty"`
	Status       TodoStatus `json:"status,omitempty"`
	DueDate      *Timestamp `json:"due_date,omitempty"`
	CreatedAt    *Timestamp `json:"created_at,omitempty"`
	UpdatedAt    *Timestamp `json:"updated_at,omitempty"`

	Reminder24hSent         *bool      `json:"reminder_24h_sent,omitempty"`
	FinalReminderSent       *bool      `json:"final_reminder_sent,omitempty"`
	NewTodoNotificationSent *bool      `json:"new_todo_notification_sent,omitempty"`
	LastNotificationTime    *Timestamp `json:"last_notification_time,omitempty"`
}

func (t *TodoItem) IsCompleted() bool {
	return t.Status.IsCompleted()
}

func (t *TodoItem) HasReceived24hReminder() bool {
	return isTrue(t.Reminder24hSent)
}

func (t *TodoItem) HasReceivedFinalReminder() bool {
	return isTrue(t.FinalReminderSent)
}

func (t *TodoItem) HasReceivedNewTodoNotification() bool {
	return isTrue(t.NewTodoNotificationSent)
}

// MarkReminder24hSent and the other Mark methods only ever move a flag to true.
func (t *TodoItem) MarkReminder24hSent() {
	t.Reminder24hSent = boolPtr(true)
}

func (t *TodoItem) MarkFinalReminderSent() {
	t.FinalReminderSent = boolPtr(true)
}

func (t *TodoItem) MarkNewTodoNotificationSent() {
	t.NewTodoNotificationSent = boolPtr(true)
}

// RecordNotificationTime refreshes last_notification_time, never moving it
// backwards.
func (t *TodoItem) RecordNotificationTime(at time.Time) {
	if last, err := t.LastNotificationTime.Time(); err == nil && last.After(at) {
		return
	}
	ts := NewTimestamp(at)
	t.LastNotificationTime = &ts
}

// Clone returns a deep copy so callers can mutate state without touching the
// document a trigger handed them.
func (t *TodoItem) Clone() *TodoItem {
	if t == nil {
		return nil
	}
	out := *t
	out.DueDate = t.DueDate.clone()
	out.CreatedAt = t.CreatedAt.clone()
	out.UpdatedAt = t.UpdatedAt.clone()
	out.LastNotificationTime = t.LastNotificationTime.clone()
	out.Reminder24hSent = cloneBool(t.Reminder24hSent)
	out.FinalReminderSent = cloneBool(t.FinalReminderSent)
	out.NewTodoNotificationSent = cloneBool(t.NewTodoNotificationSent)
	return &out
}

// DisplayTitle returns the title used in outbound messages.
func (t *TodoItem) DisplayTitle() string {
	if strings.TrimSpace(t.Title) == "" {
		return "Untitled"
	}
	return t.Title
}

func isTrue(b *bool) bool {
	return b != nil && *b
}

func boolPtr(b bool) *bool {
	return &b
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
