// Package notification decides which reminder, if any, a todo item is due
// for and classifies document changes seen on the change feed.
package notification

import (
	"errors"
	"fmt"
	"time"

	"github.com/taskmaster/notifier/internal/domain/entities"
)

// Kind identifies an outbound notification.
type Kind string

const (
	KindNone          Kind = "none"
	KindNewItem       Kind = "new_item"
	KindOverdue       Kind = "overdue"
	KindReminder24h   Kind = "reminder_24h"
	KindFinalReminder Kind = "final_reminder"
	KindDailyOverdue  Kind = "daily_overdue"
	KindContentUpdate Kind = "content_update"
)

// Window boundaries, in seconds relative to the due date.
const (
	overdueWindow      = 3600
	reminder24hStart   = 24 * 3600
	reminder24hEnd     = 25 * 3600
	finalReminderStart = 1800
	finalReminderEnd   = 23*3600 + 1800
	dailyInterval      = 24 * 3600
)

// Mutation is the state change to persist once a notification was sent.
type Mutation func(todo *entities.TodoItem)

// Decision is the outcome of evaluating one item at one instant.
type Decision struct {
	Kind   Kind
	Delta  time.Duration
	Mutate Mutation
}

func (d Decision) ShouldSend() bool {
	return d.Kind != KindNone && d.Kind != ""
}

// Apply runs the mutation, if any, against todo.
func (d Decision) Apply(todo *entities.TodoItem) {
	if d.Mutate != nil {
		d.Mutate(todo)
	}
}

var none = Decision{Kind: KindNone}

// ErrParse is the sentinel matched by every ParseError.
var ErrParse = errors.New("parse error")

// ParseError reports a timestamp field that could not be decoded.
type ParseError struct {
	TodoID string
	Field  string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("todo %s: invalid %s %q: %v", e.TodoID, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}

// Evaluate returns the due-date driven notification todo should receive at
// now. Branches are checked in priority order and at most one applies:
//
//	-1h <= delta < 0         overdue (no suppression flag)
//	24h <= delta < 25h       24h reminder, once
//	30m <= delta <= 23.5h    final reminder, once
//	delta < -1h              daily overdue, at most every 24h
func Evaluate(todo *entities.TodoItem, now time.Time) (Decision, error) {
	if todo == nil || todo.IsCompleted() || !todo.DueDate.IsSet() {
		return none, nil
	}

	due, err := todo.DueDate.Time()
	if err != nil {
		return none, &ParseError{TodoID: todo.ID, Field: "due_date", Value: todo.DueDate.Raw(), Err: err}
	}

	delta := due.Unix() - now.Unix()
	d := Decision{Kind: KindNone, Delta: time.Duration(delta) * time.Second}

	switch {
	case delta < 0 && delta >= -overdueWindow:
		d.Kind = KindOverdue

	case delta >= reminder24hStart && delta < reminder24hEnd:
		if !todo.HasReceived24hReminder() {
			d.Kind = KindReminder24h
			d.Mutate = (*entities.TodoItem).MarkReminder24hSent
		}

	case delta >= finalReminderStart && delta <= finalReminderEnd:
		if !todo.HasReceivedFinalReminder() {
			d.Kind = KindFinalReminder
			d.Mutate = (*entities.TodoItem).MarkFinalReminderSent
		}

	case delta < -overdueWindow:
		if dailyReminderDue(todo, now) {
			at := now
			d.Kind = KindDailyOverdue
			d.Mutate = func(t *entities.TodoItem) { t.RecordNotificationTime(at) }
		}
	}

	return d, nil
}

// EvaluateNew returns the creation notice for a freshly created item.
func EvaluateNew(todo *entities.TodoItem) Decision {
	if todo == nil || todo.HasReceivedNewTodoNotification() {
		return none
	}
	return Decision{Kind: KindNewItem, Mutate: (*entities.TodoItem).MarkNewTodoNotificationSent}
}

// dailyReminderDue treats an unreadable last_notification_time as stale so an
// overdue item is never silenced by a bad bookkeeping value.
func dailyReminderDue(todo *entities.TodoItem, now time.Time) bool {
	if !todo.LastNotificationTime.IsSet() {
		return true
	}
	last, err := todo.LastNotificationTime.Time()
	if err != nil {
		return true
	}
	return now.Unix()-last.Unix() >= dailyInterval
}
