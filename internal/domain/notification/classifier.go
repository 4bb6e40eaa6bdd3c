package notification

import (
	"strings"
	"time"

	"github.com/taskmaster/notifier/internal/domain/entities"
)

// ChangeKind classifies one document mutation seen by a change trigger.
type ChangeKind string

const (
	ChangeNew           ChangeKind = "new"
	ChangeContentUpdate ChangeKind = "content_update"
	ChangeSelfInflicted ChangeKind = "self_inflicted"
)

const (
	// selfWriteWindow bounds how long after creation our own flag write lands.
	selfWriteWindow = 30 * time.Second
	// newItemWindow bounds how old a document may be and still count as new.
	newItemWindow = 60 * time.Second
	// minContentFields is the content-field count below which a document
	// carrying tracking fields is assumed to be a bookkeeping write.
	minContentFields = 3
)

// Classify decides whether a change should produce a creation notice, an
// update notice, or nothing because the notifier itself wrote it. prior is
// the previous version of the document when the trigger knows it.
func Classify(doc, prior *entities.TodoItem, now time.Time) ChangeKind {
	if prior != nil && onlyBookkeepingChanged(doc, prior) {
		return ChangeSelfInflicted
	}
	if isFlagWriteAfterCreate(doc) {
		return ChangeSelfInflicted
	}
	if trackingFieldCount(doc) > 0 && contentFieldCount(doc) < minContentFields {
		return ChangeSelfInflicted
	}
	if isNewDocument(doc, now) {
		return ChangeNew
	}
	return ChangeContentUpdate
}

// isFlagWriteAfterCreate matches the write that records the creation notice:
// the flag is set and updated_at sits within a few seconds of created_at.
func isFlagWriteAfterCreate(doc *entities.TodoItem) bool {
	if !doc.HasReceivedNewTodoNotification() {
		return false
	}
	created, err := doc.CreatedAt.Time()
	if err != nil {
		return false
	}
	updated, err := doc.UpdatedAt.Time()
	if err != nil {
		return false
	}
	diff := updated.Sub(created)
	return diff >= 0 && diff < selfWriteWindow
}

func isNewDocument(doc *entities.TodoItem, now time.Time) bool {
	if doc.HasReceivedNewTodoNotification() ||
		doc.HasReceived24hReminder() ||
		doc.HasReceivedFinalReminder() ||
		doc.LastNotificationTime.IsSet() {
		return false
	}
	if !doc.CreatedAt.IsSet() {
		return true
	}
	created, err := doc.CreatedAt.Time()
	if err != nil {
		return false
	}
	return now.Sub(created) < newItemWindow
}

func trackingFieldCount(doc *entities.TodoItem) int {
	n := 0
	for _, present := range []bool{
		doc.NewTodoNotificationSent != nil,
		doc.Reminder24hSent != nil,
		doc.FinalReminderSent != nil,
		doc.LastNotificationTime.IsSet(),
	} {
		if present {
			n++
		}
	}
	return n
}

func contentFieldCount(doc *entities.TodoItem) int {
	n := 0
	for _, s := range []string{doc.Title, doc.Description, doc.Assignee, doc.Email, doc.Priority, string(doc.Status)} {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	if doc.DueDate.IsSet() {
		n++
	}
	return n
}

// onlyBookkeepingChanged reports whether every field that differs between
// doc and prior is one the notifier maintains itself.
func onlyBookkeepingChanged(doc, prior *entities.TodoItem) bool {
	return doc.ID == prior.ID &&
		doc.PartitionKey == prior.PartitionKey &&
		doc.Title == prior.Title &&
		doc.Description == prior.Description &&
		doc.Assignee == prior.Assignee &&
		doc.Email == prior.Email &&
		doc.Priority == prior.Priority &&
		entities.ParseTodoStatus(string(doc.Status)) == entities.ParseTodoStatus(string(prior.Status)) &&
		doc.DueDate.Equal(prior.DueDate) &&
		doc.CreatedAt.Equal(prior.CreatedAt)
}
