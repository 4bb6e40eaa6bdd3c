package services

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/taskmaster/notifier/internal/domain/entities"
	"github.com/taskmaster/notifier/internal/domain/notification"
)

// dueDateLayout renders e.g. "Tuesday, March 10, 2026 at 02:00 PM UTC".
const dueDateLayout = "Monday, January 02, 2006 at 03:04 PM UTC"

type messageTemplate struct {
	subject string
	lead    string
	closing string
}

var messageTemplates = map[notification.Kind]messageTemplate{
	notification.KindNewItem: {
		subject: "New Todo Assigned: %s",
		lead:    "A new todo item has been assigned to you:",
		closing: "Please review and plan accordingly.",
	},
	notification.KindOverdue: {
		subject: "Todo Item Overdue: %s",
		lead:    "Your todo item is now overdue.",
		closing: "Please complete this task as soon as possible.",
	},
	notification.KindReminder24h: {
		subject: "Reminder: Todo Due in 24 Hours - %s",
		lead:    "This is a reminder that your todo item is due in approximately 24 hours.",
		closing: "Please plan to complete this task soon.",
	},
	notification.KindFinalReminder: {
		subject: "Final Reminder: Todo Due Soon - %s",
		lead:    "This is your final reminder - your todo item is due very soon!",
		closing: "Please complete this task immediately.",
	},
	notification.KindDailyOverdue: {
		subject: "Daily Reminder: Overdue Todo - %s",
		lead:    "Daily reminder: Your todo item is still overdue and needs attention.",
		closing: "Please complete this overdue task.",
	},
	notification.KindContentUpdate: {
		subject: "Todo Updated: %s",
		lead:    "Your todo item has been updated:",
		closing: "Please review the changes.",
	},
}

var bodyTemplate = template.Must(template.New("body").Parse(`Hello {{.Greeting}},

{{.Lead}}

Title: {{.Title}}
Description: {{.Description}}
Due Date: {{.DueDate}}
{{- if .Status}}
Status: {{.Status}}
{{- end}}

{{.Closing}}

Best regards,
{{.Signature}}
`))

type bodyData struct {
	Greeting    string
	Lead        string
	Title       string
	Description string
	DueDate     string
	Status      string
	Closing     string
	Signature   string
}

// renderMessage returns the subject and plain-text body for kind.
func renderMessage(kind notification.Kind, todo *entities.TodoItem, signature string) (string, string, error) {
	tmpl, ok := messageTemplates[kind]
	if !ok {
		return "", "", fmt.Errorf("no template for notification kind %q", kind)
	}

	data := bodyData{
		Greeting:    orDefault(todo.Assignee, "User"),
		Lead:        tmpl.lead,
		Title:       todo.DisplayTitle(),
		Description: orDefault(todo.Description, "No description"),
		DueDate:     formatDueDate(todo.DueDate),
		Closing:     tmpl.closing,
		Signature:   orDefault(signature, "Your Todo App"),
	}
	if kind == notification.KindContentUpdate {
		data.Status = orDefault(string(todo.Status), "Pending")
	}

	var body bytes.Buffer
	if err := bodyTemplate.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", kind, err)
	}

	return fmt.Sprintf(tmpl.subject, data.Title), body.String(), nil
}

func formatDueDate(ts *entities.Timestamp) string {
	due, err := ts.Time()
	if err != nil {
		return "Not specified"
	}
	return due.UTC().Format(dueDateLayout)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

