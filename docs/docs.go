package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "description": "Todo notification trigger endpoints",
        "title": "Todo Notifier API",
        "version": "1.0"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "paths": {
        "/notifications/evaluate": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Evaluate due-date notifications",
                "description": "Runs the due-date evaluation for a posted todo document, or for the stored todo named by id, and sends the notification that is due",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {
                        "in": "body",
                        "name": "request",
                        "required": true,
                        "schema": {"$ref": "#/definitions/EvaluateRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "Processed", "schema": {"$ref": "#/definitions/ProcessResponse"}},
                    "400": {"description": "Invalid request"},
                    "401": {"description": "Unauthorized"},
                    "404": {"description": "Todo not found"},
                    "422": {"description": "Unreadable due date or missing recipient", "schema": {"$ref": "#/definitions/ProcessResponse"}},
                    "502": {"description": "Email transport failure", "schema": {"$ref": "#/definitions/ProcessResponse"}},
                    "503": {"description": "Store failure", "schema": {"$ref": "#/definitions/ProcessResponse"}}
                }
            }
        },
        "/notifications/changes": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Process a document change",
                "description": "Classifies a changed todo document and sends the creation or update notice it calls for",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {
                        "in": "body",
                        "name": "request",
                        "required": true,
                        "schema": {"$ref": "#/definitions/ChangeRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "Processed", "schema": {"$ref": "#/definitions/ProcessResponse"}},
                    "400": {"description": "Invalid request"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/sweep": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Run a sweep now",
                "description": "Evaluates every stored todo once; requires the sweep scope",
                "produces": ["application/json"],
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Sweep report", "schema": {"$ref": "#/definitions/SweepReport"}},
                    "403": {"description": "Insufficient scope"},
                    "409": {"description": "Sweep already in progress"}
                }
            }
        }
    },
    "definitions": {
        "TodoItem": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "partition_key": {"type": "string", "example": "family_todos"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "assignee": {"type": "string"},
                "email": {"type": "string"},
                "priority": {"type": "string"},
                "status": {"type": "string", "enum": ["NotStarted", "InProgress", "Completed"]},
                "due_date": {"type": "integer", "description": "Unix seconds"},
                "created_at": {"type": "integer"},
                "updated_at": {"type": "integer"},
                "reminder_24h_sent": {"type": "boolean"},
                "final_reminder_sent": {"type": "boolean"},
                "new_todo_notification_sent": {"type": "boolean"},
                "last_notification_time": {"type": "integer"}
            }
        },
        "EvaluateRequest": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "document": {"$ref": "#/definitions/TodoItem"},
                "now": {"type": "integer", "description": "Evaluation instant in Unix seconds, defaults to the current time"}
            }
        },
        "ChangeRequest": {
            "type": "object",
            "required": ["document"],
            "properties": {
                "document": {"$ref": "#/definitions/TodoItem"},
                "prior": {"$ref": "#/definitions/TodoItem"}
            }
        },
        "ProcessResponse": {
            "type": "object",
            "properties": {
                "result": {
                    "type": "object",
                    "properties": {
                        "todo_id": {"type": "string"},
                        "kind": {"type": "string", "enum": ["none", "new_item", "overdue", "reminder_24h", "final_reminder", "daily_overdue", "content_update"]},
                        "change": {"type": "string", "enum": ["new", "content_update", "self_inflicted"]},
                        "sent": {"type": "boolean"},
                        "persisted": {"type": "boolean"},
                        "skipped": {"type": "string"}
                    }
                },
                "error": {"type": "string"}
            }
        },
        "SweepReport": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "started_at": {"type": "string", "format": "date-time"},
                "duration": {"type": "integer", "description": "Nanoseconds"},
                "processed": {"type": "integer"},
                "sent": {"type": "integer"},
                "skipped": {"type": "integer"},
                "failed": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "Type 'Bearer' followed by a space and JWT token"
        }
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http"},
	Title:            "Todo Notifier API",
	Description:      "Todo notification trigger endpoints",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
