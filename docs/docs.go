// Package docs holds the OpenAPI document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "Service healthy", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "Database unavailable", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }
            }
        },
        "/imports": {
            "post": {
                "description": "Upload a CSV, JSON or XLSX file (multipart field \"file\") or post a JSON body with a location (file://, http(s)://, s3://). Every sheet starts unprocessed.",
                "consumes": ["multipart/form-data", "application/json"],
                "produces": ["application/json"],
                "tags": ["imports"],
                "summary": "Import a file",
                "parameters": [
                    {"type": "file", "description": "File to import", "name": "file", "in": "formData"},
                    {"type": "string", "description": "Space name", "name": "space", "in": "formData"},
                    {"type": "string", "description": "Uploading user", "name": "username", "in": "formData"},
                    {"type": "string", "description": "Space metadata as JSON", "name": "metadata", "in": "formData"},
                    {"description": "Remote import", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/handler.ImportBody"}}
                ],
                "responses": {
                    "201": {"description": "Workbook created", "schema": {"$ref": "#/definitions/pipeline.ImportResult"}},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}},
                    "500": {"description": "Internal server error", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }
            }
        },
        "/events": {
            "post": {
                "description": "Accepts commit:created, job:ready and job:failed events. Other topics are ignored.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["events"],
                "summary": "Deliver an event",
                "parameters": [
                    {"description": "Event", "name": "event", "in": "body", "required": true, "schema": {"$ref": "#/definitions/model.Event"}}
                ],
                "responses": {
                    "200": {"description": "Submission decision", "schema": {"$ref": "#/definitions/pipeline.Outcome"}},
                    "202": {"description": "Event ignored", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Invalid event", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }
            }
        },
        "/workbooks/{id}/validate": {
            "post": {
                "description": "Apply the configured validation rules to every record and mark it processed.",
                "produces": ["application/json"],
                "tags": ["workbooks"],
                "summary": "Validate a workbook",
                "parameters": [
                    {"type": "string", "description": "Workbook ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Validation summary", "schema": {"$ref": "#/definitions/pipeline.ValidationSummary"}},
                    "502": {"description": "Record source failed", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }
            }
        },
        "/workbooks/{id}/readiness": {
            "get": {
                "description": "Scan all sheets page by page. The verdict is a snapshot.",
                "produces": ["application/json"],
                "tags": ["workbooks"],
                "summary": "Check workbook readiness",
                "parameters": [
                    {"type": "string", "description": "Workbook ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Scan timeout, e.g. 30s", "name": "timeout", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Readiness verdict", "schema": {"$ref": "#/definitions/handler.ReadinessResponse"}},
                    "502": {"description": "Record source failed", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }
            }
        },
        "/workbooks/{id}/submit": {
            "post": {
                "description": "Create a workbook:submitAction job, check readiness and send the aggregated records once.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["workbooks"],
                "summary": "Submit a workbook",
                "parameters": [
                    {"type": "string", "description": "Workbook ID", "name": "id", "in": "path", "required": true},
                    {"description": "Space of the workbook", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/handler.SubmitBody"}}
                ],
                "responses": {
                    "200": {"description": "Submission completed", "schema": {"$ref": "#/definitions/pipeline.Outcome"}},
                    "409": {"description": "Not ready or already submitting", "schema": {"$ref": "#/definitions/pipeline.Outcome"}},
                    "502": {"description": "Submission failed", "schema": {"$ref": "#/definitions/pipeline.Outcome"}}
                }
            }
        },
        "/jobs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "List jobs",
                "parameters": [
                    {"type": "string", "description": "Only jobs of this workbook", "name": "workbookId", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Jobs", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.Job"}}},
                    "500": {"description": "Internal server error", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }
            }
        },
        "/jobs/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Get job",
                "parameters": [
                    {"type": "string", "description": "Job ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Job details", "schema": {"$ref": "#/definitions/handler.JobDetail"}},
                    "404": {"description": "Job not found", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }
            }
        },
        "/jobs/{id}/retry": {
            "post": {
                "description": "Completed jobs cannot be retried. The original job keeps its state.",
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Retry job",
                "parameters": [
                    {"type": "string", "description": "Job ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Retry ran", "schema": {"$ref": "#/definitions/handler.RetryResponse"}},
                    "404": {"description": "Job not found", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}},
                    "409": {"description": "Job already completed or delivered", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }
            }
        },
        "/exports/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["exports"],
                "summary": "List export files",
                "parameters": [
                    {"type": "string", "description": "Export ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Export files", "schema": {"$ref": "#/definitions/handler.ExportListing"}},
                    "404": {"description": "Export not found", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }
            }
        },
        "/exports/{id}/{filename}": {
            "get": {
                "produces": ["application/octet-stream"],
                "tags": ["exports"],
                "summary": "Download export file",
                "parameters": [
                    {"type": "string", "description": "Export ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "File name", "name": "filename", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "File download", "schema": {"type": "file"}},
                    "404": {"description": "File not found", "schema": {"$ref": "#/definitions/httputil.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "httputil.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "details": {},
                "error": {"type": "string"}
            }
        },
        "handler.ExportFile": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "type": {"type": "string"},
                "size": {"type": "integer"},
                "url": {"type": "string"}
            }
        },
        "handler.ExportListing": {
            "type": "object",
            "properties": {
                "export_id": {"type": "string"},
                "files": {"type": "array", "items": {"$ref": "#/definitions/handler.ExportFile"}},
                "count": {"type": "integer"}
            }
        },
        "handler.ImportBody": {
            "type": "object",
            "properties": {
                "fileName": {"type": "string"},
                "location": {"type": "string"},
                "metadata": {"type": "object", "additionalProperties": true},
                "spaceName": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "handler.SubmitBody": {
            "type": "object",
            "properties": {
                "spaceId": {"type": "string"}
            }
        },
        "handler.ReadinessResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["ready", "not_ready"]},
                "reason": {"type": "string"},
                "pending": {"$ref": "#/definitions/pipeline.PendingRecord"},
                "stats": {"$ref": "#/definitions/pipeline.ScanStats"},
                "summary": {"$ref": "#/definitions/pipeline.PayloadSummary"}
            }
        },
        "handler.JobDetail": {
            "type": "object",
            "properties": {
                "job": {"$ref": "#/definitions/model.Job"},
                "errors": {"type": "array", "items": {"$ref": "#/definitions/store.JobError"}}
            }
        },
        "handler.RetryResponse": {
            "type": "object",
            "properties": {
                "retryOf": {"type": "string"},
                "job": {"$ref": "#/definitions/model.Job"},
                "outcome": {"$ref": "#/definitions/pipeline.Outcome"}
            }
        },
        "model.EventContext": {
            "type": "object",
            "properties": {
                "environmentId": {"type": "string"},
                "jobId": {"type": "string"},
                "sheetId": {"type": "string"},
                "spaceId": {"type": "string"},
                "workbookId": {"type": "string"}
            }
        },
        "model.Event": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "topic": {"type": "string"},
                "job": {"type": "string"},
                "context": {"$ref": "#/definitions/model.EventContext"}
            }
        },
        "model.Job": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "workbookId": {"type": "string"},
                "spaceId": {"type": "string"},
                "operation": {"type": "string"},
                "state": {"type": "string", "enum": ["created", "acknowledged", "completed", "failed"]},
                "info": {"type": "string"},
                "progress": {"type": "integer"},
                "createdAt": {"type": "string"},
                "updatedAt": {"type": "string"}
            }
        },
        "model.Space": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "metadata": {"type": "object", "additionalProperties": true}
            }
        },
        "model.Sheet": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "workbookId": {"type": "string"},
                "name": {"type": "string"},
                "slug": {"type": "string"},
                "recordCount": {"type": "integer"}
            }
        },
        "model.Workbook": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "spaceId": {"type": "string"},
                "name": {"type": "string"},
                "sheets": {"type": "array", "items": {"$ref": "#/definitions/model.Sheet"}}
            }
        },
        "pipeline.ImportResult": {
            "type": "object",
            "properties": {
                "space": {"$ref": "#/definitions/model.Space"},
                "workbook": {"$ref": "#/definitions/model.Workbook"},
                "records": {"type": "integer"}
            }
        },
        "pipeline.ValidationSummary": {
            "type": "object",
            "properties": {
                "workbookId": {"type": "string"},
                "sheets": {"type": "integer"},
                "records": {"type": "integer"},
                "valid": {"type": "integer"},
                "invalid": {"type": "integer"}
            }
        },
        "pipeline.PendingRecord": {
            "type": "object",
            "properties": {
                "sheetId": {"type": "string"},
                "page": {"type": "integer"},
                "recordId": {"type": "string"}
            }
        },
        "pipeline.ScanStats": {
            "type": "object",
            "properties": {
                "sheets": {"type": "integer"},
                "pages": {"type": "integer"},
                "records": {"type": "integer"},
                "duration": {"type": "integer"}
            }
        },
        "pipeline.SheetSummary": {
            "type": "object",
            "properties": {
                "sheetId": {"type": "string"},
                "name": {"type": "string"},
                "records": {"type": "integer"},
                "invalid": {"type": "integer"}
            }
        },
        "pipeline.PayloadSummary": {
            "type": "object",
            "properties": {
                "sheets": {"type": "array", "items": {"$ref": "#/definitions/pipeline.SheetSummary"}},
                "records": {"type": "integer"},
                "invalid": {"type": "integer"}
            }
        },
        "pipeline.Outcome": {
            "type": "object",
            "properties": {
                "jobId": {"type": "string"},
                "status": {"type": "string", "enum": ["not_ready", "completed", "failed", "duplicate"]},
                "delivered": {"type": "boolean"},
                "error": {"type": "string"},
                "metrics": {"type": "object", "additionalProperties": true}
            }
        },
        "store.JobError": {
            "type": "object",
            "properties": {
                "jobId": {"type": "string"},
                "message": {"type": "string"},
                "createdAt": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Workbook Pipeline API",
	Description:      "Imports workbooks, checks that every record is processed and submits them once to a downstream endpoint.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
