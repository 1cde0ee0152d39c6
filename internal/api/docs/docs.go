// Package docs holds the swagger document of the status API.
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
        "/collect": {
            "post": {
                "description": "Start a collection run over all or the named collectors",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Trigger collection",
                "parameters": [
                    {
                        "description": "Collectors to run",
                        "name": "request",
                        "in": "body",
                        "schema": {"$ref": "#/definitions/handler.CollectRequest"}
                    }
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handler.CollectResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/collectors": {
            "get": {
                "description": "Get every configured collector joined with its last stored result",
                "produces": ["application/json"],
                "tags": ["collectors"],
                "summary": "List collectors",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/handler.CollectorView"}}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/runs": {
            "get": {
                "description": "Get the most recent collection runs, newest first",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "List runs",
                "parameters": [
                    {"type": "integer", "default": 20, "description": "Maximum number of runs", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/store.RunInfo"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/runs/latest": {
            "get": {
                "description": "Get the full report of the most recent collection run",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Latest run",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.RunReport"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/runs/{id}": {
            "get": {
                "description": "Get the full report of one collection run",
                "produces": ["application/json"],
                "tags": ["runs"],
                "summary": "Get run",
                "parameters": [
                    {"type": "string", "description": "Run ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.RunReport"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handler.CollectRequest": {
            "type": "object",
            "properties": {"sources": {"type": "array", "items": {"type": "string"}}}
        },
        "handler.CollectResponse": {
            "type": "object",
            "properties": {
                "created_at": {"type": "string"},
                "run_id": {"type": "string"},
                "sources": {"type": "array", "items": {"type": "string"}},
                "status": {"type": "string"}
            }
        },
        "handler.CollectorView": {
            "type": "object",
            "properties": {
                "collections": {"type": "integer"},
                "enabled": {"type": "boolean"},
                "last_accepted": {"type": "integer"},
                "last_error": {"type": "string"},
                "last_run_at": {"type": "string"},
                "last_status": {"type": "string"},
                "max_retries": {"type": "integer"},
                "name": {"type": "string"},
                "skip_duplicates": {"type": "boolean"},
                "total_accepted": {"type": "integer"},
                "type": {"type": "string"},
                "validator": {"type": "string"}
            }
        },
        "handler.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "model.CollectionResult": {
            "type": "object",
            "properties": {
                "attempts": {"type": "integer"},
                "backoff_delays": {"type": "array", "items": {"type": "integer"}},
                "collector_name": {"type": "string"},
                "collector_type": {"type": "string"},
                "duplicates_skipped": {"type": "integer"},
                "duration": {"type": "integer"},
                "errors": {"type": "array", "items": {"$ref": "#/definitions/model.ErrorDetail"}},
                "finished_at": {"type": "string"},
                "records_accepted": {"type": "integer"},
                "records_fetched": {"type": "integer"},
                "records_rejected": {"type": "integer"},
                "retries": {"type": "integer"},
                "started_at": {"type": "string"},
                "status": {"type": "string"},
                "warnings": {"type": "array", "items": {"$ref": "#/definitions/model.ErrorDetail"}}
            }
        },
        "model.ErrorDetail": {
            "type": "object",
            "properties": {
                "attempt": {"type": "integer"},
                "field": {"type": "string"},
                "kind": {"type": "string"},
                "message": {"type": "string"},
                "origin": {"type": "string"},
                "record_index": {"type": "integer"},
                "retryable": {"type": "boolean"},
                "severity": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        },
        "model.RunReport": {
            "type": "object",
            "properties": {
                "config_errors": {"type": "array", "items": {"$ref": "#/definitions/model.ErrorDetail"}},
                "duration": {"type": "integer"},
                "finished_at": {"type": "string"},
                "results": {"type": "array", "items": {"$ref": "#/definitions/model.CollectionResult"}},
                "run_id": {"type": "string"},
                "started_at": {"type": "string"},
                "state": {"type": "string"},
                "status": {"type": "string"},
                "summary": {"$ref": "#/definitions/model.RunSummary"}
            }
        },
        "model.RunSummary": {
            "type": "object",
            "properties": {
                "duplicates_skipped": {"type": "integer"},
                "error_count": {"type": "integer"},
                "failed_collectors": {"type": "integer"},
                "partial_collectors": {"type": "integer"},
                "records_accepted": {"type": "integer"},
                "records_fetched": {"type": "integer"},
                "records_per_second": {"type": "number"},
                "records_rejected": {"type": "integer"},
                "skipped_collectors": {"type": "integer"},
                "successful_collectors": {"type": "integer"},
                "total_collectors": {"type": "integer"},
                "warning_count": {"type": "integer"}
            }
        },
        "store.RunInfo": {
            "type": "object",
            "properties": {
                "finished_at": {"type": "string"},
                "id": {"type": "string"},
                "started_at": {"type": "string"},
                "state": {"type": "string"},
                "status": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Route Pipeline Status API",
	Description:      "Run history, collector status and on-demand collection for the route data pipeline.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
