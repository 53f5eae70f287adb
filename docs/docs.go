// Package docs registers the OpenAPI document served by the Swagger UI.
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
    "securityDefinitions": {
        "OperatorToken": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"OperatorToken": []}],
    "paths": {
        "/polls": {
            "post": {
                "tags": ["polls"],
                "summary": "Run one poll tick now",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.TickReport"}},
                    "409": {"description": "Poll already running", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/comments/{id}/reply-context": {
            "get": {
                "tags": ["comments"],
                "summary": "Reply context for a comment",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.ReplyContext"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/comments/{id}/reply/retry": {
            "post": {
                "tags": ["comments"],
                "summary": "Retry a failed reply",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Reply not retryable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Platform error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/comments/{id}/hide": {
            "post": {
                "tags": ["comments"],
                "summary": "Hide a comment on the platform",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "501": {"description": "Not supported by the platform", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/decisions/dry-run": {
            "post": {
                "tags": ["decisions"],
                "summary": "Evaluate text against decision rules without side effects",
                "consumes": ["application/json"],
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.DryRunRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.Decision"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/decisions/stats": {
            "get": {
                "tags": ["decisions"],
                "summary": "Decision counts per action",
                "parameters": [
                    {"type": "string", "name": "user_id", "in": "query", "required": true},
                    {"type": "string", "format": "date-time", "name": "since", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.DecisionStatsResponse"}},
                    "304": {"description": "Not Modified"}
                }
            }
        },
        "/posts/{id}/monitoring": {
            "put": {
                "tags": ["posts"],
                "summary": "Enable or disable monitoring for a post",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SetMonitoringRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/posts/{id}/diagnostics": {
            "get": {
                "tags": ["posts"],
                "summary": "Monitoring state, checkpoint and recent decisions of a post",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "name": "decisions", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.DiagnosticsResponse"}},
                    "304": {"description": "Not Modified"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/accounts/{id}/sync": {
            "post": {
                "tags": ["accounts"],
                "summary": "Discover recent posts of an account",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "501": {"description": "Not supported by the platform", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "handlers.DryRunRequest": {
            "type": "object",
            "required": ["text"],
            "properties": {
                "text": {"type": "string"},
                "context_type": {"type": "string", "enum": ["comment", "chat"]},
                "user_id": {"type": "string"},
                "rules": {"type": "object"}
            }
        },
        "handlers.SetMonitoringRequest": {
            "type": "object",
            "required": ["enabled"],
            "properties": {
                "enabled": {"type": "boolean"},
                "duration_days": {"type": "integer"}
            }
        },
        "handlers.DecisionStatsResponse": {"type": "object"},
        "handlers.DiagnosticsResponse": {"type": "object"},
        "services.Decision": {"type": "object"},
        "services.ReplyContext": {"type": "object"},
        "services.TickReport": {"type": "object"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Engage Operator API",
	Description:      "Operator endpoints of the comment monitoring and auto-reply engine.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
