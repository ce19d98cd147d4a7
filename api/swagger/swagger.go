package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Unidades API",
        "description": "Unit closure and grade consolidation service",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Units", "description": "Grading period configuration and activation"},
        {"name": "Activities", "description": "Gradable components of a unit"},
        {"name": "Grades", "description": "Per-activity score entry"},
        {"name": "Readiness", "description": "Course readiness for closure"},
        {"name": "Closure", "description": "Unit closure and grade consolidation"},
        {"name": "Reopenings", "description": "Reopening request workflow"},
        {"name": "Notifications", "description": "Teacher action items"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/units": {
            "post": {
                "tags": ["Units"],
                "summary": "Create a grading unit",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid weights"}
                }
            }
        },
        "/units/{id}/activate": {
            "post": {
                "tags": ["Units"],
                "summary": "Activate a unit",
                "responses": {
                    "200": {"description": "Activated"},
                    "409": {"description": "Unit closed"}
                }
            }
        },
        "/units/{id}/readiness": {
            "get": {
                "tags": ["Readiness"],
                "summary": "Get cached course readiness",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/units/{id}/close": {
            "post": {
                "tags": ["Closure"],
                "summary": "Close a unit and consolidate grades",
                "responses": {
                    "200": {"description": "Closure result"},
                    "412": {"description": "Unit not ready"}
                }
            }
        },
        "/reopenings": {
            "post": {
                "tags": ["Reopenings"],
                "summary": "Request reopening of a closed unit",
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Duplicate pending request"}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List the caller's notifications",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
