package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Plant Ops Workflow API",
        "description": "Approval workflow engine for plant operation requests",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and session info"},
        {"name": "Applications", "description": "Application lifecycle"},
        {"name": "Dashboard", "description": "Work queues and counters"},
        {"name": "Attachments", "description": "File uploads"},
        {"name": "Comments", "description": "Commentary"},
        {"name": "Admin", "description": "Roles and type routing"},
        {"name": "Export", "description": "CSV and PDF exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "responses": {
                    "200": {"description": "Access token issued"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current account",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/capabilities": {
            "get": {
                "tags": ["Applications"],
                "summary": "Resolved receivable and approvable type sets",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/applications": {
            "post": {
                "tags": ["Applications"],
                "summary": "Create a draft, or submit directly",
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Validation failed"}
                }
            }
        },
        "/applications/{id}": {
            "get": {
                "tags": ["Applications"],
                "summary": "Application detail with audit trail",
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Applications"],
                "summary": "Edit a draft or returned application",
                "responses": {
                    "200": {"description": "OK"},
                    "403": {"description": "Not the applicant"},
                    "409": {"description": "No longer editable"}
                }
            }
        },
        "/applications/{id}/submit": {
            "post": {
                "tags": ["Applications"],
                "summary": "Submit the application",
                "responses": {
                    "200": {"description": "Submitted"},
                    "409": {"description": "Invalid transition"}
                }
            }
        },
        "/applications/{id}/receive": {
            "post": {
                "tags": ["Applications"],
                "summary": "Receive a submitted application",
                "responses": {
                    "200": {"description": "Received"},
                    "403": {"description": "Not authorized for this type"},
                    "409": {"description": "Invalid transition"}
                }
            }
        },
        "/applications/{id}/return": {
            "post": {
                "tags": ["Applications"],
                "summary": "Return a submitted application for rework",
                "responses": {
                    "200": {"description": "Returned"},
                    "409": {"description": "Invalid transition"}
                }
            }
        },
        "/applications/{id}/approve": {
            "post": {
                "tags": ["Applications"],
                "summary": "Approve a received application",
                "responses": {
                    "200": {"description": "Approved"},
                    "409": {"description": "Invalid transition"}
                }
            }
        },
        "/applications/{id}/reject": {
            "post": {
                "tags": ["Applications"],
                "summary": "Reject a submitted or received application",
                "responses": {
                    "200": {"description": "Rejected"},
                    "409": {"description": "Invalid transition"}
                }
            }
        },
        "/dashboard": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Combined listing of own and pending applications",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/dashboard/summary": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Dashboard counters",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/dashboard/pending-receive": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Receive queue",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/dashboard/pending-approve": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Approve queue",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/admin/roles": {
            "get": {
                "tags": ["Admin"],
                "summary": "List workflow roles",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Admin"],
                "summary": "Define a workflow role",
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Duplicate name"}
                }
            }
        },
        "/admin/routes": {
            "get": {
                "tags": ["Admin"],
                "summary": "List type routes",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Admin"],
                "summary": "Install a type route",
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Active route already exists"}
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
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
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
