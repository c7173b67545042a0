package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Keyboard Loan API",
        "description": "Inventory and loan tracking for the school keyboard program",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Dashboard", "description": "Aggregated overview"},
        {"name": "SchoolYears", "description": "School year management"},
        {"name": "Classes", "description": "Class groups and rosters"},
        {"name": "Students", "description": "Student roster"},
        {"name": "Keyboards", "description": "Instrument inventory"},
        {"name": "Loans", "description": "Loan ledger"},
        {"name": "Rollover", "description": "Annual grade promotion"},
        {"name": "Backup", "description": "Exports and merge import"},
        {"name": "Audit", "description": "Activity trail"}
    ],
    "paths": {
        "/dashboard": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Landing-page statistics for the active school year",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/school-years": {
            "get": {
                "tags": ["SchoolYears"],
                "summary": "List school years",
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["SchoolYears"],
                "summary": "Create school year",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateYearRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Name taken", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/school-years/active": {
            "get": {
                "tags": ["SchoolYears"],
                "summary": "Get the active school year",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/school-years/{id}": {
            "get": {
                "tags": ["SchoolYears"],
                "summary": "Get school year",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["SchoolYears"],
                "summary": "Update school year",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateYearRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/school-years/{id}/activate": {
            "post": {
                "tags": ["SchoolYears"],
                "summary": "Activate a school year",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes": {
            "get": {
                "tags": ["Classes"],
                "summary": "List classes with loan counters",
                "parameters": [
                    {"name": "school_year_id", "in": "query", "type": "string"},
                    {"name": "grade", "in": "query", "type": "integer"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Classes"],
                "summary": "Create class",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateClassRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{id}": {
            "get": {
                "tags": ["Classes"],
                "summary": "Get class",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Classes"],
                "summary": "Update class",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateClassRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Classes"],
                "summary": "Delete an empty class",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "412": {"description": "Class still has students", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{id}/import": {
            "post": {
                "tags": ["Students"],
                "summary": "Import a class roster from CSV",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "200": {"description": "Import report", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{id}/export": {
            "get": {
                "tags": ["Backup"],
                "summary": "Download one class roster",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["xlsx", "csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        },
        "/students": {
            "get": {
                "tags": ["Students"],
                "summary": "List students",
                "parameters": [
                    {"name": "class_id", "in": "query", "type": "string"},
                    {"name": "participates", "in": "query", "type": "boolean"},
                    {"name": "without_loan", "in": "query", "type": "boolean"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Students"],
                "summary": "Create student",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateStudentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}": {
            "get": {
                "tags": ["Students"],
                "summary": "Get student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Students"],
                "summary": "Update student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateStudentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Students"],
                "summary": "Delete a student with no loan history",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "412": {"description": "Student has loan history", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/toggle-participation": {
            "post": {
                "tags": ["Students"],
                "summary": "Toggle loan participation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/toggle-fee": {
            "post": {
                "tags": ["Students"],
                "summary": "Toggle the fee flag of a student",
                "description": "Flips the active loan's fee flag when the student holds a keyboard, otherwise the prepaid flag",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/keyboards": {
            "get": {
                "tags": ["Keyboards"],
                "summary": "List keyboards",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "condition", "in": "query", "type": "string"},
                    {"name": "available", "in": "query", "type": "boolean"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Keyboards"],
                "summary": "Add a keyboard",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateKeyboardRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Inventory number taken", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/keyboards/bulk": {
            "post": {
                "tags": ["Keyboards"],
                "summary": "Create a numbered keyboard series",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkCreateKeyboardsRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/keyboards/{id}": {
            "get": {
                "tags": ["Keyboards"],
                "summary": "Get keyboard",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Keyboards"],
                "summary": "Update keyboard",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateKeyboardRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Keyboards"],
                "summary": "Delete a keyboard that is not on loan",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "412": {"description": "Keyboard on loan", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/loans": {
            "get": {
                "tags": ["Loans"],
                "summary": "List loans",
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "keyboard_id", "in": "query", "type": "string"},
                    {"name": "class_id", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "fee_paid", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Loans"],
                "summary": "Hand a keyboard out to a student",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateLoanRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Student or keyboard already bound", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/loans/ledger-check": {
            "get": {
                "tags": ["Loans"],
                "summary": "Check ledger consistency",
                "description": "Counts students and keyboards holding more than one open loan; both must be zero",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/loans/{id}": {
            "get": {
                "tags": ["Loans"],
                "summary": "Get loan",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/loans/{id}/return": {
            "post": {
                "tags": ["Loans"],
                "summary": "Take a keyboard back",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ReturnLoanRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already returned", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/loans/{id}/undo-return": {
            "post": {
                "tags": ["Loans"],
                "summary": "Undo a keyboard return",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Keyboard reassigned or loan still active", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/loans/{id}/toggle-fee": {
            "post": {
                "tags": ["Loans"],
                "summary": "Toggle the fee flag on a loan",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rollover/preview": {
            "get": {
                "tags": ["Rollover"],
                "summary": "Preview the annual grade promotion",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rollover/promote": {
            "post": {
                "tags": ["Rollover"],
                "summary": "Run the annual grade promotion",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PromoteYearRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Open grade-6 loans not confirmed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/export/workbook": {
            "get": {
                "tags": ["Backup"],
                "summary": "Download the multi-sheet workbook backup",
                "parameters": [
                    {"name": "year_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        },
        "/export/json": {
            "get": {
                "tags": ["Backup"],
                "summary": "Download the JSON snapshot backup",
                "parameters": [
                    {"name": "year_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        },
        "/export/bundle": {
            "get": {
                "tags": ["Backup"],
                "summary": "Download workbook and snapshot as one zip archive",
                "parameters": [
                    {"name": "year_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        },
        "/export/payments": {
            "get": {
                "tags": ["Backup"],
                "summary": "Download the fee bookkeeping sheet",
                "parameters": [
                    {"name": "year_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        },
        "/import": {
            "post": {
                "tags": ["Backup"],
                "summary": "Merge a snapshot backup into the live data",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "200": {"description": "Import report", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit": {
            "get": {
                "tags": ["Audit"],
                "summary": "List audit entries",
                "parameters": [
                    {"name": "action", "in": "query", "type": "string"},
                    {"name": "entity_type", "in": "query", "type": "string"},
                    {"name": "user_id", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CreateYearRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "start_date": {"type": "string"},
                "end_date": {"type": "string"},
                "set_active": {"type": "boolean"},
                "with_default_classes": {"type": "boolean"}
            },
            "required": ["name", "start_date", "end_date"]
        },
        "UpdateYearRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "start_date": {"type": "string"},
                "end_date": {"type": "string"}
            },
            "required": ["name", "start_date", "end_date"]
        },
        "CreateClassRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "grade": {"type": "integer"},
                "school_year_id": {"type": "string"},
                "class_teacher": {"type": "string"},
                "music_teacher": {"type": "string"},
                "loan_date": {"type": "string"}
            },
            "required": ["name", "grade", "school_year_id"]
        },
        "UpdateClassRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "grade": {"type": "integer"},
                "class_teacher": {"type": "string"},
                "music_teacher": {"type": "string"},
                "loan_date": {"type": "string"}
            },
            "required": ["name", "grade"]
        },
        "CreateStudentRequest": {
            "type": "object",
            "properties": {
                "last_name": {"type": "string"},
                "first_name": {"type": "string"},
                "class_id": {"type": "string"},
                "participates_in_loan": {"type": "boolean"},
                "fee_prepaid": {"type": "boolean"},
                "notes": {"type": "string"}
            },
            "required": ["last_name", "first_name", "class_id"]
        },
        "UpdateStudentRequest": {
            "type": "object",
            "properties": {
                "last_name": {"type": "string"},
                "first_name": {"type": "string"},
                "class_id": {"type": "string"},
                "participates_in_loan": {"type": "boolean"},
                "fee_prepaid": {"type": "boolean"},
                "notes": {"type": "string"}
            },
            "required": ["last_name", "first_name", "class_id"]
        },
        "CreateKeyboardRequest": {
            "type": "object",
            "properties": {
                "inventory_number": {"type": "string"},
                "internal_number": {"type": "integer"},
                "condition": {"type": "string", "enum": ["ok", "defective", "in_repair"]},
                "status": {"type": "string", "enum": ["in_storage", "loaned", "in_repair", "missing"]},
                "notes": {"type": "string"}
            },
            "required": ["inventory_number"]
        },
        "UpdateKeyboardRequest": {
            "type": "object",
            "properties": {
                "inventory_number": {"type": "string"},
                "internal_number": {"type": "integer"},
                "condition": {"type": "string"},
                "status": {"type": "string"},
                "notes": {"type": "string"}
            },
            "required": ["inventory_number", "condition", "status"]
        },
        "BulkCreateKeyboardsRequest": {
            "type": "object",
            "properties": {
                "prefix": {"type": "string", "default": "KB"},
                "start": {"type": "integer"},
                "count": {"type": "integer"}
            },
            "required": ["count"]
        },
        "CreateLoanRequest": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "keyboard_id": {"type": "string"},
                "fee_paid": {"type": "boolean"}
            },
            "required": ["student_id", "keyboard_id"]
        },
        "ReturnLoanRequest": {
            "type": "object",
            "properties": {
                "return_condition": {"type": "string", "enum": ["ok", "defective", "in_repair"]},
                "return_notes": {"type": "string"}
            }
        },
        "PromoteYearRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "start_date": {"type": "string"},
                "end_date": {"type": "string"},
                "confirm_open_loans": {"type": "boolean"}
            },
            "required": ["name", "start_date", "end_date"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
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
