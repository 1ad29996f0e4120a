// Package rag registers the OpenAPI 2.0 document of the RAG service with swag.
// Served by gin-swagger under /swagger when http.enable-swagger is set.
package rag

import "github.com/swaggo/swag"

const docTemplaterag = `{
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
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/v1/documents/upload": {
            "post": {
                "tags": ["documents"],
                "summary": "Upload a .txt, .pdf or .md document",
                "consumes": ["multipart/form-data"],
                "parameters": [{"name": "file", "in": "formData", "type": "file", "required": true}],
                "responses": {"200": {"description": "document, file and chunk counts", "schema": {"$ref": "#/definitions/Envelope"}}, "400": {"description": "unsupported or invalid file"}, "413": {"description": "file too large"}}
            }
        },
        "/v1/documents/batch-upload": {
            "post": {
                "tags": ["documents"],
                "summary": "Upload up to 10 documents, reporting per-file results",
                "consumes": ["multipart/form-data"],
                "parameters": [{"name": "files", "in": "formData", "type": "file", "required": true}],
                "responses": {"200": {"description": "per-file results", "schema": {"$ref": "#/definitions/Envelope"}}}
            }
        },
        "/v1/documents": {
            "get": {"tags": ["documents"], "summary": "List the caller's documents", "responses": {"200": {"description": "documents", "schema": {"$ref": "#/definitions/Envelope"}}}}
        },
        "/v1/documents/{id}": {
            "get": {
                "tags": ["documents"],
                "summary": "Document details with content and chunk previews",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "details", "schema": {"$ref": "#/definitions/Envelope"}}, "404": {"description": "not found"}}
            },
            "delete": {
                "tags": ["documents"],
                "summary": "Delete a document with its file and chunks",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "deleted"}, "403": {"description": "not the owner"}, "404": {"description": "not found"}}
            }
        },
        "/v1/documents/stats/overview": {
            "get": {"tags": ["documents"], "summary": "Chunk, document and language counts", "responses": {"200": {"description": "stats", "schema": {"$ref": "#/definitions/Envelope"}}}}
        },
        "/v1/documents/initialize-kb": {
            "post": {"tags": ["documents"], "summary": "Ingest the configured knowledge base (admin)", "responses": {"200": {"description": "knowledge-base status"}, "403": {"description": "admin only"}}}
        },
        "/v1/rag/ask": {
            "post": {
                "tags": ["rag"],
                "summary": "Answer a Bengali, English or mixed question",
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AskRequest"}}],
                "responses": {"200": {"description": "answer", "schema": {"$ref": "#/definitions/Envelope"}}, "400": {"description": "invalid request"}, "429": {"description": "rate limited"}}
            }
        },
        "/v1/rag/feedback": {
            "post": {
                "tags": ["rag"],
                "summary": "Rate an AI message",
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/FeedbackRequest"}}],
                "responses": {"200": {"description": "stored"}, "400": {"description": "invalid request"}, "404": {"description": "message not found"}}
            }
        },
        "/v1/rag/evaluation/stats": {
            "get": {"tags": ["rag"], "summary": "Average scores and feedback distribution (admin)", "responses": {"200": {"description": "stats", "schema": {"$ref": "#/definitions/Envelope"}}}}
        },
        "/v1/chat/message": {
            "post": {
                "tags": ["chat"],
                "summary": "Send a chat message, optionally with attachments",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "content", "in": "formData", "type": "string", "required": true},
                    {"name": "chat_id", "in": "formData", "type": "string"},
                    {"name": "files", "in": "formData", "type": "file"}
                ],
                "responses": {"200": {"description": "answer", "schema": {"$ref": "#/definitions/Envelope"}}, "429": {"description": "rate limited"}}
            }
        },
        "/v1/chat": {
            "get": {
                "tags": ["chat"],
                "summary": "List chats, newest first",
                "parameters": [{"name": "limit", "in": "query", "type": "integer", "default": 20}, {"name": "offset", "in": "query", "type": "integer", "default": 0}],
                "responses": {"200": {"description": "chats with pagination", "schema": {"$ref": "#/definitions/Envelope"}}}
            }
        },
        "/v1/chat/{id}/messages": {
            "get": {
                "tags": ["chat"],
                "summary": "Chat history in chronological order",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "limit", "in": "query", "type": "integer", "default": 50},
                    {"name": "offset", "in": "query", "type": "integer", "default": 0}
                ],
                "responses": {"200": {"description": "messages with pagination", "schema": {"$ref": "#/definitions/Envelope"}}, "404": {"description": "not found"}}
            }
        },
        "/v1/chat/{id}": {
            "delete": {
                "tags": ["chat"],
                "summary": "Delete a chat and its messages",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "deleted"}, "404": {"description": "not found"}}
            }
        },
        "/v1/system/initialize": {
            "post": {"tags": ["system"], "summary": "Initialize the knowledge base and report readiness (admin)", "responses": {"200": {"description": "status", "schema": {"$ref": "#/definitions/Envelope"}}}}
        },
        "/v1/system/status": {
            "get": {"tags": ["system"], "summary": "Configuration and vector store statistics", "security": [], "responses": {"200": {"description": "status", "schema": {"$ref": "#/definitions/Envelope"}}}}
        },
        "/v1/system/health": {
            "get": {"tags": ["system"], "summary": "Component health", "security": [], "responses": {"200": {"description": "health", "schema": {"$ref": "#/definitions/Envelope"}}}}
        },
        "/v1/system/knowledge-base": {
            "delete": {"tags": ["system"], "summary": "Delete the knowledge-base document (admin)", "responses": {"200": {"description": "deleted"}, "404": {"description": "nothing to delete"}}}
        },
        "/v1/files/{path}": {
            "get": {
                "tags": ["files"],
                "summary": "Download a stored upload",
                "parameters": [{"name": "path", "in": "path", "type": "string", "required": true}],
                "responses": {"200": {"description": "file content"}, "404": {"description": "not found"}}
            }
        }
    },
    "definitions": {
        "Envelope": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "message": {"type": "string"},
                "data": {"type": "object"},
                "request_id": {"type": "string"}
            }
        },
        "AskRequest": {
            "type": "object",
            "required": ["question"],
            "properties": {
                "question": {"type": "string", "maxLength": 4000},
                "chat_id": {"type": "string"},
                "document_ids": {"type": "array", "maxItems": 50, "items": {"type": "string"}}
            }
        },
        "FeedbackRequest": {
            "type": "object",
            "required": ["message_id", "feedback"],
            "properties": {
                "message_id": {"type": "string"},
                "feedback": {"type": "string", "enum": ["helpful", "not_helpful", "partial"]}
            }
        }
    }
}`

// SwaggerInforag holds exported Swagger Info so clients can modify it.
var SwaggerInforag = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Bhasha RAG Service",
	Description:      "Bilingual (Bengali / English) retrieval-augmented question answering.",
	InfoInstanceName: "rag",
	SwaggerTemplate:  docTemplaterag,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInforag.InstanceName(), SwaggerInforag)
}
