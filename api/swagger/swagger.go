package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Socratic Tutor API",
        "description": "Tutoring session engine: prompt management, conversations, and provider gateway",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Chat", "description": "Conversations and tutoring turns"},
        {"name": "Prompts", "description": "Layered system prompt management"},
        {"name": "Admin", "description": "Runtime LLM provider settings"}
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
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Degraded"}
                }
            }
        },
        "/conversations": {
            "get": {
                "tags": ["Chat"],
                "summary": "List own conversations",
                "parameters": [
                    {"name": "class_id", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Chat"],
                "summary": "Open a tutoring conversation",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateConversationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conversations/{id}/messages": {
            "get": {
                "tags": ["Chat"],
                "summary": "Fetch a conversation transcript",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Chat"],
                "summary": "Send a tutoring turn",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SendMessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/conversations/{id}/messages/stream": {
            "post": {
                "tags": ["Chat"],
                "summary": "Send a tutoring turn over SSE",
                "produces": ["text/event-stream"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SendMessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "Event stream: meta, delta, then done or error"}
                }
            }
        },
        "/teacher/classes/{classID}/students/{studentID}/conversations": {
            "get": {
                "tags": ["Chat"],
                "summary": "List a student's conversations within a class",
                "parameters": [
                    {"name": "classID", "in": "path", "required": true, "type": "string"},
                    {"name": "studentID", "in": "path", "required": true, "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/prompts": {
            "post": {
                "tags": ["Prompts"],
                "summary": "Create a prompt version",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreatePromptRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/prompts/{id}/activate": {
            "post": {
                "tags": ["Prompts"],
                "summary": "Activate a prompt version",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/prompts/history": {
            "get": {
                "tags": ["Prompts"],
                "summary": "List prompt versions for a scope",
                "parameters": [
                    {"name": "scope_type", "in": "query", "required": true, "type": "string"},
                    {"name": "class_id", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/prompts/effective": {
            "get": {
                "tags": ["Prompts"],
                "summary": "Resolve the effective prompt for a class",
                "parameters": [
                    {"name": "class_id", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/settings/llm": {
            "get": {
                "tags": ["Admin"],
                "summary": "Get LLM provider settings",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Admin"],
                "summary": "Update LLM provider settings",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateLLMConfigRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/settings/llm/test": {
            "post": {
                "tags": ["Admin"],
                "summary": "Probe LLM provider connectivity",
                "parameters": [
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/LLMTestRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CreateConversationRequest": {
            "type": "object",
            "properties": {
                "class_id": {"type": "string"},
                "title": {"type": "string"}
            },
            "required": ["class_id"]
        },
        "ConversationInfo": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "class_id": {"type": "string"},
                "class_name": {"type": "string"},
                "student_id": {"type": "string"},
                "student_name": {"type": "string"},
                "title": {"type": "string"},
                "first_user_message_preview": {"type": "string"},
                "prompt_version": {"type": "integer"},
                "model_provider": {"type": "string"},
                "model_name": {"type": "string"},
                "created_at": {"type": "string"},
                "last_message_at": {"type": "string"},
                "message_count": {"type": "integer"}
            }
        },
        "MessageInfo": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "role": {"type": "string"},
                "content": {"type": "string"},
                "created_at": {"type": "string"},
                "token_in": {"type": "integer"},
                "token_out": {"type": "integer"}
            }
        },
        "SendMessageRequest": {
            "type": "object",
            "properties": {
                "content": {"type": "string"}
            },
            "required": ["content"]
        },
        "SendMessageResponse": {
            "type": "object",
            "properties": {
                "user_message": {"$ref": "#/definitions/MessageInfo"},
                "assistant_message": {"$ref": "#/definitions/MessageInfo"},
                "policy_flags": {"type": "object"}
            }
        },
        "CreatePromptRequest": {
            "type": "object",
            "properties": {
                "scope_type": {"type": "string", "enum": ["GLOBAL", "CLASS"]},
                "class_id": {"type": "string"},
                "content": {"type": "string"},
                "auto_activate": {"type": "boolean"}
            },
            "required": ["scope_type", "content"]
        },
        "PromptInfo": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "scope_type": {"type": "string"},
                "class_id": {"type": "string"},
                "class_name": {"type": "string"},
                "content": {"type": "string"},
                "version": {"type": "integer"},
                "is_active": {"type": "boolean"},
                "created_by": {"type": "string"},
                "creator_name": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "EffectivePromptResponse": {
            "type": "object",
            "properties": {
                "global_prompt": {"$ref": "#/definitions/PromptInfo"},
                "class_prompt": {"$ref": "#/definitions/PromptInfo"},
                "merged_content": {"type": "string"},
                "version": {"type": "integer"}
            }
        },
        "UpdateLLMConfigRequest": {
            "type": "object",
            "properties": {
                "provider_name": {"type": "string"},
                "base_url": {"type": "string"},
                "api_key": {"type": "string"},
                "model_name": {"type": "string"}
            }
        },
        "LLMTestRequest": {
            "type": "object",
            "properties": {
                "base_url": {"type": "string"},
                "api_key": {"type": "string"},
                "model_name": {"type": "string"}
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
