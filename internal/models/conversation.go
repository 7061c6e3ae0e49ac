package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MessageRole mirrors the chat wire protocol roles. System prompts are
// injected per turn and never persisted.
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Conversation is a tutoring session between one student and the tutor.
// student_id and prompt_version are immutable after creation.
type Conversation struct {
	ID            int64      `db:"id" json:"id"`
	ClassID       string     `db:"class_id" json:"class_id"`
	StudentID     string     `db:"student_id" json:"student_id"`
	Title         *string    `db:"title" json:"title,omitempty"`
	PromptVersion int        `db:"prompt_version" json:"prompt_version"`
	ModelProvider string     `db:"model_provider" json:"model_provider"`
	ModelName     string     `db:"model_name" json:"model_name"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	LastMessageAt *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
}

// ConversationSummary enriches a conversation with listing metadata.
type ConversationSummary struct {
	Conversation
	MessageCount            int     `db:"message_count" json:"message_count"`
	FirstUserMessagePreview *string `db:"first_user_message_preview" json:"first_user_message_preview,omitempty"`
}

// ConversationFilter captures filtering criteria for conversation listings.
type ConversationFilter struct {
	StudentID string
	ClassID   *string
	Page      int
	PageSize  int
}

// PolicyFlags is a free-form jsonb payload recording turn outcome metadata
// (provider, model, latency_ms, error).
type PolicyFlags map[string]interface{}

// Value implements driver.Valuer for jsonb columns.
func (f PolicyFlags) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal(f)
}

// Scan implements sql.Scanner for jsonb columns.
func (f *PolicyFlags) Scan(src interface{}) error {
	if src == nil {
		*f = nil
		return nil
	}
	switch data := src.(type) {
	case []byte:
		return json.Unmarshal(data, f)
	case string:
		return json.Unmarshal([]byte(data), f)
	default:
		return fmt.Errorf("unsupported policy_flags type %T", src)
	}
}

// Message is a single persisted chat turn half.
type Message struct {
	ID             int64       `db:"id" json:"id"`
	ConversationID int64       `db:"conversation_id" json:"conversation_id"`
	Role           MessageRole `db:"role" json:"role"`
	Content        string      `db:"content" json:"content"`
	TokenIn        *int        `db:"token_in" json:"token_in,omitempty"`
	TokenOut       *int        `db:"token_out" json:"token_out,omitempty"`
	PolicyFlags    PolicyFlags `db:"policy_flags" json:"policy_flags,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}
