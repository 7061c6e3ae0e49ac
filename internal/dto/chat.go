package dto

import (
	"time"

	"github.com/noah-isme/socratic-tutor-api/internal/models"
)

// CreateConversationRequest opens a new tutoring session.
type CreateConversationRequest struct {
	ClassID string  `json:"class_id" validate:"required,uuid4"`
	Title   *string `json:"title,omitempty"`
}

// ConversationInfo describes a conversation in API responses.
type ConversationInfo struct {
	ID                      int64      `json:"id"`
	ClassID                 string     `json:"class_id"`
	ClassName               *string    `json:"class_name,omitempty"`
	StudentID               string     `json:"student_id"`
	StudentName             *string    `json:"student_name,omitempty"`
	Title                   *string    `json:"title,omitempty"`
	FirstUserMessagePreview *string    `json:"first_user_message_preview,omitempty"`
	PromptVersion           int        `json:"prompt_version"`
	ModelProvider           string     `json:"model_provider"`
	ModelName               string     `json:"model_name"`
	CreatedAt               time.Time  `json:"created_at"`
	LastMessageAt           *time.Time `json:"last_message_at,omitempty"`
	MessageCount            int        `json:"message_count"`
}

// MessageInfo describes a persisted message in API responses. An ID of 0
// marks the in-band assistant placeholder returned when a first turn was
// salvaged and nothing remains persisted.
type MessageInfo struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	TokenIn   *int      `json:"token_in,omitempty"`
	TokenOut  *int      `json:"token_out,omitempty"`
}

// MessageListResponse wraps a conversation transcript.
type MessageListResponse struct {
	ConversationID int64         `json:"conversation_id"`
	Messages       []MessageInfo `json:"messages"`
}

// SendMessageRequest carries the student's turn content.
type SendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// SendMessageResponse returns both halves of a completed turn.
type SendMessageResponse struct {
	UserMessage      MessageInfo        `json:"user_message"`
	AssistantMessage MessageInfo        `json:"assistant_message"`
	PolicyFlags      models.PolicyFlags `json:"policy_flags"`
}
