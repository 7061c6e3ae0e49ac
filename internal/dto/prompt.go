package dto

import (
	"time"

	"github.com/noah-isme/socratic-tutor-api/internal/models"
)

// CreatePromptRequest appends a new prompt version to a scope.
type CreatePromptRequest struct {
	ScopeType    models.ScopeType `json:"scope_type" validate:"required,oneof=GLOBAL CLASS"`
	ClassID      *string          `json:"class_id,omitempty" validate:"omitempty,uuid4"`
	Content      string           `json:"content" validate:"required"`
	AutoActivate bool             `json:"auto_activate"`
}

// PromptInfo describes a prompt version in API responses.
type PromptInfo struct {
	ID          string           `json:"id"`
	ScopeType   models.ScopeType `json:"scope_type"`
	ClassID     *string          `json:"class_id,omitempty"`
	ClassName   *string          `json:"class_name,omitempty"`
	Content     string           `json:"content"`
	Version     int              `json:"version"`
	IsActive    bool             `json:"is_active"`
	CreatedBy   string           `json:"created_by"`
	CreatorName *string          `json:"creator_name,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// ActivatePromptResponse confirms a version rollback/activation.
type ActivatePromptResponse struct {
	Message string `json:"message"`
	Version int    `json:"version"`
}

// EffectivePromptResponse is the merged prompt a class resolves to.
type EffectivePromptResponse struct {
	GlobalPrompt  *PromptInfo `json:"global_prompt,omitempty"`
	ClassPrompt   *PromptInfo `json:"class_prompt,omitempty"`
	MergedContent string      `json:"merged_content"`
	Version       int         `json:"version"`
}
