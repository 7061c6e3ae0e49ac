package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionPromptCreate    = "prompt_create"
	AuditActionPromptActivate  = "prompt_activate"
	AuditActionLLMConfigUpdate = "update_llm_config"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	TargetType *string   `db:"target_type" json:"target_type,omitempty"`
	TargetID   *string   `db:"target_id" json:"target_id,omitempty"`
	Meta       []byte    `db:"meta" json:"meta,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
