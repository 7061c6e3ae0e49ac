package models

import "time"

// ScopeType identifies the configuration layer a prompt belongs to.
type ScopeType string

const (
	ScopeGlobal ScopeType = "GLOBAL"
	ScopeClass  ScopeType = "CLASS"
)

// PromptScope is one immutable version of a prompt configuration. Rows are
// append-only; activation flips is_active so that at most one row per
// (scope_type, class_id) is active at a time.
type PromptScope struct {
	ID        string    `db:"id" json:"id"`
	ScopeType ScopeType `db:"scope_type" json:"scope_type"`
	ClassID   *string   `db:"class_id" json:"class_id,omitempty"`
	Content   string    `db:"content" json:"content"`
	Version   int       `db:"version" json:"version"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PromptHistoryFilter captures paging criteria for prompt version listings.
type PromptHistoryFilter struct {
	ScopeType ScopeType
	ClassID   *string
	Page      int
	PageSize  int
}
