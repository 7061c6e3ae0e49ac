package models

import "time"

// SystemConfig is a key/value row persisting runtime settings, currently
// the administrator-managed LLM connection parameters.
type SystemConfig struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
