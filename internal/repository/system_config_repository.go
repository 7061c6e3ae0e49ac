package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/socratic-tutor-api/internal/models"
)

// SystemConfigRepository persists runtime configuration rows.
type SystemConfigRepository struct {
	db *sqlx.DB
}

// NewSystemConfigRepository constructs the repository.
func NewSystemConfigRepository(db *sqlx.DB) *SystemConfigRepository {
	return &SystemConfigRepository{db: db}
}

// Get fetches a single configuration row by key.
func (r *SystemConfigRepository) Get(ctx context.Context, key string) (*models.SystemConfig, error) {
	const query = `SELECT key, value, updated_at FROM system_configs WHERE key = $1`
	var cfg models.SystemConfig
	if err := r.db.GetContext(ctx, &cfg, query, key); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ListByKeys returns configuration rows whose key is in the provided slice.
func (r *SystemConfigRepository) ListByKeys(ctx context.Context, keys []string) ([]models.SystemConfig, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT key, value, updated_at FROM system_configs WHERE key IN (%s) ORDER BY key ASC`,
		placeholders(len(keys)))
	args := make([]interface{}, len(keys))
	for i, key := range keys {
		args[i] = key
	}
	var configs []models.SystemConfig
	if err := r.db.SelectContext(ctx, &configs, query, args...); err != nil {
		return nil, fmt.Errorf("list system configs: %w", err)
	}
	return configs, nil
}

// Upsert inserts or updates a configuration row.
func (r *SystemConfigRepository) Upsert(ctx context.Context, cfg *models.SystemConfig) error {
	const query = `INSERT INTO system_configs (key, value, updated_at)
VALUES (:key, :value, :updated_at)
ON CONFLICT (key)
DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	cfg.UpdatedAt = time.Now().UTC()
	if _, err := r.db.NamedExecContext(ctx, query, cfg); err != nil {
		return fmt.Errorf("upsert system config: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	values := make([]string, n)
	for i := 1; i <= n; i++ {
		values[i-1] = fmt.Sprintf("$%d", i)
	}
	return strings.Join(values, ",")
}
