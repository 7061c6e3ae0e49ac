package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/socratic-tutor-api/internal/models"
)

// PromptRepository persists versioned prompt configurations.
type PromptRepository struct {
	db *sqlx.DB
}

// NewPromptRepository constructs the repository.
func NewPromptRepository(db *sqlx.DB) *PromptRepository {
	return &PromptRepository{db: db}
}

const promptColumns = `id, scope_type, class_id, content, version, is_active, created_by, created_at`

// FindByID fetches a single prompt version.
func (r *PromptRepository) FindByID(ctx context.Context, id string) (*models.PromptScope, error) {
	query := fmt.Sprintf(`SELECT %s FROM prompt_scopes WHERE id = $1`, promptColumns)
	var prompt models.PromptScope
	if err := r.db.GetContext(ctx, &prompt, query, id); err != nil {
		return nil, err
	}
	return &prompt, nil
}

// FindActive returns the active version for a scope, or sql.ErrNoRows.
// class_id is matched with IS NOT DISTINCT FROM so the GLOBAL scope (NULL
// class) uses the same query shape.
func (r *PromptRepository) FindActive(ctx context.Context, scope models.ScopeType, classID *string) (*models.PromptScope, error) {
	query := fmt.Sprintf(`SELECT %s FROM prompt_scopes
WHERE scope_type = $1 AND class_id IS NOT DISTINCT FROM $2 AND is_active = TRUE`, promptColumns)
	var prompt models.PromptScope
	if err := r.db.GetContext(ctx, &prompt, query, scope, classID); err != nil {
		return nil, err
	}
	return &prompt, nil
}

// Create assigns the next version within the scope and inserts the row in
// one transaction. When deactivateSiblings is set the currently active
// version of the same scope is retired first so the new row becomes the
// single active one.
func (r *PromptRepository) Create(ctx context.Context, prompt *models.PromptScope, deactivateSiblings bool) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin prompt create tx: %w", err)
	}

	var maxVersion int
	const versionQuery = `SELECT COALESCE(MAX(version), 0) FROM prompt_scopes
WHERE scope_type = $1 AND class_id IS NOT DISTINCT FROM $2`
	if err := tx.GetContext(ctx, &maxVersion, versionQuery, prompt.ScopeType, prompt.ClassID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("next prompt version: %w", err)
	}
	prompt.Version = maxVersion + 1

	if deactivateSiblings {
		const deactivate = `UPDATE prompt_scopes SET is_active = FALSE
WHERE scope_type = $1 AND class_id IS NOT DISTINCT FROM $2 AND is_active = TRUE`
		if _, err := tx.ExecContext(ctx, deactivate, prompt.ScopeType, prompt.ClassID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("deactivate sibling prompts: %w", err)
		}
	}

	if prompt.CreatedAt.IsZero() {
		prompt.CreatedAt = time.Now().UTC()
	}
	const insert = `INSERT INTO prompt_scopes (id, scope_type, class_id, content, version, is_active, created_by, created_at)
VALUES (:id, :scope_type, :class_id, :content, :version, :is_active, :created_by, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, prompt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert prompt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit prompt create tx: %w", err)
	}
	return nil
}

// Activate retires the scope's current active version and activates the
// target in one transaction, preserving the single-active invariant.
func (r *PromptRepository) Activate(ctx context.Context, prompt *models.PromptScope) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin prompt activate tx: %w", err)
	}

	const deactivate = `UPDATE prompt_scopes SET is_active = FALSE
WHERE scope_type = $1 AND class_id IS NOT DISTINCT FROM $2 AND is_active = TRUE`
	if _, err := tx.ExecContext(ctx, deactivate, prompt.ScopeType, prompt.ClassID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("deactivate sibling prompts: %w", err)
	}

	const activate = `UPDATE prompt_scopes SET is_active = TRUE WHERE id = $1`
	if _, err := tx.ExecContext(ctx, activate, prompt.ID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("activate prompt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit prompt activate tx: %w", err)
	}
	return nil
}

// History lists versions of a scope, newest version first.
func (r *PromptRepository) History(ctx context.Context, filter models.PromptHistoryFilter) ([]models.PromptScope, error) {
	query := fmt.Sprintf(`SELECT %s FROM prompt_scopes
WHERE scope_type = $1 AND ($2::uuid IS NULL OR class_id = $2)
ORDER BY version DESC
LIMIT $3 OFFSET $4`, promptColumns)

	limit := filter.PageSize
	offset := (filter.Page - 1) * filter.PageSize
	var prompts []models.PromptScope
	if err := r.db.SelectContext(ctx, &prompts, query, filter.ScopeType, filter.ClassID, limit, offset); err != nil {
		return nil, fmt.Errorf("list prompt history: %w", err)
	}
	return prompts, nil
}

// CountHistory returns the number of versions within a scope.
func (r *PromptRepository) CountHistory(ctx context.Context, filter models.PromptHistoryFilter) (int, error) {
	const query = `SELECT COUNT(*) FROM prompt_scopes
WHERE scope_type = $1 AND ($2::uuid IS NULL OR class_id = $2)`
	var total int
	if err := r.db.GetContext(ctx, &total, query, filter.ScopeType, filter.ClassID); err != nil {
		return 0, fmt.Errorf("count prompt history: %w", err)
	}
	return total, nil
}
