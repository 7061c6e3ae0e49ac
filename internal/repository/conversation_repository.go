package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/socratic-tutor-api/internal/models"
)

// ConversationRepository persists tutoring sessions.
type ConversationRepository struct {
	db *sqlx.DB
}

// NewConversationRepository constructs the repository.
func NewConversationRepository(db *sqlx.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

const conversationColumns = `id, class_id, student_id, title, prompt_version, model_provider, model_name, created_at, last_message_at`

// Create inserts a conversation and backfills the generated identifier.
func (r *ConversationRepository) Create(ctx context.Context, conv *models.Conversation) error {
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO conversations (class_id, student_id, title, prompt_version, model_provider, model_name, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`
	if err := r.db.GetContext(ctx, &conv.ID, query,
		conv.ClassID, conv.StudentID, conv.Title, conv.PromptVersion, conv.ModelProvider, conv.ModelName, conv.CreatedAt); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// FindByID fetches a conversation.
func (r *ConversationRepository) FindByID(ctx context.Context, id int64) (*models.Conversation, error) {
	query := fmt.Sprintf(`SELECT %s FROM conversations WHERE id = $1`, conversationColumns)
	var conv models.Conversation
	if err := r.db.GetContext(ctx, &conv, query, id); err != nil {
		return nil, err
	}
	return &conv, nil
}

// listSummariesQuery excludes conversations that never received an
// assistant reply so salvaged or still-pending sessions stay invisible.
const listSummariesQuery = `SELECT c.id, c.class_id, c.student_id, c.title, c.prompt_version, c.model_provider, c.model_name, c.created_at, c.last_message_at,
       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id) AS message_count,
       (SELECT m.content FROM messages m
        WHERE m.conversation_id = c.id AND m.role = 'user'
        ORDER BY m.created_at ASC, m.id ASC LIMIT 1) AS first_user_message_preview
FROM conversations c
WHERE c.student_id = $1
  AND ($2::uuid IS NULL OR c.class_id = $2)
  AND EXISTS (SELECT 1 FROM messages m WHERE m.conversation_id = c.id AND m.role = 'assistant')
ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC
LIMIT $3 OFFSET $4`

// ListSummaries returns enriched conversation rows for listings.
func (r *ConversationRepository) ListSummaries(ctx context.Context, filter models.ConversationFilter) ([]models.ConversationSummary, error) {
	limit := filter.PageSize
	offset := (filter.Page - 1) * filter.PageSize
	var rows []models.ConversationSummary
	if err := r.db.SelectContext(ctx, &rows, listSummariesQuery, filter.StudentID, filter.ClassID, limit, offset); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return rows, nil
}

// CountSummaries counts listable conversations for pagination.
func (r *ConversationRepository) CountSummaries(ctx context.Context, filter models.ConversationFilter) (int, error) {
	const query = `SELECT COUNT(*) FROM conversations c
WHERE c.student_id = $1
  AND ($2::uuid IS NULL OR c.class_id = $2)
  AND EXISTS (SELECT 1 FROM messages m WHERE m.conversation_id = c.id AND m.role = 'assistant')`
	var total int
	if err := r.db.GetContext(ctx, &total, query, filter.StudentID, filter.ClassID); err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return total, nil
}

// SalvageFirstTurn removes every trace of a conversation whose very first
// turn failed: all of its messages and the conversation row itself, in one
// transaction.
func (r *ConversationRepository) SalvageFirstTurn(ctx context.Context, conversationID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin salvage tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = $1`, conversationID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete salvaged messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, conversationID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete salvaged conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit salvage tx: %w", err)
	}
	return nil
}
