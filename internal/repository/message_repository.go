package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/socratic-tutor-api/internal/models"
)

// MessageRepository persists chat messages and turn outcomes.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs the repository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `id, conversation_id, role, content, token_in, token_out, policy_flags, created_at`

// Create inserts a message and backfills the generated identifier.
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO messages (conversation_id, role, content, token_in, token_out, policy_flags, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`
	if err := r.db.GetContext(ctx, &msg.ID, query,
		msg.ConversationID, msg.Role, msg.Content, msg.TokenIn, msg.TokenOut, msg.PolicyFlags, msg.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListByConversation returns messages in chronological order.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID int64) ([]models.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC, id ASC`, messageColumns)
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, conversationID); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// CompleteTurn inserts the assistant reply and advances the conversation's
// last_message_at in one transaction.
func (r *MessageRepository) CompleteTurn(ctx context.Context, conversationID int64, assistant *models.Message) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin turn tx: %w", err)
	}

	if assistant.CreatedAt.IsZero() {
		assistant.CreatedAt = time.Now().UTC()
	}
	const insert = `INSERT INTO messages (conversation_id, role, content, token_in, token_out, policy_flags, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`
	if err := tx.GetContext(ctx, &assistant.ID, insert,
		assistant.ConversationID, assistant.Role, assistant.Content, assistant.TokenIn, assistant.TokenOut, assistant.PolicyFlags, assistant.CreatedAt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert assistant message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET last_message_at = $1 WHERE id = $2`,
		time.Now().UTC(), conversationID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit turn tx: %w", err)
	}
	return nil
}

// SettleStreamTurn writes the accumulated content and flags into the
// assistant placeholder and advances last_message_at in one transaction.
func (r *MessageRepository) SettleStreamTurn(ctx context.Context, conversationID, assistantID int64, content string, flags models.PolicyFlags, tokenIn, tokenOut *int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stream settle tx: %w", err)
	}

	const update = `UPDATE messages SET content = $1, policy_flags = $2, token_in = $3, token_out = $4 WHERE id = $5`
	if _, err := tx.ExecContext(ctx, update, content, flags, tokenIn, tokenOut, assistantID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("settle assistant message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET last_message_at = $1 WHERE id = $2`,
		time.Now().UTC(), conversationID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stream settle tx: %w", err)
	}
	return nil
}
